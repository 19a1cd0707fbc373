package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

type Tier struct {
	Height       int
	Width        int
	Bandwidth    int
	VideoBitrate string // e.g., "800k"
	MaxRate      string
	BufSize      string
	AudioRate    string // e.g., "96k"
	Profile      string
}

// Tiers is the fixed resolution ladder, ascending.
var Tiers = []Tier{
	{Height: 360, Width: 640, Bandwidth: 800000, VideoBitrate: "800k", MaxRate: "856k", BufSize: "1200k", AudioRate: "96k", Profile: "main"},
	{Height: 720, Width: 1280, Bandwidth: 2800000, VideoBitrate: "2800k", MaxRate: "2996k", BufSize: "4200k", AudioRate: "128k", Profile: "main"},
	{Height: 1080, Width: 1920, Bandwidth: 5000000, VideoBitrate: "5000k", MaxRate: "5350k", BufSize: "7500k", AudioRate: "192k", Profile: "high"},
}

const segmentSeconds = "10"

func TierPlaylistName(baseName string, tier int) string {
	return fmt.Sprintf("%s_%dp.m3u8", baseName, tier)
}

func MasterPlaylistName(baseName string) string {
	return baseName + ".m3u8"
}

func segmentPattern(baseName string, tier int) string {
	return fmt.Sprintf("%s_%dp_%%03d.ts", baseName, tier)
}

type Encoder struct {
	Process   Process
	Validator *Validator
	Tiers     []Tier
	Timeout   time.Duration

	// RetryDelay is the pause before the single re-encode attempt.
	RetryDelay time.Duration
}

func NewEncoder(process Process, timeout time.Duration) *Encoder {
	return &Encoder{
		Process:    process,
		Validator:  NewValidator(Tiers),
		Tiers:      Tiers,
		Timeout:    timeout,
		RetryDelay: 2 * time.Second,
	}
}

func (e *Encoder) tierArgs(sourcePath, outputDir, baseName string, t Tier) []string {
	return []string{
		"-y",
		"-threads", "1",
		"-i", sourcePath,
		"-preset", "fast",
		"-vf", fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease,pad=ceil(iw/2)*2:ceil(ih/2)*2", t.Width, t.Height),
		"-c:a", "aac",
		"-ar", "48000",
		"-b:a", t.AudioRate,
		"-c:v", "h264",
		"-profile:v", t.Profile,
		"-crf", "20",
		"-g", "48",
		"-keyint_min", "48",
		"-sc_threshold", "0",
		"-b:v", t.VideoBitrate,
		"-maxrate", t.MaxRate,
		"-bufsize", t.BufSize,
		"-f", "hls",
		"-hls_time", segmentSeconds,
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outputDir, segmentPattern(baseName, t.Height)),
		filepath.Join(outputDir, TierPlaylistName(baseName, t.Height)),
	}
}

// Encode runs the encoder once per tier and then writes the master playlist.
// It only writes under outputDir and never touches the source.
func (e *Encoder) Encode(ctx context.Context, sourcePath, outputDir, baseName string) (string, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		return "", errors.Join(ErrEncodeFailure, fmt.Errorf("create output dir: %w", err))
	}

	for _, t := range e.Tiers {
		args := e.tierArgs(sourcePath, outputDir, baseName, t)
		zerolog.Ctx(ctx).Debug().Int("tier", t.Height).Str("args", strings.Join(args, " ")).Msg("executing ffmpeg")

		result, err := e.Process.Run(ctx, args)
		if err != nil {
			zerolog.Ctx(ctx).Error().Int("tier", t.Height).Int("exit_code", result.ExitCode).
				Str("output", tail(result.Output, 20)).Msg("ffmpeg execution failed")
			return "", &EncodeError{
				Tier:     t.Height,
				ExitCode: result.ExitCode,
				Output:   tail(result.Output, 20),
				Err:      err,
			}
		}
		zerolog.Ctx(ctx).Info().Int("tier", t.Height).Str("base_name", baseName).Msg("tier encoded")
	}

	return writeMasterPlaylist(outputDir, baseName, e.Tiers)
}

// Transcode encodes and validates, retrying the whole rendition once. The output
// directory is cleared before the retry so tiers from two attempts never mix.
func (e *Encoder) Transcode(ctx context.Context, sourcePath, outputDir, baseName string) (string, error) {
	attempt := 0
	operation := func() (string, error) {
		attempt++
		if attempt > 1 {
			if err := os.RemoveAll(outputDir); err != nil {
				return "", backoff.Permanent(err)
			}
		}

		master, err := e.Encode(ctx, sourcePath, outputDir, baseName)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(errors.Join(err, ctx.Err()))
			}
			return "", err
		}
		if err := e.Validator.ValidateAll(outputDir, baseName); err != nil {
			return "", err
		}
		return master, nil
	}

	notify := func(err error, next time.Duration) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("base_name", baseName).Dur("retry_in", next).Msg("rendition attempt failed, retrying")
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(e.RetryDelay)),
		backoff.WithMaxTries(2),
		backoff.WithNotify(notify),
	)
}

func MasterPlaylist(baseName string, tiers []Tier) string {
	var contentBuilder strings.Builder
	contentBuilder.WriteString("#EXTM3U\n")
	for _, t := range tiers {
		contentBuilder.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", t.Bandwidth, t.Width, t.Height))
		contentBuilder.WriteString(TierPlaylistName(baseName, t.Height) + "\n")
	}
	return contentBuilder.String()
}

func writeMasterPlaylist(outputDir, baseName string, tiers []Tier) (string, error) {
	masterPlaylistPath := filepath.Join(outputDir, MasterPlaylistName(baseName))
	if err := os.WriteFile(masterPlaylistPath, []byte(MasterPlaylist(baseName, tiers)), 0644); err != nil {
		return "", errors.Join(ErrEncodeFailure, fmt.Errorf("write master playlist: %w", err))
	}
	return masterPlaylistPath, nil
}
