package service

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"worker-hls/config"
	"worker-hls/entities"
)

type StabilityResult int

const (
	Stable StabilityResult = iota
	Unstable
	TimedOut
)

func (r StabilityResult) String() string {
	switch r {
	case Stable:
		return "stable"
	case Unstable:
		return "unstable"
	default:
		return "timed_out"
	}
}

const (
	mediumFileSize = 100 << 20
	largeFileSize  = 1 << 30
)

// StabilityChecker waits for an upload to stop changing before it is processed.
type StabilityChecker interface {
	Wait(ctx context.Context, path string) (StabilityResult, entities.VideoAsset)
}

// StabilityMonitor decides when an upload has finished being written by watching
// its size settle across consecutive samples.
type StabilityMonitor struct {
	Interval     time.Duration
	MaxWait      time.Duration
	SmallChecks  int
	MediumChecks int
	LargeChecks  int
}

func NewStabilityMonitor(cfg config.Stability) *StabilityMonitor {
	m := &StabilityMonitor{
		Interval:     cfg.Interval,
		MaxWait:      cfg.MaxWait,
		SmallChecks:  cfg.SmallChecks,
		MediumChecks: cfg.MediumChecks,
		LargeChecks:  cfg.LargeChecks,
	}
	if m.SmallChecks < 1 {
		m.SmallChecks = 3
	}
	if m.MediumChecks < m.SmallChecks {
		m.MediumChecks = m.SmallChecks
	}
	if m.LargeChecks < m.MediumChecks {
		m.LargeChecks = m.MediumChecks
	}
	return m
}

// RequiredChecks is the number of consecutive unchanged samples needed for a file of size bytes.
func (m *StabilityMonitor) RequiredChecks(size int64) int {
	switch {
	case size >= largeFileSize:
		return m.LargeChecks
	case size >= mediumFileSize:
		return m.MediumChecks
	default:
		return m.SmallChecks
	}
}

// Wait samples path until its size holds for RequiredChecks samples in a row.
// It returns Unstable if the file disappears and TimedOut once MaxWait elapses or ctx ends.
// The asset carries the stat of the last sample.
func (m *StabilityMonitor) Wait(ctx context.Context, path string) (StabilityResult, entities.VideoAsset) {
	logger := zerolog.Ctx(ctx).With().Str("file", path).Logger()
	start := time.Now()
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	lastSize := int64(-1)
	matches := 0
	for {
		info, err := os.Stat(path)
		if err != nil {
			logger.Warn().Err(err).Msg("file vanished during stability check")
			return Unstable, entities.VideoAsset{}
		}
		asset := entities.NewVideoAsset(path, info)

		if asset.Size == lastSize {
			matches++
			required := m.RequiredChecks(asset.Size)
			logger.Debug().Int("check", matches).Int("required", required).Msg("file size stable")
			if matches >= required {
				return Stable, asset
			}
		} else {
			if lastSize >= 0 {
				logger.Debug().Int64("size", asset.Size).Msg("file size changed, resetting stable counter")
			}
			matches = 0
			lastSize = asset.Size
		}

		if time.Since(start) >= m.MaxWait {
			logger.Warn().Dur("max_wait", m.MaxWait).Msg("timeout waiting for file stability")
			return TimedOut, asset
		}

		select {
		case <-ctx.Done():
			return TimedOut, asset
		case <-ticker.C:
		}
	}
}
