package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Prober checks that a source is a playable video before any encode is attempted.
type Prober interface {
	Probe(ctx context.Context, path string) (float64, error)
}

type FFprobe struct {
	Process Process
}

func NewFFprobe(process Process) *FFprobe {
	return &FFprobe{Process: process}
}

// Probe returns the container duration in seconds. Any failure, or a non-positive
// duration, is reported as ErrInvalidSource.
func (p *FFprobe) Probe(ctx context.Context, path string) (float64, error) {
	result, err := p.Process.Run(ctx, []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errors.Join(ErrInvalidSource, fmt.Errorf("ffprobe: %w: %s", err, tail(result.Output, 5)))
	}

	raw := strings.TrimSpace(string(result.Output))
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Join(ErrInvalidSource, fmt.Errorf("ffprobe duration %q: %w", raw, err))
	}
	if duration <= 0 {
		return 0, errors.Join(ErrInvalidSource, fmt.Errorf("ffprobe duration %v", duration))
	}
	return duration, nil
}
