package service

import (
	"errors"
	"fmt"
	"path/filepath"
)

var (
	ErrUnstableSource     = errors.New("source file is still changing")
	ErrInvalidSource      = errors.New("source is not a decodable video")
	ErrEncodeFailure      = errors.New("encoder failed")
	ErrValidationFailure  = errors.New("rendition incomplete on disk")
	ErrOwnerNotFound      = errors.New("no database row references the file")
	ErrPersistenceFailure = errors.New("failed to persist rendition pointer")
	ErrSourceNotFound     = errors.New("source file not found under upload root")
)

// EncodeError reports a non-zero exit of the encoder for one tier.
type EncodeError struct {
	Tier     int
	ExitCode int
	Output   string
	Err      error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %dp: exit code %d: %v", e.Tier, e.ExitCode, e.Err)
}

func (e *EncodeError) Unwrap() []error {
	return []error{ErrEncodeFailure, e.Err}
}

// Layout maps a base name to its rendition directory and database pointer.
type Layout struct {
	HLSDir        string
	PointerPrefix string
}

func (l Layout) RenditionDir(baseName string) string {
	return filepath.Join(l.HLSDir, baseName)
}

// Pointer is the value stored in the owning row, e.g. "/hls/clip.m3u8".
func (l Layout) Pointer(baseName string) string {
	return fmt.Sprintf("%s/%s.m3u8", l.PointerPrefix, baseName)
}
