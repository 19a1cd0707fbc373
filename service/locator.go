package service

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"worker-hls/entities"
)

type OwnerFinder interface {
	FindOwner(ctx context.Context, target entities.Target, fileName string) (*entities.OwningRecord, error)
}

// Locator maps bare file names to files under the upload root and to their owning row.
type Locator struct {
	UploadDir    string
	Targets      []entities.Target
	Owners       OwnerFinder
	Retries      int
	InitialDelay time.Duration
}

// Locate finds fileName under UploadDir, ignoring case. Direct children are tried first,
// then the tree is walked in lexical order; dot-directories are skipped.
func (l *Locator) Locate(fileName string) (string, bool) {
	name := filepath.Base(fileName)
	if name == "." || name == string(filepath.Separator) {
		return "", false
	}

	direct := filepath.Join(l.UploadDir, name)
	if info, err := os.Stat(direct); err == nil && info.Mode().IsRegular() {
		return direct, true
	}

	var found string
	_ = filepath.WalkDir(l.UploadDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == l.UploadDir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != l.UploadDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(d.Name(), name) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	return found, found != ""
}

// FindOwner checks each target in declaration order and returns the first hit.
// Targets that fail are logged; their errors are returned only if nothing matched.
func (l *Locator) FindOwner(ctx context.Context, fileName string) (*entities.OwningRecord, error) {
	name := filepath.Base(fileName)
	var errs []error
	for _, target := range l.Targets {
		owner, err := l.Owners.FindOwner(ctx, target, name)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("table", target.Table).Str("file", name).Msg("owner lookup failed")
			errs = append(errs, err)
			continue
		}
		if owner != nil {
			return owner, nil
		}
	}
	return nil, errors.Join(errs...)
}

// ResolveOwner retries FindOwner with exponential backoff, since the owning row may be
// committed after the file lands. It returns ErrOwnerNotFound once the attempts run out.
func (l *Locator) ResolveOwner(ctx context.Context, fileName string) (*entities.OwningRecord, error) {
	operation := func() (*entities.OwningRecord, error) {
		owner, err := l.FindOwner(ctx, fileName)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			return nil, ErrOwnerNotFound
		}
		return owner, nil
	}

	bo := backoff.NewExponentialBackOff()
	if l.InitialDelay > 0 {
		bo.InitialInterval = l.InitialDelay
	}
	bo.MaxInterval = 30 * time.Second

	tries := l.Retries
	if tries < 1 {
		tries = 1
	}
	notify := func(err error, next time.Duration) {
		zerolog.Ctx(ctx).Info().Err(err).Str("file", fileName).Dur("retry_in", next).Msg("owner not resolved yet")
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithNotify(notify),
	)
}
