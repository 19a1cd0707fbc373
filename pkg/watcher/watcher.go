// Package watcher turns filesystem events under the upload root into create, modify and
// delete callbacks for video files.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"worker-hls/constant"
	"worker-hls/pkg/metrics"
)

type Handler interface {
	OnCreate(ctx context.Context, path string)
	OnModify(ctx context.Context, path string)
	OnDelete(ctx context.Context, path string)
}

// Watcher watches Root and every directory up to Depth levels below it. Dot-files and
// dot-directories are ignored, as is anything that is not a recognized video file.
type Watcher struct {
	Root    string
	Depth   int
	Handler Handler

	fsw *fsnotify.Watcher
}

func New(root string, depth int, handler Handler) *Watcher {
	return &Watcher{
		Root:    root,
		Depth:   depth,
		Handler: handler,
	}
}

// Start registers the watch set. Events are not delivered until Run is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	if err := os.MkdirAll(w.Root, os.ModePerm); err != nil {
		fsw.Close()
		return err
	}
	if err := w.addTree(ctx, w.Root, false); err != nil {
		fsw.Close()
		return err
	}
	zerolog.Ctx(ctx).Info().Str("root", w.Root).Int("depth", w.Depth).Msg("watching uploads")
	return nil
}

// Run delivers events to Handler until ctx is done. It calls Start if needed.
func (w *Watcher) Run(ctx context.Context) error {
	if w.fsw == nil {
		if err := w.Start(ctx); err != nil {
			return err
		}
	}
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			zerolog.Ctx(ctx).Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if ignored(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(ctx, event.Name, true); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("dir", event.Name).Msg("failed to watch new directory")
			}
			return
		}
	}

	if !constant.IsVideoFile(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		metrics.WatchEventsTotal.WithLabelValues("create").Inc()
		w.Handler.OnCreate(ctx, event.Name)
	case event.Has(fsnotify.Write):
		metrics.WatchEventsTotal.WithLabelValues("modify").Inc()
		w.Handler.OnModify(ctx, event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		metrics.WatchEventsTotal.WithLabelValues("delete").Inc()
		w.Handler.OnDelete(ctx, event.Name)
	}
}

// addTree watches dir and its subdirectories within Depth. When announce is set, video
// files already inside are reported as created, covering directories moved in whole.
func (w *Watcher) addTree(ctx context.Context, dir string, announce bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if path != w.Root && ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.IsDir() {
			if announce && constant.IsVideoFile(path) {
				w.Handler.OnCreate(ctx, path)
			}
			return nil
		}

		if w.depthOf(path) > w.Depth {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		return nil
	})
}

// depthOf counts path components between Root and path; Root itself is 0.
func (w *Watcher) depthOf(path string) int {
	rel, err := filepath.Rel(w.Root, path)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

func ignored(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
