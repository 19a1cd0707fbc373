package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"worker-hls/entities"
)

// fakeFFmpeg writes the playlist and two segments an HLS encode of one tier would produce.
type fakeFFmpeg struct {
	mu       sync.Mutex
	calls    [][]string
	failures map[int]int
	delay    time.Duration
	noSegs   bool
	firstRun func()

	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakeFFmpeg() *fakeFFmpeg {
	return &fakeFFmpeg{failures: make(map[int]int)}
}

func (f *fakeFFmpeg) failTier(tier, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[tier] = times
}

func (f *fakeFFmpeg) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFFmpeg) Run(ctx context.Context, args []string) (ProcessResult, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.maxActive.Load()
		if n <= peak || f.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}

	playlist := args[len(args)-1]
	pattern := argAfter(args, "-hls_segment_filename")
	tier := tierOf(playlist)

	f.mu.Lock()
	first := len(f.calls) == 0
	f.calls = append(f.calls, append([]string(nil), args...))
	fail := f.failures[tier] > 0
	if fail {
		f.failures[tier]--
	}
	f.mu.Unlock()
	if first && f.firstRun != nil {
		f.firstRun()
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ProcessResult{ExitCode: -1}, ctx.Err()
		}
	}
	if fail {
		return ProcessResult{ExitCode: 1, Output: []byte("frame=0\nconversion failed\n")}, errors.New("exit status 1")
	}

	var body strings.Builder
	body.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n#EXT-X-PLAYLIST-TYPE:VOD\n")
	for i := 0; i < 2; i++ {
		segment := fmt.Sprintf(pattern, i)
		if !f.noSegs {
			if err := os.WriteFile(segment, []byte("ts"), 0644); err != nil {
				return ProcessResult{ExitCode: 1}, err
			}
		}
		body.WriteString("#EXTINF:10.000000,\n" + filepath.Base(segment) + "\n")
	}
	body.WriteString("#EXT-X-ENDLIST\n")
	if err := os.WriteFile(playlist, []byte(body.String()), 0644); err != nil {
		return ProcessResult{ExitCode: 1}, err
	}
	return ProcessResult{}, nil
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// tierOf extracts 720 from ".../clip_720p.m3u8".
func tierOf(playlist string) int {
	name := strings.TrimSuffix(filepath.Base(playlist), ".m3u8")
	i := strings.LastIndex(name, "_")
	if i < 0 {
		return 0
	}
	tier, _ := strconv.Atoi(strings.TrimSuffix(name[i+1:], "p"))
	return tier
}

type fakeProber struct {
	mu      sync.Mutex
	invalid map[string]bool
	probed  []string
}

func (p *fakeProber) Probe(_ context.Context, path string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = append(p.probed, path)
	if p.invalid[filepath.Base(path)] {
		return 0, errors.Join(ErrInvalidSource, errors.New("moov atom not found"))
	}
	return 12.5, nil
}

type scriptedProcess struct {
	output   string
	exitCode int
	err      error
	args     []string
}

func (p *scriptedProcess) Run(_ context.Context, args []string) (ProcessResult, error) {
	p.args = args
	return ProcessResult{ExitCode: p.exitCode, Output: []byte(p.output)}, p.err
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]entities.ProcessedEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]entities.ProcessedEntry)}
}

func (s *memoryStore) Get(fileName string) (entities.ProcessedEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[strings.ToLower(filepath.Base(fileName))]
	return entry, ok
}

func (s *memoryStore) IsCurrent(asset entities.VideoAsset) bool {
	entry, ok := s.Get(asset.FileName)
	return ok && entry.Matches(asset)
}

func (s *memoryStore) Put(fileName string, entry entities.ProcessedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[strings.ToLower(filepath.Base(fileName))] = entry
	return nil
}

func (s *memoryStore) Delete(fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, strings.ToLower(filepath.Base(fileName)))
	return nil
}

func (s *memoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// exactCaseOwners only accepts an owner whose source column ends with the lookup name in
// the same case, like a LIKE on a case-sensitive collation.
type exactCaseOwners struct {
	inner OwnerFinder

	mu    sync.Mutex
	names []string
}

func (f *exactCaseOwners) FindOwner(ctx context.Context, target entities.Target, fileName string) (*entities.OwningRecord, error) {
	f.mu.Lock()
	f.names = append(f.names, fileName)
	f.mu.Unlock()

	owner, err := f.inner.FindOwner(ctx, target, fileName)
	if err != nil || owner == nil {
		return owner, err
	}
	if !strings.HasSuffix(owner.SourceValue, fileName) {
		return nil, nil
	}
	return owner, nil
}

func (f *exactCaseOwners) lookups() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

// scriptedMonitor replays results in order and repeats the last one. Stable results carry
// a fresh stat of the path. onWait runs before each result is returned.
type scriptedMonitor struct {
	results []StabilityResult
	onWait  func(call int, path string)

	mu    sync.Mutex
	calls int
}

func (m *scriptedMonitor) Wait(_ context.Context, path string) (StabilityResult, entities.VideoAsset) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()

	if m.onWait != nil {
		m.onWait(call, path)
	}
	result := m.results[min(call, len(m.results)-1)]
	if result != Stable {
		return result, entities.VideoAsset{}
	}
	asset, err := entities.StatAsset(path)
	if err != nil {
		return Unstable, entities.VideoAsset{}
	}
	return Stable, asset
}

func (m *scriptedMonitor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// hookPublisher runs onPublish in place of mirroring the rendition.
type hookPublisher struct {
	onPublish func()
}

func (p hookPublisher) Publish(context.Context, string, string) error {
	p.onPublish()
	return nil
}

func (hookPublisher) Remove(context.Context, string) error { return nil }
