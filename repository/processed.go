package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"worker-hls/constant"
	"worker-hls/entities"
)

// ProcessedStore is the durable "this source already has a valid rendition" cache.
// It is safe to delete the backing file at any time.
type ProcessedStore interface {
	Get(fileName string) (entities.ProcessedEntry, bool)
	IsCurrent(asset entities.VideoAsset) bool
	Put(fileName string, entry entities.ProcessedEntry) error
	Delete(fileName string) error
	Len() int
}

type fileStore struct {
	path    string
	mu      sync.Mutex
	entries map[string]entities.ProcessedEntry
}

// OpenProcessedStore loads path; a missing or unreadable file yields an empty store.
// The returned error is informational and the store is always usable.
func OpenProcessedStore(path string) (ProcessedStore, error) {
	s := &fileStore{
		path:    path,
		entries: make(map[string]entities.ProcessedEntry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("read processed state: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		s.entries = make(map[string]entities.ProcessedEntry)
		return s, fmt.Errorf("decode processed state: %w", err)
	}
	return s, nil
}

func (s *fileStore) Get(fileName string) (entities.ProcessedEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[constant.NormalizeName(fileName)]
	return entry, ok
}

func (s *fileStore) IsCurrent(asset entities.VideoAsset) bool {
	entry, ok := s.Get(asset.FileName)
	return ok && entry.Matches(asset)
}

func (s *fileStore) Put(fileName string, entry entities.ProcessedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[constant.NormalizeName(fileName)] = entry
	return s.flush()
}

func (s *fileStore) Delete(fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := constant.NormalizeName(fileName)
	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	return s.flush()
}

func (s *fileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// flush replaces the file atomically via a temp file in the same directory.
func (s *fileStore) flush() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), os.ModePerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
