package entities

import "time"

// ProcessedEntry records that a source, at a given size and mtime, has a valid rendition.
type ProcessedEntry struct {
	Size        int64     `json:"size"`
	ModTime     int64     `json:"mtime"`
	Pointer     string    `json:"pointer"`
	ProcessedAt time.Time `json:"processed_at"`
}

func NewProcessedEntry(asset VideoAsset, pointer string) ProcessedEntry {
	return ProcessedEntry{
		Size:        asset.Size,
		ModTime:     asset.ModTime.UnixMilli(),
		Pointer:     pointer,
		ProcessedAt: time.Now().UTC(),
	}
}

// Matches reports whether the entry still describes the asset on disk.
func (e ProcessedEntry) Matches(asset VideoAsset) bool {
	return e.Size == asset.Size && e.ModTime == asset.ModTime.UnixMilli()
}
