package entities

import (
	"os"
	"path/filepath"
	"time"

	"worker-hls/constant"
)

type VideoAsset struct {
	Path     string
	FileName string
	BaseName string
	Size     int64
	ModTime  time.Time
}

func NewVideoAsset(path string, info os.FileInfo) VideoAsset {
	return VideoAsset{
		Path:     path,
		FileName: filepath.Base(path),
		BaseName: constant.BaseName(path),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}
}

// StatAsset reads the current on-disk stat of path.
func StatAsset(path string) (VideoAsset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return VideoAsset{}, err
	}
	return NewVideoAsset(path, info), nil
}
