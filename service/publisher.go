package service

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
)

// Publisher mirrors a finished rendition directory somewhere outside the local disk.
type Publisher interface {
	Publish(ctx context.Context, localDir, baseName string) error
	Remove(ctx context.Context, baseName string) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, string) error { return nil }
func (NoopPublisher) Remove(context.Context, string) error          { return nil }

type ObjectPublisher struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewObjectPublisher(client *minio.Client, bucket, prefix string) *ObjectPublisher {
	return &ObjectPublisher{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

func (p *ObjectPublisher) objectPrefix(baseName string) string {
	return path.Join(p.prefix, baseName) + "/"
}

// Publish replaces the mirrored copy of baseName with the contents of localDir.
func (p *ObjectPublisher) Publish(ctx context.Context, localDir, baseName string) error {
	if err := p.Remove(ctx, baseName); err != nil {
		return err
	}
	remotePrefix := p.objectPrefix(baseName)
	zerolog.Ctx(ctx).Info().Str("bucket", p.bucket).Str("prefix", remotePrefix).Msg("upload rendition")
	return uploadDirectory(ctx, p.client, p.bucket, localDir, remotePrefix)
}

func (p *ObjectPublisher) Remove(ctx context.Context, baseName string) error {
	objects := p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{
		Prefix:    p.objectPrefix(baseName),
		Recursive: true,
	})
	for object := range objects {
		if object.Err != nil {
			return object.Err
		}
		if err := p.client.RemoveObject(ctx, p.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func uploadDirectory(ctx context.Context, client *minio.Client, bucket, localPath, remotePrefix string) error {
	return filepath.Walk(localPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		relativePath, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}

		objectName := remotePrefix + filepath.ToSlash(relativePath)

		_, uploadErr := client.FPutObject(ctx, bucket, objectName, path, minio.PutObjectOptions{
			ContentType: contentType(path),
		})
		return uploadErr
	})
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	default:
		return "application/octet-stream"
	}
}
