// Package blob stores uploaded files (student and driver photos) and returns
// their public URL.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"school_bus/internal/apperr"
)

// Uploader writes r to objectPath and returns the URL it is served from.
type Uploader interface {
	Upload(ctx context.Context, objectPath string, r io.Reader, contentType string) (string, error)
}

// ObjectPath builds "<org>/<kind>/<id>/<uuid><ext>". ext comes from the
// uploaded file name and is lower-cased.
func ObjectPath(org, kind, id, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join(org, kind, id, uuid.NewString()+ext)
}

// GCS uploads to a Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

func NewGCS(client *storage.Client, bucket string) *GCS {
	return &GCS{client: client, bucket: bucket}
}

func (g *GCS) Upload(ctx context.Context, objectPath string, r io.Reader, contentType string) (string, error) {
	w := g.client.Bucket(g.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=86400"

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", apperr.Upstream(err, "failed to upload %s", objectPath)
	}
	if err := w.Close(); err != nil {
		return "", apperr.Upstream(err, "failed to finalize upload of %s", objectPath)
	}

	url := PublicURL(g.bucket, objectPath)
	logrus.WithFields(logrus.Fields{
		"bucket": g.bucket,
		"object": objectPath,
	}).Info("Uploaded object")
	return url, nil
}

// PublicURL is the storage.googleapis.com address of an object.
func PublicURL(bucket, objectPath string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, objectPath)
}

// Disabled rejects every upload. It is used when no bucket is configured.
type Disabled struct{}

func (Disabled) Upload(context.Context, string, io.Reader, string) (string, error) {
	return "", apperr.Upstream(nil, "blob storage is not configured")
}

// Memory keeps uploads in memory. Tests and local runs use it.
type Memory struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{Objects: map[string][]byte{}}
}

func (m *Memory) Upload(_ context.Context, objectPath string, r io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", apperr.Upstream(err, "failed to read upload")
	}
	m.mu.Lock()
	m.Objects[objectPath] = data
	m.mu.Unlock()
	return "memory://" + objectPath, nil
}
