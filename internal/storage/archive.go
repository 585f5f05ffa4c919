package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	metadataUsername = "autosql-username"
	metadataFilename = "autosql-filename"
)

// Upload is one archived source file as shown to its owner.
type Upload struct {
	Key        string    `json:"key"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Archiver keeps a copy of every uploaded source file in an object store,
// scoped per user.
type Archiver struct {
	store ObjectStore
	now   func() time.Time
}

func NewArchiver(store ObjectStore) *Archiver {
	return &Archiver{store: store, now: time.Now}
}

func (a *Archiver) Archive(ctx context.Context, username, filename string, data []byte, contentType string) (Upload, error) {
	if a == nil || a.store == nil {
		return Upload{}, fmt.Errorf("archive store is not configured")
	}
	uploadedAt := a.now().UTC()
	key, err := BuildUploadPath(username, filename, uploadedAt, uuid.NewString())
	if err != nil {
		return Upload{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			metadataUsername: username,
			metadataFilename: filename,
		},
	})
	if err != nil {
		return Upload{}, fmt.Errorf("archive upload %q: %w", key, err)
	}
	return Upload{Key: key, Filename: UploadFilename(key), Size: info.Size, UploadedAt: uploadedAt}, nil
}

// List returns the user's archived uploads, newest first.
func (a *Archiver) List(ctx context.Context, username string) ([]Upload, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("archive store is not configured")
	}
	prefix, err := UserUploadPrefix(username)
	if err != nil {
		return nil, err
	}
	objects, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}

	uploads := make([]Upload, 0, len(objects))
	for _, object := range objects {
		uploads = append(uploads, Upload{
			Key:        object.Key,
			Filename:   UploadFilename(object.Key),
			Size:       object.Size,
			UploadedAt: object.LastModified.UTC(),
		})
	}
	sort.SliceStable(uploads, func(i, j int) bool {
		if uploads[i].UploadedAt.Equal(uploads[j].UploadedAt) {
			return uploads[i].Key > uploads[j].Key
		}
		return uploads[i].UploadedAt.After(uploads[j].UploadedAt)
	})
	return uploads, nil
}

// Open streams an archived upload back. Keys outside the user's own prefix
// report ErrObjectNotFound.
func (a *Archiver) Open(ctx context.Context, username, key string) (io.ReadCloser, Upload, error) {
	if a == nil || a.store == nil {
		return nil, Upload{}, fmt.Errorf("archive store is not configured")
	}
	if err := ownsKey(username, key); err != nil {
		return nil, Upload{}, err
	}
	reader, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, Upload{}, err
	}
	return reader, Upload{Key: key, Filename: UploadFilename(key)}, nil
}

func (a *Archiver) Delete(ctx context.Context, username, key string) error {
	if a == nil || a.store == nil {
		return fmt.Errorf("archive store is not configured")
	}
	if err := ownsKey(username, key); err != nil {
		return err
	}
	return a.store.Delete(ctx, key)
}

func ownsKey(username, key string) error {
	prefix, err := UserUploadPrefix(username)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(key, prefix) || strings.Contains(key, "..") {
		return ErrObjectNotFound
	}
	return nil
}
