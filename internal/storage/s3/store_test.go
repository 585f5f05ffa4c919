package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autosql/autosql/internal/config"
	"github.com/autosql/autosql/internal/storage"
)

func TestPutPrefixesKeyAndForwardsMetadata(t *testing.T) {
	fake := newFakeBucket()
	store, err := newStore("bucket-a", "/autosql/prod/", fake)
	require.NoError(t, err)

	info, err := store.Put(context.Background(), "/alice/uploads/date=2026-02-19/u1-sales.csv", bytes.NewBufferString("abc"), 3, storage.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"autosql-username": "alice"},
	})
	require.NoError(t, err)

	assert.Equal(t, "bucket-a", fake.lastBucket)
	assert.Equal(t, "text/csv", fake.lastOpts.ContentType)
	assert.Equal(t, "alice", fake.lastOpts.Metadata["autosql-username"])
	assert.Contains(t, fake.objects, "autosql/prod/alice/uploads/date=2026-02-19/u1-sales.csv")
	assert.Equal(t, "alice/uploads/date=2026-02-19/u1-sales.csv", info.Key)
}

func TestObjectKeyRejectsTraversal(t *testing.T) {
	store, err := newStore("bucket-a", "", newFakeBucket())
	require.NoError(t, err)

	for _, key := range []string{"", "/", "../secrets.txt", "alice/../../etc/passwd", ".."} {
		_, err := store.Put(context.Background(), key, strings.NewReader("x"), 1, storage.PutOptions{})
		assert.Error(t, err, "key %q", key)
	}
}

func TestListStripsStorePrefix(t *testing.T) {
	fake := newFakeBucket()
	store, err := newStore("bucket-a", "archive", fake)
	require.NoError(t, err)

	ctx := context.Background()
	for _, key := range []string{"alice/uploads/a.csv", "alice/uploads/b.csv", "bob/uploads/c.csv"} {
		_, err := store.Put(ctx, key, strings.NewReader("1"), 1, storage.PutOptions{})
		require.NoError(t, err)
	}

	objects, err := store.List(ctx, "alice/uploads/")
	require.NoError(t, err)
	keys := make([]string, 0, len(objects))
	for _, object := range objects {
		keys = append(keys, object.Key)
	}
	assert.ElementsMatch(t, []string{"alice/uploads/a.csv", "alice/uploads/b.csv"}, keys)

	_, err = store.List(ctx, "../")
	assert.Error(t, err)
}

func TestGetMapsMissingObject(t *testing.T) {
	store, err := newStore("bucket-a", "", newFakeBucket())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "alice/uploads/missing.csv")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestDeleteIgnoresMissingObject(t *testing.T) {
	fake := newFakeBucket()
	fake.removeErr = storage.ErrObjectNotFound
	store, err := newStore("bucket-a", "", fake)
	require.NoError(t, err)

	assert.NoError(t, store.Delete(context.Background(), "alice/uploads/missing.csv"))
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := newFakeBucket()
	store, err := newStore("bucket-a", "", fake)
	require.NoError(t, err)

	require.NoError(t, store.ensureBucket(context.Background(), "us-east-1"))
	assert.Equal(t, "us-east-1", fake.madeRegion)
}

func TestNewStoreValidation(t *testing.T) {
	_, err := newStore("", "", newFakeBucket())
	assert.Error(t, err)
	_, err = newStore("bucket", "", nil)
	assert.Error(t, err)
	_, err = New(context.Background(), Config{Bucket: "b"})
	assert.Error(t, err)
}

func TestConfigFromObjectStoreSettings(t *testing.T) {
	cfg := ConfigFrom(config.ObjectStoreConfig{
		Endpoint:         " localhost:9000 ",
		Region:           "us-east-1",
		Bucket:           "autosql-uploads",
		AccessKeyID:      "minio",
		SecretAccessKey:  "miniostorage",
		Prefix:           "/archive/",
		AutoCreateBucket: true,
	})
	assert.Equal(t, "localhost:9000", cfg.Endpoint)
	assert.Equal(t, "autosql-uploads", cfg.Bucket)
	assert.Equal(t, "/archive/", cfg.Prefix)
	assert.True(t, cfg.AutoCreateBucket)
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw      string
		useSSL   bool
		endpoint string
		secure   bool
	}{
		{raw: "https://minio.example.com", endpoint: "minio.example.com", secure: true},
		{raw: "http://localhost:9000", endpoint: "localhost:9000"},
		{raw: "localhost:9000", useSSL: true, endpoint: "localhost:9000", secure: true},
	}
	for _, tc := range tests {
		endpoint, secure, err := parseEndpoint(tc.raw, tc.useSSL)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.endpoint, endpoint, tc.raw)
		assert.Equal(t, tc.secure, secure, tc.raw)
	}
	_, _, err := parseEndpoint("http://", false)
	assert.Error(t, err)
}

type fakeBucket struct {
	objects    map[string][]byte
	lastBucket string
	lastOpts   storage.PutOptions
	removeErr  error
	madeRegion string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}}
}

func (f *fakeBucket) PutObject(_ context.Context, bucket, key string, reader io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.lastBucket = bucket
	f.lastOpts = opts
	f.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data)), LastModified: time.Now().UTC()}, nil
}

func (f *fakeBucket) GetObject(_ context.Context, _, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBucket) ListObjects(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for key, data := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (f *fakeBucket) RemoveObject(_ context.Context, _, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeBucket) BucketExists(context.Context, string) (bool, error) {
	return false, nil
}

func (f *fakeBucket) MakeBucket(_ context.Context, _, region string) error {
	f.madeRegion = region
	return nil
}
