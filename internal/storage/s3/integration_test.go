//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/autosql/autosql/internal/storage"
)

func TestArchiverRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("AUTOSQL_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("AUTOSQL_TEST_S3_ENDPOINT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, Config{
		Endpoint:         endpoint,
		Region:           envOr("AUTOSQL_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("AUTOSQL_TEST_S3_BUCKET", "autosql-it"),
		AccessKeyID:      envOr("AUTOSQL_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("AUTOSQL_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	archiver := storage.NewArchiver(store)

	username := "it-" + time.Now().UTC().Format("20060102150405")
	payload := []byte("user,total\n1,2\n")
	upload, err := archiver.Archive(ctx, username, "roundtrip.csv", payload, "text/csv")
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	uploads, err := archiver.List(ctx, username)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(uploads) != 1 || uploads[0].Key != upload.Key || uploads[0].Filename != "roundtrip.csv" {
		t.Fatalf("List() = %#v", uploads)
	}

	reader, _, err := archiver.Open(ctx, username, upload.Key)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	readPayload, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}
	if !bytes.Equal(readPayload, payload) {
		t.Fatalf("payload = %q, want %q", readPayload, payload)
	}

	if err := archiver.Delete(ctx, username, upload.Key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, _, err := archiver.Open(ctx, username, upload.Key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Open() after delete error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
