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

	"github.com/flatbridge/flatbridge/internal/storage"
)

func TestStagingRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("FLATBRIDGE_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("FLATBRIDGE_TEST_S3_ENDPOINT is not set")
	}

	cfg := Config{
		Endpoint:         endpoint,
		Region:           envOr("FLATBRIDGE_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("FLATBRIDGE_TEST_S3_BUCKET", "flatbridge-it"),
		AccessKeyID:      envOr("FLATBRIDGE_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("FLATBRIDGE_TEST_S3_SECRET_KEY", "miniostorage"),
		UseSSL:           false,
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key, err := storage.BuildStagingKey("job-it", "roundtrip.csv")
	if err != nil {
		t.Fatalf("BuildStagingKey() error = %v", err)
	}
	payload := []byte("id,name\n1,Alice\n")

	if _, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "text/csv"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	reader, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	readPayload, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("reader.Close() error = %v", err)
	}
	if !bytes.Equal(readPayload, payload) {
		t.Fatalf("Open() payload = %q, want %q", string(readPayload), string(payload))
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Open(ctx, key); !errors.Is(err, storage.ErrObjectNotFound) {
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
