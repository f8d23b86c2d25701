package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flatbridge/flatbridge/internal/storage"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(t.TempDir(), "staging")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	info, err := store.Put(ctx, "job-1/users.csv", strings.NewReader("id\n1\n"), -1, storage.PutOptions{})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Key != "job-1/users.csv" || info.Size != 5 {
		t.Fatalf("Put() info = %+v", info)
	}

	reader, err := store.Open(ctx, "job-1/users.csv")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	body, _ := io.ReadAll(reader)
	_ = reader.Close()
	if string(body) != "id\n1\n" {
		t.Fatalf("body = %q", body)
	}

	if err := store.Delete(ctx, "job-1/users.csv"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Open(ctx, "job-1/users.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Open() after delete error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "job-1")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("job dir still present: %v", err)
	}
	if err := store.Delete(ctx, "job-1/users.csv"); err != nil {
		t.Fatalf("Delete() of missing object error = %v", err)
	}
}

func TestStoreRejectsTraversal(t *testing.T) {
	store, err := New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := store.Put(context.Background(), "../escape.csv", strings.NewReader("x"), 1, storage.PutOptions{}); err == nil {
		t.Fatal("expected traversal error")
	}
}

func TestStorePutHonorsCancelledContext(t *testing.T) {
	store, err := New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "job-1/a.csv", strings.NewReader("x"), 1, storage.PutOptions{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if _, err := store.Open(context.Background(), "job-1/a.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Open() error = %v", err)
	}
}
