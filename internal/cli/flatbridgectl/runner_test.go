package flatbridgectl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunTablesSendsConnectionFlags(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tables":["users"]}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-driver", "postgres",
		"-host", "db",
		"-port", "5432",
		"tables",
	}, Options{Stdout: &stdout, Stderr: &stderr, Timeout: 2 * time.Second})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/tables" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotBody["driver"] != "postgres" || gotBody["host"] != "db" || gotBody["port"] != float64(5432) {
		t.Fatalf("body = %v", gotBody)
	}
	if !strings.Contains(stdout.String(), `"users"`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunPreviewAddsLimitAndColumns(t *testing.T) {
	var gotPath, gotLimit string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLimit = r.URL.Query().Get("limit")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"rows":[]}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"-base-url", srv.URL, "-limit", "5", "-columns", "id, name", "preview", "users"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotPath != "/v1/preview/users" || gotLimit != "5" {
		t.Fatalf("path = %s limit = %s", gotPath, gotLimit)
	}
	cols, _ := gotBody["selectedColumns"].([]any)
	if len(cols) != 2 || cols[1] != "name" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestRunExportWithJoin(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ingest/store-to-file" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ingestionId":"job-1","status":"STARTED"}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-delimiter", "|",
		"-join-table", "orders",
		"-join-condition", "users.id = orders.user_id",
		"export", "users", "/tmp/users.csv",
	}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	join, _ := gotBody["joinConfig"].(map[string]any)
	if gotBody["tableName"] != "users" || gotBody["filePath"] != "/tmp/users.csv" || gotBody["delimiter"] != "|" {
		t.Fatalf("body = %v", gotBody)
	}
	if join["table"] != "orders" || join["condition"] != "users.id = orders.user_id" {
		t.Fatalf("joinConfig = %v", join)
	}
}

func TestRunImportUploadsFileAndWaits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.csv")
	if err := os.WriteFile(path, []byte("id,name\n1,A\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var polls atomic.Int32
	var gotFile, gotTable, gotFileName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/ingest/file-to-store":
			file, header, err := r.FormFile("file")
			if err != nil {
				t.Errorf("FormFile() error = %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(file)
			gotFile = string(data)
			gotFileName = header.Filename
			gotTable = r.FormValue("tableName")
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"ingestionId":"job-7","status":"STARTED"}`))
		case "/v1/ingest/status/job-7":
			if polls.Add(1) < 2 {
				_, _ = w.Write([]byte(`{"ingestionId":"job-7","status":"IN_PROGRESS"}`))
				return
			}
			_, _ = w.Write([]byte(`{"ingestionId":"job-7","status":"COMPLETED","totalRecords":1}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-wait", "import", path, "people"}, Options{
		Stdout:       &stdout,
		Stderr:       &stderr,
		PollInterval: 5 * time.Millisecond,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotFile != "id,name\n1,A\n" || gotTable != "people" || gotFileName != "people.csv" {
		t.Fatalf("upload file=%q table=%q name=%q", gotFile, gotTable, gotFileName)
	}
	if polls.Load() != 2 {
		t.Fatalf("polls = %d", polls.Load())
	}
	if !strings.Contains(stdout.String(), "COMPLETED") {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunWaitReturnsErrorForFailedJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"ingestionId":"job-3","status":"STARTED"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ingestionId":"job-3","status":"FAILED","message":"Error: boom"}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"-base-url", srv.URL, "-wait", "export", "users", "/tmp/out.csv"}, Options{PollInterval: time.Millisecond})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunWaitStopsOnMalformedStatus(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"ingestionId":"job-4","status":"STARTED"}`))
			return
		}
		polls.Add(1)
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-wait", "export", "users", "/tmp/out.csv"}, Options{
		Stderr:       &stderr,
		PollInterval: time.Millisecond,
	})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if polls.Load() != 1 {
		t.Fatalf("polls = %d, want 1", polls.Load())
	}
	if !strings.Contains(stderr.String(), "decode job status") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunStatusCommand(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"status":"COMPLETED"}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"-base-url", srv.URL, "status", "job-1"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotMethod != http.MethodGet || gotPath != "/v1/ingest/status/job-1" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error_code":"JOB_NOT_FOUND"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "status", "missing"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "JOB_NOT_FOUND") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunMissingOperand(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"schema"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "<table>") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"unknown"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	if stderr.Len() == 0 {
		t.Fatal("expected usage output")
	}
}
