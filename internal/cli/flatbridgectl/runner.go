package flatbridgectl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/flatbridge/flatbridge/internal/job"
)

type Options struct {
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
	HTTPClient   *http.Client
	Stdout       io.Writer
	Stderr       io.Writer
}

// connectionFlags mirror the connection fields accepted by every store call.
type connectionFlags struct {
	driver   string
	host     string
	port     int
	database string
	username string
	password string
	dsn      string
}

func (c connectionFlags) payload() map[string]any {
	body := map[string]any{}
	setIf := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			body[key] = strings.TrimSpace(value)
		}
	}
	setIf("driver", c.driver)
	setIf("host", c.host)
	setIf("database", c.database)
	setIf("username", c.username)
	setIf("password", c.password)
	setIf("dsn", c.dsn)
	if c.port > 0 {
		body["port"] = c.port
	}
	return body
}

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("flatbridgectl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "flatbridge API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 10s)")

	var conn connectionFlags
	fs.StringVar(&conn.driver, "driver", "", "store driver (duckdb or postgres)")
	fs.StringVar(&conn.host, "host", "", "store host")
	fs.IntVar(&conn.port, "port", 0, "store port")
	fs.StringVar(&conn.database, "database", "", "database name or DuckDB file path")
	fs.StringVar(&conn.username, "username", "", "store user")
	fs.StringVar(&conn.password, "password", "", "store password")
	fs.StringVar(&conn.dsn, "dsn", "", "full data source name, overrides the discrete fields")

	delimiter := fs.String("delimiter", "", "field delimiter (default ,)")
	limit := fs.Int("limit", 0, "preview row limit (0 uses the server default)")
	columns := fs.String("columns", "", "comma separated column list")
	joinTable := fs.String("join-table", "", "table joined during export")
	joinCondition := fs.String("join-condition", "", "join condition for -join-table")
	joinType := fs.String("join-type", "", "join type (default INNER JOIN)")
	format := fs.String("format", "", "export format: delimited or parquet")
	wait := fs.Bool("wait", false, "poll the job until it reaches a terminal state")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	operands := fs.Args()[1:]
	need := func(n int, usage string) bool {
		if len(operands) < n {
			_, _ = fmt.Fprintf(stderr, "usage: flatbridgectl [flags] %s %s\n", command, usage)
			return false
		}
		return true
	}

	var req request
	var err error
	switch command {
	case "health":
		req = request{method: http.MethodGet, path: "/v1/health"}
	case "ready":
		req = request{method: http.MethodGet, path: "/v1/ready"}
	case "test-connection":
		req, err = jsonRequest("/v1/connection/test", conn.payload())
	case "tables":
		req, err = jsonRequest("/v1/tables", conn.payload())
	case "schema":
		if !need(1, "<table>") {
			return 2
		}
		req, err = jsonRequest("/v1/schema/"+url.PathEscape(operands[0]), conn.payload())
	case "preview":
		if !need(1, "<table>") {
			return 2
		}
		body := conn.payload()
		if cols := splitList(*columns); len(cols) > 0 {
			body["selectedColumns"] = cols
		}
		path := "/v1/preview/" + url.PathEscape(operands[0])
		if *limit > 0 {
			path += "?limit=" + strconv.Itoa(*limit)
		}
		req, err = jsonRequest(path, body)
	case "preview-file":
		if !need(1, "<file>") {
			return 2
		}
		fields := map[string]string{"delimiter": *delimiter}
		if *limit > 0 {
			fields["limit"] = strconv.Itoa(*limit)
		}
		req, err = uploadRequest("/v1/preview-file", operands[0], fields)
	case "export":
		if !need(2, "<table> <output-path>") {
			return 2
		}
		body := conn.payload()
		body["tableName"] = operands[0]
		body["filePath"] = operands[1]
		if *delimiter != "" {
			body["delimiter"] = *delimiter
		}
		if *format != "" {
			body["format"] = *format
		}
		if cols := splitList(*columns); len(cols) > 0 {
			body["selectedColumns"] = cols
		}
		if strings.TrimSpace(*joinTable) != "" {
			body["joinConfig"] = map[string]string{
				"type":      *joinType,
				"table":     *joinTable,
				"condition": *joinCondition,
			}
		}
		req, err = jsonRequest("/v1/ingest/store-to-file", body)
	case "import":
		if !need(2, "<file> <table>") {
			return 2
		}
		payload, marshalErr := json.Marshal(conn.payload())
		if marshalErr != nil {
			err = marshalErr
			break
		}
		req, err = uploadRequest("/v1/ingest/file-to-store", operands[0], map[string]string{
			"request":   string(payload),
			"tableName": operands[1],
			"delimiter": *delimiter,
		})
	case "status":
		if !need(1, "<ingestion-id>") {
			return 2
		}
		req = request{method: http.MethodGet, path: "/v1/ingest/status/" + url.PathEscape(operands[0])}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "prepare request: %v\n", err)
		return 1
	}

	base := strings.TrimRight(*baseURL, "/")
	code, responseBody, err := doRequest(ctx, client, base, req)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if *wait && (command == "export" || command == "import") {
		return waitForJob(ctx, client, base, responseBody, durationOr(defaults.PollInterval, time.Second), stdout, stderr)
	}
	printBody(stdout, responseBody)
	return 0
}

// waitForJob polls the status endpoint until the job is COMPLETED or FAILED.
func waitForJob(ctx context.Context, client *http.Client, base string, accepted []byte, interval time.Duration, stdout, stderr io.Writer) int {
	var started job.Job
	if err := json.Unmarshal(accepted, &started); err != nil || started.ID == "" {
		_, _ = fmt.Fprintf(stderr, "response did not carry an ingestionId: %s\n", strings.TrimSpace(string(accepted)))
		return 1
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	statusReq := request{method: http.MethodGet, path: "/v1/ingest/status/" + url.PathEscape(started.ID)}
	for {
		code, body, err := doRequest(ctx, client, base, statusReq)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
			return 1
		}
		if code >= 400 {
			_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(body)))
			return 1
		}
		var status job.Job
		if err := json.Unmarshal(body, &status); err != nil {
			_, _ = fmt.Fprintf(stderr, "decode job status: %v: %s\n", err, strings.TrimSpace(string(body)))
			return 1
		}
		switch status.State {
		case "":
			_, _ = fmt.Fprintf(stderr, "job status response has no status: %s\n", strings.TrimSpace(string(body)))
			return 1
		case job.StateCompleted:
			printBody(stdout, body)
			return 0
		case job.StateFailed:
			printBody(stdout, body)
			return 1
		}

		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintf(stderr, "wait aborted: %v\n", ctx.Err())
			return 1
		case <-ticker.C:
		}
	}
}

func jsonRequest(path string, payload map[string]any) (request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return request{}, err
	}
	return request{method: http.MethodPost, path: path, body: bytes.NewReader(raw), contentType: "application/json"}, nil
}

func uploadRequest(path, filePath string, fields map[string]string) (request, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return request{}, err
	}
	defer func() { _ = file.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return request{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return request{}, err
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := mw.WriteField(key, value); err != nil {
			return request{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return request{}, err
	}
	return request{method: http.MethodPost, path: path, body: &buf, contentType: mw.FormDataContentType()}, nil
}

func doRequest(ctx context.Context, client *http.Client, base string, r request) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, base+r.path, r.body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func printBody(w io.Writer, raw []byte) {
	if pretty, ok := prettyJSON(raw); ok {
		_, _ = fmt.Fprintln(w, pretty)
		return
	}
	if len(raw) > 0 {
		_, _ = fmt.Fprintln(w, string(raw))
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(raw), "", "  "); err != nil {
		return "", false
	}
	return buf.String(), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: flatbridgectl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                        GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                         GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  test-connection               POST /v1/connection/test")
	_, _ = fmt.Fprintln(w, "  tables                        POST /v1/tables")
	_, _ = fmt.Fprintln(w, "  schema <table>                POST /v1/schema/{table}")
	_, _ = fmt.Fprintln(w, "  preview <table>               POST /v1/preview/{table}")
	_, _ = fmt.Fprintln(w, "  preview-file <file>           POST /v1/preview-file")
	_, _ = fmt.Fprintln(w, "  export <table> <output-path>  POST /v1/ingest/store-to-file")
	_, _ = fmt.Fprintln(w, "  import <file> <table>         POST /v1/ingest/file-to-store")
	_, _ = fmt.Fprintln(w, "  status <ingestion-id>         GET /v1/ingest/status/{id}")
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
