package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/flatbridge/flatbridge/internal/ingest"
)

const multipartMemory = 32 << 20

type handlers struct {
	bridge    Bridge
	maxUpload int64
}

func (h *handlers) requireBridge(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.bridge == nil {
			writeError(r.Context(), w, http.StatusNotImplemented, "BRIDGE_NOT_CONFIGURED", "ingestion service is not configured", false, nil)
			return
		}
		next(w, r)
	}
}

func (h *handlers) testConnection(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": h.bridge.TestConnection(r.Context(), req.ConnectionParams)})
}

func (h *handlers) listTables(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	tables, err := h.bridge.ListTables(r.Context(), req.ConnectionParams)
	if err != nil {
		writeOperationError(r.Context(), w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (h *handlers) getSchema(w http.ResponseWriter, r *http.Request) {
	table := strings.TrimSpace(r.PathValue("table"))
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	schema, err := h.bridge.GetSchema(r.Context(), table, req.ConnectionParams)
	if err != nil {
		writeOperationError(r.Context(), w, err, map[string]any{"table": table})
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (h *handlers) previewTable(w http.ResponseWriter, r *http.Request) {
	table := strings.TrimSpace(r.PathValue("table"))
	limit, ok := parseLimit(w, r, r.URL.Query().Get("limit"))
	if !ok {
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	rows, err := h.bridge.PreviewTable(r.Context(), table, req.ConnectionParams, req.SelectedColumns, limit)
	if err != nil {
		writeOperationError(r.Context(), w, err, map[string]any{"table": table})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": table, "rows": rows, "row_count": len(rows)})
}

func (h *handlers) previewFile(w http.ResponseWriter, r *http.Request) {
	data, fileName, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r, r.FormValue("limit"))
	if !ok {
		return
	}
	rows, err := h.bridge.PreviewFile(data, r.FormValue("delimiter"), limit)
	if err != nil {
		writeOperationError(r.Context(), w, err, map[string]any{"file": fileName})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": fileName, "rows": rows, "row_count": len(rows)})
}

func (h *handlers) startExport(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	started, err := h.bridge.StartExport(r.Context(), req)
	if err != nil {
		writeOperationError(r.Context(), w, err, jobContext(started.ID))
		return
	}
	writeJSON(w, http.StatusAccepted, started)
}

func (h *handlers) startImport(w http.ResponseWriter, r *http.Request) {
	data, fileName, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	var req ingest.Request
	if raw := strings.TrimSpace(r.FormValue("request")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ingestion request field", false, map[string]any{"details": err.Error()})
			return
		}
	}
	if table := strings.TrimSpace(r.FormValue("tableName")); table != "" {
		req.TableName = table
	}
	if delimiter := r.FormValue("delimiter"); delimiter != "" {
		req.Delimiter = delimiter
	}
	if req.FileName == "" {
		req.FileName = fileName
	}

	started, err := h.bridge.StartImport(r.Context(), data, req)
	if err != nil {
		writeOperationError(r.Context(), w, err, jobContext(started.ID))
		return
	}
	writeJSON(w, http.StatusAccepted, started)
}

func (h *handlers) jobStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	status, err := h.bridge.GetJobStatus(id)
	if err != nil {
		writeOperationError(r.Context(), w, err, map[string]any{"ingestionId": id})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// readUpload reads the multipart "file" part in full, bounded by the
// configured upload limit.
func (h *handlers) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "upload exceeds the configured limit", false, map[string]any{"limit_bytes": tooLarge.Limit})
			return nil, "", false
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MULTIPART", "expected a multipart form upload", false, map[string]any{"details": err.Error()})
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", "multipart field \"file\" is required", false, nil)
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UPLOAD_READ_FAILED", "failed to read uploaded file", false, map[string]any{"details": err.Error()})
		return nil, "", false
	}
	return data, header.Filename, true
}

// decodeRequest accepts an empty body as a request with every field unset.
func decodeRequest(w http.ResponseWriter, r *http.Request) (ingest.Request, bool) {
	var req ingest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return ingest.Request{}, false
	}
	return req, true
}

func parseLimit(w http.ResponseWriter, r *http.Request, raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", fmt.Sprintf("limit must be a non-negative integer, got %q", raw), false, nil)
		return 0, false
	}
	return limit, true
}

func jobContext(id string) map[string]any {
	if id == "" {
		return nil
	}
	return map[string]any{"ingestionId": id}
}
