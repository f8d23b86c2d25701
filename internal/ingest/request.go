package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flatbridge/flatbridge/internal/flatfile"
	"github.com/flatbridge/flatbridge/internal/sqlbuild"
	"github.com/flatbridge/flatbridge/internal/store"
)

var ErrInvalidRequest = errors.New("invalid ingestion request")

type Format string

const (
	FormatDelimited Format = "delimited"
	FormatParquet   Format = "parquet"
)

// Request describes one transfer. Connection fields are inlined in the JSON
// form next to the transfer options.
type Request struct {
	store.ConnectionParams

	SourceType      string             `json:"sourceType,omitempty"`
	TargetType      string             `json:"targetType,omitempty"`
	TableName       string             `json:"tableName"`
	FilePath        string             `json:"filePath,omitempty"`
	FileName        string             `json:"fileName,omitempty"`
	Delimiter       string             `json:"delimiter,omitempty"`
	SelectedColumns []string           `json:"selectedColumns,omitempty"`
	Join            *sqlbuild.JoinSpec `json:"joinConfig,omitempty"`
	Format          Format             `json:"format,omitempty"`
}

func (r Request) delimiter() string {
	return flatfile.Delimiter(r.Delimiter)
}

func (r Request) format() Format {
	if r.Format == "" {
		return FormatDelimited
	}
	return Format(strings.ToLower(string(r.Format)))
}

func (r Request) validateExport() error {
	if strings.TrimSpace(r.TableName) == "" {
		return fmt.Errorf("%w: tableName is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.FilePath) == "" {
		return fmt.Errorf("%w: filePath is required", ErrInvalidRequest)
	}
	switch r.format() {
	case FormatDelimited, FormatParquet:
	default:
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidRequest, r.Format)
	}
	return nil
}

func (r Request) validateImport(size int) error {
	if strings.TrimSpace(r.TableName) == "" {
		return fmt.Errorf("%w: tableName is required", ErrInvalidRequest)
	}
	if size == 0 {
		return fmt.Errorf("%w: uploaded file is empty", ErrInvalidRequest)
	}
	return nil
}
