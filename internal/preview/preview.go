// Package preview reads a bounded number of rows from a store table or an
// uploaded delimited file.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/flatbridge/flatbridge/internal/flatfile"
	"github.com/flatbridge/flatbridge/internal/infer"
	"github.com/flatbridge/flatbridge/internal/sqlbuild"
	"github.com/flatbridge/flatbridge/internal/store"
)

const defaultLimit = 100

var ErrEmptyFile = errors.New("file is empty")

type Service struct {
	Connector    store.Connector
	DefaultLimit int
}

func (s *Service) limit(requested int) int {
	if requested > 0 {
		return requested
	}
	if s.DefaultLimit > 0 {
		return s.DefaultLimit
	}
	return defaultLimit
}

func (s *Service) PreviewTable(ctx context.Context, params store.ConnectionParams, table string, columns []string, limit int) ([]Row, error) {
	if table == "" {
		return nil, fmt.Errorf("table is required")
	}
	conn, err := s.Connector.Connect(ctx, params)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	cursor, err := conn.Query(ctx, sqlbuild.BuildSelectLimit(table, columns, nil, s.limit(limit)))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close() }()

	names := cursor.Columns()
	rows := make([]Row, 0)
	for cursor.Next() {
		values := cursor.Values()
		row := NewRow(len(names))
		for i, name := range names {
			row.Set(name, values[i])
		}
		rows = append(rows, row)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// PreviewFile converts every cell on its own, integer first, then float,
// then text. Fields beyond the header are dropped and blank lines skipped.
func (s *Service) PreviewFile(r io.Reader, delimiter string, limit int) ([]Row, error) {
	delimiter = flatfile.Delimiter(delimiter)
	lines := flatfile.NewReader(r)

	header, err := lines.ReadLine()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, err
	}
	headers := flatfile.DecodeLine(header, delimiter)

	maxRows := s.limit(limit)
	rows := make([]Row, 0)
	for len(rows) < maxRows {
		line, err := lines.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == "" {
			continue
		}
		fields := flatfile.AlignRow(len(headers), flatfile.DecodeLine(line, delimiter))
		row := NewRow(len(fields))
		for i, field := range fields {
			row.Set(headers[i], infer.ConvertCell(field))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
