package flatfile

import (
	"fmt"
	"io"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

// ParquetWriter writes export rows as a parquet file where every column is
// an optional string holding the delimited-codec rendering of the value.
type ParquetWriter struct {
	writer  *parquet.Writer
	columns []string
	// leaf index in the schema for each input column position
	leaf []int
	rows int64
}

func NewParquetWriter(w io.Writer, columns []string) (*ParquetWriter, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: parquet export requires at least one column", ErrIO)
	}
	names := ParquetColumnNames(columns)
	group := parquet.Group{}
	for _, name := range names {
		group[name] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("export", group)

	index := make(map[string]int, len(names))
	for i, path := range schema.Columns() {
		index[path[0]] = i
	}
	leaf := make([]int, len(names))
	for i, name := range names {
		leaf[i] = index[name]
	}

	return &ParquetWriter{
		writer:  parquet.NewWriter(w, schema),
		columns: names,
		leaf:    leaf,
	}, nil
}

func (p *ParquetWriter) WriteRow(values []any) error {
	row := make(parquet.Row, len(p.leaf))
	for i := range p.leaf {
		var value any
		if i < len(values) {
			value = values[i]
		}
		col := p.leaf[i]
		if value == nil {
			row[col] = parquet.NullValue().Level(0, 0, col)
			continue
		}
		row[col] = parquet.ValueOf(render(value)).Level(0, 1, col)
	}
	if _, err := p.writer.WriteRows([]parquet.Row{row}); err != nil {
		return fmt.Errorf("%w: write parquet row: %v", ErrIO, err)
	}
	p.rows++
	return nil
}

func (p *ParquetWriter) Rows() int64 {
	return p.rows
}

func (p *ParquetWriter) Columns() []string {
	return append([]string(nil), p.columns...)
}

func (p *ParquetWriter) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("%w: close parquet writer: %v", ErrIO, err)
	}
	return nil
}

// ParquetColumnNames makes column names unique and non-empty. Repeats of a
// name get _2, _3 suffixes in order of appearance.
func ParquetColumnNames(columns []string) []string {
	seen := make(map[string]int, len(columns))
	out := make([]string, len(columns))
	for i, column := range columns {
		name := column
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		base := name
		for {
			seen[base]++
			if seen[base] == 1 {
				break
			}
			candidate := base + "_" + strconv.Itoa(seen[base])
			if _, taken := seen[candidate]; !taken {
				name = candidate
				seen[candidate] = 1
				break
			}
		}
		out[i] = name
	}
	return out
}
