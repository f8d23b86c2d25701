// Package infer derives column types from sample text values.
package infer

import (
	"regexp"
	"strconv"

	"github.com/flatbridge/flatbridge/internal/store"
)

type Type string

const (
	Integer Type = "Integer"
	Float   Type = "Float"
	Text    Type = "Text"
)

var (
	integerPattern = regexp.MustCompile(`^-?\d+$`)
	numericPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

func InferType(sample string) Type {
	switch {
	case integerPattern.MatchString(sample):
		return Integer
	case numericPattern.MatchString(sample):
		return Float
	default:
		return Text
	}
}

// Strategy turns a header and sample data rows into column definitions.
type Strategy interface {
	InferColumns(headers []string, samples [][]string) []store.ColumnDefinition
}

// FirstRow types every column from the first sample row only. Later rows
// never refine the result, so a non-representative first row yields a
// mis-typed column. A column without a sample value is Text.
type FirstRow struct{}

func (FirstRow) InferColumns(headers []string, samples [][]string) []store.ColumnDefinition {
	var first []string
	if len(samples) > 0 {
		first = samples[0]
	}
	columns := make([]store.ColumnDefinition, len(headers))
	for i, header := range headers {
		typ := Text
		if i < len(first) {
			typ = InferType(first[i])
		}
		columns[i] = store.ColumnDefinition{Name: header, Type: string(typ)}
	}
	return columns
}

// Convert binds a raw field to the Go value for an inferred column type.
// Empty numeric fields become nil. Unparseable values stay strings and are
// left for the store to accept or reject.
func Convert(value string, typ Type) any {
	switch typ {
	case Integer:
		if value == "" {
			return nil
		}
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	case Float:
		if value == "" {
			return nil
		}
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return value
}

// ConvertCell is the per-cell preview conversion: integer, then float, then
// the text itself. Only plain decimal text converts, so NaN, Inf and hex
// floats stay text.
func ConvertCell(value string) any {
	if !numericPattern.MatchString(value) {
		return value
	}
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
		return parsed
	}
	if parsed, err := strconv.ParseFloat(value, 64); err == nil {
		return parsed
	}
	return value
}
