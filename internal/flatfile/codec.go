// Package flatfile encodes and decodes delimited text rows.
//
// Encoding quotes a field when it contains the delimiter or a double quote.
// Decoding is a literal split on the delimiter and ignores quotes, so a
// quoted field holding the delimiter does not survive a round trip.
package flatfile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DefaultDelimiter = ","

var ErrIO = errors.New("flat file io")

// Delimiter returns the configured delimiter or the default when empty.
func Delimiter(value string) string {
	if value == "" {
		return DefaultDelimiter
	}
	return value
}

func EncodeField(value any, delimiter string) string {
	text := render(value)
	if strings.Contains(text, delimiter) || strings.Contains(text, `"`) {
		return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
	}
	return text
}

func EncodeRow(values []any, delimiter string) string {
	var b strings.Builder
	for i, value := range values {
		if i > 0 {
			b.WriteString(delimiter)
		}
		b.WriteString(EncodeField(value, delimiter))
	}
	return b.String()
}

func EncodeHeader(columns []string, delimiter string) string {
	values := make([]any, len(columns))
	for i, column := range columns {
		values[i] = column
	}
	return EncodeRow(values, delimiter)
}

func DecodeLine(line, delimiter string) []string {
	return strings.Split(line, delimiter)
}

// AlignRow keeps the first min(headerCount, len(fields)) fields.
func AlignRow(headerCount int, fields []string) []string {
	if len(fields) > headerCount {
		return fields[:headerCount]
	}
	return fields
}

func render(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(typed)
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}
