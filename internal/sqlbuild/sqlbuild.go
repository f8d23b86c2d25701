// Package sqlbuild renders the SELECT, CREATE TABLE and INSERT statements
// used by export, import and preview.
//
// Table names, column names and join conditions are interpolated verbatim.
// Callers must not pass untrusted identifiers.
package sqlbuild

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flatbridge/flatbridge/internal/store"
)

const DefaultJoinType = "INNER JOIN"

// JoinSpec is ignored unless both Table and Condition are set.
type JoinSpec struct {
	Type      string `json:"type,omitempty"`
	Table     string `json:"table,omitempty"`
	Condition string `json:"condition,omitempty"`
}

func (j *JoinSpec) usable() bool {
	return j != nil && j.Table != "" && j.Condition != ""
}

func BuildSelect(table string, columns []string, join *JoinSpec) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(columns, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(table)
	if join.usable() {
		joinType := join.Type
		if joinType == "" {
			joinType = DefaultJoinType
		}
		fmt.Fprintf(&b, " %s %s ON %s", joinType, join.Table, join.Condition)
	}
	return b.String()
}

func BuildSelectLimit(table string, columns []string, join *JoinSpec, limit int) string {
	return BuildSelect(table, columns, join) + " LIMIT " + strconv.Itoa(limit)
}

// BuildCreateTable creates a plain table with no ordering key. Column types
// produced by inference (Integer, Float, Text) map to dialect type names;
// any other type string is used as given.
func BuildCreateTable(dialect store.Dialect, table string, columns []store.ColumnDefinition) string {
	defs := make([]string, len(columns))
	for i, column := range columns {
		defs[i] = column.Name + " " + TypeName(dialect, column.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
}

func BuildInsert(dialect store.Dialect, table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = Placeholder(dialect, i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}

// Placeholder returns the bind marker for the 1-based position.
func Placeholder(dialect store.Dialect, position int) string {
	if dialect == store.DialectPostgres {
		return "$" + strconv.Itoa(position)
	}
	return "?"
}

func TypeName(dialect store.Dialect, logical string) string {
	switch logical {
	case "Integer":
		return "BIGINT"
	case "Float":
		if dialect == store.DialectPostgres {
			return "DOUBLE PRECISION"
		}
		return "DOUBLE"
	case "Text":
		if dialect == store.DialectPostgres {
			return "TEXT"
		}
		return "VARCHAR"
	default:
		return logical
	}
}
