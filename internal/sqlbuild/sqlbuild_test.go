package sqlbuild

import (
	"testing"

	"github.com/flatbridge/flatbridge/internal/store"
)

func TestBuildSelect(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		join    *JoinSpec
		want    string
	}{
		{name: "all columns", want: "SELECT * FROM users"},
		{name: "selected columns", columns: []string{"id", "name"}, want: "SELECT id, name FROM users"},
		{
			name: "default join type",
			join: &JoinSpec{Table: "orders", Condition: "users.id = orders.user_id"},
			want: "SELECT * FROM users INNER JOIN orders ON users.id = orders.user_id",
		},
		{
			name:    "explicit join type",
			columns: []string{"users.id"},
			join:    &JoinSpec{Type: "LEFT JOIN", Table: "orders", Condition: "users.id = orders.user_id"},
			want:    "SELECT users.id FROM users LEFT JOIN orders ON users.id = orders.user_id",
		},
		{
			name: "join without condition is omitted",
			join: &JoinSpec{Type: "LEFT JOIN", Table: "orders"},
			want: "SELECT * FROM users",
		},
		{
			name: "join without table is omitted",
			join: &JoinSpec{Condition: "a = b"},
			want: "SELECT * FROM users",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := BuildSelect("users", tc.columns, tc.join); got != tc.want {
				t.Fatalf("BuildSelect() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildSelectLimit(t *testing.T) {
	if got := BuildSelectLimit("users", nil, nil, 100); got != "SELECT * FROM users LIMIT 100" {
		t.Fatalf("BuildSelectLimit() = %q", got)
	}
}

func TestBuildCreateTable(t *testing.T) {
	columns := []store.ColumnDefinition{
		{Name: "id", Type: "Integer"},
		{Name: "score", Type: "Float"},
		{Name: "name", Type: "Text"},
	}
	duck := BuildCreateTable(store.DialectDuckDB, "people", columns)
	if duck != "CREATE TABLE IF NOT EXISTS people (id BIGINT, score DOUBLE, name VARCHAR)" {
		t.Fatalf("duckdb DDL = %q", duck)
	}
	pg := BuildCreateTable(store.DialectPostgres, "people", columns)
	if pg != "CREATE TABLE IF NOT EXISTS people (id BIGINT, score DOUBLE PRECISION, name TEXT)" {
		t.Fatalf("postgres DDL = %q", pg)
	}
	custom := BuildCreateTable(store.DialectDuckDB, "t", []store.ColumnDefinition{{Name: "ts", Type: "TIMESTAMP"}})
	if custom != "CREATE TABLE IF NOT EXISTS t (ts TIMESTAMP)" {
		t.Fatalf("custom DDL = %q", custom)
	}
}

func TestBuildInsert(t *testing.T) {
	if got := BuildInsert(store.DialectDuckDB, "people", []string{"id", "name"}); got != "INSERT INTO people (id, name) VALUES (?, ?)" {
		t.Fatalf("duckdb insert = %q", got)
	}
	if got := BuildInsert(store.DialectPostgres, "people", []string{"id", "name"}); got != "INSERT INTO people (id, name) VALUES ($1, $2)" {
		t.Fatalf("postgres insert = %q", got)
	}
}
