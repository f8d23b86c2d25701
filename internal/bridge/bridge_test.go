package bridge

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/flatbridge/flatbridge/internal/config"
	"github.com/flatbridge/flatbridge/internal/ingest"
	"github.com/flatbridge/flatbridge/internal/job"
	"github.com/flatbridge/flatbridge/internal/preview"
	"github.com/flatbridge/flatbridge/internal/storage/local"
	"github.com/flatbridge/flatbridge/internal/store"
	"github.com/flatbridge/flatbridge/internal/store/sqlstore"
)

func TestResolveParamsFillsDefaults(t *testing.T) {
	svc := &Service{Defaults: DefaultsFromConfig(config.StoreConfig{
		Driver: "postgres", Host: "db", Port: 5432, Database: "analytics", Username: "loader", Password: "secret",
	})}

	got := svc.ResolveParams(store.ConnectionParams{Database: "other"})
	want := store.ConnectionParams{Driver: "postgres", Host: "db", Port: 5432, Database: "other", Username: "loader", Password: "secret"}
	if got != want {
		t.Fatalf("ResolveParams() = %+v, want %+v", got, want)
	}

	withDSN := svc.ResolveParams(store.ConnectionParams{DSN: "postgres://x@y/z"})
	if withDSN.Host != "" || withDSN.Driver != "postgres" {
		t.Fatalf("ResolveParams(dsn) = %+v", withDSN)
	}
}

func TestTestConnection(t *testing.T) {
	svc, _ := newMockService(t)
	if !svc.TestConnection(context.Background(), store.ConnectionParams{}) {
		t.Fatal("TestConnection() = false, want true")
	}

	failing := &Service{Connector: failingConnector{}}
	if failing.TestConnection(context.Background(), store.ConnectionParams{}) {
		t.Fatal("TestConnection() = true, want false")
	}
}

func TestListTablesAndSchema(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT table_name FROM information_schema.tables`)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("users"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT column_name, data_type FROM information_schema.columns`)).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).AddRow("id", "BIGINT"))

	tables, err := svc.ListTables(context.Background(), store.ConnectionParams{})
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(tables) != 1 || tables[0] != "users" {
		t.Fatalf("tables = %v", tables)
	}

	schema, err := svc.GetSchema(context.Background(), "users", store.ConnectionParams{})
	if err != nil {
		t.Fatalf("GetSchema() error = %v", err)
	}
	if schema.TableName != "users" || len(schema.Columns) != 1 || schema.Columns[0].Type != "BIGINT" {
		t.Fatalf("schema = %+v", schema)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestGetSchemaPropagatesConnectionError(t *testing.T) {
	svc := &Service{Connector: failingConnector{}}
	if _, err := svc.GetSchema(context.Background(), "users", store.ConnectionParams{}); !errors.Is(err, store.ErrConnection) {
		t.Fatalf("GetSchema() error = %v, want ErrConnection", err)
	}
}

func TestPreviewFileDelegates(t *testing.T) {
	svc, _ := newMockService(t)
	rows, err := svc.PreviewFile([]byte("a,b\n1,x\n"), ",", 10)
	if err != nil {
		t.Fatalf("PreviewFile() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	if _, err := svc.PreviewFile(nil, ",", 10); !errors.Is(err, preview.ErrEmptyFile) {
		t.Fatalf("PreviewFile(empty) error = %v", err)
	}
}

func TestStartExportAndStatus(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM users`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	started, err := svc.StartExport(context.Background(), ingest.Request{TableName: "users", FilePath: filepath.Join(t.TempDir(), "u.csv")})
	if err != nil {
		t.Fatalf("StartExport() error = %v", err)
	}
	if started.State != job.StateStarted {
		t.Fatalf("State = %s", started.State)
	}
	if err := svc.Engine.Pool.(*job.Pool).Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	done, err := svc.GetJobStatus(started.ID)
	if err != nil {
		t.Fatalf("GetJobStatus() error = %v", err)
	}
	if done.State != job.StateCompleted || done.TotalRecords != 1 {
		t.Fatalf("job = %+v", done)
	}
	if _, err := svc.GetJobStatus("missing"); !errors.Is(err, job.ErrNotFound) {
		t.Fatalf("GetJobStatus(missing) error = %v", err)
	}
}

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	connector := sqlstore.NewConnectorWithOpener(sqlstore.PoolConfig{}, func(string, string) (*sql.DB, error) {
		return db, nil
	})
	staging, err := local.New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("local.New() error = %v", err)
	}
	return &Service{
		Connector: connector,
		Engine: &ingest.Engine{
			Connector: connector,
			Jobs:      job.NewStore(),
			Pool:      job.NewPool(1, 4, nil),
			Staging:   staging,
		},
		Preview: &preview.Service{Connector: connector},
	}, mock
}

type failingConnector struct{}

func (failingConnector) Connect(context.Context, store.ConnectionParams) (store.Conn, error) {
	return nil, store.ErrConnection
}
