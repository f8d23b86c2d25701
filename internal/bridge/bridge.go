// Package bridge is the operation surface shared by the HTTP API and the
// command line tools.
package bridge

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flatbridge/flatbridge/internal/config"
	"github.com/flatbridge/flatbridge/internal/ingest"
	"github.com/flatbridge/flatbridge/internal/job"
	"github.com/flatbridge/flatbridge/internal/observability"
	"github.com/flatbridge/flatbridge/internal/preview"
	"github.com/flatbridge/flatbridge/internal/store"
)

type Service struct {
	Connector store.Connector
	Engine    *ingest.Engine
	Preview   *preview.Service
	// Defaults fill empty connection fields of incoming requests.
	Defaults store.ConnectionParams
	Logger   *slog.Logger
}

// DefaultsFromConfig maps the store section of the service config.
func DefaultsFromConfig(cfg config.StoreConfig) store.ConnectionParams {
	return store.ConnectionParams{
		Driver:   cfg.Driver,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Database: cfg.Database,
		Username: cfg.Username,
		Password: cfg.Password,
	}
}

// ResolveParams fills empty fields of params from the configured defaults.
// An explicit DSN suppresses the endpoint defaults.
func (s *Service) ResolveParams(params store.ConnectionParams) store.ConnectionParams {
	d := s.Defaults
	if params.Driver == "" {
		params.Driver = d.Driver
	}
	if params.DSN != "" {
		return params
	}
	if params.Host == "" {
		params.Host = d.Host
	}
	if params.Port == 0 {
		params.Port = d.Port
	}
	if params.Database == "" {
		params.Database = d.Database
	}
	if params.Username == "" {
		params.Username = d.Username
	}
	if params.Password == "" {
		params.Password = d.Password
	}
	return params
}

// TestConnection reports whether a session can be opened and pinged.
// Failures are logged, not returned.
func (s *Service) TestConnection(ctx context.Context, params store.ConnectionParams) bool {
	start := time.Now()
	conn, err := s.Connector.Connect(ctx, s.ResolveParams(params))
	if err != nil {
		s.logger().WarnContext(ctx, "connection test failed", slog.Any("error", err))
		return false
	}
	defer func() { _ = conn.Close() }()
	if err := conn.Ping(ctx); err != nil {
		s.logger().WarnContext(ctx, "connection test ping failed", slog.Any("error", err))
		return false
	}
	s.logger().DebugContext(ctx, "connection test succeeded", slog.Duration("duration", time.Since(start)))
	return true
}

func (s *Service) ListTables(ctx context.Context, params store.ConnectionParams) ([]string, error) {
	conn, err := s.Connector.Connect(ctx, s.ResolveParams(params))
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()
	return conn.ListTables(ctx, "")
}

func (s *Service) GetSchema(ctx context.Context, table string, params store.ConnectionParams) (store.TableSchema, error) {
	conn, err := s.Connector.Connect(ctx, s.ResolveParams(params))
	if err != nil {
		return store.TableSchema{}, err
	}
	defer func() { _ = conn.Close() }()
	columns, err := conn.DescribeTable(ctx, table)
	if err != nil {
		return store.TableSchema{}, err
	}
	return store.TableSchema{TableName: table, Columns: columns}, nil
}

func (s *Service) PreviewTable(ctx context.Context, table string, params store.ConnectionParams, columns []string, limit int) ([]preview.Row, error) {
	return s.Preview.PreviewTable(ctx, s.ResolveParams(params), table, columns, limit)
}

func (s *Service) PreviewFile(data []byte, delimiter string, limit int) ([]preview.Row, error) {
	return s.Preview.PreviewFile(bytes.NewReader(data), delimiter, limit)
}

func (s *Service) StartExport(ctx context.Context, req ingest.Request) (job.Job, error) {
	req.ConnectionParams = s.ResolveParams(req.ConnectionParams)
	return s.Engine.StartExport(ctx, req)
}

func (s *Service) StartImport(ctx context.Context, data []byte, req ingest.Request) (job.Job, error) {
	req.ConnectionParams = s.ResolveParams(req.ConnectionParams)
	return s.Engine.StartImport(ctx, data, req)
}

func (s *Service) GetJobStatus(id string) (job.Job, error) {
	j, err := s.Engine.Status(id)
	if err != nil {
		return job.Job{}, fmt.Errorf("job status: %w", err)
	}
	return j, nil
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return observability.NopLogger()
	}
	return s.Logger
}
