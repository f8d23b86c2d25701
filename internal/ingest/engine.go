// Package ingest runs export (store to file) and import (file to store)
// transfers as tracked background jobs.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/flatbridge/flatbridge/internal/flatfile"
	"github.com/flatbridge/flatbridge/internal/infer"
	"github.com/flatbridge/flatbridge/internal/job"
	"github.com/flatbridge/flatbridge/internal/observability"
	"github.com/flatbridge/flatbridge/internal/sqlbuild"
	"github.com/flatbridge/flatbridge/internal/storage"
	"github.com/flatbridge/flatbridge/internal/store"
)

const defaultBatchSize = 1000

type Submitter interface {
	Submit(task job.Task) error
}

type Config struct {
	BatchSize int
}

type Engine struct {
	Connector store.Connector
	Jobs      *job.Store
	Pool      Submitter
	Staging   storage.ObjectStore
	Inference infer.Strategy
	Config    Config
	Logger    *slog.Logger

	once sync.Once
}

func (e *Engine) ensureDefaults() {
	e.once.Do(func() {
		if e.Jobs == nil {
			e.Jobs = job.NewStore()
		}
		if e.Inference == nil {
			e.Inference = infer.FirstRow{}
		}
		if e.Config.BatchSize <= 0 {
			e.Config.BatchSize = defaultBatchSize
		}
		if e.Logger == nil {
			e.Logger = observability.NopLogger()
		}
	})
}

// StartExport registers a job and queues the transfer. The returned job is
// in STARTED unless the queue rejected it.
func (e *Engine) StartExport(ctx context.Context, req Request) (job.Job, error) {
	e.ensureDefaults()
	if err := req.validateExport(); err != nil {
		return job.Job{}, err
	}
	return e.submit(ctx, job.KindExport, func(ctx context.Context, id string) (int64, string, error) {
		return e.runExport(ctx, id, req)
	})
}

// StartImport copies data so the caller may reuse its buffer, registers a
// job and queues the transfer.
func (e *Engine) StartImport(ctx context.Context, data []byte, req Request) (job.Job, error) {
	e.ensureDefaults()
	if err := req.validateImport(len(data)); err != nil {
		return job.Job{}, err
	}
	if e.Staging == nil {
		return job.Job{}, fmt.Errorf("staging store is required")
	}
	upload := bytes.Clone(data)
	return e.submit(ctx, job.KindImport, func(ctx context.Context, id string) (int64, string, error) {
		return e.runImport(ctx, id, upload, req)
	})
}

func (e *Engine) Status(id string) (job.Job, error) {
	e.ensureDefaults()
	return e.Jobs.Get(id)
}

type transfer func(ctx context.Context, jobID string) (records int64, message string, err error)

func (e *Engine) submit(ctx context.Context, kind job.Kind, run transfer) (job.Job, error) {
	if e.Pool == nil {
		return job.Job{}, fmt.Errorf("job pool is required")
	}
	created := e.Jobs.Create(kind)
	logger := e.Logger.With(slog.String("job_id", created.ID), slog.String("kind", string(kind)))

	err := e.Pool.Submit(func(taskCtx context.Context) {
		e.execute(taskCtx, created.ID, kind, logger, run)
	})
	if err != nil {
		observability.ObserveJobRejected(string(kind))
		failed, updateErr := e.Jobs.UpdateState(created.ID, job.StateFailed, 0, "Error: "+err.Error())
		if updateErr != nil {
			return created, errors.Join(err, updateErr)
		}
		observability.ObserveJobFinished(string(kind), string(job.StateFailed), 0, failed.Duration())
		logger.WarnContext(ctx, "job rejected", slog.Any("error", err))
		return failed, fmt.Errorf("submit %s job: %w", kind, err)
	}

	observability.ObserveJobSubmitted(string(kind))
	logger.InfoContext(ctx, "job submitted")
	return created, nil
}

func (e *Engine) execute(ctx context.Context, id string, kind job.Kind, logger *slog.Logger, run transfer) {
	if _, err := e.Jobs.UpdateState(id, job.StateInProgress, 0, ""); err != nil {
		logger.ErrorContext(ctx, "job start failed", slog.Any("error", err))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.failPanicked(ctx, id, kind, logger, r)
		}
	}()

	records, message, err := run(ctx, id)
	state := job.StateCompleted
	if err != nil {
		state = job.StateFailed
		message = "Error: " + err.Error()
	}
	final, updateErr := e.Jobs.UpdateState(id, state, records, message)
	if updateErr != nil {
		logger.ErrorContext(ctx, "job finish failed", slog.Any("error", updateErr))
		return
	}
	observability.ObserveJobFinished(string(kind), string(state), records, final.Duration())

	if err != nil {
		logger.ErrorContext(ctx, "job failed", slog.Int64("records", records), slog.Any("error", err))
		return
	}
	logger.InfoContext(ctx, "job completed", slog.Int64("records", records), slog.Duration("duration", final.Duration()))
}

// failPanicked records a panicking transfer as FAILED, keeping the last
// published count.
func (e *Engine) failPanicked(ctx context.Context, id string, kind job.Kind, logger *slog.Logger, recovered any) {
	current, err := e.Jobs.Get(id)
	if err != nil {
		logger.ErrorContext(ctx, "job panicked", slog.Any("panic", recovered), slog.Any("error", err))
		return
	}
	final, err := e.Jobs.UpdateState(id, job.StateFailed, current.TotalRecords, fmt.Sprintf("Error: panic: %v", recovered))
	if err != nil {
		logger.ErrorContext(ctx, "job panicked", slog.Any("panic", recovered), slog.Any("error", err))
		return
	}
	observability.ObserveJobFinished(string(kind), string(job.StateFailed), final.TotalRecords, final.Duration())
	logger.ErrorContext(ctx, "job panicked", slog.Int64("records", final.TotalRecords), slog.Any("panic", recovered))
}

// progress publishes a running count without leaving IN_PROGRESS.
func (e *Engine) progress(id string, records int64) {
	_, _ = e.Jobs.UpdateState(id, job.StateInProgress, records, "")
}

func (e *Engine) runExport(ctx context.Context, id string, req Request) (int64, string, error) {
	conn, err := e.Connector.Connect(ctx, req.ConnectionParams)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = conn.Close() }()

	cursor, err := conn.Query(ctx, sqlbuild.BuildSelect(req.TableName, req.SelectedColumns, req.Join))
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = cursor.Close() }()

	file, err := os.Create(req.FilePath)
	if err != nil {
		return 0, "", fmt.Errorf("%w: create %s: %v", flatfile.ErrIO, req.FilePath, err)
	}
	defer func() { _ = file.Close() }()

	var sink rowSink
	var delimited *flatfile.Writer
	if req.format() == FormatParquet {
		pw, err := flatfile.NewParquetWriter(file, cursor.Columns())
		if err != nil {
			return 0, "", err
		}
		sink = parquetSink{pw}
	} else {
		delimited = flatfile.NewWriter(file, req.delimiter())
		if err := delimited.WriteHeader(cursor.Columns()); err != nil {
			return 0, "", err
		}
		sink = delimitedSink{delimited}
	}

	var count int64
	for cursor.Next() {
		if err := sink.WriteRow(cursor.Values()); err != nil {
			_ = sink.Abort()
			return count, "", err
		}
		count++
		if count%int64(e.Config.BatchSize) == 0 {
			e.progress(id, count)
		}
	}
	if err := cursor.Err(); err != nil {
		_ = sink.Abort()
		return count, "", err
	}
	if err := sink.Close(); err != nil {
		return count, "", err
	}
	if err := file.Close(); err != nil {
		return count, "", fmt.Errorf("%w: close %s: %v", flatfile.ErrIO, req.FilePath, err)
	}
	if delimited != nil {
		e.Logger.DebugContext(ctx, "export file written",
			slog.String("job_id", id),
			slog.String("path", req.FilePath),
			slog.Int64("bytes", delimited.BytesWritten()),
		)
	}
	return count, fmt.Sprintf("Successfully exported %d records to %s", count, req.FilePath), nil
}

func (e *Engine) runImport(ctx context.Context, id string, data []byte, req Request) (int64, string, error) {
	key, err := storage.BuildStagingKey(id, req.FileName)
	if err != nil {
		return 0, "", err
	}
	if _, err := e.Staging.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: "text/plain"}); err != nil {
		return 0, "", fmt.Errorf("%w: stage upload: %v", flatfile.ErrIO, err)
	}
	defer func() {
		if err := e.Staging.Delete(context.WithoutCancel(ctx), key); err != nil {
			e.Logger.WarnContext(ctx, "delete staged upload failed", slog.String("job_id", id), slog.Any("error", err))
		}
	}()

	delimiter := req.delimiter()
	headers, sample, err := e.readSample(ctx, key, delimiter)
	if err != nil {
		return 0, "", err
	}
	var samples [][]string
	if sample != nil {
		samples = append(samples, sample)
	}
	columns := e.Inference.InferColumns(headers, samples)

	conn, err := e.Connector.Connect(ctx, req.ConnectionParams)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = conn.Close() }()

	if err := conn.ExecDDL(ctx, sqlbuild.BuildCreateTable(conn.Dialect(), req.TableName, columns)); err != nil {
		return 0, "", err
	}

	reader, err := e.Staging.Open(ctx, key)
	if err != nil {
		return 0, "", fmt.Errorf("%w: reopen staged upload: %v", flatfile.ErrIO, err)
	}
	defer func() { _ = reader.Close() }()

	lines := flatfile.NewReader(reader)
	if _, err := lines.ReadLine(); err != nil {
		return 0, "", err
	}

	insert := sqlbuild.BuildInsert(conn.Dialect(), req.TableName, headers)
	types := make([]infer.Type, len(columns))
	for i, column := range columns {
		types[i] = infer.Type(column.Type)
	}

	var total int64
	batch := make([][]any, 0, e.Config.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := conn.BatchInsert(ctx, insert, batch); err != nil {
			return err
		}
		total += int64(len(batch))
		observability.ObserveBatchFlush()
		e.progress(id, total)
		batch = make([][]any, 0, e.Config.BatchSize)
		return nil
	}

	for {
		line, err := lines.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, "", err
		}
		if line == "" {
			continue
		}
		fields := flatfile.AlignRow(len(headers), flatfile.DecodeLine(line, delimiter))
		row := make([]any, len(headers))
		for i, field := range fields {
			row[i] = infer.Convert(field, types[i])
		}
		batch = append(batch, row)
		if len(batch) >= e.Config.BatchSize {
			if err := flush(); err != nil {
				return total, "", err
			}
		}
	}
	if err := flush(); err != nil {
		return total, "", err
	}
	return total, fmt.Sprintf("Successfully ingested %d records from file into %s", total, req.TableName), nil
}

// readSample returns the header fields and the fields of the first
// non-blank data line, or nil when the file has no data line.
func (e *Engine) readSample(ctx context.Context, key, delimiter string) ([]string, []string, error) {
	reader, err := e.Staging.Open(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open staged upload: %v", flatfile.ErrIO, err)
	}
	defer func() { _ = reader.Close() }()

	lines := flatfile.NewReader(reader)
	header, err := lines.ReadLine()
	if errors.Is(err, io.EOF) || (err == nil && header == "") {
		return nil, nil, fmt.Errorf("%w: file has no header line", flatfile.ErrIO)
	}
	if err != nil {
		return nil, nil, err
	}
	headers := flatfile.DecodeLine(header, delimiter)

	for {
		line, err := lines.ReadLine()
		if errors.Is(err, io.EOF) {
			return headers, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		if line != "" {
			return headers, flatfile.DecodeLine(line, delimiter), nil
		}
	}
}

type rowSink interface {
	WriteRow(values []any) error
	Close() error
	// Abort keeps whatever was already written.
	Abort() error
}

type delimitedSink struct{ w *flatfile.Writer }

func (s delimitedSink) WriteRow(values []any) error { return s.w.WriteRow(values) }
func (s delimitedSink) Close() error                { return s.w.Flush() }
func (s delimitedSink) Abort() error                { return s.w.Flush() }

type parquetSink struct{ w *flatfile.ParquetWriter }

func (s parquetSink) WriteRow(values []any) error { return s.w.WriteRow(values) }
func (s parquetSink) Close() error                { return s.w.Close() }
func (s parquetSink) Abort() error                { return s.w.Close() }
