// Package export writes filtered invoice listings to the object store as
// parquet files.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowbit/invoiceql/internal/filter"
	"github.com/flowbit/invoiceql/internal/observability"
	"github.com/flowbit/invoiceql/internal/query"
	"github.com/flowbit/invoiceql/internal/storage"
)

type Result struct {
	ObjectKey   string `json:"object_key"`
	RowCount    int    `json:"row_count"`
	SizeBytes   int64  `json:"size_bytes"`
	DownloadURL string `json:"download_url,omitempty"`
}

type Config struct {
	Prefix        string
	MaxRows       int
	PresignExpiry time.Duration
}

type Exporter struct {
	executor query.Executor
	store    storage.ObjectStore
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func New(executor query.Executor, store storage.ObjectStore, cfg Config, logger *slog.Logger) (*Exporter, error) {
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if cfg.MaxRows < 1 {
		return nil, fmt.Errorf("max rows must be >= 1")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		executor: executor,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

func (e *Exporter) MaxRows() int {
	return e.cfg.MaxRows
}

// Export runs the listing query for c and uploads the rows as one parquet
// object. limit is capped by the configured row ceiling.
func (e *Exporter) Export(ctx context.Context, c filter.Criteria, limit int) (result Result, err error) {
	defer func() { observability.ObserveExport(result.RowCount, err) }()

	if limit > e.cfg.MaxRows {
		return Result{}, fmt.Errorf("%w: export limit must be <= %d", filter.ErrInvalidLimit, e.cfg.MaxRows)
	}
	bound, err := filter.Build(c, limit)
	if err != nil {
		return Result{}, err
	}

	started := time.Now()
	rows, err := e.executor.Execute(ctx, bound)
	observability.ObserveQuery("export", time.Since(started), err)
	if err != nil {
		return Result{}, err
	}

	payload, err := encodeInvoices(rows)
	if err != nil {
		return Result{}, fmt.Errorf("encode export: %w", err)
	}

	key, err := storage.BuildExportKey(e.cfg.Prefix, e.now(), e.newID())
	if err != nil {
		return Result{}, err
	}
	info, err := e.store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: storage.KindExport.ContentType()})
	if err != nil {
		return Result{}, fmt.Errorf("upload export: %w", err)
	}

	result = Result{ObjectKey: key, RowCount: len(rows), SizeBytes: info.Size}
	if e.cfg.PresignExpiry > 0 {
		signed, err := e.store.PresignGet(ctx, key, e.cfg.PresignExpiry)
		if err != nil {
			e.logger.WarnContext(ctx, "presign export failed", "object_key", key, "error", err)
		} else {
			result.DownloadURL = signed
		}
	}
	e.logger.InfoContext(ctx, "invoice export written", "object_key", key, "rows", result.RowCount, "bytes", result.SizeBytes)
	return result, nil
}
