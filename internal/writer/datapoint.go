package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftdb/driftdb-go/internal/router"
)

// DatapointWriter consumes Records from the router queue and writes to the
// datapoints table.
type DatapointWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from the intake
	input *router.Ring[router.Record]

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []datapointRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewDatapointWriter creates a new DatapointWriter.
func NewDatapointWriter(
	cfg WriterConfig,
	input *router.Ring[router.Record],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *DatapointWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatapointWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]datapointRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming records and writing to the database.
func (w *DatapointWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("datapoint writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *DatapointWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping datapoint writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("datapoint writer stopped")
	case <-ctx.Done():
		w.logger.Warn("datapoint writer stop timed out")
	}

	// Final flush
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *DatapointWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input queue and accumulates batches.
func (w *DatapointWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			records := w.input.Drain(w.cfg.BatchSize)
			if len(records) == 0 {
				// Queue empty, wait a bit before trying again
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			for _, rec := range records {
				w.handleRecord(rec)
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *DatapointWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// handleRecord transforms and adds a record to the batch.
func (w *DatapointWriter) handleRecord(rec router.Record) {
	row := w.transform(rec)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a Record to a datapointRow.
func (w *DatapointWriter) transform(rec router.Record) datapointRow {
	return datapointRow{
		ID:         rec.ID.String(),
		Topic:      rec.Topic,
		Ts:         rec.Timestamp.UnixMicro(),
		ReceivedAt: rec.ReceivedAt.UnixMicro(),
		Value:      rec.Value,
	}
}

// flush writes the current batch to the database.
func (w *DatapointWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]datapointRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed datapoints",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *DatapointWriter) batchInsert(rows []datapointRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO datapoints (id, topic, ts, received_at, value)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.Topic, r.Ts, r.ReceivedAt, r.Value)
	}

	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
