package recorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one received topic message queued for persistence.
type Record struct {
	Topic      string
	Type       string
	ReceivedAt time.Time
	Payload    json.RawMessage
}

// Config tunes batching behavior.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	// QueueSize bounds the intake channel; zero uses a sane default.
	QueueSize int
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		QueueSize:     4096,
	}
}

// Metrics counts recorder activity since startup.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Drops     int64
	Flushes   int64
	Errors    int64
}

// batchSender is the subset of pgxpool.Pool the recorder writes through.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Recorder consumes records and writes them to the messages table.
type Recorder struct {
	cfg    Config
	logger *slog.Logger

	input chan Record

	db batchSender

	batch       []messageRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

type messageRow struct {
	Topic      string
	Type       string
	ReceivedAt int64 // microseconds since epoch
	Payload    []byte
}

// New creates a Recorder writing to db.
func New(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Recorder{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan Record, cfg.QueueSize),
		batch:  make([]messageRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming records and writing to the database.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the recorder. The final flush runs on the
// caller's context; the internal context is already canceled by then.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping recorder")

	if r.cancel != nil {
		r.cancel()
	}

	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("recorder stop timed out")
	}

	// Final flush
	r.flush(ctx)

	return nil
}

// Offer enqueues a record without blocking. It reports whether the record
// was accepted; a full queue drops the record.
func (r *Recorder) Offer(rec Record) bool {
	select {
	case r.input <- rec:
		return true
	default:
		r.batchMu.Lock()
		r.metrics.Drops++
		r.batchMu.Unlock()
		return false
	}
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// consumeLoop reads from the input channel and accumulates batches.
func (r *Recorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case rec := <-r.input:
			r.handleRecord(rec)
		}
	}
}

// flushLoop periodically flushes the batch.
func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush(r.ctx)
		}
	}
}

// handleRecord transforms and adds a record to the batch.
func (r *Recorder) handleRecord(rec Record) {
	row := r.transform(rec)

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush(r.ctx)
	}
}

// transform converts a Record to a messageRow.
func (r *Recorder) transform(rec Record) messageRow {
	return messageRow{
		Topic:      rec.Topic,
		Type:       rec.Type,
		ReceivedAt: rec.ReceivedAt.UnixMicro(),
		Payload:    rec.Payload,
	}
}

// flush writes the current batch to the database.
func (r *Recorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]messageRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(ctx, batch)
	if err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch) - conflicts)
	r.metrics.Conflicts += int64(conflicts)
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed messages",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (r *Recorder) batchInsert(ctx context.Context, rows []messageRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO messages (topic, msg_type, received_at, payload)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (topic, received_at) DO NOTHING
		`, row.Topic, row.Type, row.ReceivedAt, row.Payload)
	}

	results := r.db.SendBatch(ctx, batch)
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
