package recorder

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeSender captures SendBatch calls; each queued insert reports the next
// command tag from tags (cycled), defaulting to one row affected.
type fakeSender struct {
	mu   sync.Mutex
	ctxs []context.Context
	sqls []string
	rows int
	tags []string
}

func (f *fakeSender) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxs = append(f.ctxs, ctx)
	for _, q := range b.QueuedQueries {
		f.sqls = append(f.sqls, q.SQL)
	}
	f.rows += b.Len()
	return &fakeBatchResults{tags: f.tags}
}

type fakeBatchResults struct {
	tags []string
	next int
}

func (f *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	tag := "INSERT 0 1"
	if f.next < len(f.tags) {
		tag = f.tags[f.next]
	}
	f.next++
	return pgconn.NewCommandTag(tag), nil
}

func (f *fakeBatchResults) Query() (pgx.Rows, error) { return nil, nil }
func (f *fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (f *fakeBatchResults) Close() error             { return nil }

func TestRecorder_Transform(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)

	receivedAt := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	rec := Record{
		Topic:      "/odom",
		Type:       "nav_msgs/msg/Odometry",
		ReceivedAt: receivedAt,
		Payload:    json.RawMessage(`{"pose":{}}`),
	}

	row := r.transform(rec)

	if row.Topic != "/odom" {
		t.Errorf("Topic = %s, want /odom", row.Topic)
	}
	if row.Type != "nav_msgs/msg/Odometry" {
		t.Errorf("Type = %s, want nav_msgs/msg/Odometry", row.Type)
	}
	if row.ReceivedAt != receivedAt.UnixMicro() {
		t.Errorf("ReceivedAt = %d, want %d", row.ReceivedAt, receivedAt.UnixMicro())
	}
	if string(row.Payload) != `{"pose":{}}` {
		t.Errorf("Payload = %s, want original payload", row.Payload)
	}
}

func TestRecorder_HandleRecord_AddsToBatch(t *testing.T) {
	cfg := Config{
		BatchSize:     100,
		FlushInterval: time.Hour,
	}
	r := New(cfg, nil, nil)

	r.handleRecord(Record{
		Topic:      "/scan",
		Type:       "sensor_msgs/msg/LaserScan",
		ReceivedAt: time.Now(),
		Payload:    json.RawMessage(`{}`),
	})

	r.batchMu.Lock()
	batchLen := len(r.batch)
	r.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestRecorder_OfferFullQueueDrops(t *testing.T) {
	cfg := Config{
		BatchSize:     100,
		FlushInterval: time.Hour,
		QueueSize:     1,
	}
	r := New(cfg, nil, nil)

	rec := Record{Topic: "/scan", ReceivedAt: time.Now()}

	if !r.Offer(rec) {
		t.Fatal("first Offer should be accepted")
	}
	if r.Offer(rec) {
		t.Fatal("second Offer should be dropped, queue full and no consumer")
	}

	stats := r.Stats()
	if stats.Drops != 1 {
		t.Errorf("Drops = %d, want 1", stats.Drops)
	}
}

func TestRecorder_Lifecycle(t *testing.T) {
	cfg := Config{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	r := New(cfg, nil, nil)

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := r.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestRecorder_StopFlushesPendingBatch(t *testing.T) {
	cfg := Config{
		BatchSize:     100,
		FlushInterval: time.Hour,
	}
	r := New(cfg, nil, nil)
	db := &fakeSender{}
	r.db = db

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	r.handleRecord(Record{
		Topic:      "/odom",
		Type:       "nav_msgs/msg/Odometry",
		ReceivedAt: time.Now(),
		Payload:    json.RawMessage(`{}`),
	})

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	db.mu.Lock()
	rows := db.rows
	ctxs := db.ctxs
	db.mu.Unlock()

	if rows != 1 {
		t.Fatalf("rows written = %d, want 1 (final flush must persist the batch)", rows)
	}
	// The final flush must run on the caller's context, not the canceled
	// internal one.
	for _, ctx := range ctxs {
		if ctx.Err() != nil {
			t.Errorf("flush used an expired context: %v", ctx.Err())
		}
	}

	stats := r.Stats()
	if stats.Inserts != 1 {
		t.Errorf("Inserts = %d, want 1", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d, want 0", stats.Errors)
	}
}

func TestRecorder_BatchInsertCountsConflicts(t *testing.T) {
	cfg := Config{
		BatchSize:     100,
		FlushInterval: time.Hour,
	}
	r := New(cfg, nil, nil)
	db := &fakeSender{tags: []string{"INSERT 0 1", "INSERT 0 0"}}
	r.db = db

	now := time.Now()
	r.handleRecord(Record{Topic: "/scan", ReceivedAt: now, Payload: json.RawMessage(`{}`)})
	r.handleRecord(Record{Topic: "/scan", ReceivedAt: now, Payload: json.RawMessage(`{}`)})

	r.flush(context.Background())

	db.mu.Lock()
	sqls := db.sqls
	db.mu.Unlock()

	if len(sqls) != 2 {
		t.Fatalf("queued inserts = %d, want 2", len(sqls))
	}
	for _, sql := range sqls {
		if !strings.Contains(sql, "ON CONFLICT (topic, received_at) DO NOTHING") {
			t.Errorf("insert lacks conflict clause: %s", sql)
		}
	}

	stats := r.Stats()
	if stats.Inserts != 1 {
		t.Errorf("Inserts = %d, want 1", stats.Inserts)
	}
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}
	if stats.Flushes != 1 {
		t.Errorf("Flushes = %d, want 1", stats.Flushes)
	}
}

func TestRecorder_Stats(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)

	stats := r.Stats()
	if stats.Inserts != 0 {
		t.Errorf("initial Inserts = %d, want 0", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("initial Errors = %d, want 0", stats.Errors)
	}
	if stats.Flushes != 0 {
		t.Errorf("initial Flushes = %d, want 0", stats.Flushes)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BatchSize != 500 {
		t.Errorf("BatchSize = %d, want 500", cfg.BatchSize)
	}
	if cfg.FlushInterval != time.Second {
		t.Errorf("FlushInterval = %v, want 1s", cfg.FlushInterval)
	}
}
