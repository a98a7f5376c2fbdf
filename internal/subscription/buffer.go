package subscription

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Message is one entry in a subscription's buffer.
type Message struct {
	ReceivedAt time.Time
	Payload    json.RawMessage

	// Note is non-empty for marker entries recorded when the buffer was
	// truncated or cleared by a resource ceiling.
	Note string
}

// BufferConfig bounds a single subscription's buffer.
type BufferConfig struct {
	// ThrottleInterval drops messages arriving sooner than this after the
	// last accepted one. Zero disables throttling.
	ThrottleInterval time.Duration

	// MaxEntries is the FIFO capacity. Oldest entries are evicted first.
	MaxEntries int

	// MaxBytes is the memory ceiling checked by Sweep. When the estimated
	// payload size exceeds it, the oldest half of the buffer is dropped.
	MaxBytes int64

	// MaxLines is the rendered-line ceiling checked by Sweep. Crossing it
	// clears the buffer entirely. Advisory: the line count is an estimate
	// of rendered output, not a hard contract.
	MaxLines int

	// Latched marks topics that publish at most once. Latched buffers are
	// exempt from the line-count clear but not the memory ceiling.
	Latched bool
}

// BufferStats counts buffer activity since creation.
type BufferStats struct {
	Accepted        int64
	ThrottleDrops   int64
	CapacityEvicted int64
	Truncations     int64
	Clears          int64
}

// Buffer is a bounded FIFO of topic messages with throttling and periodic
// size-based eviction. Safe for concurrent use.
type Buffer struct {
	mu  sync.Mutex
	cfg BufferConfig

	buf   []Message
	head  int
	count int

	lastAccepted time.Time
	accepted     bool

	totalBytes int64
	lineCount  int

	stats BufferStats
}

// NewBuffer creates a buffer with the given bounds. MaxEntries below one is
// treated as one.
func NewBuffer(cfg BufferConfig) *Buffer {
	if cfg.MaxEntries < 1 {
		cfg.MaxEntries = 1
	}
	return &Buffer{
		cfg: cfg,
		buf: make([]Message, cfg.MaxEntries),
	}
}

// Offer applies the throttle and, when the message is accepted, records it,
// evicting the oldest entry if the buffer is full. It reports whether the
// message was accepted and should be delivered. The first message is always
// accepted regardless of throttle.
func (b *Buffer) Offer(receivedAt time.Time, payload json.RawMessage) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.accepted && b.cfg.ThrottleInterval > 0 &&
		receivedAt.Sub(b.lastAccepted) < b.cfg.ThrottleInterval {
		b.stats.ThrottleDrops++
		return false
	}

	b.accepted = true
	b.lastAccepted = receivedAt
	b.stats.Accepted++

	if b.count == b.cfg.MaxEntries {
		b.dropOldestLocked()
		b.stats.CapacityEvicted++
	}
	b.pushLocked(Message{ReceivedAt: receivedAt, Payload: payload})

	return true
}

// Sweep applies the memory and line ceilings. Called periodically by the
// session's cleanup loop, not per message.
func (b *Buffer) Sweep(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.MaxBytes > 0 && b.totalBytes > b.cfg.MaxBytes {
		half := b.count / 2
		for i := 0; i < half; i++ {
			b.dropOldestLocked()
		}
		b.stats.Truncations++
		b.pushEvictingLocked(Message{
			ReceivedAt: now,
			Note:       fmt.Sprintf("dropped oldest %d messages (memory ceiling)", half),
		})
	}

	if b.cfg.MaxLines > 0 && !b.cfg.Latched && b.lineCount > b.cfg.MaxLines {
		cleared := b.count
		b.clearLocked()
		b.stats.Clears++
		b.pushLocked(Message{
			ReceivedAt: now,
			Note:       fmt.Sprintf("cleared %d messages (line ceiling)", cleared),
		})
	}
}

// Snapshot returns the buffered messages oldest first.
func (b *Buffer) Snapshot() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Message, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.buf[(b.head+i)%b.cfg.MaxEntries]
	}
	return out
}

// Len returns the number of buffered entries (markers included).
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns activity counters.
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Clear empties the buffer without recording a marker.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
}

func (b *Buffer) pushLocked(m Message) {
	b.buf[(b.head+b.count)%b.cfg.MaxEntries] = m
	b.count++
	b.totalBytes += int64(len(m.Payload))
	b.lineCount += estimateLines(m)
}

// pushEvictingLocked pushes a marker, making room if the buffer is full.
func (b *Buffer) pushEvictingLocked(m Message) {
	if b.count == b.cfg.MaxEntries {
		b.dropOldestLocked()
	}
	b.pushLocked(m)
}

func (b *Buffer) dropOldestLocked() {
	m := b.buf[b.head]
	b.buf[b.head] = Message{}
	b.head = (b.head + 1) % b.cfg.MaxEntries
	b.count--
	b.totalBytes -= int64(len(m.Payload))
	b.lineCount -= estimateLines(m)
}

func (b *Buffer) clearLocked() {
	for i := range b.buf {
		b.buf[i] = Message{}
	}
	b.head = 0
	b.count = 0
	b.totalBytes = 0
	b.lineCount = 0
}

// estimateLines counts one line per entry plus embedded newlines in the
// payload, approximating rendered console output.
func estimateLines(m Message) int {
	return 1 + bytes.Count(m.Payload, []byte{'\n'})
}
