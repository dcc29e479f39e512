// Package journal implements the durable, append-only activity journal.
//
// Events are buffered in memory and flushed in batches to an embedded
// sqlite store opened in WAL mode. Logging is best-effort from the caller's
// perspective: Log never returns an error; write failures are counted and
// surfaced as a rate-limited warning.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/orchd-dev/orchd/internal/config"
)

// Event is one append-only journal record.
type Event struct {
	ID         string         `json:"id"`
	Seq        int64          `json:"seq"`
	Actor      string         `json:"actor"`
	ActionType string         `json:"action_type"`
	Target     string         `json:"target"`
	Payload    map[string]any `json:"payload,omitempty"`
	TraceID    string         `json:"trace_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

const schema = `
CREATE TABLE IF NOT EXISTS activity (
	id          TEXT PRIMARY KEY,
	seq         INTEGER NOT NULL,
	actor       TEXT NOT NULL,
	action_type TEXT NOT NULL,
	target      TEXT NOT NULL,
	payload     TEXT NOT NULL DEFAULT '{}',
	trace_id    TEXT,
	timestamp   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_trace ON activity(trace_id, timestamp);

CREATE TABLE IF NOT EXISTS notifications (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	message      TEXT NOT NULL,
	proposal_id  TEXT,
	trace_id     TEXT,
	created_at   INTEGER NOT NULL,
	dismissed_at INTEGER,
	metadata     TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_notifications_dismissed ON notifications(dismissed_at);
CREATE INDEX IF NOT EXISTS idx_notifications_proposal ON notifications(proposal_id);
`

// pragmas enable WAL so readers and the batched writer do not block each
// other, with a busy timeout for the occasional overlapping write.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// Journal is the process-wide activity journal. All writers are serialized
// through an internal queue; see Log and WaitForFlush.
type Journal struct {
	db *sql.DB

	queue     chan envelope
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	batchSize     int
	flushInterval time.Duration

	seq        atomic.Int64
	dropped    atomic.Int64
	writeFails atomic.Int64

	warnMu   sync.Mutex
	lastWarn time.Time
}

// envelope is either an event to persist or a flush request.
type envelope struct {
	event *Event
	flush chan struct{}
}

// Open opens (creating if needed) the journal database and starts the
// batched writer.
func Open(ctx context.Context, cfg config.JournalConfig) (*Journal, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal db %s: %w", cfg.Path, err)
	}
	// sqlite serializes writers; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}

	j := &Journal{
		db:            db,
		queue:         make(chan envelope, 256),
		done:          make(chan struct{}),
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j, nil
}

// LogOption configures a single Log call.
type LogOption func(*Event)

// WithTrace attaches a trace id to the event.
func WithTrace(traceID string) LogOption {
	return func(e *Event) { e.TraceID = traceID }
}

// Log enqueues an event. It is fire-and-forget: the call returns after the
// event is buffered, and never reports persistence errors to the caller.
// When the buffer is full the enqueue blocks briefly (bounded channel);
// after Close events are counted as dropped.
func (j *Journal) Log(actor, actionType, target string, payload map[string]any, opts ...LogOption) {
	event := &Event{
		ID:         uuid.NewString(),
		Seq:        j.seq.Add(1),
		Actor:      actor,
		ActionType: actionType,
		Target:     target,
		Payload:    payload,
		Timestamp:  time.Now(),
	}
	for _, opt := range opts {
		opt(event)
	}

	select {
	case <-j.done:
		j.dropped.Add(1)
	case j.queue <- envelope{event: event}:
	}
}

// WaitForFlush blocks until every event enqueued before the call is durable,
// or the context is canceled.
func (j *Journal) WaitForFlush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case <-j.done:
		return fmt.Errorf("journal is closed")
	case j.queue <- envelope{flush: ack}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ByTrace returns all events with the given trace id in timestamp order;
// the sequence counter breaks ties of equal timestamp.
func (j *Journal) ByTrace(ctx context.Context, traceID string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, seq, actor, action_type, target, payload, trace_id, timestamp
		FROM activity WHERE trace_id = ? ORDER BY timestamp, seq`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by trace: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Recent returns up to limit most recent events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, seq, actor, action_type, target, payload, trace_id, timestamp
		FROM activity ORDER BY timestamp DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// DroppedCount returns the number of events dropped after Close.
func (j *Journal) DroppedCount() int64 {
	return j.dropped.Load()
}

// Close flushes pending events and releases the database. It is safe to
// call more than once.
func (j *Journal) Close() error {
	var err error
	j.closeOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		event   Event
		payload string
		traceID sql.NullString
		tsNanos int64
	)
	if err := rows.Scan(&event.ID, &event.Seq, &event.Actor, &event.ActionType,
		&event.Target, &payload, &traceID, &tsNanos); err != nil {
		return Event{}, fmt.Errorf("failed to scan event row: %w", err)
	}
	if traceID.Valid {
		event.TraceID = traceID.String
	}
	event.Timestamp = time.Unix(0, tsNanos)
	if payload != "" && payload != "{}" {
		if err := json.Unmarshal([]byte(payload), &event.Payload); err != nil {
			return Event{}, fmt.Errorf("failed to decode event payload: %w", err)
		}
	}
	return event, nil
}
