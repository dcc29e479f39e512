package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/orchd-dev/orchd/internal/logger"
	"github.com/orchd-dev/orchd/internal/logger/tag"
)

// warnInterval rate-limits write-failure warnings.
const warnInterval = 30 * time.Second

// writeLoop drains the queue, flushing batches when the batch size is
// reached, the flush interval elapses, or a flush is requested. Events
// issued from a single goroutine are persisted in issue order because the
// queue is a single FIFO drained by this one loop.
func (j *Journal) writeLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.flushInterval)
	defer ticker.Stop()

	batch := make([]*Event, 0, j.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := j.writeBatch(batch); err != nil {
			j.writeFails.Add(int64(len(batch)))
			j.warnWriteFailure(err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case env := <-j.queue:
			if env.flush != nil {
				flush()
				close(env.flush)
				continue
			}
			batch = append(batch, env.event)
			if len(batch) >= j.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-j.done:
			// Final drain: consume whatever is already buffered, then flush.
			for {
				select {
				case env := <-j.queue:
					if env.flush != nil {
						// Events queued ahead of the flush request must be
						// durable before the waiter is released.
						flush()
						close(env.flush)
						continue
					}
					batch = append(batch, env.event)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (j *Journal) writeBatch(batch []*Event) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO activity (id, seq, actor, action_type, target, payload, trace_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, event := range batch {
		payload := "{}"
		if len(event.Payload) > 0 {
			data, err := json.Marshal(event.Payload)
			if err != nil {
				// An unmarshalable payload must not poison the batch.
				payload = `{"_error":"payload not serializable"}`
			} else {
				payload = string(data)
			}
		}
		var traceID any
		if event.TraceID != "" {
			traceID = event.TraceID
		}
		if _, err := stmt.Exec(event.ID, event.Seq, event.Actor, event.ActionType,
			event.Target, payload, traceID, event.Timestamp.UnixNano()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// warnWriteFailure logs at most one warning per warnInterval, carrying the
// cumulative failure count.
func (j *Journal) warnWriteFailure(err error) {
	j.warnMu.Lock()
	defer j.warnMu.Unlock()

	if time.Since(j.lastWarn) < warnInterval {
		return
	}
	j.lastWarn = time.Now()
	logger.Warn(context.Background(), "Journal write failed",
		tag.Error(err),
		tag.Count(int(j.writeFails.Load())),
	)
}
