// Package viewqueue records book reads off the request path. Events are
// buffered and written in batches; when the buffer is full they are dropped.
package viewqueue

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/5w1tchy/folio-api/internal/store/dbx"
)

type Event struct {
	BookID string
	UserID string
	ReadAt time.Time
}

// Sink persists a batch of events.
type Sink interface {
	WriteBatch(ctx context.Context, batch []Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, batch []Event) error

func (f SinkFunc) WriteBatch(ctx context.Context, batch []Event) error { return f(ctx, batch) }

const (
	batchSize  = 100
	flushEvery = 250 * time.Millisecond
	writeTO    = 500 * time.Millisecond
)

type Queue struct {
	sink Sink
	ch   chan Event
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Start spins up workers reading from a buffer of size buf.
// Suggested: buf=10000, workers=2.
func Start(sink Sink, buf, workers int) *Queue {
	if buf <= 0 {
		buf = 1
	}
	if workers <= 0 {
		workers = 1
	}
	q := &Queue{sink: sink, ch: make(chan Event, buf), done: make(chan struct{})}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue queues a read without blocking. Safe on a nil Queue.
func (q *Queue) Enqueue(bookID, userID string) bool {
	if q == nil || bookID == "" {
		return false
	}
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- Event{BookID: bookID, UserID: userID, ReadAt: time.Now().UTC()}:
		return true
	default:
		return false // full
	}
}

// Shutdown stops the workers after flushing buffered events.
func (q *Queue) Shutdown() {
	if q == nil {
		return
	}
	q.once.Do(func() { close(q.done) })
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	tk := time.NewTicker(flushEvery)
	defer tk.Stop()

	batch := make([]Event, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTO)
		if err := q.sink.WriteBatch(ctx, batch); err != nil {
			log.Printf("[viewqueue] dropped %d read events: %v", len(batch), err)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case <-q.done:
			for {
				select {
				case ev := <-q.ch:
					batch = append(batch, ev)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case ev := <-q.ch:
			batch = append(batch, ev)
			if len(batch) >= batchSize {
				flush()
			}
		case <-tk.C:
			flush()
		}
	}
}

// Schema creates the read events table used by SQLSink.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS book_read_events (
		book_id text        NOT NULL,
		user_id text        NOT NULL DEFAULT '',
		read_at timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_book_read_events_book_id_read_at
		ON book_read_events (book_id, read_at DESC)`,
}

const insertTmpl = `INSERT INTO book_read_events (book_id, user_id, read_at) VALUES %s`

// SQLSink writes batches with one multi-row INSERT.
type SQLSink struct {
	DB dbx.Execer
}

func (s SQLSink) WriteBatch(ctx context.Context, batch []Event) error {
	if len(batch) == 0 {
		return nil
	}
	args := make([]any, 0, len(batch)*3)
	var vals strings.Builder
	for i, ev := range batch {
		if i > 0 {
			vals.WriteByte(',')
		}
		fmt.Fprintf(&vals, "($%d,$%d,$%d)", 3*i+1, 3*i+2, 3*i+3)
		args = append(args, ev.BookID, ev.UserID, ev.ReadAt)
	}
	_, err := s.DB.ExecContext(ctx, fmt.Sprintf(insertTmpl, vals.String()), args...)
	return err
}

// LogSink is used when no SQL database is configured.
var LogSink = SinkFunc(func(_ context.Context, batch []Event) error {
	log.Printf("[viewqueue] %d read events", len(batch))
	return nil
})
