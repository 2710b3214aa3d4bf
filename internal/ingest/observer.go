package ingest

import (
	"context"
	"log/slog"
	"sync"
)

type Stage string

const (
	StageContent Stage = "content"
	StageCover   Stage = "cover"
)

// Event is a progress report for one stage. Percent is in [0, 100] and never
// decreases within a stage.
type Event struct {
	Stage   Stage   `json:"stage"`
	Percent float64 `json:"percent"`
}

// Observer receives ingestion progress. Every ingestion ends with exactly one
// call to Completed or Failed. Calls happen on the ingesting goroutine, so
// implementations must return quickly.
type Observer interface {
	Progress(Event)
	Completed(bookID string)
	Failed(err error)
}

// ObserverFuncs adapts plain functions; nil fields are skipped.
type ObserverFuncs struct {
	OnProgress  func(Event)
	OnCompleted func(bookID string)
	OnFailed    func(err error)
}

func (o ObserverFuncs) Progress(e Event) {
	if o.OnProgress != nil {
		o.OnProgress(e)
	}
}

func (o ObserverFuncs) Completed(id string) {
	if o.OnCompleted != nil {
		o.OnCompleted(id)
	}
}

func (o ObserverFuncs) Failed(err error) {
	if o.OnFailed != nil {
		o.OnFailed(err)
	}
}

// Discard ignores every notification.
var Discard Observer = ObserverFuncs{}

// LogObserver writes terminal events to a structured logger. Progress is
// logged at debug level.
type LogObserver struct {
	Ctx    context.Context
	Logger *slog.Logger
}

func (o LogObserver) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o LogObserver) ctx() context.Context {
	if o.Ctx != nil {
		return o.Ctx
	}
	return context.Background()
}

func (o LogObserver) Progress(e Event) {
	o.logger().DebugContext(o.ctx(), "ingest progress", "stage", e.Stage, "percent", e.Percent)
}

func (o LogObserver) Completed(id string) {
	o.logger().InfoContext(o.ctx(), "ingest completed", "book_id", id)
}

func (o LogObserver) Failed(err error) {
	o.logger().WarnContext(o.ctx(), "ingest failed", "error", err)
}

// Tee fans every notification out to all observers in order.
func Tee(obs ...Observer) Observer { return tee(obs) }

type tee []Observer

func (t tee) Progress(e Event) {
	for _, o := range t {
		o.Progress(e)
	}
}

func (t tee) Completed(id string) {
	for _, o := range t {
		o.Completed(id)
	}
}

func (t tee) Failed(err error) {
	for _, o := range t {
		o.Failed(err)
	}
}

// Recorder keeps every notification; safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	events    []Event
	bookID    string
	err       error
	terminals int
}

func (r *Recorder) Progress(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Completed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookID = id
	r.terminals++
}

func (r *Recorder) Failed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.terminals++
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Result returns the completed book id or the failure, and how many terminal
// calls were made.
func (r *Recorder) Result() (bookID string, terminals int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookID, r.terminals, r.err
}

// progressTracker clamps percentages and drops regressions for one stage.
type progressTracker struct {
	obs   Observer
	stage Stage
	last  float64
	sent  bool
}

func (p *progressTracker) report(pct float64) {
	pct = min(max(pct, 0), 100)
	if p.sent && pct <= p.last {
		return
	}
	p.last, p.sent = pct, true
	p.obs.Progress(Event{Stage: p.stage, Percent: pct})
}
