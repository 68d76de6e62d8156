package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"support-feed-worker/internal/classifier"
	"support-feed-worker/internal/feed"
	"support-feed-worker/internal/handlers"
	"support-feed-worker/internal/marker"
	"support-feed-worker/internal/models"
	"support-feed-worker/internal/store"
)

const defaultIdleSleep = 5 * time.Second

// Tx is a downstream transaction handed to one handler.
type Tx interface {
	handlers.Store
	Commit() error
	Rollback() error
}

type BeginFunc func(ctx context.Context) (Tx, error)

// StoreBegin opens transactions on db.
func StoreBegin(db *store.Database) BeginFunc {
	return func(ctx context.Context) (Tx, error) {
		tx, err := db.Begin(ctx)
		if err != nil {
			return nil, err
		}
		return tx, nil
	}
}

type Dispatcher interface {
	Lookup(kind models.EventKind) (handlers.Handler, bool)
}

// Session is resolved once at startup.
type Session struct {
	Actor          string
	CanAssignRoles bool
}

type Config struct {
	Feed     feed.Client
	Filter   feed.Filter
	Markers  marker.Store
	Begin    BeginFunc
	Handlers Dispatcher
	Session  Session

	IdleSleep time.Duration // default 5s
	// MaxPages stops Run after that many non-empty pages. 0 = unlimited.
	MaxPages       int
	FlushEachEntry bool
	// Wait sleeps between empty polls; tests replace it.
	Wait   func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Stats is a point-in-time view of the loop for the status endpoint.
type Stats struct {
	Marker    models.Marker `json:"marker"`
	Persisted models.Marker `json:"persisted_marker"`
	Pages     int64         `json:"pages"`
	IdlePolls int64         `json:"idle_polls"`
	Committed int64         `json:"committed"`
	Skipped   int64         `json:"skipped"`
	Failed    int64         `json:"failed"`
	Unknown   int64         `json:"unknown"`
	Running   bool          `json:"running"`
}

// Worker is the single-threaded poll loop: fetch a page, process each entry
// in its own transaction, advance the marker past it whatever the outcome.
type Worker struct {
	cfg       Config
	log       *slog.Logger
	telemetry telemetry

	mu    sync.Mutex
	stats Stats
}

func New(cfg Config) *Worker {
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = defaultIdleSleep
	}
	if cfg.Wait == nil {
		cfg.Wait = sleep
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Filter.Terms) == 0 {
		cfg.Filter = feed.Filter{Terms: classifier.Terms()}
	}
	return &Worker{
		cfg:       cfg,
		log:       cfg.Logger,
		telemetry: newTelemetry(),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (w *Worker) Snapshot() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Worker) update(fn func(s *Stats)) {
	w.mu.Lock()
	fn(&w.stats)
	w.mu.Unlock()
}

// Run loops until ctx is cancelled, MaxPages is reached or the feed fails.
// The last advanced marker is persisted on every return path.
func (w *Worker) Run(ctx context.Context) error {
	current := w.cfg.Markers.Load()
	w.update(func(s *Stats) {
		s.Marker = current
		s.Persisted = current
		s.Running = true
	})
	defer w.update(func(s *Stats) { s.Running = false })
	defer w.persist()

	w.log.Info("Starting feed worker",
		"marker", current,
		"actor", w.cfg.Session.Actor,
		"can_assign_roles", w.cfg.Session.CanAssignRoles,
		"idle_sleep", w.cfg.IdleSleep,
		"max_pages", w.cfg.MaxPages)

	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			w.log.Info("Context cancelled, stopping feed worker")
			return err
		}

		entries, err := w.cfg.Feed.Fetch(ctx, current, w.cfg.Filter)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: fetch: %w", err)
		}

		if len(entries) == 0 {
			w.telemetry.recordIdle(ctx)
			w.update(func(s *Stats) { s.IdlePolls++ })
			w.log.Debug("No feed entries, sleeping", "marker", current, "sleep", w.cfg.IdleSleep)
			if err := w.cfg.Wait(ctx, w.cfg.IdleSleep); err != nil {
				return err
			}
			continue
		}

		w.log.Info("Received feed page", "entries", len(entries), "marker", current)
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				w.log.Info("Context cancelled mid page", "marker", current)
				return err
			}
			// An entry that has started always finishes.
			w.process(context.WithoutCancel(ctx), entry)

			current = entry.ID
			w.update(func(s *Stats) { s.Marker = current })
			if w.cfg.FlushEachEntry {
				w.persist()
			}
		}
		w.persist()

		pages++
		w.update(func(s *Stats) { s.Pages++ })
		if w.cfg.MaxPages > 0 && pages >= w.cfg.MaxPages {
			w.log.Info("Reached max pages, stopping", "pages", pages, "marker", current)
			return nil
		}
	}
}

// persist saves the in-memory marker when it moved. A failed save is logged
// and retried on the next call.
func (w *Worker) persist() {
	snap := w.Snapshot()
	if snap.Marker == snap.Persisted {
		return
	}
	if err := w.cfg.Markers.Save(snap.Marker); err != nil {
		w.log.Error("Failed to persist marker", "marker", snap.Marker, "error", err)
		return
	}
	w.update(func(s *Stats) { s.Persisted = snap.Marker })
	w.log.Debug("Persisted marker", "marker", snap.Marker)
}

func (w *Worker) process(ctx context.Context, entry models.FeedEntry) {
	kind := classifier.Classify(entry)
	handler, ok := w.cfg.Handlers.Lookup(kind)
	if kind == models.KindUnknown || !ok {
		w.log.Debug("Skipping unclassified entry", "entry_id", entry.ID, "categories", entry.Categories)
		w.telemetry.recordEntry(ctx, kind.String(), "unknown")
		w.update(func(s *Stats) { s.Unknown++ })
		return
	}

	ctx, span := w.telemetry.startEntry(ctx, string(entry.ID), kind.String())
	defer span.End()

	res := w.apply(ctx, handler, entry)
	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))
	w.telemetry.recordEntry(ctx, kind.String(), res.Outcome.String())

	log := w.log.With("entry_id", entry.ID, "kind", kind.String())
	for _, issue := range res.Issues {
		log.Warn("Entry issue", "error", issue)
	}

	switch res.Outcome {
	case handlers.Committed:
		w.update(func(s *Stats) { s.Committed++ })
		log.Info("Entry committed", "issues", len(res.Issues))
	case handlers.Skipped:
		w.update(func(s *Stats) { s.Skipped++ })
		log.Info("Entry skipped", "reason", res.Reason)
	default:
		w.update(func(s *Stats) { s.Failed++ })
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "entry failed")
		log.Error("Entry failed, rolled back", "error", res.Err, "payload", string(entry.Payload))
	}
}

// apply runs one handler inside its own transaction, committing unless the
// handler failed or panicked.
func (w *Worker) apply(ctx context.Context, handler handlers.Handler, entry models.FeedEntry) (res handlers.Result) {
	tx, err := w.cfg.Begin(ctx)
	if err != nil {
		return handlers.Fail(err)
	}

	defer func() {
		if r := recover(); r != nil {
			res = handlers.Fail(fmt.Errorf("handler panic: %v", r))
		}
		if res.Outcome == handlers.Failed {
			if err := tx.Rollback(); err != nil {
				res.Err = errors.Join(res.Err, err)
			}
			return
		}
		if err := tx.Commit(); err != nil {
			res.Outcome = handlers.Failed
			res.Err = err
			_ = tx.Rollback()
		}
	}()

	return handler.Handle(ctx, tx, entry)
}
