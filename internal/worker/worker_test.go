package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-feed-worker/internal/feed"
	"support-feed-worker/internal/handlers"
	"support-feed-worker/internal/models"
	"support-feed-worker/internal/store"
)

const roleTerm = "type:support.roles.account_support.update.hybrid"

type scriptedFeed struct {
	mu    sync.Mutex
	pages [][]models.FeedEntry
	err   error
	calls []models.Marker
}

func (f *scriptedFeed) Fetch(_ context.Context, marker models.Marker, _ feed.Filter) ([]models.FeedEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, marker)
	if len(f.pages) == 0 {
		if f.err != nil {
			return nil, f.err
		}
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

type memMarkers struct {
	start  models.Marker
	fail   int
	failed int
	saves  []models.Marker
}

func (m *memMarkers) Load() models.Marker { return m.start }

func (m *memMarkers) Save(marker models.Marker) error {
	if m.fail > 0 {
		m.fail--
		m.failed++
		return errors.New("disk full")
	}
	m.saves = append(m.saves, marker)
	return nil
}

type fakeTx struct {
	handlers.Store
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit() error   { t.committed = true; return nil }
func (t *fakeTx) Rollback() error { t.rolledBack = true; return nil }

type txRecorder struct {
	txs []*fakeTx
}

func (r *txRecorder) begin(context.Context) (Tx, error) {
	tx := &fakeTx{}
	r.txs = append(r.txs, tx)
	return tx, nil
}

func roleEntry(id string) models.FeedEntry {
	return models.FeedEntry{ID: models.Marker(id), Categories: []string{"tid:1", roleTerm}}
}

func registry(h handlers.HandlerFunc) *handlers.Registry {
	r := handlers.NewRegistry(handlers.Options{})
	r.Register(models.KindAccountRole, h)
	return r
}

func committing(context.Context, handlers.Store, models.FeedEntry) handlers.Result {
	return handlers.Commit()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(f *scriptedFeed, m *memMarkers, begin BeginFunc, d Dispatcher, tweak func(*Config)) *Worker {
	cfg := Config{
		Feed:     f,
		Markers:  m,
		Begin:    begin,
		Handlers: d,
		Wait:     func(context.Context, time.Duration) error { return nil },
		Logger:   quietLogger(),
	}
	if tweak != nil {
		tweak(&cfg)
	}
	return New(cfg)
}

func TestMarkerAdvancesPastFailedEntry(t *testing.T) {
	f := &scriptedFeed{pages: [][]models.FeedEntry{{roleEntry("1"), roleEntry("2"), roleEntry("3")}}}
	m := &memMarkers{}
	rec := &txRecorder{}
	var seen []models.Marker
	h := registry(func(_ context.Context, _ handlers.Store, e models.FeedEntry) handlers.Result {
		seen = append(seen, e.ID)
		if e.ID == "2" {
			return handlers.Fail(errors.New("boom"))
		}
		return handlers.Commit()
	})

	w := newTestWorker(f, m, rec.begin, h, func(c *Config) { c.MaxPages = 1 })
	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, []models.Marker{"1", "2", "3"}, seen, "entries are processed in feed order")
	assert.Equal(t, []models.Marker{"3"}, m.saves, "marker persisted once per page")
	require.Len(t, rec.txs, 3)
	assert.True(t, rec.txs[0].committed)
	assert.True(t, rec.txs[1].rolledBack)
	assert.False(t, rec.txs[1].committed)
	assert.True(t, rec.txs[2].committed)

	stats := w.Snapshot()
	assert.Equal(t, models.Marker("3"), stats.Marker)
	assert.Equal(t, models.Marker("3"), stats.Persisted)
	assert.Equal(t, int64(2), stats.Committed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.False(t, stats.Running)
}

func TestMarkerEqualsLastEntryAcrossPages(t *testing.T) {
	f := &scriptedFeed{pages: [][]models.FeedEntry{
		{roleEntry("a1"), roleEntry("a2")},
		{roleEntry("b1")},
		{roleEntry("c1"), roleEntry("c2"), roleEntry("c3")},
	}}
	m := &memMarkers{start: "a0"}
	rec := &txRecorder{}
	h := registry(func(_ context.Context, _ handlers.Store, e models.FeedEntry) handlers.Result {
		if e.ID == "b1" {
			return handlers.Fail(errors.New("boom"))
		}
		return handlers.Commit()
	})

	w := newTestWorker(f, m, rec.begin, h, func(c *Config) { c.MaxPages = 3 })
	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, []models.Marker{"a0", "a2", "b1"}, f.calls, "each fetch starts from the last processed entry")
	assert.Equal(t, []models.Marker{"a2", "b1", "c3"}, m.saves)
}

func TestFlushEachEntry(t *testing.T) {
	f := &scriptedFeed{pages: [][]models.FeedEntry{{roleEntry("1"), roleEntry("2")}}}
	m := &memMarkers{}
	rec := &txRecorder{}

	w := newTestWorker(f, m, rec.begin, registry(committing), func(c *Config) {
		c.MaxPages = 1
		c.FlushEachEntry = true
	})
	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, []models.Marker{"1", "2"}, m.saves)
}

func TestUnknownCategoryAdvancesMarkerWithoutTransaction(t *testing.T) {
	unknown := models.FeedEntry{ID: "u1", Categories: []string{"type:billing.invoice.create"}}
	untyped := models.FeedEntry{ID: "u2", Categories: []string{"tid:7"}}
	f := &scriptedFeed{pages: [][]models.FeedEntry{{unknown, untyped}}}
	m := &memMarkers{}
	rec := &txRecorder{}
	called := false
	h := registry(func(context.Context, handlers.Store, models.FeedEntry) handlers.Result {
		called = true
		return handlers.Commit()
	})

	w := newTestWorker(f, m, rec.begin, h, func(c *Config) { c.MaxPages = 1 })
	require.NoError(t, w.Run(context.Background()))

	assert.False(t, called)
	assert.Empty(t, rec.txs)
	assert.Equal(t, []models.Marker{"u2"}, m.saves)
	assert.Equal(t, int64(2), w.Snapshot().Unknown)
}

func TestEmptyFeedWaitsBeforeEachRefetch(t *testing.T) {
	f := &scriptedFeed{pages: [][]models.FeedEntry{{}, {}, {}, {roleEntry("1")}}}
	m := &memMarkers{start: "m0"}
	rec := &txRecorder{}
	var waits []time.Duration

	w := newTestWorker(f, m, rec.begin, registry(committing), func(c *Config) {
		c.MaxPages = 1
		c.IdleSleep = 2 * time.Second
		c.Wait = func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			assert.Empty(t, m.saves, "marker untouched while idle")
			return nil
		}
	})
	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, waits)
	assert.Equal(t, []models.Marker{"m0", "m0", "m0", "m0"}, f.calls)
	assert.Equal(t, []models.Marker{"1"}, m.saves)
	assert.Equal(t, int64(3), w.Snapshot().IdlePolls)
}

func TestFetchErrorIsFatal(t *testing.T) {
	boom := errors.New("connection refused")
	f := &scriptedFeed{pages: [][]models.FeedEntry{{roleEntry("1"), roleEntry("2")}}, err: boom}
	m := &memMarkers{}
	rec := &txRecorder{}

	w := newTestWorker(f, m, rec.begin, registry(committing), nil)
	err := w.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "feed: fetch")
	assert.Equal(t, []models.Marker{"2"}, m.saves)
}

func TestCancellationFlushesLastAdvancedMarker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &scriptedFeed{pages: [][]models.FeedEntry{{roleEntry("1"), roleEntry("2")}}}
	m := &memMarkers{}
	rec := &txRecorder{}
	h := registry(func(context.Context, handlers.Store, models.FeedEntry) handlers.Result {
		cancel()
		return handlers.Commit()
	})

	w := newTestWorker(f, m, rec.begin, h, nil)
	err := w.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, rec.txs, 1, "in-flight entry completes, the next one never starts")
	assert.True(t, rec.txs[0].committed)
	assert.Equal(t, []models.Marker{"1"}, m.saves)
}

func TestMarkerSaveFailureIsNotFatal(t *testing.T) {
	f := &scriptedFeed{pages: [][]models.FeedEntry{{roleEntry("1")}, {roleEntry("2")}}}
	m := &memMarkers{fail: 1}
	rec := &txRecorder{}

	w := newTestWorker(f, m, rec.begin, registry(committing), func(c *Config) { c.MaxPages = 2 })
	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, 1, m.failed)
	assert.Equal(t, []models.Marker{"2"}, m.saves)
	assert.Equal(t, []models.Marker{"", "1"}, f.calls, "in-memory marker keeps advancing")
}

func TestHandlerPanicRollsBack(t *testing.T) {
	f := &scriptedFeed{pages: [][]models.FeedEntry{{roleEntry("1"), roleEntry("2")}}}
	m := &memMarkers{}
	rec := &txRecorder{}
	h := registry(func(_ context.Context, _ handlers.Store, e models.FeedEntry) handlers.Result {
		if e.ID == "1" {
			panic("nil map")
		}
		return handlers.Commit()
	})

	w := newTestWorker(f, m, rec.begin, h, func(c *Config) { c.MaxPages = 1 })
	require.NoError(t, w.Run(context.Background()))

	require.Len(t, rec.txs, 2)
	assert.True(t, rec.txs[0].rolledBack)
	assert.True(t, rec.txs[1].committed)
	assert.Equal(t, []models.Marker{"2"}, m.saves)
}

func TestBeginFailureCountsAsFailedEntry(t *testing.T) {
	f := &scriptedFeed{pages: [][]models.FeedEntry{{roleEntry("1")}}}
	m := &memMarkers{}
	begin := func(context.Context) (Tx, error) { return nil, errors.New("database is locked") }

	w := newTestWorker(f, m, begin, registry(committing), func(c *Config) { c.MaxPages = 1 })
	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, int64(1), w.Snapshot().Failed)
	assert.Equal(t, []models.Marker{"1"}, m.saves)
}

func TestSkippedEntriesAreCommitted(t *testing.T) {
	f := &scriptedFeed{pages: [][]models.FeedEntry{{roleEntry("1")}}}
	m := &memMarkers{}
	rec := &txRecorder{}
	h := registry(func(context.Context, handlers.Store, models.FeedEntry) handlers.Result {
		return handlers.Skip("not support")
	})

	w := newTestWorker(f, m, rec.begin, h, func(c *Config) { c.MaxPages = 1 })
	require.NoError(t, w.Run(context.Background()))

	require.Len(t, rec.txs, 1)
	assert.True(t, rec.txs[0].committed)
	assert.Equal(t, int64(1), w.Snapshot().Skipped)
}

func TestForwardProgressAgainstStore(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.Options{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "worker.sqlite"),
		Actor:  "svc-feed",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		for _, id := range []int64{1, 2, 3} {
			require.NoError(t, tx.CreateAccount(ctx, store.Account{ID: id}))
		}
		_, err := tx.CreateContact(ctx, "alice", "Alice")
		return err
	}))

	event := func(id, account string) models.FeedEntry {
		e := roleEntry(id)
		e.Payload = []byte(`{"resourceId":"hybrid:` + account + `","product":{"role":{"role":"PRIMARY_LEAD_TECH","sso":"alice"}}}`)
		return e
	}
	f := &scriptedFeed{pages: [][]models.FeedEntry{{event("e1", "1"), event("e2", "2"), event("e3", "3")}}}
	m := &memMarkers{}

	role := handlers.RoleHandler{}
	h := registry(func(ctx context.Context, s handlers.Store, e models.FeedEntry) handlers.Result {
		res := role.Handle(ctx, s, e)
		if e.ID == "e2" {
			return handlers.Fail(errors.New("downstream rejected account 2"))
		}
		return res
	})

	w := newTestWorker(f, m, StoreBegin(db), h, func(c *Config) {
		c.MaxPages = 1
		c.Session = Session{Actor: "svc-feed"}
	})
	require.NoError(t, w.Run(ctx))
	assert.Equal(t, []models.Marker{"e3"}, m.saves)

	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		for account, want := range map[int64]int{1: 1, 2: 0, 3: 1} {
			holders, err := tx.RoleHolders(ctx, account)
			require.NoError(t, err)
			assert.Len(t, holders, want, "account %d", account)

			log, err := tx.ContactChangeLog(ctx, account)
			require.NoError(t, err)
			assert.Len(t, log, want, "account %d", account)
		}
		return nil
	}))
}
