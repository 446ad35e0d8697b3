package tracker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/timeviewer/backend/internal/session"
)

var errDiskFull = errors.New("disk full")

// memStore mirrors the SQLite store's semantics in memory and records the
// order of operations.
type memStore struct {
	mu         sync.Mutex
	rows       map[int64]session.Segment
	ops        []string
	closes     int // closes that actually set an end
	failInsert error
	failClose  error
	onClose    func()
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]session.Segment)}
}

func (m *memStore) InsertOpen(_ context.Context, a session.Activity, start time.Time) (session.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "insert")
	if m.failInsert != nil {
		return session.Segment{}, m.failInsert
	}
	if _, exists := m.rows[start.UnixNano()]; exists {
		return session.Segment{}, errors.New("UNIQUE constraint failed")
	}
	title := a.Title
	seg := session.Segment{Start: start, Title: &title, URL: a.URL, App: a.App}
	m.rows[start.UnixNano()] = seg
	return seg, nil
}

func (m *memStore) Close(_ context.Context, start, end time.Time) error {
	if m.onClose != nil {
		m.onClose()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "close")
	if m.failClose != nil {
		return m.failClose
	}
	seg, ok := m.rows[start.UnixNano()]
	if !ok || seg.End != nil {
		return nil
	}
	seg.End = &end
	m.rows[start.UnixNano()] = seg
	m.closes++
	return nil
}

func (m *memStore) QueryRecent(_ context.Context, cutoff time.Time) ([]session.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]session.Segment, 0, len(m.rows))
	for _, seg := range m.rows {
		if seg.End == nil || seg.End.After(cutoff) {
			out = append(out, seg.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *memStore) LatestOpen(ctx context.Context) (session.Segment, bool, error) {
	all, _ := m.QueryRecent(ctx, time.Time{})
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].IsOpen() {
			return all[i], true, nil
		}
	}
	return session.Segment{}, false, nil
}

func (m *memStore) all() []session.Segment {
	segs, _ := m.QueryRecent(context.Background(), time.Time{})
	return segs
}

func (m *memStore) openCount() int {
	n := 0
	for _, seg := range m.all() {
		if seg.IsOpen() {
			n++
		}
	}
	return n
}

func (m *memStore) effectiveCloses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func (m *memStore) setEnd(start, end time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seg := m.rows[start.UnixNano()]
	seg.End = &end
	m.rows[start.UnixNano()] = seg
}

type recorder struct {
	mu      sync.Mutex
	updates []session.Update
}

func (r *recorder) Publish(u session.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) last() session.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

var t0 = time.Date(2026, 4, 14, 10, 0, 0, 0, time.UTC)

type harness struct {
	store *memStore
	state *session.State
	pub   *recorder
	clock *fakeClock
}

func newHarness() *harness {
	return &harness{
		store: newMemStore(),
		state: session.NewState(),
		pub:   &recorder{},
		clock: newFakeClock(t0),
	}
}

func (h *harness) pipeline() *Pipeline {
	p := NewPipeline(h.store, h.state, h.pub)
	p.now = h.clock.Now
	return p
}

func (h *harness) reaper(staleAfter time.Duration) *Reaper {
	r := NewReaper(h.store, h.state, h.pub, 10*time.Second, staleAfter)
	r.now = h.clock.Now
	return r
}

func strPtr(s string) *string { return &s }
