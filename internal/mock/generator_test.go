package mock

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timeviewer/backend/internal/session"
	"github.com/timeviewer/backend/internal/tracker"
)

var _ Handler = (*tracker.Pipeline)(nil)

type recordingHandler struct {
	mu       sync.Mutex
	events   []session.Activity
	finished int
	failWith error
}

func (h *recordingHandler) Handle(_ context.Context, a session.Activity) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, a)
	return h.failWith
}

func (h *recordingHandler) Finish(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished++
	return nil
}

func (h *recordingHandler) snapshot() ([]session.Activity, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]session.Activity(nil), h.events...), h.finished
}

func TestGenerator_ReportsUntilCancelled(t *testing.T) {
	h := &recordingHandler{}
	gen := NewGenerator(h, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		gen.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		events, _ := h.snapshot()
		return len(events) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, finished := h.snapshot()
	assert.Equal(t, 1, finished)
}

func TestGenerator_KeepsRunningOnHandlerError(t *testing.T) {
	h := &recordingHandler{failWith: errors.New("store down")}
	gen := NewGenerator(h, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gen.Run(ctx)

	require.Eventually(t, func() bool {
		events, _ := h.snapshot()
		return len(events) >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestGenerator_NextMixesIdleAndActivity(t *testing.T) {
	gen := NewGenerator(&recordingHandler{}, time.Second)
	gen.rng = rand.New(rand.NewSource(1))

	var idle, active int
	for i := 0; i < 500; i++ {
		a := gen.next()
		if a.Idle() {
			idle++
			continue
		}
		active++
		assert.NotEmpty(t, a.Title)
	}
	assert.Positive(t, idle)
	assert.Greater(t, active, idle)
}

