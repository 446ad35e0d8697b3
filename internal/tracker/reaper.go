package tracker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/timeviewer/backend/internal/logging"
	"github.com/timeviewer/backend/internal/session"
)

// Reaper periodically closes an open segment whose reporter has gone quiet,
// so a crashed or disconnected reporter cannot leave a segment open forever.
type Reaper struct {
	store      Store
	state      *session.State
	pub        Publisher
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	log        *logrus.Entry
}

func NewReaper(store Store, state *session.State, pub Publisher, interval, staleAfter time.Duration) *Reaper {
	return &Reaper{
		store:      store,
		state:      state,
		pub:        pub,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        logging.NewLogger("reaper"),
	}
}

// Run ticks until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Tick(ctx); err != nil {
				r.log.WithError(err).Warn("failed to close stale segment")
			}
		}
	}
}

// Tick closes the open segment if the reporter has been silent for at least
// staleAfter. It reports whether it closed one.
func (r *Reaper) Tick(ctx context.Context) (bool, error) {
	if r.state == nil {
		return false, session.InternalError("reap", errNoState)
	}

	defer r.state.BeginTransition()()
	now := r.now().UTC()
	start, ok := r.state.PeekStale(now.Add(-r.staleAfter))
	if !ok {
		return false, nil
	}
	now = r.state.Mark(now, false)
	if err := r.store.Close(ctx, start, now); err != nil {
		return false, storageErr("close stale segment", err)
	}
	if !r.state.ClearIf(start) {
		return false, nil
	}

	r.pub.Publish(session.IdleUpdate(now))
	r.log.WithFields(logrus.Fields{
		"start": start.Format(time.RFC3339Nano),
		"end":   now.Format(time.RFC3339Nano),
	}).Info("closed stale segment")
	return true, nil
}
