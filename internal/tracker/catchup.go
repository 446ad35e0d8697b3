package tracker

import (
	"context"
	"time"

	"github.com/timeviewer/backend/internal/session"
)

// Catchup builds the snapshot a viewer receives when it connects.
type Catchup struct {
	store        Store
	state        *session.State
	boundaryHour int
}

func NewCatchup(store Store, state *session.State, boundaryHour int) *Catchup {
	return &Catchup{store: store, state: state, boundaryHour: boundaryHour}
}

// Snapshot returns every segment of the current tracking day. If the open
// slot points at the last segment, that segment is reported as still open
// regardless of any end the store already holds for it.
func (c *Catchup) Snapshot(ctx context.Context, now time.Time) ([]session.Segment, error) {
	if c.state == nil {
		return nil, session.InternalError("snapshot", errNoState)
	}

	cutoff := session.DayStart(now, c.boundaryHour)
	segments, err := c.store.QueryRecent(ctx, cutoff)
	if err != nil {
		return nil, storageErr("query recent segments", err)
	}

	open, ok := c.state.PeekOpen()
	if ok && len(segments) > 0 {
		last := &segments[len(segments)-1]
		if last.Start.Equal(open) {
			last.End = nil
		}
	}
	return segments, nil
}

// Recover closes the segment a previous run left open. The process may have
// been down for hours, so the row is not charged up to now: it ends where a
// live reaper would have ended it at the latest, start plus grace, or at now
// if that is earlier. The closed segment is returned.
func Recover(ctx context.Context, store Store, state *session.State, grace time.Duration, now time.Time) (session.Segment, bool, error) {
	if state == nil {
		return session.Segment{}, false, session.InternalError("recover", errNoState)
	}

	seg, ok, err := store.LatestOpen(ctx)
	if err != nil {
		return session.Segment{}, false, storageErr("query open segment", err)
	}
	if !ok {
		return session.Segment{}, false, nil
	}

	end := seg.Start.Add(grace)
	if now.Before(end) {
		end = now
	}
	if end.Before(seg.Start) {
		end = seg.Start
	}
	end = end.UTC()
	if err := store.Close(ctx, seg.Start, end); err != nil {
		return session.Segment{}, false, storageErr("close recovered segment", err)
	}
	// New segments must start after the recovered end.
	state.Mark(end, false)
	seg.End = &end
	return seg, true, nil
}
