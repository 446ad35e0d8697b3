// Package tracker turns the reporter's focus events into persisted,
// non-overlapping segments and keeps the shared open-segment slot consistent
// with the store.
package tracker

import (
	"context"
	"time"

	"github.com/timeviewer/backend/internal/session"
)

// Store is the durable segment store the tracker writes through.
type Store interface {
	InsertOpen(ctx context.Context, activity session.Activity, start time.Time) (session.Segment, error)
	Close(ctx context.Context, start, end time.Time) error
	QueryRecent(ctx context.Context, cutoff time.Time) ([]session.Segment, error)
	LatestOpen(ctx context.Context) (session.Segment, bool, error)
}

// Publisher fans updates out to viewers. Publish must not block.
type Publisher interface {
	Publish(update session.Update)
}

func storageErr(op string, err error) error {
	if session.IsKind(err, session.KindStorage) {
		return err
	}
	return session.StorageError(op, err)
}
