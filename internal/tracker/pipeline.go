package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/timeviewer/backend/internal/logging"
	"github.com/timeviewer/backend/internal/session"
)

var errNoState = errors.New("session state not initialised")

// Pipeline ingests one reporter connection's activity stream. It is not
// safe for concurrent use; a connection feeds it sequentially.
type Pipeline struct {
	store Store
	state *session.State
	pub   Publisher
	now   func() time.Time
	log   *logrus.Entry
}

func NewPipeline(store Store, state *session.State, pub Publisher) *Pipeline {
	return &Pipeline{
		store: store,
		state: state,
		pub:   pub,
		now:   time.Now,
		log:   logging.NewLogger("ingest"),
	}
}

// Handle applies one activity event: close whatever is open, open a new
// segment unless the event is idle, then notify viewers. The store write
// always precedes the matching state change, so a failed write leaves the
// state as it was.
func (p *Pipeline) Handle(ctx context.Context, activity session.Activity) error {
	if p.state == nil {
		return session.InternalError("handle activity", errNoState)
	}

	defer p.state.BeginTransition()()
	now := p.nextStart()
	p.state.Touch(now)

	if err := p.closeOpen(ctx, now); err != nil {
		return err
	}

	if !activity.Idle() {
		if _, err := p.store.InsertOpen(ctx, activity, now); err != nil {
			return storageErr("insert segment", err)
		}
		p.state.SetOpen(now)
	}

	p.pub.Publish(session.NewUpdate(activity, now))

	p.log.WithFields(logrus.Fields{
		"app":   activity.App,
		"start": now.Format(time.RFC3339Nano),
	}).Debug("activity recorded")
	return nil
}

// Finish runs when the reporter connection ends. It closes any segment
// still open and tells viewers focus is gone.
func (p *Pipeline) Finish(ctx context.Context) error {
	if p.state == nil {
		return session.InternalError("finish pipeline", errNoState)
	}

	defer p.state.BeginTransition()()
	now := p.nextStart()
	if start, ok := p.state.TakeOpen(); ok {
		if err := p.store.Close(ctx, start, now); err != nil {
			p.state.RestoreOpen(start)
			return storageErr("close segment", err)
		}
		p.log.WithField("start", start.Format(time.RFC3339Nano)).Debug("closed segment on disconnect")
	}

	p.pub.Publish(session.IdleUpdate(now))
	return nil
}

func (p *Pipeline) closeOpen(ctx context.Context, now time.Time) error {
	start, ok := p.state.PeekOpen()
	if !ok {
		return nil
	}
	if err := p.store.Close(ctx, start, now); err != nil {
		return storageErr("close segment", err)
	}
	p.state.ClearIf(start)
	return nil
}

// nextStart returns the current time, nudged forward so start times stay
// strictly increasing even if the clock stalls or steps back. Callers hold
// the transition.
func (p *Pipeline) nextStart() time.Time {
	return p.state.Mark(p.now().UTC(), true)
}
