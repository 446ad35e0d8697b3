package mock

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/timeviewer/backend/internal/logging"
	"github.com/timeviewer/backend/internal/session"
)

// Handler is the part of a reporter pipeline the generator drives.
type Handler interface {
	Handle(ctx context.Context, activity session.Activity) error
	Finish(ctx context.Context) error
}

var mockActivities = []session.Activity{
	{App: "Code", Title: "main.go - timeviewer"},
	{App: "Code", Title: "pipeline.go - timeviewer"},
	{App: "Firefox", Title: "Go Documentation", URL: strPtr("https://go.dev/doc/")},
	{App: "Firefox", Title: "Pull requests", URL: strPtr("https://github.com/pulls")},
	{App: "Firefox", Title: "Hacker News", URL: strPtr("https://news.ycombinator.com/")},
	{App: "Terminal", Title: "zsh"},
	{App: "Slack", Title: "#general"},
}

// idleEvery is how many ticks, on average, pass between idle reports.
const idleEvery = 6

// Generator plays a fake reporter: it switches between a fixed set of
// windows and occasionally goes idle.
type Generator struct {
	handler  Handler
	interval time.Duration
	rng      *rand.Rand
	log      *logrus.Entry
}

func NewGenerator(handler Handler, interval time.Duration) *Generator {
	return &Generator{
		handler:  handler,
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      logging.NewLogger("mock"),
	}
}

// Run reports one activity per interval until ctx is cancelled, then closes
// whatever is still open.
func (g *Generator) Run(ctx context.Context) {
	g.log.Infof("Mock reporter started (every %v)", g.interval)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.step(ctx, g.next())
	for {
		select {
		case <-ctx.Done():
			if err := g.handler.Finish(context.Background()); err != nil {
				g.log.WithError(err).Warn("mock finish failed")
			}
			g.log.Info("Mock reporter stopped")
			return
		case <-ticker.C:
			g.step(ctx, g.next())
		}
	}
}

func (g *Generator) step(ctx context.Context, a session.Activity) {
	if err := g.handler.Handle(ctx, a); err != nil {
		g.log.WithError(err).Warn("mock activity rejected")
	}
}

func (g *Generator) next() session.Activity {
	if g.rng.Intn(idleEvery) == 0 {
		return session.Activity{}
	}
	return mockActivities[g.rng.Intn(len(mockActivities))]
}

func strPtr(s string) *string { return &s }
