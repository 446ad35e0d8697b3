// Package timeline folds a catch-up snapshot and the live updates that
// follow it into the viewer's picture of the day, and aggregates it.
package timeline

import (
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/timeviewer/backend/internal/session"
)

type Timeline struct {
	segments []session.Segment
}

func New(snapshot []session.Segment) *Timeline {
	t := &Timeline{}
	t.Reset(snapshot)
	return t
}

// Reset replaces the timeline with a fresh snapshot.
func (t *Timeline) Reset(snapshot []session.Segment) {
	t.segments = make([]session.Segment, len(snapshot))
	for i, seg := range snapshot {
		t.segments[i] = seg.Clone()
	}
}

// Apply folds a live update in: the open segment ends where the update
// starts, and a non-idle update opens a new segment. An update already
// covered by the snapshot is ignored.
func (t *Timeline) Apply(u session.Update) {
	if n := len(t.segments); n > 0 {
		last := &t.segments[n-1]
		if !u.Idle() && last.Start.Equal(u.StartTime) {
			return
		}
		if last.IsOpen() && !u.StartTime.Before(last.Start) {
			end := u.StartTime
			last.End = &end
		}
	}
	if u.Idle() {
		return
	}
	title := u.Title
	t.segments = append(t.segments, session.Segment{
		Start: u.StartTime,
		Title: &title,
		URL:   u.URL,
		App:   u.App,
	})
}

func (t *Timeline) Segments() []session.Segment {
	out := make([]session.Segment, len(t.segments))
	for i, seg := range t.segments {
		out[i] = seg.Clone()
	}
	return out
}

// Current returns the open segment, if the last one is still open.
func (t *Timeline) Current() (session.Segment, bool) {
	if n := len(t.segments); n > 0 && t.segments[n-1].IsOpen() {
		return t.segments[n-1].Clone(), true
	}
	return session.Segment{}, false
}

// Total is the time spent under one key.
type Total struct {
	Key      string        `json:"key"`
	Duration time.Duration `json:"-"`
	Seconds  float64       `json:"seconds"`
}

// KeyFunc maps a segment to the bucket it is totalled under. An empty key
// excludes the segment.
type KeyFunc func(session.Segment) string

func ByApp(seg session.Segment) string {
	return seg.App
}

// ByHost buckets browser segments by the host of their URL.
func ByHost(seg session.Segment) string {
	if seg.URL == nil || *seg.URL == "" {
		return ""
	}
	u, err := url.Parse(*seg.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Totals sums segment durations per key, measuring an open segment up to
// now. Results are ordered by duration, longest first.
func (t *Timeline) Totals(now time.Time, key KeyFunc) []Total {
	return totals(t.segments, time.Time{}, now, key)
}

// clippedDuration is the part of seg's duration that falls after since.
func clippedDuration(seg session.Segment, since, now time.Time) time.Duration {
	if seg.Start.Before(since) {
		seg.Start = since
	}
	return seg.Duration(now)
}

func totals(segments []session.Segment, since, now time.Time, key KeyFunc) []Total {
	sums := make(map[string]time.Duration)
	for _, seg := range segments {
		k := key(seg)
		if k == "" {
			continue
		}
		sums[k] += clippedDuration(seg, since, now)
	}

	out := make([]Total, 0, len(sums))
	for k, d := range sums {
		out = append(out, Total{Key: k, Duration: d, Seconds: d.Seconds()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Duration != out[j].Duration {
			return out[i].Duration > out[j].Duration
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Summary is the day's aggregate served by the summary endpoint.
type Summary struct {
	Since        time.Time `json:"since"`
	TotalSeconds float64   `json:"totalSeconds"`
	Apps         []Total   `json:"apps"`
	Hosts        []Total   `json:"hosts"`
}

// Summarize totals segments from since to now. Time before since is not
// counted, even for a segment that started earlier.
func Summarize(segments []session.Segment, since, now time.Time) Summary {
	var total time.Duration
	for _, seg := range segments {
		total += clippedDuration(seg, since, now)
	}
	return Summary{
		Since:        since,
		TotalSeconds: total.Seconds(),
		Apps:         totals(segments, since, now, ByApp),
		Hosts:        totals(segments, since, now, ByHost),
	}
}

// FormatDuration renders d compactly: "<1s", "42s", "3m 5s", "2h 14m".
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "<1s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d/time.Minute), int(d%time.Minute/time.Second))
	default:
		return fmt.Sprintf("%dh %dm", int(d/time.Hour), int(d%time.Hour/time.Minute))
	}
}
