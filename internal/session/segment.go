package session

import (
	"time"
)

// Activity is a raw focus-change event from the reporter. An empty App means
// focus was lost (idle).
type Activity struct {
	App   string  `json:"app"`
	Title string  `json:"title"`
	URL   *string `json:"url"`
}

func (a Activity) Idle() bool {
	return a.App == ""
}

// Segment is one persisted span of focus on a single window. End is nil
// while the segment is still open.
type Segment struct {
	Start time.Time  `json:"starttime"`
	End   *time.Time `json:"endtime"`
	Title *string    `json:"title"`
	URL   *string    `json:"url"`
	App   string     `json:"app"`
}

func (s Segment) IsOpen() bool {
	return s.End == nil
}

// Duration returns the span of the segment, measuring open segments up to now.
func (s Segment) Duration(now time.Time) time.Duration {
	end := now
	if s.End != nil {
		end = *s.End
	}
	if end.Before(s.Start) {
		return 0
	}
	return end.Sub(s.Start)
}

// Clone returns a deep copy so the copy can be mutated independently.
func (s Segment) Clone() Segment {
	if s.End != nil {
		t := *s.End
		s.End = &t
	}
	if s.Title != nil {
		t := *s.Title
		s.Title = &t
	}
	if s.URL != nil {
		u := *s.URL
		s.URL = &u
	}
	return s
}

// Update is the live notification sent to viewers whenever a segment opens
// or focus goes idle. It mirrors the store write it follows.
type Update struct {
	App       string    `json:"app"`
	Title     string    `json:"title"`
	URL       *string   `json:"url"`
	StartTime time.Time `json:"starttime"`
}

func (u Update) Idle() bool {
	return u.App == ""
}

// NewUpdate builds the broadcast counterpart of an activity starting at start.
func NewUpdate(a Activity, start time.Time) Update {
	return Update{
		App:       a.App,
		Title:     a.Title,
		URL:       a.URL,
		StartTime: start,
	}
}

// IdleUpdate is the update published when focus is lost or a segment is
// force-closed.
func IdleUpdate(at time.Time) Update {
	return Update{StartTime: at}
}

// DefaultDayBoundaryHour is the local hour at which a new tracking day begins.
const DefaultDayBoundaryHour = 8

// DayStart returns the start of the tracking day containing now: today at
// boundaryHour local time, or yesterday's if now is earlier than that.
func DayStart(now time.Time, boundaryHour int) time.Time {
	if now.Hour() < boundaryHour {
		now = now.Add(-24 * time.Hour)
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, boundaryHour, 0, 0, 0, now.Location())
}
