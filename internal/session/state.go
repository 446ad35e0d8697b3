package session

import (
	"sync"
	"time"
)

// State is the single open-segment slot shared by the ingest pipeline, the
// reaper and viewer catch-up. Every accessor holds mu only for the in-memory
// read/modify/write and releases it via defer, so a panic in one caller can
// never leave the slot locked for the others.
//
// Open/close transitions span store I/O and are serialised separately by
// BeginTransition, so the pipeline and the reaper never interleave a close.
type State struct {
	transition sync.Mutex

	mu       sync.Mutex
	open     time.Time
	hasOpen  bool
	lastSeen time.Time
	lastMark time.Time
}

func NewState() *State {
	return &State{}
}

// BeginTransition blocks until no other open/close transition is in
// progress and returns the function that ends this one. Clocks must be read
// after it returns so timestamps follow transition order.
func (s *State) BeginTransition() (end func()) {
	s.transition.Lock()
	return s.transition.Unlock
}

// Mark returns t moved forward to the latest transition timestamp handed out
// so far, or strictly past it when strict is set, and records the result.
// Segment starts are strict; close times may share the last mark.
func (s *State) Mark(t time.Time, strict bool) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case t.Before(s.lastMark):
		t = s.lastMark
		if strict {
			t = t.Add(time.Nanosecond)
		}
	case strict && t.Equal(s.lastMark):
		t = t.Add(time.Nanosecond)
	}
	s.lastMark = t
	return t
}

// TakeOpen returns the open segment's start time and clears the slot.
func (s *State) TakeOpen() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start, ok := s.open, s.hasOpen
	s.open, s.hasOpen = time.Time{}, false
	return start, ok
}

func (s *State) SetOpen(start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open, s.hasOpen = start, true
	if start.After(s.lastMark) {
		s.lastMark = start
	}
}

func (s *State) PeekOpen() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open, s.hasOpen
}

// ClearIf clears the slot only if it still holds start. It reports whether
// the slot was cleared.
func (s *State) ClearIf(start time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasOpen || !s.open.Equal(start) {
		return false
	}
	s.open, s.hasOpen = time.Time{}, false
	return true
}

// RestoreOpen puts start back into an empty slot. A slot that was filled in
// the meantime is left alone.
func (s *State) RestoreOpen(start time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasOpen {
		return false
	}
	s.open, s.hasOpen = start, true
	return true
}

// Touch records that the reporter was heard from at t.
func (s *State) Touch(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.lastSeen) {
		s.lastSeen = t
	}
}

func (s *State) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// PeekStale returns the open start time if the reporter has not been heard
// from after threshold.
func (s *State) PeekStale(threshold time.Time) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasOpen || s.lastSeen.After(threshold) {
		return time.Time{}, false
	}
	return s.open, true
}
