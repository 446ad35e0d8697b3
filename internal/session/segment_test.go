package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDayStart(t *testing.T) {
	loc := time.FixedZone("test", -5*60*60)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"after boundary", time.Date(2026, 5, 10, 14, 3, 9, 42, loc), time.Date(2026, 5, 10, 8, 0, 0, 0, loc)},
		{"exactly boundary", time.Date(2026, 5, 10, 8, 0, 0, 0, loc), time.Date(2026, 5, 10, 8, 0, 0, 0, loc)},
		{"before boundary", time.Date(2026, 5, 10, 7, 59, 59, 0, loc), time.Date(2026, 5, 9, 8, 0, 0, 0, loc)},
		{"just after midnight", time.Date(2026, 5, 1, 0, 15, 0, 0, loc), time.Date(2026, 4, 30, 8, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DayStart(tt.now, DefaultDayBoundaryHour)
			if !got.Equal(tt.want) {
				t.Errorf("DayStart(%v) = %v, want %v", tt.now, got, tt.want)
			}
			if got.Location() != loc {
				t.Errorf("DayStart changed location to %v", got.Location())
			}
		})
	}
}

func TestSegmentJSONFieldNames(t *testing.T) {
	title := "doc.txt"
	seg := Segment{Start: t0, Title: &title, App: "editor"}

	data, err := json.Marshal(seg)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal to map error: %v", err)
	}
	for _, key := range []string{"starttime", "endtime", "title", "url", "app"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("segment JSON missing %q: %s", key, data)
		}
	}
	if raw["endtime"] != nil {
		t.Errorf("open segment endtime = %v, want null", raw["endtime"])
	}
	if raw["starttime"] != "2026-03-02T09:30:00Z" {
		t.Errorf("starttime = %v, want RFC3339", raw["starttime"])
	}
}

func TestUpdateJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(IdleUpdate(t0))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"app":"","title":"","url":null,"starttime":"2026-03-02T09:30:00Z"}`
	if string(data) != want {
		t.Errorf("idle update JSON = %s, want %s", data, want)
	}
}

func TestActivityDecodeNullURL(t *testing.T) {
	var a Activity
	if err := json.Unmarshal([]byte(`{"app":"Finder","title":"Downloads","url":null}`), &a); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if a.App != "Finder" || a.Title != "Downloads" || a.URL != nil {
		t.Errorf("decoded %+v", a)
	}
	if a.Idle() {
		t.Error("non-empty app reported idle")
	}
	if !(Activity{}).Idle() {
		t.Error("empty app not reported idle")
	}
}

func TestSegmentDuration(t *testing.T) {
	end := t0.Add(90 * time.Second)
	closed := Segment{Start: t0, End: &end}
	if got := closed.Duration(t0.Add(time.Hour)); got != 90*time.Second {
		t.Errorf("closed Duration = %v, want 90s", got)
	}

	open := Segment{Start: t0}
	if got := open.Duration(t0.Add(time.Minute)); got != time.Minute {
		t.Errorf("open Duration = %v, want 1m", got)
	}
	if got := open.Duration(t0.Add(-time.Minute)); got != 0 {
		t.Errorf("Duration before start = %v, want 0", got)
	}
}

func TestSegmentCloneIsDeep(t *testing.T) {
	end := t0.Add(time.Minute)
	title := "a"
	orig := Segment{Start: t0, End: &end, Title: &title}

	c := orig.Clone()
	*c.End = t0
	*c.Title = "b"

	if !orig.End.Equal(t0.Add(time.Minute)) || *orig.Title != "a" {
		t.Error("Clone shares pointers with the original")
	}
}

func TestErrorKinds(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := fmt.Errorf("handle: %w", StorageError("insert segment", cause))

	if !IsKind(err, KindStorage) {
		t.Error("IsKind(storage) = false for wrapped storage error")
	}
	if IsKind(err, KindProtocol) {
		t.Error("IsKind(protocol) = true for storage error")
	}
	if !errors.Is(err, cause) {
		t.Error("storage error does not unwrap to its cause")
	}
	if IsKind(cause, KindStorage) {
		t.Error("plain error classified as storage error")
	}

	want := "protocol error: decode activity: bad json"
	if got := ProtocolError("decode activity", fmt.Errorf("bad json")).Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
