package ws

import (
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/timeviewer/backend/internal/session"
	"github.com/timeviewer/backend/internal/timeline"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	now := s.now()
	segments, err := s.catchup.Snapshot(r.Context(), now)
	if err != nil {
		s.log.WithError(err).Error("summary snapshot failed")
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	since := session.DayStart(now, s.config.Tracker.DayBoundaryHour)
	writeJSON(w, timeline.Summarize(segments, since, now))
}

type processStats struct {
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Threads    int32   `json:"threads"`
}

type healthResponse struct {
	Status           string        `json:"status"`
	Uptime           string        `json:"uptime"`
	StartedAt        time.Time     `json:"startedAt"`
	Viewers          int           `json:"viewers"`
	OpenSince        *time.Time    `json:"openSince"`
	LastReporterSeen *time.Time    `json:"lastReporterSeen"`
	Process          *processStats `json:"process,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	resp := healthResponse{
		Status:    "ok",
		Uptime:    timeline.FormatDuration(now.Sub(s.startedAt)),
		StartedAt: s.startedAt.UTC(),
		Viewers:   s.broadcaster.SubscriberCount(),
	}
	if open, ok := s.state.PeekOpen(); ok {
		t := open.UTC()
		resp.OpenSince = &t
	}
	if seen := s.state.LastSeen(); !seen.IsZero() {
		t := seen.UTC()
		resp.LastReporterSeen = &t
	}

	stats, err := selfStats()
	if err != nil {
		s.log.WithError(err).Debug("process stats unavailable")
	} else {
		resp.Process = stats
	}
	writeJSON(w, resp)
}

func selfStats() (*processStats, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return nil, err
	}
	stats := &processStats{RSSBytes: mem.RSS}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if threads, err := proc.NumThreads(); err == nil {
		stats.Threads = threads
	}
	return stats, nil
}
