package vcon

import "time"

// Stats summarises one enrichment run. Processed+Skipped+Failed always
// equals the number of dialog entries.
type Stats struct {
	Processed   int   `json:"processed"`
	Skipped     int   `json:"skipped"`
	Failed      int   `json:"failed"`
	TotalTimeMS int64 `json:"total_time_ms"`
}

func (s *Stats) recordProcessed(elapsed time.Duration) {
	s.Processed++
	s.TotalTimeMS += elapsed.Milliseconds()
}

func (s *Stats) recordSkipped() { s.Skipped++ }

func (s *Stats) recordFailed() { s.Failed++ }

// Total is the number of dialog entries accounted for.
func (s Stats) Total() int { return s.Processed + s.Skipped + s.Failed }
