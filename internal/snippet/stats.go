package snippet

import "sync"

// StatsSnapshot is a point-in-time copy of the loop counters.
type StatsSnapshot struct {
	FramesWritten   uint64
	FramesDiscarded uint64
	SampleTimeouts  uint64
	PointsStored    uint64
	CloudsTruncated uint64
}

// RunStats tracks recording-loop counters. Safe for concurrent use.
type RunStats struct {
	mu sync.Mutex
	s  StatsSnapshot
}

func (s *RunStats) frameWritten(points int) {
	s.mu.Lock()
	s.s.FramesWritten++
	s.s.PointsStored += uint64(points)
	s.mu.Unlock()
}

func (s *RunStats) frameDiscarded() {
	s.mu.Lock()
	s.s.FramesDiscarded++
	s.s.SampleTimeouts++
	s.mu.Unlock()
}

func (s *RunStats) cloudTruncated() {
	s.mu.Lock()
	s.s.CloudsTruncated++
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (s *RunStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s
}
