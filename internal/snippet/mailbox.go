package snippet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/scene.report/internal/sim"
)

// ErrMailboxTimeout reports that a vehicle produced no sample within the
// collection window for a tick. The loop discards the whole in-progress
// frame when it sees this.
var ErrMailboxTimeout = errors.New("timed out waiting for sensor sample")

// Sample is one vehicle's capture for one tick, as delivered by the
// sensor callback. Points is a flat (x, y, z, intensity) float32 stream.
type Sample struct {
	Frame  uint64
	Pose   sim.Transform
	Points []float32
}

// PointCount returns the number of points in the sample.
func (s Sample) PointCount() int { return len(s.Points) / 4 }

// SensorMailbox carries samples from one sensor's callback to the
// collection loop. Push never blocks and never drops; PopWait consumes
// destructively with a bounded wait. One producer (the stream listener
// goroutine), one consumer (the loop); the mailbox is the only state
// shared between them.
//
// The queue is unbounded: in lockstep operation it holds at most one
// item, and a growing backlog is a desynchronization symptom the caller
// can observe through Len.
type SensorMailbox struct {
	mu     sync.Mutex
	items  []Sample
	signal chan struct{}
}

// NewSensorMailbox creates an empty mailbox.
func NewSensorMailbox() *SensorMailbox {
	return &SensorMailbox{signal: make(chan struct{}, 1)}
}

// Push appends a sample. Safe to call from the sensor callback thread.
func (m *SensorMailbox) Push(s Sample) {
	m.mu.Lock()
	m.items = append(m.items, s)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// PopWait removes and returns the oldest sample, waiting up to timeout
// for one to arrive. Returns ErrMailboxTimeout when the window expires
// and the context error when ctx ends first.
func (m *SensorMailbox) PopWait(ctx context.Context, timeout time.Duration) (Sample, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			s := m.items[0]
			m.items = m.items[1:]
			m.mu.Unlock()
			return s, nil
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-deadline.C:
			return Sample{}, ErrMailboxTimeout
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		}
	}
}

// Len returns the current backlog size.
func (m *SensorMailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
