package snippet

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMailboxFIFO(t *testing.T) {
	m := NewSensorMailbox()
	m.Push(Sample{Frame: 1})
	m.Push(Sample{Frame: 2})
	m.Push(Sample{Frame: 3})

	for want := uint64(1); want <= 3; want++ {
		s, err := m.PopWait(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("PopWait: %v", err)
		}
		if s.Frame != want {
			t.Errorf("frame = %d, want %d", s.Frame, want)
		}
	}
	if m.Len() != 0 {
		t.Errorf("backlog = %d after draining, want 0", m.Len())
	}
}

func TestMailboxTimeout(t *testing.T) {
	m := NewSensorMailbox()
	start := time.Now()
	_, err := m.PopWait(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrMailboxTimeout) {
		t.Fatalf("err = %v, want ErrMailboxTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("returned after %v, before the timeout window", elapsed)
	}
}

func TestMailboxWakesOnPush(t *testing.T) {
	m := NewSensorMailbox()
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Push(Sample{Frame: 7})
	}()
	s, err := m.PopWait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("PopWait: %v", err)
	}
	if s.Frame != 7 {
		t.Errorf("frame = %d, want 7", s.Frame)
	}
}

func TestMailboxContextCancel(t *testing.T) {
	m := NewSensorMailbox()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := m.PopWait(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestMailboxBacklogSurvivesTimeout(t *testing.T) {
	// A timeout consumes nothing: items pushed afterwards queue behind
	// nothing and earlier items stay put. This is the desync signature
	// the loop relies on seeing.
	m := NewSensorMailbox()
	if _, err := m.PopWait(context.Background(), time.Millisecond); !errors.Is(err, ErrMailboxTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	m.Push(Sample{Frame: 1})
	m.Push(Sample{Frame: 2})
	if m.Len() != 2 {
		t.Errorf("backlog = %d, want 2", m.Len())
	}
	s, err := m.PopWait(context.Background(), time.Second)
	if err != nil || s.Frame != 1 {
		t.Errorf("got frame %d err %v, want frame 1", s.Frame, err)
	}
	if m.Len() != 1 {
		t.Errorf("backlog = %d after one pop, want 1", m.Len())
	}
}
