package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestOverlappingFiringIsSkipped(t *testing.T) {
	var runs atomic.Int32
	block := make(chan struct{})

	j := &Job{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			<-block
			return nil
		},
	}
	s := New(j)

	go s.fire(context.Background(), j)

	// wait until the first run is inside Run
	for runs.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	// a second firing while the first is busy must be skipped
	s.fire(context.Background(), j)
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1 (overlap must skip)", got)
	}

	close(block)
	for j.running.Load() {
		time.Sleep(time.Millisecond)
	}

	// once the first run finished, firing works again
	block = make(chan struct{})
	close(block)
	s.fire(context.Background(), j)
	if got := runs.Load(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
}

func TestTriggerByName(t *testing.T) {
	ran := make(chan struct{})
	s := New(&Job{
		Name:     "reconcile",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			close(ran)
			return nil
		},
	})

	if !s.Trigger("reconcile") {
		t.Fatalf("known job not found")
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatalf("job did not run")
	}
	if s.Trigger("nope") {
		t.Fatalf("unknown job must report false")
	}
	s.Wait()
}

func TestTriggerDoesNotBlockOnSlowJob(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	s := New(&Job{
		Name:     "drain",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			close(started)
			<-block
			return nil
		},
	})

	accepted := make(chan bool, 1)
	go func() { accepted <- s.Trigger("drain") }()

	select {
	case ok := <-accepted:
		if !ok {
			t.Fatalf("known job not found")
		}
	case <-time.After(time.Second):
		t.Fatalf("trigger blocked on the running job")
	}

	<-started
	close(block)
	s.Wait()
}

func TestStartStopsOnCancel(t *testing.T) {
	var runs atomic.Int32
	s := New(&Job{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	for runs.Load() < 2 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	s.Wait()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != after {
		t.Fatalf("job ran after cancel")
	}
}
