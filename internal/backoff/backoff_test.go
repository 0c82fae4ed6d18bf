package backoff

import (
	"testing"
	"time"
)

func TestDefaultSchedule(t *testing.T) {
	p := Default()

	want := []time.Duration{
		60 * time.Second, // after attempt 1
		5 * time.Minute,  // after attempt 2
		25 * time.Minute, // after attempt 3
		time.Hour,        // 125m capped at 1h
	}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, w)
		}
	}
}

func TestDelayFormula(t *testing.T) {
	p := Policy{Base: 10 * time.Millisecond, Multiplier: 3, Max: 500 * time.Millisecond}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 30 * time.Millisecond},
		{3, 90 * time.Millisecond},
		{4, 270 * time.Millisecond},
		{5, 500 * time.Millisecond}, // 810ms capped
	}
	for _, c := range cases {
		if got := p.Delay(c.attempt); got != c.want {
			t.Fatalf("attempt %d: got %v want %v", c.attempt, got, c.want)
		}
	}
}

func TestDelayClampsLowAttempt(t *testing.T) {
	p := Policy{Base: time.Second, Multiplier: 2, Max: time.Minute}
	if got := p.Delay(0); got != time.Second {
		t.Fatalf("attempt 0: got %v want %v", got, time.Second)
	}
}
