package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	before := time.Now()
	now := c.Now()
	if now.Before(before) {
		t.Errorf("RealClock.Now() = %v, before %v", now, before)
	}
	if c.Since(before) < 0 {
		t.Error("RealClock.Since() returned a negative duration")
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	if !c.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(1500 * time.Millisecond)
	if got := c.Since(start); got != 1500*time.Millisecond {
		t.Errorf("Since() after Advance = %v, want 1.5s", got)
	}

	later := start.Add(time.Hour)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", c.Now(), later)
	}
}

func TestMockClock_Concurrent(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			c.Advance(time.Second)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	if got := c.Now().Unix(); got != 10 {
		t.Errorf("Now().Unix() = %d, want 10", got)
	}
}
