package core

import (
	"testing"
	"time"
)

func TestClock(t *testing.T) {
	c := NewClock()
	c.Update()
	if c.Elapsed() != 0 {
		t.Fatal("a clock that never started must not advance")
	}
	c.Start()
	time.Sleep(2 * time.Millisecond)
	c.Update()
	first := c.Elapsed()
	if first <= 0 {
		t.Fatalf("expected elapsed time, got %f", first)
	}
	c.Stop()
	time.Sleep(2 * time.Millisecond)
	c.Update()
	if c.Elapsed() != first {
		t.Fatal("a stopped clock must keep its elapsed time")
	}
}
