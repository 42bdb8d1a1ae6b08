package containers

import (
	"errors"
	"testing"
)

func TestRingQueueWrapsAround(t *testing.T) {
	rq := NewRingQueue[int](2)
	if _, err := rq.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("expected ErrQueueEmpty, got %v", err)
	}
	for round := 0; round < 3; round++ {
		if err := rq.Enqueue(round * 10); err != nil {
			t.Fatal(err)
		}
		if err := rq.Enqueue(round*10 + 1); err != nil {
			t.Fatal(err)
		}
		if err := rq.Enqueue(99); !errors.Is(err, ErrQueueFull) {
			t.Fatalf("expected ErrQueueFull, got %v", err)
		}
		if v, _ := rq.Peek(); v != round*10 {
			t.Fatalf("peek: expected %d, got %d", round*10, v)
		}
		a, _ := rq.Dequeue()
		b, _ := rq.Dequeue()
		if a != round*10 || b != round*10+1 {
			t.Fatalf("unexpected order %d %d", a, b)
		}
	}
	if rq.Len() != 0 || rq.Cap() != 2 {
		t.Fatalf("unexpected len/cap %d/%d", rq.Len(), rq.Cap())
	}
}
