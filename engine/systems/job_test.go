package systems

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewJobSystemArguments(t *testing.T) {
	if _, err := NewJobSystem(0, 1); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("expected ErrNoWorkers, got %v", err)
	}
	if _, err := NewJobSystem(1, -1); !errors.Is(err, ErrNegativeChannelSize) {
		t.Fatalf("expected ErrNegativeChannelSize, got %v", err)
	}
}

func TestJobSystemRunsCallbacks(t *testing.T) {
	js, err := NewJobSystem(4, 8)
	if err != nil {
		t.Fatal(err)
	}

	var (
		mu        sync.Mutex
		results   []int
		failures  int
		completed int32
		wg        sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := js.Submit(JobTask{
			Name:        "square",
			InputParams: i,
			OnStart: func(params interface{}) (interface{}, error) {
				n := params.(int)
				if n%5 == 0 {
					return nil, errors.New("multiple of five")
				}
				return n * n, nil
			},
			OnComplete: func(result interface{}) {
				mu.Lock()
				results = append(results, result.(int))
				mu.Unlock()
			},
			OnFailure: func(error) {
				mu.Lock()
				failures++
				mu.Unlock()
			},
			OnCompletionCallback: func() {
				atomic.AddInt32(&completed, 1)
				wg.Done()
			},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	if len(results) != 8 || failures != 2 {
		t.Fatalf("%d results and %d failures", len(results), failures)
	}
	if atomic.LoadInt32(&completed) != 10 {
		t.Fatalf("completion callback ran %d times", completed)
	}
	if err := js.Shutdown(); err != nil {
		t.Fatal(err)
	}
}

func TestJobSystemShutdown(t *testing.T) {
	js, err := NewJobSystem(1, 4)
	if err != nil {
		t.Fatal(err)
	}
	var ran int32
	for i := 0; i < 4; i++ {
		if err := js.Submit(JobTask{
			Name: "count",
			OnStart: func(interface{}) (interface{}, error) {
				atomic.AddInt32(&ran, 1)
				return nil, nil
			},
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := js.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&ran) != 4 {
		t.Fatalf("queued jobs must run before shutdown returns, %d ran", ran)
	}
	if err := js.Submit(JobTask{Name: "late"}); !errors.Is(err, ErrJobSystemClosed) {
		t.Fatalf("expected ErrJobSystemClosed, got %v", err)
	}
	if err := js.Shutdown(); err != nil {
		t.Fatal("a second shutdown is a no-op")
	}
}

func TestJobWithoutEntryPointFails(t *testing.T) {
	js, err := NewJobSystem(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer js.Shutdown()

	failed := make(chan error, 1)
	if err := js.Submit(JobTask{Name: "empty", OnFailure: func(err error) { failed <- err }}); err != nil {
		t.Fatal(err)
	}
	if err := <-failed; err == nil {
		t.Fatal("expected an error")
	}
}
