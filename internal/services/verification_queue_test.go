package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carwash/internal/metrics"
)

func TestVerificationQueueRunsJobs(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[int64]bool{}
		wg   sync.WaitGroup
	)
	wg.Add(3)
	q := NewVerificationQueue(func(ctx context.Context, id int64) error {
		defer wg.Done()
		if _, ok := ctx.Deadline(); !ok {
			t.Error("job context has no deadline")
		}
		mu.Lock()
		seen[id] = true
		mu.Unlock()
		return nil
	}, 2, 8, time.Second, nil, metrics.New())
	q.Start(context.Background())
	defer q.Stop()

	for id := int64(1); id <= 3; id++ {
		if err := q.Dispatch(id); err != nil {
			t.Fatalf("Dispatch(%d): %v", id, err)
		}
	}
	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("processed %v", seen)
	}
}

func TestVerificationQueueFull(t *testing.T) {
	q := NewVerificationQueue(func(context.Context, int64) error { return nil }, 1, 1, 0, nil, nil)
	// воркеры не запущены
	if err := q.Dispatch(1); err != nil {
		t.Fatal(err)
	}
	if err := q.Dispatch(2); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	q.Stop()
	if err := q.Dispatch(3); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}

func TestVerificationQueueStopDrains(t *testing.T) {
	var (
		mu   sync.Mutex
		done []int64
	)
	release := make(chan struct{})
	q := NewVerificationQueue(func(_ context.Context, id int64) error {
		<-release
		mu.Lock()
		done = append(done, id)
		mu.Unlock()
		return nil
	}, 1, 4, 0, nil, nil)
	q.Start(context.Background())
	for id := int64(1); id <= 3; id++ {
		if err := q.Dispatch(id); err != nil {
			t.Fatal(err)
		}
	}
	close(release)
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(done) != 3 {
		t.Fatalf("drained %v, want 3 jobs", done)
	}
}

func TestVerificationQueueSurvivesPanicsAndErrors(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(3)
	q := NewVerificationQueue(func(_ context.Context, id int64) error {
		defer wg.Done()
		switch id {
		case 1:
			panic("boom")
		case 2:
			return errors.New("inspector down")
		}
		return nil
	}, 1, 4, 0, nil, nil)
	q.Start(context.Background())
	defer q.Stop()

	for id := int64(1); id <= 3; id++ {
		if err := q.Dispatch(id); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
}
