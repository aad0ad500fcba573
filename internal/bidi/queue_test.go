package bidi

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEventQueue_FlushesReadyImmediately(t *testing.T) {
	var mu sync.Mutex
	var got []any
	q := NewEventQueue(func(payload any) {
		mu.Lock()
		got = append(got, payload)
		mu.Unlock()
	})

	q.AddReady("first", "t1")
	q.AddReady("second", "t2")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("got %v, want [first second]", got)
	}
}

func TestEventQueue_PreservesOrderDespiteResolveOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	q := NewEventQueue(func(payload any) {
		mu.Lock()
		got = append(got, payload.(int))
		n := len(got)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	})

	release1 := make(chan struct{})
	release2 := make(chan struct{})

	// Slot 1 blocks until released; slot 2 resolves immediately; slot 3
	// blocks behind its own release. Registration order is 1, 2, 3, but
	// 2 resolves first.
	q.Add(func() QueuedResult {
		<-release1
		return QueuedResult{Payload: 1}
	}, "one")
	q.Add(func() QueuedResult {
		return QueuedResult{Payload: 2}
	}, "two")
	q.Add(func() QueuedResult {
		<-release2
		return QueuedResult{Payload: 3}
	}, "three")

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	if len(got) != 0 {
		t.Fatalf("expected nothing flushed while head is blocked, got %v", got)
	}
	mu.Unlock()

	close(release2)
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	if len(got) != 0 {
		t.Fatalf("expected slot 3 held behind slot 1, got %v", got)
	}
	mu.Unlock()

	close(release1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for queue to drain")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("got %v, want [1 2 3] in registration order", got)
	}
}

func TestEventQueue_SinkNeverCalledConcurrently(t *testing.T) {
	var inSink int32
	var overlapped int32
	var got []int
	var mu sync.Mutex

	q := NewEventQueue(func(payload any) {
		if atomic.AddInt32(&inSink, 1) != 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		// Give a concurrent sink call, if one snuck in, time to land.
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		got = append(got, payload.(int))
		mu.Unlock()
		atomic.AddInt32(&inSink, -1)
	})

	const n = 20
	for i := 0; i < n; i++ {
		i := i
		// Every slot resolves "at once" off its own goroutine, stressing
		// the case where multiple already-resolved slots race to reach
		// the consumer at the same time.
		q.Add(func() QueuedResult { return QueuedResult{Payload: i} }, "t")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(got) == n
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if atomic.LoadInt32(&overlapped) != 0 {
		t.Fatal("sink was invoked concurrently by more than one goroutine")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != n {
		t.Fatalf("got %d payloads, want %d", len(got), n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got %v, want payloads in registration order 0..%d", got, n-1)
		}
	}
}

func TestEventQueue_SkipsFailedSlotsWithoutBlocking(t *testing.T) {
	var mu sync.Mutex
	var got []any
	var loggedTag string
	var loggedErr error

	q := NewEventQueue(func(payload any) {
		mu.Lock()
		got = append(got, payload)
		mu.Unlock()
	})
	q.FailureLogger = func(tag string, err error) {
		loggedTag, loggedErr = tag, err
	}

	q.Add(func() QueuedResult { return QueuedResult{Err: errors.New("boom")} }, "failing")
	q.AddReady("ok", "succeeding")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "ok" {
		t.Fatalf("got %v, want [ok]", got)
	}
	if loggedTag != "failing" || loggedErr == nil {
		t.Errorf("expected failure logged for 'failing', got tag=%q err=%v", loggedTag, loggedErr)
	}
}
