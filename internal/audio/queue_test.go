package audio

import (
	"sync"
	"testing"
	"time"
)

func TestFrameQueueDropOldest(t *testing.T) {
	q := NewFrameQueue(3)

	for i := 0; i < 10; i++ {
		if !q.Push(Frame{SampleRate: i}) {
			t.Errorf("Push %d rejected with a single producer", i)
		}
		if q.Len() > q.Cap() {
			t.Fatalf("Queue depth %d exceeds capacity %d", q.Len(), q.Cap())
		}
	}

	// The most recent frames survive.
	for _, want := range []int{7, 8, 9} {
		f, ok := q.Pop(10 * time.Millisecond)
		if !ok {
			t.Fatalf("Expected frame %d, queue empty", want)
		}
		if f.SampleRate != want {
			t.Errorf("Expected frame %d, got %d", want, f.SampleRate)
		}
	}

	stats := q.GetStats()
	if stats.Pushed != 10 {
		t.Errorf("Expected 10 pushed, got %d", stats.Pushed)
	}
	if stats.Evicted != 7 {
		t.Errorf("Expected 7 evicted, got %d", stats.Evicted)
	}
	if stats.Depth != 0 {
		t.Errorf("Expected empty queue, got depth %d", stats.Depth)
	}
}

func TestFrameQueuePopTimeout(t *testing.T) {
	q := NewFrameQueue(1)

	start := time.Now()
	_, ok := q.Pop(20 * time.Millisecond)
	if ok {
		t.Fatal("Expected timeout on empty queue")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Pop returned after %v, before the timeout", elapsed)
	}
}

func TestFrameQueueConcurrentProducers(t *testing.T) {
	q := NewFrameQueue(4)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(Frame{})
				if q.Len() > q.Cap() {
					t.Errorf("Queue depth %d exceeds capacity %d", q.Len(), q.Cap())
					return
				}
			}
		}()
	}
	wg.Wait()

	stats := q.GetStats()
	if stats.Pushed+stats.Dropped != 800 {
		t.Errorf("Expected 800 frames accounted for, got %d pushed + %d dropped", stats.Pushed, stats.Dropped)
	}
	if stats.Depth > 4 {
		t.Errorf("Expected at most 4 queued, got %d", stats.Depth)
	}
}

func TestNewFrameQueueMinimumCapacity(t *testing.T) {
	if q := NewFrameQueue(0); q.Cap() != 1 {
		t.Errorf("Expected capacity 1, got %d", q.Cap())
	}
}
