package ring

import (
	"sync"
	"testing"
)

func TestPushPopFIFO(t *testing.T) {
	r := New[int](8)
	for i := 0; i < 5; i++ {
		if !r.Push(i) {
			t.Fatalf("Push(%d) failed", i)
		}
	}
	for i := 0; i < 5; i++ {
		v, ok := r.Pop()
		if !ok || v != i {
			t.Fatalf("Pop() = %d,%v want %d,true", v, ok, i)
		}
	}
}

func TestPopEmptyReturnsFalse(t *testing.T) {
	r := New[int](4)
	if _, ok := r.Pop(); ok {
		t.Error("Pop() on empty ring returned true")
	}
}

func TestPushFullReturnsFalse(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 4; i++ {
		if !r.Push(i) {
			t.Fatalf("Push(%d) failed", i)
		}
	}
	if r.Push(99) {
		t.Error("Push() on full ring returned true")
	}
}

func TestCapRoundsUpToPowerOfTwo(t *testing.T) {
	r := New[int](5)
	if r.Cap() != 8 {
		t.Errorf("Cap() = %d, want 8", r.Cap())
	}
}

func TestDefaultCapacity(t *testing.T) {
	r := New[int](0)
	if r.Cap() != 2048 {
		t.Errorf("Cap() = %d, want 2048", r.Cap())
	}
}

func TestConcurrentProducersConsumersPreserveCount(t *testing.T) {
	r := New[int](1024)
	const n = 4000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for !r.Push(i) {
			}
		}
	}()

	received := 0
	go func() {
		defer wg.Done()
		for received < n {
			if _, ok := r.Pop(); ok {
				received++
			}
		}
	}()

	wg.Wait()
	if received != n {
		t.Errorf("received = %d, want %d", received, n)
	}
}
