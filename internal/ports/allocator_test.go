package ports

import (
	"errors"
	"sync"
	"testing"
)

func TestAcquireLowestFree(t *testing.T) {
	a := New(7700, 3)

	for want := 7700; want < 7703; want++ {
		p, err := a.Acquire()
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if p != want {
			t.Errorf("expected port %d, got %d", want, p)
		}
	}
}

func TestAcquireExhausted(t *testing.T) {
	a := New(7700, 2)
	if _, err := a.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := a.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	_, err := a.Acquire()
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestReleaseMakesPortReusable(t *testing.T) {
	a := New(7700, 1)
	p, err := a.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	a.Release(p)

	p2, err := a.Acquire()
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if p2 != p {
		t.Errorf("expected reused port %d, got %d", p, p2)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	a := New(7700, 2)
	p, _ := a.Acquire()

	a.Release(p)
	a.Release(p)
	a.Release(99999) // out of range, must be ignored

	if free := a.Free(); free != 2 {
		t.Errorf("expected 2 free ports, got %d", free)
	}
}

func TestConcurrentAcquireUnique(t *testing.T) {
	const size = 50
	a := New(7700, size)

	var (
		mu   sync.Mutex
		seen = make(map[int]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := a.Acquire()
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[p] {
				t.Errorf("port %d handed out twice", p)
			}
			seen[p] = true
		}()
	}
	wg.Wait()

	if a.Free() != 0 {
		t.Errorf("expected 0 free ports, got %d", a.Free())
	}
}
