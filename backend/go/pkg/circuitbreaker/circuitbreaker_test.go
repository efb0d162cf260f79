package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreaker_PassesThroughWhileClosed(t *testing.T) {
	b := New(3, time.Minute)

	calls := 0
	for i := 0; i < 5; i++ {
		err := b.Do(func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error on call %d: %v", i, err)
		}
	}
	if calls != 5 {
		t.Errorf("expected 5 calls, got %d", calls)
	}
	if b.Open() {
		t.Error("expected the breaker to stay closed on success")
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("expected the underlying error on call %d, got %v", i, err)
		}
	}
	if !b.Open() {
		t.Fatal("expected the breaker to open after 3 consecutive failures")
	}

	called := false
	if err := b.Do(func() error { called = true; return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("expected the protected call to be skipped while open")
	}
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	b := New(3, time.Minute)

	b.Do(func() error { return errBoom })
	b.Do(func() error { return errBoom })
	b.Do(func() error { return nil })
	b.Do(func() error { return errBoom })
	b.Do(func() error { return errBoom })

	if b.Open() {
		t.Error("expected the success to reset the consecutive-failure count")
	}
}

func TestBreaker_TrialAfterCooldown(t *testing.T) {
	b := New(1, 30*time.Millisecond)

	b.Do(func() error { return errBoom })
	if !b.Open() {
		t.Fatal("expected the breaker to be open")
	}

	time.Sleep(50 * time.Millisecond)

	// Failed trial re-opens for another cooldown.
	if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("expected the trial call to run, got %v", err)
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected rejection right after a failed trial, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	// Successful trial closes the breaker.
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("expected the second trial to run, got %v", err)
	}
	if b.Open() {
		t.Error("expected the breaker to close after a successful trial")
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("expected normal operation after closing, got %v", err)
	}
}
