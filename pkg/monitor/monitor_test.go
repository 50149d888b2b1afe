package monitor

import (
	"sync"
	"testing"
	"time"
)

func TestEnterExitReentrant(t *testing.T) {
	m := New(42)
	m.Enter(1)
	m.Enter(1) // re-entrant
	if owner := m.Owner(); owner != 1 {
		t.Fatalf("owner = %d, want 1", owner)
	}
	if err := m.Exit(1); err != nil {
		t.Fatalf("first exit: %v", err)
	}
	if owner := m.Owner(); owner != 1 {
		t.Fatalf("owner after one exit = %d, want still 1 (count still > 0)", owner)
	}
	if err := m.Exit(1); err != nil {
		t.Fatalf("second exit: %v", err)
	}
	if owner := m.Owner(); owner != 0 {
		t.Fatalf("owner after final exit = %d, want 0", owner)
	}
}

func TestExitByNonOwnerFails(t *testing.T) {
	m := New(0)
	m.Enter(1)
	if err := m.Exit(2); err == nil {
		t.Fatal("expected illegal monitor state error")
	}
}

func TestWaitByNonOwnerFails(t *testing.T) {
	m := New(0)
	if err := m.Wait(1, 0); err == nil {
		t.Fatal("expected illegal monitor state error")
	}
}

func TestEnterBlocksUntilExit(t *testing.T) {
	m := New(0)
	m.Enter(1)

	acquired := make(chan struct{})
	go func() {
		m.Enter(2)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second thread acquired monitor while first still held it")
	case <-time.After(50 * time.Millisecond):
	}

	m.Exit(1)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second thread never acquired monitor after release")
	}
	m.Exit(2)
}

func TestWaitNotifyHandoff(t *testing.T) {
	m := New(0)
	m.Enter(1)

	var wg sync.WaitGroup
	wg.Add(1)
	ready := make(chan struct{})
	go func() {
		defer wg.Done()
		m.Enter(2)
		close(ready)
		if err := m.Wait(2, 0); err != nil {
			t.Errorf("Wait: %v", err)
		}
		m.Exit(2)
	}()

	// Let goroutine 2 block inside Enter until we release.
	m.Exit(1)
	<-ready
	time.Sleep(20 * time.Millisecond)

	m.Enter(1)
	if err := m.Notify(1); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	m.Exit(1)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after Notify")
	}
}

func TestWaitTimesOut(t *testing.T) {
	m := New(0)
	m.Enter(1)
	start := time.Now()
	if err := m.Wait(1, 30*time.Millisecond); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Error("Wait returned suspiciously early")
	}
	if m.Owner() != 1 {
		t.Error("Wait did not reacquire ownership after timeout")
	}
	m.Exit(1)
}

func TestHash(t *testing.T) {
	m := New(7)
	if m.Hash() != 7 {
		t.Errorf("Hash() = %d, want 7", m.Hash())
	}
}
