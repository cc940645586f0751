package queue_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nuulab/jobq/pkg/queue"
)

func TestNotifier_LevelTriggered(t *testing.T) {
	n := queue.NewNotifier()

	// A notify before the wait must be remembered.
	n.Notify()
	done := make(chan struct{})
	go func() {
		n.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected Wait to return after a prior Notify")
	}
}

func TestNotifier_CollapsesSignals(t *testing.T) {
	n := queue.NewNotifier()
	n.Notify()
	n.Notify()
	n.Notify()

	n.Wait()

	// Only one signal should have been stored.
	done := make(chan struct{})
	go func() {
		n.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Expected second Wait to block")
	case <-time.After(50 * time.Millisecond):
	}

	n.Notify()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected second Wait to return after a fresh Notify")
	}
}

func TestState_AddWakesWaiter(t *testing.T) {
	s := queue.NewState()

	_, _, notifier := s.TakeOrNotify([]string{"q"})
	if notifier == nil {
		t.Fatal("Expected a notifier from an empty queue")
	}

	got := make(chan queue.Job, 1)
	go func() {
		notifier.Wait()
		job, _, ok := s.Take([]string{"q"})
		if ok {
			got <- job
		}
		close(got)
	}()

	put := s.Add("q", 4, json.RawMessage(`{}`))

	select {
	case job, ok := <-got:
		if !ok {
			t.Fatal("Expected the woken waiter to find the job")
		}
		if job.ID != put.ID {
			t.Errorf("Expected job %d, got %d", put.ID, job.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected Add to wake the waiter")
	}
}

func TestState_AbortWakesWaiter(t *testing.T) {
	s := queue.NewState()
	put := s.Add("q", 1, json.RawMessage(`{}`))
	taken, origin, _ := s.Take([]string{"q"})

	_, _, notifier := s.TakeOrNotify([]string{"q"})
	if notifier == nil {
		t.Fatal("Expected a notifier while the only job is held")
	}

	woken := make(chan struct{})
	go func() {
		notifier.Wait()
		close(woken)
	}()

	s.Abort(taken.ID, origin)

	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatal("Expected Abort to wake the waiter")
	}

	job, _, ok := s.Take([]string{"q"})
	if !ok || job.ID != put.ID {
		t.Fatalf("Expected aborted job %d available, got %v ok=%v", put.ID, job.ID, ok)
	}
}

func TestState_TakeOrNotifySucceedsWithoutNotifier(t *testing.T) {
	s := queue.NewState()
	put := s.Add("q", 3, json.RawMessage(`{}`))

	job, origin, notifier := s.TakeOrNotify([]string{"q"})
	if notifier != nil {
		t.Fatal("Expected no notifier when a job is available")
	}
	if job.ID != put.ID || origin != "q" {
		t.Errorf("Expected job %d from 'q', got %d from '%s'", put.ID, job.ID, origin)
	}
}

func TestState_WaiterRegistryCleared(t *testing.T) {
	s := queue.NewState()

	_, _, n1 := s.TakeOrNotify([]string{"q"})
	_, _, n2 := s.TakeOrNotify([]string{"q"})
	if n1 == nil || n2 == nil {
		t.Fatal("Expected notifiers from an empty engine")
	}
	if s.Snapshot().Waiters != 2 {
		t.Fatalf("Expected 2 registered waiters, got %d", s.Snapshot().Waiters)
	}

	// Any state change wakes everyone and empties the registry.
	s.Add("q", 1, json.RawMessage(`{}`))
	if s.Snapshot().Waiters != 0 {
		t.Errorf("Expected registry cleared after Add, got %d", s.Snapshot().Waiters)
	}
	n1.Wait()
	n2.Wait()
}
