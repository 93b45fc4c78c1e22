package window

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestInsertDuplicateFails(t *testing.T) {
	w := New[string](16)

	if err := w.Insert(3, "hello"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := w.Insert(3, "world"); err != ErrDuplicate {
		t.Fatalf("second insert at same key = %v, want ErrDuplicate", err)
	}
}

func TestInsertTooOldFails(t *testing.T) {
	w := New[string](16)

	if err := w.Insert(0, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Remove(0); err != nil {
		t.Fatal(err)
	}
	if err := w.Insert(0, "stale"); err != ErrTooOld {
		t.Fatalf("insert below start = %v, want ErrTooOld", err)
	}
}

func TestRemoveMissingFails(t *testing.T) {
	w := New[string](16)

	if _, err := w.Remove(5); err != ErrMissing {
		t.Fatalf("remove of empty slot = %v, want ErrMissing", err)
	}
}

// Scenario from spec §8.4: insert at keys 2, 0, 1 into a capacity-16
// window; pop three times in key order; start ends at 3.
func TestPopOrder(t *testing.T) {
	w := New[string](16)

	for k, v := range map[uint64]string{2: "c", 0: "a", 1: "b"} {
		if err := w.Insert(k, v); err != nil {
			t.Fatalf("insert(%d): %v", k, err)
		}
	}

	start, end := w.Window()
	if start != 0 || end != 16 {
		t.Fatalf("window = (%d, %d), want (0, 16)", start, end)
	}

	for _, want := range []string{"a", "b", "c"} {
		got, err := w.Pop()
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if got != want {
			t.Errorf("pop = %q, want %q", got, want)
		}
	}

	start, _ = w.Window()
	if start != 3 {
		t.Errorf("start after three pops = %d, want 3", start)
	}
}

// Scenario from spec §8.5: capacity 3, keys 0,1,2 filled. Insert(3, ...)
// on one goroutine must block until Remove(0) happens on another.
func TestInsertBlocksUntilRemove(t *testing.T) {
	w := New[string](3)
	for k, v := range map[uint64]string{0: "a", 1: "b", 2: "c"} {
		if err := w.Insert(k, v); err != nil {
			t.Fatal(err)
		}
	}

	var removed atomic.Bool
	done := make(chan struct{})

	go func() {
		time.Sleep(500 * time.Millisecond)
		if _, err := w.Remove(0); err != nil {
			t.Error(err)
		}
		removed.Store(true)
		close(done)
	}()

	if err := w.Insert(3, "d"); err != nil {
		t.Fatal(err)
	}
	if !removed.Load() {
		t.Fatal("Insert(3, ...) returned before the blocking Remove(0)")
	}
	<-done
}

// Mirrors original sliding_window.rs sender_test: inserting and removing
// out of order must advance start correctly, including gaps.
func TestRemoveOutOfOrderAdvancesStart(t *testing.T) {
	w := New[string](16)
	for k, v := range map[uint64]string{0: "a", 1: "b", 2: "c"} {
		if err := w.Insert(k, v); err != nil {
			t.Fatal(err)
		}
	}

	if v, err := w.Remove(1); err != nil || v != "b" {
		t.Fatalf("Remove(1) = (%q, %v)", v, err)
	}
	if start, end := w.Window(); start != 0 || end != 16 {
		t.Fatalf("window after removing middle key = (%d, %d), want (0, 16)", start, end)
	}

	if v, err := w.Remove(0); err != nil || v != "a" {
		t.Fatalf("Remove(0) = (%q, %v)", v, err)
	}
	if start, end := w.Window(); start != 2 || end != 18 {
		t.Fatalf("window after closing the gap = (%d, %d), want (2, 18)", start, end)
	}

	if v, err := w.Remove(2); err != nil || v != "c" {
		t.Fatalf("Remove(2) = (%q, %v)", v, err)
	}
	if start, end := w.Window(); start != 3 || end != 19 {
		t.Fatalf("window after draining = (%d, %d), want (3, 19)", start, end)
	}
}

func TestFindFirst(t *testing.T) {
	w := New[int](16)
	for k, v := range map[uint64]int{0: 10, 1: 20, 2: 30} {
		if err := w.Insert(k, v); err != nil {
			t.Fatal(err)
		}
	}

	key, ok := w.FindFirst(func(v int) bool { return v >= 20 })
	if !ok {
		t.Fatal("FindFirst found nothing, want key 1")
	}
	if key != 1 {
		t.Errorf("FindFirst key = %d, want 1", key)
	}

	if _, ok := w.FindFirst(func(v int) bool { return v > 1000 }); ok {
		t.Error("FindFirst matched a predicate that should satisfy nothing")
	}
}

// Regression: a fully saturated window must still be scanned by
// FindFirst. With a capacity-2 window, inserting keys 0 and 1 fills every
// slot; head and a naive wrapped tail marker would collide in that state
// and make the scan look empty.
func TestFindFirstOnFullWindow(t *testing.T) {
	w := New[string](2)

	if err := w.Insert(0, "a"); err != nil {
		t.Fatal(err)
	}
	if err := w.Insert(1, "b"); err != nil {
		t.Fatal(err)
	}

	key, ok := w.FindFirst(func(v string) bool { return v == "b" })
	if !ok {
		t.Fatal("FindFirst did not find a value in a fully saturated window")
	}
	if key != 1 {
		t.Errorf("FindFirst key = %d, want 1", key)
	}

	key, ok = w.FindFirst(func(v string) bool { return v == "a" })
	if !ok || key != 0 {
		t.Errorf("FindFirst(a) = (%d, %v), want (0, true)", key, ok)
	}
}

func TestCloseUnblocksWaiters(t *testing.T) {
	w := New[string](2)

	errs := make(chan error, 1)
	go func() {
		_, err := w.Pop()
		errs <- err
	}()

	time.Sleep(50 * time.Millisecond)
	w.Close()

	select {
	case err := <-errs:
		if err != ErrClosed {
			t.Errorf("Pop after Close = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Close")
	}
}
