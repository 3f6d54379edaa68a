package async

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReady(t *testing.T) {
	f := Ready(42)
	if !f.Done() {
		t.Fatal("expected ready future to be done")
	}
	v, err := f.Result()
	if err != nil || v != 42 {
		t.Errorf("expected 42, got %d (%v)", v, err)
	}
}

func TestPending_FirstSettleWins(t *testing.T) {
	f, resolve, fail := NewPending[string]()
	if _, err := f.Result(); !errors.Is(err, ErrPending) {
		t.Fatalf("expected ErrPending, got %v", err)
	}
	calls := 0
	f.Subscribe(func() { calls++ })

	resolve("first")
	resolve("second")
	fail(errors.New("late"))

	v, err := f.Result()
	if err != nil || v != "first" {
		t.Errorf("expected 'first', got %q (%v)", v, err)
	}
	if calls != 1 {
		t.Errorf("expected subscriber to run once, ran %d times", calls)
	}
}

func TestSubscribeAfterSettleRunsImmediately(t *testing.T) {
	f := Failed[int](errors.New("boom"))
	ran := false
	f.Subscribe(func() { ran = true })
	if !ran {
		t.Error("expected subscriber to run immediately")
	}
}

func TestWait_ContextDeadline(t *testing.T) {
	f, _, _ := NewPending[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestAll(t *testing.T) {
	a, resolveA, _ := NewPending[int]()
	b, _, failB := NewPending[int]()
	all := All(a, b, Ready(3))
	if all.Done() {
		t.Fatal("expected join to be pending")
	}
	resolveA(1)
	if all.Done() {
		t.Fatal("expected join to wait for b")
	}
	failB(errors.New("nope"))
	if !all.Done() {
		t.Error("expected join to settle once all inputs settled")
	}
	if !All().Done() {
		t.Error("expected empty join to be settled")
	}
}

func TestResumeAndDrive(t *testing.T) {
	f, resolve, _ := NewPending[int]()
	steps := 0
	step := func() (bool, Waiter) {
		steps++
		if !f.Done() {
			return false, f
		}
		return true, nil
	}

	finished := false
	Resume(step, func() { finished = true })
	if finished {
		t.Fatal("expected machine to suspend")
	}
	resolve(7)
	if !finished {
		t.Error("expected machine to finish after resolve")
	}

	steps = 0
	if err := Drive(context.Background(), step); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if steps != 1 {
		t.Errorf("expected 1 step on settled input, got %d", steps)
	}
}
