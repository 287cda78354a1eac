package sched

import "testing"

func TestRunOnceExecutesBodyToCompletion(t *testing.T) {
	p := New()
	ran := false
	task := NewTask(1, func() { ran = true })
	p.Spawn(task)

	if !p.RunOnce() {
		t.Fatal("expected a task to run")
	}
	if !ran {
		t.Fatal("expected body to have executed")
	}
	if task.State() != StateZombie {
		t.Fatalf("state = %v, want zombie", task.State())
	}
}

func TestSuspendRequeuesAndYieldsToOther(t *testing.T) {
	p := New()
	var order []int

	var self1 *Task
	t1 := NewTask(1, func() {
		order = append(order, 1)
		p.SuspendCurrentAndRunNext(self1)
		order = append(order, 3)
	})
	self1 = t1

	t2 := NewTask(2, func() {
		order = append(order, 2)
	})

	p.Spawn(t1)
	p.Spawn(t2)

	p.RunOnce() // runs t1 until it suspends
	p.RunOnce() // runs t2 to completion
	p.RunOnce() // resumes t1, runs to completion

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("unexpected interleave: %v", order)
	}
}

func TestBlockAndWakeup(t *testing.T) {
	p := New()
	var blocker *Task
	woke := false

	blocker = NewTask(1, func() {
		p.BlockCurrentAndRunNext(blocker)
		woke = true
	})
	p.Spawn(blocker)

	p.RunOnce() // blocker runs, then blocks
	if blocker.State() != StateBlocked {
		t.Fatalf("state = %v, want blocked", blocker.State())
	}

	p.WakeupTask(blocker)
	if blocker.State() != StateReady {
		t.Fatalf("state after wakeup = %v, want ready", blocker.State())
	}

	p.RunOnce()
	if !woke {
		t.Fatal("expected task to resume after wakeup")
	}
}

func TestWakeupNonBlockedPanics(t *testing.T) {
	p := New()
	t1 := NewTask(1, func() {})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic waking a non-blocked task")
		}
	}()
	p.WakeupTask(t1)
}
