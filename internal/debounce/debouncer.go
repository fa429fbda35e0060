// Package debounce collapses bursts of events into a single deferred call.
package debounce

import (
	"sync"
	"time"
)

// Task is a function scheduled to run at a deadline. It runs at most once
// and never after Cancel.
type Task struct {
	mu       sync.Mutex
	timer    *time.Timer
	fn       func()
	deadline time.Time
	done     bool
}

// Schedule runs fn after delay.
func Schedule(delay time.Duration, fn func()) *Task {
	t := &Task{fn: fn, deadline: time.Now().Add(delay)}
	t.timer = time.AfterFunc(delay, t.run)
	return t
}

// Deadline returns when the task is due.
func (t *Task) Deadline() time.Time {
	return t.deadline
}

// Cancel stops the task. It reports whether the task was still pending.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.timer.Stop()
	return true
}

// Run executes the task now if it is still pending.
func (t *Task) Run() bool {
	if !t.Cancel() {
		return false
	}
	t.fn()
	return true
}

func (t *Task) run() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.mu.Unlock()
	t.fn()
}

// Debouncer delivers only the latest value passed to Trigger, once the
// quiet period has elapsed without another Trigger.
type Debouncer[T any] struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func(T)
	pending *Task
}

// New creates a Debouncer that calls fn after delay of quiet.
func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Trigger cancels any pending call and schedules fn(v) one quiet period from now.
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		d.pending.Cancel()
	}

	var task *Task
	task = Schedule(d.delay, func() {
		d.mu.Lock()
		if d.pending == task {
			d.pending = nil
		}
		d.mu.Unlock()
		d.fn(v)
	})
	d.pending = task
}

// Pending reports whether a call is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Flush runs the pending call immediately, if any, on the caller's goroutine.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	task := d.pending
	d.mu.Unlock()
	if task == nil {
		return false
	}
	return task.Run()
}

// Stop cancels the pending call without running it.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.Cancel()
		d.pending = nil
	}
}
