// Package sched runs fixed-period tasks, one goroutine and one ticker per
// task. A slow step delays only its own task; ticks missed while a step runs
// are dropped, never queued.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"failsafe-go/errcode"
	"failsafe-go/x/timex"
)

// Task is one periodic step.
type Task struct {
	Name   string
	Period time.Duration
	// Jitter delays the first run by a random amount in [0..Jitter] so tasks
	// with equal periods do not fire together.
	Jitter time.Duration
	Step   func(ctx context.Context)
}

// Scheduler owns the registered tasks until Run.
type Scheduler struct {
	log   *slog.Logger
	mu    sync.Mutex
	tasks []Task
	rand  *rand.Rand
}

func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		log:  log.With("component", "sched"),
		rand: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
}

// Add registers a task. It must be called before Run.
func (s *Scheduler) Add(t Task) error {
	if t.Name == "" || t.Period <= 0 || t.Step == nil {
		return &errcode.E{C: errcode.InvalidConfig, Op: "sched add", Msg: fmt.Sprintf("task %q: name, period and step are required", t.Name)}
	}
	if t.Jitter < 0 {
		t.Jitter = 0
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	return nil
}

// Run starts every task and blocks until ctx is done and all tasks have
// returned.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	tasks := append([]Task(nil), s.tasks...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		delay := s.jittered(t.Jitter)
		go func() {
			defer wg.Done()
			s.loop(ctx, t, delay)
		}()
	}
	s.log.Info("scheduler started", "tasks", len(tasks))
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) jittered(j time.Duration) time.Duration {
	if j <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.rand.Int64N(int64(j) + 1)) // [0..j]
}

func (s *Scheduler) loop(ctx context.Context, t Task, delay time.Duration) {
	log := s.log.With("task", t.Name)
	if !timex.Sleep(ctx, delay) {
		return
	}
	log.Debug("task started", "period", t.Period, "delay", delay)

	s.runStep(ctx, log, t)
	tick := time.NewTicker(t.Period)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("task stopped")
			return
		case <-tick.C:
			s.runStep(ctx, log, t)
		}
	}
}

// runStep isolates a panicking step; the task keeps its schedule.
func (s *Scheduler) runStep(ctx context.Context, log *slog.Logger, t Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("task step panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	t.Step(ctx)
}
