package core

import (
	"context"
	"time"

	"github.com/loomwm/loom/internal/logger"
)

const (
	eventQueueSize = 1024
	taskQueueSize  = 64

	// tickInterval paces the periodic work: policy ticks, deferred reloads
	// and timer-driven frame scheduling.
	tickInterval = 50 * time.Millisecond
)

// Task is a closure executed on the loop goroutine with exclusive access to
// the compositor state. Control channels use tasks to read or mutate state
// safely.
type Task func(*Compositor)

// Loop is the single-threaded dispatcher. All compositor state is mutated
// from Run's goroutine only; collaborators feed it through Post and
// PostTask, which are safe from any goroutine.
type Loop struct {
	comp   *Compositor
	events chan Event
	tasks  chan Task
	stop   chan struct{}
}

func NewLoop(comp *Compositor) *Loop {
	l := &Loop{
		comp:   comp,
		events: make(chan Event, eventQueueSize),
		tasks:  make(chan Task, taskQueueSize),
		stop:   make(chan struct{}),
	}
	comp.OnQuit(l.Stop)
	return l
}

// Post enqueues an event. Never blocks: when the queue is full the event is
// dropped and counted, which bounds memory when a client floods us.
func (l *Loop) Post(ev Event) {
	select {
	case l.events <- ev:
	default:
		logger.Warn("event queue full, dropping", "event", ev)
	}
}

// PostTask enqueues a closure for the loop goroutine. Same overflow policy
// as Post.
func (l *Loop) PostTask(t Task) {
	select {
	case l.tasks <- t:
	default:
		logger.Warn("task queue full, dropping task")
	}
}

// Stop asks Run to return after the current dispatch. Safe to call more
// than once.
func (l *Loop) Stop() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}

// Run dispatches until the context is cancelled or Stop is called. Startup
// and Shutdown bracket the dispatch so they run on the loop goroutine too.
func (l *Loop) Run(ctx context.Context) error {
	l.comp.Startup()
	defer l.comp.Shutdown()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	logger.Info("event loop running")
	for {
		select {
		case <-ctx.Done():
			logger.Info("event loop stopping", "reason", "context")
			return ctx.Err()
		case <-l.stop:
			logger.Info("event loop stopping", "reason", "quit")
			return nil
		case ev := <-l.events:
			l.comp.HandleEvent(ev)
		case t := <-l.tasks:
			t(l.comp)
		case now := <-ticker.C:
			l.comp.Tick(now)
		}
	}
}
