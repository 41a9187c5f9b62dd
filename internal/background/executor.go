// Package background hosts a single dedicated goroutine for
// long-lived async work (websocket subscriptions, ping loops) so that
// FUSE's own worker-pool goroutines, which must stay responsive to
// kernel callbacks, are never pinned to it.
package background

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Executor runs submitted funcs one at a time on its own goroutine,
// in submission order, for the lifetime of one mount.
type Executor struct {
	tasks  chan func(context.Context)
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New starts the executor's goroutine immediately. Stop must be
// called to release it.
func New() *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		tasks:  make(chan func(context.Context), 64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			return
		case task := <-e.tasks:
			e.invoke(task)
		}
	}
}

func (e *Executor) invoke(task func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("background task panicked, continuing executor loop")
		}
	}()
	task(e.ctx)
}

// Submit enqueues task for execution on the executor's goroutine. It
// never blocks the caller beyond the channel send; a full queue
// drops the task and logs, since every consumer of this executor
// (websocket subscribe, ping) is best-effort by spec.
func (e *Executor) Submit(task func(context.Context)) {
	select {
	case e.tasks <- task:
	default:
		log.Warn("background executor queue full, dropping task")
	}
}

// Stop cancels the executor's context and waits for its goroutine to
// exit.
func (e *Executor) Stop() {
	e.once.Do(func() {
		e.cancel()
		<-e.done
	})
}
