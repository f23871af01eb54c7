package core

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

type (
	CompleteListener     func(job PrintJob)
	ErrorListener        func(job PrintJob, err error)
	StatusChangeListener func(status QueueStatus)
)

// listeners keeps subscriber callbacks keyed by a handle so each On* call
// can return its own unsubscribe func.
type listeners[F any] struct {
	mu    sync.Mutex
	next  uint64
	byID  map[uint64]F
	order []uint64
}

func (l *listeners[F]) add(fn F) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.byID == nil {
		l.byID = make(map[uint64]F)
	}
	l.next++
	id := l.next
	l.byID[id] = fn
	l.order = append(l.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listeners[F]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.byID, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *listeners[F]) snapshot() []F {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]F, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

func (l *listeners[F]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

func (l *listeners[F]) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID = nil
	l.order = nil
}

// safeCall runs a subscriber callback, logging instead of propagating a panic.
func safeCall(logger *slog.Logger, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("print queue listener panicked",
				slog.String("event", event),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
}

// notification is an event collected under the manager lock and delivered
// after it is released.
type notification struct {
	complete *PrintJob
	failed   *PrintJob
	err      error
	status   *QueueStatus
}

func (m *QueueManager) deliver(notes []notification) {
	for _, n := range notes {
		switch {
		case n.complete != nil:
			job := *n.complete
			for _, fn := range m.onComplete.snapshot() {
				safeCall(m.logger, "print_complete", func() { fn(job) })
			}
		case n.failed != nil:
			job, err := *n.failed, n.err
			for _, fn := range m.onError.snapshot() {
				safeCall(m.logger, "print_error", func() { fn(job, err) })
			}
		case n.status != nil:
			status := *n.status
			for _, fn := range m.onStatus.snapshot() {
				safeCall(m.logger, "queue_status_change", func() { fn(status) })
			}
		}
	}
}
