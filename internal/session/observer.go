package session

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nao1215/sitesnap/internal/model"
)

// observerBuffer is the number of events queued per observer before new
// events are dropped.
const observerBuffer = 256

// Observer receives progress events.
type Observer interface {
	Observe(event model.ProgressEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(event model.ProgressEvent)

// Observe calls f.
func (f ObserverFunc) Observe(event model.ProgressEvent) {
	f(event)
}

// dispatcher fans events out to observers. Each observer has its own
// goroutine and buffer, so a slow or panicking observer never blocks the
// session or other observers.
type dispatcher struct {
	logger *slog.Logger
	queues []chan model.ProgressEvent
	wg     sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func newDispatcher(observers []Observer, logger *slog.Logger) *dispatcher {
	d := &dispatcher{logger: logger}
	for _, o := range observers {
		queue := make(chan model.ProgressEvent, observerBuffer)
		d.queues = append(d.queues, queue)
		d.wg.Add(1)
		go d.serve(o, queue)
	}
	return d
}

func (d *dispatcher) serve(o Observer, queue <-chan model.ProgressEvent) {
	defer d.wg.Done()
	for event := range queue {
		d.deliver(o, event)
	}
}

func (d *dispatcher) deliver(o Observer, event model.ProgressEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("observer panicked", "panic", r)
		}
	}()
	o.Observe(event)
}

// publish queues event for every observer without blocking.
func (d *dispatcher) publish(event model.ProgressEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	for _, queue := range d.queues {
		select {
		case queue <- event:
		default:
			d.dropped.Add(1)
		}
	}
}

// close stops accepting events and waits until queued ones are delivered.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, queue := range d.queues {
		close(queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
