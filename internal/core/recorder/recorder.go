// Package recorder implements the session recorder observer (C13): a
// bounded, non-blocking tap on the event bus that writes an audit JSONL for
// later replay. Grounded on the teacher's StreamEventBridge/listener idiom
// (a pure observer fed from the same stream the primary handler consumes),
// adapted here into a drop-oldest bounded queue with a _meta.* retention
// exemption.
package recorder

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"hatchet/internal/core/events"
)

// Recorder queues events for background append to an audit JSONL file.
// Publish never blocks the caller: once the queue is full, the oldest
// non-reserved event is dropped to make room. Reserved (_meta.*) events are
// never dropped: when the queue is full and holds only reserved events, an
// incoming reserved event is queued beyond capacity and an incoming
// non-reserved event is discarded.
type Recorder struct {
	mu       sync.Mutex
	queue    []events.Event
	capacity int

	file *os.File
	w    *bufio.Writer

	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

// New opens (creating if absent) path for append and returns a Recorder
// with the given bounded queue capacity. Call Close to flush and stop the
// background writer.
func New(path string, capacity int) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	r := &Recorder{
		capacity: capacity,
		file:     f,
		w:        bufio.NewWriter(f),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go r.run()
	return r, nil
}

// Publish enqueues evt without blocking. It is safe to call from any
// goroutine, including the hot path that appends to the event log.
func (r *Recorder) Publish(evt events.Event) {
	r.mu.Lock()
	if r.capacity > 0 && len(r.queue) >= r.capacity {
		if !r.dropOneLocked() && !events.IsReserved(evt.Topic) {
			r.mu.Unlock()
			return
		}
	}
	r.queue = append(r.queue, evt)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// dropOneLocked removes the oldest non-reserved queued event to make room
// for an incoming publish and reports whether it removed one. Reserved
// events are never removed.
func (r *Recorder) dropOneLocked() bool {
	for i, e := range r.queue {
		if !events.IsReserved(e.Topic) {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Recorder) run() {
	defer close(r.stopped)
	for {
		select {
		case <-r.wake:
			r.drain()
		case <-r.stop:
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	r.mu.Lock()
	batch := r.queue
	r.queue = nil
	r.mu.Unlock()

	for _, evt := range batch {
		data, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		_, _ = r.w.Write(data)
		_, _ = r.w.Write([]byte("\n"))
	}
	_ = r.w.Flush()
}

// Close stops the background writer, flushing any queued events, and
// closes the underlying file.
func (r *Recorder) Close() error {
	close(r.stop)
	<-r.stopped
	return r.file.Close()
}
