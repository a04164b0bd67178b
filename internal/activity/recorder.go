// Package activity feeds lobby lifecycle events to the journal from a single
// background writer, in the order they were recorded.
package activity

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"whiteboard/pkg/interfaces"
	"whiteboard/pkg/types"
)

const (
	defaultTimeout = 5 * time.Second
	queueSize      = 1024
)

// Recorder stamps events synchronously and writes them in the background.
// A nil journal turns every call into a no-op.
// ARCHITECTURAL DISCOVERY: One writer goroutine drains a FIFO queue, and
// events are stamped and enqueued under mu, so the journal's insert order is
// the order Record was called in.
type Recorder struct {
	journal interfaces.Journal
	timeout time.Duration

	mu      sync.Mutex
	queue   chan *types.LobbyEvent
	closed  bool
	pending sync.WaitGroup
	done    chan struct{}
}

// NewRecorder creates a recorder over journal, which may be nil
func NewRecorder(journal interfaces.Journal) *Recorder {
	r := &Recorder{journal: journal, timeout: defaultTimeout}
	if journal != nil {
		r.queue = make(chan *types.LobbyEvent, queueSize)
		r.done = make(chan struct{})
		go r.writeLoop()
	}
	return r
}

// Enabled reports whether events are being stored
func (r *Recorder) Enabled() bool {
	return r != nil && r.journal != nil
}

// Record queues one event. A full queue blocks the caller until the writer
// catches up.
func (r *Recorder) Record(lobby, username, kind string) {
	if !r.Enabled() {
		return
	}
	if !types.IsValidEventKind(kind) {
		log.Printf("Dropping lobby event with unknown kind %q", kind)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		log.Printf("Dropping lobby event after close: lobby=%s kind=%s", lobby, kind)
		return
	}

	r.pending.Add(1)
	r.queue <- &types.LobbyEvent{
		ID:        uuid.New().String(),
		Lobby:     lobby,
		Username:  username,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

func (r *Recorder) writeLoop() {
	defer close(r.done)
	for event := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.journal.Record(ctx, event); err != nil {
			log.Printf("Failed to record lobby event: lobby=%s kind=%s: %v", event.Lobby, event.Kind, err)
		}
		cancel()
		r.pending.Done()
	}
}

// Activity returns recent events for a lobby. Empty when the journal is disabled.
func (r *Recorder) Activity(ctx context.Context, lobby string, limit int) ([]*types.LobbyEvent, error) {
	if !r.Enabled() {
		return []*types.LobbyEvent{}, nil
	}
	events, err := r.journal.LobbyActivity(ctx, lobby, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*types.LobbyEvent{}
	}
	return events, nil
}

// HealthCheck reports "disabled", "healthy" or the journal's error
func (r *Recorder) HealthCheck(ctx context.Context) (string, error) {
	if !r.Enabled() {
		return "disabled", nil
	}
	if err := r.journal.HealthCheck(ctx); err != nil {
		return "unhealthy", err
	}
	return "healthy", nil
}

// Wait blocks until queued events are written
func (r *Recorder) Wait() {
	if !r.Enabled() {
		return
	}
	r.pending.Wait()
}

// Close writes what is queued and stops the writer. Later events are dropped.
func (r *Recorder) Close() {
	if !r.Enabled() {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
}
