package activity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"whiteboard/pkg/types"
)

type memoryJournal struct {
	mu      sync.Mutex
	events  []*types.LobbyEvent
	failErr error
}

func (m *memoryJournal) Record(ctx context.Context, event *types.LobbyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.events = append(m.events, event)
	return nil
}

func (m *memoryJournal) LobbyActivity(ctx context.Context, lobby string, limit int) ([]*types.LobbyEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.LobbyEvent
	for _, e := range m.events {
		if e.Lobby == lobby {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryJournal) HealthCheck(ctx context.Context) error { return m.failErr }
func (m *memoryJournal) Close() error                          { return nil }

func TestRecorder_NilJournalIsNoop(t *testing.T) {
	r := NewRecorder(nil)
	if r.Enabled() {
		t.Error("Recorder without journal should be disabled")
	}
	r.Record("art", "alice", types.EventUserJoined)
	r.Wait()

	events, err := r.Activity(context.Background(), "art", 10)
	if err != nil || len(events) != 0 {
		t.Errorf("Expected empty activity, got %v (%v)", events, err)
	}

	status, err := r.HealthCheck(context.Background())
	if status != "disabled" || err != nil {
		t.Errorf("Expected disabled status, got %s (%v)", status, err)
	}
}

func TestRecorder_RecordsEvents(t *testing.T) {
	j := &memoryJournal{}
	r := NewRecorder(j)

	r.Record("art", "alice", types.EventLobbyCreated)
	r.Record("art", "alice", types.EventUserJoined)
	r.Record("other", "bob", types.EventLobbyCreated)
	r.Wait()

	events, err := r.Activity(context.Background(), "art", 10)
	if err != nil {
		t.Fatalf("Activity failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events for art, got %d", len(events))
	}
	for _, e := range events {
		if e.ID == "" || e.CreatedAt.IsZero() {
			t.Errorf("Expected ID and timestamp to be assigned, got %+v", e)
		}
	}
}

func TestRecorder_DropsUnknownKind(t *testing.T) {
	j := &memoryJournal{}
	r := NewRecorder(j)

	r.Record("art", "alice", "exploded")
	r.Wait()

	if len(j.events) != 0 {
		t.Errorf("Expected unknown kind to be dropped, got %d events", len(j.events))
	}
}

func TestRecorder_HealthCheckReportsJournalError(t *testing.T) {
	j := &memoryJournal{failErr: errors.New("disk gone")}
	r := NewRecorder(j)

	status, err := r.HealthCheck(context.Background())
	if status != "unhealthy" || err == nil {
		t.Errorf("Expected unhealthy status with error, got %s (%v)", status, err)
	}

	// failures are logged, never surfaced to the caller
	r.Record("art", "alice", types.EventUserLeft)
	r.Wait()
}

func TestRecorder_PreservesRecordOrder(t *testing.T) {
	j := &memoryJournal{}
	r := NewRecorder(j)
	defer r.Close()

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				r.Record("art", "alice", types.EventUserJoined)
			}
		}()
	}
	wg.Wait()
	r.Wait()

	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.events) != writers*perWriter {
		t.Fatalf("Expected %d events, got %d", writers*perWriter, len(j.events))
	}
	// stored order is stamp order
	for i := 1; i < len(j.events); i++ {
		if j.events[i].CreatedAt.Before(j.events[i-1].CreatedAt) {
			t.Fatalf("Event %d stored before an earlier-stamped event: %v < %v",
				i, j.events[i].CreatedAt, j.events[i-1].CreatedAt)
		}
	}
}

func TestRecorder_SequentialEventsKeepOrder(t *testing.T) {
	j := &memoryJournal{}
	r := NewRecorder(j)
	defer r.Close()

	kinds := []string{types.EventLobbyCreated, types.EventUserJoined, types.EventUserLeft, types.EventLobbyDeleted}
	for _, kind := range kinds {
		r.Record("art", "alice", kind)
	}
	r.Wait()

	j.mu.Lock()
	defer j.mu.Unlock()
	for i, kind := range kinds {
		if j.events[i].Kind != kind {
			t.Errorf("Event %d: expected %s, got %s", i, kind, j.events[i].Kind)
		}
	}
}

func TestRecorder_CloseFlushesAndDropsLater(t *testing.T) {
	j := &memoryJournal{}
	r := NewRecorder(j)

	r.Record("art", "alice", types.EventLobbyCreated)
	r.Close()
	r.Close()
	r.Record("art", "alice", types.EventUserJoined)

	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.events) != 1 || j.events[0].Kind != types.EventLobbyCreated {
		t.Errorf("Expected only the event recorded before close, got %d", len(j.events))
	}
}
