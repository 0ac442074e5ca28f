package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"chainhook-relay/internal/metrics"
	"chainhook-relay/internal/models"
)

// MemoryRepository keeps events in a lock-guarded ring buffer.
// Arrival order is preserved; once capacity is reached the oldest event is evicted.
type MemoryRepository struct {
	mu       sync.RWMutex
	events   []models.ChainEvent // ring storage, len == capacity once full
	head     int                 // index of the oldest event when full
	size     int
	capacity int // 0 means unbounded
}

// NewMemoryRepository creates an in-memory repository retaining at most capacity events
func NewMemoryRepository(capacity int) *MemoryRepository {
	if capacity < 0 {
		capacity = 0
	}
	if capacity == 0 {
		slog.Warn("Event retention is unbounded, memory grows with every ingested event")
	}

	initial := capacity
	if initial == 0 || initial > 1024 {
		initial = 1024
	}

	return &MemoryRepository{
		events:   make([]models.ChainEvent, 0, initial),
		capacity: capacity,
	}
}

// ApplyDelivery tags and appends under one write lock
func (r *MemoryRepository) ApplyDelivery(ctx context.Context, rolledBack []string, events []models.ChainEvent, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tagged := r.markLocked(rolledBack, at)
	r.appendLocked(events)
	return tagged, nil
}

// SaveEvents appends events in order, evicting the oldest when full
func (r *MemoryRepository) SaveEvents(ctx context.Context, events []models.ChainEvent) error {
	if len(events) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.appendLocked(events)
	return nil
}

// MarkRolledBack tags every retained event of the given transactions
func (r *MemoryRepository) MarkRolledBack(ctx context.Context, txIDs []string, at time.Time) (int, error) {
	if len(txIDs) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.markLocked(txIDs, at), nil
}

func (r *MemoryRepository) appendLocked(events []models.ChainEvent) {
	if len(events) == 0 {
		return
	}

	evicted := 0
	for _, event := range events {
		if r.capacity == 0 || r.size < r.capacity {
			r.events = append(r.events, event)
			r.size++
			continue
		}

		// Full: overwrite the oldest slot and advance the head
		r.events[r.head] = event
		r.head = (r.head + 1) % r.capacity
		evicted++
	}

	if evicted > 0 {
		metrics.EventsEvicted.Add(float64(evicted))
	}
	metrics.EventsRetained.Set(float64(r.size))
}

func (r *MemoryRepository) markLocked(txIDs []string, at time.Time) int {
	if len(txIDs) == 0 {
		return 0
	}

	wanted := make(map[string]struct{}, len(txIDs))
	for _, id := range txIDs {
		wanted[id] = struct{}{}
	}

	ts := at.UTC()
	tagged := 0
	for i := 0; i < r.size; i++ {
		event := &r.events[r.index(i)]
		if _, ok := wanted[event.TxID]; !ok || event.IsRolledBack() {
			continue
		}
		rolledBackAt := ts
		event.Status = models.StatusRolledBack
		event.RolledBackAt = &rolledBackAt
		tagged++
	}
	return tagged
}

// ListEvents returns up to filter.Limit matching events, newest first,
// along with the number of matches before truncation
func (r *MemoryRepository) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.ChainEvent, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.ChainEvent, 0, min(max(filter.Limit, 0), r.size))
	total := 0
	for i := r.size - 1; i >= 0; i-- {
		event := &r.events[r.index(i)]
		if !filter.Matches(event) {
			continue
		}
		total++
		if filter.Limit <= 0 || len(result) < filter.Limit {
			result = append(result, copyEvent(event))
		}
	}

	return result, total, nil
}

// GetEventByTxID returns the oldest applied event for txID, or the oldest
// rolled-back one when every retained event of txID has been rolled back
func (r *MemoryRepository) GetEventByTxID(ctx context.Context, txID string) (*models.ChainEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fallback *models.ChainEvent
	for i := 0; i < r.size; i++ {
		event := &r.events[r.index(i)]
		if event.TxID != txID {
			continue
		}
		if !event.IsRolledBack() {
			found := copyEvent(event)
			return &found, nil
		}
		if fallback == nil {
			fallback = event
		}
	}

	if fallback == nil {
		return nil, ErrNotFound
	}
	found := copyEvent(fallback)
	return &found, nil
}

// CountEvents returns the number of retained events
func (r *MemoryRepository) CountEvents(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size, nil
}

// Capacity returns the configured retention bound (0 = unbounded)
func (r *MemoryRepository) Capacity() int {
	return r.capacity
}

func (r *MemoryRepository) Name() string { return "memory" }

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }

// index maps a logical position (0 = oldest) to a slot in the ring
func (r *MemoryRepository) index(i int) int {
	if r.capacity == 0 || r.size < r.capacity {
		return i
	}
	return (r.head + i) % r.capacity
}

// copyEvent detaches a result from the ring so later tagging cannot race readers
func copyEvent(e *models.ChainEvent) models.ChainEvent {
	out := *e
	if e.RolledBackAt != nil {
		ts := *e.RolledBackAt
		out.RolledBackAt = &ts
	}
	out.Args = make([]json.RawMessage, len(e.Args))
	copy(out.Args, e.Args)
	return out
}
