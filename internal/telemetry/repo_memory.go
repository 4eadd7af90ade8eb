package telemetry

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultMaxEvents bounds the in-memory log; the game runs for the process
// lifetime and auto kills arrive every tick.
const DefaultMaxEvents = 10000

// Repository stores telemetry events
type Repository interface {
	RecordEvent(eventType EventType, metadata EventMetadata) error
	GetEvents(since time.Time, eventTypes []EventType) ([]Event, error)
	Clear() error
}

// MemoryRepository stores the most recent events in memory, oldest dropped first.
type MemoryRepository struct {
	mu     sync.RWMutex
	events []Event
	nextID int
	max    int
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return NewMemoryRepositoryWith(DefaultMaxEvents, time.Now)
}

func NewMemoryRepositoryWith(maxEvents int, now func() time.Time) *MemoryRepository {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryRepository{
		events: make([]Event, 0),
		nextID: 1,
		max:    maxEvents,
		now:    now,
	}
}

func (r *MemoryRepository) RecordEvent(eventType EventType, metadata EventMetadata) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, Event{
		ID:        r.nextID,
		Type:      eventType,
		Timestamp: r.now(),
		Metadata:  string(metadataJSON),
	})
	r.nextID++

	if over := len(r.events) - r.max; over > 0 {
		r.events = append(r.events[:0:0], r.events[over:]...)
	}
	return nil
}

func (r *MemoryRepository) GetEvents(since time.Time, eventTypes []EventType) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typeFilter := make(map[EventType]bool)
	for _, t := range eventTypes {
		typeFilter[t] = true
	}

	result := make([]Event, 0)
	for _, event := range r.events {
		if event.Timestamp.Before(since) {
			continue
		}
		if len(eventTypes) > 0 && !typeFilter[event.Type] {
			continue
		}
		result = append(result, event)
	}

	return result, nil
}

func (r *MemoryRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = make([]Event, 0)
	r.nextID = 1

	return nil
}

// Discard is a Repository that drops everything.
type Discard struct{}

func (Discard) RecordEvent(EventType, EventMetadata) error { return nil }

func (Discard) GetEvents(time.Time, []EventType) ([]Event, error) { return nil, nil }

func (Discard) Clear() error { return nil }
