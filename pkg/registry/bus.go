package registry

import (
	"encoding/json"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// busQueueSize is the per-subscriber delivery bound. Once exceeded the
// bus drops the oldest pending events to make room for a lag marker and
// the new event.
const busQueueSize = 256

// Event is the JSON payload delivered to subscribers. Exactly one of
// Progress or Metadata is set for a delta event; Type is set only for
// the synthetic snapshot/lag shapes.
type Event struct {
	Type     string          `json:"type,omitempty"`
	ModelID  string          `json:"model_id,omitempty"`
	Progress *ProgressRecord `json:"progress,omitempty"`
	Metadata *ModelMetadata  `json:"metadata,omitempty"`
	Dropped  int             `json:"dropped,omitempty"`
}

// Subscriber is a bounded delivery queue owned by a single SSE connection.
type Subscriber struct {
	id uuid.UUID
	ch chan Event
}

// ID returns the subscriber's handle, usable for logging/diagnostics.
func (s *Subscriber) ID() string { return s.id.String() }

// Events returns the channel to range over for delivery.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Bus fans out progress and metadata events to an arbitrary number of
// subscribers, each with its own bounded queue so one slow reader cannot
// block another.
type Bus struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]*Subscriber
	lastHash    map[string]uint64
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[uuid.UUID]*Subscriber),
		lastHash:    make(map[string]uint64),
	}
}

// Subscribe registers a new subscriber and returns it. Callers must call
// Unsubscribe when the connection ends.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscriber{id: uuid.New(), ch: make(chan Event, busQueueSize)}
	b.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes sub from the fan-out set. Idempotent.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub.id]; ok {
		delete(b.subscribers, sub.id)
		close(sub.ch)
	}
}

// publishProgress fans out a progress delta for modelID.
func (b *Bus) publishProgress(modelID string, progress ProgressRecord) {
	b.publish(Event{ModelID: modelID, Progress: &progress}, modelID, "p:")
}

// publishMetadata fans out a metadata delta for modelID, emitted whenever
// state changes as part of download completion/failure/activation/removal.
func (b *Bus) publishMetadata(modelID string, metadata ModelMetadata) {
	b.publish(Event{ModelID: modelID, Metadata: &metadata}, modelID, "m:")
}

func (b *Bus) publish(evt Event, dedupKey, dedupPrefix string) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	key := dedupPrefix + dedupKey
	hash := xxhash.Sum64(payload)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastHash[key] == hash {
		return
	}
	b.lastHash[key] = hash

	for _, sub := range b.subscribers {
		b.deliver(sub, evt)
	}
}

// deliver pushes evt onto sub's queue. When the queue is full it drops
// the two oldest pending events, so that both a lag marker carrying the
// dropped count and evt itself fit.
func (b *Bus) deliver(sub *Subscriber, evt Event) {
	select {
	case sub.ch <- evt:
		return
	default:
	}
	dropped := 0
	for i := 0; i < 2; i++ {
		select {
		case <-sub.ch:
			dropped++
		default:
		}
	}
	if dropped > 0 {
		select {
		case sub.ch <- Event{Type: "lag", Dropped: dropped}:
		default:
		}
	}
	select {
	case sub.ch <- evt:
	default:
	}
}
