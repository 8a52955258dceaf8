package api

import (
	"sync"
)

// Event is one progress notification for a plan.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

const (
	EventPlanStarted   = "plan.started"
	EventBatchFinished = "batch.finished"
	EventPlanFinished  = "plan.finished"
	EventPlanSnapshot  = "plan.snapshot"
)

// Broker fans events out to in-process subscribers. Slow subscribers drop
// events rather than block the publisher.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // planId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(planID string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[planID] == nil {
		b.subs[planID] = map[chan Event]struct{}{}
	}
	b.subs[planID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(planID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[planID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, planID)
	}
	close(ch)
}

func (b *Broker) Publish(planID string, evt Event) {
	b.mu.Lock()
	m := b.subs[planID]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
