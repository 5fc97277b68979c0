// Package events implements the gateway's single in-process event bus:
// never block the publisher, and a lagging subscriber has its oldest
// buffered event dropped (with a warning) to make room for the new one.
// Built over a registry of per-subscriber buffered channels since Go has
// no broadcast-channel primitive in the standard library.
package events

import (
	"sync"

	"go.uber.org/zap"
)

// Kind identifies the category of a domain Event.
type Kind string

const (
	KindServerStatusChanged Kind = "server_status_changed"
	KindFeaturesDiscovered  Kind = "features_discovered"
	KindGrantChanged        Kind = "grant_changed"
	KindFeatureSetChanged   Kind = "feature_set_changed"
	KindCredentialChanged   Kind = "credential_changed"
	KindTenantConfirmed     Kind = "tenant_confirmed"
	KindSpaceActivated      Kind = "space_activated"
	KindClientGrantsUpdated Kind = "client_grants_updated"
)

// Event is one domain occurrence fanned out to every subscriber:
// internal/inbound (to emit list_changed notifications), an audit logger,
// and any UI bridge collaborator (internal/collab.ConfigSyncService).
type Event struct {
	Kind     Kind
	TenantID string
	ServerID string
	ClientID string
	Payload  any
}

const subscriberBuffer = 64

// Bus is the process-wide event bus. The zero value is not usable; build
// one with New.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
	log  *zap.Logger
}

// New builds an empty Bus.
func New(log *zap.Logger) *Bus {
	return &Bus{subs: make(map[int]chan Event), log: log}
}

// Subscription is a live subscriber handle. Callers must call Close when
// done to release the channel slot.
type Subscription struct {
	id     int
	bus    *Bus
	Events <-chan Event
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if ch, ok := s.bus.subs[s.id]; ok {
		delete(s.bus.subs, s.id)
		close(ch)
	}
}

// Subscribe registers a new subscriber and returns a handle whose Events
// channel receives every future Publish call.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch
	return &Subscription{id: id, bus: b, Events: ch}
}

// Publish fans an event out to every current subscriber. A subscriber
// whose buffer is full has its oldest buffered event dropped to make
// room; the publisher is never blocked.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			select {
			case dropped := <-ch:
				b.log.Warn("event subscriber lagging, dropped oldest event",
					zap.Int("subscriber", id), zap.String("dropped_kind", string(dropped.Kind)))
			default:
			}
			select {
			case ch <- ev:
			default:
				b.log.Warn("event subscriber still full after drop, skipping event",
					zap.Int("subscriber", id), zap.String("kind", string(ev.Kind)))
			}
		}
	}
}
