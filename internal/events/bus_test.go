package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBus_PublishDeliversToAllSubscribers(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Close()
	defer s2.Close()

	b.Publish(Event{Kind: KindGrantChanged, TenantID: "t1"})

	select {
	case ev := <-s1.Events:
		assert.Equal(t, KindGrantChanged, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 did not receive event")
	}
	select {
	case ev := <-s2.Events:
		assert.Equal(t, KindGrantChanged, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber 2 did not receive event")
	}
}

func TestBus_ClosedSubscriptionStopsReceiving(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	s := b.Subscribe()
	s.Close()

	_, ok := <-s.Events
	assert.False(t, ok)

	// Publishing after Close must not panic or deadlock.
	b.Publish(Event{Kind: KindGrantChanged})
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	s := b.Subscribe()
	s.Close()
	assert.NotPanics(t, s.Close)
}

func TestBus_LaggingSubscriberDropsOldestRatherThanBlocking(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	s := b.Subscribe()
	defer s.Close()

	for i := 0; i < subscriberBuffer+5; i++ {
		done := make(chan struct{})
		go func() {
			b.Publish(Event{Kind: KindGrantChanged, ServerID: string(rune('a' + i%26))})
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Publish blocked on a full subscriber buffer")
		}
	}

	require.Len(t, s.Events, subscriberBuffer)
	last := Event{}
	for len(s.Events) > 0 {
		last = <-s.Events
	}
	assert.Equal(t, string(rune('a'+(subscriberBuffer+4)%26)), last.ServerID)
}

func TestBus_SubscribeAfterCloseGetsFreshChannel(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	s1 := b.Subscribe()
	s1.Close()

	s2 := b.Subscribe()
	defer s2.Close()
	b.Publish(Event{Kind: KindFeaturesDiscovered})

	select {
	case ev := <-s2.Events:
		assert.Equal(t, KindFeaturesDiscovered, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("new subscriber did not receive event")
	}
}
