package inbound

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcpmux/gateway/internal/events"
)

func TestRelevant_FiltersByTenantAndClient(t *testing.T) {
	cases := []struct {
		name string
		ev   events.Event
		want bool
	}{
		{"matching tenant and client", events.Event{Kind: events.KindGrantChanged, TenantID: "t1", ClientID: "c1"}, true},
		{"wrong tenant", events.Event{Kind: events.KindGrantChanged, TenantID: "t2", ClientID: "c1"}, false},
		{"wrong client", events.Event{Kind: events.KindGrantChanged, TenantID: "t1", ClientID: "c2"}, false},
		{"no tenant scoping applies to all", events.Event{Kind: events.KindFeaturesDiscovered}, true},
		{"irrelevant kind", events.Event{Kind: events.KindCredentialChanged, TenantID: "t1", ClientID: "c1"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, relevant(tc.ev, "t1", "c1"))
		})
	}
}

func TestFeatureState_StartsEmpty(t *testing.T) {
	s := newFeatureState()
	assert.Empty(t, s.tools)
	assert.Empty(t, s.prompts)
	assert.Empty(t, s.resources)
}
