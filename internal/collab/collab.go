// Package collab defines the gateway's external collaborator contracts:
// components that live outside this module's scope (a desktop shell, a
// discovery service, a platform secret store). These are interfaces
// only; no implementation beyond test doubles
// belongs here.
package collab

import (
	"context"

	"github.com/mcpmux/gateway/internal/model"
)

// SecretProvider resolves secrets the gateway itself must not generate
// or store unencrypted: the field-encryption key, the OAuth JWT signing
// secret, and any OS-keychain-backed credential material.
type SecretProvider interface {
	Secret(ctx context.Context, name string) ([]byte, error)
}

// ConsentUI prompts the end user to approve an action the gateway cannot
// decide on its own: confirming a tenant switch under the ask_on_change
// connection mode, or approving a new outbound OAuth grant.
type ConsentUI interface {
	ConfirmTenantSwitch(ctx context.Context, clientID, fromTenantID, toTenantID string) (bool, error)
	ConfirmOutboundGrant(ctx context.Context, tenantID, serverID, scope string) (bool, error)
}

// DiscoveryService resolves catalog entries for installable servers.
// Browsing/searching the catalog is out of this module's scope.
type DiscoveryService interface {
	Lookup(ctx context.Context, catalogRef string) (model.InstalledServer, error)
}

// ConfigSyncService pushes gateway state changes to an external
// configuration surface (e.g. a desktop tray UI), consuming the Event
// Bus. Rewriting third-party client config files is out of this
// module's scope.
type ConfigSyncService interface {
	Sync(ctx context.Context, tenantID string) error
}
