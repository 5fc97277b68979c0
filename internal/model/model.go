// Package model defines the gateway's domain entities. It has no
// behavior of its own; persistence lives in internal/store and business
// logic lives in the packages that consume these types.
package model

import "time"

// Tenant is a space: an isolation boundary for installed servers,
// feature sets, and grants.
type Tenant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// InboundClient is an MCP client (an AI assistant, an IDE extension) that
// connects to the gateway as an OAuth client.
type InboundClient struct {
	ID              string     `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	ConnectionMode  ConnMode   `db:"connection_mode" json:"connectionMode"`
	PinnedTenantID  *string    `db:"pinned_tenant_id" json:"pinnedTenantId,omitempty"`
	RedirectURIs    StringList `db:"redirect_uris" json:"redirectUris"`
	ClientSecretEnc *string    `db:"client_secret_enc" json:"-"`
	// Approved gates token issuance. A dynamically-registered client
	// starts unapproved and cannot complete /authorize or /token until
	// an operator approves it.
	Approved  bool      `db:"approved" json:"approved"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// ConnMode determines how a client's tenant is selected at connection
// time.
type ConnMode string

const (
	// ConnModeFollowActive resolves to whichever tenant is currently active
	// gateway-wide, tracking tenant switches as they happen.
	ConnModeFollowActive ConnMode = "follow_active"
	// ConnModePinned resolves to PinnedTenantID regardless of the active
	// tenant.
	ConnModePinned ConnMode = "pinned"
	// ConnModeAskOnChange resolves to the client's last-confirmed tenant,
	// requiring out-of-band confirmation (internal/collab.ConsentUI) before
	// following an active-tenant change.
	ConnModeAskOnChange ConnMode = "ask_on_change"
)

// InstalledServer is an outbound MCP server attached to a tenant.
type InstalledServer struct {
	ID          string      `db:"id" json:"id"`
	TenantID    string      `db:"tenant_id" json:"tenantId"`
	Name        string      `db:"name" json:"name"`
	Source      ServerSrc   `db:"source" json:"source"`
	Transport   Transport   `db:"transport" json:"transport"`
	Command     *string     `db:"command" json:"command,omitempty"`
	URL         *string     `db:"url" json:"url,omitempty"`
	// Alias is the operator-declared short name used as the tool-name
	// prefix in place of the normalized server ID, when set and not
	// claimed by an earlier-installed server of the same tenant.
	Alias       *string     `db:"alias" json:"alias,omitempty"`
	InputValues RawJSON     `db:"input_values_enc" json:"-"`
	Status      ServerState `db:"-" json:"status"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}

// ServerSrc identifies where an installed server's definition came from.
type ServerSrc string

const (
	ServerSrcCatalog ServerSrc = "catalog"
	ServerSrcManual  ServerSrc = "manual"
)

// Transport identifies how the gateway dials an outbound server.
type Transport string

const (
	TransportStdio      Transport = "stdio"
	TransportHTTP       Transport = "http"
	TransportSSE        Transport = "sse"
)

// ServerState is the connection state machine for an outbound server,
// scoped per tenant. Disconnected is the rest state; Connecting is
// entered exactly once per dial attempt via the connection pool's dial
// gate.
type ServerState string

const (
	StateDisconnected  ServerState = "disconnected"
	StateConnecting    ServerState = "connecting"
	StateConnected     ServerState = "connected"
	StateAuthRequired  ServerState = "auth_required"
	StateError         ServerState = "error"
	StateDisconnecting ServerState = "disconnecting"
)

// ServerFeature is a tool, prompt, or resource discovered from an
// installed server.
type ServerFeature struct {
	ID          string      `db:"id" json:"id"`
	ServerID    string      `db:"server_id" json:"serverId"`
	Kind        FeatureKind `db:"kind" json:"kind"`
	Name        string      `db:"name" json:"name"`
	Prefix      string      `db:"prefix" json:"prefix"`
	RawJSON     RawJSON     `db:"raw_json" json:"raw"`
	DiscoveredAt time.Time  `db:"discovered_at" json:"discoveredAt"`
}

// FeatureKind identifies what kind of MCP primitive a ServerFeature is.
type FeatureKind string

const (
	FeatureTool     FeatureKind = "tool"
	FeaturePrompt   FeatureKind = "prompt"
	FeatureResource FeatureKind = "resource"
)

// QualifiedName returns the gateway-visible name: prefix_name.
func (f ServerFeature) QualifiedName() string {
	if f.Prefix == "" {
		return f.Name
	}
	return f.Prefix + "_" + f.Name
}

// FeatureSetType is the kind of a feature set.
type FeatureSetType string

const (
	FeatureSetAll        FeatureSetType = "all"
	FeatureSetDefault    FeatureSetType = "default"
	FeatureSetServerAll  FeatureSetType = "server_all"
	FeatureSetCustom     FeatureSetType = "custom"
)

func (t FeatureSetType) String() string { return string(t) }

// ParseFeatureSetType parses the on-disk string form of a FeatureSetType.
func ParseFeatureSetType(s string) (FeatureSetType, bool) {
	switch FeatureSetType(s) {
	case FeatureSetAll, FeatureSetDefault, FeatureSetServerAll, FeatureSetCustom:
		return FeatureSetType(s), true
	default:
		return "", false
	}
}

// FeatureSet is a named, possibly nested collection of allowed/excluded
// features, scoped to a tenant.
type FeatureSet struct {
	ID          string         `db:"id" json:"id"`
	TenantID    string         `db:"tenant_id" json:"tenantId"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description"`
	Icon        string         `db:"icon" json:"icon,omitempty"`
	Type        FeatureSetType `db:"feature_set_type" json:"type"`
	ServerID    *string        `db:"server_id" json:"serverId,omitempty"`
	IsBuiltin   bool           `db:"is_builtin" json:"isBuiltin"`
	IsDeleted   bool           `db:"is_deleted" json:"isDeleted"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
}

// AllFeatureSetID is the deterministic ID of a tenant's builtin "all" set.
func AllFeatureSetID(tenantID string) string { return "fs_all_" + tenantID }

// DefaultFeatureSetID is the deterministic ID of a tenant's builtin
// "default" set.
func DefaultFeatureSetID(tenantID string) string { return "fs_default_" + tenantID }

// ServerAllFeatureSetID is the deterministic ID of the builtin set
// covering every feature of a single installed server.
func ServerAllFeatureSetID(serverID, tenantID string) string {
	return "fs_server_" + serverID + "_" + tenantID
}

// MemberMode says whether a FeatureSetMember adds or removes coverage.
type MemberMode string

const (
	MemberInclude MemberMode = "include"
	MemberExclude MemberMode = "exclude"
)

// MemberType says what a FeatureSetMember's MemberID refers to.
type MemberType string

const (
	MemberFeature    MemberType = "feature"
	MemberFeatureSet MemberType = "feature_set"
)

// FeatureSetMember is one entry of a FeatureSet's membership list.
type FeatureSetMember struct {
	ID           string     `db:"id" json:"id"`
	FeatureSetID string     `db:"feature_set_id" json:"featureSetId"`
	MemberType   MemberType `db:"member_type" json:"memberType"`
	MemberID     string     `db:"member_id" json:"memberId"`
	Mode         MemberMode `db:"mode" json:"mode"`
}

// Grant attaches a FeatureSet to an InboundClient within a Tenant,
// making that feature set's resolved features visible to that client.
type Grant struct {
	ID           string    `db:"id" json:"id"`
	TenantID     string    `db:"tenant_id" json:"tenantId"`
	ClientID     string    `db:"client_id" json:"clientId"`
	FeatureSetID string    `db:"feature_set_id" json:"featureSetId"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// CredentialKind identifies the shape of a stored Credential.
type CredentialKind string

const (
	CredentialOAuth CredentialKind = "oauth"
	CredentialAPIKey CredentialKind = "api_key"
	CredentialEnv    CredentialKind = "env"
)

// Credential is an encrypted secret bound to a tenant+server pair.
type Credential struct {
	ID         string         `db:"id" json:"id"`
	TenantID   string         `db:"tenant_id" json:"tenantId"`
	ServerID   string         `db:"server_id" json:"serverId"`
	Kind       CredentialKind `db:"kind" json:"kind"`
	ValueEnc   string         `db:"value_enc" json:"-"`
	ExpiresAt  *time.Time     `db:"expires_at" json:"expiresAt,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
}

// OutboundOAuthRegistration records the result of dynamically registering
// this gateway as an OAuth client of an outbound server.
type OutboundOAuthRegistration struct {
	ID           string    `db:"id" json:"id"`
	TenantID     string    `db:"tenant_id" json:"tenantId"`
	ServerID     string    `db:"server_id" json:"serverId"`
	ClientID     string    `db:"client_id" json:"clientId"`
	ClientSecret *string   `db:"client_secret_enc" json:"-"`
	Scopes       StringList `db:"scopes" json:"scopes"`
	RegisteredAt time.Time `db:"registered_at" json:"registeredAt"`
}

// AppSetting is a small per-key/value durable setting, used for things
// like a client's last-confirmed tenant under ask_on_change.
type AppSetting struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// ConfirmedTenantSettingKey returns the AppSetting key holding a client's
// last-confirmed tenant under the ask_on_change connection mode.
func ConfirmedTenantSettingKey(clientID string) string {
	return "client." + clientID + ".confirmed_tenant"
}

// LogSource identifies where a ServerLog line originated.
type LogSource string

const (
	LogSourceApp       LogSource = "app"
	LogSourceTransport LogSource = "transport"
)

// ServerLog is one structured log line attributed to an outbound server.
type ServerLog struct {
	TenantID  string         `json:"tenantId"`
	ServerID  string         `json:"serverId"`
	Level     string         `json:"level"`
	Source    LogSource      `json:"source"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
