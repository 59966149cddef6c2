package models

import "time"

// ConnectionEventType names a step in an integration's authorization lifecycle
type ConnectionEventType string

const (
	EventAuthorizeStarted    ConnectionEventType = "connection.authorize_started"
	EventAuthorized          ConnectionEventType = "connection.authorized"
	EventAuthorizationFailed ConnectionEventType = "connection.failed"
	EventCredentialsIssued   ConnectionEventType = "credentials.retrieved"
	EventItemsListed         ConnectionEventType = "items.listed"
)

// ConnectionEvent is published for downstream consumers. It never carries
// tokens, codes or verifiers.
type ConnectionEvent struct {
	Type      ConnectionEventType `json:"type"`
	Provider  Provider            `json:"provider"`
	OrgID     string              `json:"org_id"`
	UserID    string              `json:"user_id"`
	ItemCount int                 `json:"item_count,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}
