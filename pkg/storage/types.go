package storage

import (
	"encoding/json"
	"time"
)

// Kind identifies one of the three mirrored entity kinds.
type Kind string

const (
	KindCampaign Kind = "campaign"
	KindAdSet    Kind = "adset"
	KindAd       Kind = "ad"
)

// Status values mirror the remote platform's delivery states. DRAFT and
// PENDING are local-only pre-launch states.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusPaused  Status = "PAUSED"
	StatusDeleted Status = "DELETED"
	StatusDraft   Status = "DRAFT"
	StatusPending Status = "PENDING"
)

// Audit actions.
const (
	ActionCreate       = "CREATE"
	ActionUpdate       = "UPDATE"
	ActionStatusUpdate = "STATUS_UPDATE"
	ActionDelete       = "DELETE"
)

// AuditBound is the maximum number of audit records kept per entity.
// Older records are trimmed when the bound is exceeded.
const AuditBound = 50

// Entity is the local mirror of a remote advertising object. RemoteID is
// assigned by the remote platform and is only ever set after a confirmed
// create; Fields carries the kind-specific payload opaquely.
type Entity struct {
	LocalID        string                 `json:"localId"`
	Kind           Kind                   `json:"kind"`
	RemoteID       string                 `json:"remoteId"`
	ParentRemoteID string                 `json:"parentRemoteId,omitempty"`
	Fields         map[string]interface{} `json:"fields"`
	Status         Status                 `json:"status"`
	RemoteSnapshot json.RawMessage        `json:"remoteSnapshot,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// AuditRecord is one append-only entry in an entity's trail. Payload is the
// raw remote response associated with the action, stored verbatim.
type AuditRecord struct {
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Success   bool            `json:"success"`
	Timestamp time.Time       `json:"timestamp"`
}
