package models

import (
	"time"

	"idoracle/pkg/domain"
)

// VerificationRequest is a pending claim: Requester says it owns ResourceID.
// At most one exists per requester; a new submission replaces it.
type VerificationRequest struct {
	Requester   domain.AccountID  `json:"requester"`
	ResourceID  domain.ResourceID `json:"resource_id"`
	SubmittedAt uint64            `json:"submitted_at"` // block height
}

// IdentityBinding is the verified outcome of a claim.
type IdentityBinding struct {
	Requester domain.AccountID `json:"requester"`
	Username  domain.Username  `json:"username"`
	BoundAt   uint64           `json:"bound_at"` // block height
}

// EventKind names the events emitted by block execution.
type EventKind string

const (
	EventVerificationRequested EventKind = "verification_requested"
	EventIdentityBound         EventKind = "identity_bound"
)

// Event is emitted by a successfully executed extrinsic.
type Event struct {
	Kind       EventKind         `json:"kind"`
	Height     uint64            `json:"height"`
	Account    domain.AccountID  `json:"account"`
	ResourceID domain.ResourceID `json:"resource_id,omitzero"`
	Username   domain.Username   `json:"username,omitempty"`
	At         time.Time         `json:"at"`
}
