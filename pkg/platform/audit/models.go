package audit

import (
	"time"

	"github.com/google/uuid"

	"idoracle/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so stores can
// apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers events that change who an account is bound to.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected attempts, such as a replayed response.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

// Event is one entry of the audit trail.
type Event struct {
	ID         uuid.UUID        `json:"id"`
	Category   EventCategory    `json:"category"`
	Timestamp  time.Time        `json:"timestamp"`
	Account    domain.AccountID `json:"account"`
	Action     string           `json:"action"`
	ResourceID string           `json:"resource_id,omitempty"`
	Username   string           `json:"username,omitempty"`
	Height     uint64           `json:"height"`
	Reason     string           `json:"reason,omitempty"`
	RequestID  string           `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	EventVerificationRequested AuditEvent = "verification_requested"
	EventIdentityBound         AuditEvent = "identity_bound"
	EventRequestRejected       AuditEvent = "request_rejected"
	EventResponseRejected      AuditEvent = "response_rejected"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventIdentityBound:         CategoryCompliance,
	EventResponseRejected:      CategorySecurity,
	EventVerificationRequested: CategoryOperations,
	EventRequestRejected:       CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
