package chain

import (
	"context"
	"log/slog"

	"idoracle/internal/oracle/models"
	audit "idoracle/pkg/platform/audit"
)

// AuditEmitter receives the audit trail of produced blocks.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// AuditListener turns each block's extrinsic results into audit events.
// Emission failures are logged; they never affect the chain.
func AuditListener(emitter AuditEmitter, logger *slog.Logger) Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return ListenerFunc(func(ctx context.Context, block Block) {
		for _, x := range block.Extrinsics {
			event := auditEvent(block, x)
			if err := emitter.Emit(ctx, event); err != nil {
				logger.WarnContext(ctx, "failed to emit audit event",
					"action", event.Action,
					"height", block.Height,
					"error", err,
				)
			}
		}
	})
}

func auditEvent(block Block, x ExtrinsicResult) audit.Event {
	event := audit.Event{
		Timestamp: block.ProducedAt,
		Account:   x.Account,
		Height:    block.Height,
		RequestID: x.RequestID,
	}
	switch {
	case x.Event != nil && x.Event.Kind == models.EventIdentityBound:
		event.Action = string(audit.EventIdentityBound)
		event.Username = x.Event.Username.String()
	case x.Event != nil:
		event.Action = string(audit.EventVerificationRequested)
		event.ResourceID = x.Event.ResourceID.String()
	case x.Signed:
		event.Action = string(audit.EventRequestRejected)
		event.Reason = x.Error
	default:
		event.Action = string(audit.EventResponseRejected)
		event.Reason = x.Error
	}
	return event
}
