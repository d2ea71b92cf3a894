package domain

import (
	"encoding/json"
	"time"
)

// Audit actions emitted by the engine. One entry per state-changing
// operation; storage of the log is owned by the repository layer.
const (
	AuditSessionCreated         = "SESSION_CREATED"
	AuditSessionCompleted       = "SESSION_COMPLETED"
	AuditSessionInvalidated     = "SESSION_INVALIDATED"
	AuditSessionReopened        = "SESSION_REOPENED"
	AuditSessionExpired         = "SESSION_EXPIRED"
	AuditDecisionCreated        = "DECISION_CREATED"
	AuditDecisionReconciled     = "DECISION_RECONCILED"
	AuditDecisionReviewed       = "DECISION_REVIEWED"
	AuditMovementDirectionSet   = "MOVEMENT_DIRECTION_SET"
	AuditMovementDiscarded      = "MOVEMENT_DISCARDED"
	AuditMovementRestored       = "MOVEMENT_RESTORED"
	AuditMovementDuplicateEntry = "MOVEMENT_DUPLICATE_ENTRY"
	AuditMovementOrphanExit     = "MOVEMENT_ORPHAN_EXIT"
	AuditMovementFlaggedReview  = "MOVEMENT_FLAGGED_REVIEW"
)

type AuditEntry struct {
	ID         int             `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   int             `json:"entity_id"`
	Action     string          `json:"action"`
	Actor      string          `json:"actor"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewAuditEntry marshals details into the entry; marshal failures degrade to
// an empty details payload rather than blocking the audited operation.
func NewAuditEntry(entityType string, entityID int, action, actor string, details map[string]interface{}) *AuditEntry {
	entry := &AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
	}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = raw
		}
	}
	return entry
}
