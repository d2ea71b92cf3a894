package domain

import (
	"encoding/json"
	"time"

	"gopkg.in/guregu/null.v4"
)

// Outcome is the closed set of compliance verdicts. Downstream code must
// switch exhaustively on these instead of matching free-form strings.
type Outcome string

const (
	OutcomeCompliant            Outcome = "COMPLIANT"
	OutcomeEnforcementCandidate Outcome = "ENFORCEMENT_CANDIDATE"
	OutcomePassThrough          Outcome = "PASS_THROUGH"
	OutcomeAccessGranted        Outcome = "ACCESS_GRANTED"
	OutcomeAccessDenied         Outcome = "ACCESS_DENIED"
	OutcomeRequiresReview       Outcome = "REQUIRES_REVIEW"
	OutcomeCancelled            Outcome = "CANCELLED"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCompliant, OutcomeEnforcementCandidate, OutcomePassThrough,
		OutcomeAccessGranted, OutcomeAccessDenied, OutcomeRequiresReview, OutcomeCancelled:
		return true
	}
	return false
}

// RuleApplied identifies which policy rule produced an outcome.
type RuleApplied string

const (
	RuleValidPermit         RuleApplied = "VALID_PERMIT"
	RuleValidPayment        RuleApplied = "VALID_PAYMENT"
	RuleWithinGrace         RuleApplied = "WITHIN_GRACE"
	RuleNoValidPayment      RuleApplied = "NO_VALID_PAYMENT"
	RuleUnauthorisedParking RuleApplied = "UNAUTHORISED_PARKING"
	RuleOperatorOverride    RuleApplied = "OPERATOR_OVERRIDE"
)

type DecisionStatus string

const (
	DecisionNew       DecisionStatus = "NEW"
	DecisionCandidate DecisionStatus = "CANDIDATE"
	DecisionApproved  DecisionStatus = "APPROVED"
	DecisionDeclined  DecisionStatus = "DECLINED"
	DecisionExported  DecisionStatus = "EXPORTED"
)

// Decision is the compliance verdict for a completed session. Created once
// with status NEW; mutated by human review or by reconciliation; never
// deleted.
type Decision struct {
	ID                 int             `json:"id"`
	SessionID          null.Int        `json:"session_id,omitempty"`
	MovementID         null.Int        `json:"movement_id,omitempty"`
	Outcome            Outcome         `json:"outcome"`
	Status             DecisionStatus  `json:"status"`
	RuleApplied        RuleApplied     `json:"rule_applied"`
	Rationale          string          `json:"rationale"`
	IsOperatorOverride bool            `json:"is_operator_override"`
	OperatorID         null.String     `json:"operator_id,omitempty"`
	Params             json.RawMessage `json:"params,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// HumanFinalized reports whether the decision has been acted on by a human
// and must never be overwritten by automated reconciliation.
func (d *Decision) HumanFinalized() bool {
	switch d.Status {
	case DecisionApproved, DecisionDeclined, DecisionExported:
		return true
	}
	return d.IsOperatorOverride
}

// Verdict is the result of one pure decision-engine evaluation, before it is
// persisted or compared against a stored Decision.
type Verdict struct {
	Outcome   Outcome
	Rule      RuleApplied
	Rationale string
	Params    map[string]interface{}
}

type DecisionFilterDTO struct {
	SiteID  *int    `form:"siteId"`
	VRM     *string `form:"vrm"`
	Outcome *string `form:"outcome"`
	Status  *string `form:"status"`
}

type ReviewDecisionDTO struct {
	Approve         bool   `json:"approve"`
	OverrideOutcome string `json:"override_outcome"`
	Note            string `json:"note"`
}

// DecisionNotification is the payload pushed to the operator review queue
// over websocket when a new enforcement candidate appears.
type DecisionNotification struct {
	Type       string      `json:"type"`
	DecisionID int         `json:"decision_id"`
	SessionID  int         `json:"session_id"`
	SiteID     int         `json:"site_id"`
	VRM        string      `json:"vrm"`
	Outcome    Outcome     `json:"outcome"`
	Rule       RuleApplied `json:"rule_applied"`
	CreatedAt  time.Time   `json:"created_at"`
}
