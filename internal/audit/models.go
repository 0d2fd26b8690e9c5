package audit

import "time"

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	SessionID string    `json:"session_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	KYCStatus string    `json:"kyc_status,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Audit actions emitted by the reconciler and referral flows.
const (
	ActionWebhookReconciled  = "webhook_reconciled"
	ActionKYCStatusUpdated   = "kyc_status_updated"
	ActionReferralClaimed    = "referral_claimed"
	ActionAffiliateCodeIssue = "affiliate_code_issued"
)
