// Package models defines the verification domain entities and the inbound
// webhook payload shapes.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// KYCStatus is the coarse compliance status exposed to the rest of the system
// for authorization decisions. Closed vocabulary: unrecognized provider values
// never land here.
type KYCStatus string

const (
	KYCStatusApproved KYCStatus = "approved"
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusAccepted KYCStatus = "accepted"
	KYCStatusRejected KYCStatus = "rejected"
	KYCStatusDeclined KYCStatus = "declined"
	KYCStatusExpired  KYCStatus = "expired"

	// KYCStatusUnset marks an account with no compliance state yet.
	KYCStatusUnset KYCStatus = ""
)

// Session is one identity-verification attempt. It carries both the internal
// session identifier assigned at initiation and the provider's identifier,
// which arrives with the provider's first callback and is write-once.
type Session struct {
	ID                int64
	UserID            uuid.UUID
	SessionID         string
	ProviderSessionID string
	Status            string
	ErrorMessage      string
	Metadata          json.RawMessage
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SessionUpdate describes one reconciliation write against a session row.
// Zero-valued optional fields are left untouched by stores.
type SessionUpdate struct {
	Status    string
	Metadata  json.RawMessage
	UpdatedAt time.Time

	// CompletedAt is stamped only for terminal statuses. When nil the stored
	// value is preserved.
	CompletedAt *time.Time

	// ErrorMessage is set only on decline/rejection and never cleared; empty
	// means leave the stored message alone.
	ErrorMessage string

	// ProviderSessionID is written only while the stored value is still empty.
	ProviderSessionID string
}

// Account is a user's compliance state, keyed by the user identifier shared
// with the authentication system.
type Account struct {
	UserID    uuid.UUID
	KYCStatus KYCStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WebhookEvent is the inbound provider payload. Only the consumed fields are
// modeled; the raw body is persisted wholesale as session metadata.
type WebhookEvent struct {
	WebhookType       string    `json:"webhook_type"`
	ProviderSessionID string    `json:"session_id"`
	VendorData        string    `json:"vendor_data"`
	Status            string    `json:"status"`
	Decision          *Decision `json:"decision,omitempty"`
}

// Decision is the provider's authoritative per-check verdict object. Its
// status, when present, overrides the coarser root status.
type Decision struct {
	Status         string       `json:"status"`
	IDVerification *CheckResult `json:"id_verification,omitempty"`
	Liveness       *CheckResult `json:"liveness,omitempty"`
	FaceMatch      *CheckResult `json:"face_match,omitempty"`
}

// CheckResult carries per-check warnings.
type CheckResult struct {
	Warnings []Warning `json:"warnings,omitempty"`
}

// Warning is a single provider diagnostic entry.
type Warning struct {
	LogType          string `json:"log_type"`
	ShortDescription string `json:"short_description"`
	LongDescription  string `json:"long_description"`
}

// ReconcileResult is the webhook response contract.
type ReconcileResult struct {
	Status    string
	KYCStatus KYCStatus
	// KYCUpdated reports whether the mapping produced a compliance status at
	// all; cancelled events leave the account untouched.
	KYCUpdated bool
}
