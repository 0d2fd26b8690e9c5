// Package models defines the affiliate referral entities.
package models

import (
	"time"

	"github.com/google/uuid"
)

// AffiliateCode is a user's shareable referral code. One code per owner.
type AffiliateCode struct {
	Code      string
	OwnerID   uuid.UUID
	CreatedAt time.Time
}

// Referral links a referred user to the referrer whose code they claimed.
// A user can be referred at most once, enforced by uniqueness on ReferredID.
type Referral struct {
	ID         int64
	Code       string
	ReferrerID uuid.UUID
	ReferredID uuid.UUID
	CreatedAt  time.Time
}

// ClaimResult reports the outcome of a claim attempt. A duplicate claim is a
// non-error outcome with Claimed=false.
type ClaimResult struct {
	Claimed bool
	Code    string
	Reason  string
}

// ReasonAlreadyReferred marks the idempotent duplicate-claim outcome.
const ReasonAlreadyReferred = "already_referred"
