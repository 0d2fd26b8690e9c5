package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"verigate/internal/verification/models"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name     string
		root     string
		decision string
		want     string
	}{
		{"root only", "Approved", "", "approved"},
		{"decision overrides root", "Pending", "Approved", "approved"},
		{"decision overrides even when contradictory", "Approved", "Declined", "declined"},
		{"both empty", "", "", ""},
		{"whitespace trimmed", "  Declined  ", "", "declined"},
		{"mixed case decision", "", "In_Progress", "in_progress"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeStatus(tt.root, tt.decision))
		})
	}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		token       string
		wantSession string
		wantKYC     models.KYCStatus
	}{
		{"approved", "approved", models.KYCStatusApproved},
		{"declined", "declined", models.KYCStatusDeclined},
		{"accepted", "accepted", models.KYCStatusAccepted},
		{"rejected", "rejected", models.KYCStatusRejected},
		{"pending", "pending", models.KYCStatusPending},
		{"in_progress", "pending", models.KYCStatusPending},
		{"processing", "pending", models.KYCStatusPending},
		{"not started", "pending", models.KYCStatusPending},
		{"expired", "expired", models.KYCStatusExpired},
		{"cancelled", "cancelled", models.KYCStatusUnset},
		{"canceled", "cancelled", models.KYCStatusUnset},
		{"kyc_expired_review", "kyc_expired_review", models.KYCStatusPending},
		{"", "pending", models.KYCStatusPending},
	}
	for _, tt := range tests {
		t.Run("token "+tt.token, func(t *testing.T) {
			gotSession, gotKYC := MapStatus(tt.token)
			assert.Equal(t, tt.wantSession, gotSession)
			assert.Equal(t, tt.wantKYC, gotKYC)
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{"approved", "declined", "rejected", "accepted"} {
		assert.True(t, IsTerminal(s), s)
	}
	for _, s := range []string{"pending", "expired", "cancelled", "something_else", ""} {
		assert.False(t, IsTerminal(s), s)
	}
}

func TestExtractErrorMessage(t *testing.T) {
	t.Run("filters severity, prefers short description, joins", func(t *testing.T) {
		decision := &models.Decision{
			IDVerification: &models.CheckResult{Warnings: []models.Warning{
				{LogType: "error", ShortDescription: "A"},
				{LogType: "info", ShortDescription: "B"},
			}},
			Liveness: &models.CheckResult{Warnings: []models.Warning{
				{LogType: "error", LongDescription: "C"},
			}},
		}
		assert.Equal(t, "A; C", ExtractErrorMessage(decision))
	})

	t.Run("collects across all three checks", func(t *testing.T) {
		decision := &models.Decision{
			IDVerification: &models.CheckResult{Warnings: []models.Warning{
				{LogType: "error", ShortDescription: "doc expired"},
			}},
			Liveness: &models.CheckResult{Warnings: []models.Warning{
				{LogType: "error", ShortDescription: "no face detected"},
			}},
			FaceMatch: &models.CheckResult{Warnings: []models.Warning{
				{LogType: "error", ShortDescription: "low similarity"},
			}},
		}
		assert.Equal(t, "doc expired; no face detected; low similarity", ExtractErrorMessage(decision))
	})

	t.Run("short description wins over long", func(t *testing.T) {
		decision := &models.Decision{
			FaceMatch: &models.CheckResult{Warnings: []models.Warning{
				{LogType: "error", ShortDescription: "short", LongDescription: "much longer text"},
			}},
		}
		assert.Equal(t, "short", ExtractErrorMessage(decision))
	})

	t.Run("empty entries dropped", func(t *testing.T) {
		decision := &models.Decision{
			Liveness: &models.CheckResult{Warnings: []models.Warning{
				{LogType: "error"},
				{LogType: "error", ShortDescription: "real"},
			}},
		}
		assert.Equal(t, "real", ExtractErrorMessage(decision))
	})

	t.Run("nil and empty decisions", func(t *testing.T) {
		assert.Equal(t, "", ExtractErrorMessage(nil))
		assert.Equal(t, "", ExtractErrorMessage(&models.Decision{}))
	})
}
