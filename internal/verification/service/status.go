package service

import (
	"strings"

	"verigate/internal/verification/models"
)

// NormalizeStatus collapses the provider's status vocabulary into one
// lowercase token. The nested decision status is authoritative when present;
// the root status is only a coarse summary.
func NormalizeStatus(root, decision string) string {
	token := decision
	if token == "" {
		token = root
	}
	return strings.ToLower(strings.TrimSpace(token))
}

// MapStatus classifies a normalized token into the two status domains:
// the permissive session-tracking status, which echoes unknown provider
// vocabulary for diagnostics, and the closed compliance status, which either
// collapses to a known value or is suppressed entirely.
//
// Cancellation is the deliberate exception: the session records it, but the
// account keeps whatever compliance state existed before.
func MapStatus(token string) (sessionStatus string, kycStatus models.KYCStatus) {
	switch token {
	case "approved":
		return "approved", models.KYCStatusApproved
	case "declined":
		return "declined", models.KYCStatusDeclined
	case "accepted":
		return "accepted", models.KYCStatusAccepted
	case "rejected":
		return "rejected", models.KYCStatusRejected
	case "pending", "in_progress", "processing", "not started":
		return "pending", models.KYCStatusPending
	case "expired":
		return "expired", models.KYCStatusExpired
	case "cancelled", "canceled":
		return "cancelled", models.KYCStatusUnset
	default:
		if token == "" {
			return "pending", models.KYCStatusPending
		}
		return token, models.KYCStatusPending
	}
}

// IsTerminal reports whether a session status completes the verification
// attempt and should stamp completed_at.
func IsTerminal(sessionStatus string) bool {
	switch sessionStatus {
	case "approved", "declined", "rejected", "accepted":
		return true
	}
	return false
}

// ExtractErrorMessage composes a single error message from the error-severity
// warnings across the decision's three check results. Short descriptions are
// preferred over long ones; empty entries are dropped; the remainder is joined
// with "; ". Returns "" when there is nothing to report.
func ExtractErrorMessage(decision *models.Decision) string {
	if decision == nil {
		return ""
	}

	var warnings []models.Warning
	for _, check := range []*models.CheckResult{decision.IDVerification, decision.Liveness, decision.FaceMatch} {
		if check != nil {
			warnings = append(warnings, check.Warnings...)
		}
	}

	var parts []string
	for _, w := range warnings {
		if w.LogType != "error" {
			continue
		}
		desc := w.ShortDescription
		if desc == "" {
			desc = w.LongDescription
		}
		if desc != "" {
			parts = append(parts, desc)
		}
	}
	return strings.Join(parts, "; ")
}
