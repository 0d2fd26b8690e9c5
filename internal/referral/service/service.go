// Package service implements the affiliate referral flows: code issuance and
// claim reconciliation.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"verigate/internal/audit"
	"verigate/internal/platform/metrics"
	"verigate/internal/referral/models"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/sentinel"
)

// codeCreateAttempts bounds retries on code collision before falling back to
// re-reading what a racing request may have created.
const codeCreateAttempts = 5

// Store is the persistence surface the referral service needs.
type Store interface {
	FindCode(ctx context.Context, code string) (*models.AffiliateCode, error)
	FindCodeByOwner(ctx context.Context, ownerID uuid.UUID) (*models.AffiliateCode, error)
	CreateCode(ctx context.Context, code *models.AffiliateCode) error
	CreateReferral(ctx context.Context, ref *models.Referral) error
}

// Service handles affiliate code issuance and referral claims.
type Service struct {
	store   Store
	auditor *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAuditor enables audit event emission.
func WithAuditor(p *audit.Publisher) Option {
	return func(s *Service) { s.auditor = p }
}

func New(store Store, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, metrics: m, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// NormalizeCode canonicalizes a user-entered referral code: whitespace is
// stripped and the remainder uppercased. Returns "" for blank input.
func NormalizeCode(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	v = strings.Join(strings.Fields(v), "")
	return strings.ToUpper(v)
}

// Claim records that userID was referred via the given code. Claiming twice
// is reported as a non-error "already_referred" outcome so webhook-style
// client retries are painless.
func (s *Service) Claim(ctx context.Context, userID uuid.UUID, rawCode string) (*models.ClaimResult, error) {
	code := NormalizeCode(rawCode)
	if code == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid_code")
	}

	codeRow, err := s.store.FindCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "code_not_found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up code")
	}

	if codeRow.OwnerID == userID {
		s.metrics.ReferralClaims.WithLabelValues("self_referral").Inc()
		return nil, dErrors.New(dErrors.CodeBadRequest, "cannot_refer_self")
	}

	err = s.store.CreateReferral(ctx, &models.Referral{
		Code:       codeRow.Code,
		ReferrerID: codeRow.OwnerID,
		ReferredID: userID,
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.ReferralClaims.WithLabelValues("already_referred").Inc()
			return &models.ClaimResult{Claimed: false, Reason: models.ReasonAlreadyReferred}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record referral")
	}

	s.metrics.ReferralClaims.WithLabelValues("claimed").Inc()
	s.emitAudit(ctx, audit.Event{
		UserID: userID.String(),
		Action: audit.ActionReferralClaimed,
		Reason: codeRow.Code,
	})
	return &models.ClaimResult{Claimed: true, Code: codeRow.Code}, nil
}

// MyCode returns the user's affiliate code, creating one on first use.
// Collisions on the random code retry a few times; losing a creation race
// falls back to re-reading the winner's row.
func (s *Service) MyCode(ctx context.Context, userID uuid.UUID) (string, error) {
	existing, err := s.store.FindCodeByOwner(ctx, userID)
	switch {
	case err == nil:
		return existing.Code, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up code")
	}

	for i := 0; i < codeCreateAttempts; i++ {
		candidate, err := generateCode()
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
		}
		err = s.store.CreateCode(ctx, &models.AffiliateCode{Code: candidate, OwnerID: userID})
		if err == nil {
			s.emitAudit(ctx, audit.Event{
				UserID: userID.String(),
				Action: audit.ActionAffiliateCodeIssue,
				Reason: candidate,
			})
			return candidate, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to create code")
		}
	}

	// A concurrent request may have created the owner's code.
	fallback, err := s.store.FindCodeByOwner(ctx, userID)
	if err != nil {
		return "", dErrors.New(dErrors.CodeInternal, "could_not_create_code")
	}
	return fallback.Code, nil
}

// generateCode produces a 10-character uppercase hex code.
func generateCode() (string, error) {
	var buf [5]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf[:])), nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	s.auditor.Emit(ctx, event)
}
