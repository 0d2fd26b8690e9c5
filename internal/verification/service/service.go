// Package service implements the webhook reconciliation flow: normalize the
// provider status, classify it into the session and compliance domains, and
// apply the two idempotent writes.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"verigate/internal/audit"
	"verigate/internal/platform/metrics"
	"verigate/internal/verification/cache"
	"verigate/internal/verification/models"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/sentinel"
)

var tracer = otel.Tracer("verigate/internal/verification")

// SessionStore is the session persistence surface the reconciler needs.
type SessionStore interface {
	FindBySessionID(ctx context.Context, sessionID string) (*models.Session, error)
	FindByProviderSessionID(ctx context.Context, providerSessionID string) (*models.Session, error)
	Update(ctx context.Context, id int64, upd models.SessionUpdate) error
}

// AccountStore is the compliance projection surface.
type AccountStore interface {
	GetKYCStatus(ctx context.Context, userID uuid.UUID) (models.KYCStatus, error)
	UpsertKYCStatus(ctx context.Context, userID uuid.UUID, status models.KYCStatus) error
}

// Service reconciles provider webhook events against the datastore.
type Service struct {
	sessions SessionStore
	accounts AccountStore
	cache    *cache.KYCStatusCache
	auditor  *audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	clock    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithCache enables the best-effort kyc_status projection cache.
func WithCache(c *cache.KYCStatusCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithAuditor enables audit event emission.
func WithAuditor(p *audit.Publisher) Option {
	return func(s *Service) { s.auditor = p }
}

func New(sessions SessionStore, accounts AccountStore, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		accounts: accounts,
		metrics:  m,
		logger:   logger,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Reconcile processes one webhook event. The session update is the
// authoritative write and fails the request on error; the account upsert is a
// best-effort secondary projection whose failures are logged and suppressed.
// Re-applying the same event is a no-op in effect, so at-least-once webhook
// delivery is safe.
func (s *Service) Reconcile(ctx context.Context, event *models.WebhookEvent, raw json.RawMessage) (*models.ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "verification.Reconcile")
	defer span.End()

	if event.VendorData == "" && event.ProviderSessionID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "missing session identifier")
	}

	sess, err := s.resolveSession(ctx, event)
	if err != nil {
		return nil, err
	}

	var decisionStatus string
	if event.Decision != nil {
		decisionStatus = event.Decision.Status
	}
	token := NormalizeStatus(event.Status, decisionStatus)
	sessionStatus, kycStatus := MapStatus(token)
	span.SetAttributes(
		attribute.String("verification.status", sessionStatus),
		attribute.String("verification.kyc_status", string(kycStatus)),
	)

	now := s.clock()
	upd := models.SessionUpdate{
		Status:    sessionStatus,
		Metadata:  raw,
		UpdatedAt: now,
	}
	if IsTerminal(sessionStatus) {
		completedAt := now
		upd.CompletedAt = &completedAt
	}
	if sessionStatus == "declined" || sessionStatus == "rejected" {
		upd.ErrorMessage = ExtractErrorMessage(event.Decision)
	}
	if sess.ProviderSessionID == "" && event.ProviderSessionID != "" {
		upd.ProviderSessionID = event.ProviderSessionID
	}

	if err := s.sessions.Update(ctx, sess.ID, upd); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update verification session")
	}
	s.metrics.WebhooksReceived.WithLabelValues(sessionStatus).Inc()

	result := &models.ReconcileResult{Status: sessionStatus}
	if kycStatus != models.KYCStatusUnset {
		result.KYCStatus = kycStatus
		result.KYCUpdated = true
		s.applyKYCStatus(ctx, sess.UserID, kycStatus)
	}

	s.emitAudit(ctx, audit.Event{
		UserID:    sess.UserID.String(),
		Action:    audit.ActionWebhookReconciled,
		SessionID: sess.SessionID,
		Status:    sessionStatus,
		KYCStatus: string(kycStatus),
	})

	return result, nil
}

// resolveSession locates the session for an event: internal identifier first,
// provider identifier second. The first match wins.
func (s *Service) resolveSession(ctx context.Context, event *models.WebhookEvent) (*models.Session, error) {
	if event.VendorData != "" {
		sess, err := s.sessions.FindBySessionID(ctx, event.VendorData)
		switch {
		case err == nil:
			return sess, nil
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up verification session")
		}
	}
	if event.ProviderSessionID != "" {
		sess, err := s.sessions.FindByProviderSessionID(ctx, event.ProviderSessionID)
		switch {
		case err == nil:
			return sess, nil
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up verification session")
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "verification session not found")
}

// applyKYCStatus performs the best-effort account upsert and projection cache
// refresh. The session record is already durable, so failures here must not
// fail the webhook.
func (s *Service) applyKYCStatus(ctx context.Context, userID uuid.UUID, status models.KYCStatus) {
	if err := s.accounts.UpsertKYCStatus(ctx, userID, status); err != nil {
		s.metrics.AccountWriteSkips.Inc()
		s.logger.ErrorContext(ctx, "failed to upsert account kyc_status",
			"error", err,
			"user_id", userID.String(),
			"kyc_status", string(status),
		)
		return
	}
	s.metrics.KYCStatusUpdates.WithLabelValues(string(status)).Inc()

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, status); err != nil {
			s.logger.WarnContext(ctx, "failed to refresh kyc_status cache",
				"error", err,
				"user_id", userID.String(),
			)
		}
	}
}

// KYCStatus returns the user's compliance status, reading through the cache
// when one is configured. A user without an account row reports the unset
// status rather than an error.
func (s *Service) KYCStatus(ctx context.Context, userID uuid.UUID) (models.KYCStatus, error) {
	if s.cache != nil {
		status, err := s.cache.Get(ctx, userID)
		if err == nil {
			return status, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "kyc_status cache read failed",
				"error", err,
				"user_id", userID.String(),
			)
		}
	}

	status, err := s.accounts.GetKYCStatus(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.KYCStatusUnset, nil
		}
		return models.KYCStatusUnset, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load kyc status")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, status); err != nil {
			s.logger.WarnContext(ctx, "failed to refresh kyc_status cache",
				"error", err,
				"user_id", userID.String(),
			)
		}
	}
	return status, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	s.auditor.Emit(ctx, event)
}
