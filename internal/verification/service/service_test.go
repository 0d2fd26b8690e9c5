package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verigate/internal/platform/metrics"
	"verigate/internal/verification/models"
	"verigate/internal/verification/store/account"
	"verigate/internal/verification/store/session"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/sentinel"
)

// Prometheus collectors register globally, so the package shares one instance.
var testMetrics = metrics.New()

type fixture struct {
	sessions *session.InMemory
	accounts *account.InMemory
	svc      *Service
	now      time.Time
	userID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions: session.NewInMemory(),
		accounts: account.NewInMemory(),
		now:      time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		userID:   uuid.New(),
	}
	f.svc = New(f.sessions, f.accounts, testMetrics, slog.Default(),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *fixture) seedSession(t *testing.T, sessionID, providerSessionID string) *models.Session {
	t.Helper()
	sess := &models.Session{
		UserID:            f.userID,
		SessionID:         sessionID,
		ProviderSessionID: providerSessionID,
		Status:            "pending",
		CreatedAt:         f.now.Add(-time.Hour),
		UpdatedAt:         f.now.Add(-time.Hour),
	}
	require.NoError(t, f.sessions.Create(context.Background(), sess))
	return sess
}

func event(vendorData, providerID, status string, decision *models.Decision) (*models.WebhookEvent, json.RawMessage) {
	ev := &models.WebhookEvent{
		WebhookType:       "status.updated",
		ProviderSessionID: providerID,
		VendorData:        vendorData,
		Status:            status,
		Decision:          decision,
	}
	raw, _ := json.Marshal(ev)
	return ev, raw
}

func TestReconcile_ApprovedHappyPath(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "vs_100", "")
	ctx := context.Background()

	ev, raw := event("vs_100", "prov-1", "Approved", nil)
	result, err := f.svc.Reconcile(ctx, ev, raw)
	require.NoError(t, err)

	assert.Equal(t, "approved", result.Status)
	assert.True(t, result.KYCUpdated)
	assert.Equal(t, models.KYCStatusApproved, result.KYCStatus)

	sess, err := f.sessions.FindBySessionID(ctx, "vs_100")
	require.NoError(t, err)
	assert.Equal(t, "approved", sess.Status)
	assert.Equal(t, "prov-1", sess.ProviderSessionID)
	assert.Equal(t, json.RawMessage(raw), sess.Metadata)
	require.NotNil(t, sess.CompletedAt)
	assert.Equal(t, f.now, *sess.CompletedAt)

	status, err := f.accounts.GetKYCStatus(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, models.KYCStatusApproved, status)
}

func TestReconcile_DecisionStatusWins(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "vs_101", "")
	ctx := context.Background()

	ev, raw := event("vs_101", "", "Pending", &models.Decision{Status: "Approved"})
	result, err := f.svc.Reconcile(ctx, ev, raw)
	require.NoError(t, err)
	assert.Equal(t, "approved", result.Status)
}

func TestReconcile_Idempotence(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "vs_102", "")
	ctx := context.Background()

	ev, raw := event("vs_102", "prov-2", "Declined", &models.Decision{
		Status: "Declined",
		IDVerification: &models.CheckResult{Warnings: []models.Warning{
			{LogType: "error", ShortDescription: "document expired"},
		}},
	})

	_, err := f.svc.Reconcile(ctx, ev, raw)
	require.NoError(t, err)
	first, err := f.sessions.FindBySessionID(ctx, "vs_102")
	require.NoError(t, err)

	_, err = f.svc.Reconcile(ctx, ev, raw)
	require.NoError(t, err)
	second, err := f.sessions.FindBySessionID(ctx, "vs_102")
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.ErrorMessage, second.ErrorMessage)
	assert.Equal(t, first.ProviderSessionID, second.ProviderSessionID)
	assert.Equal(t, first.Metadata, second.Metadata)

	status, err := f.accounts.GetKYCStatus(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, models.KYCStatusDeclined, status)
}

func TestReconcile_CompletionStamping(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "vs_103", "")
	ctx := context.Background()

	t.Run("non-terminal statuses never stamp", func(t *testing.T) {
		for _, status := range []string{"Pending", "Expired", "Cancelled", "Something Odd"} {
			ev, raw := event("vs_103", "", status, nil)
			_, err := f.svc.Reconcile(ctx, ev, raw)
			require.NoError(t, err)

			sess, err := f.sessions.FindBySessionID(ctx, "vs_103")
			require.NoError(t, err)
			assert.Nil(t, sess.CompletedAt, "status %q must not stamp completed_at", status)
		}
	})

	t.Run("terminal status stamps with arrival time", func(t *testing.T) {
		ev, raw := event("vs_103", "", "Approved", nil)
		_, err := f.svc.Reconcile(ctx, ev, raw)
		require.NoError(t, err)

		sess, err := f.sessions.FindBySessionID(ctx, "vs_103")
		require.NoError(t, err)
		require.NotNil(t, sess.CompletedAt)
		assert.Equal(t, f.now, *sess.CompletedAt)
	})

	t.Run("later terminal event overwrites the stamp", func(t *testing.T) {
		f.now = f.now.Add(30 * time.Minute)
		ev, raw := event("vs_103", "", "Declined", nil)
		_, err := f.svc.Reconcile(ctx, ev, raw)
		require.NoError(t, err)

		sess, err := f.sessions.FindBySessionID(ctx, "vs_103")
		require.NoError(t, err)
		require.NotNil(t, sess.CompletedAt)
		assert.Equal(t, f.now, *sess.CompletedAt)
	})
}

func TestReconcile_ProviderSessionIDWriteOnce(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "vs_104", "")
	ctx := context.Background()

	ev, raw := event("vs_104", "prov-first", "Pending", nil)
	_, err := f.svc.Reconcile(ctx, ev, raw)
	require.NoError(t, err)

	ev, raw = event("vs_104", "prov-second", "Approved", nil)
	_, err = f.svc.Reconcile(ctx, ev, raw)
	require.NoError(t, err)

	sess, err := f.sessions.FindBySessionID(ctx, "vs_104")
	require.NoError(t, err)
	assert.Equal(t, "prov-first", sess.ProviderSessionID)
}

func TestReconcile_CancelledPreservesKYCStatus(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "vs_105", "")
	ctx := context.Background()

	ev, raw := event("vs_105", "", "Approved", nil)
	_, err := f.svc.Reconcile(ctx, ev, raw)
	require.NoError(t, err)

	ev, raw = event("vs_105", "", "Cancelled", nil)
	result, err := f.svc.Reconcile(ctx, ev, raw)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", result.Status)
	assert.False(t, result.KYCUpdated)

	status, err := f.accounts.GetKYCStatus(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, models.KYCStatusApproved, status, "cancellation must keep the prior compliance state")
}

func TestReconcile_ErrorMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("composed from error-severity warnings", func(t *testing.T) {
		f := newFixture(t)
		f.seedSession(t, "vs_106", "")
		ev, raw := event("vs_106", "", "Rejected", &models.Decision{
			Status: "Rejected",
			IDVerification: &models.CheckResult{Warnings: []models.Warning{
				{LogType: "error", ShortDescription: "A"},
				{LogType: "info", ShortDescription: "B"},
			}},
			FaceMatch: &models.CheckResult{Warnings: []models.Warning{
				{LogType: "error", LongDescription: "C"},
			}},
		})
		_, err := f.svc.Reconcile(ctx, ev, raw)
		require.NoError(t, err)

		sess, err := f.sessions.FindBySessionID(ctx, "vs_106")
		require.NoError(t, err)
		assert.Equal(t, "A; C", sess.ErrorMessage)
	})

	t.Run("empty extraction leaves prior message alone", func(t *testing.T) {
		f := newFixture(t)
		f.seedSession(t, "vs_107", "")
		ev, raw := event("vs_107", "", "Declined", &models.Decision{
			Status: "Declined",
			Liveness: &models.CheckResult{Warnings: []models.Warning{
				{LogType: "error", ShortDescription: "face mismatch"},
			}},
		})
		_, err := f.svc.Reconcile(ctx, ev, raw)
		require.NoError(t, err)

		// Redelivery with no warnings must not blank the stored message.
		ev, raw = event("vs_107", "", "Declined", &models.Decision{Status: "Declined"})
		_, err = f.svc.Reconcile(ctx, ev, raw)
		require.NoError(t, err)

		sess, err := f.sessions.FindBySessionID(ctx, "vs_107")
		require.NoError(t, err)
		assert.Equal(t, "face mismatch", sess.ErrorMessage)
	})

	t.Run("approved events never set a message", func(t *testing.T) {
		f := newFixture(t)
		f.seedSession(t, "vs_108", "")
		ev, raw := event("vs_108", "", "Approved", &models.Decision{
			Status: "Approved",
			Liveness: &models.CheckResult{Warnings: []models.Warning{
				{LogType: "error", ShortDescription: "ignored"},
			}},
		})
		_, err := f.svc.Reconcile(ctx, ev, raw)
		require.NoError(t, err)

		sess, err := f.sessions.FindBySessionID(ctx, "vs_108")
		require.NoError(t, err)
		assert.Empty(t, sess.ErrorMessage)
	})
}

func TestReconcile_SessionResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("missing both identifiers rejected before lookup", func(t *testing.T) {
		f := newFixture(t)
		ev, raw := event("", "", "Approved", nil)
		_, err := f.svc.Reconcile(ctx, ev, raw)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("unknown session rejected", func(t *testing.T) {
		f := newFixture(t)
		ev, raw := event("vs_unknown", "prov-unknown", "Approved", nil)
		_, err := f.svc.Reconcile(ctx, ev, raw)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("falls back to provider identifier", func(t *testing.T) {
		f := newFixture(t)
		f.seedSession(t, "vs_109", "prov-109")
		ev, raw := event("", "prov-109", "Approved", nil)
		result, err := f.svc.Reconcile(ctx, ev, raw)
		require.NoError(t, err)
		assert.Equal(t, "approved", result.Status)
	})

	t.Run("internal identifier wins when both match rows", func(t *testing.T) {
		f := newFixture(t)
		target := f.seedSession(t, "vs_110", "")
		f.seedSession(t, "vs_111", "prov-111")

		ev, raw := event("vs_110", "prov-111", "Approved", nil)
		_, err := f.svc.Reconcile(ctx, ev, raw)
		require.NoError(t, err)

		sess, err := f.sessions.FindBySessionID(ctx, "vs_110")
		require.NoError(t, err)
		assert.Equal(t, target.ID, sess.ID)
		assert.Equal(t, "approved", sess.Status)

		other, err := f.sessions.FindBySessionID(ctx, "vs_111")
		require.NoError(t, err)
		assert.Equal(t, "pending", other.Status)
	})
}

type failingSessionStore struct {
	SessionStore
}

func (f *failingSessionStore) Update(context.Context, int64, models.SessionUpdate) error {
	return errors.New("write failed")
}

type failingAccountStore struct{}

func (f *failingAccountStore) GetKYCStatus(context.Context, uuid.UUID) (models.KYCStatus, error) {
	return models.KYCStatusUnset, errors.New("read failed")
}

func (f *failingAccountStore) UpsertKYCStatus(context.Context, uuid.UUID, models.KYCStatus) error {
	return errors.New("write failed")
}

func TestReconcile_WriteFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("primary session write failure is fatal", func(t *testing.T) {
		f := newFixture(t)
		f.seedSession(t, "vs_112", "")
		svc := New(&failingSessionStore{SessionStore: f.sessions}, f.accounts, testMetrics, slog.Default())

		ev, raw := event("vs_112", "", "Approved", nil)
		_, err := svc.Reconcile(ctx, ev, raw)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

		// The secondary write must not have been attempted.
		_, err = f.accounts.GetKYCStatus(ctx, f.userID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("secondary account write failure is suppressed", func(t *testing.T) {
		f := newFixture(t)
		f.seedSession(t, "vs_113", "")
		svc := New(f.sessions, &failingAccountStore{}, testMetrics, slog.Default(),
			WithClock(func() time.Time { return f.now }),
		)

		ev, raw := event("vs_113", "", "Approved", nil)
		result, err := svc.Reconcile(ctx, ev, raw)
		require.NoError(t, err, "account write failures must not fail the webhook")
		assert.Equal(t, "approved", result.Status)

		sess, err := f.sessions.FindBySessionID(ctx, "vs_113")
		require.NoError(t, err)
		assert.Equal(t, "approved", sess.Status)
	})
}

func TestKYCStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("unset for users with no account row", func(t *testing.T) {
		f := newFixture(t)
		status, err := f.svc.KYCStatus(ctx, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, models.KYCStatusUnset, status)
	})

	t.Run("reflects the account row", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.accounts.UpsertKYCStatus(ctx, f.userID, models.KYCStatusApproved))

		status, err := f.svc.KYCStatus(ctx, f.userID)
		require.NoError(t, err)
		assert.Equal(t, models.KYCStatusApproved, status)
	})

	t.Run("store failure surfaces as internal", func(t *testing.T) {
		f := newFixture(t)
		svc := New(f.sessions, &failingAccountStore{}, testMetrics, slog.Default())
		_, err := svc.KYCStatus(ctx, f.userID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
