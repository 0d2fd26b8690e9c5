// Package handler exposes the verification webhook and status endpoints.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"verigate/internal/platform/metrics"
	"verigate/internal/platform/middleware"
	"verigate/internal/verification/models"
	domain "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/httputil"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// Service defines the verification operations the handler delegates to.
type Service interface {
	Reconcile(ctx context.Context, event *models.WebhookEvent, raw json.RawMessage) (*models.ReconcileResult, error)
	KYCStatus(ctx context.Context, userID uuid.UUID) (models.KYCStatus, error)
}

// Handler handles verification-related endpoints.
type Handler struct {
	logger       *slog.Logger
	service      Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator

	// webhookSecret authenticates inbound webhooks; empty disables the check.
	webhookSecret string
}

// New creates a new verification Handler.
func New(
	service Service,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
	webhookSecret string,
) *Handler {
	return &Handler{
		logger:        logger,
		service:       service,
		metrics:       m,
		jwtValidator:  jwtValidator,
		webhookSecret: webhookSecret,
	}
}

// Register registers the verification routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.LatencyMiddleware(h.metrics))

	router.Post("/webhooks/verification", h.handleWebhook)

	router.Group(func(g chi.Router) {
		g.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		g.Get("/verification/status", h.handleStatus)
	})

	r.Mount("/", router)
}

type webhookResponse struct {
	Received  bool    `json:"received"`
	Status    string  `json:"status"`
	KYCStatus *string `json:"kyc_status"`
}

// handleWebhook reconciles one provider status event.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable request body"))
		return
	}

	if h.webhookSecret != "" {
		signature := r.Header.Get(HeaderSignature)
		timestamp := r.Header.Get(HeaderTimestamp)
		if !VerifySignature(h.webhookSecret, timestamp, body, signature) {
			h.logger.WarnContext(ctx, "webhook signature verification failed",
				"request_id", requestID,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.WarnContext(ctx, "invalid webhook payload",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON payload"))
		return
	}

	result, err := h.service.Reconcile(ctx, &event, body)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeBadRequest) || dErrors.Is(err, dErrors.CodeNotFound) {
			h.logger.WarnContext(ctx, "webhook rejected",
				"request_id", requestID,
				"error", err.Error(),
			)
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to reconcile webhook",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to process webhook"))
		return
	}

	resp := webhookResponse{Received: true, Status: result.Status}
	if result.KYCUpdated {
		kyc := string(result.KYCStatus)
		resp.KYCStatus = &kyc
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	UserID    string  `json:"user_id"`
	KYCStatus *string `json:"kyc_status"`
}

// handleStatus returns the authenticated user's compliance status.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	userID, err := domain.ParseUserID(middleware.GetUserID(ctx))
	if err != nil {
		// Should never happen behind RequireAuth.
		h.logger.ErrorContext(ctx, "invalid user id in auth context",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	status, err := h.service.KYCStatus(ctx, uuid.UUID(userID))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load kyc status",
			"request_id", requestID,
			"user_id", userID.String(),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to load kyc status"))
		return
	}

	resp := statusResponse{UserID: userID.String()}
	if status != models.KYCStatusUnset {
		s := string(status)
		resp.KYCStatus = &s
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
