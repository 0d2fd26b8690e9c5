// Package handler exposes the affiliate referral endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"verigate/internal/platform/metrics"
	"verigate/internal/platform/middleware"
	"verigate/internal/referral/models"
	domain "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/httputil"
)

// Service defines the referral operations the handler delegates to.
type Service interface {
	Claim(ctx context.Context, userID uuid.UUID, rawCode string) (*models.ClaimResult, error)
	MyCode(ctx context.Context, userID uuid.UUID) (string, error)
}

// Handler handles affiliate referral endpoints.
type Handler struct {
	logger       *slog.Logger
	service      Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new referral Handler.
func New(service Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register registers the referral routes with the chi router. All routes
// require an authenticated user.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(15 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.LatencyMiddleware(h.metrics))
	router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	router.Post("/claim", h.handleClaim)
	router.Get("/code", h.handleMyCode)
	router.Post("/code", h.handleMyCode)

	r.Mount("/affiliate", router)
}

type claimRequest struct {
	Code string `json:"code"`
}

type claimResponse struct {
	Claimed bool   `json:"claimed"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// handleClaim records the authenticated user as referred by the given code.
func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid claim payload",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON payload"))
		return
	}

	result, err := h.service.Claim(ctx, userID, req.Code)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeBadRequest) || dErrors.Is(err, dErrors.CodeNotFound) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to claim referral",
			"request_id", requestID,
			"user_id", userID.String(),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to claim referral"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, claimResponse{
		Claimed: result.Claimed,
		Code:    result.Code,
		Reason:  result.Reason,
	})
}

type codeResponse struct {
	Code string `json:"code"`
}

// handleMyCode returns the authenticated user's affiliate code, creating one
// on first use.
func (h *Handler) handleMyCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	code, err := h.service.MyCode(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to resolve affiliate code",
			"request_id", requestID,
			"user_id", userID.String(),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to resolve affiliate code"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, codeResponse{Code: code})
}

func (h *Handler) authedUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	ctx := r.Context()
	userID, err := domain.ParseUserID(middleware.GetUserID(ctx))
	if err != nil {
		// Should never happen behind RequireAuth.
		h.logger.ErrorContext(ctx, "invalid user id in auth context",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return uuid.Nil, false
	}
	return uuid.UUID(userID), true
}
