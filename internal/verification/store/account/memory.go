// Package account persists the per-user compliance projection.
package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"verigate/internal/verification/models"
	"verigate/pkg/platform/sentinel"
)

// InMemory is a map-backed account store for tests and local development.
type InMemory struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*models.Account
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[uuid.UUID]*models.Account)}
}

func (s *InMemory) GetKYCStatus(_ context.Context, userID uuid.UUID) (models.KYCStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[userID]
	if !ok {
		return models.KYCStatusUnset, sentinel.ErrNotFound
	}
	return row.KYCStatus, nil
}

func (s *InMemory) UpsertKYCStatus(_ context.Context, userID uuid.UUID, status models.KYCStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if row, ok := s.rows[userID]; ok {
		row.KYCStatus = status
		row.UpdatedAt = now
		return nil
	}
	s.rows[userID] = &models.Account{
		UserID:    userID,
		KYCStatus: status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}
