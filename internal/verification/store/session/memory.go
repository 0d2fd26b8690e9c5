// Package session persists verification sessions.
package session

import (
	"context"
	"sync"

	"verigate/internal/verification/models"
	"verigate/pkg/platform/sentinel"
)

// InMemory is a map-backed session store for tests and local development.
type InMemory struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]*models.Session
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[int64]*models.Session)}
}

func (s *InMemory) Create(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.SessionID == sess.SessionID {
			return sentinel.ErrConflict
		}
	}
	s.nextID++
	sess.ID = s.nextID
	cp := *sess
	s.rows[sess.ID] = &cp
	return nil
}

func (s *InMemory) FindBySessionID(_ context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, sentinel.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.rows {
		if row.SessionID == sessionID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByProviderSessionID(_ context.Context, providerSessionID string) (*models.Session, error) {
	if providerSessionID == "" {
		return nil, sentinel.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.rows {
		if row.ProviderSessionID == providerSessionID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) Update(_ context.Context, id int64, upd models.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return sentinel.ErrNotFound
	}

	row.Status = upd.Status
	row.Metadata = upd.Metadata
	row.UpdatedAt = upd.UpdatedAt
	if upd.CompletedAt != nil {
		row.CompletedAt = upd.CompletedAt
	}
	if upd.ErrorMessage != "" {
		row.ErrorMessage = upd.ErrorMessage
	}
	// Provider session ID is write-once.
	if upd.ProviderSessionID != "" && row.ProviderSessionID == "" {
		row.ProviderSessionID = upd.ProviderSessionID
	}
	return nil
}
