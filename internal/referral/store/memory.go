// Package store persists affiliate codes and referrals.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"verigate/internal/referral/models"
	"verigate/pkg/platform/sentinel"
)

// InMemory is a map-backed referral store for tests and local development.
type InMemory struct {
	mu        sync.RWMutex
	codes     map[string]*models.AffiliateCode
	referrals map[uuid.UUID]*models.Referral // keyed by referred user
	nextID    int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		codes:     make(map[string]*models.AffiliateCode),
		referrals: make(map[uuid.UUID]*models.Referral),
	}
}

func (s *InMemory) FindCode(_ context.Context, code string) (*models.AffiliateCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.codes[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *InMemory) FindCodeByOwner(_ context.Context, ownerID uuid.UUID) (*models.AffiliateCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.codes {
		if row.OwnerID == ownerID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) CreateCode(_ context.Context, code *models.AffiliateCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code.Code]; ok {
		return sentinel.ErrConflict
	}
	for _, row := range s.codes {
		if row.OwnerID == code.OwnerID {
			return sentinel.ErrConflict
		}
	}
	cp := *code
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.codes[code.Code] = &cp
	return nil
}

func (s *InMemory) CreateReferral(_ context.Context, ref *models.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.referrals[ref.ReferredID]; ok {
		return sentinel.ErrConflict
	}
	s.nextID++
	cp := *ref
	cp.ID = s.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.referrals[ref.ReferredID] = &cp
	return nil
}
