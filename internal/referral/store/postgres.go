package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"verigate/internal/referral/models"
	"verigate/pkg/platform/sentinel"
)

// PostgresStore persists affiliate codes and referrals in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed referral store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindCode(ctx context.Context, code string) (*models.AffiliateCode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT code, owner_id, created_at FROM affiliate_codes WHERE code = $1`, code)
	return scanCode(row)
}

func (s *PostgresStore) FindCodeByOwner(ctx context.Context, ownerID uuid.UUID) (*models.AffiliateCode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT code, owner_id, created_at FROM affiliate_codes WHERE owner_id = $1`, ownerID)
	return scanCode(row)
}

func (s *PostgresStore) CreateCode(ctx context.Context, code *models.AffiliateCode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO affiliate_codes (code, owner_id) VALUES ($1, $2)`,
		code.Code, code.OwnerID)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create affiliate code: %w", err)
	}
	return nil
}

// CreateReferral inserts a referral guarded by the uniqueness constraint on
// the referred user. A duplicate claim surfaces as sentinel.ErrConflict.
func (s *PostgresStore) CreateReferral(ctx context.Context, ref *models.Referral) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO affiliate_referrals (code, referrer_id, referred_id) VALUES ($1, $2, $3) RETURNING id`,
		ref.Code, ref.ReferrerID, ref.ReferredID,
	).Scan(&ref.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create referral: %w", err)
	}
	return nil
}

func scanCode(row *sql.Row) (*models.AffiliateCode, error) {
	var code models.AffiliateCode
	err := row.Scan(&code.Code, &code.OwnerID, &code.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan affiliate code: %w", err)
	}
	return &code, nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
