package account

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"verigate/internal/verification/models"
	"verigate/pkg/platform/sentinel"
)

// PostgresStore persists accounts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed account store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetKYCStatus(ctx context.Context, userID uuid.UUID) (models.KYCStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT kyc_status FROM accounts WHERE user_id = $1`, userID,
	).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.KYCStatusUnset, sentinel.ErrNotFound
		}
		return models.KYCStatusUnset, fmt.Errorf("get kyc status: %w", err)
	}
	return models.KYCStatus(status), nil
}

// UpsertKYCStatus creates the account row on first write and updates it in
// place afterwards. Safe under concurrent duplicate webhook deliveries.
func (s *PostgresStore) UpsertKYCStatus(ctx context.Context, userID uuid.UUID, status models.KYCStatus) error {
	query := `
		INSERT INTO accounts (user_id, kyc_status)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			kyc_status = EXCLUDED.kyc_status,
			updated_at = now()
	`
	if _, err := s.db.ExecContext(ctx, query, userID, string(status)); err != nil {
		return fmt.Errorf("upsert kyc status: %w", err)
	}
	return nil
}
