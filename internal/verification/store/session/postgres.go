package session

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"verigate/internal/verification/models"
	"verigate/pkg/platform/sentinel"
)

// PostgresStore persists verification sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, user_id, session_id, provider_session_id, status, error_message, metadata, completed_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, sess *models.Session) error {
	query := `
		INSERT INTO verification_sessions (user_id, session_id, provider_session_id, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		sess.UserID, sess.SessionID, sess.ProviderSessionID, sess.Status, nullJSON(sess.Metadata), sess.CreatedAt,
	).Scan(&sess.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindBySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, sentinel.ErrNotFound
	}
	query := `SELECT ` + sessionColumns + ` FROM verification_sessions WHERE session_id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, sessionID))
}

func (s *PostgresStore) FindByProviderSessionID(ctx context.Context, providerSessionID string) (*models.Session, error) {
	if providerSessionID == "" {
		return nil, sentinel.ErrNotFound
	}
	query := `SELECT ` + sessionColumns + ` FROM verification_sessions WHERE provider_session_id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, providerSessionID))
}

// Update applies one reconciliation write. The write-once rule for
// provider_session_id and the never-cleared rule for error_message are
// enforced in SQL so concurrent deliveries cannot regress either field.
func (s *PostgresStore) Update(ctx context.Context, id int64, upd models.SessionUpdate) error {
	query := `
		UPDATE verification_sessions SET
			status = $2,
			metadata = $3,
			updated_at = $4,
			completed_at = COALESCE($5, completed_at),
			error_message = CASE WHEN $6 <> '' THEN $6 ELSE error_message END,
			provider_session_id = CASE WHEN provider_session_id = '' THEN $7 ELSE provider_session_id END
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		id, upd.Status, nullJSON(upd.Metadata), upd.UpdatedAt, upd.CompletedAt, upd.ErrorMessage, upd.ProviderSessionID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) scanOne(row *sql.Row) (*models.Session, error) {
	var sess models.Session
	var metadata []byte
	var completedAt sql.NullTime
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.SessionID, &sess.ProviderSessionID,
		&sess.Status, &sess.ErrorMessage, &metadata, &completedAt,
		&sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.Metadata = metadata
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	return &sess, nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
