package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/dotrep/payment-gateway/internal/models"
)

// BillingSessionRepository persists billing sessions in PostgreSQL. Mutate
// serializes concurrent access per session with a row lock.
type BillingSessionRepository struct {
	db *sql.DB
}

func NewBillingSessionRepository(db *sql.DB) *BillingSessionRepository {
	return &BillingSessionRepository{db: db}
}

func (r *BillingSessionRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS billing_sessions (
			session_id VARCHAR(255) PRIMARY KEY,
			payer VARCHAR(255) NOT NULL,
			status VARCHAR(50) NOT NULL,
			calls JSONB NOT NULL DEFAULT '[]',
			total_amount TEXT NOT NULL DEFAULT '0',
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			last_billed_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_billing_sessions_payer ON billing_sessions(payer)`,
		`CREATE INDEX IF NOT EXISTS idx_billing_sessions_status ON billing_sessions(status)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (r *BillingSessionRepository) Create(ctx context.Context, session *models.BillingSession) error {
	calls, err := json.Marshal(session.Calls)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO billing_sessions (session_id, payer, status, calls, total_amount, created_at, expires_at, last_billed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, session.SessionID, session.Payer, session.Status, calls,
		session.TotalAmountString(), session.CreatedAt, session.ExpiresAt, session.LastBilledAt)
	return err
}

func (r *BillingSessionRepository) Get(ctx context.Context, sessionID string) (*models.BillingSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT session_id, payer, status, calls, total_amount, created_at, expires_at, last_billed_at
		FROM billing_sessions WHERE session_id = $1
	`, sessionID)
	return scanSession(row)
}

// Mutate loads the session under FOR UPDATE, applies fn, and writes the
// result back inside the same transaction.
func (r *BillingSessionRepository) Mutate(ctx context.Context, sessionID string, fn func(*models.BillingSession) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT session_id, payer, status, calls, total_amount, created_at, expires_at, last_billed_at
		FROM billing_sessions WHERE session_id = $1 FOR UPDATE
	`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		return err
	}

	fnErr := fn(session)

	// The callback may have transitioned the session even when it returns
	// an error (an expiry discovered mid-call), so the row is written back
	// either way.
	calls, err := json.Marshal(session.Calls)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE billing_sessions
		SET status = $1, calls = $2, total_amount = $3, last_billed_at = $4
		WHERE session_id = $5
	`, session.Status, calls, session.TotalAmountString(), session.LastBilledAt, sessionID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return fnErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.BillingSession, error) {
	var session models.BillingSession
	var calls []byte
	var total string
	err := row.Scan(&session.SessionID, &session.Payer, &session.Status, &calls,
		&total, &session.CreatedAt, &session.ExpiresAt, &session.LastBilledAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found")
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(calls, &session.Calls); err != nil {
		return nil, err
	}
	amount, ok := new(big.Rat).SetString(total)
	if !ok {
		return nil, fmt.Errorf("session %s has malformed total %q", session.SessionID, total)
	}
	session.TotalAmount = amount
	return &session, nil
}
