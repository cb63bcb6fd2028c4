package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Admitter is consulted once before a batch run issues any request.
type Admitter interface {
	Admit(ctx context.Context, sessionID string) error
}

// UnlimitedAdmission admits every run.
type UnlimitedAdmission struct{}

func (UnlimitedAdmission) Admit(ctx context.Context, _ string) error {
	return ctx.Err()
}

// QuotaService caps the number of batch runs a session may start per UTC day,
// counting them in the usage table.
type QuotaService struct {
	db    *sql.DB
	limit int
	now   func() time.Time
}

func NewQuotaService(db *sql.DB, limit int) *QuotaService {
	return &QuotaService{db: db, limit: limit, now: time.Now}
}

// Limit returns the configured cap; zero or less means unlimited.
func (s *QuotaService) Limit() int {
	return s.limit
}

// Admit records one query for the session or returns ErrQuotaExceeded when
// the cap is already reached.
func (s *QuotaService) Admit(ctx context.Context, sessionID string) (err error) {
	if s.limit <= 0 {
		return nil
	}
	now := s.now().UTC()
	day := now.Format(time.DateOnly)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	used, err := queriesUsed(ctx, tx, sessionID, day)
	if err != nil {
		return err
	}
	if used >= s.limit {
		return fmt.Errorf("%w: %d of %d queries used today", ErrQuotaExceeded, used, s.limit)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO usage (session_id, day, queries, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(session_id, day) DO UPDATE SET queries = queries + 1, updated_at = excluded.updated_at;
	`, sessionID, day, now); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit usage: %w", err)
	}
	return nil
}

// Remaining returns how many runs the session may still start today, or -1
// when the gate is disabled.
func (s *QuotaService) Remaining(ctx context.Context, sessionID string) (int, error) {
	if s.limit <= 0 {
		return -1, nil
	}
	used, err := queriesUsed(ctx, s.db, sessionID, s.now().UTC().Format(time.DateOnly))
	if err != nil {
		return 0, err
	}
	return max(s.limit-used, 0), nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queriesUsed(ctx context.Context, q queryRower, sessionID, day string) (int, error) {
	var used int
	err := q.QueryRowContext(ctx, `
		SELECT queries FROM usage WHERE session_id = ? AND day = ?;
	`, sessionID, day).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load usage: %w", err)
	}
	return used, nil
}
