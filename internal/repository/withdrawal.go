package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradebot/backoffice/internal/domain"
)

const withdrawalColumns = `id, user_id, plan_id, requested_amount, amount, penalty_amount,
	penalty_percentage, tenure_week, status, note, decided_by, decided_at, created_at`

// WithdrawalRepository handles database operations for withdrawals.
type WithdrawalRepository struct {
	db *pgxpool.Pool
}

// NewWithdrawalRepository creates a new WithdrawalRepository.
func NewWithdrawalRepository(db *pgxpool.Pool) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	err := row.Scan(&w.ID, &w.UserID, &w.PlanID, &w.RequestedAmount, &w.Amount, &w.PenaltyAmount,
		&w.PenaltyPercentage, &w.TenureWeek, &w.Status, &w.Note, &w.DecidedBy, &w.DecidedAt, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Create inserts a withdrawal.
func (r *WithdrawalRepository) Create(ctx context.Context, w *domain.Withdrawal) error {
	return insertWithdrawal(ctx, r.db, w)
}

func insertWithdrawal(ctx context.Context, db execer, w *domain.Withdrawal) error {
	_, err := db.Exec(ctx, `
		INSERT INTO withdrawals (`+withdrawalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, w.ID, w.UserID, w.PlanID, w.RequestedAmount, w.Amount, w.PenaltyAmount,
		w.PenaltyPercentage, int(w.TenureWeek), w.Status, w.Note, w.DecidedBy, w.DecidedAt, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}
	return nil
}

// FindByID returns a withdrawal by ID.
func (r *WithdrawalRepository) FindByID(ctx context.Context, id string) (*domain.Withdrawal, error) {
	w, err := scanWithdrawal(r.db.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find withdrawal: %w", err)
	}
	return w, nil
}

// List returns withdrawals newest first. Empty userID or status means no
// filter on that column.
func (r *WithdrawalRepository) List(ctx context.Context, userID, status string) ([]*domain.Withdrawal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer rows.Close()

	list := []*domain.Withdrawal{}
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

// Committed sums the requested amounts of a user's pending and approved
// withdrawals since since.
func (r *WithdrawalRepository) Committed(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.db.QueryRow(ctx, `
		SELECT SUM(requested_amount) FROM withdrawals
		WHERE user_id = $1 AND status IN ('pending', 'approved') AND created_at >= $2
	`, userID, since).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum withdrawals: %w", err)
	}
	return sum.Decimal, nil
}

// Decide moves a pending withdrawal to status. It returns nil, nil when the
// withdrawal does not exist or is no longer pending.
func (r *WithdrawalRepository) Decide(ctx context.Context, id, status, adminID, note string, at time.Time) (*domain.Withdrawal, error) {
	w, err := scanWithdrawal(r.db.QueryRow(ctx, `
		UPDATE withdrawals SET status = $2, decided_by = $3, decided_at = $4, note = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING `+withdrawalColumns, id, status, adminID, at, note))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decide withdrawal: %w", err)
	}
	return w, nil
}

// PendingStats returns the count and requested total of pending withdrawals.
func (r *WithdrawalRepository) PendingStats(ctx context.Context) (int, decimal.Decimal, error) {
	var (
		n   int
		sum decimal.NullDecimal
	)
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), SUM(requested_amount) FROM withdrawals WHERE status = 'pending'
	`).Scan(&n, &sum)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to aggregate withdrawals: %w", err)
	}
	return n, sum.Decimal, nil
}
