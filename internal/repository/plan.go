package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradebot/backoffice/internal/domain"
)

const planColumns = `id, family, name, version, weekly_required_amount, profit_rate_daily,
	bonus_rate_thresholds, withdrawal_conditions, archived, created_at`

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PlanRepository handles database operations for plans.
type PlanRepository struct {
	db *pgxpool.Pool
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

func scanPlan(row pgx.Row) (*domain.Plan, error) {
	var (
		p             domain.Plan
		bonus, wconds []byte
	)
	err := row.Scan(&p.ID, &p.Family, &p.Name, &p.Version, &p.WeeklyRequiredAmount, &p.ProfitRateDaily,
		&bonus, &wconds, &p.Archived, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(bonus, &p.BonusRateThresholds); err != nil {
		return nil, fmt.Errorf("plan %s: bad bonus thresholds: %w", p.ID, err)
	}
	if err := json.Unmarshal(wconds, &p.WithdrawalConditions); err != nil {
		return nil, fmt.Errorf("plan %s: bad withdrawal conditions: %w", p.ID, err)
	}
	if err := p.Validate(); err != nil {
		return nil, domain.ErrInconsistency(fmt.Sprintf("stored plan %s is invalid: %v", p.ID, err))
	}
	return &p, nil
}

func insertPlan(ctx context.Context, db execer, p *domain.Plan) error {
	bonus, err := json.Marshal(p.BonusRateThresholds)
	if err != nil {
		return fmt.Errorf("failed to encode bonus thresholds: %w", err)
	}
	if p.BonusRateThresholds == nil {
		bonus = []byte("[]")
	}
	wconds, err := json.Marshal(p.WithdrawalConditions)
	if err != nil {
		return fmt.Errorf("failed to encode withdrawal conditions: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO plans (`+planColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.Family, p.Name, p.Version, p.WeeklyRequiredAmount, p.ProfitRateDaily,
		bonus, wconds, p.Archived, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// Create inserts a new plan.
func (r *PlanRepository) Create(ctx context.Context, p *domain.Plan) error {
	return insertPlan(ctx, r.db, p)
}

// FindByID returns a plan by ID, archived or not.
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*domain.Plan, error) {
	p, err := scanPlan(r.db.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	return p, nil
}

// List returns plans ordered by requirement. Archived plans are included only
// when includeArchived is set.
func (r *PlanRepository) List(ctx context.Context, includeArchived bool) ([]*domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans`
	if !includeArchived {
		query += ` WHERE NOT archived`
	}
	query += ` ORDER BY weekly_required_amount, family, version`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := []*domain.Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// Revise archives the live version of a plan and inserts next in one
// transaction. It returns a not-found error if old is no longer live.
func (r *PlanRepository) Revise(ctx context.Context, oldID string, next *domain.Plan) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE plans SET archived = TRUE WHERE id = $1 AND NOT archived`, oldID)
	if err != nil {
		return fmt.Errorf("failed to archive plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("plan not found or already archived")
	}
	if err := insertPlan(ctx, tx, next); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit plan revision: %w", err)
	}
	return nil
}

// Archive withdraws a plan from sale. Existing subscribers are unaffected.
func (r *PlanRepository) Archive(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE plans SET archived = TRUE WHERE id = $1 AND NOT archived`, id)
	if err != nil {
		return fmt.Errorf("failed to archive plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("plan not found or already archived")
	}
	return nil
}

// SeedDefaults inserts plans when the table is empty. It returns how many
// were inserted.
func (r *PlanRepository) SeedDefaults(ctx context.Context, plans []domain.Plan) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM plans`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count plans: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range plans {
		if err := insertPlan(ctx, tx, &plans[i]); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit plan seed: %w", err)
	}
	return len(plans), nil
}
