package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/engine"
	"github.com/tradebot/backoffice/internal/metrics"
)

// WithdrawalService applies the withdrawal policy and keeps the request log.
type WithdrawalService struct {
	users       UserStore
	plans       PlanStore
	subs        SubscriptionStore
	withdrawals WithdrawalStore
	oracle      BalanceOracle
	logger      zerolog.Logger
	now         func() time.Time
}

// NewWithdrawalService creates a new WithdrawalService.
func NewWithdrawalService(users UserStore, plans PlanStore, subs SubscriptionStore, withdrawals WithdrawalStore, oracle BalanceOracle, logger zerolog.Logger) *WithdrawalService {
	return &WithdrawalService{
		users:       users,
		plans:       plans,
		subs:        subs,
		withdrawals: withdrawals,
		oracle:      oracle,
		logger:      logger.With().Str("component", "withdrawal").Logger(),
		now:         time.Now,
	}
}

// snapshot loads the current subscription and its plan without locking.
func (s *WithdrawalService) snapshot(ctx context.Context, userID string) (*domain.Subscription, *domain.Plan, error) {
	sub, err := s.subs.FindByUserID(ctx, userID)
	if err != nil {
		return nil, nil, domain.ErrInternal("failed to load subscription", err)
	}
	if sub == nil || !sub.Subscribed() {
		return sub, nil, nil
	}
	plan, err := s.plans.FindByID(ctx, *sub.PlanID)
	if err != nil {
		return nil, nil, domain.ErrInternal("failed to load plan", err)
	}
	return sub, plan, nil
}

// Eligibility reports whether the user may withdraw right now.
func (s *WithdrawalService) Eligibility(ctx context.Context, userID string) (domain.Eligibility, error) {
	sub, plan, err := s.snapshot(ctx, userID)
	if err != nil {
		return domain.Eligibility{}, err
	}
	if plan == nil {
		return engine.CanWithdraw(decimal.Zero, sub, nil, s.now()), nil
	}
	wallet, err := walletOf(ctx, s.users, userID)
	if err != nil {
		return domain.Eligibility{}, err
	}
	reading, err := s.oracle.Balance(ctx, wallet)
	if err != nil {
		return domain.Eligibility{}, err
	}
	return engine.CanWithdraw(reading.Amount, sub, plan, s.now()), nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrValidation("amount must be greater than zero")
	}
	if amount.Exponent() < -engine.USDTPlaces {
		return domain.ErrValidation("amount has more than 6 decimal places")
	}
	return nil
}

// Quote prices a withdrawal without recording anything.
func (s *WithdrawalService) Quote(ctx context.Context, userID string, amount decimal.Decimal) (*domain.WithdrawalQuote, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	sub, plan, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrValidation("no active subscription")
	}
	wallet, err := walletOf(ctx, s.users, userID)
	if err != nil {
		return nil, err
	}
	reading, err := s.oracle.Balance(ctx, wallet)
	if err != nil {
		return nil, err
	}
	q, err := engine.CalculateWithdrawalAmount(sub, reading.Amount, plan, amount, s.now())
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Request records a pending withdrawal. Accrual is settled first and the
// user's subscription row stays locked while the available profit is checked
// and the request is written, so concurrent requests cannot overdraw.
func (s *WithdrawalService) Request(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Withdrawal, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	wallet, err := walletOf(ctx, s.users, userID)
	if err != nil {
		return nil, err
	}
	balance, err := s.oracle.LiveBalance(ctx, wallet)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var w *domain.Withdrawal
	_, err = s.subs.UpdateWithWithdrawal(ctx, userID, func(sub *domain.Subscription) (*domain.Withdrawal, error) {
		plan, _, err := accrueLocked(ctx, s.plans, sub, balance, now)
		if err != nil {
			return nil, err
		}
		if plan == nil {
			return nil, domain.ErrValidation("no active subscription")
		}

		if elig := engine.CanWithdraw(balance, sub, plan, now); !elig.Allowed {
			return nil, domain.ErrIneligible(elig.Reason)
		}

		avail, err := availableProfit(ctx, s.withdrawals, sub)
		if err != nil {
			return nil, err
		}
		if amount.GreaterThan(avail) {
			return nil, domain.ErrIneligible("amount exceeds available profit of " + avail.StringFixed(engine.USDTPlaces))
		}

		q, err := engine.CalculateWithdrawalAmount(sub, balance, plan, amount, now)
		if err != nil {
			return nil, err
		}
		if !q.Amount.IsPositive() {
			return nil, domain.ErrIneligible("nothing would be paid out after the early-withdrawal penalty")
		}

		w = &domain.Withdrawal{
			ID:                domain.NewWithdrawalID(),
			UserID:            userID,
			PlanID:            plan.ID,
			RequestedAmount:   q.RequestedAmount,
			Amount:            q.Amount,
			PenaltyAmount:     q.PenaltyAmount,
			PenaltyPercentage: q.PenaltyPercentage,
			TenureWeek:        q.TenureWeek,
			Status:            domain.WithdrawalPending,
			CreatedAt:         now,
		}
		return w, nil
	})
	if err != nil {
		if appErr, ok := domain.AsAppError(err); ok {
			if !appErr.Client() {
				s.logger.Error().Err(err).Str("user_id", userID).Msg("withdrawal request failed")
			}
			return nil, appErr
		}
		return nil, domain.ErrInternal("failed to request withdrawal", err)
	}

	metrics.RecordWithdrawal(domain.WithdrawalPending)
	s.logger.Info().Str("user_id", userID).Str("withdrawal_id", w.ID).
		Str("requested", w.RequestedAmount.String()).Str("penalty", w.PenaltyAmount.String()).
		Msg("withdrawal requested")
	return w, nil
}

// List returns the user's withdrawals, newest first.
func (s *WithdrawalService) List(ctx context.Context, userID string) ([]*domain.Withdrawal, error) {
	list, err := s.withdrawals.List(ctx, userID, "")
	if err != nil {
		return nil, domain.ErrInternal("failed to list withdrawals", err)
	}
	return list, nil
}

// ListAll returns every withdrawal, optionally filtered by status (admin).
func (s *WithdrawalService) ListAll(ctx context.Context, status string) ([]*domain.Withdrawal, error) {
	switch status {
	case "", domain.WithdrawalPending, domain.WithdrawalApproved, domain.WithdrawalRejected:
	default:
		return nil, domain.ErrBadRequest("unknown status filter")
	}
	list, err := s.withdrawals.List(ctx, "", status)
	if err != nil {
		return nil, domain.ErrInternal("failed to list withdrawals", err)
	}
	return list, nil
}

// Approve marks a pending withdrawal approved (admin).
func (s *WithdrawalService) Approve(ctx context.Context, id, adminID, note string) (*domain.Withdrawal, error) {
	return s.decide(ctx, id, domain.WithdrawalApproved, adminID, note)
}

// Reject marks a pending withdrawal rejected, releasing its amount (admin).
func (s *WithdrawalService) Reject(ctx context.Context, id, adminID, note string) (*domain.Withdrawal, error) {
	return s.decide(ctx, id, domain.WithdrawalRejected, adminID, note)
}

func (s *WithdrawalService) decide(ctx context.Context, id, status, adminID, note string) (*domain.Withdrawal, error) {
	w, err := s.withdrawals.Decide(ctx, id, status, adminID, note, s.now())
	if err != nil {
		return nil, domain.ErrInternal("failed to update withdrawal", err)
	}
	if w == nil {
		existing, err := s.withdrawals.FindByID(ctx, id)
		if err != nil {
			return nil, domain.ErrInternal("failed to find withdrawal", err)
		}
		if existing == nil {
			return nil, domain.ErrNotFound("withdrawal not found")
		}
		return nil, domain.ErrIneligible("withdrawal is already " + existing.Status)
	}

	metrics.RecordWithdrawal(status)
	s.logger.Info().Str("withdrawal_id", id).Str("status", status).Str("admin_id", adminID).Msg("withdrawal decided")
	return w, nil
}
