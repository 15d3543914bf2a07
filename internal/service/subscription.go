package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/engine"
	"github.com/tradebot/backoffice/internal/oracle"
)

// SubscriptionService runs the subscription lifecycle and the user dashboard.
type SubscriptionService struct {
	users       UserStore
	plans       PlanStore
	subs        SubscriptionStore
	withdrawals WithdrawalStore
	oracle      BalanceOracle
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(users UserStore, plans PlanStore, subs SubscriptionStore, withdrawals WithdrawalStore, oracle BalanceOracle, logger zerolog.Logger) *SubscriptionService {
	return &SubscriptionService{
		users:       users,
		plans:       plans,
		subs:        subs,
		withdrawals: withdrawals,
		oracle:      oracle,
		logger:      logger.With().Str("component", "subscription").Logger(),
		now:         time.Now,
	}
}

// walletOf returns the user's wallet address, which every balance-driven
// operation needs.
func walletOf(ctx context.Context, users UserStore, userID string) (string, error) {
	user, err := users.FindByID(ctx, userID)
	if err != nil {
		return "", domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return "", domain.ErrNotFound("user not found")
	}
	if user.WalletAddress == "" {
		return "", domain.ErrValidation("set a wallet address first")
	}
	return user.WalletAddress, nil
}

// accrueLocked brings sub up to now. It must run inside SubscriptionStore.Update.
func accrueLocked(ctx context.Context, plans PlanStore, sub *domain.Subscription, balance decimal.Decimal, now time.Time) (*domain.Plan, engine.AccrualResult, error) {
	if !sub.Subscribed() {
		res, err := engine.Advance(sub, nil, balance, now)
		return nil, res, err
	}
	plan, err := plans.FindByID(ctx, *sub.PlanID)
	if err != nil {
		return nil, engine.AccrualResult{}, domain.ErrInternal("failed to load plan", err)
	}
	if plan == nil {
		return nil, engine.AccrualResult{}, domain.ErrInconsistency(fmt.Sprintf("subscription of %s references unknown plan %s", sub.UserID, *sub.PlanID))
	}
	res, err := engine.Advance(sub, plan, balance, now)
	return plan, res, err
}

// availableProfit is the part of fakeProfits not yet claimed by pending or
// approved withdrawals of the current subscription.
func availableProfit(ctx context.Context, withdrawals WithdrawalStore, sub *domain.Subscription) (decimal.Decimal, error) {
	if !sub.Subscribed() {
		return decimal.Zero, nil
	}
	committed, err := withdrawals.Committed(ctx, sub.UserID, *sub.StartDate)
	if err != nil {
		return decimal.Zero, domain.ErrInternal("failed to sum withdrawals", err)
	}
	avail := sub.FakeProfits.Sub(committed)
	if avail.IsNegative() {
		return decimal.Zero, nil
	}
	return avail, nil
}

func (s *SubscriptionService) findPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find plan", err)
	}
	if plan == nil {
		return nil, domain.ErrNotFound("plan not found")
	}
	return plan, nil
}

// Subscribe starts the user's bot on planID. The balance is read live.
func (s *SubscriptionService) Subscribe(ctx context.Context, userID, planID string) (*domain.Subscription, error) {
	wallet, err := walletOf(ctx, s.users, userID)
	if err != nil {
		return nil, err
	}
	plan, err := s.findPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	balance, err := s.oracle.LiveBalance(ctx, wallet)
	if err != nil {
		return nil, err
	}

	sub, err := s.subs.Update(ctx, userID, func(sub *domain.Subscription) error {
		return engine.Subscribe(sub, plan, balance, s.now())
	})
	if err != nil {
		return nil, s.wrap(err, "failed to subscribe")
	}

	s.logger.Info().Str("user_id", userID).Str("plan_id", plan.ID).Msg("subscribed")
	return sub, nil
}

// ChangePlan moves the user to planID. Profits and the weekly ledger of the
// old plan are discarded.
func (s *SubscriptionService) ChangePlan(ctx context.Context, userID, planID string) (*domain.Subscription, error) {
	wallet, err := walletOf(ctx, s.users, userID)
	if err != nil {
		return nil, err
	}
	next, err := s.findPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	balance, err := s.oracle.LiveBalance(ctx, wallet)
	if err != nil {
		return nil, err
	}

	var from string
	sub, err := s.subs.Update(ctx, userID, func(sub *domain.Subscription) error {
		var current *domain.Plan
		if sub.Subscribed() {
			from = *sub.PlanID
			p, err := s.plans.FindByID(ctx, from)
			if err != nil {
				return domain.ErrInternal("failed to load current plan", err)
			}
			if p == nil {
				return domain.ErrInconsistency(fmt.Sprintf("user %s is subscribed to missing plan %s", userID, from))
			}
			current = p
		}
		return engine.ChangePlan(sub, current, next, balance, s.now())
	})
	if err != nil {
		return nil, s.wrap(err, "failed to change plan")
	}

	s.logger.Info().Str("user_id", userID).Str("from", from).Str("to", next.ID).Msg("plan changed")
	return sub, nil
}

// Dashboard settles accrual up to now and returns the user's view of the bot.
// A degraded balance still settles accrual, and the response is flagged.
func (s *SubscriptionService) Dashboard(ctx context.Context, userID string) (*domain.Dashboard, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}

	current, err := s.subs.FindByUserID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load subscription", err)
	}
	if current == nil {
		current = &domain.Subscription{UserID: userID, WeeklyDeposits: []domain.WeeklyDeposit{}}
	}

	dash := &domain.Dashboard{
		Subscription:  current,
		WalletAddress: user.WalletAddress,
	}

	if !current.Subscribed() {
		if user.WalletAddress != "" {
			reading, err := s.oracle.Balance(ctx, user.WalletAddress)
			if err != nil {
				s.logger.Debug().Err(err).Str("user_id", userID).Msg("balance unavailable for unsubscribed user")
				dash.Degraded = true
			} else {
				s.fillBalance(dash, reading)
			}
		}
		return dash, nil
	}

	if user.WalletAddress == "" {
		return nil, domain.ErrInconsistency(fmt.Sprintf("subscribed user %s has no wallet", userID))
	}
	reading, err := s.oracle.Balance(ctx, user.WalletAddress)
	if err != nil {
		return nil, err
	}
	s.fillBalance(dash, reading)

	now := s.now()
	var plan *domain.Plan
	sub, err := s.subs.Update(ctx, userID, func(sub *domain.Subscription) error {
		p, _, err := accrueLocked(ctx, s.plans, sub, reading.Amount, now)
		plan = p
		return err
	})
	if err != nil {
		return nil, s.wrap(err, "failed to settle accrual")
	}

	dash.Subscription = sub
	dash.Plan = plan
	if plan != nil {
		dash.Status = engine.Status(sub, plan, reading.Amount, now)
		elig := engine.CanWithdraw(reading.Amount, sub, plan, now)
		dash.Withdrawal = &elig
	}
	if dash.AvailableProfit, err = availableProfit(ctx, s.withdrawals, sub); err != nil {
		return nil, err
	}
	return dash, nil
}

func (s *SubscriptionService) fillBalance(dash *domain.Dashboard, r oracle.Reading) {
	dash.Balance = r.Amount
	dash.BalanceAt = r.FetchedAt
	dash.Degraded = r.Stale
}

// wrap passes AppErrors through and logs anything else as internal.
func (s *SubscriptionService) wrap(err error, msg string) error {
	if appErr, ok := domain.AsAppError(err); ok {
		if !appErr.Client() {
			s.logger.Error().Err(err).Msg(msg)
		}
		return appErr
	}
	return domain.ErrInternal(msg, err)
}
