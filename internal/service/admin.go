package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tradebot/backoffice/internal/domain"
)

// AdminService aggregates the admin dashboard.
type AdminService struct {
	users       UserStore
	subs        SubscriptionStore
	withdrawals WithdrawalStore
	accrual     *AccrualService
	logger      zerolog.Logger
}

// NewAdminService creates a new AdminService. accrual may be nil.
func NewAdminService(users UserStore, subs SubscriptionStore, withdrawals WithdrawalStore, accrual *AccrualService, logger zerolog.Logger) *AdminService {
	return &AdminService{
		users:       users,
		subs:        subs,
		withdrawals: withdrawals,
		accrual:     accrual,
		logger:      logger.With().Str("component", "admin").Logger(),
	}
}

// Stats returns platform-wide counters.
func (s *AdminService) Stats(ctx context.Context) (*domain.AdminStats, error) {
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to count users", err)
	}
	subStats, err := s.subs.Stats(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to aggregate subscriptions", err)
	}
	pending, pendingAmount, err := s.withdrawals.PendingStats(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to aggregate withdrawals", err)
	}

	stats := &domain.AdminStats{
		TotalUsers:         total,
		SubscribedUsers:    subStats.Subscribed,
		ActiveBots:         subStats.ActiveBots,
		TotalFakeProfits:   subStats.TotalFakeProfits,
		PendingWithdrawals: pending,
		PendingAmount:      pendingAmount,
	}

	if s.accrual != nil {
		last, err := s.accrual.LastReport(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to load last accrual report")
		}
		stats.LastAccrual = last
	}
	return stats, nil
}
