package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradebot/backoffice/internal/domain"
)

// PlanService manages the plan catalogue.
type PlanService struct {
	plans  PlanStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewPlanService creates a new PlanService.
func NewPlanService(plans PlanStore, logger zerolog.Logger) *PlanService {
	return &PlanService{
		plans:  plans,
		logger: logger.With().Str("component", "plans").Logger(),
		now:    time.Now,
	}
}

// SeedDefaults installs the default catalogue into an empty database.
func (s *PlanService) SeedDefaults(ctx context.Context) error {
	defaults := domain.DefaultPlans()
	now := s.now()
	for i := range defaults {
		defaults[i].CreatedAt = now
	}
	n, err := s.plans.SeedDefaults(ctx, defaults)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info().Int("count", n).Msg("default plans seeded")
	}
	return nil
}

// List returns plans on sale, or every version when includeArchived is set.
func (s *PlanService) List(ctx context.Context, includeArchived bool) ([]*domain.Plan, error) {
	plans, err := s.plans.List(ctx, includeArchived)
	if err != nil {
		return nil, domain.ErrInternal("failed to list plans", err)
	}
	return plans, nil
}

// Get returns a plan by ID.
func (s *PlanService) Get(ctx context.Context, id string) (*domain.Plan, error) {
	p, err := s.plans.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find plan", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("plan not found")
	}
	return p, nil
}

// Create adds a new plan family at version 1.
func (s *PlanService) Create(ctx context.Context, req *domain.PlanRequest) (*domain.Plan, error) {
	p := req.ToPlan(domain.NewPlanFamily(), s.now())
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.plans.Create(ctx, &p); err != nil {
		return nil, domain.ErrInternal("failed to create plan", err)
	}
	s.logger.Info().Str("plan_id", p.ID).Str("name", p.Name).Msg("plan created")
	return &p, nil
}

// Revise publishes a new version of a live plan and archives the old one.
// Subscribers of the old version keep its terms.
func (s *PlanService) Revise(ctx context.Context, id string, req *domain.PlanRequest) (*domain.Plan, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Archived {
		return nil, domain.ErrIneligible("only the live version of a plan can be revised")
	}

	next := current.Revise(*req, s.now())
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := s.plans.Revise(ctx, current.ID, &next); err != nil {
		if _, ok := domain.AsAppError(err); ok {
			return nil, err
		}
		return nil, domain.ErrInternal("failed to revise plan", err)
	}
	s.logger.Info().Str("from", current.ID).Str("to", next.ID).Msg("plan revised")
	return &next, nil
}

// Archive takes a plan off sale.
func (s *PlanService) Archive(ctx context.Context, id string) error {
	if err := s.plans.Archive(ctx, id); err != nil {
		if _, ok := domain.AsAppError(err); ok {
			return err
		}
		return domain.ErrInternal("failed to archive plan", err)
	}
	s.logger.Info().Str("plan_id", id).Msg("plan archived")
	return nil
}
