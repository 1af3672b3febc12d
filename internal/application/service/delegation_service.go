package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/invoice-workflow/internal/application/delegation"
	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
)

// DelegationInput describes a delegation to create or replace
type DelegationInput struct {
	DelegatorUserID string
	DelegateUserID  string
	ValidFrom       time.Time
	ValidUntil      time.Time
}

// DelegationService administers delegations. Overlapping windows are
// accepted; the resolver decides which one is active.
type DelegationService struct {
	repo     port.DelegationRepository
	users    port.UserRepository
	resolver *delegation.Resolver
	logger   Logger
	clock    func() time.Time
}

// NewDelegationService creates a new DelegationService
func NewDelegationService(repo port.DelegationRepository, users port.UserRepository, resolver *delegation.Resolver, logger Logger) *DelegationService {
	return &DelegationService{
		repo:     repo,
		users:    users,
		resolver: resolver,
		logger:   logger,
		clock:    time.Now,
	}
}

// List returns delegations, optionally for one delegator
func (s *DelegationService) List(ctx context.Context, actor entity.Actor, delegatorUserID string) ([]*entity.Delegation, error) {
	if !actor.IsAdmin() {
		return nil, workflow.PermissionDenied("Only administrators can manage delegations")
	}
	rows, err := s.repo.List(ctx, delegatorUserID)
	if err != nil {
		return nil, fmt.Errorf("list delegations: %w", err)
	}
	if rows == nil {
		rows = []*entity.Delegation{}
	}
	return rows, nil
}

// Create stores a new delegation
func (s *DelegationService) Create(ctx context.Context, actor entity.Actor, in DelegationInput) (*entity.Delegation, error) {
	if !actor.IsAdmin() {
		return nil, workflow.PermissionDenied("Only administrators can manage delegations")
	}
	if err := s.validate(ctx, &in); err != nil {
		return nil, err
	}

	now := s.clock()
	d := &entity.Delegation{
		DelegatorUserID: in.DelegatorUserID,
		DelegateUserID:  in.DelegateUserID,
		ValidFrom:       in.ValidFrom,
		ValidUntil:      in.ValidUntil,
		CreatedBy:       actor.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create delegation: %w", err)
	}

	s.logger.Info("Delegation created",
		"delegation_id", d.ID,
		"delegator_user_id", d.DelegatorUserID,
		"delegate_user_id", d.DelegateUserID,
		"valid_from", d.ValidFrom.Format(entity.DateLayout),
		"valid_until", d.ValidUntil.Format(entity.DateLayout),
	)
	s.warnOverlaps(ctx, d)
	return d, nil
}

// Update replaces the fields of an existing delegation
func (s *DelegationService) Update(ctx context.Context, actor entity.Actor, id int64, in DelegationInput) (*entity.Delegation, error) {
	if !actor.IsAdmin() {
		return nil, workflow.PermissionDenied("Only administrators can manage delegations")
	}
	existing, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, &in); err != nil {
		return nil, err
	}

	existing.DelegatorUserID = in.DelegatorUserID
	existing.DelegateUserID = in.DelegateUserID
	existing.ValidFrom = in.ValidFrom
	existing.ValidUntil = in.ValidUntil
	existing.UpdatedAt = s.clock()

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update delegation: %w", err)
	}
	s.logger.Info("Delegation updated", "delegation_id", id, "actor_user_id", actor.ID)
	s.warnOverlaps(ctx, existing)
	return existing, nil
}

// Delete removes a delegation
func (s *DelegationService) Delete(ctx context.Context, actor entity.Actor, id int64) error {
	if !actor.IsAdmin() {
		return workflow.PermissionDenied("Only administrators can manage delegations")
	}
	if _, err := s.get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete delegation: %w", err)
	}
	s.logger.Info("Delegation deleted", "delegation_id", id, "actor_user_id", actor.ID)
	return nil
}

// Active returns the delegation in force for delegator on day, or nil
func (s *DelegationService) Active(ctx context.Context, delegatorUserID string, day time.Time) (*entity.Delegation, error) {
	if strings.TrimSpace(delegatorUserID) == "" {
		return nil, workflow.Validation("delegator is required")
	}
	return s.resolver.ActiveDelegation(ctx, delegatorUserID, day)
}

func (s *DelegationService) get(ctx context.Context, id int64) (*entity.Delegation, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get delegation: %w", err)
	}
	if d == nil {
		return nil, workflow.NotFound(fmt.Sprintf("Delegation %d not found", id))
	}
	return d, nil
}

func (s *DelegationService) validate(ctx context.Context, in *DelegationInput) error {
	in.DelegatorUserID = strings.TrimSpace(in.DelegatorUserID)
	in.DelegateUserID = strings.TrimSpace(in.DelegateUserID)

	if in.DelegatorUserID == "" || in.DelegateUserID == "" {
		return workflow.Validation("delegator and delegate are required")
	}
	if in.DelegatorUserID == in.DelegateUserID {
		return workflow.Validation("A user cannot delegate to themselves")
	}
	if in.ValidFrom.IsZero() || in.ValidUntil.IsZero() {
		return workflow.Validation("valid_from and valid_until are required")
	}
	if in.ValidFrom.Format(entity.DateLayout) > in.ValidUntil.Format(entity.DateLayout) {
		return workflow.Validation("valid_from must not be after valid_until")
	}

	for _, id := range []string{in.DelegatorUserID, in.DelegateUserID} {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get user %s: %w", id, err)
		}
		if u == nil {
			return workflow.Validation("Unknown user: " + id)
		}
		if u.Role == entity.RoleViewer && id == in.DelegateUserID {
			return workflow.Validation("A viewer cannot act as delegate")
		}
	}
	return nil
}

func (s *DelegationService) warnOverlaps(ctx context.Context, d *entity.Delegation) {
	others, err := s.repo.List(ctx, d.DelegatorUserID)
	if err != nil {
		s.logger.Error("Failed to check delegation overlaps", "delegation_id", d.ID, "error", err)
		return
	}
	for _, o := range others {
		if o.ID != d.ID && o.Overlaps(d) {
			s.logger.Info("Overlapping delegation accepted, most recently created wins",
				"delegation_id", d.ID,
				"overlaps_with", o.ID,
				"delegator_user_id", d.DelegatorUserID,
			)
		}
	}
}
