package delegation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Resolver finds the stand-in approver of a delegator on a given day.
// When windows overlap, the most recently created delegation wins and
// ties on creation time go to the highest id.
type Resolver struct {
	repo   port.DelegationRepository
	logger Logger
}

// NewResolver creates a delegation resolver
func NewResolver(repo port.DelegationRepository, logger Logger) *Resolver {
	return &Resolver{repo: repo, logger: logger}
}

// ActiveDelegateFor returns the delegate user id, or "" when no delegation covers day
func (r *Resolver) ActiveDelegateFor(ctx context.Context, delegatorUserID string, day time.Time) (string, error) {
	d, err := r.ActiveDelegation(ctx, delegatorUserID, day)
	if err != nil || d == nil {
		return "", err
	}
	return d.DelegateUserID, nil
}

// ActiveDelegation returns the winning delegation covering day, or nil
func (r *Resolver) ActiveDelegation(ctx context.Context, delegatorUserID string, day time.Time) (*entity.Delegation, error) {
	if delegatorUserID == "" {
		return nil, nil
	}

	rows, err := r.repo.ListCovering(ctx, delegatorUserID, day)
	if err != nil {
		return nil, fmt.Errorf("list delegations for %s: %w", delegatorUserID, err)
	}

	covering := make([]*entity.Delegation, 0, len(rows))
	for _, d := range rows {
		if d != nil && d.Covers(day) {
			covering = append(covering, d)
		}
	}
	if len(covering) == 0 {
		return nil, nil
	}

	sort.SliceStable(covering, func(i, j int) bool {
		if !covering[i].CreatedAt.Equal(covering[j].CreatedAt) {
			return covering[i].CreatedAt.After(covering[j].CreatedAt)
		}
		return covering[i].ID > covering[j].ID
	})

	winner := covering[0]
	if len(covering) > 1 && r.logger != nil {
		r.logger.Info("Overlapping delegations, most recent wins",
			"delegator_user_id", delegatorUserID,
			"day", day.Format(entity.DateLayout),
			"candidates", len(covering),
			"delegation_id", winner.ID,
			"delegate_user_id", winner.DelegateUserID,
		)
	}
	return winner, nil
}
