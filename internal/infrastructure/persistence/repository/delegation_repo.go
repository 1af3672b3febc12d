package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const delegationColumns = `
	id, delegator_user_id, delegate_user_id, valid_from, valid_until,
	created_by, created_at, updated_at`

// DelegationRepository implements port.DelegationRepository.
// Windows are stored as YYYY-MM-DD text so range checks compare lexically.
type DelegationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDelegationRepository creates a new delegation repository
func NewDelegationRepository(db *sql.DB, logger *zap.Logger) port.DelegationRepository {
	return &DelegationRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new delegation
func (r *DelegationRepository) Create(ctx context.Context, d *entity.Delegation) error {
	query := `
		INSERT INTO delegations (
			delegator_user_id, delegate_user_id, valid_from, valid_until,
			created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		d.DelegatorUserID,
		d.DelegateUserID,
		d.ValidFrom.Format(entity.DateLayout),
		d.ValidUntil.Format(entity.DateLayout),
		d.CreatedBy,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create delegation", zap.Error(err))
		return fmt.Errorf("failed to create delegation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	d.ID = id
	return nil
}

// GetByID retrieves a delegation by ID
func (r *DelegationRepository) GetByID(ctx context.Context, id int64) (*entity.Delegation, error) {
	query := `SELECT ` + delegationColumns + ` FROM delegations WHERE id = ?`

	d, err := scanDelegation(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get delegation", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get delegation: %w", err)
	}
	return d, nil
}

// Update replaces the mutable fields of a delegation
func (r *DelegationRepository) Update(ctx context.Context, d *entity.Delegation) error {
	query := `
		UPDATE delegations
		SET delegator_user_id = ?, delegate_user_id = ?, valid_from = ?, valid_until = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		d.DelegatorUserID,
		d.DelegateUserID,
		d.ValidFrom.Format(entity.DateLayout),
		d.ValidUntil.Format(entity.DateLayout),
		d.UpdatedAt,
		d.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update delegation", zap.Int64("id", d.ID), zap.Error(err))
		return fmt.Errorf("failed to update delegation: %w", err)
	}
	return nil
}

// Delete removes a delegation
func (r *DelegationRepository) Delete(ctx context.Context, id int64) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM delegations WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete delegation", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete delegation: %w", err)
	}
	return nil
}

// List returns all delegations, or those of one delegator
func (r *DelegationRepository) List(ctx context.Context, delegatorUserID string) ([]*entity.Delegation, error) {
	query := `SELECT ` + delegationColumns + ` FROM delegations`
	var args []interface{}
	if delegatorUserID != "" {
		query += ` WHERE delegator_user_id = ?`
		args = append(args, delegatorUserID)
	}
	query += ` ORDER BY valid_from ASC, id ASC`

	return r.query(ctx, query, args...)
}

// ListCovering returns the delegator's delegations whose window contains day
func (r *DelegationRepository) ListCovering(ctx context.Context, delegatorUserID string, day time.Time) ([]*entity.Delegation, error) {
	query := `SELECT ` + delegationColumns + `
		FROM delegations
		WHERE delegator_user_id = ? AND valid_from <= ? AND valid_until >= ?
		ORDER BY created_at DESC, id DESC
	`
	key := day.Format(entity.DateLayout)
	return r.query(ctx, query, delegatorUserID, key, key)
}

func (r *DelegationRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Delegation, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list delegations", zap.Error(err))
		return nil, fmt.Errorf("failed to list delegations: %w", err)
	}
	defer rows.Close()

	var out []*entity.Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delegation: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDelegation(row rowScanner) (*entity.Delegation, error) {
	var d entity.Delegation
	var from, until string

	if err := row.Scan(
		&d.ID,
		&d.DelegatorUserID,
		&d.DelegateUserID,
		&from,
		&until,
		&d.CreatedBy,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if d.ValidFrom, err = entity.ParseDate(from); err != nil {
		return nil, err
	}
	if d.ValidUntil, err = entity.ParseDate(until); err != nil {
		return nil, err
	}
	return &d, nil
}

var _ port.DelegationRepository = (*DelegationRepository)(nil)
