package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"boongle/internal/domain"
	"boongle/internal/infra"
	"boongle/internal/sqlinline"
)

// ProfileRepositoryPG implements domain.ProfileStore backed by PostgreSQL.
type ProfileRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewProfileRepository creates a new ProfileRepositoryPG.
func NewProfileRepository(sql infra.SQLExecutor) *ProfileRepositoryPG {
	return &ProfileRepositoryPG{sql: sql}
}

// Fetch loads the profile row for userID.
func (r *ProfileRepositoryPG) Fetch(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := scanProfile(r.sql.QueryRow(ctx, sqlinline.QSelectProfileByID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, &domain.StoreError{Op: "fetch", Err: err}
	}
	return p, nil
}

// Update writes the non-nil patch fields and bumps the row version. When the
// guarded update matches no row, a version probe tells a missing row apart
// from a lost race.
func (r *ProfileRepositoryPG) Update(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.Profile, error) {
	var plan *string
	if patch.ActivePlan != nil {
		s := string(*patch.ActivePlan)
		plan = &s
	}
	row := r.sql.QueryRow(ctx, sqlinline.QUpdateProfile,
		userID,
		patch.Email,
		plan,
		patch.FreeGenerationsLeft,
		patch.LastFreeResetDate,
		patch.ProGenerationsLeft,
		patch.LastProResetMonth,
		patch.IfVersion,
	)
	p, err := scanProfile(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.StoreError{Op: "update", Err: err}
	}
	if patch.IfVersion == nil {
		return nil, domain.ErrProfileNotFound
	}

	var version int64
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectProfileVersion, userID).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, &domain.StoreError{Op: "update", Err: err}
	}
	return nil, domain.ErrVersionConflict
}

// Create inserts a FREE profile for userID unless one already exists.
func (r *ProfileRepositoryPG) Create(ctx context.Context, p domain.Profile) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertProfile,
		p.ID,
		p.Email,
		p.FreeGenerationsLeft,
		p.LastFreeResetDate,
		p.ProGenerationsLeft,
		p.LastProResetMonth,
	)
	if err != nil {
		return &domain.StoreError{Op: "create", Err: err}
	}
	return nil
}

// LookupIDByEmail resolves a profile id from its cached email.
func (r *ProfileRepositoryPG) LookupIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectProfileIDByEmail, email).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrProfileNotFound
		}
		return "", &domain.StoreError{Op: "lookup", Err: err}
	}
	return id, nil
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var (
		p    domain.Profile
		plan string
	)
	if err := row.Scan(
		&p.ID,
		&p.Email,
		&plan,
		&p.FreeGenerationsLeft,
		&p.LastFreeResetDate,
		&p.ProGenerationsLeft,
		&p.LastProResetMonth,
		&p.Version,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.ActivePlan = domain.Plan(plan)
	return &p, nil
}

var _ domain.ProfileStore = (*ProfileRepositoryPG)(nil)
