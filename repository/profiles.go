// Package repository provides Bun-backed storage for user profiles, serving
// as the authoritative role lookup for the authstate package.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	authstate "github.com/loudkitchen/go-authstate"
)

// ProfileModel is the Bun model for user profiles.
type ProfileModel struct {
	bun.BaseModel `bun:"table:profiles"`

	ID        uuid.UUID `bun:"id,pk,nullzero,type:uuid"`
	Email     string    `bun:"email"`
	FullName  string    `bun:"full_name"`
	Role      string    `bun:"role"`
	CreatedAt time.Time `bun:"created_at,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,default:current_timestamp"`
}

// ProfileRepository implements authstate.RoleProvider using Bun.
type ProfileRepository struct {
	db *bun.DB
}

var _ authstate.RoleProvider = (*ProfileRepository)(nil)

// NewProfileRepository creates a new repository.
func NewProfileRepository(db *bun.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// RoleByUserID implements authstate.RoleProvider: a single-row fetch of the
// role field by user identifier. A missing row surfaces as
// authstate.ErrProfileNotFound; the resolver turns that into the default
// role.
func (r *ProfileRepository) RoleByUserID(ctx context.Context, userID string) (authstate.Role, error) {
	var model ProfileModel
	err := r.db.NewSelect().
		Model(&model).
		Column("role").
		Where("id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", authstate.ErrProfileNotFound
		}
		return "", err
	}
	return authstate.NormalizeRole(model.Role), nil
}

// GetByID fetches a full profile row.
func (r *ProfileRepository) GetByID(ctx context.Context, userID string) (*ProfileModel, error) {
	var model ProfileModel
	err := r.db.NewSelect().
		Model(&model).
		Where("id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authstate.ErrProfileNotFound
		}
		return nil, err
	}
	return &model, nil
}

// Upsert inserts or updates a profile keyed by id.
func (r *ProfileRepository) Upsert(ctx context.Context, profile *ProfileModel) error {
	profile.UpdatedAt = time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = profile.UpdatedAt
	}

	_, err := r.db.NewInsert().
		Model(profile).
		On("CONFLICT (id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("full_name = EXCLUDED.full_name").
		Set("role = EXCLUDED.role").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// UpdateRole writes just the role field for a user.
func (r *ProfileRepository) UpdateRole(ctx context.Context, userID string, role authstate.Role) error {
	res, err := r.db.NewUpdate().
		Model((*ProfileModel)(nil)).
		Set("role = ?", string(role)).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return authstate.ErrProfileNotFound
	}
	return nil
}
