package repository

import (
	"context"
	"errors"

	"trfc-backend/internal/db"
	"trfc-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepository reads profiles: one row per login, scoped to an org.
type UserRepository struct {
	DB *db.Postgres
}

type CreateUserParams struct {
	OrgID        *uuid.UUID
	Name         string
	Email        string
	Role         domain.UserRole
	RoleName     string
	PasswordHash *string
}

const userColumns = `id, org_id, name, email, role, COALESCE(role_name, ''), is_active, password_hash, created_at, updated_at`

func (r UserRepository) Create(ctx context.Context, p CreateUserParams) (*domain.User, error) {
	query := `
		INSERT INTO profiles (org_id, name, email, role, role_name, is_active, password_hash, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,true,$6, now(), now())
		RETURNING ` + userColumns
	row := r.DB.Pool.QueryRow(ctx, query, p.OrgID, p.Name, p.Email, string(p.Role), p.RoleName, p.PasswordHash)
	return scanUser(row)
}

func (r UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM profiles
		WHERE lower(email)=lower($1)
	`
	row := r.DB.Pool.QueryRow(ctx, query, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM profiles
		WHERE id=$1
	`
	row := r.DB.Pool.QueryRow(ctx, query, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetUser resolves the caller for the register engine. Inactive profiles
// are treated as unknown.
func (r UserRepository) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := r.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, nil
	}
	return user, nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)
	if err := row.Scan(
		&u.ID,
		&u.OrgID,
		&u.Name,
		&u.Email,
		&role,
		&u.RoleName,
		&u.IsActive,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Role = domain.UserRole(role)
	return &u, nil
}

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// IsDuplicate detects unique constraint violation.
func IsDuplicate(err error) bool {
	return db.IsUniqueViolation(err)
}
