package repository

import (
	"context"
	"errors"

	"trfc-backend/internal/db"
	"trfc-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ShopRepository struct {
	DB *db.Postgres
}

func (r ShopRepository) ListActive(ctx context.Context, orgID uuid.UUID) ([]domain.Shop, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT id, org_id, code, name, is_active, display_order
		FROM shops
		WHERE org_id=$1 AND is_active
		ORDER BY display_order ASC, name ASC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.Shop
	for rows.Next() {
		var s domain.Shop
		if err := rows.Scan(&s.ID, &s.OrgID, &s.Code, &s.Name, &s.IsActive, &s.DisplayOrder); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r ShopRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Shop, error) {
	var s domain.Shop
	err := r.DB.Pool.QueryRow(ctx, `
		SELECT id, org_id, code, name, is_active, display_order
		FROM shops
		WHERE id=$1
	`, id).Scan(&s.ID, &s.OrgID, &s.Code, &s.Name, &s.IsActive, &s.DisplayOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}
