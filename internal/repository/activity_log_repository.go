package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"trfc-backend/internal/db"
	"trfc-backend/internal/domain"

	"github.com/google/uuid"
)

type ActivityLogRepository struct {
	DB *db.Postgres
}

// WriteAuditRecord stores one activity row with its metadata as jsonb.
func (r ActivityLogRepository) WriteAuditRecord(ctx context.Context, entry domain.ActivityLog) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = r.DB.Pool.Exec(ctx, `
		INSERT INTO activity_logs (org_id, user_id, user_name, user_role, action, entity_type, entity_id,
			entity_name, shop_id, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11)
	`, entry.OrgID, entry.UserID, entry.UserName, entry.UserRole, string(entry.Action), entry.EntityType, entry.EntityID,
		entry.EntityName, entry.ShopID, string(meta), entry.LoggedAt)
	return err
}

type ActivityLogFilter struct {
	ShopID     *uuid.UUID
	EntityType string
	Limit      int
}

func (r ActivityLogRepository) ListForOrg(ctx context.Context, orgID uuid.UUID, f ActivityLogFilter) ([]domain.ActivityLog, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT id, org_id, user_id, COALESCE(user_name, ''), COALESCE(user_role, ''), action, entity_type,
		       entity_id, COALESCE(entity_name, ''), shop_id, COALESCE(metadata, '{}'::jsonb), created_at
		FROM activity_logs
		WHERE org_id=$1
		  AND ($2::uuid IS NULL OR shop_id=$2)
		  AND ($3::text = '' OR entity_type=$3)
		ORDER BY created_at DESC
		LIMIT $4
	`, orgID, f.ShopID, f.EntityType, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActivityLog
	for rows.Next() {
		var (
			l      domain.ActivityLog
			action string
			meta   []byte
		)
		if err := rows.Scan(&l.ID, &l.OrgID, &l.UserID, &l.UserName, &l.UserRole, &action, &l.EntityType,
			&l.EntityID, &l.EntityName, &l.ShopID, &meta, &l.LoggedAt); err != nil {
			return nil, err
		}
		l.Action = domain.ActivityAction(action)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &l.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
