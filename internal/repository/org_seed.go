package repository

import (
	"context"
	"fmt"

	"trfc-backend/internal/db"
	"trfc-backend/internal/domain"

	"github.com/google/uuid"
)

// DefaultExpenseCategory is the category expenses fall back to.
const DefaultExpenseCategory = "General"

func channelPtr(c domain.Channel) *domain.Channel { return &c }

// DefaultPaymentMethods is the catalog a new org starts with: one method per
// sales channel plus the cash and bank methods expenses are paid from.
func DefaultPaymentMethods(orgID uuid.UUID) []domain.PaymentMethod {
	method := func(name string, typ domain.MethodType, ch *domain.Channel, sales, expenses bool) domain.PaymentMethod {
		return domain.PaymentMethod{
			OrgID:       orgID,
			Name:        name,
			MethodType:  typ,
			Channel:     ch,
			ForSales:    sales,
			ForExpenses: expenses,
			IsActive:    true,
		}
	}
	return []domain.PaymentMethod{
		method("Cash", domain.MethodCash, channelPtr(domain.ChannelCash), true, true),
		method("UPI", domain.MethodUPI, channelPtr(domain.ChannelUPI), true, false),
		method("Swiggy", domain.MethodSwiggy, channelPtr(domain.ChannelSwiggy), true, false),
		method("Zomato", domain.MethodZomato, channelPtr(domain.ChannelZomato), true, false),
		method("Other Online", domain.MethodOnline, channelPtr(domain.ChannelOther), true, false),
		method("Bank Transfer", domain.MethodBank, nil, false, true),
	}
}

// OrgSeeder installs the payment methods and expense category a register
// save needs. Running it twice is a no-op.
type OrgSeeder struct {
	DB *db.Postgres
}

func (s OrgSeeder) SeedDefaults(ctx context.Context, orgID uuid.UUID) error {
	tx, err := s.DB.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, m := range DefaultPaymentMethods(orgID) {
		var channel *string
		if m.Channel != nil {
			c := string(*m.Channel)
			channel = &c
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO payment_methods (org_id, name, method_type, channel, for_sales, for_expenses, is_active, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,true, now())
			ON CONFLICT (org_id, name) DO NOTHING
		`, orgID, m.Name, string(m.MethodType), channel, m.ForSales, m.ForExpenses)
		if err != nil {
			return fmt.Errorf("seed payment method %s: %w", m.Name, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO expense_categories (org_id, name, is_active, display_order, created_at)
		VALUES ($1,$2,true,0, now())
		ON CONFLICT (org_id, name) DO NOTHING
	`, orgID, DefaultExpenseCategory)
	if err != nil {
		return fmt.Errorf("seed expense category: %w", err)
	}
	return tx.Commit(ctx)
}
