package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trfc-backend/internal/db"
	"trfc-backend/internal/domain"
	"trfc-backend/internal/register"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// pgxQuerier is satisfied by both pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// RegisterRepository is the PostgreSQL store behind the register engine.
type RegisterRepository struct {
	DB *db.Postgres
}

var _ register.Store = RegisterRepository{}

const summaryColumns = `
	id, org_id, shop_id, log_date, opening_cash, gross_sales, net_sales, cash_sales,
	total_cash_expenses, total_online_expenses, expected_closing, actual_closing,
	variance, status, logged_by, created_at, updated_at`

func (r RegisterRepository) GetDay(ctx context.Context, shopID uuid.UUID, date time.Time) (*domain.DailySalesLog, error) {
	row := r.DB.Pool.QueryRow(ctx, `
		SELECT `+summaryColumns+`
		FROM daily_sales_logs
		WHERE shop_id=$1 AND log_date=$2
	`, shopID, date.Format(register.DateLayout))
	l, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

// GetOpeningCash reads the actual closing of the latest earlier day. A
// missing row and a NULL closing both mean there is no carried balance.
func (r RegisterRepository) GetOpeningCash(ctx context.Context, shopID uuid.UUID, date time.Time) (*decimal.Decimal, error) {
	var closing decimal.NullDecimal
	err := r.DB.Pool.QueryRow(ctx, `
		SELECT actual_closing
		FROM daily_sales_logs
		WHERE shop_id=$1 AND log_date < $2
		ORDER BY log_date DESC
		LIMIT 1
	`, shopID, date.Format(register.DateLayout)).Scan(&closing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !closing.Valid {
		return nil, nil
	}
	return &closing.Decimal, nil
}

func (r RegisterRepository) GetSalesLines(ctx context.Context, dayID uuid.UUID) ([]domain.SalesEntry, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT s.id, s.daily_log_id, s.entry_date, s.payment_method_id,
		       COALESCE(pm.name, ''), pm.channel, s.method_type, s.is_cash,
		       s.gross_amount, s.returns_amount, s.net_amount, s.created_at
		FROM sales_entries s
		LEFT JOIN payment_methods pm ON pm.id = s.payment_method_id
		WHERE s.daily_log_id=$1
		ORDER BY s.created_at ASC
	`, dayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SalesEntry
	for rows.Next() {
		var (
			e          domain.SalesEntry
			channel    *string
			methodType string
		)
		if err := rows.Scan(&e.ID, &e.DailyLogID, &e.EntryDate, &e.PaymentMethodID,
			&e.PaymentMethodName, &channel, &methodType, &e.IsCash,
			&e.GrossAmount, &e.ReturnsAmount, &e.NetAmount, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.MethodType = domain.MethodType(methodType)
		e.PaymentChannel = toChannel(channel)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r RegisterRepository) GetExpenseLines(ctx context.Context, dayID uuid.UUID) ([]domain.Expense, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT id, org_id, shop_id, daily_log_id, expense_date, category_id, vendor_id,
		       COALESCE(description, ''), amount, payment_status, created_by, created_at
		FROM expenses
		WHERE daily_log_id=$1
		ORDER BY created_at ASC
	`, dayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Expense
	index := map[uuid.UUID]int{}
	for rows.Next() {
		var (
			e      domain.Expense
			status string
		)
		if err := rows.Scan(&e.ID, &e.OrgID, &e.ShopID, &e.DailyLogID, &e.ExpenseDate, &e.CategoryID, &e.VendorID,
			&e.Description, &e.Amount, &status, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.PaymentStatus = domain.PaymentStatus(status)
		index[e.ID] = len(out)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	payRows, err := r.DB.Pool.Query(ctx, `
		SELECT p.id, p.expense_id, p.payment_method_id, p.method_type, p.is_cash, p.amount, p.payment_date
		FROM expense_payments p
		JOIN expenses e ON e.id = p.expense_id
		WHERE e.daily_log_id=$1
	`, dayID)
	if err != nil {
		return nil, err
	}
	defer payRows.Close()
	for payRows.Next() {
		var (
			p          domain.ExpensePayment
			methodType string
		)
		if err := payRows.Scan(&p.ID, &p.ExpenseID, &p.PaymentMethodID, &methodType, &p.IsCash, &p.Amount, &p.PaymentDate); err != nil {
			return nil, err
		}
		p.MethodType = domain.MethodType(methodType)
		if i, ok := index[p.ExpenseID]; ok {
			out[i].Payments = append(out[i].Payments, p)
		}
	}
	return out, payRows.Err()
}

func (r RegisterRepository) GetShop(ctx context.Context, shopID uuid.UUID) (*domain.Shop, error) {
	shop, err := ShopRepository{DB: r.DB}.Get(ctx, shopID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return shop, err
}

func (r RegisterRepository) GetActivePaymentMethods(ctx context.Context, orgID uuid.UUID) ([]domain.PaymentMethod, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT id, org_id, name, method_type, channel, for_sales, for_expenses, is_active
		FROM payment_methods
		WHERE org_id=$1 AND is_active
		ORDER BY created_at ASC, name ASC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PaymentMethod
	for rows.Next() {
		var (
			m          domain.PaymentMethod
			methodType string
			channel    *string
		)
		if err := rows.Scan(&m.ID, &m.OrgID, &m.Name, &methodType, &channel, &m.ForSales, &m.ForExpenses, &m.IsActive); err != nil {
			return nil, err
		}
		m.MethodType = domain.MethodType(methodType)
		m.Channel = toChannel(channel)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r RegisterRepository) GetDefaultExpenseCategory(ctx context.Context, orgID uuid.UUID) (*uuid.UUID, error) {
	var id uuid.UUID
	err := r.DB.Pool.QueryRow(ctx, `
		SELECT id
		FROM expense_categories
		WHERE org_id=$1 AND is_active
		ORDER BY display_order ASC, name ASC
		LIMIT 1
	`, orgID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}

func (r RegisterRepository) RecentExpenseDescriptions(ctx context.Context, orgID uuid.UUID, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT description
		FROM expenses
		WHERE org_id=$1 AND description IS NOT NULL AND description <> ''
		ORDER BY created_at DESC
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r RegisterRepository) ListDays(ctx context.Context, shopID uuid.UUID, from, to time.Time) ([]domain.DailySalesLog, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT `+summaryColumns+`
		FROM daily_sales_logs
		WHERE shop_id=$1 AND log_date BETWEEN $2 AND $3
		ORDER BY log_date ASC
	`, shopID, from.Format(register.DateLayout), to.Format(register.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.DailySalesLog
	for rows.Next() {
		l, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// WithinTx runs fn against a writer bound to one transaction.
func (r RegisterRepository) WithinTx(ctx context.Context, fn func(register.Writer) error) error {
	tx, err := r.DB.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(registerWriter{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type registerWriter struct {
	q pgxQuerier
}

func (w registerWriter) UpsertDaySummary(ctx context.Context, l domain.DailySalesLog) (uuid.UUID, error) {
	var id uuid.UUID
	err := w.q.QueryRow(ctx, `
		INSERT INTO daily_sales_logs (org_id, shop_id, log_date, opening_cash, gross_sales, net_sales, cash_sales,
			total_cash_expenses, total_online_expenses, expected_closing, actual_closing, variance, status, logged_by,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, now(), now())
		ON CONFLICT (shop_id, log_date) DO UPDATE SET
			opening_cash = EXCLUDED.opening_cash,
			gross_sales = EXCLUDED.gross_sales,
			net_sales = EXCLUDED.net_sales,
			cash_sales = EXCLUDED.cash_sales,
			total_cash_expenses = EXCLUDED.total_cash_expenses,
			total_online_expenses = EXCLUDED.total_online_expenses,
			expected_closing = EXCLUDED.expected_closing,
			actual_closing = EXCLUDED.actual_closing,
			variance = EXCLUDED.variance,
			status = EXCLUDED.status,
			logged_by = EXCLUDED.logged_by,
			updated_at = now()
		RETURNING id
	`, l.OrgID, l.ShopID, l.LogDate.Format(register.DateLayout), l.OpeningCash, l.GrossSales, l.NetSales, l.CashSales,
		l.TotalCashExpenses, l.TotalOnlineExpenses, l.ExpectedClosing, l.ActualClosing, l.Variance, string(l.Status), l.LoggedBy,
	).Scan(&id)
	return id, err
}

// ReplaceSalesLines deletes every line of the day and inserts lines in order.
// clock_timestamp keeps created_at increasing inside one transaction.
func (w registerWriter) ReplaceSalesLines(ctx context.Context, dayID uuid.UUID, lines []domain.SalesEntry) error {
	if _, err := w.q.Exec(ctx, `DELETE FROM sales_entries WHERE daily_log_id=$1`, dayID); err != nil {
		return err
	}
	for _, s := range lines {
		_, err := w.q.Exec(ctx, `
			INSERT INTO sales_entries (daily_log_id, entry_date, payment_method_id, method_type, is_cash,
				gross_amount, returns_amount, net_amount, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8, clock_timestamp())
		`, dayID, s.EntryDate.Format(register.DateLayout), s.PaymentMethodID, string(s.MethodType), s.IsCash,
			s.GrossAmount, s.ReturnsAmount, s.NetAmount)
		if err != nil {
			return referenceError("sales line", err)
		}
	}
	return nil
}

// ReplaceExpenseLines removes payments before their expenses, then inserts
// each expense followed by its payments.
func (w registerWriter) ReplaceExpenseLines(ctx context.Context, dayID uuid.UUID, lines []domain.Expense) error {
	if _, err := w.q.Exec(ctx, `
		DELETE FROM expense_payments
		WHERE expense_id IN (SELECT id FROM expenses WHERE daily_log_id=$1)
	`, dayID); err != nil {
		return err
	}
	if _, err := w.q.Exec(ctx, `DELETE FROM expenses WHERE daily_log_id=$1`, dayID); err != nil {
		return err
	}
	for _, e := range lines {
		var expenseID uuid.UUID
		err := w.q.QueryRow(ctx, `
			INSERT INTO expenses (org_id, shop_id, daily_log_id, expense_date, category_id, vendor_id,
				description, amount, payment_status, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, clock_timestamp())
			RETURNING id
		`, e.OrgID, e.ShopID, dayID, e.ExpenseDate.Format(register.DateLayout), e.CategoryID, e.VendorID,
			e.Description, e.Amount, string(e.PaymentStatus), e.CreatedBy).Scan(&expenseID)
		if err != nil {
			return referenceError("expense "+e.Description, err)
		}
		for _, p := range e.Payments {
			_, err := w.q.Exec(ctx, `
				INSERT INTO expense_payments (expense_id, payment_method_id, method_type, is_cash, amount, payment_date)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, expenseID, p.PaymentMethodID, string(p.MethodType), p.IsCash, p.Amount, p.PaymentDate.Format(register.DateLayout))
			if err != nil {
				return referenceError("expense payment", err)
			}
		}
	}
	return nil
}

// referenceError names the row whose payment method, category or vendor
// was deleted between fetch and save.
func referenceError(what string, err error) error {
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%s references a missing record: %w", what, err)
	}
	return err
}

func (w registerWriter) UpdateSummaryTotals(ctx context.Context, l domain.DailySalesLog) error {
	tag, err := w.q.Exec(ctx, `
		UPDATE daily_sales_logs SET
			gross_sales=$2, net_sales=$3, cash_sales=$4, total_cash_expenses=$5, total_online_expenses=$6,
			expected_closing=$7, variance=$8, updated_at=now()
		WHERE id=$1
	`, l.ID, l.GrossSales, l.NetSales, l.CashSales, l.TotalCashExpenses, l.TotalOnlineExpenses, l.ExpectedClosing, l.Variance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSummary(row interface {
	Scan(dest ...any) error
}) (*domain.DailySalesLog, error) {
	var (
		l      domain.DailySalesLog
		status string
	)
	if err := row.Scan(
		&l.ID,
		&l.OrgID,
		&l.ShopID,
		&l.LogDate,
		&l.OpeningCash,
		&l.GrossSales,
		&l.NetSales,
		&l.CashSales,
		&l.TotalCashExpenses,
		&l.TotalOnlineExpenses,
		&l.ExpectedClosing,
		&l.ActualClosing,
		&l.Variance,
		&status,
		&l.LoggedBy,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	l.Status = domain.RegisterStatus(status)
	return &l, nil
}

func toChannel(s *string) *domain.Channel {
	if s == nil || *s == "" {
		return nil
	}
	ch := domain.Channel(*s)
	return &ch
}
