package register

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trfc-backend/internal/domain"
	"trfc-backend/internal/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SaveResult struct {
	LogID    uuid.UUID
	Created  bool
	Day      Day
	Warnings []error
	Message  string
}

// Save persists day as the authoritative state of its (shop, date). The
// summary upsert and both line-item replacements commit together or not at
// all. Skipped entries and audit failures come back as warnings.
func (e *Engine) Save(ctx context.Context, caller Caller, day Day) (*SaveResult, error) {
	res, err := e.save(ctx, caller, day)
	if err != nil {
		metrics.ObserveSave("error")
		return nil, err
	}
	metrics.ObserveSave("ok")
	for _, w := range res.Warnings {
		metrics.ObserveSaveWarning(WarningKind(w))
	}
	metrics.SetVariance(day.ShopID.String(), res.Day.Cash.Difference.InexactFloat64())
	return res, nil
}

func (e *Engine) save(ctx context.Context, caller Caller, in Day) (*SaveResult, error) {
	a, err := e.resolveActor(ctx, caller)
	if err != nil {
		return nil, err
	}
	day, err := normalize(in)
	if err != nil {
		return nil, err
	}
	shop, err := e.shopFor(ctx, a, day.ShopID)
	if err != nil {
		return nil, err
	}
	day.ShopCode, day.ShopName = shop.Code, shop.Name

	release := e.lock(ctx, day.ShopID, day.LogDate)
	defer release()

	existing, err := e.Store.GetDay(ctx, day.ShopID, day.LogDate.Time)
	if err != nil {
		return nil, &FetchError{Op: "day", Err: err}
	}
	if day.Status == "" {
		day.Status = domain.StatusDraft
		if existing != nil && existing.Status.Valid() {
			day.Status = existing.Status
		}
	}
	if existing != nil {
		if existing.Status.ReadOnly() {
			return nil, ErrReadOnly
		}
		if day.Status.Rank() < existing.Status.Rank() {
			return nil, ErrStatusRegression
		}
	}

	// Opening cash is only the client's to set on a bootstrap day. Otherwise
	// it is whatever a fetch of this day derives.
	prior, err := e.Store.GetOpeningCash(ctx, day.ShopID, day.LogDate.Time)
	if err != nil {
		return nil, &FetchError{Op: "opening cash", Err: err}
	}
	day.Cash.OpeningEditable = prior == nil
	if prior != nil {
		day.Cash.OpeningCash = *prior
		if existing != nil && existing.OpeningCash.Valid {
			day.Cash.OpeningCash = existing.OpeningCash.Decimal
		}
		day.Recompute()
	}

	methods, err := e.Store.GetActivePaymentMethods(ctx, a.orgID)
	if err != nil {
		return nil, &FetchError{Op: "payment methods", Err: err}
	}
	category, err := e.Store.GetDefaultExpenseCategory(ctx, a.orgID)
	if err != nil {
		return nil, &FetchError{Op: "expense category", Err: err}
	}

	var warnings []error
	sales, skipped := buildSalesLines(day, methods)
	warnings = append(warnings, skipped...)
	expenses, skipped := buildExpenseLines(day, a, category, methods)
	warnings = append(warnings, skipped...)
	for _, w := range warnings {
		e.log().Warn("register entry skipped", "shop", day.ShopID, "date", day.LogDate.String(), "reason", w.Error())
	}

	summary := domain.DailySalesLog{
		OrgID:               a.orgID,
		ShopID:              day.ShopID,
		LogDate:             day.LogDate.Time,
		OpeningCash:         decimal.NewNullDecimal(day.Cash.OpeningCash),
		GrossSales:          day.TotalSales,
		NetSales:            day.TotalSales,
		CashSales:           day.Cash.TodaysCash,
		TotalCashExpenses:   day.TotalCashExpenses,
		TotalOnlineExpenses: day.TotalOnlineExpenses,
		ExpectedClosing:     day.Cash.ExpectedCash,
		ActualClosing:       decimal.NewNullDecimal(day.Cash.ActualCash),
		Variance:            day.Cash.ActualCash.Sub(day.Cash.ExpectedCash),
		Status:              day.Status,
		LoggedBy:            &a.user.ID,
	}

	var logID uuid.UUID
	err = e.Store.WithinTx(ctx, func(w Writer) error {
		id, err := w.UpsertDaySummary(ctx, summary)
		if err != nil {
			return &PersistError{Step: "upsert summary", Err: err}
		}
		logID = id
		if err := w.ReplaceSalesLines(ctx, id, sales); err != nil {
			return &PersistError{Step: "replace sales lines", Err: err}
		}
		if err := w.ReplaceExpenseLines(ctx, id, expenses); err != nil {
			return &PersistError{Step: "replace expense lines", Err: err}
		}
		return nil
	})
	if err != nil {
		var perr *PersistError
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, &PersistError{Step: "commit", Err: err}
	}

	day.ID = &logID
	created := existing == nil
	if err := e.writeAudit(ctx, a, day, logID, created); err != nil {
		e.log().Warn("activity log failed (non-critical)", "log_id", logID, "err", err)
		warnings = append(warnings, &AuditError{Err: err})
	}
	if e.Cache != nil {
		if err := e.Cache.InvalidateShop(ctx, day.ShopID); err != nil {
			e.log().Warn("register cache invalidation failed", "shop", day.ShopID, "err", err)
		}
	}

	e.log().Info("register saved",
		"log_id", logID,
		"shop", day.ShopID,
		"date", day.LogDate.String(),
		"created", created,
		"variance", day.Cash.Difference.String(),
		"warnings", len(warnings),
	)
	return &SaveResult{
		LogID:    logID,
		Created:  created,
		Day:      day,
		Warnings: warnings,
		Message:  "Saved successfully",
	}, nil
}

// normalize rebuilds the fixed channel set and every derived field, so
// client-computed totals are never trusted.
func normalize(in Day) (Day, error) {
	if in.ShopID == uuid.Nil {
		return Day{}, &ValidationError{Field: "shopId", Reason: "required"}
	}
	if in.LogDate.IsZero() {
		return Day{}, &ValidationError{Field: "logDate", Reason: "required"}
	}
	day := in.Clone()
	if day.Status != "" && !day.Status.Valid() {
		return Day{}, &ValidationError{Field: "status", Reason: "unknown status " + string(day.Status)}
	}
	if day.Status.ReadOnly() {
		return Day{}, ErrReadOnly
	}

	fresh := NewDay(day.ShopID, day.LogDate)
	for _, row := range day.Sales {
		idx := fresh.salesIndex(row.Channel)
		if idx < 0 {
			return Day{}, &ValidationError{Field: "sales", Reason: fmt.Sprintf("unknown channel %q", row.Channel)}
		}
		fresh.Sales[idx].Amount = fresh.Sales[idx].Amount.Add(row.Amount)
		if row.PaymentMethodID != nil {
			fresh.Sales[idx].PaymentMethodID = row.PaymentMethodID
		}
	}
	day.Sales = fresh.Sales
	for i := range day.CashExpenses {
		day.CashExpenses[i].IsCash = true
	}
	for i := range day.OnlineExpenses {
		day.OnlineExpenses[i].IsCash = false
	}
	day.Recompute()

	if day.TotalSales.IsNegative() {
		return Day{}, &ValidationError{Field: "totalSales", Reason: "must not be negative"}
	}
	if day.TotalExpenses.IsNegative() {
		return Day{}, &ValidationError{Field: "totalExpenses", Reason: "must not be negative"}
	}
	return day, nil
}

// buildSalesLines writes one line per channel with a positive amount.
func buildSalesLines(day Day, methods []domain.PaymentMethod) ([]domain.SalesEntry, []error) {
	var lines []domain.SalesEntry
	var warnings []error
	for _, row := range day.Sales {
		if !row.Amount.IsPositive() {
			continue
		}
		info := resolveSalesMethod(row.Channel, methods)
		methodID := info.ID
		if methodID == nil {
			methodID = row.PaymentMethodID
		}
		if methodID == nil {
			warnings = append(warnings, &ConfigError{Subject: row.Source, Reason: "no payment method configured"})
			continue
		}
		lines = append(lines, domain.SalesEntry{
			EntryDate:       day.LogDate.Time,
			PaymentMethodID: *methodID,
			MethodType:      info.MethodType,
			IsCash:          info.IsCash,
			GrossAmount:     row.Amount,
			ReturnsAmount:   decimal.Zero,
			NetAmount:       row.Amount,
		})
	}
	return lines, warnings
}

// buildExpenseLines writes one paid expense per non-empty, positive row.
func buildExpenseLines(day Day, a *actor, defaultCategory *uuid.UUID, methods []domain.PaymentMethod) ([]domain.Expense, []error) {
	cashMethod, bankMethod := expenseMethods(methods)
	var lines []domain.Expense
	var warnings []error

	add := func(row ExpenseRow, isCash bool) {
		if strings.TrimSpace(row.Description) == "" || !row.Amount.IsPositive() {
			return
		}
		category := row.CategoryID
		if category == nil {
			category = defaultCategory
		}
		if category == nil {
			warnings = append(warnings, &ConfigError{Subject: row.Description, Reason: "no default expense category"})
			return
		}
		method, methodType := bankMethod, domain.MethodBank
		if isCash {
			method, methodType = cashMethod, domain.MethodCash
		}
		if method == nil {
			warnings = append(warnings, &ConfigError{Subject: row.Description, Reason: "no default " + string(methodType) + " payment method for expenses"})
			return
		}
		createdBy := a.user.ID
		lines = append(lines, domain.Expense{
			OrgID:         a.orgID,
			ShopID:        day.ShopID,
			ExpenseDate:   day.LogDate.Time,
			CategoryID:    category,
			VendorID:      row.VendorID,
			Description:   strings.TrimSpace(row.Description),
			Amount:        row.Amount,
			PaymentStatus: domain.PaymentPaid,
			CreatedBy:     &createdBy,
			Payments: []domain.ExpensePayment{{
				PaymentMethodID: method.ID,
				MethodType:      methodType,
				IsCash:          isCash,
				Amount:          row.Amount,
				PaymentDate:     day.LogDate.Time,
			}},
		})
	}
	for _, row := range day.CashExpenses {
		add(row, true)
	}
	for _, row := range day.OnlineExpenses {
		add(row, false)
	}
	return lines, warnings
}

func (e *Engine) writeAudit(ctx context.Context, a *actor, day Day, logID uuid.UUID, created bool) error {
	if e.Audit == nil {
		return nil
	}
	action, actionType := domain.ActionRecordUpdate, "edited"
	if created {
		action, actionType = domain.ActionRecordCreate, "created"
	}
	variance := day.Cash.Difference
	userID := a.user.ID
	shopID := day.ShopID
	entityID := logID
	label := day.ShopCode
	if label == "" {
		label = day.ShopID.String()
	}
	role := a.user.RoleName
	if role == "" {
		role = string(a.user.Role)
	}
	now := e.now()

	return e.Audit.WriteAuditRecord(ctx, domain.ActivityLog{
		OrgID:      a.orgID,
		UserID:     &userID,
		UserName:   a.user.Name,
		UserRole:   role,
		Action:     action,
		EntityType: "daily_sales_log",
		EntityID:   &entityID,
		EntityName: fmt.Sprintf("%s - %s", label, day.LogDate.String()),
		ShopID:     &shopID,
		LoggedAt:   now,
		Metadata: map[string]any{
			"filled_by_name":  a.user.Name,
			"filled_by_role":  role,
			"filled_by_email": a.email,
			"timestamp":       now.UTC().Format("2006-01-02T15:04:05Z07:00"),
			"action_type":     actionType,
			"total_sales":     day.TotalSales.InexactFloat64(),
			"total_expenses":  day.TotalExpenses.InexactFloat64(),
			"cash_sales":      day.Cash.TodaysCash.InexactFloat64(),
			"cash_expenses":   day.Cash.TodaysExpense.InexactFloat64(),
			"opening_cash":    day.Cash.OpeningCash.InexactFloat64(),
			"expected_cash":   day.Cash.ExpectedCash.InexactFloat64(),
			"actual_cash":     day.Cash.ActualCash.InexactFloat64(),
			"variance":        variance.InexactFloat64(),
			"variance_type":   VarianceType(variance),
		},
	})
}
