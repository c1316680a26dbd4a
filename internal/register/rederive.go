package register

import (
	"context"
	"time"

	"trfc-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Drift is the difference between a stored summary row and the totals its
// line items derive to.
type Drift struct {
	LogID   uuid.UUID
	LogDate Date
	Fields  map[string]FieldDrift
	Stored  domain.DailySalesLog
	Derived Day
	// Held is set for verified and locked days, which are reported but
	// never rewritten.
	Held bool
}

type FieldDrift struct {
	Stored  decimal.Decimal
	Derived decimal.Decimal
}

func (d Drift) Empty() bool { return len(d.Fields) == 0 }

// Rederive walks the stored days of a shop between from and to (inclusive)
// and reports every summary whose totals disagree with its line items.
// With apply set, every drifted row that is still editable is rewritten in a
// single transaction.
func (e *Engine) Rederive(ctx context.Context, shopID uuid.UUID, from, to Date, apply bool) ([]Drift, error) {
	rows, err := e.Store.ListDays(ctx, shopID, from.Time, to.Time)
	if err != nil {
		return nil, &FetchError{Op: "days", Err: err}
	}

	var drifts []Drift
	for _, stored := range rows {
		day, err := e.derive(ctx, shopID, NewDate(stored.LogDate))
		if err != nil {
			return nil, err
		}
		d := compareSummary(stored, *day)
		if !d.Empty() {
			drifts = append(drifts, d)
		}
	}
	e.log().Info("register rederive", "shop", shopID, "from", from.String(), "to", to.String(), "days", len(rows), "drifted", len(drifts))
	var repairs []Drift
	for _, d := range drifts {
		if !d.Held {
			repairs = append(repairs, d)
		}
	}
	if !apply || len(repairs) == 0 {
		return drifts, nil
	}

	err = e.Store.WithinTx(ctx, func(w Writer) error {
		for _, d := range repairs {
			if err := w.UpdateSummaryTotals(ctx, repairedSummary(d.Stored, d.Derived)); err != nil {
				return &PersistError{Step: "update summary " + d.LogDate.String(), Err: err}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.Cache != nil {
		if err := e.Cache.InvalidateShop(ctx, shopID); err != nil {
			e.log().Warn("register cache invalidation failed", "shop", shopID, "err", err)
		}
	}
	return drifts, nil
}

func compareSummary(stored domain.DailySalesLog, day Day) Drift {
	fields := map[string]FieldDrift{}
	check := func(name string, have, want decimal.Decimal) {
		if !have.Equal(want) {
			fields[name] = FieldDrift{Stored: have, Derived: want}
		}
	}
	check("gross_sales", stored.GrossSales, day.TotalSales)
	check("net_sales", stored.NetSales, day.TotalSales)
	check("cash_sales", stored.CashSales, day.Cash.TodaysCash)
	check("total_cash_expenses", stored.TotalCashExpenses, day.TotalCashExpenses)
	check("total_online_expenses", stored.TotalOnlineExpenses, day.TotalOnlineExpenses)
	check("expected_closing", stored.ExpectedClosing, day.Cash.ExpectedCash)
	check("variance", stored.Variance, day.Cash.Difference)
	return Drift{
		LogID:   stored.ID,
		LogDate: NewDate(stored.LogDate),
		Fields:  fields,
		Stored:  stored,
		Derived: day,
		Held:    stored.Status.ReadOnly(),
	}
}

func repairedSummary(stored domain.DailySalesLog, day Day) domain.DailySalesLog {
	out := stored
	out.GrossSales = day.TotalSales
	out.NetSales = day.TotalSales
	out.CashSales = day.Cash.TodaysCash
	out.TotalCashExpenses = day.TotalCashExpenses
	out.TotalOnlineExpenses = day.TotalOnlineExpenses
	out.ExpectedClosing = day.Cash.ExpectedCash
	out.Variance = day.Cash.Difference
	return out
}

// History returns the stored summaries of a shop between from and to.
func (e *Engine) History(ctx context.Context, caller Caller, shopID uuid.UUID, from, to Date) ([]domain.DailySalesLog, *domain.Shop, error) {
	a, err := e.resolveActor(ctx, caller)
	if err != nil {
		return nil, nil, err
	}
	shop, err := e.shopFor(ctx, a, shopID)
	if err != nil {
		return nil, nil, err
	}
	if to.Before(from.Time) {
		return nil, nil, &ValidationError{Field: "to", Reason: "must not be before from"}
	}
	rows, err := e.Store.ListDays(ctx, shopID, from.Time, to.Time)
	if err != nil {
		return nil, nil, &FetchError{Op: "days", Err: err}
	}
	return rows, shop, nil
}

// DefaultRange is the current month up to today.
func DefaultRange(now time.Time) (Date, Date) {
	today := NewDate(now)
	return NewDate(time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)), today
}
