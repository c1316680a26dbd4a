package register_test

import (
	"context"
	"errors"
	"testing"

	"trfc-backend/internal/domain"
	"trfc-backend/internal/register"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// editedDay builds a typical evening sheet: cash and UPI takings, one cash
// and one online expense, and a counted drawer ten short.
func editedDay(t *testing.T, f *fixture, date string) register.Day {
	t.Helper()
	day := *f.fetch(t, mustDate(t, date))
	if day.Cash.OpeningEditable {
		mustApply(t, day.SetOpeningCash(dec("200")))
	}
	mustApply(t, day.SetSalesAmount(domain.ChannelCash, dec("500")))
	mustApply(t, day.SetSalesAmount(domain.ChannelUPI, dec("200")))
	if _, err := day.AddExpense(register.ExpenseRow{Description: "Ice", Amount: dec("50"), IsCash: true}); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if _, err := day.AddExpense(register.ExpenseRow{Description: "Gas Cylinder", Amount: dec("300")}); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	mustApply(t, day.SetActualCash(day.Cash.ExpectedCash.Sub(dec("10"))))
	return day
}

func TestSave_RoundTrip(t *testing.T) {
	f := newFixture(t)
	day := editedDay(t, f, "2024-05-10")

	res := f.save(t, day)
	if !res.Created {
		t.Fatalf("first save should create the day")
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", res.Warnings)
	}
	if res.Message != "Saved successfully" {
		t.Fatalf("unexpected message %q", res.Message)
	}

	stored, err := f.store.GetDay(context.Background(), f.shop.ID, day.LogDate.Time)
	if err != nil || stored == nil {
		t.Fatalf("stored day missing: %v", err)
	}
	if stored.ID != res.LogID {
		t.Fatalf("log id mismatch: %s vs %s", stored.ID, res.LogID)
	}
	assertDec(t, "gross sales", stored.GrossSales, "700")
	assertDec(t, "cash sales", stored.CashSales, "500")
	assertDec(t, "cash expenses", stored.TotalCashExpenses, "50")
	assertDec(t, "online expenses", stored.TotalOnlineExpenses, "300")
	assertDec(t, "expected closing", stored.ExpectedClosing, "650")
	assertDec(t, "actual closing", stored.ActualClosing.Decimal, "640")
	assertDec(t, "variance", stored.Variance, "-10")
	if stored.LoggedBy == nil || *stored.LoggedBy != f.user.ID {
		t.Fatalf("logged_by not set to the caller")
	}

	sales, _ := f.store.GetSalesLines(context.Background(), res.LogID)
	if len(sales) != 2 {
		t.Fatalf("expected only non-zero channels to be written, got %d lines", len(sales))
	}
	for _, s := range sales {
		if s.GrossAmount.IsZero() || !s.GrossAmount.Equal(s.NetAmount) || !s.ReturnsAmount.IsZero() {
			t.Fatalf("unexpected sales line amounts: %+v", s)
		}
	}
	expenses, _ := f.store.GetExpenseLines(context.Background(), res.LogID)
	if len(expenses) != 2 {
		t.Fatalf("expected 2 expense lines, got %d", len(expenses))
	}
	for _, e := range expenses {
		if e.PaymentStatus != domain.PaymentPaid || len(e.Payments) != 1 || e.CategoryID == nil {
			t.Fatalf("expense line not fully paid and categorised: %+v", e)
		}
		if !e.Payments[0].Amount.Equal(e.Amount) {
			t.Fatalf("payment amount %s differs from expense %s", e.Payments[0].Amount, e.Amount)
		}
	}

	again := f.fetch(t, day.LogDate)
	assertDec(t, "refetched total sales", again.TotalSales, "700")
	assertDec(t, "refetched expected", again.Cash.ExpectedCash, "650")
	assertDec(t, "refetched difference", again.Cash.Difference, "-10")
	if len(again.CashExpenses) != 1 || len(again.OnlineExpenses) != 1 {
		t.Fatalf("expense split lost: %d cash, %d online", len(again.CashExpenses), len(again.OnlineExpenses))
	}

	audit := f.store.AuditRecords()
	if len(audit) != 1 {
		t.Fatalf("expected one audit record, got %d", len(audit))
	}
	rec := audit[0]
	if rec.Action != domain.ActionRecordCreate || rec.EntityType != "daily_sales_log" {
		t.Fatalf("unexpected audit action %s / %s", rec.Action, rec.EntityType)
	}
	if rec.EntityName != "KRM - 2024-05-10" {
		t.Fatalf("unexpected entity name %q", rec.EntityName)
	}
	if rec.Metadata["variance_type"] != "short" || rec.Metadata["action_type"] != "created" {
		t.Fatalf("unexpected audit metadata %v", rec.Metadata)
	}
	if rec.Metadata["filled_by_email"] != "asha@example.com" || rec.UserRole != "Store Manager" {
		t.Fatalf("audit actor not recorded: %v", rec.Metadata)
	}
}

func TestSave_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	day := editedDay(t, f, "2024-05-10")
	first := f.save(t, day)

	refetched := f.fetch(t, day.LogDate)
	second := f.save(t, *refetched)
	if second.Created {
		t.Fatalf("second save should update")
	}
	if second.LogID != first.LogID {
		t.Fatalf("log id changed on update: %s -> %s", first.LogID, second.LogID)
	}
	sales, _ := f.store.GetSalesLines(context.Background(), first.LogID)
	expenses, _ := f.store.GetExpenseLines(context.Background(), first.LogID)
	if len(sales) != 2 || len(expenses) != 2 {
		t.Fatalf("lines were appended instead of replaced: %d sales, %d expenses", len(sales), len(expenses))
	}

	third := f.fetch(t, day.LogDate)
	if !third.TotalSales.Equal(refetched.TotalSales) ||
		!third.TotalExpenses.Equal(refetched.TotalExpenses) ||
		!third.Cash.ExpectedCash.Equal(refetched.Cash.ExpectedCash) ||
		!third.Cash.Difference.Equal(refetched.Cash.Difference) {
		t.Fatalf("saving an unchanged day changed its totals")
	}

	audit := f.store.AuditRecords()
	if len(audit) != 2 || audit[1].Action != domain.ActionRecordUpdate {
		t.Fatalf("expected create then update audit records, got %d", len(audit))
	}
}

func TestSave_OpeningCarriesToNextDay(t *testing.T) {
	f := newFixture(t)
	f.save(t, editedDay(t, f, "2024-05-10"))

	next := f.fetch(t, mustDate(t, "2024-05-11"))
	if next.Cash.OpeningEditable {
		t.Fatalf("next day opening must not be editable")
	}
	assertDec(t, "next opening", next.Cash.OpeningCash, "640")
}

func TestSave_SkipsBlankExpensesSilently(t *testing.T) {
	f := newFixture(t)
	day := editedDay(t, f, "2024-05-10")
	day.CashExpenses = append(day.CashExpenses,
		register.ExpenseRow{ID: "blank", Description: "   ", Amount: dec("25"), IsCash: true},
		register.ExpenseRow{ID: "zero", Description: "Onions", Amount: decimal.Zero, IsCash: true},
	)
	res := f.save(t, day)
	if len(res.Warnings) != 0 {
		t.Fatalf("skipped rows must not warn, got %v", res.Warnings)
	}
	expenses, _ := f.store.GetExpenseLines(context.Background(), res.LogID)
	if len(expenses) != 2 {
		t.Fatalf("expected blank and zero rows to be skipped, got %d lines", len(expenses))
	}
}

func TestSave_RecomputesClientTotals(t *testing.T) {
	f := newFixture(t)
	day := editedDay(t, f, "2024-05-10")
	day.TotalSales = dec("1")
	day.Cash.ExpectedCash = dec("1")
	day.CashExpenses[0].IsCash = false

	res := f.save(t, day)
	assertDec(t, "saved total", res.Day.TotalSales, "700")
	assertDec(t, "saved expected", res.Day.Cash.ExpectedCash, "650")
	if !res.Day.CashExpenses[0].IsCash {
		t.Fatalf("cash list membership must decide IsCash")
	}
}

func TestSave_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	base := editedDay(t, f, "2024-05-10")

	negative := base.Clone()
	mustApply(t, negative.SetSalesAmount(domain.ChannelCash, dec("-800")))

	negativeExpense := base.Clone()
	negativeExpense.OnlineExpenses[0].Amount = dec("-500")

	unknownChannel := base.Clone()
	unknownChannel.Sales = append(unknownChannel.Sales, register.SalesRow{Channel: "card", Amount: dec("5")})

	noShop := base.Clone()
	noShop.ShopID = uuid.Nil

	badStatus := base.Clone()
	badStatus.Status = "archived"

	cases := map[string]register.Day{
		"negative total sales":    negative,
		"negative total expenses": negativeExpense,
		"unknown channel":         unknownChannel,
		"missing shop":            noShop,
		"unknown status":          badStatus,
	}
	for name, day := range cases {
		_, err := f.engine.Save(context.Background(), f.caller, day)
		var verr *register.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", name, err)
		}
	}
	if stored, _ := f.store.GetDay(context.Background(), f.shop.ID, base.LogDate.Time); stored != nil {
		t.Fatalf("rejected saves must not write")
	}
}

func TestSave_ConfigWarnings(t *testing.T) {
	f := newFixture(t)
	bare := uuid.New()
	shop := domain.Shop{ID: uuid.New(), OrgID: bare, Code: "NEW", Name: "New Shop", IsActive: true}
	f.store.AddShop(shop)
	user := domain.User{ID: uuid.New(), OrgID: &bare, Name: "Ravi", Email: "ravi@example.com", Role: domain.RoleStaff, IsActive: true}
	f.store.AddUser(user)
	f.store.AddPaymentMethod(domain.PaymentMethod{OrgID: bare, Name: "Cash", MethodType: domain.MethodCash, ForSales: true, IsActive: true})

	day := register.NewDay(shop.ID, mustDate(t, "2024-05-10"))
	mustApply(t, day.SetSalesAmount(domain.ChannelCash, dec("100")))
	mustApply(t, day.SetSalesAmount(domain.ChannelUPI, dec("50")))
	if _, err := day.AddExpense(register.ExpenseRow{Description: "Ice", Amount: dec("20"), IsCash: true}); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	res, err := f.engine.Save(context.Background(), register.Caller{UserID: user.ID}, day)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", res.Warnings)
	}
	for _, w := range res.Warnings {
		var cerr *register.ConfigError
		if !errors.As(w, &cerr) || register.WarningKind(w) != "config" {
			t.Fatalf("expected config warning, got %v", w)
		}
	}
	sales, _ := f.store.GetSalesLines(context.Background(), res.LogID)
	if len(sales) != 1 || !sales[0].IsCash {
		t.Fatalf("expected only the cash line to be written, got %d", len(sales))
	}
	expenses, _ := f.store.GetExpenseLines(context.Background(), res.LogID)
	if len(expenses) != 0 {
		t.Fatalf("expected the uncategorised expense to be skipped")
	}
	stored, _ := f.store.GetDay(context.Background(), shop.ID, day.LogDate.Time)
	assertDec(t, "summary keeps full totals", stored.GrossSales, "150")
}

func TestSave_AuditFailureIsAWarning(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("WriteAuditRecord", errBoom)

	res := f.save(t, editedDay(t, f, "2024-05-10"))
	if len(res.Warnings) != 1 || register.WarningKind(res.Warnings[0]) != "audit" {
		t.Fatalf("expected one audit warning, got %v", res.Warnings)
	}
	if stored, _ := f.store.GetDay(context.Background(), f.shop.ID, res.Day.LogDate.Time); stored == nil {
		t.Fatalf("save must persist even when the audit write fails")
	}
}

func TestSave_PersistFailureLeavesPriorState(t *testing.T) {
	cases := []struct {
		op   string
		step string
	}{
		{"UpsertDaySummary", "upsert summary"},
		{"ReplaceSalesLines", "replace sales lines"},
		{"ReplaceExpenseLines", "replace expense lines"},
		{"Commit", "commit"},
	}
	for _, tc := range cases {
		f := newFixture(t)
		first := f.save(t, editedDay(t, f, "2024-05-10"))

		changed := *f.fetch(t, first.Day.LogDate)
		mustApply(t, changed.SetSalesAmount(domain.ChannelSwiggy, dec("900")))
		changed.CashExpenses = nil
		changed.Recompute()

		f.store.FailOn(tc.op, errBoom)
		_, err := f.engine.Save(context.Background(), f.caller, changed)
		f.store.FailOn(tc.op, nil)

		var perr *register.PersistError
		if !errors.As(err, &perr) {
			t.Fatalf("%s: expected PersistError, got %v", tc.op, err)
		}
		if perr.Step != tc.step || !errors.Is(err, errBoom) {
			t.Fatalf("%s: unexpected step %q or cause %v", tc.op, perr.Step, err)
		}

		after := f.fetch(t, first.Day.LogDate)
		assertDec(t, tc.op+" total sales", after.TotalSales, "700")
		if len(after.CashExpenses) != 1 {
			t.Fatalf("%s: partial write leaked into stored expenses", tc.op)
		}
		if n := len(f.store.AuditRecords()); n != 1 {
			t.Fatalf("%s: failed save must not be audited, got %d records", tc.op, n)
		}
	}
}

func TestSave_StatusRules(t *testing.T) {
	f := newFixture(t)
	date := mustDate(t, "2024-05-10")
	f.store.PutDay(domain.DailySalesLog{OrgID: f.org, ShopID: f.shop.ID, LogDate: date.Time, Status: domain.StatusVerified}, nil, nil)

	day := register.NewDay(f.shop.ID, date)
	if _, err := f.engine.Save(context.Background(), f.caller, day); !errors.Is(err, register.ErrReadOnly) {
		t.Fatalf("verified day: expected ErrReadOnly, got %v", err)
	}

	other := mustDate(t, "2024-05-11")
	f.store.PutDay(domain.DailySalesLog{OrgID: f.org, ShopID: f.shop.ID, LogDate: other.Time, Status: domain.StatusSubmitted}, nil, nil)
	if _, err := f.engine.Save(context.Background(), f.caller, register.NewDay(f.shop.ID, other)); !errors.Is(err, register.ErrStatusRegression) {
		t.Fatalf("submitted day saved as draft: expected ErrStatusRegression, got %v", err)
	}

	locked := register.NewDay(f.shop.ID, mustDate(t, "2024-05-12"))
	locked.Status = domain.StatusLocked
	if _, err := f.engine.Save(context.Background(), f.caller, locked); !errors.Is(err, register.ErrReadOnly) {
		t.Fatalf("locked input: expected ErrReadOnly, got %v", err)
	}

	submitted := register.NewDay(f.shop.ID, other)
	submitted.Status = domain.StatusSubmitted
	if res, err := f.engine.Save(context.Background(), f.caller, submitted); err != nil || res.Created {
		t.Fatalf("same-status save should update, got %v", err)
	}
}

func TestSave_RequiresAuthenticatedCaller(t *testing.T) {
	f := newFixture(t)
	day := register.NewDay(f.shop.ID, mustDate(t, "2024-05-10"))
	_, err := f.engine.Save(context.Background(), register.Caller{}, day)
	var aerr *register.AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if len(f.store.AuditRecords()) != 0 {
		t.Fatalf("unauthenticated save must not write")
	}
}

func TestSave_Locking(t *testing.T) {
	f := newFixture(t)
	locks := &fakeLocker{}
	f.engine.Locks = locks
	f.save(t, editedDay(t, f, "2024-05-10"))
	if locks.locked != 1 || locks.released != 1 {
		t.Fatalf("expected one lock and release, got %d/%d", locks.locked, locks.released)
	}

	f.engine.Locks = &fakeLocker{err: errBoom}
	res := f.save(t, editedDay(t, f, "2024-05-11"))
	if res.LogID == uuid.Nil {
		t.Fatalf("save must proceed when the lock is unavailable")
	}
}

func TestSave_ZeroedChannelDisappears(t *testing.T) {
	f := newFixture(t)
	first := f.save(t, editedDay(t, f, "2024-05-10"))

	day := *f.fetch(t, first.Day.LogDate)
	mustApply(t, day.SetSalesAmount(domain.ChannelUPI, decimal.Zero))
	res := f.save(t, day)

	sales, _ := f.store.GetSalesLines(context.Background(), res.LogID)
	if len(sales) != 1 {
		t.Fatalf("expected only the cash line after zeroing UPI, got %d", len(sales))
	}
	if sales[0].PaymentChannel == nil || *sales[0].PaymentChannel != domain.ChannelCash {
		t.Fatalf("remaining line should be cash")
	}
}

func TestSave_OpeningCashFollowsPriorClosing(t *testing.T) {
	f := newFixture(t)
	f.save(t, editedDay(t, f, "2024-05-10"))

	next := *f.fetch(t, mustDate(t, "2024-05-11"))
	mustApply(t, next.SetSalesAmount(domain.ChannelCash, dec("100")))
	next.Cash.OpeningCash = dec("99999")

	res := f.save(t, next)
	assertDec(t, "saved opening", res.Day.Cash.OpeningCash, "640")
	assertDec(t, "saved expected", res.Day.Cash.ExpectedCash, "740")
	if res.Day.Cash.OpeningEditable {
		t.Fatalf("opening after a closed day must not be editable")
	}

	stored, _ := f.store.GetDay(context.Background(), f.shop.ID, next.LogDate.Time)
	assertDec(t, "stored opening", stored.OpeningCash.Decimal, "640")
	assertDec(t, "stored expected", stored.ExpectedClosing, "740")

	again := f.fetch(t, next.LogDate)
	assertDec(t, "refetched opening", again.Cash.OpeningCash, "640")
	assertDec(t, "refetched expected", again.Cash.ExpectedCash, "740")
}

func TestSave_BootstrapOpeningStaysEditable(t *testing.T) {
	f := newFixture(t)
	first := f.save(t, editedDay(t, f, "2024-05-10"))

	day := *f.fetch(t, first.Day.LogDate)
	if !day.Cash.OpeningEditable {
		t.Fatalf("first day opening must stay editable")
	}
	mustApply(t, day.SetOpeningCash(dec("300")))
	res := f.save(t, day)
	assertDec(t, "saved opening", res.Day.Cash.OpeningCash, "300")
	assertDec(t, "saved expected", res.Day.Cash.ExpectedCash, "750")
}

func TestSave_MissingStatusKeepsStoredStatus(t *testing.T) {
	f := newFixture(t)
	day := editedDay(t, f, "2024-05-10")
	mustApply(t, day.Advance(domain.StatusSubmitted))
	f.save(t, day)

	again := *f.fetch(t, day.LogDate)
	again.Status = ""
	res := f.save(t, again)
	if res.Day.Status != domain.StatusSubmitted {
		t.Fatalf("expected stored status to be kept, got %s", res.Day.Status)
	}

	fresh := register.NewDay(f.shop.ID, mustDate(t, "2024-05-11"))
	fresh.Status = ""
	if res := f.save(t, fresh); res.Day.Status != domain.StatusDraft {
		t.Fatalf("new day without status should be draft, got %s", res.Day.Status)
	}
}
