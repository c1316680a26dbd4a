package register

import (
	"context"
	"log/slog"
	"time"

	"trfc-backend/internal/domain"
	"trfc-backend/internal/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reader is the read side of the data store.
type Reader interface {
	// GetDay returns nil, nil when no summary row exists for the key.
	GetDay(ctx context.Context, shopID uuid.UUID, date time.Time) (*domain.DailySalesLog, error)
	// GetOpeningCash returns the actual closing of the latest earlier day,
	// or nil when there is none.
	GetOpeningCash(ctx context.Context, shopID uuid.UUID, date time.Time) (*decimal.Decimal, error)
	GetSalesLines(ctx context.Context, dayID uuid.UUID) ([]domain.SalesEntry, error)
	GetExpenseLines(ctx context.Context, dayID uuid.UUID) ([]domain.Expense, error)
}

// Writer is bound to one transaction.
type Writer interface {
	// UpsertDaySummary writes the row keyed by (ShopID, LogDate) and returns its id.
	UpsertDaySummary(ctx context.Context, log domain.DailySalesLog) (uuid.UUID, error)
	ReplaceSalesLines(ctx context.Context, dayID uuid.UUID, lines []domain.SalesEntry) error
	ReplaceExpenseLines(ctx context.Context, dayID uuid.UUID, lines []domain.Expense) error
	// UpdateSummaryTotals rewrites the derived columns of an existing row.
	UpdateSummaryTotals(ctx context.Context, log domain.DailySalesLog) error
}

type Store interface {
	Reader
	// GetShop returns nil, nil for an unknown shop.
	GetShop(ctx context.Context, shopID uuid.UUID) (*domain.Shop, error)
	GetActivePaymentMethods(ctx context.Context, orgID uuid.UUID) ([]domain.PaymentMethod, error)
	// GetDefaultExpenseCategory returns nil when the org has none configured.
	GetDefaultExpenseCategory(ctx context.Context, orgID uuid.UUID) (*uuid.UUID, error)
	RecentExpenseDescriptions(ctx context.Context, orgID uuid.UUID, limit int) ([]string, error)
	ListDays(ctx context.Context, shopID uuid.UUID, from, to time.Time) ([]domain.DailySalesLog, error)
	// WithinTx runs fn in one transaction; any error from fn rolls it back.
	WithinTx(ctx context.Context, fn func(Writer) error) error
}

type Directory interface {
	// GetUser returns nil, nil for an unknown user.
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type AuditSink interface {
	WriteAuditRecord(ctx context.Context, entry domain.ActivityLog) error
}

// Cache holds fetched days. Invalidation is per shop because a saved day
// feeds the opening cash of every later day of that shop.
//
// Get reports the shop generation it looked under, hit or miss. A day derived
// after a miss is stored with Set under that same generation, so a save that
// invalidates the shop in between leaves the late write unreachable.
type Cache interface {
	Get(ctx context.Context, shopID uuid.UUID, date Date) (day *Day, gen int64, err error)
	Set(ctx context.Context, day Day, gen int64) error
	InvalidateShop(ctx context.Context, shopID uuid.UUID) error
}

// Locker serializes saves of one (shop, date). It is best effort: a save
// proceeds without the lock when it cannot be obtained.
type Locker interface {
	Lock(ctx context.Context, shopID uuid.UUID, date Date) (release func(), err error)
}

// Caller is the authenticated identity behind an engine call.
type Caller struct {
	UserID uuid.UUID
	Email  string
}

type actor struct {
	user  domain.User
	orgID uuid.UUID
	email string
}

// Engine wires the reconciliation rules to their collaborators. Every
// dependency is explicit; Cache, Locks, Audit, Logger and Now are optional.
type Engine struct {
	Store  Store
	Users  Directory
	Audit  AuditSink
	Cache  Cache
	Locks  Locker
	Logger *slog.Logger
	Now    func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Engine) lock(ctx context.Context, shopID uuid.UUID, date Date) func() {
	if e.Locks == nil {
		return func() {}
	}
	release, err := e.Locks.Lock(ctx, shopID, date)
	if err != nil {
		e.log().Warn("register save lock not obtained; proceeding without lock", "shop", shopID, "date", date.String(), "err", err)
		return func() {}
	}
	return release
}

func (e *Engine) resolveActor(ctx context.Context, caller Caller) (*actor, error) {
	if caller.UserID == uuid.Nil {
		return nil, &AuthError{Reason: "not authenticated"}
	}
	user, err := e.Users.GetUser(ctx, caller.UserID)
	if err != nil {
		return nil, &FetchError{Op: "user", Err: err}
	}
	if user == nil {
		return nil, &AuthError{Reason: "unknown user"}
	}
	if user.OrgID == nil || *user.OrgID == uuid.Nil {
		return nil, &AuthError{Reason: "user has no organization"}
	}
	email := caller.Email
	if email == "" {
		email = user.Email
	}
	return &actor{user: *user, orgID: *user.OrgID, email: email}, nil
}

// OrgOf resolves the organization the caller acts for.
func (e *Engine) OrgOf(ctx context.Context, caller Caller) (uuid.UUID, error) {
	a, err := e.resolveActor(ctx, caller)
	if err != nil {
		return uuid.Nil, err
	}
	return a.orgID, nil
}

// shopFor loads the shop and checks it belongs to the actor's org.
func (e *Engine) shopFor(ctx context.Context, a *actor, shopID uuid.UUID) (*domain.Shop, error) {
	shop, err := e.Store.GetShop(ctx, shopID)
	if err != nil {
		return nil, &FetchError{Op: "shop", Err: err}
	}
	if shop == nil {
		return nil, &ValidationError{Field: "shopId", Reason: ErrUnknownShop.Error()}
	}
	if shop.OrgID != a.orgID {
		return nil, &AuthError{Reason: "shop belongs to another organization"}
	}
	return shop, nil
}

// Fetch returns the fully derived day for (shopID, date).
func (e *Engine) Fetch(ctx context.Context, caller Caller, shopID uuid.UUID, date Date) (*Day, error) {
	a, err := e.resolveActor(ctx, caller)
	if err != nil {
		return nil, err
	}
	shop, err := e.shopFor(ctx, a, shopID)
	if err != nil {
		return nil, err
	}

	cacheable := false
	var gen int64
	if e.Cache != nil {
		cached, g, err := e.Cache.Get(ctx, shopID, date)
		switch {
		case err != nil:
			e.log().Warn("register cache read failed", "shop", shopID, "date", date.String(), "err", err)
		case cached != nil:
			metrics.ObserveFetch("cache")
			return cached, nil
		default:
			cacheable, gen = true, g
		}
	}

	day, err := e.derive(ctx, shopID, date)
	if err != nil {
		return nil, err
	}
	day.ShopCode = shop.Code
	day.ShopName = shop.Name
	metrics.ObserveFetch("store")

	if cacheable {
		if err := e.Cache.Set(ctx, *day, gen); err != nil {
			e.log().Warn("register cache write failed", "shop", shopID, "date", date.String(), "err", err)
		}
	}
	return day, nil
}

func (e *Engine) derive(ctx context.Context, shopID uuid.UUID, date Date) (*Day, error) {
	stored, err := e.Store.GetDay(ctx, shopID, date.Time)
	if err != nil {
		return nil, &FetchError{Op: "day", Err: err}
	}
	prior, err := e.Store.GetOpeningCash(ctx, shopID, date.Time)
	if err != nil {
		return nil, &FetchError{Op: "opening cash", Err: err}
	}

	day := NewDay(shopID, date)
	day.Cash.OpeningEditable = prior == nil
	if prior != nil {
		day.Cash.OpeningCash = *prior
	}
	if stored == nil {
		day.Recompute()
		return &day, nil
	}

	id := stored.ID
	day.ID = &id
	if stored.Status.Valid() {
		day.Status = stored.Status
	}
	// A stored opening may have been typed in by hand on a bootstrap day.
	if stored.OpeningCash.Valid {
		day.Cash.OpeningCash = stored.OpeningCash.Decimal
	}
	if stored.ActualClosing.Valid {
		day.Cash.ActualCash = stored.ActualClosing.Decimal
	}
	if !stored.UpdatedAt.IsZero() {
		saved := stored.UpdatedAt
		day.LastSavedAt = &saved
	}

	sales, err := e.Store.GetSalesLines(ctx, stored.ID)
	if err != nil {
		return nil, &FetchError{Op: "sales lines", Err: err}
	}
	for _, entry := range sales {
		idx := day.salesIndex(ClassifySalesEntry(entry))
		day.Sales[idx].Amount = day.Sales[idx].Amount.Add(entry.NetAmount)
		methodID := entry.PaymentMethodID
		day.Sales[idx].PaymentMethodID = &methodID
	}

	expenses, err := e.Store.GetExpenseLines(ctx, stored.ID)
	if err != nil {
		return nil, &FetchError{Op: "expense lines", Err: err}
	}
	for _, exp := range expenses {
		row := ExpenseRow{
			ID:          exp.ID.String(),
			Description: exp.Description,
			Amount:      exp.Amount,
			IsCash:      paidInCash(exp),
			CategoryID:  exp.CategoryID,
			VendorID:    exp.VendorID,
		}
		if row.IsCash {
			day.CashExpenses = append(day.CashExpenses, row)
		} else {
			day.OnlineExpenses = append(day.OnlineExpenses, row)
		}
	}

	day.Recompute()
	return &day, nil
}

// paidInCash treats an expense without payment records as cash.
func paidInCash(exp domain.Expense) bool {
	if len(exp.Payments) == 0 {
		return true
	}
	for _, p := range exp.Payments {
		if p.IsCash {
			return true
		}
	}
	return false
}
