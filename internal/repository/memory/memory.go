// Package memory is an in-process implementation of the register store,
// user directory and audit sink. Transactions copy the state and swap it in
// on commit, so a failed save leaves no trace.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"trfc-backend/internal/domain"
	"trfc-backend/internal/register"
	"trfc-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type dayKey struct {
	shop uuid.UUID
	date string
}

type state struct {
	shops      map[uuid.UUID]domain.Shop
	users      map[uuid.UUID]domain.User
	methods    []domain.PaymentMethod
	categories []domain.ExpenseCategory
	logs       map[dayKey]domain.DailySalesLog
	sales      map[uuid.UUID][]domain.SalesEntry
	expenses   map[uuid.UUID][]domain.Expense
	audit      []domain.ActivityLog
}

func (s *state) clone() *state {
	out := &state{
		shops:      make(map[uuid.UUID]domain.Shop, len(s.shops)),
		users:      make(map[uuid.UUID]domain.User, len(s.users)),
		methods:    append([]domain.PaymentMethod(nil), s.methods...),
		categories: append([]domain.ExpenseCategory(nil), s.categories...),
		logs:       make(map[dayKey]domain.DailySalesLog, len(s.logs)),
		sales:      make(map[uuid.UUID][]domain.SalesEntry, len(s.sales)),
		expenses:   make(map[uuid.UUID][]domain.Expense, len(s.expenses)),
		audit:      append([]domain.ActivityLog(nil), s.audit...),
	}
	for k, v := range s.shops {
		out.shops[k] = v
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.logs {
		out.logs[k] = v
	}
	for k, v := range s.sales {
		out.sales[k] = append([]domain.SalesEntry(nil), v...)
	}
	for k, v := range s.expenses {
		out.expenses[k] = cloneExpenses(v)
	}
	return out
}

func cloneExpenses(in []domain.Expense) []domain.Expense {
	out := make([]domain.Expense, len(in))
	for i, e := range in {
		e.Payments = append([]domain.ExpensePayment(nil), e.Payments...)
		out[i] = e
	}
	return out
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	st    *state
	fails map[string]error
	Now   func() time.Time
}

var (
	_ register.Store     = (*Store)(nil)
	_ register.Directory = (*Store)(nil)
	_ register.AuditSink = (*Store)(nil)
)

func New() *Store {
	return &Store{
		st: &state{
			shops:    map[uuid.UUID]domain.Shop{},
			users:    map[uuid.UUID]domain.User{},
			logs:     map[dayKey]domain.DailySalesLog{},
			sales:    map[uuid.UUID][]domain.SalesEntry{},
			expenses: map[uuid.UUID][]domain.Expense{},
		},
		fails: map[string]error{},
	}
}

// FailOn makes the named operation (a method name, or "Commit") return err
// until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fails, op)
		return
	}
	s.fails[op] = err
}

func (s *Store) failure(op string) error { return s.fails[op] }

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func key(shopID uuid.UUID, date time.Time) dayKey {
	return dayKey{shop: shopID, date: date.Format(register.DateLayout)}
}

// Fixtures

func (s *Store) AddShop(shop domain.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if shop.ID == uuid.Nil {
		shop.ID = uuid.New()
	}
	s.st.shops[shop.ID] = shop
}

func (s *Store) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.st.users[u.ID] = u
}

func (s *Store) AddPaymentMethod(m domain.PaymentMethod) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	s.st.methods = append(s.st.methods, m)
	return m.ID
}

func (s *Store) AddExpenseCategory(c domain.ExpenseCategory) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.st.categories = append(s.st.categories, c)
	return c.ID
}

// SeedDefaults installs the same catalog as repository.OrgSeeder.
func (s *Store) SeedDefaults(_ context.Context, orgID uuid.UUID) error {
	for _, m := range repository.DefaultPaymentMethods(orgID) {
		s.mu.Lock()
		exists := false
		for _, have := range s.st.methods {
			if have.OrgID == orgID && have.Name == m.Name {
				exists = true
				break
			}
		}
		s.mu.Unlock()
		if !exists {
			s.AddPaymentMethod(m)
		}
	}
	s.mu.Lock()
	for _, c := range s.st.categories {
		if c.OrgID == orgID && c.Name == repository.DefaultExpenseCategory {
			s.mu.Unlock()
			return nil
		}
	}
	s.mu.Unlock()
	s.AddExpenseCategory(domain.ExpenseCategory{OrgID: orgID, Name: repository.DefaultExpenseCategory, IsActive: true})
	return nil
}

// PutDay stores a summary with its lines as if saved earlier.
func (s *Store) PutDay(l domain.DailySalesLog, sales []domain.SalesEntry, expenses []domain.Expense) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = s.now()
		l.CreatedAt = l.UpdatedAt
	}
	s.st.logs[key(l.ShopID, l.LogDate)] = l
	for i := range sales {
		if sales[i].ID == uuid.Nil {
			sales[i].ID = uuid.New()
		}
		sales[i].DailyLogID = l.ID
	}
	for i := range expenses {
		if expenses[i].ID == uuid.Nil {
			expenses[i].ID = uuid.New()
		}
		expenses[i].DailyLogID = l.ID
	}
	s.st.sales[l.ID] = append([]domain.SalesEntry(nil), sales...)
	s.st.expenses[l.ID] = cloneExpenses(expenses)
	return l.ID
}

// AuditRecords returns every activity row written so far.
func (s *Store) AuditRecords() []domain.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ActivityLog(nil), s.st.audit...)
}

// register.Reader

func (s *Store) GetDay(_ context.Context, shopID uuid.UUID, date time.Time) (*domain.DailySalesLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetDay"); err != nil {
		return nil, err
	}
	l, ok := s.st.logs[key(shopID, date)]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (s *Store) GetOpeningCash(_ context.Context, shopID uuid.UUID, date time.Time) (*decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetOpeningCash"); err != nil {
		return nil, err
	}
	target := date.Format(register.DateLayout)
	var (
		best     string
		prior    domain.DailySalesLog
		hasPrior bool
	)
	for k, l := range s.st.logs {
		if k.shop != shopID || k.date >= target {
			continue
		}
		if !hasPrior || k.date > best {
			best, prior, hasPrior = k.date, l, true
		}
	}
	if !hasPrior || !prior.ActualClosing.Valid {
		return nil, nil
	}
	v := prior.ActualClosing.Decimal
	return &v, nil
}

func (s *Store) GetSalesLines(_ context.Context, dayID uuid.UUID) ([]domain.SalesEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetSalesLines"); err != nil {
		return nil, err
	}
	lines := append([]domain.SalesEntry(nil), s.st.sales[dayID]...)
	for i := range lines {
		for _, m := range s.st.methods {
			if m.ID == lines[i].PaymentMethodID {
				lines[i].PaymentMethodName = m.Name
				lines[i].PaymentChannel = m.Channel
				break
			}
		}
	}
	return lines, nil
}

func (s *Store) GetExpenseLines(_ context.Context, dayID uuid.UUID) ([]domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetExpenseLines"); err != nil {
		return nil, err
	}
	return cloneExpenses(s.st.expenses[dayID]), nil
}

// Catalog reads

func (s *Store) GetShop(_ context.Context, shopID uuid.UUID) (*domain.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetShop"); err != nil {
		return nil, err
	}
	shop, ok := s.st.shops[shopID]
	if !ok {
		return nil, nil
	}
	return &shop, nil
}

// ListActive returns the org's active shops, as repository.ShopRepository does.
func (s *Store) ListActive(_ context.Context, orgID uuid.UUID) ([]domain.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Shop
	for _, shop := range s.st.shops {
		if shop.OrgID == orgID && shop.IsActive {
			out = append(out, shop)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) GetActivePaymentMethods(_ context.Context, orgID uuid.UUID) ([]domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetActivePaymentMethods"); err != nil {
		return nil, err
	}
	var out []domain.PaymentMethod
	for _, m := range s.st.methods {
		if m.OrgID == orgID && m.IsActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) GetDefaultExpenseCategory(_ context.Context, orgID uuid.UUID) (*uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetDefaultExpenseCategory"); err != nil {
		return nil, err
	}
	for _, c := range s.st.categories {
		if c.OrgID == orgID && c.IsActive {
			id := c.ID
			return &id, nil
		}
	}
	return nil, nil
}

func (s *Store) RecentExpenseDescriptions(_ context.Context, orgID uuid.UUID, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("RecentExpenseDescriptions"); err != nil {
		return nil, err
	}
	var all []domain.Expense
	for _, list := range s.st.expenses {
		for _, e := range list {
			if e.OrgID == orgID && strings.TrimSpace(e.Description) != "" {
				all = append(all, e)
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	var out []string
	for _, e := range all {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, e.Description)
	}
	return out, nil
}

func (s *Store) ListDays(_ context.Context, shopID uuid.UUID, from, to time.Time) ([]domain.DailySalesLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListDays"); err != nil {
		return nil, err
	}
	lo, hi := from.Format(register.DateLayout), to.Format(register.DateLayout)
	var out []domain.DailySalesLog
	for k, l := range s.st.logs {
		if k.shop == shopID && k.date >= lo && k.date <= hi {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogDate.Before(out[j].LogDate) })
	return out, nil
}

// WithinTx applies fn to a copy of the state and keeps the copy only when
// fn and the commit both succeed. Transactions are serialized.
func (s *Store) WithinTx(_ context.Context, fn func(register.Writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := s.st.clone()
	if err := fn(&writer{s: s, st: draft}); err != nil {
		return err
	}
	if err := s.failure("Commit"); err != nil {
		return err
	}
	s.st = draft
	return nil
}

type writer struct {
	s  *Store
	st *state
}

func (w *writer) UpsertDaySummary(_ context.Context, l domain.DailySalesLog) (uuid.UUID, error) {
	if err := w.s.failure("UpsertDaySummary"); err != nil {
		return uuid.Nil, err
	}
	k := key(l.ShopID, l.LogDate)
	now := w.s.now()
	if existing, ok := w.st.logs[k]; ok {
		l.ID = existing.ID
		l.CreatedAt = existing.CreatedAt
	} else {
		l.ID = uuid.New()
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	w.st.logs[k] = l
	return l.ID, nil
}

func (w *writer) ReplaceSalesLines(_ context.Context, dayID uuid.UUID, lines []domain.SalesEntry) error {
	if err := w.s.failure("ReplaceSalesLines"); err != nil {
		return err
	}
	out := make([]domain.SalesEntry, len(lines))
	for i, l := range lines {
		l.ID = uuid.New()
		l.DailyLogID = dayID
		l.CreatedAt = w.s.now()
		out[i] = l
	}
	w.st.sales[dayID] = out
	return nil
}

func (w *writer) ReplaceExpenseLines(_ context.Context, dayID uuid.UUID, lines []domain.Expense) error {
	if err := w.s.failure("ReplaceExpenseLines"); err != nil {
		return err
	}
	out := cloneExpenses(lines)
	for i := range out {
		out[i].ID = uuid.New()
		out[i].DailyLogID = dayID
		out[i].CreatedAt = w.s.now()
		for j := range out[i].Payments {
			out[i].Payments[j].ID = uuid.New()
			out[i].Payments[j].ExpenseID = out[i].ID
		}
	}
	w.st.expenses[dayID] = out
	return nil
}

func (w *writer) UpdateSummaryTotals(_ context.Context, l domain.DailySalesLog) error {
	if err := w.s.failure("UpdateSummaryTotals"); err != nil {
		return err
	}
	for k, existing := range w.st.logs {
		if existing.ID != l.ID {
			continue
		}
		existing.GrossSales = l.GrossSales
		existing.NetSales = l.NetSales
		existing.CashSales = l.CashSales
		existing.TotalCashExpenses = l.TotalCashExpenses
		existing.TotalOnlineExpenses = l.TotalOnlineExpenses
		existing.ExpectedClosing = l.ExpectedClosing
		existing.Variance = l.Variance
		existing.UpdatedAt = w.s.now()
		w.st.logs[k] = existing
		return nil
	}
	return repository.ErrNotFound
}

// register.Directory and service.UserStore

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetUser"); err != nil {
		return nil, err
	}
	u, ok := s.st.users[id]
	if !ok || !u.IsActive {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.st.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

// register.AuditSink

func (s *Store) WriteAuditRecord(_ context.Context, entry domain.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("WriteAuditRecord"); err != nil {
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	s.st.audit = append(s.st.audit, entry)
	return nil
}

// ListForOrg mirrors repository.ActivityLogRepository.ListForOrg.
func (s *Store) ListForOrg(_ context.Context, orgID uuid.UUID, f repository.ActivityLogFilter) ([]domain.ActivityLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []domain.ActivityLog
	for i := len(s.st.audit) - 1; i >= 0 && len(out) < limit; i-- {
		l := s.st.audit[i]
		if l.OrgID != orgID {
			continue
		}
		if f.ShopID != nil && (l.ShopID == nil || *l.ShopID != *f.ShopID) {
			continue
		}
		if f.EntityType != "" && l.EntityType != f.EntityType {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
