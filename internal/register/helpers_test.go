package register_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"trfc-backend/internal/domain"
	"trfc-backend/internal/register"
	"trfc-backend/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var errBoom = errors.New("boom")

type fixture struct {
	store  *memory.Store
	engine *register.Engine
	org    uuid.UUID
	shop   domain.Shop
	user   domain.User
	caller register.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2024, 5, 10, 18, 30, 0, 0, time.UTC)
	store := memory.New()
	store.Now = func() time.Time { return now }

	org := uuid.New()
	shop := domain.Shop{ID: uuid.New(), OrgID: org, Code: "KRM", Name: "Koramangala", IsActive: true}
	store.AddShop(shop)
	user := domain.User{
		ID:       uuid.New(),
		OrgID:    &org,
		Name:     "Asha",
		Email:    "asha@example.com",
		Role:     domain.RoleManager,
		RoleName: "Store Manager",
		IsActive: true,
	}
	store.AddUser(user)
	if err := store.SeedDefaults(context.Background(), org); err != nil {
		t.Fatalf("seed defaults: %v", err)
	}

	engine := &register.Engine{
		Store:  store,
		Users:  store,
		Audit:  store,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return now },
	}
	return &fixture{
		store:  store,
		engine: engine,
		org:    org,
		shop:   shop,
		user:   user,
		caller: register.Caller{UserID: user.ID, Email: user.Email},
	}
}

func (f *fixture) methodID(t *testing.T, name string) uuid.UUID {
	t.Helper()
	methods, err := f.store.GetActivePaymentMethods(context.Background(), f.org)
	if err != nil {
		t.Fatalf("payment methods: %v", err)
	}
	for _, m := range methods {
		if m.Name == name {
			return m.ID
		}
	}
	t.Fatalf("payment method %q not seeded", name)
	return uuid.Nil
}

func (f *fixture) fetch(t *testing.T, d register.Date) *register.Day {
	t.Helper()
	day, err := f.engine.Fetch(context.Background(), f.caller, f.shop.ID, d)
	if err != nil {
		t.Fatalf("Fetch(%s) error: %v", d, err)
	}
	return day
}

func (f *fixture) save(t *testing.T, day register.Day) *register.SaveResult {
	t.Helper()
	res, err := f.engine.Save(context.Background(), f.caller, day)
	if err != nil {
		t.Fatalf("Save(%s) error: %v", day.LogDate, err)
	}
	return res
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustDate(t *testing.T, s string) register.Date {
	t.Helper()
	d, err := register.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func assertDec(t *testing.T, field string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s expected %s, got %s", field, want, got.String())
	}
}

func mustApply(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
}

// mapCache is an in-process register.Cache with the same generation keyed
// invalidation as the Redis one.
type mapCache struct {
	mu          sync.Mutex
	gens        map[uuid.UUID]int64
	days        map[string]register.Day
	invalidated int
}

func newMapCache() *mapCache {
	return &mapCache{gens: map[uuid.UUID]int64{}, days: map[string]register.Day{}}
}

func cacheKey(shopID uuid.UUID, gen int64, d register.Date) string {
	return fmt.Sprintf("%s/g%d/%s", shopID, gen, d)
}

func (c *mapCache) Get(_ context.Context, shopID uuid.UUID, d register.Date) (*register.Day, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.gens[shopID]
	day, ok := c.days[cacheKey(shopID, gen, d)]
	if !ok {
		return nil, gen, nil
	}
	out := day.Clone()
	return &out, gen, nil
}

func (c *mapCache) Set(_ context.Context, day register.Day, gen int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.days[cacheKey(day.ShopID, gen, day.LogDate)] = day.Clone()
	return nil
}

func (c *mapCache) InvalidateShop(_ context.Context, shopID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[shopID]++
	c.invalidated++
	return nil
}

// hookStore runs afterDayRead once, right after the first GetDay returns.
type hookStore struct {
	register.Store
	afterDayRead func()
	fired        bool
}

func (s *hookStore) GetDay(ctx context.Context, shopID uuid.UUID, date time.Time) (*domain.DailySalesLog, error) {
	day, err := s.Store.GetDay(ctx, shopID, date)
	if !s.fired && s.afterDayRead != nil {
		s.fired = true
		s.afterDayRead()
	}
	return day, err
}

type fakeLocker struct {
	mu       sync.Mutex
	err      error
	locked   int
	released int
}

func (l *fakeLocker) Lock(context.Context, uuid.UUID, register.Date) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.locked++
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}
