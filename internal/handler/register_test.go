package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trfc-backend/internal/domain"
	"trfc-backend/internal/register"
	"trfc-backend/internal/repository/memory"
	"trfc-backend/internal/server/authctx"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type testEnv struct {
	store  *memory.Store
	router http.Handler
	org    uuid.UUID
	shop   domain.Shop
	user   domain.User
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	now := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)
	store := memory.New()
	store.Now = func() time.Time { return now }

	org := uuid.New()
	shop := domain.Shop{ID: uuid.New(), OrgID: org, Code: "IND", Name: "Indiranagar", IsActive: true}
	store.AddShop(shop)
	user := domain.User{ID: uuid.New(), OrgID: &org, Name: "Meera", Email: "meera@example.com", Role: domain.RoleStaff, IsActive: true}
	store.AddUser(user)
	if err := store.SeedDefaults(context.Background(), org); err != nil {
		t.Fatalf("seed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := &register.Engine{Store: store, Users: store, Audit: store, Logger: logger, Now: func() time.Time { return now }}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("X-Test-Anonymous") == "" {
				req = req.WithContext(authctx.WithCurrentUser(req.Context(), authctx.CurrentUser{
					ID: user.ID, Email: user.Email, Role: user.Role,
				}))
			}
			next.ServeHTTP(w, req)
		})
	})
	RegisterHandler{Engine: engine, Logger: logger, Now: func() time.Time { return now }}.RegisterRoutes(r)
	ShopHandler{Engine: engine, Shops: store}.RegisterRoutes(r)
	ActivityLogHandler{Engine: engine, Repo: store}.RegisterRoutes(r)

	return &testEnv{store: store, router: r, org: org, shop: shop, user: user}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if dst != nil {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			t.Fatalf("decode data: %v (%s)", err, string(env.Data))
		}
	}
	return env
}

func (e *testEnv) registerURL(date string) string {
	return "/register?shopId=" + e.shop.ID.String() + "&date=" + date
}

func TestGetRegister(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, env.registerURL("2024-05-10"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var day register.Day
	decodeData(t, rec, &day)
	if day.ShopID != env.shop.ID || day.LogDate.String() != "2024-05-10" || len(day.Sales) != 5 {
		t.Fatalf("unexpected day %+v", day)
	}
	if !day.Cash.OpeningEditable {
		t.Fatalf("bootstrap day should allow editing the opening cash")
	}

	rec = env.do(t, http.MethodGet, "/register?shopId="+env.shop.ID.String(), nil)
	decodeData(t, rec, &day)
	if day.LogDate.String() != "2024-05-10" {
		t.Fatalf("date should default to today, got %s", day.LogDate)
	}

	if rec := env.do(t, http.MethodGet, "/register", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing shopId: expected 400, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, env.registerURL("10-05-2024"), nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: expected 400, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/register?shopId="+uuid.NewString(), nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown shop: expected 400, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, env.registerURL("2024-05-10"), nil)
	req.Header.Set("X-Test-Anonymous", "1")
	anon := httptest.NewRecorder()
	env.router.ServeHTTP(anon, req)
	if anon.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", anon.Code)
	}
}

func TestSaveRegister(t *testing.T) {
	env := newTestEnv(t)
	date, _ := register.ParseDate("2024-05-10")
	day := register.NewDay(env.shop.ID, date)
	day.Sales[0].Amount = decimal.NewFromInt(800)
	day.Sales[2].Amount = decimal.NewFromInt(450)
	day.CashExpenses = append(day.CashExpenses, register.ExpenseRow{ID: "tmp-1", Description: "Tomatoes", Amount: decimal.NewFromInt(120), IsCash: true})
	day.Cash.OpeningCash = decimal.NewFromInt(100)
	day.Cash.ActualCash = decimal.NewFromInt(780)

	rec := env.do(t, http.MethodPut, "/register", day)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		LogID    uuid.UUID           `json:"logId"`
		Created  bool                `json:"created"`
		Warnings []map[string]string `json:"warnings"`
		Day      register.Day        `json:"day"`
	}
	env1 := decodeData(t, rec, &out)
	if env1.Message != "Saved successfully" {
		t.Fatalf("unexpected message %q", env1.Message)
	}
	if !out.Created || out.LogID == uuid.Nil || out.Warnings == nil || len(out.Warnings) != 0 {
		t.Fatalf("unexpected save payload %+v", out)
	}
	if !out.Day.Cash.ExpectedCash.Equal(decimal.NewFromInt(780)) || !out.Day.Cash.Difference.IsZero() {
		t.Fatalf("expected 780 matched, got %s / %s", out.Day.Cash.ExpectedCash, out.Day.Cash.Difference)
	}

	rec = env.do(t, http.MethodPut, "/register", out.Day)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(t, http.MethodPut, "/register", map[string]any{"shopId": env.shop.ID, "logDate": "2024-05-11", "status": "locked"}); rec.Code != http.StatusConflict {
		t.Fatalf("locked input: expected 409, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/register", map[string]any{"shopId": env.shop.ID}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing date: expected 400, got %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodPut, "/register", strings.NewReader("{not json"))
	bad := httptest.NewRecorder()
	env.router.ServeHTTP(bad, req)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", bad.Code)
	}

	rec = env.do(t, http.MethodGet, "/logs?entityType=daily_sales_log", nil)
	var logs []map[string]any
	decodeData(t, rec, &logs)
	if len(logs) != 2 || logs[0]["action"] != string(domain.ActionRecordUpdate) {
		t.Fatalf("expected newest-first create/update logs, got %v", logs)
	}
}

func TestApplyEdits(t *testing.T) {
	env := newTestEnv(t)
	date, _ := register.ParseDate("2024-05-10")
	day := register.NewDay(env.shop.ID, date)
	day.Cash.OpeningEditable = true

	body := map[string]any{
		"day": day,
		"edits": []map[string]any{
			{"kind": "opening_cash", "value": "500"},
			{"kind": "sales_amount", "channel": "cash", "value": 1000},
			{"kind": "sales_amount", "channel": "zomato", "value": "250"},
			{"kind": "expense_add", "isCash": true, "description": "Onions", "value": "75"},
			{"kind": "actual_cash", "value": "1400"},
		},
	}
	rec := env.do(t, http.MethodPost, "/register/edits", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Day        register.Day `json:"day"`
		AddedIDs   []string     `json:"addedIds"`
		EditsCount int          `json:"editsCount"`
	}
	decodeData(t, rec, &out)
	if out.EditsCount != 5 || len(out.AddedIDs) != 1 {
		t.Fatalf("unexpected edit summary %+v", out)
	}
	if !out.Day.TotalSales.Equal(decimal.NewFromInt(1250)) {
		t.Fatalf("total sales expected 1250, got %s", out.Day.TotalSales)
	}
	if !out.Day.Cash.ExpectedCash.Equal(decimal.NewFromInt(1425)) || !out.Day.Cash.Difference.Equal(decimal.NewFromInt(-25)) {
		t.Fatalf("expected 1425 / -25, got %s / %s", out.Day.Cash.ExpectedCash, out.Day.Cash.Difference)
	}
	if stored, _ := env.store.GetDay(context.Background(), env.shop.ID, date.Time); stored != nil {
		t.Fatalf("edits must not persist")
	}

	locked := register.NewDay(env.shop.ID, date)
	rec = env.do(t, http.MethodPost, "/register/edits", map[string]any{
		"day":   locked,
		"edits": []map[string]any{{"kind": "opening_cash", "value": "1"}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("opening not editable: expected 409, got %d", rec.Code)
	}

	for name, edits := range map[string]any{
		"no edits":     []map[string]any{},
		"unknown kind": []map[string]any{{"kind": "delete_shop"}},
	} {
		rec := env.do(t, http.MethodPost, "/register/edits", map[string]any{"day": day, "edits": edits})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}

	rec = env.do(t, http.MethodPost, "/register/edits", map[string]any{
		"day":   day,
		"edits": []map[string]any{{"kind": "expense_remove", "expenseId": "nope"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing expense: expected 400, got %d", rec.Code)
	}
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t)
	for _, d := range []string{"2024-05-03", "2024-05-04"} {
		date, _ := register.ParseDate(d)
		day := register.NewDay(env.shop.ID, date)
		day.Sales[0].Amount = decimal.NewFromInt(300)
		if rec := env.do(t, http.MethodPut, "/register", day); rec.Code >= 300 {
			t.Fatalf("seed save %s failed: %d %s", d, rec.Code, rec.Body.String())
		}
	}

	rec := env.do(t, http.MethodGet, "/register/export?shopId="+env.shop.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "register_IND_20240501_20240510.csv") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	records, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 || records[0][0] != "Date" {
		t.Fatalf("expected header and two rows, got %v", records)
	}
	if records[1][0] != "2024-05-03" || records[1][2] != "300.00" {
		t.Fatalf("unexpected first row %v", records[1])
	}
	// The second day opens with the first day's (zero) closing and never counts cash.
	if records[2][len(records[2])-1] != "short" {
		t.Fatalf("expected short variance on the second day, got %v", records[2])
	}

	rec = env.do(t, http.MethodGet, "/register/export?format=xlsx&shopId="+env.shop.ID.String(), nil)
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("xlsx export failed: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/register/export?format=pdf&shopId="+env.shop.ID.String(), nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown format: expected 400, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/register/export?from=2024-05-10&to=2024-05-01&shopId="+env.shop.ID.String(), nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("reversed range: expected 400, got %d", rec.Code)
	}
}

func TestShopsAndSuggestions(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddShop(domain.Shop{ID: uuid.New(), OrgID: env.org, Code: "OLD", Name: "Closed", IsActive: false})
	env.store.AddShop(domain.Shop{ID: uuid.New(), OrgID: uuid.New(), Code: "EXT", Name: "Elsewhere", IsActive: true})

	rec := env.do(t, http.MethodGet, "/shops", nil)
	var shops []map[string]any
	decodeData(t, rec, &shops)
	if len(shops) != 1 || shops[0]["code"] != "IND" {
		t.Fatalf("expected only the active org shop, got %v", shops)
	}

	rec = env.do(t, http.MethodGet, "/expenses/suggestions", nil)
	var items []string
	decodeData(t, rec, &items)
	if len(items) != 16 {
		t.Fatalf("expected default suggestions, got %v", items)
	}
}

func TestRegisterStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&register.AuthError{Reason: "x"}, http.StatusUnauthorized},
		{&register.ValidationError{Field: "f", Reason: "r"}, http.StatusBadRequest},
		{register.ErrUnknownChannel, http.StatusBadRequest},
		{register.ErrUnknownEdit, http.StatusBadRequest},
		{register.ErrReadOnly, http.StatusConflict},
		{register.ErrStatusRegression, http.StatusConflict},
		{register.ErrOpeningNotEditable, http.StatusConflict},
		{&register.FetchError{Op: "day", Err: errors.New("down")}, http.StatusBadGateway},
		{&register.PersistError{Step: "commit", Err: errors.New("down")}, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := registerStatus(tc.err); got != tc.want {
			t.Fatalf("registerStatus(%v) expected %d, got %d", tc.err, tc.want, got)
		}
	}
}
