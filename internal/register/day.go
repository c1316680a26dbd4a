// Package register implements the daily register reconciliation engine:
// deriving a shop's day from stored sales, expense and cash rows, keeping
// every computed total in step with in-memory edits, and persisting the
// edited day back as one consistent set of rows.
package register

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"trfc-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// Date is a calendar date at UTC midnight, encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return NewDate(t), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type SalesRow struct {
	Channel         domain.Channel  `json:"id"`
	Source          string          `json:"source"`
	PaymentMethodID *uuid.UUID      `json:"paymentMethodId,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
}

type ExpenseRow struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	IsCash      bool            `json:"isCash"`
	CategoryID  *uuid.UUID      `json:"categoryId,omitempty"`
	VendorID    *uuid.UUID      `json:"vendorId,omitempty"`
}

// CashReconciliation holds the day's cash position. Only OpeningCash (when
// editable) and ActualCash are inputs; the rest are always derived.
type CashReconciliation struct {
	OpeningCash     decimal.Decimal `json:"openingCash"`
	TodaysCash      decimal.Decimal `json:"todaysCash"`
	TodaysExpense   decimal.Decimal `json:"todaysExpense"`
	ExpectedCash    decimal.Decimal `json:"expectedCash"`
	ActualCash      decimal.Decimal `json:"actualCash"`
	Difference      decimal.Decimal `json:"difference"`
	OpeningEditable bool            `json:"isOpeningEditable"`
}

// Day is the register aggregate for one (shop, date).
type Day struct {
	ID       *uuid.UUID            `json:"id,omitempty"`
	ShopID   uuid.UUID             `json:"shopId"`
	ShopCode string                `json:"shopCode,omitempty"`
	ShopName string                `json:"shopName,omitempty"`
	LogDate  Date                  `json:"logDate"`
	Status   domain.RegisterStatus `json:"status"`

	Sales      []SalesRow      `json:"sales"`
	TotalSales decimal.Decimal `json:"totalSales"`

	CashExpenses        []ExpenseRow    `json:"cashExpenses"`
	OnlineExpenses      []ExpenseRow    `json:"onlineExpenses"`
	TotalCashExpenses   decimal.Decimal `json:"totalCashExpenses"`
	TotalOnlineExpenses decimal.Decimal `json:"totalOnlineExpenses"`
	TotalExpenses       decimal.Decimal `json:"totalExpenses"`

	Cash CashReconciliation `json:"cashRecon"`

	LastSavedAt *time.Time `json:"lastSavedAt,omitempty"`
}

// NewDay returns an empty draft day with the five channels at zero.
func NewDay(shopID uuid.UUID, date Date) Day {
	sales := make([]SalesRow, 0, len(domain.Channels))
	for _, ch := range domain.Channels {
		sales = append(sales, SalesRow{Channel: ch, Source: ch.Label()})
	}
	return Day{
		ShopID:         shopID,
		LogDate:        date,
		Status:         domain.StatusDraft,
		Sales:          sales,
		CashExpenses:   []ExpenseRow{},
		OnlineExpenses: []ExpenseRow{},
	}
}

// SalesAmount returns the amount recorded for a channel.
func (d Day) SalesAmount(ch domain.Channel) decimal.Decimal {
	for _, row := range d.Sales {
		if row.Channel == ch {
			return row.Amount
		}
	}
	return decimal.Zero
}

// Clone returns a deep copy so edits on the copy never leak into d.
func (d Day) Clone() Day {
	out := d
	out.Sales = append([]SalesRow(nil), d.Sales...)
	out.CashExpenses = append([]ExpenseRow{}, d.CashExpenses...)
	out.OnlineExpenses = append([]ExpenseRow{}, d.OnlineExpenses...)
	return out
}

// ParseAmount reads a user-entered amount. Blank or non-numeric input is 0;
// thousands separators and a leading rupee sign are ignored.
func ParseAmount(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "₹")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

// RawAmount carries an amount exactly as the client sent it: a JSON number,
// a string, or null.
type RawAmount string

func (a *RawAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*a = RawAmount(s)
		return nil
	}
	*a = RawAmount(b)
	return nil
}

func (a RawAmount) Decimal() decimal.Decimal { return ParseAmount(string(a)) }

// VarianceType classifies actual − expected.
func VarianceType(difference decimal.Decimal) string {
	switch difference.Sign() {
	case 1:
		return "excess"
	case -1:
		return "short"
	}
	return "matched"
}

func sumExpenses(rows []ExpenseRow) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount)
	}
	return total
}
