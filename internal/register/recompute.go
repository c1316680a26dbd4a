package register

import (
	"strings"

	"trfc-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Every mutation below touches exactly one input field and then refreshes
// the totals that depend on it, so no stale derived value is observable.

func (d *Day) writable() error {
	if d.Status.ReadOnly() {
		return ErrReadOnly
	}
	return nil
}

// SetSalesAmount edits one channel. Only the cash channel moves the cash position.
func (d *Day) SetSalesAmount(ch domain.Channel, amount decimal.Decimal) error {
	if err := d.writable(); err != nil {
		return err
	}
	idx := d.salesIndex(ch)
	if idx < 0 {
		return ErrUnknownChannel
	}
	d.Sales[idx].Amount = amount
	d.recomputeSalesTotal()
	if ch == domain.ChannelCash {
		d.syncCashSales()
		d.recomputeExpected()
		d.recomputeDifference()
	}
	return nil
}

// AddExpense appends a row to the cash or online list and returns its id.
func (d *Day) AddExpense(row ExpenseRow) (string, error) {
	if err := d.writable(); err != nil {
		return "", err
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.IsCash {
		d.CashExpenses = append(d.CashExpenses, row)
	} else {
		d.OnlineExpenses = append(d.OnlineExpenses, row)
	}
	d.recomputeExpenses(row.IsCash)
	return row.ID, nil
}

func (d *Day) SetExpenseAmount(id string, amount decimal.Decimal) error {
	if err := d.writable(); err != nil {
		return err
	}
	row, isCash := d.findExpense(id)
	if row == nil {
		return ErrExpenseNotFound
	}
	row.Amount = amount
	d.recomputeExpenses(isCash)
	return nil
}

func (d *Day) SetExpenseDescription(id, description string) error {
	if err := d.writable(); err != nil {
		return err
	}
	row, _ := d.findExpense(id)
	if row == nil {
		return ErrExpenseNotFound
	}
	row.Description = strings.TrimSpace(description)
	return nil
}

func (d *Day) RemoveExpense(id string) error {
	if err := d.writable(); err != nil {
		return err
	}
	if i := indexExpense(d.CashExpenses, id); i >= 0 {
		d.CashExpenses = append(d.CashExpenses[:i:i], d.CashExpenses[i+1:]...)
		d.recomputeExpenses(true)
		return nil
	}
	if i := indexExpense(d.OnlineExpenses, id); i >= 0 {
		d.OnlineExpenses = append(d.OnlineExpenses[:i:i], d.OnlineExpenses[i+1:]...)
		d.recomputeExpenses(false)
		return nil
	}
	return ErrExpenseNotFound
}

// SetActualCash records the counted closing cash; expected cash is unaffected.
func (d *Day) SetActualCash(amount decimal.Decimal) error {
	if err := d.writable(); err != nil {
		return err
	}
	d.Cash.ActualCash = amount
	d.recomputeDifference()
	return nil
}

// SetOpeningCash is allowed only when no previous day exists for the shop.
func (d *Day) SetOpeningCash(amount decimal.Decimal) error {
	if err := d.writable(); err != nil {
		return err
	}
	if !d.Cash.OpeningEditable {
		return ErrOpeningNotEditable
	}
	d.Cash.OpeningCash = amount
	d.recomputeExpected()
	d.recomputeDifference()
	return nil
}

// Advance moves the day to next, which must not be behind the current status.
func (d *Day) Advance(next domain.RegisterStatus) error {
	if err := d.writable(); err != nil {
		return err
	}
	if !next.Valid() {
		return &ValidationError{Field: "status", Reason: "unknown status " + string(next)}
	}
	if next.Rank() < d.Status.Rank() {
		return ErrStatusRegression
	}
	d.Status = next
	return nil
}

// Recompute rebuilds every derived field from the inputs.
func (d *Day) Recompute() {
	d.recomputeSalesTotal()
	d.syncCashSales()
	d.TotalCashExpenses = sumExpenses(d.CashExpenses)
	d.TotalOnlineExpenses = sumExpenses(d.OnlineExpenses)
	d.TotalExpenses = d.TotalCashExpenses.Add(d.TotalOnlineExpenses)
	d.Cash.TodaysExpense = d.TotalCashExpenses
	d.recomputeExpected()
	d.recomputeDifference()
}

func (d *Day) recomputeSalesTotal() {
	total := decimal.Zero
	for _, row := range d.Sales {
		total = total.Add(row.Amount)
	}
	d.TotalSales = total
}

func (d *Day) syncCashSales() {
	d.Cash.TodaysCash = d.SalesAmount(domain.ChannelCash)
}

// recomputeExpenses refreshes one list's subtotal. Online expenses never
// reach the cash position.
func (d *Day) recomputeExpenses(cash bool) {
	if cash {
		d.TotalCashExpenses = sumExpenses(d.CashExpenses)
		d.Cash.TodaysExpense = d.TotalCashExpenses
	} else {
		d.TotalOnlineExpenses = sumExpenses(d.OnlineExpenses)
	}
	d.TotalExpenses = d.TotalCashExpenses.Add(d.TotalOnlineExpenses)
	if cash {
		d.recomputeExpected()
		d.recomputeDifference()
	}
}

func (d *Day) recomputeExpected() {
	d.Cash.ExpectedCash = d.Cash.OpeningCash.Add(d.Cash.TodaysCash).Sub(d.Cash.TodaysExpense)
}

func (d *Day) recomputeDifference() {
	d.Cash.Difference = d.Cash.ActualCash.Sub(d.Cash.ExpectedCash)
}

func (d *Day) salesIndex(ch domain.Channel) int {
	for i := range d.Sales {
		if d.Sales[i].Channel == ch {
			return i
		}
	}
	return -1
}

func (d *Day) findExpense(id string) (*ExpenseRow, bool) {
	if i := indexExpense(d.CashExpenses, id); i >= 0 {
		return &d.CashExpenses[i], true
	}
	if i := indexExpense(d.OnlineExpenses, id); i >= 0 {
		return &d.OnlineExpenses[i], false
	}
	return nil, false
}

func indexExpense(rows []ExpenseRow, id string) int {
	for i := range rows {
		if rows[i].ID == id {
			return i
		}
	}
	return -1
}
