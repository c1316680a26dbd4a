package register

import (
	"trfc-backend/internal/domain"

	"github.com/google/uuid"
)

type EditKind string

const (
	EditSalesAmount        EditKind = "sales_amount"
	EditExpenseAdd         EditKind = "expense_add"
	EditExpenseAmount      EditKind = "expense_amount"
	EditExpenseDescription EditKind = "expense_description"
	EditExpenseRemove      EditKind = "expense_remove"
	EditActualCash         EditKind = "actual_cash"
	EditOpeningCash        EditKind = "opening_cash"
	EditStatus             EditKind = "status"
)

// Edit is one change to a single field of a day, as sent by the sheet UI.
type Edit struct {
	Kind        EditKind              `json:"kind" validate:"required,oneof=sales_amount expense_add expense_amount expense_description expense_remove actual_cash opening_cash status"`
	Channel     domain.Channel        `json:"channel,omitempty"`
	ExpenseID   string                `json:"expenseId,omitempty"`
	IsCash      bool                  `json:"isCash,omitempty"`
	Description string                `json:"description,omitempty"`
	Value       RawAmount             `json:"value,omitempty"`
	CategoryID  *uuid.UUID            `json:"categoryId,omitempty"`
	VendorID    *uuid.UUID            `json:"vendorId,omitempty"`
	Status      domain.RegisterStatus `json:"status,omitempty"`
}

// Apply performs e on d. For expense_add it returns the new row id.
func (d *Day) Apply(e Edit) (string, error) {
	switch e.Kind {
	case EditSalesAmount:
		return "", d.SetSalesAmount(e.Channel, e.Value.Decimal())
	case EditExpenseAdd:
		return d.AddExpense(ExpenseRow{
			ID:          e.ExpenseID,
			Description: e.Description,
			Amount:      e.Value.Decimal(),
			IsCash:      e.IsCash,
			CategoryID:  e.CategoryID,
			VendorID:    e.VendorID,
		})
	case EditExpenseAmount:
		return "", d.SetExpenseAmount(e.ExpenseID, e.Value.Decimal())
	case EditExpenseDescription:
		return "", d.SetExpenseDescription(e.ExpenseID, e.Description)
	case EditExpenseRemove:
		return "", d.RemoveExpense(e.ExpenseID)
	case EditActualCash:
		return "", d.SetActualCash(e.Value.Decimal())
	case EditOpeningCash:
		return "", d.SetOpeningCash(e.Value.Decimal())
	case EditStatus:
		return "", d.Advance(e.Status)
	}
	return "", ErrUnknownEdit
}
