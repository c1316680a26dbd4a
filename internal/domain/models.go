package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Enumerations
const (
	RoleAdmin   UserRole = "admin"
	RoleManager UserRole = "manager"
	RoleStaff   UserRole = "staff"

	StatusDraft     RegisterStatus = "draft"
	StatusSubmitted RegisterStatus = "submitted"
	StatusVerified  RegisterStatus = "verified"
	StatusLocked    RegisterStatus = "locked"

	ChannelCash   Channel = "cash"
	ChannelUPI    Channel = "upi"
	ChannelSwiggy Channel = "swiggy"
	ChannelZomato Channel = "zomato"
	ChannelOther  Channel = "other"

	MethodCash   MethodType = "cash"
	MethodUPI    MethodType = "upi"
	MethodSwiggy MethodType = "aggregator_swiggy"
	MethodZomato MethodType = "aggregator_zomato"
	MethodOnline MethodType = "online"
	MethodBank   MethodType = "bank"
	MethodCard   MethodType = "card"

	PaymentPaid    PaymentStatus = "paid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPending PaymentStatus = "pending"

	ActionRecordCreate ActivityAction = "record.create"
	ActionRecordUpdate ActivityAction = "record.update"
)

type UserRole string
type RegisterStatus string
type Channel string
type MethodType string
type PaymentStatus string
type ActivityAction string

// Channels lists the fixed sales channels in display order.
var Channels = []Channel{ChannelCash, ChannelUPI, ChannelSwiggy, ChannelZomato, ChannelOther}

// Label is the human name shown on the register sheet for the channel.
func (c Channel) Label() string {
	switch c {
	case ChannelCash:
		return "Cash"
	case ChannelUPI:
		return "UPI"
	case ChannelSwiggy:
		return "Swiggy"
	case ChannelZomato:
		return "Zomato"
	case ChannelOther:
		return "Other Online"
	}
	return string(c)
}

func (c Channel) Valid() bool {
	for _, known := range Channels {
		if c == known {
			return true
		}
	}
	return false
}

// Rank orders statuses along the forward-only lifecycle. Unknown statuses rank -1.
func (s RegisterStatus) Rank() int {
	switch s {
	case StatusDraft:
		return 0
	case StatusSubmitted:
		return 1
	case StatusVerified:
		return 2
	case StatusLocked:
		return 3
	}
	return -1
}

func (s RegisterStatus) Valid() bool { return s.Rank() >= 0 }

// ReadOnly reports whether days in this status can no longer be edited.
func (s RegisterStatus) ReadOnly() bool {
	return s == StatusVerified || s == StatusLocked
}

type Shop struct {
	ID           uuid.UUID
	OrgID        uuid.UUID
	Code         string
	Name         string
	IsActive     bool
	DisplayOrder int
}

type User struct {
	ID           uuid.UUID
	OrgID        *uuid.UUID
	Name         string
	Email        string
	Role         UserRole
	RoleName     string
	IsActive     bool
	PasswordHash *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type PaymentMethod struct {
	ID          uuid.UUID
	OrgID       uuid.UUID
	Name        string
	MethodType  MethodType
	Channel     *Channel
	ForSales    bool
	ForExpenses bool
	IsActive    bool
}

type ExpenseCategory struct {
	ID           uuid.UUID
	OrgID        uuid.UUID
	Name         string
	IsActive     bool
	DisplayOrder int
}

// DailySalesLog is the persisted summary row of one register day.
type DailySalesLog struct {
	ID                  uuid.UUID
	OrgID               uuid.UUID
	ShopID              uuid.UUID
	LogDate             time.Time
	OpeningCash         decimal.NullDecimal
	GrossSales          decimal.Decimal
	NetSales            decimal.Decimal
	CashSales           decimal.Decimal
	TotalCashExpenses   decimal.Decimal
	TotalOnlineExpenses decimal.Decimal
	ExpectedClosing     decimal.Decimal
	ActualClosing       decimal.NullDecimal
	Variance            decimal.Decimal
	Status              RegisterStatus
	LoggedBy            *uuid.UUID
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type SalesEntry struct {
	ID                uuid.UUID
	DailyLogID        uuid.UUID
	EntryDate         time.Time
	PaymentMethodID   uuid.UUID
	PaymentMethodName string
	PaymentChannel    *Channel
	MethodType        MethodType
	IsCash            bool
	GrossAmount       decimal.Decimal
	ReturnsAmount     decimal.Decimal
	NetAmount         decimal.Decimal
	CreatedAt         time.Time
}

type Expense struct {
	ID            uuid.UUID
	OrgID         uuid.UUID
	ShopID        uuid.UUID
	DailyLogID    uuid.UUID
	ExpenseDate   time.Time
	CategoryID    *uuid.UUID
	VendorID      *uuid.UUID
	Description   string
	Amount        decimal.Decimal
	PaymentStatus PaymentStatus
	CreatedBy     *uuid.UUID
	Payments      []ExpensePayment
	CreatedAt     time.Time
}

type ExpensePayment struct {
	ID              uuid.UUID
	ExpenseID       uuid.UUID
	PaymentMethodID uuid.UUID
	MethodType      MethodType
	IsCash          bool
	Amount          decimal.Decimal
	PaymentDate     time.Time
}

type ActivityLog struct {
	ID         uuid.UUID
	OrgID      uuid.UUID
	UserID     *uuid.UUID
	UserName   string
	UserRole   string
	Action     ActivityAction
	EntityType string
	EntityID   *uuid.UUID
	EntityName string
	ShopID     *uuid.UUID
	Metadata   map[string]any
	LoggedAt   time.Time
}
