package register

import (
	"strings"

	"trfc-backend/internal/domain"

	"github.com/google/uuid"
)

// ClassifySalesEntry picks the channel a stored sales line counts towards.
// Precedence: cash flag, the method's channel tag, the method type marker,
// a substring of the method name, and finally "other".
func ClassifySalesEntry(e domain.SalesEntry) domain.Channel {
	if e.IsCash || e.MethodType == domain.MethodCash {
		return domain.ChannelCash
	}
	if e.PaymentChannel != nil && e.PaymentChannel.Valid() {
		return *e.PaymentChannel
	}
	switch e.MethodType {
	case domain.MethodUPI:
		return domain.ChannelUPI
	case domain.MethodSwiggy:
		return domain.ChannelSwiggy
	case domain.MethodZomato:
		return domain.ChannelZomato
	}
	name := strings.ToLower(e.PaymentMethodName)
	switch {
	case strings.Contains(name, "upi"):
		return domain.ChannelUPI
	case strings.Contains(name, "swiggy"):
		return domain.ChannelSwiggy
	case strings.Contains(name, "zomato"):
		return domain.ChannelZomato
	}
	return domain.ChannelOther
}

type methodInfo struct {
	ID         *uuid.UUID
	MethodType domain.MethodType
	IsCash     bool
}

// resolveSalesMethod finds the payment method a channel is written against.
// A method tagged with the channel wins; name matching is the bootstrap
// fallback for catalogs that predate the tag.
func resolveSalesMethod(ch domain.Channel, methods []domain.PaymentMethod) methodInfo {
	for i := range methods {
		m := methods[i]
		if m.Channel != nil && *m.Channel == ch {
			return methodInfo{ID: &m.ID, MethodType: m.MethodType, IsCash: m.MethodType == domain.MethodCash}
		}
	}
	label := strings.ToLower(ch.Label())
	for i := range methods {
		m := methods[i]
		if strings.Contains(strings.ToLower(m.Name), label) || (ch == domain.ChannelCash && m.MethodType == domain.MethodCash) {
			return methodInfo{ID: &m.ID, MethodType: m.MethodType, IsCash: m.MethodType == domain.MethodCash}
		}
	}
	return methodInfo{MethodType: defaultMethodType(ch), IsCash: ch == domain.ChannelCash}
}

func defaultMethodType(ch domain.Channel) domain.MethodType {
	switch ch {
	case domain.ChannelCash:
		return domain.MethodCash
	case domain.ChannelUPI:
		return domain.MethodUPI
	case domain.ChannelSwiggy:
		return domain.MethodSwiggy
	case domain.ChannelZomato:
		return domain.MethodZomato
	}
	return domain.MethodOnline
}

// expenseMethods returns the org's default cash and bank methods for expenses.
func expenseMethods(methods []domain.PaymentMethod) (cash, bank *domain.PaymentMethod) {
	for i := range methods {
		m := &methods[i]
		if !m.ForExpenses {
			continue
		}
		switch m.MethodType {
		case domain.MethodCash:
			if cash == nil {
				cash = m
			}
		case domain.MethodBank:
			if bank == nil {
				bank = m
			}
		}
	}
	return cash, bank
}
