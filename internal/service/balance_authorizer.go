package service

import (
	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
)

type Authorization struct {
	Approved  bool  `json:"approved"`
	Required  int64 `json:"required"`
	Balance   int64 `json:"balance"`
	Shortfall int64 `json:"shortfall,omitempty"`
	// Debit is what the commit takes from the ledger; zero for postpaid.
	Debit int64 `json:"debit"`
}

// Authorize checks a send against the tenant balance. Postpaid tenants are
// reconciled out of band and always pass.
func Authorize(recipientCount int, ch model.Channel, unitPrices map[model.Channel]int64, balance int64, billing model.BillingType) Authorization {
	required := int64(recipientCount) * unitPrices[ch]
	auth := Authorization{Approved: true, Required: required, Balance: balance}
	if billing == model.BillingPostpaid {
		return auth
	}
	auth.Debit = required
	if balance < required {
		auth.Approved = false
		auth.Shortfall = required - balance
		auth.Debit = 0
	}
	return auth
}

func (a Authorization) AsError() error {
	if a.Approved {
		return nil
	}
	return &appErrors.InsufficientBalance{Required: a.Required, Balance: a.Balance, Shortfall: a.Shortfall}
}
