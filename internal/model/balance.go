// internal/model/balance.go
package model

type BillingType string

const (
	BillingPrepaid  BillingType = "prepaid"
	BillingPostpaid BillingType = "postpaid"
)

type BalanceRecord struct {
	CompanyID    string            `db:"id" json:"company_id"`
	BillingType  BillingType       `db:"billing_type" json:"billing_type"`
	Balance      int64             `db:"balance" json:"balance"`
	UnitPrices   map[Channel]int64 `json:"unit_prices"`
	RejectNumber string            `db:"reject_number" json:"reject_number"`
}
