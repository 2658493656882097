package model

import "time"

// TestContactMode decides whose contacts a user test-sends to.
type TestContactMode string

const (
	TestContactShared   TestContactMode = "shared"
	TestContactPersonal TestContactMode = "personal"
	TestContactBoth     TestContactMode = "both"
)

// TestContact receives test sends. A nil UserID marks a company-wide
// contact.
type TestContact struct {
	ID        int       `db:"id" json:"id"`
	CompanyID string    `db:"company_id" json:"company_id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Name      string    `db:"name" json:"name"`
	Phone     string    `db:"phone" json:"phone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
