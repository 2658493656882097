package repository

import (
	"context"
	"database/sql"
	"errors"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
)

type TestContactRepositoryInterface interface {
	ListTestContacts(ctx context.Context, companyID, userID string) ([]model.TestContact, error)
	AddTestContact(ctx context.Context, companyID, userID string, shared bool, name, phone string) (*model.TestContact, error)
}

type TestContactRepository struct {
	DB *sql.DB
}

const testContactColumns = `id, company_id, user_id, name, phone, created_at`

func (r *TestContactRepository) mode(ctx context.Context, companyID string) (model.TestContactMode, error) {
	var mode string
	err := r.DB.QueryRowContext(ctx, `SELECT test_contact_mode FROM companies WHERE id=$1`, companyID).Scan(&mode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.NewValidation("company", "unknown company "+companyID)
		}
		return "", err
	}
	return model.TestContactMode(mode), nil
}

// testContactQuery selects the contacts visible to userID under mode.
// Unknown modes behave like shared.
func testContactQuery(mode model.TestContactMode, companyID, userID string) (string, []any) {
	base := `SELECT ` + testContactColumns + ` FROM test_contacts WHERE company_id=$1`
	switch mode {
	case model.TestContactPersonal:
		return base + ` AND user_id=$2 ORDER BY created_at`, []any{companyID, userID}
	case model.TestContactBoth:
		return base + ` AND (user_id IS NULL OR user_id=$2) ORDER BY user_id NULLS FIRST, created_at`, []any{companyID, userID}
	default:
		return base + ` AND user_id IS NULL ORDER BY created_at`, []any{companyID}
	}
}

// testContactOwner decides who owns a new contact. Shared mode always
// stores company-wide contacts and personal mode never does.
func testContactOwner(mode model.TestContactMode, userID string, shared bool) *string {
	switch mode {
	case model.TestContactPersonal:
		return &userID
	case model.TestContactBoth:
		if shared {
			return nil
		}
		return &userID
	default:
		return nil
	}
}

func (r *TestContactRepository) ListTestContacts(ctx context.Context, companyID, userID string) ([]model.TestContact, error) {
	mode, err := r.mode(ctx, companyID)
	if err != nil {
		return nil, err
	}
	query, args := testContactQuery(mode, companyID, userID)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.TestContact{}
	for rows.Next() {
		c, err := scanTestContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

// AddTestContact stores a contact for the owner the company's mode allows.
// A phone already registered for that owner is a validation error.
func (r *TestContactRepository) AddTestContact(ctx context.Context, companyID, userID string, shared bool, name, phone string) (*model.TestContact, error) {
	mode, err := r.mode(ctx, companyID)
	if err != nil {
		return nil, err
	}
	owner := testContactOwner(mode, userID, shared)

	c, err := scanTestContact(r.DB.QueryRowContext(ctx, `
		INSERT INTO test_contacts (company_id, user_id, name, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (company_id, phone, (COALESCE(user_id, ''))) DO NOTHING
		RETURNING `+testContactColumns, companyID, owner, name, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewValidation("phone", "already registered")
		}
		return nil, err
	}
	return c, nil
}

func scanTestContact(row rowScanner) (*model.TestContact, error) {
	var c model.TestContact
	var owner sql.NullString
	if err := row.Scan(&c.ID, &c.CompanyID, &owner, &c.Name, &c.Phone, &c.CreatedAt); err != nil {
		return nil, err
	}
	if owner.Valid {
		c.UserID = &owner.String
	}
	return &c, nil
}

var _ TestContactRepositoryInterface = (*TestContactRepository)(nil)
