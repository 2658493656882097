package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/unclebandit/targetup-dispatch/internal/model"
)

type FieldCatalogRepositoryInterface interface {
	EnabledFields(ctx context.Context, companyID string) ([]model.FieldCatalogEntry, error)
	Options(ctx context.Context, companyID, fieldKey string) ([]string, error)
	Upsert(ctx context.Context, companyID string, entries []model.FieldCatalogEntry) error
}

type FieldCatalogRepository struct {
	DB *sql.DB
}

const maxFieldOptions = 100

func (r *FieldCatalogRepository) EnabledFields(ctx context.Context, companyID string) ([]model.FieldCatalogEntry, error) {
	query := `
		SELECT field_key, data_type, category, display_name
		FROM field_catalog
		WHERE company_id=$1 AND is_enabled = TRUE
		ORDER BY sort_order, field_key
	`
	rows, err := r.DB.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.FieldCatalogEntry{}
	for rows.Next() {
		var e model.FieldCatalogEntry
		if err := rows.Scan(&e.FieldKey, &e.DataType, &e.Category, &e.DisplayName); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Options lists the distinct values a string field holds for the company.
func (r *FieldCatalogRepository) Options(ctx context.Context, companyID, fieldKey string) ([]string, error) {
	var query string
	args := []any{companyID}
	if t, ok := physicalColumns[fieldKey]; ok {
		if t != model.DataTypeString {
			return nil, nil
		}
		query = fmt.Sprintf(`SELECT DISTINCT %[1]s FROM customers
			WHERE company_id=$1 AND %[1]s IS NOT NULL AND %[1]s <> '' ORDER BY 1 LIMIT %[2]d`, fieldKey, maxFieldOptions)
	} else {
		if !customKeyPattern.MatchString(fieldKey) {
			return nil, fmt.Errorf("field key %q is not valid", fieldKey)
		}
		query = fmt.Sprintf(`SELECT DISTINCT custom_fields->>$2 FROM customers
			WHERE company_id=$1 AND custom_fields ? $2 ORDER BY 1 LIMIT %d`, maxFieldOptions)
		args = append(args, fieldKey)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var options []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid {
			options = append(options, v.String)
		}
	}
	return options, rows.Err()
}

// Upsert writes catalog entries in the given order; entries not listed are left untouched.
func (r *FieldCatalogRepository) Upsert(ctx context.Context, companyID string, entries []model.FieldCatalogEntry) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO field_catalog (company_id, field_key, data_type, category, display_name, is_enabled, sort_order)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		ON CONFLICT (company_id, field_key) DO UPDATE
		SET data_type=EXCLUDED.data_type, category=EXCLUDED.category,
			display_name=EXCLUDED.display_name, sort_order=EXCLUDED.sort_order
	`
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx, query, companyID, e.FieldKey, e.DataType, e.Category, e.DisplayName, i); err != nil {
			return fmt.Errorf("upsert field %s: %w", e.FieldKey, err)
		}
	}
	return tx.Commit()
}

var _ FieldCatalogRepositoryInterface = (*FieldCatalogRepository)(nil)
