package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/unclebandit/targetup-dispatch/internal/model"
)

// CustomerRepositoryInterface defines methods used by service
type CustomerRepositoryInterface interface {
	Count(ctx context.Context, companyID string, spec model.FilterSpec) (int, error)
	Extract(ctx context.Context, companyID string, spec model.FilterSpec) ([]model.Recipient, error)
}

// CustomerRepository is the concrete implementation
type CustomerRepository struct {
	DB *sql.DB
}

// physicalColumns lists the customer columns a filter may reference directly.
// Anything else is looked up in custom_fields.
var physicalColumns = map[string]model.DataType{
	"gender":                model.DataTypeString,
	"age":                   model.DataTypeNumber,
	"birth_date":            model.DataTypeDate,
	"grade":                 model.DataTypeString,
	"region":                model.DataTypeString,
	"points":                model.DataTypeNumber,
	"store_code":            model.DataTypeString,
	"total_purchase_amount": model.DataTypeNumber,
	"avg_order_value":       model.DataTypeNumber,
	"recent_purchase_date":  model.DataTypeDate,
	"first_purchase_date":   model.DataTypeDate,
	"last_visit_date":       model.DataTypeDate,
}

// consentColumns are enforced by baseWhere and never filtered on.
var consentColumns = map[string]bool{"sms_opt_in": true, "opt_in_sms": true}

var customKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// baseWhere applies to every target query: tenant scope, active, opted in.
const baseWhere = `company_id = $1 AND is_active = TRUE AND sms_opt_in = TRUE`

// BuildFilterWhere renders the spec as SQL predicates joined with AND.
// Placeholders start at $next; every value is bound, never inlined.
func BuildFilterWhere(spec model.FilterSpec, next int) (string, []any, error) {
	var clauses []string
	var args []any

	bind := func(v any) string {
		args = append(args, v)
		p := "$" + strconv.Itoa(next)
		next++
		return p
	}

	for _, c := range spec.Conditions {
		if consentColumns[c.Field] {
			return "", nil, fmt.Errorf("filter %s: consent is not a filter target", c.Field)
		}
		expr, kind, err := columnExpr(c, bind)
		if err != nil {
			return "", nil, err
		}

		switch c.Operator {
		case model.OpEq:
			if b, ok := c.Value.(bool); ok && kind != "physical" {
				clauses = append(clauses, fmt.Sprintf("%s = %s", expr, bind(strconv.FormatBool(b))))
				continue
			}
			clauses = append(clauses, fmt.Sprintf("%s = %s", expr, bind(c.Value)))
		case model.OpGte:
			n, ok := c.Value.(int64)
			if !ok {
				return "", nil, fmt.Errorf("filter %s: gte needs an integer, got %T", c.Field, c.Value)
			}
			if kind != "physical" {
				expr = "(" + expr + ")::numeric"
			}
			clauses = append(clauses, fmt.Sprintf("%s >= %s", expr, bind(n)))
		case model.OpBetween:
			r, ok := c.Value.([2]int64)
			if !ok {
				return "", nil, fmt.Errorf("filter %s: between needs a range, got %T", c.Field, c.Value)
			}
			if kind != "physical" {
				expr = "(" + expr + ")::numeric"
			}
			lo := bind(r[0])
			hi := bind(r[1])
			clauses = append(clauses, fmt.Sprintf("%s BETWEEN %s AND %s", expr, lo, hi))
		case model.OpDaysWithin:
			n, ok := c.Value.(int64)
			if !ok {
				return "", nil, fmt.Errorf("filter %s: days_within needs an integer, got %T", c.Field, c.Value)
			}
			if kind != "physical" {
				expr = "(" + expr + ")::date"
			}
			clauses = append(clauses, fmt.Sprintf("%s >= CURRENT_DATE - %s::int", expr, bind(n)))
		case model.OpContains:
			s, ok := c.Value.(string)
			if !ok {
				return "", nil, fmt.Errorf("filter %s: contains needs text, got %T", c.Field, c.Value)
			}
			clauses = append(clauses, fmt.Sprintf("%s ILIKE %s", expr, bind("%"+escapeLike(s)+"%")))
		default:
			return "", nil, fmt.Errorf("filter %s: unsupported operator %q", c.Field, c.Operator)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

func columnExpr(c model.FilterCondition, bind func(any) string) (string, string, error) {
	if _, ok := physicalColumns[c.Field]; ok {
		return c.Field, "physical", nil
	}
	if !customKeyPattern.MatchString(c.Field) {
		return "", "", fmt.Errorf("filter field %q is not a valid key", c.Field)
	}
	return "custom_fields->>" + bind(c.Field), "custom", nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func targetQuery(selectList string, companyID string, spec model.FilterSpec) (string, []any, error) {
	where, args, err := BuildFilterWhere(spec, 2)
	if err != nil {
		return "", nil, err
	}
	query := `SELECT ` + selectList + ` FROM customers WHERE ` + baseWhere
	if where != "" {
		query += " AND " + where
	}
	return query, append([]any{companyID}, args...), nil
}

// Count returns how many customers match the filter.
func (r *CustomerRepository) Count(ctx context.Context, companyID string, spec model.FilterSpec) (int, error) {
	query, args, err := targetQuery("COUNT(*)", companyID, spec)
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Extract loads the matching customers as recipients. Personalization
// fields are grade, region, total_purchase_amount and every custom field.
func (r *CustomerRepository) Extract(ctx context.Context, companyID string, spec model.FilterSpec) ([]model.Recipient, error) {
	query, args, err := targetQuery(
		"phone, name, grade, region, total_purchase_amount, callback, custom_fields",
		companyID, spec)
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		var (
			phone                   string
			name, grade, region, cb sql.NullString
			amount                  sql.NullInt64
			custom                  []byte
		)
		if err := rows.Scan(&phone, &name, &grade, &region, &amount, &cb, &custom); err != nil {
			return nil, err
		}
		fields, err := customFieldValues(custom)
		if err != nil {
			return nil, err
		}
		if grade.Valid {
			fields["grade"] = grade.String
		}
		if region.Valid {
			fields["region"] = region.String
		}
		if amount.Valid {
			fields["total_purchase_amount"] = FormatAmount(amount.Int64)
		}
		recipients = append(recipients, model.Recipient{
			Phone:    phone,
			Name:     name.String,
			Fields:   fields,
			Callback: cb.String,
		})
	}
	return recipients, rows.Err()
}

func customFieldValues(raw []byte) (map[string]string, error) {
	fields := map[string]string{}
	if len(raw) == 0 {
		return fields, nil
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode custom_fields: %w", err)
	}
	for k, v := range values {
		switch t := v.(type) {
		case nil:
		case string:
			fields[k] = t
		case float64:
			fields[k] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			fields[k] = fmt.Sprint(t)
		}
	}
	return fields, nil
}

// FormatAmount groups digits with commas, e.g. 1234000 -> 1,234,000.
func FormatAmount(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, d := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
