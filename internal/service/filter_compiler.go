package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
)

const seniorAgeBucket = 60

var (
	// skipFields are never filter targets even when enabled in the catalog.
	// Consent is always applied by the target query itself.
	skipFields = map[string]bool{
		"name":         true,
		"phone":        true,
		"email":        true,
		"address":      true,
		"sms_opt_in":   true,
		"opt_in_sms":   true,
		"unsubscribed": true,
		"opt_out_date": true,
	}

	// columnAliases maps a catalog key to its physical column.
	columnAliases = map[string]string{
		"last_purchase_date": "recent_purchase_date",
	}

	ageGroupKeys = map[string]bool{"age_group": true, "ageGroup": true}

	monetaryFields = map[string]bool{
		"total_purchase_amount": true,
		"avg_order_value":       true,
	}

	// AmountLadder holds the only thresholds accepted for monetary fields.
	AmountLadder = []int64{50000, 100000, 500000, 1000000, 5000000}
)

// FilterableFields returns the catalog entries a user may filter on.
func FilterableFields(catalog []model.FieldCatalogEntry) []model.FieldCatalogEntry {
	out := make([]model.FieldCatalogEntry, 0, len(catalog))
	for _, f := range catalog {
		if !skipFields[f.FieldKey] {
			out = append(out, f)
		}
	}
	return out
}

// CompileFilters turns UI selections into a filter specification. The same
// selections always give the same specification, sorted by column.
func CompileFilters(selections map[string]string, catalog []model.FieldCatalogEntry) (model.FilterSpec, error) {
	byKey := make(map[string]model.FieldCatalogEntry, len(catalog))
	for _, f := range catalog {
		byKey[f.FieldKey] = f
	}

	keys := make([]string, 0, len(selections))
	for k := range selections {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	spec := model.FilterSpec{}
	seen := map[string]string{}
	for _, key := range keys {
		value := strings.TrimSpace(selections[key])
		if value == "" || skipFields[key] {
			continue
		}
		field, ok := byKey[key]
		if !ok {
			return model.FilterSpec{}, appErrors.NewValidation(key, "field is not enabled for this company")
		}
		cond, err := compileField(field, value)
		if err != nil {
			return model.FilterSpec{}, err
		}
		if prev, dup := seen[cond.Field]; dup {
			return model.FilterSpec{}, appErrors.NewValidation(key, fmt.Sprintf("targets column %s already set by %s", cond.Field, prev))
		}
		seen[cond.Field] = key
		spec.Conditions = append(spec.Conditions, cond)
	}

	sort.SliceStable(spec.Conditions, func(i, j int) bool {
		return spec.Conditions[i].Field < spec.Conditions[j].Field
	})
	return spec, nil
}

func compileField(field model.FieldCatalogEntry, value string) (model.FilterCondition, error) {
	key := field.FieldKey

	if ageGroupKeys[key] {
		bucket, err := parseInt(key, value)
		if err != nil {
			return model.FilterCondition{}, err
		}
		if bucket >= seniorAgeBucket {
			return model.FilterCondition{Field: "age", Operator: model.OpGte, Value: int64(seniorAgeBucket)}, nil
		}
		return model.FilterCondition{Field: "age", Operator: model.OpBetween, Value: [2]int64{bucket, bucket + 9}}, nil
	}

	column := key
	if alias, ok := columnAliases[key]; ok {
		column = alias
	}

	switch field.DataType {
	case model.DataTypeString:
		return model.FilterCondition{Field: column, Operator: model.OpEq, Value: value}, nil
	case model.DataTypeNumber:
		n, err := parseInt(key, value)
		if err != nil {
			return model.FilterCondition{}, err
		}
		if monetaryFields[key] && !onLadder(n) {
			return model.FilterCondition{}, appErrors.NewValidation(key, fmt.Sprintf("amount %d is not one of %v", n, AmountLadder))
		}
		return model.FilterCondition{Field: column, Operator: model.OpGte, Value: n}, nil
	case model.DataTypeDate:
		days, err := parseInt(key, value)
		if err != nil {
			return model.FilterCondition{}, err
		}
		if days <= 0 {
			return model.FilterCondition{}, appErrors.NewValidation(key, "day count must be positive")
		}
		return model.FilterCondition{Field: column, Operator: model.OpDaysWithin, Value: days}, nil
	case model.DataTypeBoolean:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return model.FilterCondition{}, appErrors.NewValidation(key, "expected true or false")
		}
		return model.FilterCondition{Field: column, Operator: model.OpEq, Value: b}, nil
	}
	return model.FilterCondition{}, appErrors.NewValidation(key, fmt.Sprintf("unsupported data type %q", field.DataType))
}

func parseInt(key, value string) (int64, error) {
	n, err := strconv.ParseInt(strings.ReplaceAll(value, ",", ""), 10, 64)
	if err != nil {
		return 0, appErrors.NewValidation(key, fmt.Sprintf("%q is not a number", value))
	}
	return n, nil
}

func onLadder(n int64) bool {
	for _, step := range AmountLadder {
		if step == n {
			return true
		}
	}
	return false
}
