// internal/model/filter.go
package model

type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeNumber  DataType = "number"
	DataTypeDate    DataType = "date"
	DataTypeBoolean DataType = "boolean"
)

type Operator string

const (
	OpEq         Operator = "eq"
	OpGte        Operator = "gte"
	OpBetween    Operator = "between"
	OpDaysWithin Operator = "days_within"
	OpContains   Operator = "contains"
)

type FieldCatalogEntry struct {
	FieldKey    string   `db:"field_key" json:"field_key" yaml:"field_key"`
	DataType    DataType `db:"data_type" json:"data_type" yaml:"data_type"`
	Category    string   `db:"category" json:"category" yaml:"category"`
	DisplayName string   `db:"display_name" json:"display_name" yaml:"display_name"`
	Options     []string `db:"-" json:"options,omitempty" yaml:"options,omitempty"`
}

// FilterCondition values are string, bool, int64 or [2]int64 (between).
type FilterCondition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// FilterSpec is kept sorted by Field.
type FilterSpec struct {
	Conditions []FilterCondition `json:"conditions"`
}

func (f FilterSpec) Get(field string) (FilterCondition, bool) {
	for _, c := range f.Conditions {
		if c.Field == field {
			return c, true
		}
	}
	return FilterCondition{}, false
}

func (f FilterSpec) Empty() bool {
	return len(f.Conditions) == 0
}
