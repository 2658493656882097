package main

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/unclebandit/targetup-dispatch/internal/model"
)

type CatalogSeed struct {
	Companies []CompanyCatalog `yaml:"companies"`
}

type CompanyCatalog struct {
	CompanyID string                    `yaml:"company_id"`
	Fields    []model.FieldCatalogEntry `yaml:"fields"`
}

// LoadCatalogSeed parses and checks a catalog file. Category defaults to
// "custom".
func LoadCatalogSeed(r io.Reader) (*CatalogSeed, error) {
	var seed CatalogSeed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	for ci := range seed.Companies {
		c := &seed.Companies[ci]
		if c.CompanyID == "" {
			return nil, fmt.Errorf("companies[%d]: company_id is required", ci)
		}
		seen := map[string]bool{}
		for fi := range c.Fields {
			f := &c.Fields[fi]
			if f.FieldKey == "" {
				return nil, fmt.Errorf("%s fields[%d]: field_key is required", c.CompanyID, fi)
			}
			if seen[f.FieldKey] {
				return nil, fmt.Errorf("%s: duplicate field %s", c.CompanyID, f.FieldKey)
			}
			seen[f.FieldKey] = true
			switch f.DataType {
			case model.DataTypeString, model.DataTypeNumber, model.DataTypeDate, model.DataTypeBoolean:
			default:
				return nil, fmt.Errorf("%s.%s: unknown data_type %q", c.CompanyID, f.FieldKey, f.DataType)
			}
			if f.Category == "" {
				f.Category = "custom"
			}
			if f.DisplayName == "" {
				f.DisplayName = f.FieldKey
			}
		}
	}
	return &seed, nil
}
