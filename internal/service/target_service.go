package service

import (
	"context"
	"log/slog"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
)

// TargetService runs filter selections against the customer store.
type TargetService struct {
	Catalog   FieldCatalog
	Customers CustomerStore
	Logger    *slog.Logger
}

type TargetCount struct {
	Spec  model.FilterSpec `json:"spec"`
	Count int              `json:"count"`
}

// Fields returns the filterable catalog entries, with the distinct values
// of each string field.
func (s *TargetService) Fields(ctx context.Context, companyID string) ([]model.FieldCatalogEntry, error) {
	catalog, err := s.Catalog.EnabledFields(ctx, companyID)
	if err != nil {
		return nil, appErrors.NewTransportFailure("field catalog", err)
	}
	fields := FilterableFields(catalog)
	for i := range fields {
		if fields[i].DataType != model.DataTypeString {
			continue
		}
		opts, err := s.Catalog.Options(ctx, companyID, fields[i].FieldKey)
		if err != nil {
			return nil, appErrors.NewTransportFailure("field options", err)
		}
		fields[i].Options = opts
	}
	return fields, nil
}

func (s *TargetService) Compile(ctx context.Context, companyID string, selections map[string]string) (model.FilterSpec, error) {
	catalog, err := s.Catalog.EnabledFields(ctx, companyID)
	if err != nil {
		return model.FilterSpec{}, appErrors.NewTransportFailure("field catalog", err)
	}
	return CompileFilters(selections, catalog)
}

func (s *TargetService) Count(ctx context.Context, companyID string, selections map[string]string) (*TargetCount, error) {
	spec, err := s.Compile(ctx, companyID, selections)
	if err != nil {
		return nil, err
	}
	n, err := s.Customers.Count(ctx, companyID, spec)
	if err != nil {
		return nil, appErrors.NewTransportFailure("count targets", err)
	}
	return &TargetCount{Spec: spec, Count: n}, nil
}

// Extract materializes the recipients. Phones are normalized and invalid
// or duplicate numbers dropped; the second result is the invalid count.
func (s *TargetService) Extract(ctx context.Context, companyID string, selections map[string]string) ([]model.Recipient, int, error) {
	spec, err := s.Compile(ctx, companyID, selections)
	if err != nil {
		return nil, 0, err
	}
	raw, err := s.Customers.Extract(ctx, companyID, spec)
	if err != nil {
		return nil, 0, appErrors.NewTransportFailure("extract targets", err)
	}
	recipients, invalid := NormalizeRecipients(raw)
	if s.Logger != nil {
		s.Logger.Debug("targets extracted", "company_id", companyID, "conditions", len(spec.Conditions), "kept", len(recipients), "invalid", invalid)
	}
	return recipients, invalid, nil
}
