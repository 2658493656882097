package service

import (
	"context"
	"errors"
	"testing"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
)

func TestTargetServiceFields(t *testing.T) {
	svc := &TargetService{Catalog: &fakeCatalog{fields: testCatalog}, Customers: &fakeCustomers{}}
	fields, err := svc.Fields(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range fields {
		if f.FieldKey == "name" || f.FieldKey == "phone" {
			t.Errorf("%s should be hidden", f.FieldKey)
		}
		if f.FieldKey == "grade" && len(f.Options) != 2 {
			t.Errorf("expected grade options, got %v", f.Options)
		}
	}
}

func TestTargetServiceCount(t *testing.T) {
	customers := &fakeCustomers{recipients: []model.Recipient{{Phone: "01011112222"}, {Phone: "01033334444"}}}
	svc := &TargetService{Catalog: &fakeCatalog{fields: testCatalog}, Customers: customers}

	res, err := svc.Count(context.Background(), "acme", map[string]string{"ageGroup": "20"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 {
		t.Errorf("expected 2, got %d", res.Count)
	}
	cond, ok := res.Spec.Get("age")
	if !ok || cond.Operator != model.OpBetween {
		t.Errorf("unexpected spec %+v", res.Spec)
	}
}

func TestTargetServiceExtractNormalizes(t *testing.T) {
	customers := &fakeCustomers{recipients: []model.Recipient{
		{Phone: "010-1111-2222"},
		{Phone: "01011112222"},
		{Phone: "invalid"},
	}}
	svc := &TargetService{Catalog: &fakeCatalog{fields: testCatalog}, Customers: customers}

	recipients, invalid, err := svc.Extract(context.Background(), "acme", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(recipients) != 1 || invalid != 1 {
		t.Errorf("expected 1 recipient and 1 invalid, got %d and %d", len(recipients), invalid)
	}
}

func TestTargetServiceFailures(t *testing.T) {
	svc := &TargetService{Catalog: &fakeCatalog{err: errUnavailable}, Customers: &fakeCustomers{}}
	_, err := svc.Count(context.Background(), "acme", map[string]string{"grade": "VIP"})
	var tf *appErrors.TransportFailure
	if !errors.As(err, &tf) {
		t.Errorf("expected TransportFailure, got %v", err)
	}

	svc = &TargetService{Catalog: &fakeCatalog{fields: testCatalog}, Customers: &fakeCustomers{err: errUnavailable}}
	if _, _, err := svc.Extract(context.Background(), "acme", nil); !errors.As(err, &tf) {
		t.Errorf("expected TransportFailure, got %v", err)
	}

	_, err = svc.Count(context.Background(), "acme", map[string]string{"unknown": "x"})
	var ve *appErrors.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}
