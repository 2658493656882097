package controller

import (
	"net/http"

	"github.com/unclebandit/targetup-dispatch/internal/service"
)

type TargetController struct {
	TargetService *service.TargetService
}

type targetRequest struct {
	Selections map[string]string `json:"selections"`
}

func (c *TargetController) Fields(w http.ResponseWriter, r *http.Request) {
	tenant, err := TenantFrom(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	fields, err := c.TargetService.Fields(r.Context(), tenant.CompanyID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"fields": fields})
}

func (c *TargetController) Count(w http.ResponseWriter, r *http.Request) {
	tenant, err := TenantFrom(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var body targetRequest
	if err := decode(r, &body); err != nil {
		WriteError(w, err)
		return
	}

	result, err := c.TargetService.Count(r.Context(), tenant.CompanyID, body.Selections)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (c *TargetController) Extract(w http.ResponseWriter, r *http.Request) {
	tenant, err := TenantFrom(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var body targetRequest
	if err := decode(r, &body); err != nil {
		WriteError(w, err)
		return
	}

	recipients, invalid, err := c.TargetService.Extract(r.Context(), tenant.CompanyID, body.Selections)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"recipients":    recipients,
		"count":         len(recipients),
		"invalid_count": invalid,
	})
}
