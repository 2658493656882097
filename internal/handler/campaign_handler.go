// internal/handler/campaign_handler.go
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/unclebandit/targetup-dispatch/internal/controller"
	"github.com/unclebandit/targetup-dispatch/internal/model"
	"github.com/unclebandit/targetup-dispatch/internal/service"
)

// CampaignHandler serves the read side of campaigns
type CampaignHandler struct {
	Service *service.CampaignService
	Logger  *slog.Logger
}

func NewCampaignHandler(svc *service.CampaignService, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{
		Service: svc,
		Logger:  logger,
	}
}

// ListCampaignsHandler returns a paginated list of campaigns
func (h *CampaignHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, r.URL.Query().Get("status"))
}

// ListScheduledHandler lists the tenant's scheduled campaigns, the ones a
// user may still cancel or edit.
func (h *CampaignHandler) ListScheduledHandler(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, model.StatusScheduled)
}

func (h *CampaignHandler) list(w http.ResponseWriter, r *http.Request, status string) {
	tenant, err := controller.TenantFrom(r)
	if err != nil {
		controller.WriteError(w, err)
		return
	}

	pageStr := r.URL.Query().Get("page")
	pageSizeStr := r.URL.Query().Get("page_size")
	page := 1
	pageSize := 10

	if pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if pageSizeStr != "" {
		if ps, err := strconv.Atoi(pageSizeStr); err == nil && ps > 0 {
			pageSize = ps
		}
	}

	channel := r.URL.Query().Get("channel")

	campaigns, pagination, err := h.Service.ListCampaigns(r.Context(), tenant.CompanyID, page, pageSize, channel, status)
	if err != nil {
		h.Logger.Error("failed to fetch campaigns", "company_id", tenant.CompanyID, "error", err)
		controller.WriteError(w, err)
		return
	}

	controller.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

// GetCampaignHandlerWithStats returns one campaign with its delivery counts
func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	tenant, err := controller.TenantFrom(r)
	if err != nil {
		controller.WriteError(w, err)
		return
	}
	id, err := controller.URLID(r)
	if err != nil {
		controller.WriteError(w, err)
		return
	}

	details, err := h.Service.GetCampaignDetailsWithStats(r.Context(), tenant.CompanyID, id)
	if err != nil {
		controller.WriteError(w, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, details)
}
