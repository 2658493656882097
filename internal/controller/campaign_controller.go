// internal/controller/campaign_controller.go
package controller

import (
	"net/http"
	"time"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
	"github.com/unclebandit/targetup-dispatch/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	ScheduleService *service.ScheduleService
}

func (c *CampaignController) NewSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SendType model.SendType `json:"send_type"`
	}
	if r.ContentLength != 0 {
		if err := decode(r, &body); err != nil {
			WriteError(w, err)
			return
		}
	}
	WriteJSON(w, http.StatusCreated, service.NewComposeSession(body.SendType))
}

// ApplyEvents runs the compose reducer over a batch of edits.
func (c *CampaignController) ApplyEvents(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Session service.ComposeSession `json:"session"`
		Events  []service.Event        `json:"events"`
	}
	if err := decode(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	session := body.Session
	for _, e := range body.Events {
		session = service.Reduce(session, e)
	}
	WriteJSON(w, http.StatusOK, session)
}

func (c *CampaignController) Preview(w http.ResponseWriter, r *http.Request) {
	tenant, err := TenantFrom(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var session service.ComposeSession
	if err := decode(r, &session); err != nil {
		WriteError(w, err)
		return
	}

	summary, err := c.CampaignService.Prepare(r.Context(), tenant, session)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"summary": summary,
		"session": session.Evaluate(summary.Advice),
	})
}

func (c *CampaignController) Dispatch(w http.ResponseWriter, r *http.Request) {
	tenant, err := TenantFrom(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var session service.ComposeSession
	if err := decode(r, &session); err != nil {
		WriteError(w, err)
		return
	}

	result, err := c.CampaignService.Dispatch(r.Context(), tenant, session)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, result)
}

// TestSend delivers the draft to the user's test contacts without
// creating a campaign.
func (c *CampaignController) TestSend(w http.ResponseWriter, r *http.Request) {
	tenant, err := TenantFrom(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var session service.ComposeSession
	if err := decode(r, &session); err != nil {
		WriteError(w, err)
		return
	}

	result, err := c.CampaignService.TestSend(r.Context(), tenant, session)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (c *CampaignController) ListTestContacts(w http.ResponseWriter, r *http.Request) {
	tenant, err := TenantFrom(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	contacts, err := c.CampaignService.ListTestContacts(r.Context(), tenant)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"contacts": contacts})
}

func (c *CampaignController) AddTestContact(w http.ResponseWriter, r *http.Request) {
	tenant, err := TenantFrom(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var in service.TestContactInput
	if err := decode(r, &in); err != nil {
		WriteError(w, err)
		return
	}
	contact, err := c.CampaignService.AddTestContact(r.Context(), tenant, in)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, contact)
}

func (c *CampaignController) Cancel(w http.ResponseWriter, r *http.Request) {
	tenant, err := TenantFrom(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	id, err := URLID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &body); err != nil {
		WriteError(w, err)
		return
	}

	campaign, err := c.ScheduleService.Cancel(r.Context(), tenant, service.CancelInput{CampaignID: id, Reason: body.Reason})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) Reschedule(w http.ResponseWriter, r *http.Request) {
	tenant, err := TenantFrom(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	id, err := URLID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var body struct {
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if err := decode(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	if body.ScheduledAt == nil {
		WriteError(w, appErrors.NewValidation("scheduled_at", "required"))
		return
	}

	campaign, err := c.ScheduleService.Reschedule(r.Context(), tenant, id, *body.ScheduledAt)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) EditMessage(w http.ResponseWriter, r *http.Request) {
	tenant, err := TenantFrom(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	id, err := URLID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var edit service.MessageEdit
	if err := decode(r, &edit); err != nil {
		WriteError(w, err)
		return
	}

	result, err := c.ScheduleService.EditMessage(r.Context(), tenant, id, edit)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
