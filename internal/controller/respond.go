package controller

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/service"
)

const (
	HeaderCompanyID = "X-Company-ID"
	HeaderUserID    = "X-User-ID"
	HeaderUserType  = "X-User-Type"
)

// TenantFrom reads the acting tenant from the request headers set by the
// upstream gateway.
func TenantFrom(r *http.Request) (service.Tenant, error) {
	t := service.Tenant{
		CompanyID: r.Header.Get(HeaderCompanyID),
		UserID:    r.Header.Get(HeaderUserID),
		UserType:  r.Header.Get(HeaderUserType),
	}
	if t.CompanyID == "" {
		return t, appErrors.NewValidation(HeaderCompanyID, "header is required")
	}
	return t, nil
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError answers with the status mapped from err. Typed errors are
// included as details so the client can show shortfall, bytes and so on.
// Transport failures only name the operation; their cause stays in the logs.
func WriteError(w http.ResponseWriter, err error) {
	status, code := appErrors.HTTPStatus(err)
	body := map[string]any{
		"error": err.Error(),
		"code":  code,
	}
	var tf *appErrors.TransportFailure
	switch {
	case errors.As(err, &tf):
		slog.Error("transport failure", "op", tf.Op, "error", tf.Err)
		body["error"] = tf.Public()
		body["details"] = map[string]string{"op": tf.Op}
	case status != http.StatusInternalServerError:
		body["details"] = err
	}
	WriteJSON(w, status, body)
}

func URLID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, appErrors.NewValidation("id", "invalid campaign id")
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return appErrors.NewValidation("body", "invalid body: "+err.Error())
	}
	return nil
}
