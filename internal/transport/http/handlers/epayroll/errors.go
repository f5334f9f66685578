package epayrollhandler

import (
	"errors"
	"log/slog"
	"net/http"

	"hrpayroll/internal/domain/epayroll"
	"hrpayroll/internal/transport/http/api"
	"hrpayroll/internal/transport/http/middleware"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Order matters: ErrCredentialNotFound arrives wrapped in ErrSigning.
var errorMappings = []errorMapping{
	{epayroll.ErrPayslipNotFound, http.StatusNotFound, "not_found", ""},
	{epayroll.ErrDocumentNotFound, http.StatusNotFound, "not_found", ""},
	{epayroll.ErrOrganizationNotFound, http.StatusNotFound, "not_found", ""},
	{epayroll.ErrDuplicateDocument, http.StatusBadRequest, "duplicate_document", ""},
	{epayroll.ErrCredentialNotFound, http.StatusBadRequest, "credential_missing", "no signing key supplied and no stored credential configured"},
	{epayroll.ErrSigning, http.StatusBadRequest, "signing_error", ""},
	{epayroll.ErrAlreadyAccepted, http.StatusConflict, "already_accepted", ""},
	{epayroll.ErrTransmissionInFlight, http.StatusConflict, "transmission_in_flight", ""},
	{epayroll.ErrNotObligated, http.StatusUnprocessableEntity, "not_obligated", ""},
	{epayroll.ErrBuild, http.StatusInternalServerError, "build_error", ""},
}

// fail maps domain errors to envelope responses. An empty mapping message
// means the error text is safe to return.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, fallbackCode, fallbackMessage string) {
	requestID := middleware.GetRequestID(r.Context())
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		message := m.message
		if message == "" {
			message = err.Error()
		}
		if m.status >= http.StatusInternalServerError {
			slog.Error("electronic payroll request failed", "path", r.URL.Path, "requestId", requestID, "err", err)
		}
		api.Fail(w, m.status, m.code, message, requestID)
		return
	}
	slog.Error("electronic payroll request failed", "path", r.URL.Path, "requestId", requestID, "err", err)
	api.Fail(w, http.StatusInternalServerError, fallbackCode, fallbackMessage, requestID)
}
