package epayrollhandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"hrpayroll/internal/domain/audit"
	"hrpayroll/internal/domain/auth"
	"hrpayroll/internal/domain/epayroll"
	"hrpayroll/internal/platform/jobs"
	"hrpayroll/internal/transport/http/api"
	"hrpayroll/internal/transport/http/middleware"
	"hrpayroll/internal/transport/http/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	transmitEndpoint = "payroll.electronic.transmit"
)

// Auditor records and lists audit events.
type Auditor interface {
	Record(ctx context.Context, tenantID, actorID, action, entityType, entityID, requestID, ip string, before, after any) error
	List(ctx context.Context, tenantID string, filter audit.Filter, limit, offset int) ([]audit.Event, error)
}

// SweepRunner runs recorded retry sweeps for one tenant and lists past runs.
type SweepRunner interface {
	RunRetrySweep(ctx context.Context, tenantID string) (epayroll.SweepReport, error)
	ListRuns(ctx context.Context, tenantID, jobType string, limit int) ([]jobs.Run, error)
}

type Handler struct {
	Service     *epayroll.Service
	Sweeps      SweepRunner
	Audit       Auditor
	Idempotency *middleware.IdempotencyStore
	Perms       middleware.PermissionStore
}

func NewHandler(service *epayroll.Service, sweeps SweepRunner, auditor Auditor, idem *middleware.IdempotencyStore, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Sweeps: sweeps, Audit: auditor, Idempotency: idem, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	read := middleware.RequirePermission(auth.PermElectronicRead, h.Perms)
	issue := middleware.RequirePermission(auth.PermElectronicIssue, h.Perms)
	transmit := middleware.RequirePermission(auth.PermElectronicTransmit, h.Perms)
	credentials := middleware.RequirePermission(auth.PermElectronicCredentials, h.Perms)

	r.Route("/payroll", func(r chi.Router) {
		r.With(read).Get("/compliance/check", h.handleComplianceCheck)
		r.Route("/electronic", func(r chi.Router) {
			r.With(read).Get("/", h.handleListDocuments)
			r.With(read).Get("/transmissions", h.handleListTransmissions)
			r.With(credentials).Put("/credentials", h.handleSaveCredential)
			r.With(transmit).Post("/retry/run", h.handleRunRetrySweep)
			r.With(read).Get("/retry/runs", h.handleListRetryRuns)
			r.With(issue).Post("/{id}/generate", h.handleGenerate)
			r.With(read).Get("/{id}", h.handleGetDocument)
			r.With(read).Get("/{id}/xml", h.handleDownloadXML)
			r.With(read).Get("/{id}/pdf", h.handleDownloadPDF)
			r.With(read).Get("/{id}/history", h.handleHistory)
			r.With(issue).Post("/{id}/sign", h.handleSign)
			r.With(transmit).Post("/{id}/transmit", h.handleTransmit)
		})
	})
}

func (h *Handler) handleComplianceCheck(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	status, err := h.Service.CheckCompliance(r.Context(), user.TenantID)
	if err != nil {
		h.fail(w, r, err, "compliance_check_failed", "failed to check compliance")
		return
	}
	api.Success(w, status, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	payslipID, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.Service.Generate(r.Context(), user.TenantID, payslipID)
	if err != nil {
		h.fail(w, r, err, "generate_failed", "failed to generate electronic payroll document")
		return
	}
	h.record(r, user, audit.ActionDocumentGenerate, audit.EntityDocument, doc.ID, nil, map[string]any{
		"payslipId":      payslipID,
		"documentNumber": doc.DocumentNumber,
		"uniqueCode":     doc.UniqueCode,
		"status":         doc.Status,
	})
	api.Created(w, doc, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	v := shared.NewValidator()
	v.OneOf("status", status, []string{
		epayroll.DocumentStatusGenerated,
		epayroll.DocumentStatusSigned,
		epayroll.DocumentStatusAccepted,
		epayroll.DocumentStatusRejected,
	}, "must be generated, signed, accepted or rejected")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	page := shared.ParsePagination(r, defaultPageSize, maxPageSize)
	items, total, err := h.Service.ListDocuments(r.Context(), user.TenantID, epayroll.DocumentFilter{Status: strings.ToLower(status)}, page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err, "documents_list_failed", "failed to list electronic payroll documents")
		return
	}
	if items == nil {
		items = []epayroll.DocumentListItem{}
	}
	api.Success(w, api.Page{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	documentID, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.Service.GetDocument(r.Context(), user.TenantID, documentID)
	if err != nil {
		h.fail(w, r, err, "document_failed", "failed to load electronic payroll document")
		return
	}
	api.Success(w, doc, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDownloadXML(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	documentID, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.Service.GetDocument(r.Context(), user.TenantID, documentID)
	if err != nil {
		h.fail(w, r, err, "document_failed", "failed to load electronic payroll document")
		return
	}
	api.Raw(w, "application/xml", doc.DocumentNumber+".xml", []byte(doc.Content))
}

func (h *Handler) handleDownloadPDF(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	documentID, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.Service.GetDocument(r.Context(), user.TenantID, documentID)
	if err != nil {
		h.fail(w, r, err, "document_failed", "failed to load electronic payroll document")
		return
	}
	pdf, err := h.Service.RenderPDF(r.Context(), user.TenantID, documentID)
	if err != nil {
		h.fail(w, r, err, "pdf_failed", "failed to render document pdf")
		return
	}
	api.Raw(w, "application/pdf", doc.DocumentNumber+".pdf", pdf)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	documentID, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.Service.GetDocument(r.Context(), user.TenantID, documentID); err != nil {
		h.fail(w, r, err, "document_failed", "failed to load electronic payroll document")
		return
	}
	if h.Audit == nil {
		api.Success(w, []audit.Event{}, middleware.GetRequestID(r.Context()))
		return
	}
	page := shared.ParsePagination(r, defaultPageSize, maxPageSize)
	events, err := h.Audit.List(r.Context(), user.TenantID, audit.Filter{EntityType: audit.EntityDocument, EntityID: documentID}, page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err, "history_failed", "failed to load document history")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	api.Success(w, events, middleware.GetRequestID(r.Context()))
}

type keyPayload struct {
	PrivateKey string `json:"privateKey"`
	Password   string `json:"password"`
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var payload keyPayload
	if !decodeOptionalJSON(w, r, &payload) {
		return
	}
	documentID, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.Service.Sign(r.Context(), user.TenantID, documentID, epayroll.KeyMaterial{PrivateKey: payload.PrivateKey, Password: payload.Password})
	if err != nil {
		h.fail(w, r, err, "sign_failed", "failed to sign electronic payroll document")
		return
	}
	h.record(r, user, audit.ActionDocumentSign, audit.EntityDocument, documentID, nil, map[string]any{
		"algorithm": result.Algorithm,
		"status":    result.Status,
		"storedKey": strings.TrimSpace(payload.PrivateKey) == "",
	})
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleTransmit(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	documentID, ok := pathID(w, r)
	if !ok {
		return
	}
	scope, replayable := middleware.ScopeFor(r, transmitEndpoint)
	requestHash := middleware.RequestHash([]byte(documentID))
	if replayable {
		stored, found, err := h.Idempotency.Check(r.Context(), scope, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, "idempotency_conflict", err.Error(), middleware.GetRequestID(r.Context()))
			return
		}
		if err != nil {
			slog.Warn("idempotency check failed", "endpoint", transmitEndpoint, "err", err)
		}
		if found {
			api.Success(w, json.RawMessage(stored), middleware.GetRequestID(r.Context()))
			return
		}
	}

	result, err := h.Service.Transmit(r.Context(), user.TenantID, documentID)
	if err != nil {
		h.fail(w, r, err, "transmit_failed", "failed to transmit electronic payroll document")
		return
	}
	h.record(r, user, audit.ActionDocumentTransmit, audit.EntityDocument, documentID, nil, map[string]any{
		"transmissionId": result.Transmission.ID,
		"status":         result.Transmission.Status,
		"responseCode":   result.Response.Code,
		"retryCount":     result.Transmission.RetryCount,
	})

	if replayable {
		payload, err := json.Marshal(result)
		if err != nil {
			slog.Warn("transmit response marshal failed", "err", err)
		} else if err := h.Idempotency.Save(r.Context(), scope, requestHash, payload); err != nil {
			slog.Warn("idempotency save failed", "endpoint", transmitEndpoint, "err", err)
		}
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListTransmissions(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := epayroll.TransmissionFilter{
		Status:         strings.ToLower(strings.TrimSpace(query.Get("status"))),
		DocumentID:     strings.TrimSpace(query.Get("documentId")),
		NeedsAttention: query.Get("needsAttention") == "true",
	}
	v := shared.NewValidator()
	v.OneOf("status", filter.Status, []string{
		epayroll.TransmissionStatusSent,
		epayroll.TransmissionStatusAccepted,
		epayroll.TransmissionStatusRejected,
	}, "must be sent, accepted or rejected")
	v.OneOf("needsAttention", query.Get("needsAttention"), []string{"true", "false"}, "must be true or false")
	if filter.DocumentID != "" {
		v.UUID("documentId", filter.DocumentID)
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	page := shared.ParsePagination(r, defaultPageSize, maxPageSize)
	items, total, err := h.Service.ListTransmissions(r.Context(), user.TenantID, filter, page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err, "transmissions_list_failed", "failed to list transmissions")
		return
	}
	if items == nil {
		items = []epayroll.TransmissionListItem{}
	}
	api.Success(w, api.Page{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSaveCredential(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var payload keyPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("privateKey", payload.PrivateKey, "is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	key := epayroll.KeyMaterial{PrivateKey: payload.PrivateKey, Password: payload.Password}
	algorithm, err := h.Service.SaveCredential(r.Context(), user.TenantID, key)
	if err != nil {
		h.fail(w, r, err, "credential_save_failed", "failed to store signing credential")
		return
	}
	response := map[string]string{"format": key.Format(), "algorithm": algorithm}
	h.record(r, user, audit.ActionCredentialUpdate, audit.EntityCredential, user.TenantID, nil, response)
	api.Success(w, response, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRunRetrySweep(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var (
		report epayroll.SweepReport
		err    error
	)
	if h.Sweeps != nil {
		report, err = h.Sweeps.RunRetrySweep(r.Context(), user.TenantID)
	} else {
		report, err = h.Service.RetrySweep(r.Context(), user.TenantID)
	}
	if err != nil {
		h.fail(w, r, err, "retry_sweep_failed", "failed to run retry sweep")
		return
	}
	h.record(r, user, audit.ActionRetrySweep, audit.EntityTenant, user.TenantID, nil, report)
	api.Success(w, report, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListRetryRuns(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	runs := []jobs.Run{}
	if h.Sweeps != nil {
		page := shared.ParsePagination(r, defaultPageSize, maxPageSize)
		listed, err := h.Sweeps.ListRuns(r.Context(), user.TenantID, jobs.JobRetrySweep, page.Limit)
		if err != nil {
			h.fail(w, r, err, "retry_runs_failed", "failed to list retry sweep runs")
			return
		}
		if listed != nil {
			runs = listed
		}
	}
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) record(r *http.Request, user auth.UserContext, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, action, entityType, entityID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, after); err != nil {
		slog.Warn("audit record failed", "action", action, "entityId", entityID, "err", err)
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (auth.UserContext, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
	}
	return user, ok
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		failDecode(w, r, err)
		return false
	}
	return true
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	failDecode(w, r, err)
	return false
}

// pathID reads the {id} route parameter. Values that cannot be a record key
// are answered as not found.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if uuid.Validate(id) != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "resource not found", middleware.GetRequestID(r.Context()))
		return "", false
	}
	return id, true
}

func failDecode(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", middleware.GetRequestID(r.Context()))
		return
	}
	api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
}
