// Package handler is the HTTP surface of the form service: it resolves
// requested forms against the catalog, renders them with per-request
// submission metadata, and drives the submit pipeline.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ONDC-Official/automation-form-service/internal/catalog"
	"github.com/ONDC-Official/automation-form-service/internal/notifier"
	"github.com/ONDC-Official/automation-form-service/internal/platform/metrics"
	"github.com/ONDC-Official/automation-form-service/internal/platform/middleware"
	"github.com/ONDC-Official/automation-form-service/internal/render"
)

//go:generate mockgen -source=handler.go -destination=mocks/forms-mocks.go -package=mocks SessionService,Notifier

// SessionService is the merge-engine surface the dispatcher needs.
type SessionService interface {
	MergeFormSubmission(ctx context.Context, formKey string, formData map[string]any, transactionID string) error
	RecordSubmissionReceipt(ctx context.Context, sessionID, transactionID, submissionID, formURL string) error
}

// Notifier posts the submission event to the downstream workflow service.
type Notifier interface {
	Notify(ctx context.Context, domain string, ids notifier.Identifiers, submissionID string) error
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config is the small configuration surface the dispatcher recognizes.
type Config struct {
	// BaseURL prefixes the submission callback link injected into rendered
	// forms.
	BaseURL string
	// AutoInjectSubmissionURL controls whether the callback link is built at
	// all; when false the template's actionUrl parameter renders empty.
	AutoInjectSubmissionURL bool
}

// Handler handles the form endpoints.
type Handler struct {
	logger   *slog.Logger
	catalog  *catalog.Catalog
	renderer render.Renderer
	sessions SessionService
	notifier Notifier
	health   HealthChecker
	metrics  *metrics.Metrics
	cfg      Config
}

// New creates a new forms Handler. health may be nil when no store health
// probe is available.
func New(
	cat *catalog.Catalog,
	renderer render.Renderer,
	sessions SessionService,
	notify Notifier,
	health HealthChecker,
	logger *slog.Logger,
	m *metrics.Metrics,
	cfg Config,
) *Handler {
	return &Handler{
		logger:   logger,
		catalog:  cat,
		renderer: renderer,
		sessions: sessions,
		notifier: notify,
		health:   health,
		metrics:  m,
		cfg:      cfg,
	}
}

// Register registers the form routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/forms/{domain}/{formUrl}", h.handleGetForm)
	r.Post("/forms/{domain}/{formUrl}/submit", h.handleSubmitForm)
	r.Post("/admin/catalog/reload", h.handleReloadCatalog)
	r.Get("/healthz", h.handleHealth)
}

// handleGetForm renders a catalog form with the submission URL and the
// request identifiers substituted in.
func (h *Handler) handleGetForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	formKey := requestedKey(r)
	def, ok := h.catalog.Lookup(formKey)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Form not found"})
		return
	}

	ids := identifiersFromQuery(r)

	var actionURL string
	if h.cfg.AutoInjectSubmissionURL {
		actionURL = h.submitURL(def.Key, ids)
	}

	submissionData, err := json.Marshal(ids)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to marshal submission data",
			"request_id", requestID, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to render form"})
		return
	}

	html, err := h.renderer.Render(def.TemplateBody, render.Params{
		ActionURL:      actionURL,
		SubmissionData: string(submissionData),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to render form",
			"request_id", requestID, "form", def.Key, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to render form"})
		return
	}

	h.metrics.FormsRendered.WithLabelValues(def.Key).Inc()

	// Dynamic forms get an explicit content type; static ones go through the
	// default HTML negotiation path. Both serve the same rendered text.
	if def.RenderType == catalog.RenderDynamic {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

// handleSubmitForm validates the request identifiers, merges the submitted
// fields into the transaction's session, records a receipt, and notifies the
// downstream workflow service.
func (h *Handler) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	ids := identifiersFromQuery(r)
	if ids.SessionID == "" || ids.FlowID == "" || ids.TransactionID == "" {
		writeJSON(w, http.StatusBadRequest, badRequestResponse{
			Error:   true,
			Message: "session_id or flow_id or transaction_id not found in submission url",
		})
		return
	}

	formKey := requestedKey(r)
	def, ok := h.catalog.Lookup(formKey)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Form not found"})
		return
	}

	formData, err := decodeFormData(r)
	if err != nil {
		h.logger.WarnContext(ctx, "unreadable form submission body",
			"request_id", requestID, "form", def.Key, "error", err.Error())
		writeJSON(w, http.StatusBadRequest, badRequestResponse{
			Error:   true,
			Message: "malformed form submission body",
		})
		return
	}

	submissionID := uuid.NewString()
	formData["form_submission_id"] = submissionID

	domain := chi.URLParam(r, "domain")
	if err := h.submit(ctx, domain, def, formData, ids, submissionID); err != nil {
		h.logger.ErrorContext(ctx, "form submission failed",
			"request_id", requestID,
			"form", def.Key,
			"transaction_id", ids.TransactionID,
			"error", err.Error(),
		)
		h.metrics.FormSubmissions.WithLabelValues("failure").Inc()
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to process form submission"})
		return
	}

	h.metrics.FormSubmissions.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, submitResponse{Success: true, SubmissionID: submissionID})
}

// submit runs the merge -> receipt -> notify pipeline. Any failure aborts the
// remaining steps; no notification is sent after a failed merge.
func (h *Handler) submit(ctx context.Context, domain string, def catalog.FormDefinition, formData map[string]any, ids notifier.Identifiers, submissionID string) error {
	if err := h.sessions.MergeFormSubmission(ctx, def.Key, formData, ids.TransactionID); err != nil {
		return err
	}
	if err := h.sessions.RecordSubmissionReceipt(ctx, ids.SessionID, ids.TransactionID, submissionID, def.URL); err != nil {
		return err
	}

	start := time.Now()
	err := h.notifier.Notify(ctx, domain, ids, submissionID)
	h.metrics.NotificationDuration.Observe(time.Since(start).Seconds())
	return err
}

func (h *Handler) handleReloadCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Reload(); err != nil {
		h.logger.ErrorContext(r.Context(), "catalog reload failed", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to reload catalog"})
		return
	}
	h.metrics.CatalogReloads.Inc()
	h.logger.InfoContext(r.Context(), "catalog reloaded", "forms", h.catalog.Len())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// requestedKey rebuilds the lookup identifier from the route parameters. The
// domain segment is part of the route, but Lookup also accepts a bare URL so
// either shape resolves.
func requestedKey(r *http.Request) string {
	domain := chi.URLParam(r, "domain")
	formURL := chi.URLParam(r, "formUrl")
	if domain == "" {
		return formURL
	}
	return domain + "/" + formURL
}

func identifiersFromQuery(r *http.Request) notifier.Identifiers {
	q := r.URL.Query()
	return notifier.Identifiers{
		SessionID:     q.Get("session_id"),
		FlowID:        q.Get("flow_id"),
		TransactionID: q.Get("transaction_id"),
	}
}

// submitURL builds the callback link a rendered form posts back to.
func (h *Handler) submitURL(resolvedKey string, ids notifier.Identifiers) string {
	q := url.Values{}
	q.Set("flow_id", ids.FlowID)
	q.Set("session_id", ids.SessionID)
	q.Set("transaction_id", ids.TransactionID)
	return h.cfg.BaseURL + "/forms/" + resolvedKey + "/submit?" + q.Encode()
}

// decodeFormData accepts either a JSON object or urlencoded form fields, the
// two encodings browsers and flow drivers actually send.
func decodeFormData(r *http.Request) (map[string]any, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		data := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			return nil, err
		}
		return data, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	data := make(map[string]any, len(r.PostForm))
	for field, values := range r.PostForm {
		if len(values) > 0 {
			data[field] = values[0]
		}
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
