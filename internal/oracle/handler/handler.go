// Package handler exposes the oracle over HTTP: signed verification requests
// in, registry and chain state out.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"idoracle/internal/chain"
	"idoracle/internal/oracle/models"
	"idoracle/internal/oracle/store"
	"idoracle/internal/platform/metrics"
	"idoracle/internal/platform/middleware"
	"idoracle/pkg/domain"
	dErrors "idoracle/pkg/domain-errors"
	"idoracle/pkg/platform/audit"
	"idoracle/pkg/platform/httputil"
	"idoracle/pkg/requestcontext"
)

const (
	requestTimeout    = 30 * time.Second
	maxBodyBytes      = 4 << 10
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// Submitter queues signed calls for the next block.
type Submitter interface {
	SubmitSigned(ctx context.Context, signer domain.AccountID, call models.Call) error
}

// Registry is the read side of the request registry and identity bindings.
type Registry interface {
	Get(ctx context.Context, requester domain.AccountID) (*models.VerificationRequest, error)
	Lookup(ctx context.Context, requester domain.AccountID) (*models.IdentityBinding, error)
}

// HeadReader exposes the latest produced block.
type HeadReader interface {
	Head() chain.Block
}

// AuditReader exposes the audit trail.
type AuditReader interface {
	List(ctx context.Context, account domain.AccountID) ([]audit.Event, error)
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handler serves the oracle API.
type Handler struct {
	logger    *slog.Logger
	submitter Submitter
	registry  Registry
	head      HeadReader
	audit     AuditReader
	validator middleware.AccountValidator
	metrics   *metrics.Metrics
	checks    map[string]HealthCheck
	metricsH  http.Handler
	limit     func(http.Handler) http.Handler
	operators map[domain.AccountID]struct{}
}

type Option func(*Handler)

// WithAudit enables the audit routes.
func WithAudit(reader AuditReader) Option {
	return func(h *Handler) {
		h.audit = reader
	}
}

// WithAuditOperators lists the accounts allowed to read the audit trail of
// every account through GET /v1/audit. Without operators that route always
// answers 403.
func WithAuditOperators(accounts ...domain.AccountID) Option {
	return func(h *Handler) {
		for _, account := range accounts {
			h.operators[account] = struct{}{}
		}
	}
}

// WithHealthCheck adds a named dependency to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		h.checks[name] = check
	}
}

// WithRateLimit guards POST /v1/verifications with limit, applied after
// authentication.
func WithRateLimit(limit func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.limit = limit
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(metricsHandler http.Handler) Option {
	return func(h *Handler) {
		h.metricsH = metricsHandler
	}
}

// New creates a new oracle Handler.
func New(
	submitter Submitter,
	registry Registry,
	head HeadReader,
	validator middleware.AccountValidator,
	logger *slog.Logger,
	m *metrics.Metrics,
	opts ...Option,
) (*Handler, error) {
	if submitter == nil {
		return nil, errors.New("submitter is required")
	}
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if head == nil {
		return nil, errors.New("head reader is required")
	}
	if validator == nil {
		return nil, errors.New("account validator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:    logger,
		submitter: submitter,
		registry:  registry,
		head:      head,
		validator: validator,
		metrics:   m,
		checks:    map[string]HealthCheck{},
		operators: map[domain.AccountID]struct{}{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the API routes on r.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(chimw.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(chimw.Timeout(requestTimeout))
	router.Use(middleware.Latency(h.metrics))

	router.Get("/healthz", h.handleHealth)
	if h.metricsH != nil {
		router.Method(http.MethodGet, "/metrics", h.metricsH)
	}

	router.Route("/v1", func(v1 chi.Router) {
		v1.Get("/verifications/{account}", h.handleGetVerification)
		v1.Get("/identities/{account}", h.handleGetIdentity)
		v1.Get("/chain/head", h.handleGetHead)

		v1.Group(func(authed chi.Router) {
			authed.Use(middleware.RequireAuth(h.validator, h.logger, h.metrics))
			submit := authed.With(chimw.AllowContentType("application/json"))
			if h.limit != nil {
				submit = submit.With(h.limit)
			}
			submit.Post("/verifications", h.handleRequestVerification)
			if h.audit != nil {
				authed.Get("/accounts/{account}/audit", h.handleAccountAudit)
				authed.Get("/audit", h.handleRecentAudit)
			}
		})
	})

	r.Mount("/", router)
}

type requestVerificationBody struct {
	ResourceID string `json:"resource_id"`
}

type requestVerificationResponse struct {
	Requester  domain.AccountID  `json:"requester"`
	ResourceID domain.ResourceID `json:"resource_id"`
	Status     string            `json:"status"`
}

// handleRequestVerification queues a signed RequestVerification authored by
// the token's account. The registry changes when the next block executes.
func (h *Handler) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	account, ok := requestcontext.Account(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "account missing from context despite auth middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var body requestVerificationBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		h.logger.WarnContext(ctx, "invalid verification request body",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	resourceID, err := domain.ParseResourceID(body.ResourceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.submitter.SubmitSigned(ctx, account, models.RequestVerification{ResourceID: resourceID}); err != nil {
		h.logger.ErrorContext(ctx, "failed to queue verification request",
			"request_id", requestID,
			"account", account,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to queue request"))
		return
	}

	h.logger.InfoContext(ctx, "verification request queued",
		"request_id", requestID,
		"account", account,
		"resource_id", resourceID,
	)
	httputil.WriteJSON(w, http.StatusAccepted, requestVerificationResponse{
		Requester:  account,
		ResourceID: resourceID,
		Status:     "queued",
	})
}

func (h *Handler) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountParam(w, r)
	if !ok {
		return
	}
	req, err := h.registry.Get(r.Context(), account)
	if err != nil {
		h.writeLookupError(w, r, err, "no pending verification for account")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountParam(w, r)
	if !ok {
		return
	}
	binding, err := h.registry.Lookup(r.Context(), account)
	if err != nil {
		h.writeLookupError(w, r, err, "no identity bound to account")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, binding)
}

func (h *Handler) handleGetHead(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.head.Head())
}

// handleAccountAudit returns the caller's own audit trail.
func (h *Handler) handleAccountAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := h.accountParam(w, r)
	if !ok {
		return
	}
	if caller, _ := requestcontext.Account(ctx); caller != account {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "audit trail belongs to another account"))
		return
	}
	events, err := h.audit.List(ctx, account)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
}

// handleRecentAudit returns the newest events across all accounts. Operators
// only.
func (h *Handler) handleRecentAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := requestcontext.Account(ctx)
	if _, ok := h.operators[caller]; !ok {
		h.logger.WarnContext(ctx, "audit trail read by non-operator",
			"request_id", requestcontext.RequestID(ctx),
			"account", caller,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "audit trail of all accounts is restricted to operators"))
		return
	}
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxAuditLimit)
	}
	events, err := h.audit.Recent(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list recent audit events",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
}

type healthResponse struct {
	Status string            `json:"status"`
	Height uint64            `json:"height"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Height: h.head.Head().Height}
	status := http.StatusOK
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(r.Context()); err != nil {
				h.logger.WarnContext(r.Context(), "health check failed", "check", name, "error", err)
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) accountParam(w http.ResponseWriter, r *http.Request) (domain.AccountID, bool) {
	account, err := domain.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil || account.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "account must be 32 bytes of hex"))
		return domain.AccountID{}, false
	}
	return account, true
}

func (h *Handler) writeLookupError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, notFound))
		return
	}
	ctx := r.Context()
	h.logger.ErrorContext(ctx, "registry lookup failed",
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "registry lookup failed"))
}

func nonNil(events []audit.Event) []audit.Event {
	if events == nil {
		return []audit.Event{}
	}
	return events
}
