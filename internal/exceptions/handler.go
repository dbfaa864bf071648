package exceptions

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/idempotency"
	"github.com/JaimeStill/tally/pkg/handlers"
	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/routes"
)

// Handler provides HTTP endpoints for exception operations.
type Handler struct {
	sys        System
	ledger     idempotency.System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "exceptions"),
		pagination: pagination,
	}
}

// WithLedger attaches the idempotency ledger used by the resolve endpoint.
func (h *Handler) WithLedger(ledger idempotency.System) *Handler {
	h.ledger = ledger
	return h
}

// Routes returns the route group definition for exception endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/exceptions",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "GET", Pattern: "/invoice/{id}", Handler: h.ForInvoice},
			{Method: "POST", Pattern: "/{id}/resolve", Handler: h.Resolve},
		},
	}
}

// List returns a paginated list of exceptions with optional query parameter filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns a single exception by its UUID path parameter.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("invalid exception id"))
		return
	}

	e, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, e)
}

// ForInvoice returns every exception raised against an invoice, oldest
// first, so reviewers see the full unresolved set alongside the resolved
// history.
func (h *Handler) ForInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("invalid invoice id"))
		return
	}

	items, err := h.sys.ForInvoice(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, items)
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
	Notes      string `json:"notes"`
}

// Resolve marks an open exception as resolved. The operation is guarded by
// the Idempotency-Key header: a replayed request returns the cached result
// without re-resolving.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("invalid exception id"))
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	if req.ResolvedBy == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("resolved_by required"))
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, idempotency.ErrEmptyKey)
		return
	}

	result, replayed, err := h.ledger.Execute(
		r.Context(), key, idempotency.OpExceptionResolve,
		func(ctx context.Context) (json.RawMessage, error) {
			resolved, err := h.sys.Resolve(ctx, ResolveCommand{
				ID:         id,
				ResolvedBy: req.ResolvedBy,
				Notes:      req.Notes,
			})
			if err != nil {
				return nil, err
			}
			return json.Marshal(resolved)
		},
	)
	if err != nil {
		status := MapHTTPStatus(err)
		if ledgerStatus := idempotency.MapHTTPStatus(err); ledgerStatus != http.StatusInternalServerError {
			status = ledgerStatus
		}
		handlers.RespondError(w, h.logger, status, err)
		return
	}

	status := http.StatusOK
	if replayed {
		w.Header().Set("Idempotency-Replayed", "true")
	}
	handlers.RespondJSON(w, status, json.RawMessage(result))
}
