package reviews

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/invoices"
	"github.com/JaimeStill/tally/pkg/handlers"
	"github.com/JaimeStill/tally/pkg/routes"
)

// Handler provides HTTP endpoints for review operations.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "reviews"),
	}
}

// Routes returns the route group definition for review endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/reviews",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.Pending},
			{Method: "POST", Pattern: "/{id}/decide", Handler: h.Decide},
		},
	}
}

// Pending lists invoices suspended in human review.
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.sys.Pending(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, pending)
}

type decideRequest struct {
	Decision    string            `json:"decision"`
	Corrections invoices.FieldSet `json:"corrections,omitempty"`
	Note        string            `json:"note,omitempty"`
	DecidedBy   string            `json:"decided_by"`
}

// Decide applies an operator decision to a suspended invoice.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("invalid invoice id"))
		return
	}

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	if req.DecidedBy == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("decided_by required"))
		return
	}

	inv, err := h.sys.Decide(r.Context(), DecideCommand{
		InvoiceID:   id,
		Decision:    req.Decision,
		Corrections: req.Corrections,
		Note:        req.Note,
		DecidedBy:   req.DecidedBy,
	})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, inv)
}
