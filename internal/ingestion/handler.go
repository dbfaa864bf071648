package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/idempotency"
	"github.com/JaimeStill/tally/pkg/handlers"
	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/routes"
)

// maxUploadBytes caps a single upload at 32 MiB.
const maxUploadBytes = 32 << 20

// Handler provides HTTP endpoints for ingestion operations.
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
		logger:     logger.With("handler", "ingestion"),
		pagination: pagination,
	}
}

// WithLedger attaches the idempotency ledger used by the upload endpoint.
func (h *Handler) WithLedger(ledger idempotency.System) *Handler {
	h.ledger = ledger
	return h
}

// Routes returns the route group definition for ingestion endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/ingestion",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "POST", Pattern: "", Handler: h.Upload},
			{Method: "POST", Pattern: "/{id}/resolve", Handler: h.Resolve},
		},
	}
}

// List returns a paginated list of ingestion jobs with optional query parameter filters.
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

// Find returns a single ingestion job by its UUID path parameter.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("invalid job id"))
		return
	}

	j, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, j)
}

// Upload receives a multipart file and runs it through ingestion. The
// Idempotency-Key header is required; a replayed key returns the original
// job without re-ingesting the file.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, idempotency.ErrEmptyKey)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("file field required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("failed to read upload"))
		return
	}
	if len(data) > maxUploadBytes {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, errors.New("upload exceeds size limit"))
		return
	}

	priority := 0
	if v := r.FormValue("priority"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			priority = n
		}
	}

	cmd := UploadCommand{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Source:      r.FormValue("source"),
		Priority:    priority,
	}

	result, replayed, err := h.ledger.Execute(
		r.Context(), key, idempotency.OpUpload,
		func(ctx context.Context) (json.RawMessage, error) {
			job, err := h.sys.Upload(ctx, cmd)
			if err != nil {
				return nil, err
			}
			return json.Marshal(job)
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

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
		w.Header().Set("Idempotency-Replayed", "true")
	}
	handlers.RespondJSON(w, status, json.RawMessage(result))
}

type resolveRequest struct {
	Proceed    bool   `json:"proceed"`
	ResolvedBy string `json:"resolved_by"`
}

// Resolve settles a job held in require_review: proceed processes the upload
// despite the duplicate match, otherwise the upload is discarded.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("invalid job id"))
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

	job, err := h.sys.Resolve(r.Context(), ResolveCommand{
		ID:         id,
		Proceed:    req.Proceed,
		ResolvedBy: req.ResolvedBy,
	})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, job)
}
