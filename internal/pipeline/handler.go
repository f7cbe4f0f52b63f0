package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"proptyos-backend/internal/cache"
	"proptyos-backend/internal/httpx"
	"proptyos-backend/internal/middleware"
	"proptyos-backend/internal/transport"
	"proptyos-backend/internal/validation"

	"github.com/go-chi/chi/v5"
)

const boardCacheTTL = 30 * time.Second

type Handler struct {
	service *Service
	val     *validation.Validator
	log     *slog.Logger
	cache   cache.Cache
}

func NewHandler(service *Service, val *validation.Validator, log *slog.Logger, cacheStore cache.Cache) *Handler {
	return &Handler{
		service: service,
		val:     val,
		log:     log,
		cache:   cacheStore,
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	var req CreateLeadRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("pipeline create: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("pipeline create: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	entry, err := h.service.CreateLead(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateUnit):
			log.Warn("pipeline create: unit taken",
				slog.String("project_id", req.ProjectID),
				slog.String("plot_number", req.PlotNumber),
			)
			transport.WriteError(w, http.StatusConflict, "unit already has an active entry", nil)
		case errors.Is(err, ErrRefNotFound):
			log.Warn("pipeline create: unknown reference", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusBadRequest, "referenced record not found", nil)
		case errors.Is(err, ErrInvalidPriority):
			transport.WriteError(w, http.StatusBadRequest, "validation error", map[string]string{"priority": "oneof"})
		default:
			log.Error("pipeline create: database error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		}
		return
	}

	h.invalidateBoard(r.Context())
	log.Info("pipeline create: ok",
		slog.String("entry_id", entry.ID),
		slog.String("project_id", entry.ProjectID),
		slog.String("plot_number", entry.PlotNumber),
	)
	transport.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	entry, err := h.service.AdvanceStage(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			log.Warn("pipeline advance: not found", slog.String("entry_id", id))
			transport.WriteError(w, http.StatusNotFound, "entry not found", nil)
		case errors.Is(err, ErrInvalidTransition):
			log.Warn("pipeline advance: invalid transition", slog.String("entry_id", id))
			transport.WriteError(w, http.StatusConflict, "invalid stage transition", nil)
		case errors.Is(err, ErrUnitConflict):
			log.Warn("pipeline advance: unit conflict", slog.String("entry_id", id))
			transport.WriteError(w, http.StatusConflict, "unit is actively held", nil)
		default:
			log.Error("pipeline advance: database error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		}
		return
	}

	h.invalidateBoard(r.Context())
	log.Info("pipeline advance: ok", slog.String("entry_id", entry.ID), slog.String("stage", entry.Stage))
	transport.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entry, err := h.service.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("pipeline get: not found", slog.String("entry_id", id))
			transport.WriteError(w, http.StatusNotFound, "entry not found", nil)
			return
		}
		log.Error("pipeline get: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	transport.WriteJSON(w, http.StatusOK, h.withLapsed(entry))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 20, 100)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	filter := ListFilter{
		Stage: r.URL.Query().Get("stage"),
		Query: r.URL.Query().Get("q"),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, total, err := h.service.List(ctx, filter, limit, offset)
	if err != nil {
		if errors.Is(err, ErrInvalidStage) {
			transport.WriteError(w, http.StatusBadRequest, "invalid query", map[string]string{"stage": "oneof"})
			return
		}
		log.Error("pipeline list: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	log.Info("pipeline list: ok", slog.Int("count", len(items)))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 20, 100)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, total, err := h.service.History(ctx, limit, offset)
	if err != nil {
		log.Error("pipeline history: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}

func (h *Handler) Board(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	cacheKey := "pipeline:board"
	if query == "" && h.cache != nil {
		if payload, ok, err := h.cache.Get(r.Context(), cacheKey); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(payload)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	board, err := h.service.Board(ctx, query)
	if err != nil {
		log.Error("pipeline board: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	if query == "" && h.cache != nil {
		if payload, err := transport.EncodeJSON(board); err == nil {
			_ = h.cache.Set(r.Context(), cacheKey, payload, boardCacheTTL)
		}
	}

	transport.WriteJSON(w, http.StatusOK, board)
}

// withLapsed decorates the entry with the display-only lapsed flag for its
// pending offer.
func (h *Handler) withLapsed(entry Entry) map[string]interface{} {
	out := map[string]interface{}{"entry": entry}
	if entry.Offer != nil {
		out["offer_lapsed"] = entry.Offer.Lapsed(time.Now())
	}
	return out
}

func (h *Handler) invalidateBoard(ctx context.Context) {
	if h.cache != nil {
		_ = h.cache.DeletePrefix(ctx, "pipeline:")
	}
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	if r == nil {
		return h.log
	}
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return h.log.With(slog.String("request_id", id))
	}
	return h.log
}
