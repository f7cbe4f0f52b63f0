package directory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"proptyos-backend/internal/httpx"
	"proptyos-backend/internal/middleware"
	"proptyos-backend/internal/transport"
	"proptyos-backend/internal/validation"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service *Service
	val     *validation.Validator
	log     *slog.Logger
}

func NewHandler(service *Service, val *validation.Validator, log *slog.Logger) *Handler {
	return &Handler{
		service: service,
		val:     val,
		log:     log,
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	kind := strings.TrimSpace(chi.URLParam(r, "kind"))

	var req CreateRecordRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("directory create: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	rec, err := h.service.Create(ctx, kind, req)
	if err != nil {
		if errors.Is(err, ErrInvalidKind) {
			transport.WriteError(w, http.StatusNotFound, "unknown directory kind", nil)
			return
		}
		log.Error("directory create: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	log.Info("directory create: ok", slog.String("kind", kind), slog.String("record_id", rec.ID))
	transport.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	kind := strings.TrimSpace(chi.URLParam(r, "kind"))
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.service.Get(ctx, kind, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidKind):
			transport.WriteError(w, http.StatusNotFound, "unknown directory kind", nil)
		case errors.Is(err, ErrNotFound):
			log.Warn("directory get: not found", slog.String("kind", kind), slog.String("record_id", id))
			transport.WriteError(w, http.StatusNotFound, "record not found", nil)
		default:
			log.Error("directory get: database error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		}
		return
	}

	transport.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	kind := strings.TrimSpace(chi.URLParam(r, "kind"))
	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 50, 200)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, total, err := h.service.List(ctx, kind, limit, offset)
	if err != nil {
		if errors.Is(err, ErrInvalidKind) {
			transport.WriteError(w, http.StatusNotFound, "unknown directory kind", nil)
			return
		}
		log.Error("directory list: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	log.Info("directory list: ok", slog.String("kind", kind), slog.Int("count", len(items)))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	kind := strings.TrimSpace(chi.URLParam(r, "kind"))
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	var req UpdateRecordRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("directory update: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	rec, err := h.service.Update(ctx, kind, id, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidKind):
			transport.WriteError(w, http.StatusNotFound, "unknown directory kind", nil)
		case errors.Is(err, ErrNotFound):
			log.Warn("directory update: not found", slog.String("kind", kind), slog.String("record_id", id))
			transport.WriteError(w, http.StatusNotFound, "record not found", nil)
		default:
			log.Error("directory update: database error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		}
		return
	}

	log.Info("directory update: ok", slog.String("kind", kind), slog.String("record_id", rec.ID))
	transport.WriteJSON(w, http.StatusOK, rec)
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
