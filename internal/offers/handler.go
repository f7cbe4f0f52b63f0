package offers

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
	"proptyos-backend/internal/pipeline"
	"proptyos-backend/internal/transport"
	"proptyos-backend/internal/validation"

	"github.com/go-chi/chi/v5"
)

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

// Issue stamps the expiry date on a pending offer.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	var req IssueOfferRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("offer issue: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("offer issue: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	entry, err := h.service.IssueOffer(ctx, id, req.ExpiryDate)
	if err != nil {
		h.writeDomainError(w, log, "offer issue", id, err)
		return
	}

	h.invalidateBoard(r.Context())
	log.Info("offer issue: ok", slog.String("entry_id", entry.ID), slog.String("offer_id", entry.Offer.ID))
	transport.WriteJSON(w, http.StatusOK, entry)
}

// Resolve accepts or declines a pending offer by offer id.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	offerID := strings.TrimSpace(chi.URLParam(r, "id"))
	if offerID == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	var req ResolveOfferRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("offer resolve: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("offer resolve: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	entry, err := h.service.ResolveOffer(ctx, offerID, req.Outcome)
	if err != nil {
		h.writeDomainError(w, log, "offer resolve", offerID, err)
		return
	}

	go func(resolved pipeline.Entry, outcome string) {
		notifyCtx, notifyCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer notifyCancel()
		if err := h.service.NotifyOfferResolved(notifyCtx, resolved, outcome); err != nil {
			h.log.Warn("offer resolve: notification failed",
				slog.String("entry_id", resolved.ID),
				slog.String("error", err.Error()),
			)
		}
	}(entry, req.Outcome)

	h.invalidateBoard(r.Context())
	log.Info("offer resolve: ok",
		slog.String("offer_id", offerID),
		slog.String("outcome", req.Outcome),
		slog.String("stage", entry.Stage),
	)
	transport.WriteJSON(w, http.StatusOK, entry)
}

// MarkLetter flags the offer letter as generated by the document service.
func (h *Handler) MarkLetter(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entry, err := h.service.MarkLetterGenerated(ctx, id)
	if err != nil {
		h.writeDomainError(w, log, "offer letter", id, err)
		return
	}

	log.Info("offer letter: ok", slog.String("entry_id", entry.ID))
	transport.WriteJSON(w, http.StatusOK, entry)
}

// Submit opens a higher-authority approval request for an allocation.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	var req SubmitApprovalRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("approval submit: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("approval submit: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	request, err := h.service.SubmitForApproval(ctx, id, req.SubmittedBy)
	if err != nil {
		if errors.Is(err, ErrPendingExists) {
			log.Warn("approval submit: pending exists", slog.String("entry_id", id))
			transport.WriteError(w, http.StatusConflict, "entry already has a pending approval request", nil)
			return
		}
		h.writeDomainError(w, log, "approval submit", id, err)
		return
	}

	log.Info("approval submit: ok", slog.String("entry_id", id), slog.String("request_id", request.ID))
	transport.WriteJSON(w, http.StatusCreated, request)
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	var req ApproveRequestRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("approval approve: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	request, err := h.service.Approve(ctx, id, req.Approver)
	if err != nil {
		h.writeDomainError(w, log, "approval approve", id, err)
		return
	}

	log.Info("approval approve: ok", slog.String("request_id", request.ID), slog.String("approver", request.Approver))
	transport.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) DeclineRequest(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	var req DeclineRequestRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("approval decline: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	request, err := h.service.Decline(ctx, id, req.Reason)
	if err != nil {
		h.writeDomainError(w, log, "approval decline", id, err)
		return
	}

	log.Info("approval decline: ok", slog.String("request_id", request.ID))
	transport.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 20, 100)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, total, err := h.service.ListRequests(ctx, r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		if errors.Is(err, ErrInvalidStatus) {
			transport.WriteError(w, http.StatusBadRequest, "invalid query", map[string]string{"status": "oneof"})
			return
		}
		log.Error("approval list: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	log.Info("approval list: ok", slog.Int("count", len(items)))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, log *slog.Logger, op, id string, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		log.Warn(op+": not found", slog.String("id", id))
		transport.WriteError(w, http.StatusNotFound, "not found", nil)
	case errors.Is(err, pipeline.ErrAlreadyResolved):
		log.Warn(op+": already resolved", slog.String("id", id))
		transport.WriteError(w, http.StatusConflict, "already resolved", nil)
	case errors.Is(err, pipeline.ErrInvalidTransition):
		log.Warn(op+": invalid state", slog.String("id", id))
		transport.WriteError(w, http.StatusConflict, "invalid state for operation", nil)
	default:
		log.Error(op+": database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
	}
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
