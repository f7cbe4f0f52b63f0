package allocation

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

type ApproveRequest struct {
	Approver string `json:"approver" validate:"required"`
}

type RecordPaymentRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type ReallocateRequest struct {
	PlotNumber string `json:"plot_number" validate:"required,plot"`
}

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

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	var req ApproveRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("allocation approve: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	entry, err := h.service.Approve(ctx, id, req.Approver)
	if err != nil {
		h.writeDomainError(w, log, "allocation approve", id, err)
		return
	}

	go func(approved pipeline.Entry) {
		notifyCtx, notifyCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer notifyCancel()
		if err := h.service.NotifyApproved(notifyCtx, approved); err != nil {
			h.log.Warn("allocation approve: notification failed",
				slog.String("entry_id", approved.ID),
				slog.String("error", err.Error()),
			)
		}
	}(entry)

	h.invalidateBoard(r.Context())
	log.Info("allocation approve: ok",
		slog.String("entry_id", entry.ID),
		slog.String("approved_by", entry.Allocation.ApprovedBy),
	)
	transport.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	entry, err := h.service.Reject(ctx, id)
	if err != nil {
		h.writeDomainError(w, log, "allocation reject", id, err)
		return
	}

	h.invalidateBoard(r.Context())
	log.Info("allocation reject: ok", slog.String("entry_id", entry.ID))
	transport.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	var req RecordPaymentRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("allocation payment: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	entry, err := h.service.RecordPayment(ctx, id, req.Amount)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			transport.WriteError(w, http.StatusBadRequest, "validation error", map[string]string{"amount": "gt"})
			return
		}
		h.writeDomainError(w, log, "allocation payment", id, err)
		return
	}

	h.invalidateBoard(r.Context())
	log.Info("allocation payment: ok",
		slog.String("entry_id", entry.ID),
		slog.Int64("amount_paid", entry.Allocation.AmountPaid),
		slog.String("progress", entry.Allocation.Progress),
	)
	transport.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) Reallocate(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	var req ReallocateRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("allocation reallocate: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	entry, err := h.service.Reallocate(ctx, id, req.PlotNumber)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnitConflict) {
			log.Warn("allocation reallocate: unit conflict",
				slog.String("entry_id", id),
				slog.String("plot_number", req.PlotNumber),
			)
			transport.WriteError(w, http.StatusConflict, "unit is actively held", nil)
			return
		}
		h.writeDomainError(w, log, "allocation reallocate", id, err)
		return
	}

	h.invalidateBoard(r.Context())
	log.Info("allocation reallocate: ok",
		slog.String("entry_id", entry.ID),
		slog.String("plot_number", entry.PlotNumber),
	)
	transport.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	entry, err := h.service.Revoke(ctx, id)
	if err != nil {
		h.writeDomainError(w, log, "allocation revoke", id, err)
		return
	}

	h.invalidateBoard(r.Context())
	log.Info("allocation revoke: ok", slog.String("entry_id", entry.ID))
	transport.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) MarkContract(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entry, err := h.service.MarkContractGenerated(ctx, id)
	if err != nil {
		h.writeDomainError(w, log, "allocation contract", id, err)
		return
	}

	log.Info("allocation contract: ok", slog.String("entry_id", entry.ID))
	transport.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, log *slog.Logger, op, id string, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		log.Warn(op+": not found", slog.String("entry_id", id))
		transport.WriteError(w, http.StatusNotFound, "entry not found", nil)
	case errors.Is(err, pipeline.ErrAlreadyResolved):
		log.Warn(op+": already resolved", slog.String("entry_id", id))
		transport.WriteError(w, http.StatusConflict, "already resolved", nil)
	case errors.Is(err, pipeline.ErrApprovalRequired):
		log.Warn(op+": approval required", slog.String("entry_id", id))
		transport.WriteError(w, http.StatusConflict, "pending approval request must be approved first", nil)
	case errors.Is(err, pipeline.ErrLedgerLocked):
		log.Warn(op+": ledger locked", slog.String("entry_id", id))
		transport.WriteError(w, http.StatusConflict, "allocation is fully paid and locked", nil)
	case errors.Is(err, pipeline.ErrInvalidTransition):
		log.Warn(op+": invalid state", slog.String("entry_id", id))
		transport.WriteError(w, http.StatusConflict, "invalid state for operation", nil)
	case errors.Is(err, ErrConflict):
		log.Warn(op+": concurrent update", slog.String("entry_id", id))
		transport.WriteError(w, http.StatusConflict, "allocation changed concurrently, retry", nil)
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
