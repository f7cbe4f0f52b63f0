package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"proptyos-backend/internal/httpx"
	"proptyos-backend/internal/transport"
	"proptyos-backend/internal/validation"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	Password string `json:"password" validate:"required,min=4,max=128"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// Handler implements the admin login flow. Credentials come from config
// (the bootstrap admin) or from the users collection; users may be nil when
// running on the memory store.
type Handler struct {
	tokens        *Manager
	users         UserStore
	val           *validation.Validator
	log           *slog.Logger
	adminUser     string
	adminPassword string
	cookieSecure  bool
}

func NewHandler(tokens *Manager, users UserStore, val *validation.Validator, log *slog.Logger, adminUser, adminPassword string, cookieSecure bool) *Handler {
	return &Handler{
		tokens:        tokens,
		users:         users,
		val:           val,
		log:           log,
		adminUser:     adminUser,
		adminPassword: adminPassword,
		cookieSecure:  cookieSecure,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	username := strings.TrimSpace(req.Username)
	if !h.authenticate(ctx, username, req.Password) {
		h.log.Warn("login failed", slog.String("username", username))
		transport.WriteError(w, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}

	if err := h.issueCookies(w, username); err != nil {
		h.log.Error("login: token issue failed", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	h.log.Info("login ok", slog.String("username", username))
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "username": username})
}

func (h *Handler) authenticate(ctx context.Context, username, password string) bool {
	if h.adminPassword != "" &&
		subtle.ConstantTimeCompare([]byte(username), []byte(h.adminUser)) == 1 &&
		subtle.ConstantTimeCompare([]byte(password), []byte(h.adminPassword)) == 1 {
		return true
	}

	if h.users == nil {
		return false
	}
	user, err := h.users.GetByUsername(ctx, username)
	if err != nil {
		return false
	}
	return CheckPassword(user.PasswordHash, password)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookie)
	if err != nil {
		transport.WriteError(w, http.StatusUnauthorized, "missing refresh token", nil)
		return
	}
	claims, err := h.tokens.Verify(cookie.Value, TokenRefresh)
	if err != nil {
		transport.WriteError(w, http.StatusUnauthorized, "invalid refresh token", nil)
		return
	}

	if err := h.issueCookies(w, claims.Username); err != nil {
		h.log.Error("refresh: token issue failed", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, AccessCookie)
	h.clearCookie(w, RefreshCookie)
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if h.users == nil {
		transport.WriteError(w, http.StatusNotImplemented, "user store not configured", nil)
		return
	}

	var req RegisterRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		h.log.Error("register: hash failed", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user := User{
		ID:           primitive.NewObjectID().Hex(),
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := h.users.Insert(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			transport.WriteError(w, http.StatusConflict, "username already taken", nil)
			return
		}
		h.log.Error("register: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	h.log.Info("user registered", slog.String("username", user.Username))
	transport.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) issueCookies(w http.ResponseWriter, username string) error {
	access, err := h.tokens.Issue(username, TokenAccess)
	if err != nil {
		return err
	}
	refresh, err := h.tokens.Issue(username, TokenRefresh)
	if err != nil {
		return err
	}
	h.setCookie(w, AccessCookie, access, h.tokens.AccessTTL())
	h.setCookie(w, RefreshCookie, refresh, h.tokens.RefreshTTL())
	return nil
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
