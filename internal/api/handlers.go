package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xtrntr/marketplace/internal/auth"
	"github.com/xtrntr/marketplace/internal/marketplace"
	"github.com/xtrntr/marketplace/internal/models"
)

type contextKey struct{}

var accountKey = contextKey{}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Engine      *marketplace.Engine
	AuthService *auth.AuthService
	logger      *slog.Logger
}

// NewHandler creates a new handler
func NewHandler(engine *marketplace.Engine, authService *auth.AuthService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Engine: engine, AuthService: authService, logger: logger}
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Username and password required")
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUsernameTaken) {
			writeMessage(w, http.StatusConflict, "Username already taken")
			return
		}
		h.logger.Warn("failed to register user", slog.String("username", req.Username), slog.Any("error", err))
		writeMessage(w, http.StatusBadRequest, "Failed to register user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
		"account":  user.Account,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens and stores the caller's account in
// the request context
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeMessage(w, http.StatusUnauthorized, "Authorization header required")
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		account, err := h.AuthService.AccountFromToken(tokenString)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), accountKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetStats returns platform-wide counters
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Stats())
}

func callerFrom(r *http.Request) models.AccountID {
	account, _ := r.Context().Value(accountKey).(models.AccountID)
	return account
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError translates a marketplace outcome into a status code and a body
// carrying the outcome code.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := marketplace.Code(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("code", code), slog.Any("error", err))
	}
	msg := err.Error()
	if code == "" {
		msg = "Internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func statusFor(code string) int {
	switch code {
	case marketplace.ErrProductNotFound.Code,
		marketplace.ErrSellerNotFound.Code,
		marketplace.ErrOrderNotFound.Code:
		return http.StatusNotFound
	case marketplace.ErrNotOwner.Code,
		marketplace.ErrNotRegisteredSeller.Code,
		marketplace.ErrNotOrderSeller.Code,
		marketplace.ErrNotOrderBuyer.Code,
		marketplace.ErrSellerCannotBuyOwnProduct.Code,
		marketplace.ErrPurchaseRequired.Code:
		return http.StatusForbidden
	case marketplace.ErrAlreadyRegistered.Code,
		marketplace.ErrInvalidState.Code,
		marketplace.ErrNoFunds.Code,
		marketplace.ErrInsufficientStock.Code,
		marketplace.ErrProductUnavailable.Code:
		return http.StatusConflict
	case marketplace.ErrInvalidPrice.Code,
		marketplace.ErrInvalidStock.Code,
		marketplace.ErrInvalidCategory.Code,
		marketplace.ErrInvalidQuantity.Code,
		marketplace.ErrIncorrectPayment.Code,
		marketplace.ErrRatingOutOfRange.Code,
		marketplace.ErrRateTooHigh.Code:
		return http.StatusBadRequest
	case marketplace.ErrTransferFailed.Code:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
