package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/barberline/barbershop/services/booking-service/internal/accounts"
)

type AuthHandler struct {
	accounts *accounts.Service
	logger   *slog.Logger
}

func NewAuthHandler(accountsSvc *accounts.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accountsSvc, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	tok, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		h.logger.Info("admin login rejected", "email", strings.ToLower(req.Email))
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("admin login failed", "err", err)
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   tok.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
