package handler

import (
	"net/http"

	"github.com/tradebot/backoffice/internal/contextkeys"
	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/service"
)

// AuthHandler handles authentication HTTP endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}

// Register handles POST /api/auth/register. The role field is ignored.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}
	req.Role = ""

	resp, err := h.auth.Register(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, resp)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.GetUserByID(r.Context(), contextkeys.UserIDFrom(r.Context()))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, user)
}

// UpdateWallet handles PUT /api/auth/wallet.
func (h *AuthHandler) UpdateWallet(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateWalletRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	user, err := h.auth.UpdateWallet(r.Context(), contextkeys.UserIDFrom(r.Context()), req.WalletAddress)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, user)
}

// Logout handles POST /api/auth/logout. Tokens are stateless, so the client
// just drops its copy.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
