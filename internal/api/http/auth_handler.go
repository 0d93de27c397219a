package http

import (
	"encoding/json"
	"net/http"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/service"
)

// AuthHandler serves the staff login stub
type AuthHandler struct {
	authSvc service.AuthService
}

func NewAuthHandler(authSvc service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	User        *domain.User `json:"user"`
}

type RegisterRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DisplayKey string `json:"display_key"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "validation", "invalid login payload")
		return
	}
	token, user, err := h.authSvc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{AccessToken: token, User: user})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "validation", "invalid register payload")
		return
	}
	user, err := h.authSvc.Register(r.Context(), req.Username, req.Password, req.DisplayKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}
