package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	middleware "github.com/fayaebeb/mirai-mod/internal/api/middlewares"
	"github.com/fayaebeb/mirai-mod/internal/models"
	"github.com/fayaebeb/mirai-mod/internal/services"
)

type AuthHandler struct {
	users  *services.UserService
	secret string
	logger *zap.Logger
}

func NewAuthHandler(users *services.UserService, secret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, secret: secret, logger: logger}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	user, err := h.users.Signup(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err, "create account")
		return
	}
	h.logger.Info("user signed up", zap.Int64("user_id", user.ID))
	h.respondWithToken(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err, "log in")
		return
	}
	h.respondWithToken(w, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, status int, user *models.User) {
	token, err := middleware.IssueToken(h.secret, user)
	if err != nil {
		h.logger.Error("sign token failed", zap.Int64("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, status, authResponse{Token: token, User: user})
}
