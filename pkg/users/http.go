package users

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/gateway/auth"
	"github.com/medtriage/platform/pkg/gateway/middleware"
	"github.com/medtriage/platform/pkg/gateway/respond"
)

type AuthHandler struct {
	service     *Service
	tokenSigner *auth.JWTManager
}

func NewAuthHandler(service *Service, tokenSigner *auth.JWTManager) *AuthHandler {
	return &AuthHandler{service: service, tokenSigner: tokenSigner}
}

func (h *AuthHandler) Register(r *mux.Router) {
	r.HandleFunc("/auth/bootstrap/", h.handleBootstrap).Methods(http.MethodPost)
	r.HandleFunc("/auth/register/", h.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login/", h.handleLogin).Methods(http.MethodPost)

	protected := r.NewRoute().Subrouter()
	protected.Use(middleware.Authenticate(h.tokenSigner))
	protected.HandleFunc("/auth/me/", h.handleMe).Methods(http.MethodGet)
}

func (h *AuthHandler) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}

	user, err := h.service.Bootstrap(r.Context(), req)
	if errors.Is(err, ErrBootstrapNotAllowed) {
		respond.Error(w, http.StatusConflict, "Администратор уже создан")
		return
	}
	h.issue(w, user, err, http.StatusCreated)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}

	user, err := h.service.Register(r.Context(), req)
	h.issue(w, user, err, http.StatusCreated)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		logger.Log.WithField("email", req.Email).Warn("authentication failed")
		respond.Error(w, http.StatusUnauthorized, "Неверный email или пароль")
		return
	case errors.Is(err, ErrInactive):
		respond.Error(w, http.StatusForbidden, "Учётная запись деактивирована")
		return
	}
	h.issue(w, user, err, http.StatusOK)
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Требуется авторизация")
		return
	}
	user, err := h.service.Get(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "Пользователь не найден")
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to load current user")
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, user)
}

func (h *AuthHandler) issue(w http.ResponseWriter, user *User, err error, status int) {
	switch {
	case IsValidationError(err):
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ErrEmailAlreadyExists):
		respond.Error(w, http.StatusBadRequest, "Пользователь с таким email уже существует")
		return
	case err != nil:
		logger.Log.WithError(err).Error("user request failed")
		respond.Internal(w)
		return
	}

	token, err := h.tokenSigner.IssueToken(user.ID, user.Role, user.Email)
	if err != nil {
		logger.Log.WithError(err).Error("failed issuing token")
		respond.Internal(w)
		return
	}
	respond.JSON(w, status, AuthResponse{Token: token, User: *user})
}

type AdminHandler struct {
	service *Service
}

func NewAdminHandler(service *Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// Register expects a router already restricted to administrators.
func (h *AdminHandler) Register(r *mux.Router) {
	r.HandleFunc("/users/", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/toggle_active/", h.handleToggle).Methods(http.MethodPost)
}

func (h *AdminHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to list users")
		respond.Internal(w)
		return
	}
	if list == nil {
		list = []User{}
	}
	respond.JSON(w, http.StatusOK, list)
}

func (h *AdminHandler) handleToggle(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, http.StatusNotFound, "Пользователь не найден")
		return
	}
	active, err := h.service.ToggleActive(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "Пользователь не найден")
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to toggle user")
		respond.Internal(w)
		return
	}
	msg := "Пользователь деактивирован"
	if active {
		msg = "Пользователь активирован"
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"message":   msg,
		"is_active": active,
	})
}
