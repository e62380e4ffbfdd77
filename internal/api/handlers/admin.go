// admin.go — административные endpoints /api/v1/admin/*.
// Доступны только администраторам (middleware.RequireAdmin).
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/mediaserve/internal/api/errors"
	"github.com/bigkaa/mediaserve/internal/domain/model"
	"github.com/bigkaa/mediaserve/internal/service"
)

// AdminHandler реализует административные endpoints.
type AdminHandler struct {
	admin *service.AdminService
}

// NewAdminHandler создаёт обработчик административных endpoints.
func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// ListUsers обрабатывает GET /api/v1/admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, aerr := h.admin.ListUsers(r.Context())
	if aerr != nil {
		apierrors.WriteError(w, aerr.StatusCode, aerr.Code, aerr.Message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// CreateUser обрабатывает POST /api/v1/admin/users.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = string(model.RoleUser)
	}

	user, aerr := h.admin.CreateUser(r.Context(), req.Username, req.Password, model.Role(req.Role))
	if aerr != nil {
		apierrors.WriteError(w, aerr.StatusCode, aerr.Code, aerr.Message)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// DeleteUser обрабатывает DELETE /api/v1/admin/users/{username}.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if aerr := h.admin.DeleteUser(r.Context(), username); aerr != nil {
		apierrors.WriteError(w, aerr.StatusCode, aerr.Code, aerr.Message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListRoots обрабатывает GET /api/v1/admin/roots.
func (h *AdminHandler) ListRoots(w http.ResponseWriter, r *http.Request) {
	rootList, aerr := h.admin.ListRoots(r.Context())
	if aerr != nil {
		apierrors.WriteError(w, aerr.StatusCode, aerr.Code, aerr.Message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roots": rootList})
}

// AddRoot обрабатывает POST /api/v1/admin/roots.
func (h *AdminHandler) AddRoot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path         string   `json:"path"`
		AllowedUsers []string `json:"allowedUsers"`
		IsDefault    bool     `json:"isDefault"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if aerr := h.admin.AddRoot(r.Context(), req.Path, req.AllowedUsers, req.IsDefault); aerr != nil {
		apierrors.WriteError(w, aerr.StatusCode, aerr.Code, aerr.Message)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// UpdateRoot обрабатывает PUT /api/v1/admin/roots/{index}.
func (h *AdminHandler) UpdateRoot(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		apierrors.ValidationError(w, "Индекс корня должен быть числом")
		return
	}

	var req struct {
		AllowedUsers []string `json:"allowedUsers"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if aerr := h.admin.UpdateRoot(r.Context(), index, req.AllowedUsers); aerr != nil {
		apierrors.WriteError(w, aerr.StatusCode, aerr.Code, aerr.Message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DeleteRoot обрабатывает DELETE /api/v1/admin/roots/{index}.
func (h *AdminHandler) DeleteRoot(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		apierrors.ValidationError(w, "Индекс корня должен быть числом")
		return
	}

	if aerr := h.admin.DeleteRoot(r.Context(), index); aerr != nil {
		apierrors.WriteError(w, aerr.StatusCode, aerr.Code, aerr.Message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// History обрабатывает GET /api/v1/history.
// Endpoint доступен всем аутентифицированным: администратор видит
// весь журнал, пользователь — только свои записи.
func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	entries, aerr := h.admin.History(r.Context(), principal)
	if aerr != nil {
		apierrors.WriteError(w, aerr.StatusCode, aerr.Code, aerr.Message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}
