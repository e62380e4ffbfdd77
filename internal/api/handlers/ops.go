// ops.go — обработчики файловых операций /api/v1/ops/*.
// Все операции принимают JSON с символическими путями.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/bigkaa/mediaserve/internal/api/errors"
	"github.com/bigkaa/mediaserve/internal/api/middleware"
	"github.com/bigkaa/mediaserve/internal/auth"
	"github.com/bigkaa/mediaserve/internal/domain/model"
	"github.com/bigkaa/mediaserve/internal/service"
)

// OpsHandler реализует endpoints файловых операций.
type OpsHandler struct {
	files *service.FilesService
}

// NewOpsHandler создаёт обработчик файловых операций.
func NewOpsHandler(files *service.FilesService) *OpsHandler {
	return &OpsHandler{files: files}
}

// principalFrom извлекает принципала; false — запрос не аутентифицирован
// (401 уже записан в ответ).
func principalFrom(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return model.Principal{}, false
	}
	return principal, true
}

// decodeBody разбирает JSON-тело; false — тело невалидно
// (400 уже записан в ответ).
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, "Невалидное JSON-тело запроса")
		return false
	}
	return true
}

// List обрабатывает POST /api/v1/ops/list.
func (h *OpsHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	var req struct {
		Path string `json:"path"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	items, ferr := h.files.List(r.Context(), principal, req.Path)
	if ferr != nil {
		middleware.OperationsTotal.WithLabelValues("list", "error").Inc()
		apierrors.WriteError(w, ferr.StatusCode, ferr.Code, ferr.Message)
		return
	}

	middleware.OperationsTotal.WithLabelValues("list", "success").Inc()
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Mkdir обрабатывает POST /api/v1/ops/mkdir.
func (h *OpsHandler) Mkdir(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	var req struct {
		Path string `json:"path"`
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if ferr := h.files.CreateFolder(r.Context(), principal, req.Path, req.Name); ferr != nil {
		middleware.OperationsTotal.WithLabelValues("mkdir", "error").Inc()
		apierrors.WriteError(w, ferr.StatusCode, ferr.Code, ferr.Message)
		return
	}

	middleware.OperationsTotal.WithLabelValues("mkdir", "success").Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// Delete обрабатывает POST /api/v1/ops/delete.
func (h *OpsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	var req struct {
		Path string `json:"path"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if ferr := h.files.Delete(r.Context(), principal, req.Path); ferr != nil {
		middleware.OperationsTotal.WithLabelValues("delete", "error").Inc()
		apierrors.WriteError(w, ferr.StatusCode, ferr.Code, ferr.Message)
		return
	}

	middleware.OperationsTotal.WithLabelValues("delete", "success").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Rename обрабатывает POST /api/v1/ops/rename.
func (h *OpsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	var req struct {
		Path    string `json:"path"`
		NewName string `json:"newName"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if ferr := h.files.Rename(r.Context(), principal, req.Path, req.NewName); ferr != nil {
		middleware.OperationsTotal.WithLabelValues("rename", "error").Inc()
		apierrors.WriteError(w, ferr.StatusCode, ferr.Code, ferr.Message)
		return
	}

	middleware.OperationsTotal.WithLabelValues("rename", "success").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Paste обрабатывает POST /api/v1/ops/paste.
func (h *OpsHandler) Paste(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	var req struct {
		SourcePath string `json:"sourcePath"`
		DestPath   string `json:"destPath"`
		Operation  string `json:"operation"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	op := service.PasteOp(req.Operation)
	if ferr := h.files.Paste(r.Context(), principal, req.SourcePath, req.DestPath, op); ferr != nil {
		middleware.OperationsTotal.WithLabelValues(req.Operation, "error").Inc()
		apierrors.WriteError(w, ferr.StatusCode, ferr.Code, ferr.Message)
		return
	}

	middleware.OperationsTotal.WithLabelValues(req.Operation, "success").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
