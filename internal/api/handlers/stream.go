// stream.go — обработчик GET /stream/{path}.
//
// Символический путь приходит прямо в URL и может содержать
// percent-encoded сегменты (пробелы, скобки в именах файлов).
// Декодируем каждый сегмент отдельно: закодированный "/" внутри
// сегмента не должен превращаться в разделитель пути.
package handlers

import (
	"net/http"
	"net/url"
	"strings"

	apierrors "github.com/bigkaa/mediaserve/internal/api/errors"
	"github.com/bigkaa/mediaserve/internal/service"
)

// StreamHandler реализует endpoint потоковой отдачи.
type StreamHandler struct {
	stream *service.StreamService
}

// NewStreamHandler создаёт обработчик стриминга.
func NewStreamHandler(stream *service.StreamService) *StreamHandler {
	return &StreamHandler{stream: stream}
}

// Serve обрабатывает GET /stream/{path}.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	symbolic, ok := symbolicFromRequest(r)
	if !ok {
		apierrors.ValidationError(w, "Невалидное кодирование пути")
		return
	}

	if serr := h.stream.Serve(r.Context(), w, r, symbolic, principal); serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
	}
}

// symbolicFromRequest извлекает символический путь из URL после /stream/,
// декодируя каждый сегмент отдельно.
func symbolicFromRequest(r *http.Request) (string, bool) {
	const prefix = "/stream/"

	escaped := r.URL.EscapedPath()
	if !strings.HasPrefix(escaped, prefix) {
		return "", false
	}

	segments := strings.Split(strings.TrimPrefix(escaped, prefix), "/")
	decoded := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		d, err := url.PathUnescape(seg)
		if err != nil {
			return "", false
		}
		decoded = append(decoded, d)
	}
	return strings.Join(decoded, "/"), true
}
