// upload.go — обработчик POST /api/v1/upload.
//
// Формат запроса — multipart/form-data:
//   - dir — символический путь целевого каталога
//   - file — файлы (повторяющееся поле)
//   - relativePaths — относительные пути файлов, параллельно полю file
//     (опционально; без него используется имя файла)
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/mediaserve/internal/api/errors"
	"github.com/bigkaa/mediaserve/internal/service"
)

// multipartMemoryLimit — размер буфера в памяти при разборе формы;
// остальное уходит во временные файлы.
const multipartMemoryLimit = 32 << 20

// UploadHandler реализует endpoint загрузки файлов.
type UploadHandler struct {
	upload        *service.UploadService
	maxUploadSize int64
	logger        *slog.Logger
}

// NewUploadHandler создаёт обработчик загрузки.
func NewUploadHandler(upload *service.UploadService, maxUploadSize int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		upload:        upload,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "upload_handler")),
	}
}

// Upload обрабатывает POST /api/v1/upload.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	// Лимит на весь запрос целиком
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.FileTooLarge(w, "Запрос превышает лимит загрузки")
			return
		}
		apierrors.ValidationError(w, "Ожидается multipart/form-data")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	dir := r.FormValue("dir")
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		apierrors.ValidationError(w, "Не переданы файлы (поле file)")
		return
	}
	relativePaths := r.MultipartForm.Value["relativePaths"]

	// Открываем файлы и собираем партию
	files := make([]service.IncomingFile, 0, len(headers))
	opened := make([]interface{ Close() error }, 0, len(headers))
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()

	for i, header := range headers {
		f, err := header.Open()
		if err != nil {
			h.logger.Error("Ошибка открытия части multipart",
				slog.String("filename", header.Filename),
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Ошибка чтения загруженного файла")
			return
		}
		opened = append(opened, f)

		rel := header.Filename
		if i < len(relativePaths) && relativePaths[i] != "" {
			rel = relativePaths[i]
		}
		files = append(files, service.IncomingFile{RelativePath: rel, Content: f})
	}

	saved, uerr := h.upload.Ingest(r.Context(), principal, dir, files)
	if uerr != nil {
		apierrors.WriteError(w, uerr.StatusCode, uerr.Code, uerr.Message)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"count":    saved,
		"received": len(files),
	})
}
