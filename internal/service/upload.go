// upload.go — сервис приёма файлов.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bigkaa/mediaserve/internal/activity"
	apierrors "github.com/bigkaa/mediaserve/internal/api/errors"
	"github.com/bigkaa/mediaserve/internal/api/middleware"
	"github.com/bigkaa/mediaserve/internal/domain/model"
	"github.com/bigkaa/mediaserve/internal/roots"
	"github.com/bigkaa/mediaserve/internal/sandbox"
)

// IncomingFile — один файл из multipart-запроса.
type IncomingFile struct {
	// RelativePath — путь файла относительно целевого каталога.
	// Может содержать подкаталоги (загрузка дерева целиком).
	RelativePath string
	// Content — содержимое файла.
	Content io.Reader
}

// UploadService — сервис приёма файлов.
type UploadService struct {
	resolver *sandbox.Resolver
	recorder activity.Recorder
	logger   *slog.Logger
}

// NewUploadService создаёт сервис приёма файлов.
func NewUploadService(resolver *sandbox.Resolver, recorder activity.Recorder, logger *slog.Logger) *UploadService {
	return &UploadService{
		resolver: resolver,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "upload_service")),
	}
}

// UploadError — ошибка загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Ingest сохраняет набор файлов в каталог destSymbolic.
// Относительный путь каждого файла нормализуется; файл, чей путь
// после нормализации выходит за границу или пуст, молча пропускается —
// остальная партия при этом сохраняется. Существующие файлы
// перезаписываются.
//
// Возвращает количество сохранённых файлов.
func (s *UploadService) Ingest(ctx context.Context, principal model.Principal, destSymbolic string, files []IncomingFile) (int, *UploadError) {
	// 1. Разрешаем целевой каталог
	loc, err := s.resolver.Resolve(ctx, destSymbolic, principal)
	if err != nil {
		return 0, mapUploadError(err)
	}
	if info, serr := os.Stat(loc.AbsolutePath); serr != nil || !info.IsDir() {
		return 0, &UploadError{
			StatusCode: 404,
			Code:       apierrors.CodeNotFound,
			Message:    "Целевой каталог не найден",
		}
	}

	// 2. Сохраняем файлы по одному
	saved := 0
	for _, file := range files {
		rel := sandbox.NormalizeInner(file.RelativePath)
		if rel == "" {
			s.logger.Warn("Файл пропущен: пустой путь после нормализации",
				slog.String("relative_path", file.RelativePath),
			)
			continue
		}

		target := filepath.Join(loc.AbsolutePath, filepath.FromSlash(rel))
		if !sandbox.WithinBoundary(target, loc.Boundary) {
			s.logger.Warn("Файл пропущен: путь выходит за границу",
				slog.String("relative_path", file.RelativePath),
				slog.String("username", principal.Username),
			)
			continue
		}

		n, werr := writeUpload(target, file.Content)
		middleware.UploadBytesTotal.Add(float64(n))
		if werr != nil {
			s.logger.Error("Ошибка сохранения файла",
				slog.String("path", target),
				slog.String("error", werr.Error()),
			)
			middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
			return saved, &UploadError{
				StatusCode: 500,
				Code:       apierrors.CodeInternalError,
				Message:    fmt.Sprintf("Ошибка сохранения файла %s", rel),
			}
		}

		saved++
		s.logger.Debug("Файл сохранён",
			slog.String("path", target),
			slog.Int64("size", n),
		)
	}

	// 3. Одна запись журнала на всю партию
	if saved > 0 {
		s.recorder.Record(ctx, principal, model.ActionUpload, uploadDetails(saved, files, destSymbolic))
	}
	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()

	s.logger.Info("Загрузка завершена",
		slog.String("username", principal.Username),
		slog.String("dest", destSymbolic),
		slog.Int("saved", saved),
		slog.Int("received", len(files)),
	)
	return saved, nil
}

// uploadDetails формирует текст записи журнала для партии загрузки.
func uploadDetails(saved int, files []IncomingFile, destSymbolic string) string {
	if saved == 1 && len(files) == 1 {
		return fmt.Sprintf("Uploaded '%s'", filepath.Base(files[0].RelativePath))
	}
	_, inner, err := sandbox.ParsePath(destSymbolic)
	dest := "root"
	if err == nil {
		if inner = sandbox.NormalizeInner(inner); inner != "" {
			dest = "'" + inner + "'"
		}
	}
	return fmt.Sprintf("Uploaded %d files to %s", saved, dest)
}

// writeUpload атомарно записывает содержимое файла:
// временный файл в том же каталоге, fsync, rename.
// Возвращает количество записанных байт.
func writeUpload(target string, content io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return 0, fmt.Errorf("создание каталога %s: %w", filepath.Dir(target), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("создание временного файла: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, content)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return n, fmt.Errorf("запись %s: %w", target, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return n, fmt.Errorf("fsync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return n, fmt.Errorf("закрытие %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return n, fmt.Errorf("rename %s -> %s: %w", tmpPath, target, err)
	}
	return n, nil
}

// mapUploadError переводит ошибки разрешения пути в UploadError.
func mapUploadError(err error) *UploadError {
	switch {
	case errors.Is(err, roots.ErrInvalidRoot):
		return &UploadError{
			StatusCode: 400,
			Code:       apierrors.CodeInvalidRoot,
			Message:    "Несуществующий медиа-корень",
		}
	case errors.Is(err, roots.ErrForbidden):
		return &UploadError{
			StatusCode: 403,
			Code:       apierrors.CodeForbidden,
			Message:    "Доступ к медиа-корню запрещён",
		}
	case errors.Is(err, sandbox.ErrAccessDenied):
		return &UploadError{
			StatusCode: 403,
			Code:       apierrors.CodeAccessDenied,
			Message:    "Путь выходит за границу доступа",
		}
	case errors.Is(err, sandbox.ErrMalformedPath):
		return &UploadError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Некорректный путь",
		}
	default:
		return &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Внутренняя ошибка",
		}
	}
}
