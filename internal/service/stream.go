// stream.go — сервис потоковой отдачи медиа-файлов.
//
// Range обрабатывается вручную: стриминг — основной сценарий сервера,
// и формат ответа (206, Content-Range, Accept-Ranges) зафиксирован
// контрактом. Из multi-range запроса отдаётся только первый диапазон.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	apierrors "github.com/bigkaa/mediaserve/internal/api/errors"
	"github.com/bigkaa/mediaserve/internal/api/middleware"
	"github.com/bigkaa/mediaserve/internal/domain/model"
	"github.com/bigkaa/mediaserve/internal/roots"
	"github.com/bigkaa/mediaserve/internal/sandbox"
)

// StreamService — сервис потоковой отдачи файлов.
type StreamService struct {
	resolver *sandbox.Resolver
	logger   *slog.Logger
}

// NewStreamService создаёт сервис потоковой отдачи.
func NewStreamService(resolver *sandbox.Resolver, logger *slog.Logger) *StreamService {
	return &StreamService{
		resolver: resolver,
		logger:   logger.With(slog.String("component", "stream_service")),
	}
}

// StreamError — ошибка стриминга с HTTP-кодом.
type StreamError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// byteRange — разобранный диапазон запроса.
type byteRange struct {
	start int64
	end   int64 // включительно
}

// errNoRange — заголовок Range отсутствует.
var errNoRange = errors.New("нет заголовка Range")

// errBadRange — заголовок Range присутствует, но невалиден
// или не пересекается с файлом.
var errBadRange = errors.New("невалидный Range")

// parseRange разбирает заголовок Range вида "bytes=start-end".
// start обязателен; end по умолчанию — последний байт файла.
// Из multi-range спецификации берётся только первый диапазон.
func parseRange(header string, size int64) (byteRange, error) {
	if header == "" {
		return byteRange{}, errNoRange
	}

	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return byteRange{}, errBadRange
	}

	spec := strings.TrimPrefix(header, prefix)
	// multi-range: отдаём первый диапазон
	if i := strings.IndexByte(spec, ','); i >= 0 {
		spec = spec[:i]
	}
	spec = strings.TrimSpace(spec)

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return byteRange{}, errBadRange
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return byteRange{}, errBadRange
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return byteRange{}, errBadRange
		}
		if end > size-1 {
			end = size - 1
		}
	}

	if start >= size || start > end {
		return byteRange{}, errBadRange
	}

	return byteRange{start: start, end: end}, nil
}

// Serve отдаёт файл по символическому пути.
// Без заголовка Range — 200 и весь файл, с валидным Range —
// 206 и запрошенный диапазон, с невалидным — 416.
func (s *StreamService) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, symbolic string, principal model.Principal) *StreamError {
	// 1. Разрешаем путь
	loc, err := s.resolver.Resolve(ctx, symbolic, principal)
	if err != nil {
		return mapStreamError(err)
	}

	// 2. Файл должен существовать и быть обычным файлом
	info, serr := os.Stat(loc.AbsolutePath)
	if serr != nil || info.IsDir() {
		return &StreamError{
			StatusCode: 404,
			Code:       apierrors.CodeNotFound,
			Message:    "Файл не найден",
		}
	}
	size := info.Size()

	file, oerr := os.Open(loc.AbsolutePath)
	if oerr != nil {
		s.logger.Error("Ошибка открытия файла",
			slog.String("path", loc.AbsolutePath),
			slog.String("error", oerr.Error()),
		)
		return &StreamError{
			StatusCode: 404,
			Code:       apierrors.CodeNotFound,
			Message:    "Файл не найден",
		}
	}
	defer file.Close()

	contentType := ContentTypeFor(info.Name())

	middleware.StreamsActive.Inc()
	defer middleware.StreamsActive.Dec()

	// 3. Без Range — отдаём файл целиком
	rng, rerr := parseRange(r.Header.Get("Range"), size)
	if errors.Is(rerr, errNoRange) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusOK)

		n, cerr := io.Copy(w, file)
		middleware.StreamBytesTotal.Add(float64(n))
		if cerr != nil {
			// клиент оборвал соединение — штатная ситуация для стриминга
			s.logger.Debug("Стрим прерван",
				slog.String("path", loc.AbsolutePath),
				slog.Int64("sent", n),
				slog.String("error", cerr.Error()),
			)
		}
		return nil
	}
	if rerr != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		return &StreamError{
			StatusCode: http.StatusRequestedRangeNotSatisfiable,
			Code:       apierrors.CodeInvalidRange,
			Message:    fmt.Sprintf("Невалидный Range %q", r.Header.Get("Range")),
		}
	}

	// 4. Отдаём диапазон
	length := rng.end - rng.start + 1

	if _, serr := file.Seek(rng.start, io.SeekStart); serr != nil {
		s.logger.Error("Ошибка seek",
			slog.String("path", loc.AbsolutePath),
			slog.Int64("offset", rng.start),
			slog.String("error", serr.Error()),
		)
		return &StreamError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения файла",
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, size))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)

	n, cerr := io.CopyN(w, file, length)
	middleware.StreamBytesTotal.Add(float64(n))
	if cerr != nil {
		s.logger.Debug("Стрим прерван",
			slog.String("path", loc.AbsolutePath),
			slog.Int64("sent", n),
			slog.String("error", cerr.Error()),
		)
		return nil
	}

	s.logger.Debug("Диапазон отдан",
		slog.String("path", loc.AbsolutePath),
		slog.Int64("start", rng.start),
		slog.Int64("end", rng.end),
	)
	return nil
}

// mapStreamError переводит ошибки разрешения пути в StreamError.
func mapStreamError(err error) *StreamError {
	switch {
	case errors.Is(err, roots.ErrInvalidRoot):
		return &StreamError{
			StatusCode: 400,
			Code:       apierrors.CodeInvalidRoot,
			Message:    "Несуществующий медиа-корень",
		}
	case errors.Is(err, roots.ErrForbidden):
		return &StreamError{
			StatusCode: 403,
			Code:       apierrors.CodeForbidden,
			Message:    "Доступ к медиа-корню запрещён",
		}
	case errors.Is(err, sandbox.ErrAccessDenied):
		return &StreamError{
			StatusCode: 403,
			Code:       apierrors.CodeAccessDenied,
			Message:    "Путь выходит за границу доступа",
		}
	case errors.Is(err, sandbox.ErrMalformedPath):
		return &StreamError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Некорректный путь",
		}
	default:
		return &StreamError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Внутренняя ошибка",
		}
	}
}
