// Пакет sandbox — разбор символических путей и их преобразование
// в абсолютные пути файловой системы внутри границы доступа.
//
// Символический путь имеет вид "<rootIndex>/<seg>/<seg>/...".
// Граница (boundary) — каталог, за пределы которого не может выйти
// ни одна операция: сам корень для администратора и персональный
// подкаталог <root>/<username> для обычного пользователя.
//
// Защита двухслойная: сначала внутренняя часть пути нормализуется
// и из неё вырезаются все конструкции "..", затем итоговый абсолютный
// путь лексически сверяется с границей. Второй слой обязан срабатывать,
// даже если первый по какой-то причине пропустил обход.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bigkaa/mediaserve/internal/domain/model"
	"github.com/bigkaa/mediaserve/internal/roots"
)

var (
	// ErrAccessDenied — путь после разрешения вышел за границу доступа.
	ErrAccessDenied = errors.New("путь выходит за границу доступа")

	// ErrMalformedPath — символический путь синтаксически некорректен.
	ErrMalformedPath = errors.New("некорректный символический путь")
)

// Resolver преобразует символические пути в абсолютные.
type Resolver struct {
	guard *roots.Guard
}

// NewResolver создаёт Resolver над Guard.
func NewResolver(guard *roots.Guard) *Resolver {
	return &Resolver{guard: guard}
}

// ParsePath разбирает символический путь на индекс корня и внутреннюю часть.
// Пустые сегменты отбрасываются; первый сегмент обязан быть
// неотрицательным целым.
func ParsePath(symbolic string) (rootIndex int, inner string, err error) {
	var segments []string
	for _, seg := range strings.Split(symbolic, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return 0, "", fmt.Errorf("%w: пустой путь", ErrMalformedPath)
	}

	rootIndex, err = strconv.Atoi(segments[0])
	if err != nil || rootIndex < 0 {
		return 0, "", fmt.Errorf("%w: индекс корня %q", ErrMalformedPath, segments[0])
	}

	return rootIndex, strings.Join(segments[1:], "/"), nil
}

// NormalizeInner приводит внутреннюю часть пути к канонической форме
// и вырезает конструкции выхода наверх. Результат никогда не содержит
// "..". Функция идемпотентна.
func NormalizeInner(inner string) string {
	cleaned := path.Clean("/" + inner)
	// после Clean с ведущим "/" внутри пути ".." не остаётся
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "." {
		return ""
	}
	return cleaned
}

// BoundaryFor возвращает границу доступа принципала в данном корне.
// Для администратора это сам корень, для обычного пользователя —
// персональный подкаталог, который создаётся при первом обращении.
func BoundaryFor(root model.MediaRoot, principal model.Principal) (string, error) {
	if principal.IsAdmin {
		if err := os.MkdirAll(root.Path, 0o750); err != nil {
			return "", fmt.Errorf("создание корня %s: %w", root.Path, err)
		}
		return root.Path, nil
	}

	boundary := filepath.Join(root.Path, principal.Username)
	if err := os.MkdirAll(boundary, 0o750); err != nil {
		return "", fmt.Errorf("создание персонального каталога %s: %w", boundary, err)
	}
	return boundary, nil
}

// Resolve преобразует символический путь в абсолютный путь внутри
// границы принципала. Проверяет права на корень, нормализует
// внутреннюю часть и сверяет итоговый путь с границей.
//
// Ошибки: roots.ErrInvalidRoot, roots.ErrForbidden, ErrMalformedPath,
// ErrAccessDenied.
func (r *Resolver) Resolve(ctx context.Context, symbolic string, principal model.Principal) (model.ResolvedLocation, error) {
	rootIndex, inner, err := ParsePath(symbolic)
	if err != nil {
		return model.ResolvedLocation{}, err
	}

	root, err := r.guard.Authorize(ctx, rootIndex, principal)
	if err != nil {
		return model.ResolvedLocation{}, err
	}

	boundary, err := BoundaryFor(root, principal)
	if err != nil {
		return model.ResolvedLocation{}, err
	}

	absolute := filepath.Join(boundary, filepath.FromSlash(NormalizeInner(inner)))

	// Финальная сверка с границей. Нормализация выше уже вырезала "..",
	// эта проверка — независимый последний рубеж.
	if !WithinBoundary(absolute, boundary) {
		return model.ResolvedLocation{}, fmt.Errorf("%w: %s", ErrAccessDenied, symbolic)
	}

	return model.ResolvedLocation{
		AbsolutePath: absolute,
		Boundary:     boundary,
		RootIndex:    rootIndex,
	}, nil
}

// ResolveRoot возвращает границу принципала в корне rootIndex
// (символический путь без внутренней части).
func (r *Resolver) ResolveRoot(ctx context.Context, rootIndex int, principal model.Principal) (model.ResolvedLocation, error) {
	return r.Resolve(ctx, strconv.Itoa(rootIndex), principal)
}

// WithinBoundary лексически проверяет, что absolute лежит внутри
// boundary (или совпадает с ним). Оба пути должны быть очищены.
func WithinBoundary(absolute, boundary string) bool {
	if absolute == boundary {
		return true
	}
	return strings.HasPrefix(absolute, boundary+string(filepath.Separator))
}

// nameSanitizer — допустимые символы имён файлов и каталогов,
// создаваемых сервером.
var nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_\-. ]`)

// SanitizeName вырезает из имени недопустимые символы.
// Возвращает ошибку, если после очистки имя пусто или схлопнулось
// в "." / "..".
func SanitizeName(name string) (string, error) {
	sanitized := strings.TrimSpace(nameSanitizer.ReplaceAllString(name, ""))
	if sanitized == "" || sanitized == "." || sanitized == ".." {
		return "", fmt.Errorf("%w: недопустимое имя %q", ErrMalformedPath, name)
	}
	return sanitized, nil
}
