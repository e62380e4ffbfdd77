// files.go — сервис файловых операций: листинг, создание каталогов,
// удаление, переименование, копирование и перенос.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/bigkaa/mediaserve/internal/activity"
	apierrors "github.com/bigkaa/mediaserve/internal/api/errors"
	"github.com/bigkaa/mediaserve/internal/domain/model"
	"github.com/bigkaa/mediaserve/internal/roots"
	"github.com/bigkaa/mediaserve/internal/sandbox"
)

// PasteOp — вид операции вставки.
type PasteOp string

const (
	PasteCopy PasteOp = "copy"
	PasteMove PasteOp = "move"
)

// FilesService — сервис файловых операций.
type FilesService struct {
	resolver *sandbox.Resolver
	guard    *roots.Guard
	recorder activity.Recorder
	logger   *slog.Logger
}

// NewFilesService создаёт сервис файловых операций.
func NewFilesService(
	resolver *sandbox.Resolver,
	guard *roots.Guard,
	recorder activity.Recorder,
	logger *slog.Logger,
) *FilesService {
	return &FilesService{
		resolver: resolver,
		guard:    guard,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "files_service")),
	}
}

// FilesError — ошибка файловой операции с HTTP-кодом.
type FilesError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *FilesError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// mapResolveError переводит ошибки разрешения пути в FilesError.
func mapResolveError(err error) *FilesError {
	switch {
	case errors.Is(err, roots.ErrInvalidRoot):
		return &FilesError{
			StatusCode: 400,
			Code:       apierrors.CodeInvalidRoot,
			Message:    "Несуществующий медиа-корень",
		}
	case errors.Is(err, roots.ErrForbidden):
		return &FilesError{
			StatusCode: 403,
			Code:       apierrors.CodeForbidden,
			Message:    "Доступ к медиа-корню запрещён",
		}
	case errors.Is(err, sandbox.ErrAccessDenied):
		return &FilesError{
			StatusCode: 403,
			Code:       apierrors.CodeAccessDenied,
			Message:    "Путь выходит за границу доступа",
		}
	case errors.Is(err, sandbox.ErrMalformedPath):
		return &FilesError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Некорректный путь",
		}
	default:
		return &FilesError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Внутренняя ошибка",
		}
	}
}

// listCollator сортирует имена с учётом регистронезависимого сравнения.
var listCollator = collate.New(language.Und, collate.Loose)

// List возвращает содержимое каталога по символическому пути.
// Пустой путь — список доступных принципалу корней.
// Каталоги идут первыми, внутри групп — лексикографический порядок.
func (s *FilesService) List(ctx context.Context, principal model.Principal, symbolic string) ([]model.FileItem, *FilesError) {
	// 1. Пустой путь — список корней
	if symbolic == "" {
		return s.listRoots(ctx, principal)
	}

	// 2. Разрешаем путь. Несуществующий корень деградирует в пустой
	//    список: конфигурация могла измениться под клиентом.
	loc, err := s.resolver.Resolve(ctx, symbolic, principal)
	if err != nil {
		if errors.Is(err, roots.ErrInvalidRoot) {
			return []model.FileItem{}, nil
		}
		return nil, mapResolveError(err)
	}

	// 3. Читаем каталог
	entries, err := os.ReadDir(loc.AbsolutePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &FilesError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    "Каталог не найден",
			}
		}
		s.logger.Error("Ошибка чтения каталога",
			slog.String("path", loc.AbsolutePath),
			slog.String("error", err.Error()),
		)
		return nil, &FilesError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения каталога",
		}
	}

	// 4. Собираем элементы. Записи, у которых не читается stat,
	//    молча пропускаем: файл мог исчезнуть между ReadDir и Info.
	rootIndex, inner, perr := sandbox.ParsePath(symbolic)
	if perr != nil {
		return nil, mapResolveError(perr)
	}
	inner = sandbox.NormalizeInner(inner)

	items := make([]model.FileItem, 0, len(entries))
	for _, entry := range entries {
		info, ierr := entry.Info()
		if ierr != nil {
			continue
		}
		items = append(items, model.FileItem{
			Name:         entry.Name(),
			IsDirectory:  entry.IsDir(),
			Size:         info.Size(),
			LastModified: info.ModTime(),
			Path:         model.SymbolicPath(rootIndex, inner, entry.Name()),
		})
	}

	sortItems(items)
	return items, nil
}

// listRoots возвращает доступные принципалу корни как элементы листинга.
// Корни с недоступным путём пропускаются.
func (s *FilesService) listRoots(ctx context.Context, principal model.Principal) ([]model.FileItem, *FilesError) {
	visible, err := s.guard.Visible(ctx, principal)
	if err != nil {
		s.logger.Error("Ошибка чтения конфигурации корней", slog.String("error", err.Error()))
		return nil, &FilesError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения конфигурации",
		}
	}

	items := make([]model.FileItem, 0, len(visible))
	for _, ir := range visible {
		info, serr := os.Stat(ir.Root.Path)
		if serr != nil || !info.IsDir() {
			continue
		}
		items = append(items, model.FileItem{
			Name:         filepath.Base(ir.Root.Path),
			IsDirectory:  true,
			LastModified: info.ModTime(),
			Path:         strconv.Itoa(ir.Index),
		})
	}
	return items, nil
}

// sortItems упорядочивает элементы: каталоги первыми,
// внутри групп — по имени без учёта регистра.
func sortItems(items []model.FileItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsDirectory != items[j].IsDirectory {
			return items[i].IsDirectory
		}
		return listCollator.CompareString(items[i].Name, items[j].Name) < 0
	})
}

// CreateFolder создаёт каталог с очищенным именем внутри parentSymbolic.
func (s *FilesService) CreateFolder(ctx context.Context, principal model.Principal, parentSymbolic, name string) *FilesError {
	// 1. Очищаем имя
	sanitized, err := sandbox.SanitizeName(name)
	if err != nil {
		return &FilesError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Недопустимое имя каталога %q", name),
		}
	}

	// 2. Разрешаем родительский путь
	loc, rerr := s.resolver.Resolve(ctx, parentSymbolic, principal)
	if rerr != nil {
		return mapResolveError(rerr)
	}

	// 3. Создаём каталог
	target := filepath.Join(loc.AbsolutePath, sanitized)
	if merr := os.MkdirAll(target, 0o750); merr != nil {
		s.logger.Error("Ошибка создания каталога",
			slog.String("path", target),
			slog.String("error", merr.Error()),
		)
		return &FilesError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка создания каталога",
		}
	}

	s.recorder.Record(ctx, principal, model.ActionMkdir, fmt.Sprintf("Created folder '%s'", sanitized))
	s.logger.Info("Каталог создан",
		slog.String("username", principal.Username),
		slog.String("path", target),
	)
	return nil
}

// Delete рекурсивно удаляет файл или каталог.
// Удаление несуществующего пути не является ошибкой.
// Саму границу доступа удалить нельзя.
func (s *FilesService) Delete(ctx context.Context, principal model.Principal, symbolic string) *FilesError {
	loc, err := s.resolver.Resolve(ctx, symbolic, principal)
	if err != nil {
		return mapResolveError(err)
	}

	if loc.AbsolutePath == loc.Boundary {
		return &FilesError{
			StatusCode: 403,
			Code:       apierrors.CodeAccessDenied,
			Message:    "Корневой каталог удалить нельзя",
		}
	}

	if rerr := os.RemoveAll(loc.AbsolutePath); rerr != nil {
		s.logger.Error("Ошибка удаления",
			slog.String("path", loc.AbsolutePath),
			slog.String("error", rerr.Error()),
		)
		return &FilesError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка удаления",
		}
	}

	s.recorder.Record(ctx, principal, model.ActionDelete,
		fmt.Sprintf("Deleted '%s'", filepath.Base(loc.AbsolutePath)))
	s.logger.Info("Путь удалён",
		slog.String("username", principal.Username),
		slog.String("path", loc.AbsolutePath),
	)
	return nil
}

// Rename переименовывает файл или каталог внутри его каталога.
// Занятое целевое имя — конфликт, а не перезапись.
func (s *FilesService) Rename(ctx context.Context, principal model.Principal, symbolic, newName string) *FilesError {
	// 1. Очищаем новое имя
	sanitized, err := sandbox.SanitizeName(newName)
	if err != nil {
		return &FilesError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Недопустимое имя %q", newName),
		}
	}

	// 2. Разрешаем исходный путь
	loc, rerr := s.resolver.Resolve(ctx, symbolic, principal)
	if rerr != nil {
		return mapResolveError(rerr)
	}
	if loc.AbsolutePath == loc.Boundary {
		return &FilesError{
			StatusCode: 403,
			Code:       apierrors.CodeAccessDenied,
			Message:    "Корневой каталог переименовать нельзя",
		}
	}
	if _, serr := os.Stat(loc.AbsolutePath); serr != nil {
		return &FilesError{
			StatusCode: 404,
			Code:       apierrors.CodeNotFound,
			Message:    "Исходный путь не найден",
		}
	}

	// 3. Целевой путь — тот же каталог, новое имя
	target := filepath.Join(filepath.Dir(loc.AbsolutePath), sanitized)
	if !sandbox.WithinBoundary(target, loc.Boundary) {
		return &FilesError{
			StatusCode: 403,
			Code:       apierrors.CodeAccessDenied,
			Message:    "Путь выходит за границу доступа",
		}
	}
	if target != loc.AbsolutePath {
		if _, serr := os.Stat(target); serr == nil {
			return &FilesError{
				StatusCode: 409,
				Code:       apierrors.CodeAlreadyExists,
				Message:    fmt.Sprintf("Имя '%s' уже занято", sanitized),
			}
		}
	}

	// 4. Переименовываем
	if rnerr := os.Rename(loc.AbsolutePath, target); rnerr != nil {
		s.logger.Error("Ошибка переименования",
			slog.String("from", loc.AbsolutePath),
			slog.String("to", target),
			slog.String("error", rnerr.Error()),
		)
		return &FilesError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка переименования",
		}
	}

	s.recorder.Record(ctx, principal, model.ActionRename,
		fmt.Sprintf("Renamed '%s' to '%s'", filepath.Base(loc.AbsolutePath), sanitized))
	return nil
}

// Paste копирует или переносит источник в целевой каталог.
// Источник и цель разрешаются независимо: операция может пересекать
// границы корней, но не границы доступа принципала.
func (s *FilesService) Paste(ctx context.Context, principal model.Principal, sourceSymbolic, destDirSymbolic string, op PasteOp) *FilesError {
	if op != PasteCopy && op != PasteMove {
		return &FilesError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Неизвестная операция %q", op),
		}
	}

	// 1. Разрешаем источник и целевой каталог
	src, err := s.resolver.Resolve(ctx, sourceSymbolic, principal)
	if err != nil {
		return mapResolveError(err)
	}
	if src.AbsolutePath == src.Boundary {
		return &FilesError{
			StatusCode: 403,
			Code:       apierrors.CodeAccessDenied,
			Message:    "Корневой каталог нельзя копировать или переносить",
		}
	}
	dst, err := s.resolver.Resolve(ctx, destDirSymbolic, principal)
	if err != nil {
		return mapResolveError(err)
	}

	srcInfo, serr := os.Stat(src.AbsolutePath)
	if serr != nil {
		return &FilesError{
			StatusCode: 404,
			Code:       apierrors.CodeNotFound,
			Message:    "Исходный путь не найден",
		}
	}

	target := filepath.Join(dst.AbsolutePath, filepath.Base(src.AbsolutePath))

	// 2. Каталог нельзя вставлять в самого себя или в своего потомка
	if srcInfo.IsDir() && sandbox.WithinBoundary(target, src.AbsolutePath) {
		return &FilesError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Каталог нельзя вставить внутрь самого себя",
		}
	}
	if _, terr := os.Stat(target); terr == nil {
		return &FilesError{
			StatusCode: 409,
			Code:       apierrors.CodeAlreadyExists,
			Message:    fmt.Sprintf("Имя '%s' уже занято в целевом каталоге", filepath.Base(target)),
		}
	}

	// 3. Выполняем операцию
	switch op {
	case PasteMove:
		if merr := os.Rename(src.AbsolutePath, target); merr != nil {
			s.logger.Error("Ошибка переноса",
				slog.String("from", src.AbsolutePath),
				slog.String("to", target),
				slog.String("error", merr.Error()),
			)
			return &FilesError{
				StatusCode: 500,
				Code:       apierrors.CodeInternalError,
				Message:    "Ошибка переноса",
			}
		}
		s.recorder.Record(ctx, principal, model.ActionMove,
			fmt.Sprintf("Moved '%s'", filepath.Base(src.AbsolutePath)))
	case PasteCopy:
		if cerr := copyTree(src.AbsolutePath, target); cerr != nil {
			s.logger.Error("Ошибка копирования",
				slog.String("from", src.AbsolutePath),
				slog.String("to", target),
				slog.String("error", cerr.Error()),
			)
			return &FilesError{
				StatusCode: 500,
				Code:       apierrors.CodeInternalError,
				Message:    "Ошибка копирования",
			}
		}
		s.recorder.Record(ctx, principal, model.ActionCopy,
			fmt.Sprintf("Copied '%s'", filepath.Base(src.AbsolutePath)))
	}

	return nil
}

// devino — идентификатор файла на уровне файловой системы.
type devino struct {
	dev uint64
	ino uint64
}

// copyTree рекурсивно копирует файл или дерево каталогов.
// Обход итеративный, с учётом уже посещённых inode: цикл из
// жёстких ссылок или bind mount не должен зациклить копирование.
// Символические ссылки не копируются.
func copyTree(src, dst string) error {
	type pair struct {
		src string
		dst string
	}

	visited := make(map[devino]bool)
	stack := []pair{{src: src, dst: dst}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		info, err := os.Lstat(cur.src)
		if err != nil {
			return fmt.Errorf("lstat %s: %w", cur.src, err)
		}

		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			key := devino{dev: uint64(st.Dev), ino: uint64(st.Ino)}
			if visited[key] {
				continue
			}
			visited[key] = true
		}

		switch {
		case info.IsDir():
			if err := os.MkdirAll(cur.dst, info.Mode().Perm()); err != nil {
				return fmt.Errorf("mkdir %s: %w", cur.dst, err)
			}
			entries, err := os.ReadDir(cur.src)
			if err != nil {
				return fmt.Errorf("readdir %s: %w", cur.src, err)
			}
			for _, entry := range entries {
				stack = append(stack, pair{
					src: filepath.Join(cur.src, entry.Name()),
					dst: filepath.Join(cur.dst, entry.Name()),
				})
			}
		case info.Mode().IsRegular():
			if err := copyFile(cur.src, cur.dst, info.Mode().Perm()); err != nil {
				return err
			}
		default:
			// symlink, fifo, socket — пропускаем
		}
	}

	return nil
}

// copyFile копирует обычный файл с сохранением прав.
func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("открытие %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("создание %s: %w", dst, err)
	}

	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		return fmt.Errorf("копирование %s: %w", src, err)
	}
	return out.Close()
}
