// admin.go — сервис административных операций: пользователи,
// медиа-корни, журнал действий.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	apierrors "github.com/bigkaa/mediaserve/internal/api/errors"
	"github.com/bigkaa/mediaserve/internal/domain/model"
	"github.com/bigkaa/mediaserve/internal/store"
)

// AdminService — сервис административных операций.
type AdminService struct {
	store  store.Store
	logger *slog.Logger
}

// NewAdminService создаёт сервис административных операций.
func NewAdminService(st store.Store, logger *slog.Logger) *AdminService {
	return &AdminService{
		store:  st,
		logger: logger.With(slog.String("component", "admin_service")),
	}
}

// AdminError — ошибка административной операции с HTTP-кодом.
type AdminError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *AdminError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UserView — пользователь без хэша пароля.
type UserView struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

// ListUsers возвращает пользователей без хэшей паролей.
func (s *AdminService) ListUsers(ctx context.Context) ([]UserView, *AdminError) {
	users, err := s.store.Users(ctx)
	if err != nil {
		s.logger.Error("Ошибка чтения пользователей", slog.String("error", err.Error()))
		return nil, internalAdminError()
	}

	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, UserView{
			Username:  u.Username,
			Role:      string(u.Role),
			CreatedAt: u.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return views, nil
}

// CreateUser создаёт пользователя. Default-корни автоматически
// открываются новому пользователю.
func (s *AdminService) CreateUser(ctx context.Context, username, password string, role model.Role) (UserView, *AdminError) {
	if username == "" || password == "" {
		return UserView{}, &AdminError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Требуются username и password",
		}
	}
	if role != model.RoleAdmin && role != model.RoleUser {
		return UserView{}, &AdminError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Неизвестная роль %q", role),
		}
	}

	user, err := s.store.AddUser(ctx, username, password, role)
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return UserView{}, &AdminError{
				StatusCode: 409,
				Code:       apierrors.CodeAlreadyExists,
				Message:    fmt.Sprintf("Пользователь %s уже существует", username),
			}
		}
		s.logger.Error("Ошибка создания пользователя",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return UserView{}, internalAdminError()
	}

	s.logger.Info("Пользователь создан",
		slog.String("username", username),
		slog.String("role", string(role)),
	)
	return UserView{
		Username:  user.Username,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}, nil
}

// DeleteUser удаляет пользователя. Встроенный admin защищён.
func (s *AdminService) DeleteUser(ctx context.Context, username string) *AdminError {
	err := s.store.DeleteUser(ctx, username)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrProtectedUser):
			return &AdminError{
				StatusCode: 403,
				Code:       apierrors.CodeForbidden,
				Message:    "Встроенного администратора удалить нельзя",
			}
		case errors.Is(err, store.ErrUserNotFound):
			return &AdminError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    fmt.Sprintf("Пользователь %s не найден", username),
			}
		}
		s.logger.Error("Ошибка удаления пользователя",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return internalAdminError()
	}

	s.logger.Info("Пользователь удалён", slog.String("username", username))
	return nil
}

// RootView — медиа-корень с его индексом.
type RootView struct {
	Index        int      `json:"index"`
	Path         string   `json:"path"`
	AllowedUsers []string `json:"allowedUsers"`
	IsDefault    bool     `json:"isDefault"`
}

// ListRoots возвращает полную конфигурацию корней.
func (s *AdminService) ListRoots(ctx context.Context) ([]RootView, *AdminError) {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		s.logger.Error("Ошибка чтения конфигурации", slog.String("error", err.Error()))
		return nil, internalAdminError()
	}

	views := make([]RootView, 0, len(settings.Roots))
	for i, root := range settings.Roots {
		views = append(views, RootView{
			Index:        i,
			Path:         root.Path,
			AllowedUsers: root.AllowedUsers,
			IsDefault:    root.IsDefault,
		})
	}
	return views, nil
}

// AddRoot добавляет медиа-корень. Путь обязан быть абсолютным.
func (s *AdminService) AddRoot(ctx context.Context, path string, allowedUsers []string, isDefault bool) *AdminError {
	if !filepath.IsAbs(path) {
		return &AdminError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Путь корня должен быть абсолютным: %q", path),
		}
	}

	_, err := s.store.UpdateSettings(ctx, func(set *model.Settings) error {
		for _, root := range set.Roots {
			if root.Path == path {
				return store.ErrRootExists
			}
		}
		set.Roots = append(set.Roots, model.MediaRoot{
			Path:         path,
			AllowedUsers: allowedUsers,
			IsDefault:    isDefault,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrRootExists) {
			return &AdminError{
				StatusCode: 409,
				Code:       apierrors.CodeAlreadyExists,
				Message:    fmt.Sprintf("Корень %s уже настроен", path),
			}
		}
		s.logger.Error("Ошибка добавления корня",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return internalAdminError()
	}

	s.logger.Info("Медиа-корень добавлен", slog.String("path", path))
	return nil
}

// UpdateRoot заменяет список allowedUsers корня.
func (s *AdminService) UpdateRoot(ctx context.Context, index int, allowedUsers []string) *AdminError {
	_, err := s.store.UpdateSettings(ctx, func(set *model.Settings) error {
		if index < 0 || index >= len(set.Roots) {
			return store.ErrRootNotFound
		}
		set.Roots[index].AllowedUsers = allowedUsers
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrRootNotFound) {
			return &AdminError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    fmt.Sprintf("Корень %d не найден", index),
			}
		}
		s.logger.Error("Ошибка обновления корня",
			slog.Int("index", index),
			slog.String("error", err.Error()),
		)
		return internalAdminError()
	}
	return nil
}

// DeleteRoot удаляет корень из конфигурации.
// Файлы на диске остаются нетронутыми.
func (s *AdminService) DeleteRoot(ctx context.Context, index int) *AdminError {
	_, err := s.store.UpdateSettings(ctx, func(set *model.Settings) error {
		if index < 0 || index >= len(set.Roots) {
			return store.ErrRootNotFound
		}
		set.Roots = append(set.Roots[:index], set.Roots[index+1:]...)
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrRootNotFound) {
			return &AdminError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    fmt.Sprintf("Корень %d не найден", index),
			}
		}
		s.logger.Error("Ошибка удаления корня",
			slog.Int("index", index),
			slog.String("error", err.Error()),
		)
		return internalAdminError()
	}

	s.logger.Info("Медиа-корень удалён из конфигурации", slog.Int("index", index))
	return nil
}

// History возвращает журнал действий: администратору — весь,
// пользователю — только его собственные записи.
func (s *AdminService) History(ctx context.Context, principal model.Principal) ([]model.HistoryEntry, *AdminError) {
	entries, err := s.store.History(ctx)
	if err != nil {
		s.logger.Error("Ошибка чтения журнала", slog.String("error", err.Error()))
		return nil, internalAdminError()
	}

	if principal.IsAdmin {
		return entries, nil
	}

	own := make([]model.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.Username == principal.Username {
			own = append(own, e)
		}
	}
	return own, nil
}

func internalAdminError() *AdminError {
	return &AdminError{
		StatusCode: 500,
		Code:       apierrors.CodeInternalError,
		Message:    "Внутренняя ошибка",
	}
}
