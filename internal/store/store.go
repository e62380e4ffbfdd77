// Пакет store — ConfigStore: долговременное хранение конфигурации корней,
// учётных записей и журнала активности.
//
// Ядро сервера работает только через интерфейс Store; JSON-реализация —
// в jsonstore.go. Все изменения выполняются через атомарные
// read/modify/write операции, чтение всегда свежее (без кэша),
// поэтому изменения конфигурации видны немедленно.
package store

import (
	"context"
	"errors"

	"github.com/bigkaa/mediaserve/internal/domain/model"
)

// Ошибки хранилища.
var (
	// ErrUserExists — пользователь с таким именем уже существует.
	ErrUserExists = errors.New("пользователь уже существует")
	// ErrUserNotFound — пользователь не найден.
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrProtectedUser — встроенный админ не подлежит удалению.
	ErrProtectedUser = errors.New("встроенный администратор не может быть удалён")
	// ErrVersionConflict — конкурентная запись настроек (CAS не сошёлся).
	ErrVersionConflict = errors.New("конфликт версии настроек")
	// ErrRootExists — корень с таким путём уже настроен.
	ErrRootExists = errors.New("корень уже настроен")
	// ErrRootNotFound — корень с таким индексом не настроен.
	ErrRootNotFound = errors.New("корень не найден")
)

// Store — интерфейс ConfigStore.
type Store interface {
	// Settings возвращает текущую конфигурацию корней (всегда свежее чтение).
	Settings(ctx context.Context) (model.Settings, error)

	// UpdateSettings атомарно изменяет конфигурацию: mutate получает
	// актуальную копию, результат записывается с инкрементом версии.
	// Ошибка из mutate отменяет запись.
	UpdateSettings(ctx context.Context, mutate func(*model.Settings) error) (model.Settings, error)

	// Users возвращает всех пользователей.
	Users(ctx context.Context) ([]model.User, error)

	// User возвращает пользователя по имени или ErrUserNotFound.
	User(ctx context.Context, username string) (model.User, error)

	// AddUser создаёт пользователя с bcrypt-хэшем пароля.
	// Корни с isDefault автоматически включают нового пользователя
	// в allowedUsers. Возвращает ErrUserExists при дубликате.
	AddUser(ctx context.Context, username, password string, role model.Role) (model.User, error)

	// DeleteUser удаляет пользователя. Встроенный админ защищён.
	DeleteUser(ctx context.Context, username string) error

	// History возвращает журнал активности, новые записи первыми.
	History(ctx context.Context) ([]model.HistoryEntry, error)

	// AppendHistory добавляет запись в начало журнала, отсекая хвост
	// сверх настроенного лимита.
	AppendHistory(ctx context.Context, entry model.HistoryEntry) error
}
