// jsonstore.go — JSON-файловая реализация ConfigStore.
// Три файла в директории данных: settings.json, users.json, history.json.
// Каждая запись атомарна: сериализация → temp файл → fsync → rename.
// Конкурентные изменения сериализуются мьютексом процесса; версия настроек
// проверяется перед записью (compare-and-swap), чтобы не затереть
// изменение, внесённое в файл извне между чтением и записью.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/mediaserve/internal/domain/model"
)

// Имена файлов хранилища.
const (
	settingsFile = "settings.json"
	usersFile    = "users.json"
	historyFile  = "history.json"
)

// defaultAdminUsername — встроенная учётная запись администратора.
const defaultAdminUsername = "admin"

// JSONStore — реализация Store поверх JSON-файлов.
type JSONStore struct {
	mu           sync.Mutex
	dataDir      string
	historyLimit int
	logger       *slog.Logger
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ Store = (*JSONStore)(nil)

// NewJSONStore создаёт JSON-хранилище в указанной директории.
// Директория создаётся при необходимости.
func NewJSONStore(dataDir string, historyLimit int, logger *slog.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	return &JSONStore{
		dataDir:      dataDir,
		historyLimit: historyLimit,
		logger:       logger.With(slog.String("component", "config_store")),
	}, nil
}

// EnsureDefaults инициализирует хранилище первого запуска:
// настройки с единственным default-корнем, пользователь admin
// с переданным паролем, пустой журнал.
// Существующие файлы не трогаются.
func (s *JSONStore) EnsureDefaults(ctx context.Context, mediaRoot, adminPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path(settingsFile)); os.IsNotExist(err) {
		settings := model.Settings{
			Version: 1,
			Roots: []model.MediaRoot{{
				Path:         mediaRoot,
				AllowedUsers: []string{defaultAdminUsername},
				IsDefault:    true,
			}},
		}
		if err := s.writeFile(settingsFile, settings); err != nil {
			return err
		}
		s.logger.Info("Создана конфигурация по умолчанию",
			slog.String("media_root", mediaRoot),
		)
	}

	if _, err := os.Stat(s.path(usersFile)); os.IsNotExist(err) {
		hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("ошибка хэширования пароля администратора: %w", err)
		}
		users := []model.User{{
			Username:     defaultAdminUsername,
			PasswordHash: string(hash),
			Role:         model.RoleAdmin,
			CreatedAt:    time.Now().UTC(),
		}}
		if err := s.writeFile(usersFile, users); err != nil {
			return err
		}
		s.logger.Info("Создан администратор по умолчанию",
			slog.String("username", defaultAdminUsername),
		)
	}

	if _, err := os.Stat(s.path(historyFile)); os.IsNotExist(err) {
		if err := s.writeFile(historyFile, []model.HistoryEntry{}); err != nil {
			return err
		}
	}

	return nil
}

// Settings возвращает текущую конфигурацию корней.
func (s *JSONStore) Settings(_ context.Context) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSettings()
}

// UpdateSettings атомарно изменяет конфигурацию корней.
// Версия, прочитанная в начале, сверяется с версией на диске перед
// записью; расхождение означает внешнюю запись и возвращает
// ErrVersionConflict вместо молчаливой перезаписи.
func (s *JSONStore) UpdateSettings(_ context.Context, mutate func(*model.Settings) error) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readSettings()
	if err != nil {
		return model.Settings{}, err
	}
	baseVersion := current.Version

	if err := mutate(&current); err != nil {
		return model.Settings{}, err
	}

	// CAS: перечитываем версию с диска перед записью
	onDisk, err := s.readSettings()
	if err != nil {
		return model.Settings{}, err
	}
	if onDisk.Version != baseVersion {
		return model.Settings{}, fmt.Errorf("%w: ожидалась версия %d, на диске %d",
			ErrVersionConflict, baseVersion, onDisk.Version)
	}

	current.Version = baseVersion + 1
	if err := s.writeFile(settingsFile, current); err != nil {
		return model.Settings{}, err
	}
	return current, nil
}

// Users возвращает всех пользователей.
func (s *JSONStore) Users(_ context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readUsers()
}

// User возвращает пользователя по имени.
func (s *JSONStore) User(_ context.Context, username string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.readUsers()
	if err != nil {
		return model.User{}, err
	}
	for _, u := range users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, username)
}

// AddUser создаёт пользователя и добавляет его в allowedUsers
// всех default-корней.
func (s *JSONStore) AddUser(ctx context.Context, username, password string, role model.Role) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.readUsers()
	if err != nil {
		return model.User{}, err
	}
	for _, u := range users {
		if u.Username == username {
			return model.User{}, fmt.Errorf("%w: %s", ErrUserExists, username)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, fmt.Errorf("ошибка хэширования пароля: %w", err)
	}

	user := model.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}

	// Default-корни автоматически открываются новому пользователю
	settings, err := s.readSettings()
	if err != nil {
		return model.User{}, err
	}
	changed := false
	for i, root := range settings.Roots {
		if root.IsDefault && !root.Allows(username) {
			settings.Roots[i].AllowedUsers = append(settings.Roots[i].AllowedUsers, username)
			changed = true
		}
	}
	if changed {
		settings.Version++
		if err := s.writeFile(settingsFile, settings); err != nil {
			return model.User{}, err
		}
	}

	users = append(users, user)
	if err := s.writeFile(usersFile, users); err != nil {
		return model.User{}, err
	}

	s.logger.Info("Пользователь создан",
		slog.String("username", username),
		slog.String("role", string(role)),
	)
	return user, nil
}

// DeleteUser удаляет пользователя. Встроенный админ защищён.
func (s *JSONStore) DeleteUser(_ context.Context, username string) error {
	if username == defaultAdminUsername {
		return ErrProtectedUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.readUsers()
	if err != nil {
		return err
	}

	kept := users[:0]
	found := false
	for _, u := range users {
		if u.Username == username {
			found = true
			continue
		}
		kept = append(kept, u)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}

	if err := s.writeFile(usersFile, kept); err != nil {
		return err
	}

	s.logger.Info("Пользователь удалён", slog.String("username", username))
	return nil
}

// History возвращает журнал активности, новые записи первыми.
func (s *JSONStore) History(_ context.Context) ([]model.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readHistory()
}

// AppendHistory добавляет запись в начало журнала.
// Журнал усечён до historyLimit записей; при конкурентных добавлениях
// порядок определяется порядком захвата мьютекса.
func (s *JSONStore) AppendHistory(_ context.Context, entry model.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.readHistory()
	if err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	history = append([]model.HistoryEntry{entry}, history...)
	if len(history) > s.historyLimit {
		history = history[:s.historyLimit]
	}

	return s.writeFile(historyFile, history)
}

// --- Чтение и запись файлов ---

func (s *JSONStore) path(name string) string {
	return filepath.Join(s.dataDir, name)
}

// readSettings читает settings.json. Отсутствующий файл — пустая конфигурация.
func (s *JSONStore) readSettings() (model.Settings, error) {
	var settings model.Settings
	if err := s.readFile(settingsFile, &settings); err != nil {
		if os.IsNotExist(err) {
			return model.Settings{}, nil
		}
		return model.Settings{}, err
	}
	return settings, nil
}

func (s *JSONStore) readUsers() ([]model.User, error) {
	var users []model.User
	if err := s.readFile(usersFile, &users); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return users, nil
}

func (s *JSONStore) readHistory() ([]model.HistoryEntry, error) {
	var history []model.HistoryEntry
	if err := s.readFile(historyFile, &history); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return history, nil
}

// readFile читает и десериализует JSON-файл хранилища.
func (s *JSONStore) readFile(name string, v any) error {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ошибка десериализации %s: %w", name, err)
	}
	return nil
}

// writeFile атомарно записывает JSON-файл хранилища.
// Паттерн: temp файл → fsync → atomic rename.
func (s *JSONStore) writeFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации %s: %w", name, err)
	}

	fullPath := s.path(name)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи %s: %w", name, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync %s: %w", name, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла %s: %w", name, err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования %s: %w", name, err)
	}

	return nil
}
