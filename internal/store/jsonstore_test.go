package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/mediaserve/internal/domain/model"
)

// testLogger — логгер, пишущий в никуда.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore создаёт инициализированный JSONStore во временной директории.
func newTestStore(t *testing.T) *JSONStore {
	t.Helper()

	s, err := NewJSONStore(t.TempDir(), 1000, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания хранилища: %v", err)
	}
	if err := s.EnsureDefaults(context.Background(), "/srv/media", "admin"); err != nil {
		t.Fatalf("ошибка инициализации: %v", err)
	}
	return s
}

func TestEnsureDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	settings, err := s.Settings(ctx)
	if err != nil {
		t.Fatalf("ошибка чтения настроек: %v", err)
	}
	if len(settings.Roots) != 1 {
		t.Fatalf("ожидался один корень по умолчанию, получено %d", len(settings.Roots))
	}
	if settings.Roots[0].Path != "/srv/media" {
		t.Errorf("путь корня: ожидалось /srv/media, получено %s", settings.Roots[0].Path)
	}
	if !settings.Roots[0].IsDefault {
		t.Error("корень первого запуска должен быть default")
	}

	admin, err := s.User(ctx, "admin")
	if err != nil {
		t.Fatalf("admin не создан: %v", err)
	}
	if admin.Role != model.RoleAdmin {
		t.Errorf("роль admin: ожидалось admin, получено %s", admin.Role)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("admin")); err != nil {
		t.Error("пароль admin не совпадает с bcrypt-хэшем")
	}
}

func TestEnsureDefaults_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Изменяем конфигурацию
	_, err := s.UpdateSettings(ctx, func(set *model.Settings) error {
		set.Roots = append(set.Roots, model.MediaRoot{Path: "/srv/extra"})
		return nil
	})
	if err != nil {
		t.Fatalf("ошибка обновления: %v", err)
	}

	// Повторный EnsureDefaults не должен ничего затереть
	if err := s.EnsureDefaults(ctx, "/srv/other", "newpass"); err != nil {
		t.Fatalf("повторная инициализация: %v", err)
	}

	settings, err := s.Settings(ctx)
	if err != nil {
		t.Fatalf("ошибка чтения настроек: %v", err)
	}
	if len(settings.Roots) != 2 {
		t.Errorf("ожидалось 2 корня после повторной инициализации, получено %d", len(settings.Roots))
	}
}

func TestUpdateSettings_VersionIncrement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	before, _ := s.Settings(ctx)

	after, err := s.UpdateSettings(ctx, func(set *model.Settings) error {
		set.Roots = append(set.Roots, model.MediaRoot{Path: "/srv/two"})
		return nil
	})
	if err != nil {
		t.Fatalf("ошибка обновления: %v", err)
	}

	if after.Version != before.Version+1 {
		t.Errorf("версия: ожидалось %d, получено %d", before.Version+1, after.Version)
	}
}

func TestUpdateSettings_MutateErrorAborts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	before, _ := s.Settings(ctx)

	wantErr := errors.New("отказ")
	_, err := s.UpdateSettings(ctx, func(set *model.Settings) error {
		set.Roots = nil
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("ожидалась ошибка mutate, получено %v", err)
	}

	after, _ := s.Settings(ctx)
	if len(after.Roots) != len(before.Roots) {
		t.Error("неудачный mutate не должен менять настройки")
	}
	if after.Version != before.Version {
		t.Error("версия не должна меняться при неудачном mutate")
	}
}

func TestUpdateSettings_ExternalWriteConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpdateSettings(ctx, func(set *model.Settings) error {
		// Имитируем внешнюю запись в файл между чтением и записью
		external := model.Settings{Version: set.Version + 7}
		if werr := s.writeFile(settingsFile, external); werr != nil {
			return fmt.Errorf("не удалось записать внешнюю версию: %w", werr)
		}
		return nil
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("ожидался ErrVersionConflict, получено %v", err)
	}
}

func TestAddUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.AddUser(ctx, "alice", "secret", model.RoleUser)
	if err != nil {
		t.Fatalf("ошибка создания пользователя: %v", err)
	}
	if user.Username != "alice" || user.Role != model.RoleUser {
		t.Errorf("неожиданный пользователь: %+v", user)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret")); err != nil {
		t.Error("пароль не совпадает с bcrypt-хэшем")
	}

	// Default-корень должен открыться новому пользователю
	settings, _ := s.Settings(ctx)
	if !settings.Roots[0].Allows("alice") {
		t.Error("default-корень должен включать нового пользователя в allowedUsers")
	}
}

func TestAddUser_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddUser(ctx, "bob", "x", model.RoleUser); err != nil {
		t.Fatalf("первое создание: %v", err)
	}
	_, err := s.AddUser(ctx, "bob", "y", model.RoleUser)
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("ожидался ErrUserExists, получено %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddUser(ctx, "carol", "x", model.RoleUser); err != nil {
		t.Fatalf("создание: %v", err)
	}
	if err := s.DeleteUser(ctx, "carol"); err != nil {
		t.Fatalf("удаление: %v", err)
	}
	if _, err := s.User(ctx, "carol"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("ожидался ErrUserNotFound, получено %v", err)
	}
}

func TestDeleteUser_ProtectedAdmin(t *testing.T) {
	s := newTestStore(t)

	err := s.DeleteUser(context.Background(), "admin")
	if !errors.Is(err, ErrProtectedUser) {
		t.Fatalf("ожидался ErrProtectedUser, получено %v", err)
	}
}

func TestAppendHistory_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.AppendHistory(ctx, model.HistoryEntry{
			Username: "admin",
			Action:   model.ActionUpload,
			Details:  fmt.Sprintf("запись %d", i),
		})
		if err != nil {
			t.Fatalf("ошибка добавления: %v", err)
		}
	}

	history, err := s.History(ctx)
	if err != nil {
		t.Fatalf("ошибка чтения журнала: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("ожидалось 3 записи, получено %d", len(history))
	}
	if history[0].Details != "запись 2" {
		t.Errorf("новые записи должны быть первыми, получено %s", history[0].Details)
	}
	if history[0].ID == "" {
		t.Error("запись должна получить сгенерированный ID")
	}
	if history[0].Timestamp.IsZero() {
		t.Error("запись должна получить timestamp")
	}
}

func TestAppendHistory_Limit(t *testing.T) {
	s, err := NewJSONStore(t.TempDir(), 5, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания хранилища: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		err := s.AppendHistory(ctx, model.HistoryEntry{
			Username: "u",
			Action:   model.ActionDelete,
			Details:  fmt.Sprintf("%d", i),
		})
		if err != nil {
			t.Fatalf("ошибка добавления: %v", err)
		}
	}

	history, _ := s.History(ctx)
	if len(history) != 5 {
		t.Fatalf("журнал должен быть усечён до 5 записей, получено %d", len(history))
	}
	if history[0].Details != "9" {
		t.Errorf("первой должна быть самая свежая запись, получено %s", history[0].Details)
	}
}

func TestWriteFile_NoTmpLeftover(t *testing.T) {
	s := newTestStore(t)

	if err := s.AppendHistory(context.Background(), model.HistoryEntry{Username: "u", Action: model.ActionCopy}); err != nil {
		t.Fatalf("ошибка добавления: %v", err)
	}

	tmpPath := filepath.Join(s.dataDir, historyFile+".tmp")
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Error("временный файл не должен существовать после записи")
	}
}
