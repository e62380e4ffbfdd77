package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/bigkaa/mediaserve/internal/activity"
	apierrors "github.com/bigkaa/mediaserve/internal/api/errors"
	"github.com/bigkaa/mediaserve/internal/domain/model"
	"github.com/bigkaa/mediaserve/internal/roots"
	"github.com/bigkaa/mediaserve/internal/sandbox"
	"github.com/bigkaa/mediaserve/internal/store"
)

var (
	adminPrincipal = model.Principal{Username: "admin", IsAdmin: true}
	alicePrincipal = model.Principal{Username: "alice"}
)

// testEnv — общая обвязка тестов сервисного слоя:
// один корень во временной директории, alice в allowedUsers.
type testEnv struct {
	rootDir  string
	store    *store.JSONStore
	resolver *sandbox.Resolver
	guard    *roots.Guard
	files    *FilesService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rootDir := t.TempDir()

	st, err := store.NewJSONStore(t.TempDir(), 100, logger)
	if err != nil {
		t.Fatalf("ошибка создания хранилища: %v", err)
	}
	ctx := context.Background()
	if err := st.EnsureDefaults(ctx, rootDir, "admin"); err != nil {
		t.Fatalf("ошибка инициализации: %v", err)
	}
	_, err = st.UpdateSettings(ctx, func(set *model.Settings) error {
		set.Roots = []model.MediaRoot{
			{Path: rootDir, AllowedUsers: []string{"alice"}},
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ошибка настройки корней: %v", err)
	}

	guard := roots.NewGuard(roots.NewRegistry(st))
	resolver := sandbox.NewResolver(guard)

	return &testEnv{
		rootDir:  rootDir,
		store:    st,
		resolver: resolver,
		guard:    guard,
		files:    NewFilesService(resolver, guard, activity.NopRecorder{}, logger),
	}
}

// writeTestFile создаёт файл с содержимым внутри корня.
func (e *testEnv) writeTestFile(t *testing.T, rel, content string) string {
	t.Helper()
	p := filepath.Join(e.rootDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		t.Fatalf("ошибка создания каталога: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o640); err != nil {
		t.Fatalf("ошибка создания файла: %v", err)
	}
	return p
}

func TestList_DirsFirstSorted(t *testing.T) {
	env := newTestEnv(t)
	env.writeTestFile(t, "zz.txt", "z")
	env.writeTestFile(t, "Aa.txt", "a")
	if err := os.Mkdir(filepath.Join(env.rootDir, "videos"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Mkdir(filepath.Join(env.rootDir, "Books"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	items, ferr := env.files.List(context.Background(), adminPrincipal, "0")
	if ferr != nil {
		t.Fatalf("неожиданная ошибка: %v", ferr)
	}

	var names []string
	for _, it := range items {
		names = append(names, it.Name)
	}
	want := []string{"Books", "videos", "Aa.txt", "zz.txt"}
	if len(names) != len(want) {
		t.Fatalf("ожидалось %v, получено %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("позиция %d: ожидалось %s, получено %s (весь список: %v)", i, want[i], names[i], names)
		}
	}
}

func TestList_ItemPaths(t *testing.T) {
	env := newTestEnv(t)
	env.writeTestFile(t, "movies/film.mp4", "data")

	items, ferr := env.files.List(context.Background(), adminPrincipal, "0/movies")
	if ferr != nil {
		t.Fatalf("неожиданная ошибка: %v", ferr)
	}
	if len(items) != 1 {
		t.Fatalf("ожидался один элемент, получено %d", len(items))
	}
	if items[0].Path != "0/movies/film.mp4" {
		t.Errorf("символический путь: ожидалось 0/movies/film.mp4, получено %s", items[0].Path)
	}
	if items[0].Size != 4 {
		t.Errorf("размер: ожидалось 4, получено %d", items[0].Size)
	}
}

func TestList_EmptyPathListsVisibleRoots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	items, ferr := env.files.List(ctx, adminPrincipal, "")
	if ferr != nil {
		t.Fatalf("неожиданная ошибка: %v", ferr)
	}
	if len(items) != 1 {
		t.Fatalf("ожидался один корень, получено %d", len(items))
	}
	if !items[0].IsDirectory {
		t.Error("корень должен быть каталогом")
	}
	if items[0].Path != "0" {
		t.Errorf("путь корня: ожидалось 0, получено %s", items[0].Path)
	}

	// Пользователь без прав не видит ни одного корня
	items, ferr = env.files.List(ctx, model.Principal{Username: "mallory"}, "")
	if ferr != nil {
		t.Fatalf("неожиданная ошибка: %v", ferr)
	}
	if len(items) != 0 {
		t.Errorf("чужой пользователь не должен видеть корни, получено %d", len(items))
	}
}

func TestList_InvalidRootDegradesToEmpty(t *testing.T) {
	env := newTestEnv(t)

	items, ferr := env.files.List(context.Background(), adminPrincipal, "9/x")
	if ferr != nil {
		t.Fatalf("несуществующий корень должен деградировать в пустой список, получено %v", ferr)
	}
	if len(items) != 0 {
		t.Errorf("ожидался пустой список, получено %d элементов", len(items))
	}
}

func TestList_ForbiddenRootFails(t *testing.T) {
	env := newTestEnv(t)

	_, ferr := env.files.List(context.Background(), model.Principal{Username: "mallory"}, "0")
	if ferr == nil || ferr.Code != apierrors.CodeForbidden {
		t.Fatalf("ожидался FORBIDDEN, получено %v", ferr)
	}
}

func TestCreateFolder_SanitizesName(t *testing.T) {
	env := newTestEnv(t)

	if ferr := env.files.CreateFolder(context.Background(), adminPrincipal, "0", "My<>:Movies"); ferr != nil {
		t.Fatalf("неожиданная ошибка: %v", ferr)
	}
	if _, err := os.Stat(filepath.Join(env.rootDir, "MyMovies")); err != nil {
		t.Errorf("каталог с очищенным именем не создан: %v", err)
	}
}

func TestCreateFolder_RejectsEmptyName(t *testing.T) {
	env := newTestEnv(t)

	ferr := env.files.CreateFolder(context.Background(), adminPrincipal, "0", "///")
	if ferr == nil || ferr.Code != apierrors.CodeValidationError {
		t.Fatalf("ожидался VALIDATION_ERROR, получено %v", ferr)
	}
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	p := env.writeTestFile(t, "old/file.txt", "x")

	if ferr := env.files.Delete(context.Background(), adminPrincipal, "0/old"); ferr != nil {
		t.Fatalf("неожиданная ошибка: %v", ferr)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Error("каталог должен быть удалён рекурсивно")
	}
}

func TestDelete_MissingPathIsNoop(t *testing.T) {
	env := newTestEnv(t)

	if ferr := env.files.Delete(context.Background(), adminPrincipal, "0/nothing"); ferr != nil {
		t.Fatalf("удаление несуществующего пути не ошибка, получено %v", ferr)
	}
}

func TestDelete_BoundaryProtected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// "0" для администратора — сам корень
	ferr := env.files.Delete(ctx, adminPrincipal, "0")
	if ferr == nil || ferr.Code != apierrors.CodeAccessDenied {
		t.Fatalf("границу удалить нельзя, получено %v", ferr)
	}
	if _, err := os.Stat(env.rootDir); err != nil {
		t.Fatal("корень не должен быть удалён")
	}

	// и для пользователя — его персональный каталог
	ferr = env.files.Delete(ctx, alicePrincipal, "0")
	if ferr == nil || ferr.Code != apierrors.CodeAccessDenied {
		t.Fatalf("персональную границу удалить нельзя, получено %v", ferr)
	}
}

func TestRename(t *testing.T) {
	env := newTestEnv(t)
	env.writeTestFile(t, "a.txt", "data")

	if ferr := env.files.Rename(context.Background(), adminPrincipal, "0/a.txt", "b.txt"); ferr != nil {
		t.Fatalf("неожиданная ошибка: %v", ferr)
	}
	if _, err := os.Stat(filepath.Join(env.rootDir, "b.txt")); err != nil {
		t.Error("файл с новым именем не найден")
	}
	if _, err := os.Stat(filepath.Join(env.rootDir, "a.txt")); !os.IsNotExist(err) {
		t.Error("файл со старым именем должен исчезнуть")
	}
}

func TestRename_TargetExists(t *testing.T) {
	env := newTestEnv(t)
	env.writeTestFile(t, "a.txt", "a")
	env.writeTestFile(t, "b.txt", "b")

	ferr := env.files.Rename(context.Background(), adminPrincipal, "0/a.txt", "b.txt")
	if ferr == nil || ferr.Code != apierrors.CodeAlreadyExists {
		t.Fatalf("ожидался ALREADY_EXISTS, получено %v", ferr)
	}
	// содержимое цели не тронуто
	data, _ := os.ReadFile(filepath.Join(env.rootDir, "b.txt"))
	if string(data) != "b" {
		t.Errorf("целевой файл перезаписан: %q", data)
	}
}

func TestRename_MissingSource(t *testing.T) {
	env := newTestEnv(t)

	ferr := env.files.Rename(context.Background(), adminPrincipal, "0/ghost.txt", "new.txt")
	if ferr == nil || ferr.Code != apierrors.CodeNotFound {
		t.Fatalf("ожидался NOT_FOUND, получено %v", ferr)
	}
}

func TestPaste_Copy(t *testing.T) {
	env := newTestEnv(t)
	env.writeTestFile(t, "src/a.txt", "alpha")
	env.writeTestFile(t, "src/sub/b.txt", "beta")
	if err := os.Mkdir(filepath.Join(env.rootDir, "dst"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if ferr := env.files.Paste(context.Background(), adminPrincipal, "0/src", "0/dst", PasteCopy); ferr != nil {
		t.Fatalf("неожиданная ошибка: %v", ferr)
	}

	data, err := os.ReadFile(filepath.Join(env.rootDir, "dst", "src", "sub", "b.txt"))
	if err != nil || string(data) != "beta" {
		t.Errorf("дерево скопировано не полностью: %v %q", err, data)
	}
	// источник на месте
	if _, err := os.Stat(filepath.Join(env.rootDir, "src", "a.txt")); err != nil {
		t.Error("источник не должен исчезать при copy")
	}
}

func TestPaste_Move(t *testing.T) {
	env := newTestEnv(t)
	env.writeTestFile(t, "src/a.txt", "alpha")
	if err := os.Mkdir(filepath.Join(env.rootDir, "dst"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if ferr := env.files.Paste(context.Background(), adminPrincipal, "0/src", "0/dst", PasteMove); ferr != nil {
		t.Fatalf("неожиданная ошибка: %v", ferr)
	}
	if _, err := os.Stat(filepath.Join(env.rootDir, "dst", "src", "a.txt")); err != nil {
		t.Error("перенесённый файл не найден")
	}
	if _, err := os.Stat(filepath.Join(env.rootDir, "src")); !os.IsNotExist(err) {
		t.Error("источник должен исчезнуть при move")
	}
}

func TestPaste_IntoItself(t *testing.T) {
	env := newTestEnv(t)
	env.writeTestFile(t, "src/a.txt", "alpha")

	ferr := env.files.Paste(context.Background(), adminPrincipal, "0/src", "0/src", PasteCopy)
	if ferr == nil || ferr.Code != apierrors.CodeValidationError {
		t.Fatalf("вставка каталога в самого себя должна отклоняться, получено %v", ferr)
	}
}

func TestPaste_TargetExists(t *testing.T) {
	env := newTestEnv(t)
	env.writeTestFile(t, "src/a.txt", "alpha")
	env.writeTestFile(t, "dst/src", "занято")

	ferr := env.files.Paste(context.Background(), adminPrincipal, "0/src", "0/dst", PasteMove)
	if ferr == nil || ferr.Code != apierrors.CodeAlreadyExists {
		t.Fatalf("ожидался ALREADY_EXISTS, получено %v", ferr)
	}
}

func TestPaste_UnknownOp(t *testing.T) {
	env := newTestEnv(t)

	ferr := env.files.Paste(context.Background(), adminPrincipal, "0/a", "0/b", PasteOp("link"))
	if ferr == nil || ferr.Code != apierrors.CodeValidationError {
		t.Fatalf("ожидался VALIDATION_ERROR, получено %v", ferr)
	}
}

// Операции пользователя изолированы в его персональном каталоге:
// файл администратора в корне для alice не существует.
func TestUserOperationsConfinedToPersonalDir(t *testing.T) {
	env := newTestEnv(t)
	env.writeTestFile(t, "admin-file.txt", "secret")
	ctx := context.Background()

	items, ferr := env.files.List(ctx, alicePrincipal, "0")
	if ferr != nil {
		t.Fatalf("неожиданная ошибка: %v", ferr)
	}
	if len(items) != 0 {
		t.Errorf("alice не должна видеть файлы вне своего каталога, получено %d", len(items))
	}

	if ferr := env.files.CreateFolder(ctx, alicePrincipal, "0", "mine"); ferr != nil {
		t.Fatalf("неожиданная ошибка: %v", ferr)
	}
	if _, err := os.Stat(filepath.Join(env.rootDir, "alice", "mine")); err != nil {
		t.Errorf("каталог должен появиться внутри персонального каталога: %v", err)
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"film.mp4", "video/mp4"},
		{"FILM.MP4", "video/mp4"},
		{"clip.webm", "video/webm"},
		{"song.mp3", "audio/mpeg"},
		{"cover.jpeg", "image/jpeg"},
		{"doc.pdf", "application/pdf"},
		{"notes.txt", "text/plain"},
		{"archive.zip", "application/octet-stream"},
		{"noext", "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := ContentTypeFor(tt.name); got != tt.want {
			t.Errorf("ContentTypeFor(%q): ожидалось %s, получено %s", tt.name, tt.want, got)
		}
	}
}
