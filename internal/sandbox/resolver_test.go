package sandbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bigkaa/mediaserve/internal/domain/model"
	"github.com/bigkaa/mediaserve/internal/roots"
	"github.com/bigkaa/mediaserve/internal/store"
)

var (
	adminPrincipal = model.Principal{Username: "admin", IsAdmin: true}
	alicePrincipal = model.Principal{Username: "alice"}
)

// newTestResolver создаёт Resolver с одним корнем во временной директории.
func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()

	rootDir := t.TempDir()

	st, err := store.NewJSONStore(t.TempDir(), 100, slog.New(slog.NewTextHandler(io.Discard, nil)))
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

	return NewResolver(roots.NewGuard(roots.NewRegistry(st))), rootDir
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name      string
		symbolic  string
		rootIndex int
		inner     string
		wantErr   bool
	}{
		{"корень", "0", 0, "", false},
		{"корень со слэшем", "0/", 0, "", false},
		{"вложенный путь", "2/movies/2024", 2, "movies/2024", false},
		{"двойные слэши", "1//a//b", 1, "a/b", false},
		{"ведущий слэш", "/0/a", 0, "a", false},
		{"пустой", "", 0, "", true},
		{"только слэши", "///", 0, "", true},
		{"нечисловой индекс", "media/a", 0, "", true},
		{"отрицательный индекс", "-1/a", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootIndex, inner, err := ParsePath(tt.symbolic)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPath) {
					t.Fatalf("ожидался ErrMalformedPath, получено %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if rootIndex != tt.rootIndex || inner != tt.inner {
				t.Errorf("ожидалось (%d, %q), получено (%d, %q)",
					tt.rootIndex, tt.inner, rootIndex, inner)
			}
		})
	}
}

func TestNormalizeInner(t *testing.T) {
	tests := []struct {
		inner string
		want  string
	}{
		{"", ""},
		{"a/b", "a/b"},
		{"a/./b", "a/b"},
		{"a//b", "a/b"},
		{"../etc/passwd", "etc/passwd"},
		{"../../../etc/passwd", "etc/passwd"},
		{"a/../b", "b"},
		{"a/../../b", "b"},
		{"..", ""},
		{"../..", ""},
		{"a/..", ""},
	}

	for _, tt := range tests {
		got := NormalizeInner(tt.inner)
		if got != tt.want {
			t.Errorf("NormalizeInner(%q): ожидалось %q, получено %q", tt.inner, tt.want, got)
		}
		if strings.Contains(got, "..") {
			t.Errorf("NormalizeInner(%q) = %q содержит ..", tt.inner, got)
		}
		// Идемпотентность
		if again := NormalizeInner(got); again != got {
			t.Errorf("NormalizeInner не идемпотентна: %q -> %q -> %q", tt.inner, got, again)
		}
	}
}

// Любой разрешённый путь лежит внутри границы, какие бы конструкции
// обхода ни содержал символический путь.
func TestResolve_NeverEscapesBoundary(t *testing.T) {
	r, rootDir := newTestResolver(t)
	ctx := context.Background()

	attacks := []string{
		"0/../../etc/passwd",
		"0/../../../../../../etc/shadow",
		"0/a/../../..",
		"0/a/b/../../../../root",
		"0/./../secret",
		"0//..//..//etc",
	}

	for _, symbolic := range attacks {
		for _, principal := range []model.Principal{adminPrincipal, alicePrincipal} {
			loc, err := r.Resolve(ctx, symbolic, principal)
			if err != nil {
				// отказ — допустимый исход, выход за границу — нет
				continue
			}
			if !WithinBoundary(loc.AbsolutePath, loc.Boundary) {
				t.Errorf("%s (%s): путь %s вне границы %s",
					symbolic, principal.Username, loc.AbsolutePath, loc.Boundary)
			}
			if !strings.HasPrefix(loc.AbsolutePath, rootDir) {
				t.Errorf("%s (%s): путь %s вне корня %s",
					symbolic, principal.Username, loc.AbsolutePath, rootDir)
			}
		}
	}
}

func TestResolve_AdminBoundary(t *testing.T) {
	r, rootDir := newTestResolver(t)

	loc, err := r.Resolve(context.Background(), "0/movies/file.mp4", adminPrincipal)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if loc.Boundary != rootDir {
		t.Errorf("граница администратора: ожидалось %s, получено %s", rootDir, loc.Boundary)
	}
	want := filepath.Join(rootDir, "movies", "file.mp4")
	if loc.AbsolutePath != want {
		t.Errorf("путь: ожидалось %s, получено %s", want, loc.AbsolutePath)
	}
	if loc.RootIndex != 0 {
		t.Errorf("rootIndex: ожидалось 0, получено %d", loc.RootIndex)
	}
}

func TestResolve_UserBoundaryCreated(t *testing.T) {
	r, rootDir := newTestResolver(t)

	loc, err := r.Resolve(context.Background(), "0/photos", alicePrincipal)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	wantBoundary := filepath.Join(rootDir, "alice")
	if loc.Boundary != wantBoundary {
		t.Errorf("граница пользователя: ожидалось %s, получено %s", wantBoundary, loc.Boundary)
	}
	if loc.AbsolutePath != filepath.Join(wantBoundary, "photos") {
		t.Errorf("неожиданный путь: %s", loc.AbsolutePath)
	}

	// Персональный каталог создаётся при первом обращении
	info, err := os.Stat(wantBoundary)
	if err != nil || !info.IsDir() {
		t.Errorf("персональный каталог не создан: %v", err)
	}
}

// Один и тот же символический путь для разных пользователей указывает
// на разные физические каталоги.
func TestResolve_PerUserIsolation(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	aliceLoc, err := r.Resolve(ctx, "0/file.txt", alicePrincipal)
	if err != nil {
		t.Fatalf("alice: %v", err)
	}
	adminLoc, err := r.Resolve(ctx, "0/file.txt", adminPrincipal)
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	if aliceLoc.AbsolutePath == adminLoc.AbsolutePath {
		t.Errorf("пути пользователей не должны совпадать: %s", aliceLoc.AbsolutePath)
	}
}

func TestResolve_Errors(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "5/a", adminPrincipal); !errors.Is(err, roots.ErrInvalidRoot) {
		t.Errorf("несуществующий корень: ожидался ErrInvalidRoot, получено %v", err)
	}
	if _, err := r.Resolve(ctx, "0/a", model.Principal{Username: "mallory"}); !errors.Is(err, roots.ErrForbidden) {
		t.Errorf("чужой корень: ожидался ErrForbidden, получено %v", err)
	}
	if _, err := r.Resolve(ctx, "abc", adminPrincipal); !errors.Is(err, ErrMalformedPath) {
		t.Errorf("мусорный путь: ожидался ErrMalformedPath, получено %v", err)
	}
}

func TestWithinBoundary(t *testing.T) {
	tests := []struct {
		absolute string
		boundary string
		want     bool
	}{
		{"/srv/media", "/srv/media", true},
		{"/srv/media/a", "/srv/media", true},
		{"/srv/media/a/b", "/srv/media", true},
		{"/srv/mediaX", "/srv/media", false},
		{"/srv", "/srv/media", false},
		{"/etc/passwd", "/srv/media", false},
	}

	for _, tt := range tests {
		if got := WithinBoundary(tt.absolute, tt.boundary); got != tt.want {
			t.Errorf("WithinBoundary(%q, %q): ожидалось %v, получено %v",
				tt.absolute, tt.boundary, tt.want, got)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"обычное имя", "My Movies", "My Movies", false},
		{"цифры и знаки", "s01_e02-final.v2", "s01_e02-final.v2", false},
		{"слэши вырезаются", "a/b\\c", "abc", false},
		{"спецсимволы", "dir<>:\"|?*", "dir", false},
		{"кириллица вырезается", "папка docs", "docs", false},
		{"пусто после очистки", "///", "", true},
		{"точки", "..", "", true},
		{"пробелы", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeName(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPath) {
					t.Fatalf("ожидался ErrMalformedPath, получено %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if got != tt.want {
				t.Errorf("ожидалось %q, получено %q", tt.want, got)
			}
		})
	}
}
