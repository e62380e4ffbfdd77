package middleware

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/mediaserve/internal/auth"
	"github.com/bigkaa/mediaserve/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubProvider — auth.Provider с фиксированным ответом.
type stubProvider struct {
	principal model.Principal
	err       error
}

func (p stubProvider) Authenticate(*http.Request) (model.Principal, error) {
	return p.principal, p.err
}

func TestAuthenticate_PutsPrincipalInContext(t *testing.T) {
	provider := stubProvider{principal: model.Principal{Username: "alice"}}

	handler := Authenticate(provider, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok || principal.Username != "alice" {
			t.Errorf("принципал не попал в контекст: %+v, %v", principal, ok)
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ops/list", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
}

func TestAuthenticate_Rejects(t *testing.T) {
	provider := stubProvider{err: fmt.Errorf("%w: нет данных", auth.ErrUnauthenticated)}

	handler := Authenticate(provider, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ops/list", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("ответ об ошибке должен быть JSON, получено %s", ct)
	}
}

func TestRequireAdmin_AllowsAdmin(t *testing.T) {
	handler := RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ctx := auth.WithPrincipal(httptest.NewRequest(http.MethodGet, "/", nil).Context(),
		model.Principal{Username: "admin", IsAdmin: true})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
}

func TestRequireAdmin_RejectsUser(t *testing.T) {
	handler := RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	ctx := auth.WithPrincipal(httptest.NewRequest(http.MethodGet, "/", nil).Context(),
		model.Principal{Username: "alice"})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("ожидался статус 403, получен %d", rec.Code)
	}
}

func TestRequireAdmin_RejectsUnauthenticated(t *testing.T) {
	handler := RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}
