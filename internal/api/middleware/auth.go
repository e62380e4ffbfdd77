// auth.go — middleware аутентификации и авторизации.
// Проверка учётных данных делегируется auth.Provider (Basic или JWT),
// принципал помещается в контекст запроса.
// Публичные endpoints (health, metrics) — без аутентификации.
package middleware

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/mediaserve/internal/api/errors"
	"github.com/bigkaa/mediaserve/internal/auth"
)

// Authenticate возвращает middleware, проверяющий учётные данные
// запроса через provider. Запрос без валидных данных — 401.
func Authenticate(provider auth.Provider, logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With(slog.String("component", "auth_middleware"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := provider.Authenticate(r)
			if err != nil {
				log.Debug("Аутентификация не пройдена",
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.Unauthorized(w, "Требуется аутентификация")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdmin возвращает middleware, пропускающий только
// администраторов. Должен использоваться ПОСЛЕ Authenticate.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				apierrors.Unauthorized(w, "Требуется аутентификация")
				return
			}
			if !principal.IsAdmin {
				apierrors.Forbidden(w, "Требуются права администратора")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
