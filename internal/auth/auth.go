// Пакет auth — AuthProvider: проверка учётных данных запроса
// и формирование принципала.
//
// Ядро сервера не знает, как именно проверяются учётные данные:
// оно получает model.Principal из Provider и дальше работает только с ним.
// Реализации: Basic (локальная база пользователей, bcrypt) и JWT (JWKS).
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/bigkaa/mediaserve/internal/domain/model"
)

// ErrUnauthenticated — запрос без валидных учётных данных.
var ErrUnauthenticated = errors.New("требуется аутентификация")

// Provider — интерфейс AuthProvider.
type Provider interface {
	// Authenticate проверяет учётные данные запроса и возвращает принципала.
	// Возвращает ошибку, оборачивающую ErrUnauthenticated, при любом отказе.
	Authenticate(r *http.Request) (model.Principal, error)
}

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// principalKey — ключ принципала в контексте запроса.
const principalKey contextKey = "principal"

// WithPrincipal помещает принципала в контекст.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext извлекает принципала из контекста запроса.
// ok == false, если запрос не прошёл аутентификацию.
func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(model.Principal)
	return p, ok
}
