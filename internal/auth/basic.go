// basic.go — AuthProvider поверх HTTP Basic и локальной базы пользователей.
// Пароли сверяются с bcrypt-хэшами из ConfigStore.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/mediaserve/internal/domain/model"
	"github.com/bigkaa/mediaserve/internal/store"
)

// BasicProvider — AuthProvider поверх HTTP Basic.
type BasicProvider struct {
	store  store.Store
	logger *slog.Logger
}

// NewBasicProvider создаёт Basic-провайдер над хранилищем пользователей.
func NewBasicProvider(st store.Store, logger *slog.Logger) *BasicProvider {
	return &BasicProvider{
		store:  st,
		logger: logger.With(slog.String("component", "basic_auth")),
	}
}

// Authenticate разбирает заголовок Authorization: Basic,
// находит пользователя и сверяет пароль с bcrypt-хэшем.
func (p *BasicProvider) Authenticate(r *http.Request) (model.Principal, error) {
	username, password, ok := parseBasicAuth(r.Header.Get("Authorization"))
	if !ok {
		return model.Principal{}, fmt.Errorf("%w: ожидается Basic-авторизация", ErrUnauthenticated)
	}

	user, err := p.store.User(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			// Выравниваем стоимость ответа: bcrypt по фиктивному хэшу,
			// чтобы не выдавать существование пользователя по времени.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return model.Principal{}, fmt.Errorf("%w: неверные учётные данные", ErrUnauthenticated)
		}
		return model.Principal{}, fmt.Errorf("ошибка чтения пользователя: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		p.logger.Debug("Неверный пароль",
			slog.String("username", username),
			slog.String("remote_addr", r.RemoteAddr),
		)
		return model.Principal{}, fmt.Errorf("%w: неверные учётные данные", ErrUnauthenticated)
	}

	return user.Principal(), nil
}

// dummyHash — bcrypt-хэш для выравнивания времени ответа
// при неизвестном пользователе.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B0X8bq5J5m9mQXvQfKpVYCfGJW2u")

// parseBasicAuth разбирает заголовок Authorization: Basic.
func parseBasicAuth(v string) (username, password string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(v, prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(strings.TrimPrefix(v, prefix)))
	if err != nil {
		return "", "", false
	}
	s := string(raw)
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return "", "", false
	}
	username = s[:i]
	password = s[i+1:]
	if strings.ContainsRune(username, 0) || strings.ContainsRune(password, 0) {
		return "", "", false
	}
	return username, password, true
}
