// jwt.go — AuthProvider поверх Bearer JWT (RS256) с ключами из JWKS.
// Claims: sub (username), role ("admin" даёт права администратора).
package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/mediaserve/internal/domain/model"
)

// Claims — структура JWT claims mediaserve.
type Claims struct {
	jwt.RegisteredClaims
	// Role — роль пользователя ("admin" или "user").
	Role string `json:"role"`
}

// JWTProvider — AuthProvider поверх Bearer JWT.
type JWTProvider struct {
	jwks   keyfunc.Keyfunc
	leeway time.Duration
	logger *slog.Logger
}

// JWTConfig — параметры создания JWT-провайдера.
type JWTConfig struct {
	// URL JWKS endpoint
	JWKSURL string
	// Путь к CA-сертификату (опционально)
	CACertPath string
	// Интервал обновления JWKS-ключей
	RefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	Leeway time.Duration
}

// NewJWTProvider создаёт JWT-провайдер с JWKS из указанного URL.
func NewJWTProvider(cfg JWTConfig, logger *slog.Logger) (*JWTProvider, error) {
	httpClient, err := buildHTTPClient(cfg.CACertPath)
	if err != nil {
		return nil, err
	}

	// NoErrorReturnFirstHTTPReq позволяет стартовать даже если JWKS endpoint
	// ещё недоступен (например, при одновременном запуске сервисов).
	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", cfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &JWTProvider{
		jwks:   kf,
		leeway: cfg.Leeway,
		logger: logger.With(slog.String("component", "jwt_auth")),
	}, nil
}

// NewJWTProviderWithKeyfunc создаёт JWT-провайдер с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTProviderWithKeyfunc(kf keyfunc.Keyfunc, leeway time.Duration, logger *slog.Logger) *JWTProvider {
	return &JWTProvider{
		jwks:   kf,
		leeway: leeway,
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

// Authenticate извлекает Bearer token, валидирует подпись (RS256),
// проверяет exp/nbf и формирует принципала из sub и role.
func (p *JWTProvider) Authenticate(r *http.Request) (model.Principal, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return model.Principal{}, fmt.Errorf("%w: отсутствует заголовок Authorization", ErrUnauthenticated)
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return model.Principal{}, fmt.Errorf("%w: ожидается Bearer <token>", ErrUnauthenticated)
	}
	tokenString := parts[1]
	if tokenString == "" {
		return model.Principal{}, fmt.Errorf("%w: пустой Bearer token", ErrUnauthenticated)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, p.jwks.KeyfuncCtx(r.Context()),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(p.leeway),
	)
	if err != nil {
		p.logger.Debug("JWT валидация не пройдена",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		return model.Principal{}, fmt.Errorf("%w: невалидный или просроченный токен", ErrUnauthenticated)
	}
	if !token.Valid {
		return model.Principal{}, fmt.Errorf("%w: невалидный токен", ErrUnauthenticated)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return model.Principal{}, fmt.Errorf("%w: отсутствует sub в токене", ErrUnauthenticated)
	}

	return model.Principal{
		Username: subject,
		IsAdmin:  claims.Role == string(model.RoleAdmin),
	}, nil
}

// buildHTTPClient создаёт HTTP-клиент для JWKS с настроенным TLS.
func buildHTTPClient(caCertPath string) (*http.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if caCertPath != "" {
		caCert, err := os.ReadFile(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", caCertPath, err)
		}

		caCertPool, err := x509.SystemCertPool()
		if err != nil {
			caCertPool = x509.NewCertPool()
		}
		caCertPool.AppendCertsFromPEM(caCert)
		tlsConfig.RootCAs = caCertPool
	}

	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}, nil
}
