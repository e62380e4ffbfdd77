// Пакет config — загрузка и валидация конфигурации mediaserve
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Режимы аутентификации.
const (
	// AuthModeBasic — HTTP Basic против локальной базы пользователей.
	AuthModeBasic = "basic"
	// AuthModeJWT — Bearer JWT (RS256) с ключами из JWKS endpoint.
	AuthModeJWT = "jwt"
)

// Config содержит все параметры конфигурации mediaserve.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Путь к директории данных ConfigStore (settings.json, users.json, history.json)
	DataDir string
	// Путь к медиа-корню по умолчанию (seed первого запуска)
	MediaRoot string
	// Пароль администратора по умолчанию (seed первого запуска)
	AdminPassword string
	// Режим аутентификации (basic, jwt)
	AuthMode string
	// URL JWKS endpoint (обязателен при AuthMode=jwt)
	JWKSUrl string
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Путь к TLS сертификату (пусто — plain HTTP)
	TLSCert string
	// Путь к TLS приватному ключу
	TLSKey string
	// Максимальный суммарный размер multipart-запроса загрузки в байтах
	MaxUploadSize int64
	// Максимальное число записей журнала активности
	HistoryLimit int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут чтения HTTP-запроса
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-ответа.
	// 0 отключает таймаут: стриминг больших медиафайлов может длиться часами.
	HTTPWriteTimeout time.Duration
	// Таймаут простоя keep-alive соединений
	HTTPIdleTimeout time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// MS_PORT — порт HTTP-сервера (по умолчанию 8080)
	port, err := getEnvInt("MS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("MS_PORT: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("MS_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// MS_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("MS_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// MS_MEDIA_ROOT — медиа-корень по умолчанию (по умолчанию ./media)
	mediaRoot := getEnvDefault("MS_MEDIA_ROOT", "media")
	absRoot, err := filepath.Abs(mediaRoot)
	if err != nil {
		return nil, fmt.Errorf("MS_MEDIA_ROOT: %w", err)
	}
	cfg.MediaRoot = absRoot

	// MS_ADMIN_PASSWORD — пароль администратора первого запуска (по умолчанию "admin")
	cfg.AdminPassword = getEnvDefault("MS_ADMIN_PASSWORD", "admin")

	// MS_AUTH_MODE — режим аутентификации (по умолчанию basic)
	cfg.AuthMode = getEnvDefault("MS_AUTH_MODE", AuthModeBasic)
	if cfg.AuthMode != AuthModeBasic && cfg.AuthMode != AuthModeJWT {
		return nil, fmt.Errorf("MS_AUTH_MODE: недопустимое значение %q, допустимые: basic, jwt", cfg.AuthMode)
	}

	// MS_JWKS_URL — обязателен только в режиме jwt
	cfg.JWKSUrl = getEnvDefault("MS_JWKS_URL", "")
	if cfg.AuthMode == AuthModeJWT && cfg.JWKSUrl == "" {
		return nil, fmt.Errorf("MS_JWKS_URL: обязателен при MS_AUTH_MODE=jwt")
	}

	// MS_JWKS_CA_CERT — путь к CA-сертификату для JWKS endpoint (опционально)
	cfg.JWKSCACert = getEnvDefault("MS_JWKS_CA_CERT", "")

	// MS_JWT_LEEWAY — отклонение времени при проверке JWT (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("MS_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MS_JWT_LEEWAY: %w", err)
	}

	// MS_JWKS_REFRESH_INTERVAL — интервал обновления ключей (по умолчанию 1h)
	cfg.JWKSRefreshInterval, err = getEnvDuration("MS_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MS_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// MS_TLS_CERT / MS_TLS_KEY — опциональны, но только парой
	cfg.TLSCert = getEnvDefault("MS_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("MS_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("MS_TLS_CERT и MS_TLS_KEY должны быть заданы вместе")
	}

	// MS_MAX_UPLOAD_SIZE — максимальный размер загрузки (по умолчанию 1 GB)
	maxUpload, err := getEnvInt64("MS_MAX_UPLOAD_SIZE", 1073741824)
	if err != nil {
		return nil, fmt.Errorf("MS_MAX_UPLOAD_SIZE: %w", err)
	}
	if maxUpload <= 0 {
		return nil, fmt.Errorf("MS_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}
	cfg.MaxUploadSize = maxUpload

	// MS_HISTORY_LIMIT — лимит журнала активности (по умолчанию 1000)
	historyLimit, err := getEnvInt("MS_HISTORY_LIMIT", 1000)
	if err != nil {
		return nil, fmt.Errorf("MS_HISTORY_LIMIT: %w", err)
	}
	if historyLimit <= 0 {
		return nil, fmt.Errorf("MS_HISTORY_LIMIT: значение должно быть положительным")
	}
	cfg.HistoryLimit = historyLimit

	// MS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MS_LOG_LEVEL: %w", err)
	}

	// MS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("MS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// MS_HTTP_READ_TIMEOUT — таймаут чтения запроса (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("MS_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MS_HTTP_READ_TIMEOUT: %w", err)
	}

	// MS_HTTP_WRITE_TIMEOUT — таймаут записи ответа (по умолчанию 0 — без лимита,
	// иначе длинный стрим видео будет оборван на середине)
	cfg.HTTPWriteTimeout, err = getEnvDuration("MS_HTTP_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("MS_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// MS_HTTP_IDLE_TIMEOUT — таймаут keep-alive (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("MS_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MS_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// MS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("MS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
