// Точка входа mediaserve — персонального медиа-сервера.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bigkaa/mediaserve/internal/activity"
	"github.com/bigkaa/mediaserve/internal/api/handlers"
	"github.com/bigkaa/mediaserve/internal/auth"
	"github.com/bigkaa/mediaserve/internal/config"
	"github.com/bigkaa/mediaserve/internal/roots"
	"github.com/bigkaa/mediaserve/internal/sandbox"
	"github.com/bigkaa/mediaserve/internal/server"
	"github.com/bigkaa/mediaserve/internal/service"
	"github.com/bigkaa/mediaserve/internal/store"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("mediaserve запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("auth_mode", cfg.AuthMode),
		slog.String("data_dir", cfg.DataDir),
	)

	ctx := context.Background()

	// --- Инициализация компонентов ---

	// 1. ConfigStore: конфигурация корней, пользователи, журнал
	st, err := store.NewJSONStore(cfg.DataDir, cfg.HistoryLimit, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := st.EnsureDefaults(ctx, cfg.MediaRoot, cfg.AdminPassword); err != nil {
		logger.Error("Ошибка инициализации конфигурации по умолчанию",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// 2. AuthProvider: Basic (локальные пользователи) или JWT (JWKS)
	var provider auth.Provider
	switch cfg.AuthMode {
	case config.AuthModeJWT:
		jwtProvider, jerr := auth.NewJWTProvider(auth.JWTConfig{
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.JWKSCACert,
			RefreshInterval: cfg.JWKSRefreshInterval,
			Leeway:          cfg.JWTLeeway,
		}, logger)
		if jerr != nil {
			logger.Error("Ошибка инициализации JWT-аутентификации",
				slog.String("jwks_url", cfg.JWKSUrl),
				slog.String("error", jerr.Error()),
			)
			os.Exit(1)
		}
		provider = jwtProvider
		logger.Info("JWT аутентификация настроена", slog.String("jwks_url", cfg.JWKSUrl))
	default:
		provider = auth.NewBasicProvider(st, logger)
		logger.Info("Basic аутентификация настроена")
	}

	// 3. Реестр корней, контроль доступа, разрешение путей
	registry := roots.NewRegistry(st)
	guard := roots.NewGuard(registry)
	resolver := sandbox.NewResolver(guard)
	recorder := activity.NewStoreRecorder(st, logger)

	// 4. Сервисы
	filesSvc := service.NewFilesService(resolver, guard, recorder, logger)
	streamSvc := service.NewStreamService(resolver, logger)
	uploadSvc := service.NewUploadService(resolver, recorder, logger)
	adminSvc := service.NewAdminService(st, logger)

	// 5. Handlers
	h := server.Handlers{
		Ops:    handlers.NewOpsHandler(filesSvc),
		Stream: handlers.NewStreamHandler(streamSvc),
		Upload: handlers.NewUploadHandler(uploadSvc, cfg.MaxUploadSize, logger),
		Admin:  handlers.NewAdminHandler(adminSvc),
		Health: handlers.NewHealthHandler(cfg.DataDir),
	}

	// 6. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, provider, h)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("mediaserve остановлен")
}
