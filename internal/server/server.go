// Пакет server — HTTP-сервер mediaserve с TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/mediaserve/internal/api/handlers"
	"github.com/bigkaa/mediaserve/internal/api/middleware"
	"github.com/bigkaa/mediaserve/internal/auth"
	"github.com/bigkaa/mediaserve/internal/config"
)

// Handlers — набор обработчиков, монтируемых на роутер.
type Handlers struct {
	Ops    *handlers.OpsHandler
	Stream *handlers.StreamHandler
	Upload *handlers.UploadHandler
	Admin  *handlers.AdminHandler
	Health *handlers.HealthHandler
}

// Server — HTTP-сервер mediaserve.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
//
// Порядок middleware: метрики считают все запросы (включая 401),
// логирование видит итоговый статус, аутентификация — только на
// защищённых группах. Health и /metrics — публичные.
func New(cfg *config.Config, logger *slog.Logger, provider auth.Provider, h Handlers) *Server {
	router := chi.NewRouter()

	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Публичные endpoints
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	authenticate := middleware.Authenticate(provider, logger)

	// Стриминг
	router.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/stream/*", h.Stream.Serve)
	})

	// API файловых операций
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticate)

		r.Post("/ops/list", h.Ops.List)
		r.Post("/ops/mkdir", h.Ops.Mkdir)
		r.Post("/ops/delete", h.Ops.Delete)
		r.Post("/ops/rename", h.Ops.Rename)
		r.Post("/ops/paste", h.Ops.Paste)

		r.Post("/upload", h.Upload.Upload)

		r.Get("/history", h.Admin.History)

		// Административная группа
		r.Route("/admin", func(ar chi.Router) {
			ar.Use(middleware.RequireAdmin())

			ar.Get("/users", h.Admin.ListUsers)
			ar.Post("/users", h.Admin.CreateUser)
			ar.Delete("/users/{username}", h.Admin.DeleteUser)

			ar.Get("/roots", h.Admin.ListRoots)
			ar.Post("/roots", h.Admin.AddRoot)
			ar.Put("/roots/{index}", h.Admin.UpdateRoot)
			ar.Delete("/roots/{index}", h.Admin.DeleteRoot)
		})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
		// WriteTimeout по умолчанию 0: длинный медиа-стрим
		// не должен обрываться по таймауту записи
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с настроенным таймаутом.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSCert != ""),
		)

		var err error
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
