package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"atlas-rag/internal/adapter/httpapi"
	"atlas-rag/internal/di"
	"atlas-rag/internal/infra"
	"atlas-rag/internal/infra/config"
	"atlas-rag/internal/infra/logger"
	"atlas-rag/internal/infra/telemetry"
)

func main() {
	// 1. Load Config
	cfg := config.Load()

	// 2. Telemetry + Logger
	ctx := context.Background()
	otelShutdown, otelEnabled, err := telemetry.Setup(ctx, "atlas-rag")
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry setup failed: %v\n", err)
	}
	if otelShutdown != nil {
		defer otelShutdown(context.Background())
	}
	log := logger.NewWithOTel(otelEnabled)
	slog.SetDefault(log)

	// 3. Database
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err := infra.NewPostgresDB(ctx, dsn)
	if err != nil {
		log.Error("failed to connect to db", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4. Wire components
	components := di.NewApplicationComponents(cfg, pool, log)

	// 5. HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request_completed",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status))
			return nil
		},
	}))

	handler := httpapi.NewHandler(
		components.RetrieveUsecase,
		components.AnswerUsecase,
		components.IndexUsecase,
		func(c echo.Context) error {
			if err := pool.Ping(c.Request().Context()); err != nil {
				return fmt.Errorf("database not ready: %w", err)
			}
			return components.Health.Ping(c.Request().Context(), cfg.EmbeddingModel, cfg.ChatModel)
		},
		log,
	)
	handler.Register(e)

	go func() {
		addr := ":" + cfg.Port
		log.Info("server_starting", slog.String("addr", addr), slog.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", slog.String("error", err.Error()))
	}
}
