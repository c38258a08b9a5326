package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/c21501/rfc-service/internal/api"
	"github.com/c21501/rfc-service/internal/auth"
	"github.com/c21501/rfc-service/internal/config"
	"github.com/c21501/rfc-service/internal/logging"
	"github.com/c21501/rfc-service/internal/mcp"
	"github.com/c21501/rfc-service/internal/planka"
	"github.com/c21501/rfc-service/internal/repository"
	"github.com/c21501/rfc-service/internal/services"
	tlsutil "github.com/c21501/rfc-service/internal/tls"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the RFC service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	logger := logging.NewLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("Starting RFC service",
		"environment", cfg.Environment,
		"planka_enabled", cfg.Planka.Enabled,
		"planka_project", cfg.Planka.ProjectID,
		"planka_board", cfg.Planka.BoardID,
		"scheduler_interval", cfg.Scheduler.Interval,
	)

	pool, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("Database connected")

	repo := repository.NewPostgresStore(pool)

	// Service layer
	boardClient := planka.NewClient(cfg.Planka.URL, cfg.Planka.APIToken, logger)
	boardSync := services.NewBoardSync(boardClient, repo, services.BoardSyncConfig{
		Enabled: cfg.Planka.Enabled,
		BoardID: cfg.Planka.BoardID,
	}, logger)

	rfcService := services.NewRfcService(repo, boardSync, cfg.Planka.AutoSync, logger)
	statusService := services.NewStatusService(repo, logger)
	approvalService := services.NewApprovalService(repo, logger)
	historyService := services.NewHistoryService(repo, logger)
	webhookService := services.NewWebhookService(repo, boardSync, services.WebhookConfig{
		Secret: cfg.Planka.WebhookSecret,
	}, logger)

	scheduler := services.NewScheduler(repo, boardSync, services.SchedulerConfig{
		Interval:     cfg.Scheduler.Interval,
		Workers:      cfg.Scheduler.Workers,
		SyncDebounce: cfg.Planka.SyncDebounce,
	}, logger)

	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go scheduler.Run(schedulerCtx)

	logger.Info("Service layer initialized")

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler(logger)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("rfc-service"))

	authz, err := auth.New(ctx, cfg, repo, logger)
	if err != nil {
		return err
	}

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))
	e.GET("/health", api.HandleHealth)

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	apiServer := api.NewServer(rfcService, statusService, approvalService, historyService, logger)
	apiServer.RegisterHandlers(apiGroup)

	// Webhooks authenticate with the shared secret, not user tokens.
	webhookGroup := e.Group("/api/webhook/planka")
	api.NewWebhookHandler(webhookService, logger).RegisterHandlers(webhookGroup)

	mcpServer := mcp.NewServer(rfcService, historyService)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))
	e.Any("/mcp", echo.WrapHandler(mcpHandlers))

	logger.Info("Handlers mounted")

	addr := ":8080"
	if cfg.TLS.Enable {
		addr = ":8443"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			serverErrors <- serveTLS(server, cfg, logger)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return err
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig)
		stopScheduler()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}

// serveTLS starts the HTTPS listener, generating a self-signed certificate
// first when the configured files are missing.
func serveTLS(server *http.Server, cfg *config.Config, logger *logging.Logger) error {
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		logger.Error("TLS enabled but cert/key file not provided")
		return server.ListenAndServe()
	}
	if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
		if len(cfg.TLS.Hostnames) > 0 {
			if err := tlsutil.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
				logger.Error("failed to generate self-signed cert", "error", err)
			}
		}
	}
	return server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
}
