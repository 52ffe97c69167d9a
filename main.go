package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"doclingapi/internal/api"
	"doclingapi/internal/cache"
	"doclingapi/internal/config"
	"doclingapi/internal/converter"
	"doclingapi/internal/docling"
	"doclingapi/internal/redis"
	"doclingapi/internal/tempfile"
)

const (
	shutdownTimeout    = 30 * time.Second
	healthCheckTimeout = 5 * time.Second
)

// parseLogLevel maps a level name to a logrus level. Unknown values fall back to info.
func parseLogLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(parseLogLevel(cfg.BasicConfig.LogLevel))
	if strings.EqualFold(cfg.BasicConfig.LogFormat, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "docling-api",
		Usage: "HTTP service that converts PDF uploads to markdown, HTML and structured JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a JSON config file",
				EnvVars: []string{"DOCLING_API_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before configuration",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address, overrides the config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Action: serve,
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logrus.WithError(err).Fatal("docling-api stopped")
	}
}

func serve(c *cli.Context) error {
	if err := config.LoadEnvFile(c.String("env-file")); err != nil {
		return err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if v := c.String("addr"); v != "" {
		cfg.BasicConfig.ServerAddress = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.BasicConfig.LogLevel = v
	}

	logger := newLogger(cfg)
	ctx := c.Context

	engine := docling.NewClient(cfg.Docling.BaseURL,
		docling.WithAPIKey(cfg.Docling.APIKey),
		docling.WithTimeout(cfg.DoclingTimeout()),
		docling.WithLogger(logger),
	)
	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	if err := engine.Health(healthCtx); err != nil {
		logger.WithError(err).WithField("url", cfg.Docling.BaseURL).Warn("docling-serve is not reachable yet")
	}
	cancel()

	if cfg.PictureDescription.APIKey == "" {
		// conversions will answer 500 until the credential is provided
		logger.Warn("GROQ_API_KEY is not set")
	}
	factory := converter.NewFactory(engine, cfg.PictureDescription.APIKey,
		converter.WithEndpoint(cfg.PictureDescription.URL),
		converter.WithPictureTimeout(cfg.PictureTimeout()),
		converter.WithDefaultPrompt(cfg.PictureDescription.Prompt),
	)

	store, err := tempfile.NewStore(cfg.BasicConfig.TempDir, ".pdf", logger)
	if err != nil {
		return err
	}
	store.StartCleaner(ctx, cfg.TempCleanInterval(), cfg.TempFileTTL())

	var results cache.Cache
	if cfg.Cache.Enabled {
		rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("create redis client: %w", err)
		}
		defer rdb.Close()
		results = cache.NewRedis(rdb, cfg.CacheTTL(), logger)
		logger.WithField("ttl", cfg.CacheTTL()).Info("result cache enabled")
	}

	if parseLogLevel(cfg.BasicConfig.LogLevel) < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.MaxMultipartMemory = cfg.BasicConfig.MultipartMemory << 20
	router.Use(gin.Recovery(), api.RequestID(), api.AccessLog(logger))
	api.NewHandler(factory, store, results, logger).RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"docling": cfg.Docling.BaseURL,
			"tmp":     store.Dir(),
		}).Info("docling-api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
