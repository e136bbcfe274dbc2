package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"trackxp/api/httpapi"
	"trackxp/config"
	"trackxp/engine"
	"trackxp/gamify"
)

// configFileEnv names an optional JSON or YAML config file.
const configFileEnv = "TRACKXP_CONFIG_FILE"

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Service *engine.Service
	Handler http.Handler
	Server  *http.Server
}

func provideConfig() (*config.Config, error) {
	if path := os.Getenv(configFileEnv); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load(".env")
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideService(cfg *config.Config, logger *slog.Logger) (*engine.Service, func(), error) {
	loc, err := cfg.Ledger.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("ledger timezone: %w", err)
	}
	svc, err := gamify.New(
		gamify.WithConfig(cfg.XP.Core()),
		gamify.WithLocation(loc),
		gamify.WithLogger(logger),
		gamify.WithDispatchMode(engine.DispatchAsync),
	)
	if err != nil {
		return nil, nil, err
	}
	return svc, svc.Close, nil
}

func provideHandler(svc *engine.Service, cfg *config.Config, logger *slog.Logger) http.Handler {
	return httpapi.NewMux(svc, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		Logger:           logger,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	out := os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}
