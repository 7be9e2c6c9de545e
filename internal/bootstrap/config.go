package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/srbenoit/mathops-sub032/config"
)

// LoggerOptions selects the slog handler for a binary.
type LoggerOptions struct {
	// Level is debug, info, warn or error; empty means info, or debug in dev.
	Level  string
	Format config.LogFormat
	IsDev  bool
	// Service is attached to every record.
	Service string
	Writer  io.Writer
}

// InitLogger builds the process logger and installs it as the slog default.
func InitLogger(opts LoggerOptions) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	hopts := &slog.HandlerOptions{Level: logLevel(opts.Level, opts.IsDev)}

	var h slog.Handler
	if opts.Format == config.LogFormatText {
		h = slog.NewTextHandler(w, hopts)
	} else {
		h = slog.NewJSONHandler(w, hopts)
	}
	logger := slog.New(h)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	slog.SetDefault(logger)
	return logger
}

func logLevel(name string, isDev bool) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(name))); err == nil {
		return lvl
	}
	if isDev {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// LoadConfig reads optional dotenv files, then the environment. A missing
// .env is fine; a malformed one is not. ENV_FILE may list extra files.
func LoadConfig() (config.AppConfig, error) {
	files := []string{".env"}
	if extra := strings.TrimSpace(os.Getenv("ENV_FILE")); extra != "" {
		files = append(strings.Split(extra, ","), files...)
	}
	for _, f := range files {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		// Load never overrides variables already set, so earlier files win.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.AppConfig{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// ValidateServiceConfig requires a parseable, non-empty SERVICES list.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}
	if len(services) == 0 {
		return errors.New("no services enabled")
	}
	return nil
}

// GetEnabledServices lists enabled modes in canonical order; an invalid
// list yields none and is reported by ValidateServiceConfig.
func GetEnabledServices(cfg *config.AppConfig) []string {
	if cfg == nil {
		return []string{}
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return []string{}
	}
	names := make([]string, 0, len(services))
	for _, mode := range config.ValidServiceModes() {
		if services[mode] {
			names = append(names, string(mode))
		}
	}
	return names
}
