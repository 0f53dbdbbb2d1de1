/*
Package config handles loading and validating application configuration
from environment variables. All values have sensible defaults so the
control plane can start with zero environment setup during local
development.
*/
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// AppConfig holds all configuration values for the control plane. Values are
// read once at startup and passed through the app via dependency injection;
// no global config variable is used.
type AppConfig struct {
	// Port is the TCP port the HTTP façade listens on.
	Port string

	// DBPath is the file path to the SQLite database file.
	DBPath string

	// ProjectsNetwork is the shared Docker network every deployed
	// container (and sidecar database container) is attached to.
	ProjectsNetwork string

	// DataMountPath is the in-container path a project's data file is
	// bind-mounted under.
	DataMountPath string

	// ContainerDataDir is the container-side directory prefix the pruner
	// rewrites to HostDataDir when deleting reclaimed data files.
	ContainerDataDir string

	// HostDataDir is the host-side directory holding project data files.
	// Empty means DataFile paths are used verbatim (no rewrite).
	HostDataDir string

	// ReconcilerInterval is the lifecycle reconciler's polling cadence.
	ReconcilerInterval time.Duration

	// PrunerSchedule is a standard 5-field cron expression for the
	// scheduled prune job.
	PrunerSchedule string

	// ContainerMemoryCapMiB is the per-container memory cap applied at
	// container creation time.
	ContainerMemoryCapMiB int64

	// LogFormat controls slog's output format: "text" | "json".
	LogFormat string
}

// NewLogger constructs a *slog.Logger based on LogFormat. "text" produces
// human-readable output for local development; anything else produces
// structured JSON, matching the teacher's config.NewLogger exactly.
func (c *AppConfig) NewLogger() *slog.Logger {
	var handler slog.Handler

	options := &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(groups []string, attribute slog.Attr) slog.Attr {
			if attribute.Key == slog.SourceKey {
				source := attribute.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attribute
		},
	}

	if c.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, options)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, options)
	}

	return slog.New(handler)
}

// LoadAppConfig reads configuration from environment variables, falling back
// to safe local-development defaults for anything unset.
func LoadAppConfig() *AppConfig {
	return &AppConfig{
		Port:                  getEnv("PORT", "8080"),
		DBPath:                getEnv("DB_PATH", "./corvus.db"),
		ProjectsNetwork:       getEnv("PROJECTS_NETWORK", "projects_network"),
		DataMountPath:         getEnv("DATA_MOUNT_PATH", "/var/www"),
		ContainerDataDir:      getEnv("CONTAINER_DATA_DIR", "/app/data/project-data-files"),
		HostDataDir:           getEnv("HOST_DATA_DIR", ""),
		ReconcilerInterval:    getEnvDuration("RECONCILER_INTERVAL", 30*time.Second),
		PrunerSchedule:        getEnv("PRUNER_SCHEDULE", "0 2 * * *"),
		ContainerMemoryCapMiB: getEnvInt64("CONTAINER_MEMORY_CAP_MIB", 800),
		LogFormat:             getEnv("LOG_FORMAT", "text"),
	}
}

// getEnv retrieves an environment variable, falling back when unset or empty.
func getEnv(key, fallbackValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallbackValue
}

func getEnvDuration(key string, fallbackValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallbackValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallbackValue
	}
	return parsed
}

func getEnvInt64(key string, fallbackValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallbackValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallbackValue
	}
	return parsed
}
