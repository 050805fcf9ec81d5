package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all process configuration for the promptyui engine and its
// server front-end.
type Config struct {
	Server   ServerConfig
	Engine   EngineConfig
	Artifact ArtifactConfig
	Storage  StorageConfig
	Logging  LoggingConfig
}

// ServerConfig holds the HTTP server's own settings.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// EngineConfig holds the tuning knobs the job expander and executor need
// at build time (spec.md 4.2: "tuning knobs").
type EngineConfig struct {
	RangeIncrement   float64
	WildcardsMax     int
	ExtTextMax       int
	PromptsDelimiter string
	TriggerDelimiter string
}

// ArtifactConfig holds the artifact store's on-disk layout root.
type ArtifactConfig struct {
	Root string
}

// StorageConfig holds the on-disk roots internal/api reads job documents,
// extensions, session state and operation files from. YAML/JSON file I/O
// itself is outside the engine's core (spec.md 1), but the server front-end
// needs to know where to look.
type StorageConfig struct {
	JobsRoot       string
	ExtensionsRoot string
}

// LoggingConfig holds logging setup.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables, falling back to
// defaults suited to local/CLI use.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("PROMPTY_PORT", 8080),
			ShutdownTimeout: getEnvDuration("PROMPTY_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Engine: EngineConfig{
			RangeIncrement:   getEnvFloat("PROMPTY_RANGE_INCREMENT", 0.1),
			WildcardsMax:     getEnvInt("PROMPTY_WILDCARDS_MAX", 0),
			ExtTextMax:       getEnvInt("PROMPTY_EXT_TEXT_MAX", 0),
			PromptsDelimiter: getEnv("PROMPTY_PROMPTS_DELIMITER", ", "),
			TriggerDelimiter: getEnv("PROMPTY_TRIGGER_DELIMITER", ", "),
		},
		Artifact: ArtifactConfig{
			Root: getEnv("PROMPTY_ARTIFACT_ROOT", "_artifacts"),
		},
		Storage: StorageConfig{
			JobsRoot:       getEnv("PROMPTY_JOBS_ROOT", "jobs"),
			ExtensionsRoot: getEnv("PROMPTY_EXTENSIONS_ROOT", "extensions"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("PROMPTY_LOG_LEVEL", "info"),
			Format: getEnv("PROMPTY_LOG_FORMAT", "text"),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks whether the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Engine.RangeIncrement <= 0 {
		return fmt.Errorf("range_increment must be positive, got %v", c.Engine.RangeIncrement)
	}
	if c.Artifact.Root == "" {
		return fmt.Errorf("artifact root is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
