package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix     = "EDITCOUNT_"
	EnvConfigFile = EnvPrefix + "CONFIG"
)

// ConfigFileSearchPaths are tried in order when no config file is given
var ConfigFileSearchPaths = []string{"config.yaml", "config.yml"}

// ArrayConfigFields may be given as comma separated strings in the environment
var ArrayConfigFields = []string{"photos.raw_extensions"}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Photos    PhotosConfig    `koanf:"photos"`
	Watch     WatchConfig     `koanf:"watch"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Dashboard DashboardConfig `koanf:"dashboard"`
}

type ServerConfig struct {
	Port        int    `koanf:"port" validate:"min=1,max=65535"`
	Environment string `koanf:"environment" validate:"oneof=development production test"`
	// JWTSecret protects the scan control routes when set
	JWTSecret     string `koanf:"jwt_secret"`
	ScanRateLimit int    `koanf:"scan_rate_limit" validate:"min=1"`
}

type PhotosConfig struct {
	SourceDir     string   `koanf:"source_dir" validate:"required"`
	DestDir       string   `koanf:"dest_dir" validate:"required"`
	RawExtensions []string `koanf:"raw_extensions" validate:"min=1,dive,required"`
}

type WatchConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Frequency time.Duration `koanf:"frequency" validate:"min=100ms"`
}

type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

type DashboardConfig struct {
	Title string `koanf:"title"`
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":            8080,
		"server.environment":     "development",
		"server.jwt_secret":      "",
		"server.scan_rate_limit": 6,

		"photos.raw_extensions": []string{"NEF", "CR2", "DNG"},

		"watch.enabled":   true,
		"watch.frequency": "2s",

		"database.path": "./data/editcount.db",

		"log.level": "info",

		"dashboard.title": "Edit progress",
	}
}

// Load reads defaults, then the YAML file, then EDITCOUNT_ environment
// variables. An empty path falls back to EDITCOUNT_CONFIG and then to the
// search paths; a missing default file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	filePath, err := resolveConfigFile(path)
	if err != nil {
		return nil, err
	}
	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", filePath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	if err := parseArrayFields(k); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Photos.SourceDir = ExpandPath(cfg.Photos.SourceDir)
	cfg.Photos.DestDir = ExpandPath(cfg.Photos.DestDir)
	cfg.Database.Path = ExpandPath(cfg.Database.Path)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// envKey maps EDITCOUNT_PHOTOS__SOURCE_DIR to photos.source_dir
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Join(strings.Split(s, "__"), ".")
}

func parseArrayFields(k *koanf.Koanf) error {
	for _, field := range ArrayConfigFields {
		value, ok := k.Get(field).(string)
		if !ok {
			continue
		}

		items := strings.Split(strings.Trim(value, "[]"), ",")
		for i, item := range items {
			items[i] = strings.TrimSpace(item)
		}
		if err := k.Set(field, items); err != nil {
			return fmt.Errorf("failed to parse %s: %w", field, err)
		}
	}
	return nil
}

func resolveConfigFile(path string) (string, error) {
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		path = ExpandPath(path)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return path, nil
	}

	for _, candidate := range ConfigFileSearchPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("config file: %w", err)
		}
	}
	return "", nil
}

// ExpandPath replaces a leading ~ with the user's home directory
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
