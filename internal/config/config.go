// Package config loads settings from defaults, an optional config.yaml,
// a .env file and QRATTEND_* environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"qrattend/internal/utils"
)

const envPrefix = "QRATTEND"

// Storage backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the resolved application configuration.
type Config struct {
	DataDir string

	Storage struct {
		Backend     string
		RedisURL    string
		RedisPrefix string
		Encrypt     bool
		KeyFile     string
	}

	Section struct {
		Default string
		List    []string
	}

	Server struct {
		Addr string
	}

	Scan struct {
		Debounce time.Duration
		FPS      int
	}

	Image struct {
		MaxDimension int
	}

	Log struct {
		Level string
		File  string
	}

	Timezone string
	Location *time.Location
}

// New returns a viper instance with defaults and environment binding set
// up. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.dir", utils.DefaultDataDir())
	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.redis.url", "redis://localhost:6379/0")
	v.SetDefault("storage.redis.prefix", "qrattend:")
	v.SetDefault("storage.encrypt", false)
	v.SetDefault("storage.keyfile", "")
	v.SetDefault("section.default", "WMAD 1-1")
	v.SetDefault("section.list", []string{"WMAD 1-1", "WMAD 1-2"})
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("scan.debounce", 1500*time.Millisecond)
	v.SetDefault("scan.fps", 10)
	v.SetDefault("image.maxdimension", 4096)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("timezone", "Local")
}

// Load reads .env and config.yaml (from the working directory or the data
// dir) into v and returns the validated configuration. Missing files are
// not errors.
func Load(v *viper.Viper) (*Config, error) {
	// .env only fills variables that are not already set
	_ = godotenv.Load()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(v.GetString("data.dir"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	cfg.DataDir = v.GetString("data.dir")
	cfg.Storage.Backend = strings.ToLower(v.GetString("storage.backend"))
	cfg.Storage.RedisURL = v.GetString("storage.redis.url")
	cfg.Storage.RedisPrefix = v.GetString("storage.redis.prefix")
	cfg.Storage.Encrypt = v.GetBool("storage.encrypt")
	cfg.Storage.KeyFile = v.GetString("storage.keyfile")
	if cfg.Storage.KeyFile == "" {
		cfg.Storage.KeyFile = filepath.Join(cfg.DataDir, "master.key")
	}
	cfg.Section.Default = v.GetString("section.default")
	cfg.Section.List = v.GetStringSlice("section.list")
	cfg.Server.Addr = v.GetString("server.addr")
	cfg.Scan.Debounce = v.GetDuration("scan.debounce")
	cfg.Scan.FPS = v.GetInt("scan.fps")
	cfg.Image.MaxDimension = v.GetInt("image.maxdimension")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.File = v.GetString("log.file")
	cfg.Timezone = v.GetString("timezone")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be one of file, redis, memory; got %q", c.Storage.Backend)
	}
	if strings.TrimSpace(c.Section.Default) == "" {
		return errors.New("section.default must not be empty")
	}
	if c.Scan.FPS <= 0 {
		return fmt.Errorf("scan.fps must be positive; got %d", c.Scan.FPS)
	}
	if c.Scan.Debounce < 0 {
		return fmt.Errorf("scan.debounce must not be negative; got %s", c.Scan.Debounce)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	c.Location = loc
	return nil
}
