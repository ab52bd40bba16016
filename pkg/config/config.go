// Package config selects and opens an override store from a TOML file.
//
//	backend = "file"
//	env_layer = true
//	log_level = "info"
//
//	[file]
//	path = "overrides.yaml"
//	prefix = "Override_"
//
//	[redis]
//	addr = "127.0.0.1:6379"
//	db = 0
//	prefix = "override:"
//
//	[env]
//	prefix = "OVERRIDE_"
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	override "github.com/goliatone/go-override"
	"github.com/goliatone/go-override/pkg/store/envstore"
	"github.com/goliatone/go-override/pkg/store/filestore"
	"github.com/goliatone/go-override/pkg/store/redisstore"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendEnv    = "env"
)

// ErrUnknownBackend indicates a backend name Open does not know.
var ErrUnknownBackend = errors.New("config: unknown backend")

// Config selects the override store.
type Config struct {
	Backend  string      `toml:"backend"`
	EnvLayer bool        `toml:"env_layer"`
	LogLevel string      `toml:"log_level"`
	File     FileConfig  `toml:"file"`
	Redis    RedisConfig `toml:"redis"`
	Env      EnvConfig   `toml:"env"`
}

type FileConfig struct {
	Path   string `toml:"path"`
	Prefix string `toml:"prefix"`
	Format string `toml:"format"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

type EnvConfig struct {
	Prefix string `toml:"prefix"`
}

// Default returns an in-memory configuration.
func Default() Config {
	return Config{
		Backend:  BackendMemory,
		LogLevel: "info",
		File: FileConfig{
			Path:   "overrides.yaml",
			Prefix: filestore.DefaultPrefix,
		},
		Redis: RedisConfig{
			Addr:   "127.0.0.1:6379",
			Prefix: redisstore.DefaultPrefix,
		},
		Env: EnvConfig{
			Prefix: envstore.DefaultPrefix,
		},
	}
}

// Load reads path over Default. A missing file yields Default; unknown
// keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return Config{}, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return cfg, cfg.Validate()
}

// Validate checks the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendEnv:
	case BackendFile:
		if strings.TrimSpace(c.File.Path) == "" {
			return errors.New("config: file backend requires file.path")
		}
	case BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("config: redis backend requires redis.addr")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); c.LogLevel != "" && err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	return nil
}

// Opened is an open store plus whatever must be released with it.
type Opened struct {
	Store override.Store
	// File is set for the file backend so callers can Watch it.
	File    *filestore.Store
	closers []func() error
}

// Close releases backend connections.
func (o *Opened) Close() error {
	var errs []error
	for _, closeFn := range o.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

// Open builds the configured store. With EnvLayer set, environment
// overrides are layered read-only over the backend.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Opened, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opened := &Opened{}
	var backend override.Store
	switch cfg.Backend {
	case BackendMemory:
		backend = override.NewMemoryStore(nil)
	case BackendEnv:
		backend = envstore.New(envstore.WithPrefix(cfg.Env.Prefix))
	case BackendFile:
		opts := []filestore.Option{
			filestore.WithPrefix(cfg.File.Prefix),
			filestore.WithLogger(logger.Named("filestore")),
		}
		if cfg.File.Format != "" {
			opts = append(opts, filestore.WithFormat(filestore.Format(strings.ToLower(cfg.File.Format))))
		}
		store, err := filestore.New(cfg.File.Path, opts...)
		if err != nil {
			return nil, err
		}
		opened.File = store
		backend = store
	case BackendRedis:
		store, err := redisstore.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redisstore.WithPrefix(cfg.Redis.Prefix))
		if err != nil {
			return nil, err
		}
		opened.closers = append(opened.closers, store.Close)
		backend = store
	}
	logger.Debug("override store opened", zap.String("backend", cfg.Backend), zap.Bool("env_layer", cfg.EnvLayer))

	if !cfg.EnvLayer || cfg.Backend == BackendEnv {
		opened.Store = backend
		return opened, nil
	}
	layered, err := override.NewLayeredStore(
		override.NewStoreLayer(BackendEnv, 100, envstore.New(envstore.WithPrefix(cfg.Env.Prefix)),
			override.WithLayerLabel("Environment")),
		override.NewStoreLayer(cfg.Backend, 10, backend),
	)
	if err != nil {
		opened.Close()
		return nil, err
	}
	opened.Store = layered
	return opened, nil
}

// NewLogger builds a production zap logger at level, writing to stderr.
func NewLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("config: log level: %w", err)
		}
		zapCfg.Level = lvl
	}
	zapCfg.Encoding = "console"
	zapCfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	return zapCfg.Build()
}
