package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	override "github.com/goliatone/go-override"
	"github.com/goliatone/go-override/pkg/config"
	"github.com/goliatone/go-override/pkg/store/envstore"
	"github.com/goliatone/go-override/pkg/store/filestore"
	"go.uber.org/zap"
)

// CLI is the root command structure. Flags left empty fall back to the
// config file, then to config.Default.
type CLI struct {
	Config    string `name:"config" help:"TOML config file" default:"overridectl.toml" env:"OVERRIDECTL_CONFIG"`
	Backend   string `help:"store backend (memory, file, redis, env)" env:"OVERRIDECTL_BACKEND"`
	Path      string `help:"override file for the file backend" env:"OVERRIDECTL_PATH"`
	Prefix    string `help:"key prefix for the selected backend"`
	RedisAddr string `name:"redis-addr" help:"redis address" env:"OVERRIDECTL_REDIS_ADDR"`
	RedisDB   *int   `name:"redis-db" help:"redis database"`
	EnvLayer  *bool  `name:"env-layer" help:"layer OVERRIDE_* environment variables over the backend"`
	LogLevel  string `name:"log-level" help:"log level (debug, info, warn, error)" env:"OVERRIDECTL_LOG_LEVEL"`

	Get   GetCmd   `cmd:"" help:"Show the override for a feature"`
	Set   SetCmd   `cmd:"" help:"Set a feature override to ON or OFF"`
	Clear ClearCmd `cmd:"" help:"Remove a feature override"`
	List  ListCmd  `cmd:"" help:"List stored overrides; env-only keys are listed upper-cased"`
	Watch WatchCmd `cmd:"" help:"Print stored overrides whenever the override file changes"`
}

func (c *CLI) resolveConfig() (config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return config.Config{}, err
	}
	if c.Backend != "" {
		cfg.Backend = c.Backend
	}
	if c.Path != "" {
		cfg.File.Path = c.Path
	}
	if c.Prefix != "" {
		switch cfg.Backend {
		case config.BackendFile:
			cfg.File.Prefix = c.Prefix
		case config.BackendRedis:
			cfg.Redis.Prefix = c.Prefix
		case config.BackendEnv:
			cfg.Env.Prefix = c.Prefix
		}
	}
	if c.RedisAddr != "" {
		cfg.Redis.Addr = c.RedisAddr
	}
	if c.RedisDB != nil {
		cfg.Redis.DB = *c.RedisDB
	}
	if c.EnvLayer != nil {
		cfg.EnvLayer = *c.EnvLayer
	}
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	return cfg, cfg.Validate()
}

// App is bound into every command's Run.
type App struct {
	Context  context.Context
	Store    override.Store
	File     *filestore.Store
	Logger   *zap.Logger
	Out      io.Writer
	// EnvLayer is set when environment overrides are layered over the
	// backend, whose keys then come back normalised from the env layer.
	EnvLayer bool
}

type GetCmd struct {
	Key   string `arg:"" help:"feature key"`
	Trace bool   `help:"print per-layer provenance as JSON"`
}

func (c *GetCmd) Run(app *App) error {
	if c.Trace {
		layered, ok := app.Store.(*override.LayeredStore)
		if !ok {
			return errors.New("--trace requires a layered store, enable --env-layer")
		}
		payload, err := layered.Trace(app.Context, c.Key).ToJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(app.Out, string(payload))
		return err
	}
	state, err := app.Store.Load(app.Context, c.Key)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(app.Out, "%s\t%s\n", c.Key, state)
	return err
}

type SetCmd struct {
	Key   string `arg:"" help:"feature key"`
	State string `arg:"" help:"ON, OFF or Default"`
}

func (c *SetCmd) Run(app *App) error {
	state, err := parseStateArg(c.State)
	if err != nil {
		return err
	}
	if err := app.Store.Save(app.Context, c.Key, state); err != nil {
		return err
	}
	app.Logger.Info("override saved", zap.String("feature", c.Key), zap.Stringer("state", state))
	_, err = fmt.Fprintf(app.Out, "%s\t%s\n", c.Key, state)
	return err
}

type ClearCmd struct {
	Key string `arg:"" help:"feature key"`
}

func (c *ClearCmd) Run(app *App) error {
	if err := app.Store.Save(app.Context, c.Key, override.Default); err != nil {
		return err
	}
	app.Logger.Info("override cleared", zap.String("feature", c.Key))
	_, err := fmt.Fprintf(app.Out, "%s\t%s\n", c.Key, override.Default)
	return err
}

type ListCmd struct{}

func (c *ListCmd) Run(app *App) error {
	return printOverrides(app)
}

type WatchCmd struct{}

func (c *WatchCmd) Run(app *App) error {
	if app.File == nil {
		return errors.New("watch requires the file backend")
	}
	if err := printOverrides(app); err != nil {
		return err
	}
	return app.File.Watch(app.Context, func() {
		if err := printOverrides(app); err != nil {
			app.Logger.Warn("listing overrides failed", zap.Error(err))
		}
	})
}

func printOverrides(app *App) error {
	lister, ok := app.Store.(override.Lister)
	if !ok {
		return fmt.Errorf("store %T cannot list overrides", app.Store)
	}
	keys, err := lister.Keys(app.Context)
	if err != nil {
		return err
	}
	if app.EnvLayer {
		keys = mergeNormalisedKeys(keys)
	}
	for _, key := range keys {
		state, err := app.Store.Load(app.Context, key)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(app.Out, "%s\t%s\n", key, state); err != nil {
			return err
		}
	}
	return nil
}

// mergeNormalisedKeys collapses keys that name the same environment
// variable, keeping the backend's spelling over the env layer's upper-cased
// one. Keys only present in the environment stay normalised.
func mergeNormalisedKeys(keys []string) []string {
	chosen := make(map[string]string, len(keys))
	order := make([]string, 0, len(keys))
	for _, key := range keys {
		name := envstore.Normalize(key)
		current, ok := chosen[name]
		if !ok {
			chosen[name] = key
			order = append(order, name)
			continue
		}
		if current == name && key != name {
			chosen[name] = key
		}
	}
	out := make([]string, 0, len(order))
	for _, name := range order {
		out = append(out, chosen[name])
	}
	sort.Strings(out)
	return out
}

// parseStateArg is stricter than override.ParseOverrideState so typos are
// reported instead of clearing the override.
func parseStateArg(value string) (override.OverrideState, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "default", "clear", "none":
		return override.Default, nil
	}
	state := override.ParseOverrideState(value)
	if state == override.Default {
		return override.Default, fmt.Errorf("invalid state %q, want ON, OFF or Default", value)
	}
	return state, nil
}
