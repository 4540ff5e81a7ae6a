// Package config loads concierge settings from defaults, an optional YAML file, the
// environment and command line flags, in that order.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/concierge/pkg/handlers"
	"github.com/go-go-golems/concierge/pkg/logging"
	"github.com/go-go-golems/concierge/pkg/trace"
	"github.com/go-go-golems/concierge/pkg/usage"
)

const EnvPrefix = "CONCIERGE_"

type Settings struct {
	RequestLimit int           `yaml:"request_limit" env:"REQUEST_LIMIT"`
	TokenLimit   int           `yaml:"token_limit" env:"TOKEN_LIMIT"`
	AskTimeout   time.Duration `yaml:"ask_timeout" env:"ASK_TIMEOUT"`

	RoomNumber  string `yaml:"room_number" env:"ROOM_NUMBER"`
	GuestName   string `yaml:"guest_name" env:"GUEST_NAME"`
	CatalogPath string `yaml:"catalog_path" env:"CATALOG_PATH"`

	// TurnsDB is the sqlite file turns are persisted to; empty disables persistence.
	TurnsDB     string        `yaml:"turns_db" env:"TURNS_DB"`
	Addr        string        `yaml:"addr" env:"ADDR"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`

	Redis trace.RedisSettings `yaml:"redis" envPrefix:"REDIS_"`
	Log   logging.Settings    `yaml:"log" envPrefix:"LOG_"`
}

func Default() Settings {
	b := usage.DefaultBudget()
	g := handlers.DefaultGuest()
	return Settings{
		RequestLimit: b.RequestLimit,
		TokenLimit:   b.TokenLimit,
		AskTimeout:   30 * time.Second,
		RoomNumber:   g.RoomNumber,
		GuestName:    g.Name,
		Addr:         ":8080",
		IdleTimeout:  30 * time.Minute,
		Redis:        trace.DefaultRedisSettings(),
		Log:          logging.DefaultSettings(),
	}
}

// Load applies the YAML file at path (skipped when path is empty) and then the
// environment over the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return Settings{}, errors.Wrap(err, "parse environment")
	}
	return s, s.Validate()
}

func (s Settings) Validate() error {
	if s.RequestLimit <= 0 {
		return errors.Errorf("request limit must be positive, got %d", s.RequestLimit)
	}
	if s.TokenLimit <= 0 {
		return errors.Errorf("token limit must be positive, got %d", s.TokenLimit)
	}
	if s.AskTimeout <= 0 {
		return errors.Errorf("ask timeout must be positive, got %s", s.AskTimeout)
	}
	return nil
}

func (s Settings) Budget() usage.Budget {
	return usage.Budget{RequestLimit: s.RequestLimit, TokenLimit: s.TokenLimit}
}

func (s Settings) Guest() handlers.Guest {
	g := handlers.DefaultGuest()
	if s.RoomNumber != "" {
		g.RoomNumber = s.RoomNumber
	}
	if s.GuestName != "" {
		g.Name = s.GuestName
	}
	return g
}

// AddFlags registers the persistent flags that override loaded settings.
func AddFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "YAML config file (env "+EnvPrefix+"CONFIG)")
	fs.Int("request-limit", d.RequestLimit, "maximum backend requests per message")
	fs.Int("token-limit", d.TokenLimit, "maximum tokens per message")
	fs.Duration("ask-timeout", d.AskTimeout, "how long to wait for an answer to a clarifying question")
	fs.String("room", d.RoomNumber, "guest room number")
	fs.String("guest", d.GuestName, "guest name")
	fs.String("catalog", "", "YAML catalog replacing the embedded one")
	fs.String("turns-db", "", "sqlite file to persist turns to")
	fs.Bool("redis-trace", false, "publish trace events to redis streams")
	fs.String("redis-addr", d.Redis.Addr, "redis address for the trace bus")
	fs.String("log-level", d.Log.Level, "log level (trace, debug, info, warn, error)")
	fs.String("log-format", d.Log.Format, "log format (console, json)")
	fs.String("log-file", "", "also write logs to this file, rotated")
	fs.Bool("with-caller", false, "add caller information to log lines")
}

// ConfigPath returns the --config flag, falling back to the environment.
func ConfigPath(fs *pflag.FlagSet) string {
	if fs != nil {
		if p, err := fs.GetString("config"); err == nil && p != "" {
			return p
		}
	}
	return os.Getenv(EnvPrefix + "CONFIG")
}

// ApplyFlags copies the flags the user set explicitly onto s.
func ApplyFlags(fs *pflag.FlagSet, s *Settings) error {
	if fs == nil {
		return nil
	}
	var err error
	set := func(name string, fn func() error) {
		if err != nil || fs.Lookup(name) == nil || !fs.Changed(name) {
			return
		}
		err = errors.Wrapf(fn(), "flag --%s", name)
	}
	set("request-limit", func() (e error) { s.RequestLimit, e = fs.GetInt("request-limit"); return })
	set("token-limit", func() (e error) { s.TokenLimit, e = fs.GetInt("token-limit"); return })
	set("ask-timeout", func() (e error) { s.AskTimeout, e = fs.GetDuration("ask-timeout"); return })
	set("room", func() (e error) { s.RoomNumber, e = fs.GetString("room"); return })
	set("guest", func() (e error) { s.GuestName, e = fs.GetString("guest"); return })
	set("catalog", func() (e error) { s.CatalogPath, e = fs.GetString("catalog"); return })
	set("turns-db", func() (e error) { s.TurnsDB, e = fs.GetString("turns-db"); return })
	set("redis-trace", func() (e error) { s.Redis.Enabled, e = fs.GetBool("redis-trace"); return })
	set("redis-addr", func() (e error) { s.Redis.Addr, e = fs.GetString("redis-addr"); return })
	set("log-level", func() (e error) { s.Log.Level, e = fs.GetString("log-level"); return })
	set("log-format", func() (e error) { s.Log.Format, e = fs.GetString("log-format"); return })
	set("log-file", func() (e error) { s.Log.File, e = fs.GetString("log-file"); return })
	set("with-caller", func() (e error) { s.Log.WithCaller, e = fs.GetBool("with-caller"); return })
	if err != nil {
		return err
	}
	return s.Validate()
}
