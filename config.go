package bridge

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment overrides, e.g. BRIDGE_BASE_URL.
const EnvPrefix = "BRIDGE_"

// Config is the file configuration of a bridge deployment.
type Config struct {
	BaseURL    string                  `yaml:"base_url" env:"BASE_URL"`
	Prefix     string                  `yaml:"prefix" env:"PREFIX"`
	Create     CreateConfig            `yaml:"create" envPrefix:"CREATE_"`
	Strategies []StrategyConfig        `yaml:"strategies"`
	Session    SessionConfig           `yaml:"session" envPrefix:"SESSION_"`
	State      StateConfig             `yaml:"state" envPrefix:"STATE_"`
	Vault      VaultConfig             `yaml:"vault" envPrefix:"VAULT_"`
	Cache      CacheConfig             `yaml:"cache" envPrefix:"CACHE_"`
	Database   DatabaseConfig          `yaml:"database" envPrefix:"DATABASE_"`
	Locales    map[string]LocaleConfig `yaml:"locales"`
	HTTP       HTTPServerConfig        `yaml:"http" envPrefix:"HTTP_"`
	Log        LogConfig               `yaml:"log" envPrefix:"LOG_"`
}

type CreateConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	DefaultRole string `yaml:"default_role" env:"DEFAULT_ROLE"`
}

type StrategyConfig struct {
	Module       string              `yaml:"module"`
	Name         string              `yaml:"name"`
	Label        string              `yaml:"label"`
	Match        string              `yaml:"match"`
	EmailDomain  string              `yaml:"email_domain"`
	CallbackURL  string              `yaml:"callback_url"`
	Options      map[string]any      `yaml:"options"`
	Authenticate AuthenticateOptions `yaml:"authenticate"`
}

type SessionConfig struct {
	CookieName    string        `yaml:"cookie_name" env:"COOKIE_NAME"`
	Codec         string        `yaml:"codec" env:"CODEC"`
	Secret        string        `yaml:"secret" env:"SECRET"`
	EncryptionKey string        `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
	Secure        bool          `yaml:"secure" env:"SECURE"`
	TTL           time.Duration `yaml:"ttl" env:"TTL"`
}

type StateConfig struct {
	EncryptionKey string        `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
	HMACKey       string        `yaml:"hmac_key" env:"HMAC_KEY"`
	TTL           time.Duration `yaml:"ttl" env:"TTL"`
}

type VaultConfig struct {
	EncryptionKey    string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
	SerializeRefresh bool   `yaml:"serialize_refresh" env:"SERIALIZE_REFRESH"`
}

type CacheConfig struct {
	Driver string      `yaml:"driver" env:"DRIVER"`
	Redis  RedisConfig `yaml:"redis" envPrefix:"REDIS_"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
	Debug  bool   `yaml:"debug" env:"DEBUG"`
}

type LocaleConfig struct {
	Prefix  string `yaml:"prefix"`
	BaseURL string `yaml:"base_url"`
}

type HTTPServerConfig struct {
	Addr  string `yaml:"addr" env:"ADDR"`
	Views string `yaml:"views" env:"VIEWS"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// LoadConfig reads a YAML file, applies BRIDGE_* environment overrides and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, configError("unable to read config %q: %v", path, err)
	}
	return ParseConfig(raw)
}

// ParseConfig is LoadConfig for in memory YAML.
func ParseConfig(raw []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, configError("invalid config: %v", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, configError("invalid environment override: %v", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Create.DefaultRole == "" {
		c.Create.DefaultRole = RoleGuest
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "bridge_session"
	}
	if c.Session.Codec == "" {
		c.Session.Codec = "jwt"
	}
	if c.State.TTL == 0 {
		c.State.TTL = 10 * time.Minute
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.Views == "" {
		c.HTTP.Views = "views"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Strategies, validation.Required),
	)
	if err != nil {
		return configError("invalid config: %v", err)
	}

	checks := []struct {
		name string
		err  error
	}{
		{"session", validation.ValidateStruct(&c.Session,
			validation.Field(&c.Session.Codec, validation.In("jwt", "securecookie")),
			validation.Field(&c.Session.Secret, validation.Required, validation.Length(32, 0)),
		)},
		{"state", validation.ValidateStruct(&c.State,
			validation.Field(&c.State.EncryptionKey, validation.Required, is.Hexadecimal),
			validation.Field(&c.State.HMACKey, validation.Required, is.Hexadecimal),
		)},
		{"vault", validation.ValidateStruct(&c.Vault,
			validation.Field(&c.Vault.EncryptionKey, is.Hexadecimal),
		)},
		{"cache", validation.ValidateStruct(&c.Cache,
			validation.Field(&c.Cache.Driver, validation.In("memory", "redis")),
		)},
		{"database", validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.Driver, validation.In("sqlite", "postgres")),
			validation.Field(&c.Database.DSN, validation.Required),
		)},
	}
	for _, check := range checks {
		if check.err != nil {
			return configError("invalid %s config: %v", check.name, check.err)
		}
	}

	if c.Cache.Driver == "redis" && c.Cache.Redis.Addr == "" {
		return configError("invalid cache config: redis.addr is required")
	}

	for i := range c.Strategies {
		if err := c.Strategies[i].Validate(); err != nil {
			return configError("invalid strategy %d: %v", i, err)
		}
	}

	return nil
}

// Validate checks one strategy entry.
func (s StrategyConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Module, validation.Required),
		validation.Field(&s.Match, validation.In(
			string(MatchID), string(MatchUsername), string(MatchEmail), string(MatchEmails),
		)),
	)
}

// StrategySpecs converts the strategy entries to specs.
func (c *Config) StrategySpecs() []StrategySpec {
	specs := make([]StrategySpec, 0, len(c.Strategies))
	for _, s := range c.Strategies {
		options := Options{}
		for k, v := range s.Options {
			options[k] = v
		}
		specs = append(specs, StrategySpec{
			Name:                s.Name,
			Label:               s.Label,
			Module:              s.Module,
			Options:             options,
			Match:               MatchPolicy(s.Match),
			EmailDomain:         s.EmailDomain,
			CallbackURL:         s.CallbackURL,
			AuthenticateOptions: s.Authenticate,
		})
	}
	return specs
}

// LocaleMap returns the configured locales.
func (c *Config) LocaleMap() Locales {
	out := Locales{}
	for name, loc := range c.Locales {
		out[name] = Locale{Prefix: loc.Prefix, BaseURL: loc.BaseURL}
	}
	return out
}

// DecodeKey decodes a hex encoded key.
func DecodeKey(name, value string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("%s must be hex encoded: %w", name, err)
	}
	return key, nil
}
