// Package config loads leaddesk settings from a YAML file and LEADDESK_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmcleod/leaddesk/chat"
	"github.com/jmcleod/leaddesk/mail"
	"github.com/jmcleod/leaddesk/ratelimit"
	"github.com/jmcleod/leaddesk/session"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverBBolt    = "bbolt"
	DriverPostgres = "postgres"
)

// Config is the leaddesk.yaml file. Default supplies every unset field.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Storage    StorageConfig   `yaml:"storage"`
	Redis      RedisConfig     `yaml:"redis"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
	Admin      AdminConfig     `yaml:"admin"`
	Session    SessionConfig   `yaml:"session"`
	Mail       mail.Config     `yaml:"mail"`
	Chat       chat.Config     `yaml:"chat"`
	Log        LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	TLSCert         string        `yaml:"tls_cert"`
	TLSKey          string        `yaml:"tls_key"`
	SelfSignedTLS   bool          `yaml:"self_signed_tls"`
	TrustedProxies  []string      `yaml:"trusted_proxies"`
	CookieSecure    bool          `yaml:"cookie_secure"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the lead repository. Path is used by bbolt and DSN
// by postgres.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the shared rate limiter when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RateLimitConfig holds the per-endpoint budgets.
type RateLimitConfig struct {
	Contact            ratelimit.Config `yaml:"contact"`
	Chat               ratelimit.Config `yaml:"chat"`
	Login              ratelimit.Config `yaml:"login"`
	ChatSessionsPerDay int              `yaml:"chat_sessions_per_day"`
}

// AdminConfig is the dashboard's single login. PasswordHash is produced by
// `leaddesk hash-password`.
type AdminConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// SessionConfig names where the signing secret lives. The secret itself is
// never part of the config file.
type SessionConfig struct {
	SecretEnv string        `yaml:"secret_env"`
	Lifetime  time.Duration `yaml:"lifetime"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver: DriverBBolt,
			Path:   "./data/leads.db",
		},
		Redis: RedisConfig{Prefix: "leaddesk:rl:"},
		RateLimits: RateLimitConfig{
			Contact:            ratelimit.Config{MaxPerMinute: 5, MaxPerHour: 20},
			Chat:               ratelimit.Config{MaxPerMinute: 10, MaxPerHour: 60},
			Login:              ratelimit.Config{MaxPerMinute: 5, MaxPerHour: 20},
			ChatSessionsPerDay: 20,
		},
		Session: SessionConfig{
			SecretEnv: session.DefaultSecretEnv,
			Lifetime:  session.DefaultLifetime,
		},
		Mail: mail.Config{Port: 587},
		Chat: chat.Config{
			Model:              "gpt-4o-mini",
			BaseURL:            "https://api.openai.com/v1",
			MaxTokens:          512,
			Temperature:        0.4,
			Timeout:            30 * time.Second,
			UpstreamRPS:        5,
			UpstreamBurst:      10,
			MaxHistoryMessages: 20,
			MaxHistoryChars:    8000,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("opening config: %w", err)
		}
		defer f.Close()
		if err := decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// envOverrides maps LEADDESK_* variables onto config fields.
func (c *Config) envOverrides() map[string]any {
	return map[string]any{
		"LEADDESK_LISTEN":              &c.Server.Listen,
		"LEADDESK_TLS_CERT":            &c.Server.TLSCert,
		"LEADDESK_TLS_KEY":             &c.Server.TLSKey,
		"LEADDESK_TRUSTED_PROXIES":     &c.Server.TrustedProxies,
		"LEADDESK_COOKIE_SECURE":       &c.Server.CookieSecure,
		"LEADDESK_STORAGE_DRIVER":      &c.Storage.Driver,
		"LEADDESK_STORAGE_PATH":        &c.Storage.Path,
		"LEADDESK_DATABASE_URL":        &c.Storage.DSN,
		"LEADDESK_REDIS_ADDR":          &c.Redis.Addr,
		"LEADDESK_REDIS_PASSWORD":      &c.Redis.Password,
		"LEADDESK_ADMIN_USERNAME":      &c.Admin.Username,
		"LEADDESK_ADMIN_PASSWORD_HASH": &c.Admin.PasswordHash,
		"LEADDESK_SMTP_HOST":           &c.Mail.Host,
		"LEADDESK_SMTP_PORT":           &c.Mail.Port,
		"LEADDESK_SMTP_USER":           &c.Mail.User,
		"LEADDESK_SMTP_PASSWORD":       &c.Mail.Password,
		"LEADDESK_NOTIFY_RECIPIENTS":   &c.Mail.Recipients,
		"LEADDESK_CHAT_ENABLED":        &c.Chat.Enabled,
		"LEADDESK_CHAT_BASE_URL":       &c.Chat.BaseURL,
		"LEADDESK_CHAT_API_KEY":        &c.Chat.APIKey,
		"LEADDESK_CHAT_MODEL":          &c.Chat.Model,
		"LEADDESK_CHAT_PROMPT_FILE":    &c.Chat.PromptFile,
		"LEADDESK_LOG_LEVEL":           &c.Log.Level,
		"LEADDESK_LOG_FORMAT":          &c.Log.Format,
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for key, target := range c.envOverrides() {
		raw, ok := lookup(key)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		switch v := target.(type) {
		case *string:
			*v = raw
		case *int:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("bad %s: %w", key, err)
			}
			*v = n
		case *bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("bad %s: %w", key, err)
			}
			*v = b
		case *[]string:
			*v = splitList(raw)
		}
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		errs = append(errs, errors.New("server.tls_cert and server.tls_key must be set together"))
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverBBolt:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for bbolt"))
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	for name, rl := range map[string]ratelimit.Config{
		"contact": c.RateLimits.Contact,
		"chat":    c.RateLimits.Chat,
		"login":   c.RateLimits.Login,
	} {
		if err := rl.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("rate_limits.%s: %w", name, err))
		}
	}
	if c.RateLimits.ChatSessionsPerDay <= 0 {
		errs = append(errs, errors.New("rate_limits.chat_sessions_per_day must be positive"))
	}

	if c.Admin.Username == "" {
		errs = append(errs, errors.New("admin.username is required"))
	}
	if c.Admin.PasswordHash == "" {
		errs = append(errs, errors.New("admin.password_hash is required (see `leaddesk hash-password`)"))
	}
	if c.Session.SecretEnv == "" {
		errs = append(errs, errors.New("session.secret_env is required"))
	}
	if c.Session.Lifetime <= 0 {
		errs = append(errs, errors.New("session.lifetime must be positive"))
	}

	if c.Mail.Enabled() && len(c.Mail.Recipients) == 0 {
		errs = append(errs, errors.New("mail.recipients is required when mail.host is set"))
	}
	if err := c.Chat.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// TrustedProxyPrefixes parses Server.TrustedProxies. Bare addresses are
// treated as single-host prefixes.
func (c Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.Server.TrustedProxies))
	for _, raw := range c.Server.TrustedProxies {
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}
