package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the site's runtime settings, read from the environment.
type Config struct {
	Port    int
	Bind    string
	GinMode string

	// TrustedProxies may set X-Forwarded-For. Empty trusts none.
	TrustedProxies []string

	DataDir      string
	DatabasePath string
	UploadDir    string

	// UploadURLPrefix is where uploaded files are served from.
	UploadURLPrefix string
	MaxUploadBytes  int64

	SessionTTL  time.Duration
	AllowSignup bool

	// AdminEmail and AdminPassword seed the first account on startup.
	AdminEmail    string
	AdminPassword string

	// HashSalt salts visitor IP hashes. A random salt means hashes do not
	// survive a restart.
	HashSalt string

	VisitorRetention time.Duration
	ContentFile      string

	SMTP SMTP
}

// SMTP configures contact-form notifications. Notifications are off unless
// User and Pass are set.
type SMTP struct {
	Host string
	Port string
	User string
	Pass string
	To   string
}

func (s SMTP) Enabled() bool { return s.User != "" && s.Pass != "" }

// MaxUploadBytesLimit caps a single upload at 1 GiB.
const MaxUploadBytesLimit = 1 << 30

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:             8080,
		DataDir:          "data",
		UploadURLPrefix:  "/uploads",
		MaxUploadBytes:   10 << 20,
		SessionTTL:       24 * time.Hour,
		VisitorRetention: 365 * 24 * time.Hour,
		SMTP: SMTP{
			Host: "smtp.gmail.com",
			Port: "587",
		},
	}
}

// Load reads extra env files (missing ones are skipped), then builds the
// configuration from the process environment. Variables already set in the
// environment win over file values.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, so tests can avoid the
// process environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()
	var err error

	if v := getenv("PORT"); v != "" {
		if cfg.Port, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("PORT: %w", err)
		}
	}
	cfg.Bind = getenv("BIND")
	cfg.GinMode = getenv("GIN_MODE")
	for _, p := range strings.Split(getenv("TRUSTED_PROXIES"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.TrustedProxies = append(cfg.TrustedProxies, p)
		}
	}

	if v := getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	cfg.DatabasePath = getenv("DATABASE_PATH")
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "site.db")
	}
	cfg.UploadDir = getenv("UPLOAD_DIR")
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(cfg.DataDir, "uploads")
	}
	if v := getenv("UPLOAD_URL_PREFIX"); v != "" {
		cfg.UploadURLPrefix = "/" + strings.Trim(v, "/")
	}
	if v := getenv("MAX_UPLOAD_MB"); v != "" {
		mb, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("MAX_UPLOAD_MB: %w", err)
		}
		if mb <= 0 || mb > MaxUploadBytesLimit>>20 {
			return nil, fmt.Errorf("MAX_UPLOAD_MB %d out of range (1..%d)", mb, MaxUploadBytesLimit>>20)
		}
		cfg.MaxUploadBytes = mb << 20
	}

	if v := getenv("SESSION_TTL"); v != "" {
		if cfg.SessionTTL, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("SESSION_TTL: %w", err)
		}
	}
	if v := getenv("ALLOW_SIGNUP"); v != "" {
		if cfg.AllowSignup, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("ALLOW_SIGNUP: %w", err)
		}
	}
	cfg.AdminEmail = getenv("ADMIN_EMAIL")
	cfg.AdminPassword = getenv("ADMIN_PASSWORD")

	cfg.HashSalt = getenv("HASH_SALT")
	if cfg.HashSalt == "" {
		if cfg.HashSalt, err = randomSalt(); err != nil {
			return nil, err
		}
	}
	if v := getenv("VISITOR_RETENTION"); v != "" {
		if cfg.VisitorRetention, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("VISITOR_RETENTION: %w", err)
		}
	}
	cfg.ContentFile = getenv("CONTENT_FILE")

	if v := getenv("SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := getenv("SMTP_PORT"); v != "" {
		cfg.SMTP.Port = v
	}
	cfg.SMTP.User = getenv("SMTP_USER")
	cfg.SMTP.Pass = getenv("SMTP_PASS")
	cfg.SMTP.To = getenv("TO_EMAIL")
	if cfg.SMTP.To == "" {
		cfg.SMTP.To = cfg.SMTP.User
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that the parsers cannot.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxUploadBytes <= 0 || c.MaxUploadBytes > MaxUploadBytesLimit {
		return fmt.Errorf("max upload size %d out of range (1..%d)", c.MaxUploadBytes, MaxUploadBytesLimit)
	}
	if c.SessionTTL < time.Minute {
		return fmt.Errorf("session ttl %s is shorter than a minute", c.SessionTTL)
	}
	if c.VisitorRetention <= 0 {
		return fmt.Errorf("visitor retention must be positive")
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

func randomSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate hash salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}
