package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config groups the application configuration (read via Viper from env and
// optionally from a file).
type Config struct {
	App     AppConfig
	Log     LogConfig
	DB      DBConfig
	Signing SigningConfig
}

// AppConfig general application settings.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// LogConfig structured-logging settings.
type LogConfig struct {
	Level string // trace, debug, info, warn, error
}

// SigningConfig settings for the canonicalization and signing core.
// The private key is only ever referenced by path; raw key bytes never enter
// configuration, request data or logs.
type SigningConfig struct {
	CertPath       string // .pem certificate or .p12/.pfx bundle
	KeyPath        string // .pem private key (empty when CertPath is a bundle or combined PEM)
	KeyPassphrase  string // passphrase of the .p12 bundle
	QuantityScale  int    // fractional digits for quantities (default 3)
	RetentionYears int    // archival retention for signed artifacts
}

// DBConfig PostgreSQL settings. When DatabaseURL is set it is used verbatim;
// when empty and Host is set, the DSN is assembled from the parts; when both
// are empty the service runs on the in-memory store.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// Enabled reports whether a database is configured at all.
func (c DBConfig) Enabled() bool {
	return c.DatabaseURL != "" || c.Host != ""
}

// ConnectionString returns the DSN: DatabaseURL when set, otherwise DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN builds the PostgreSQL connection string, URL-encoding credentials.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// Load reads configuration from environment variables and optionally from a
// .env / config.env file. Env vars take precedence.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // optional file

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "signer-api"),
		},
		Log: LogConfig{
			Level: getString(v, "LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", ""),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "signer"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		Signing: SigningConfig{
			CertPath:       getString(v, "SIGNING_CERT_PATH", ""),
			KeyPath:        getString(v, "SIGNING_KEY_PATH", ""),
			KeyPassphrase:  getString(v, "SIGNING_KEY_PASSWORD", ""),
			QuantityScale:  getInt(v, "SIGNING_QUANTITY_SCALE", 3),
			RetentionYears: getInt(v, "ARCHIVAL_RETENTION_YEARS", 7),
		},
	}

	if cfg.Signing.CertPath == "" {
		return nil, fmt.Errorf("SIGNING_CERT_PATH is required")
	}
	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}
