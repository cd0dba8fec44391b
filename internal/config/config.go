// Package config loads portal configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr       string `yaml:"addr"`
	CORSOrigin string `yaml:"cors_origin"`

	// Hosted REST data layer (PostgREST dialect).
	DataAPIURL string `yaml:"data_api_url"`
	DataAPIKey string `yaml:"data_api_key"`

	RedisURL string `yaml:"redis_url"`

	SessionTTL time.Duration `yaml:"session_ttl"`

	// Login lockout tuning.
	LockoutWindow    time.Duration `yaml:"lockout_window"`
	LockoutThreshold int           `yaml:"lockout_threshold"`
	LoginMinDelay    time.Duration `yaml:"login_min_delay"`

	PortalBaseURL string `yaml:"portal_base_url"`

	SMTP SMTPConfig `yaml:"smtp"`

	Storage StorageConfig `yaml:"storage"`

	MeiliURL       string `yaml:"meili_url"`
	MeiliMasterKey string `yaml:"meili_master_key"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Load reads the YAML file at path (default config.yaml) if present, then
// applies environment overrides. Missing values fall back to dev defaults.
func Load(path string) Config {
	cfg := defaults()

	if path == "" {
		path = "config.yaml"
	}
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		_ = yaml.NewDecoder(f).Decode(&cfg)
	}

	overrideFromEnv(&cfg)
	return cfg
}

func defaults() Config {
	return Config{
		Addr:             ":8788",
		CORSOrigin:       "*",
		DataAPIURL:       "http://localhost:3000",
		RedisURL:         "redis://localhost:6379/0",
		SessionTTL:       24 * time.Hour,
		LockoutWindow:    15 * time.Minute,
		LockoutThreshold: 5,
		LoginMinDelay:    250 * time.Millisecond,
		PortalBaseURL:    "http://localhost:5173",
		SMTP: SMTPConfig{
			Port:     "587",
			FromName: "Reviewport",
		},
		Storage: StorageConfig{
			Bucket: "deliverables",
		},
	}
}

func overrideFromEnv(cfg *Config) {
	setString(&cfg.Addr, "PORTAL_ADDR")
	setString(&cfg.CORSOrigin, "PORTAL_CORS_ORIGIN")
	setString(&cfg.DataAPIURL, "PORTAL_DATA_API_URL")
	setString(&cfg.DataAPIKey, "PORTAL_DATA_API_KEY")
	setString(&cfg.RedisURL, "REDIS_URL")
	setSeconds(&cfg.SessionTTL, "PORTAL_SESSION_TTL_SECONDS")
	setSeconds(&cfg.LockoutWindow, "PORTAL_LOCKOUT_WINDOW_SECONDS")
	setInt(&cfg.LockoutThreshold, "PORTAL_LOCKOUT_THRESHOLD")
	setString(&cfg.PortalBaseURL, "PORTAL_BASE_URL")
	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setString(&cfg.SMTP.Port, "SMTP_PORT")
	setString(&cfg.SMTP.Username, "SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")
	setString(&cfg.SMTP.From, "SMTP_FROM")
	setString(&cfg.SMTP.FromName, "SMTP_FROM_NAME")
	setString(&cfg.Storage.Endpoint, "STORAGE_ENDPOINT")
	setString(&cfg.Storage.AccessKey, "STORAGE_ACCESS_KEY")
	setString(&cfg.Storage.SecretKey, "STORAGE_SECRET_KEY")
	setString(&cfg.Storage.Bucket, "STORAGE_BUCKET")
	setString(&cfg.MeiliURL, "MEILI_URL")
	setString(&cfg.MeiliMasterKey, "MEILI_MASTER_KEY")
	if raw := os.Getenv("STORAGE_USE_SSL"); raw != "" {
		cfg.Storage.UseSSL = raw == "true" || raw == "1"
	}
}

func setString(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func setInt(target *int, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func setSeconds(target *time.Duration, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = time.Duration(parsed) * time.Second
		}
	}
}
