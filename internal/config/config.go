// Package config loads edge-server configuration, generalizing the
// teacher's flat-struct env-var pattern (pkg/config/config.go) with a
// dotenv loader and an optional YAML override file for per-tenant
// deployment profiles.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything an edge-server or authd process needs to start.
type Config struct {
	TenantID   string `yaml:"tenant_id"`
	DeviceID   string `yaml:"device_id"`
	StorageDir string `yaml:"storage_dir"`

	TLSListenAddr string `yaml:"tls_listen_addr"`
	RESTListenAddr string `yaml:"rest_listen_addr"`

	CloudBaseURL    string `yaml:"cloud_base_url"`
	RootCAPath      string `yaml:"root_ca_path"`
	TenantCAPath    string `yaml:"tenant_ca_path"`
	LeafCertPath    string `yaml:"leaf_cert_path"`
	LeafKeyPath     string `yaml:"leaf_key_path"`
	TenantPublicKey string `yaml:"tenant_public_key"` // hex-encoded ed25519 public key, verifies SignedBinding/SignedSubscription envelopes

	RedisURL  string `yaml:"redis_url"`
	S3Bucket  string `yaml:"s3_bucket"`
	S3Region  string `yaml:"s3_region"`

	LogLevel string `yaml:"log_level"`

	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	OTLPEnabled  bool    `yaml:"otlp_enabled"`
	SampleRate   float64 `yaml:"sample_rate"`

	LoginRateLimitPerMin int           `yaml:"login_rate_limit_per_min"`
	ActivationTokenTTL   time.Duration `yaml:"activation_token_ttl"`

	SessionJWTSecret   string `yaml:"session_jwt_secret"`
	HandshakeJWTSecret string `yaml:"handshake_jwt_secret"`
	TenantPasswordHash string `yaml:"tenant_password_hash"`

	EdgeServerID string `yaml:"edge_server_id"`
}

// Load reads a .env file (if present, via godotenv — missing is not an
// error), applies a YAML config file override (if EDGE_CONFIG_FILE points
// at one), then layers environment variables on top, matching the
// teacher's "env wins" precedence in pkg/config/config.go.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("EDGE_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		StorageDir:           "./data",
		TLSListenAddr:        ":8443",
		RESTListenAddr:       ":8080",
		LogLevel:             "INFO",
		OTLPEndpoint:         "localhost:4317",
		OTLPEnabled:          false,
		SampleRate:           1.0,
		LoginRateLimitPerMin: 5,
		ActivationTokenTTL:   10 * time.Minute,
	}
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("TENANT_ID", &cfg.TenantID)
	str("DEVICE_ID", &cfg.DeviceID)
	str("STORAGE_DIR", &cfg.StorageDir)
	str("TLS_LISTEN_ADDR", &cfg.TLSListenAddr)
	str("REST_LISTEN_ADDR", &cfg.RESTListenAddr)
	str("CLOUD_BASE_URL", &cfg.CloudBaseURL)
	str("ROOT_CA_PATH", &cfg.RootCAPath)
	str("TENANT_CA_PATH", &cfg.TenantCAPath)
	str("LEAF_CERT_PATH", &cfg.LeafCertPath)
	str("LEAF_KEY_PATH", &cfg.LeafKeyPath)
	str("TENANT_PUBLIC_KEY", &cfg.TenantPublicKey)
	str("SESSION_JWT_SECRET", &cfg.SessionJWTSecret)
	str("HANDSHAKE_JWT_SECRET", &cfg.HandshakeJWTSecret)
	str("TENANT_PASSWORD_HASH", &cfg.TenantPasswordHash)
	str("EDGE_SERVER_ID", &cfg.EdgeServerID)
	str("REDIS_URL", &cfg.RedisURL)
	str("S3_BUCKET", &cfg.S3Bucket)
	str("S3_REGION", &cfg.S3Region)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("OTLP_ENDPOINT", &cfg.OTLPEndpoint)

	if v := os.Getenv("OTLP_ENABLED"); v != "" {
		cfg.OTLPEnabled = v == "true"
	}
	if v := os.Getenv("SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SampleRate = f
		}
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMin = n
		}
	}
	if v := os.Getenv("ACTIVATION_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ActivationTokenTTL = d
		}
	}
}
