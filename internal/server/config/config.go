package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr        string
	DatabaseDSN     string
	MaxRequestBytes int64

	// Identity provider settings. JWKSURL and TokenIssuer default to the
	// Auth0-style endpoints of AuthDomain.
	AuthDomain          string
	JWKSURL             string
	TokenIssuer         string
	TokenAudience       string
	TokenAlgorithms     []string
	JWKSRefreshInterval time.Duration

	CORSOrigins []string
	LogLevel    string
	LogFormat   string
}

func Load() Config {
	cfg := Config{
		HTTPAddr:            getEnv("DRINKS_HTTP_ADDR", ":8080"),
		DatabaseDSN:         getEnv("DRINKS_DB_DSN", "file:drinks.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"),
		MaxRequestBytes:     getEnvInt("DRINKS_MAX_REQUEST_BYTES", 1<<20),
		AuthDomain:          strings.TrimSuffix(getEnv("DRINKS_AUTH_DOMAIN", ""), "/"),
		TokenAudience:       getEnv("DRINKS_TOKEN_AUDIENCE", "drinks"),
		TokenAlgorithms:     getEnvList("DRINKS_TOKEN_ALGORITHMS", []string{"RS256"}),
		JWKSRefreshInterval: getEnvDuration("DRINKS_JWKS_REFRESH_INTERVAL", time.Hour),
		CORSOrigins:         getEnvList("DRINKS_CORS_ORIGINS", []string{"*"}),
		LogLevel:            getEnv("DRINKS_LOG_LEVEL", "info"),
		LogFormat:           getEnv("DRINKS_LOG_FORMAT", "json"),
	}
	cfg.JWKSURL = getEnv("DRINKS_JWKS_URL", "")
	cfg.TokenIssuer = getEnv("DRINKS_TOKEN_ISSUER", "")
	if cfg.AuthDomain != "" {
		if cfg.JWKSURL == "" {
			cfg.JWKSURL = "https://" + cfg.AuthDomain + "/.well-known/jwks.json"
		}
		if cfg.TokenIssuer == "" {
			cfg.TokenIssuer = "https://" + cfg.AuthDomain + "/"
		}
	}
	if cfg.JWKSURL == "" {
		slog.Warn("no JWKS endpoint configured; protected endpoints will reject every token, set DRINKS_AUTH_DOMAIN or DRINKS_JWKS_URL")
	}
	return cfg
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int64) int64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("ignoring invalid integer", "key", key, "value", v)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("ignoring invalid duration", "key", key, "value", v)
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
