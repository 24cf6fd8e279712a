package config

import (
	"fmt"
	"os"
	"strings"
)

type Config struct {
	HTTPListenAddr string
	// QueryEndpoint is the SQL-over-HTTP service; QueryToken is its bearer
	// credential. All durable metadata lives behind it.
	QueryEndpoint string
	QueryToken    string
	S3Endpoint    string
	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	// TrustedIPHeader is injected by the fronting proxy and cannot be
	// client-spoofed; it wins over X-Forwarded-For.
	TrustedIPHeader string
	LogLevel        string
	ServiceName     string
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPListenAddr:  getEnv("HTTP_LISTEN_ADDR", ":8085"),
		QueryEndpoint:   getEnv("QUERY_ENDPOINT", ""),
		QueryToken:      getEnv("QUERY_TOKEN", ""),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Bucket:        getEnv("S3_BUCKET", "backups"),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		TrustedIPHeader: getEnv("TRUSTED_IP_HEADER", "CF-Connecting-IP"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ServiceName:     getEnv("SERVICE_NAME", "relay-api"),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var missing []string
	if c.QueryEndpoint == "" {
		missing = append(missing, "QUERY_ENDPOINT")
	}
	if c.QueryToken == "" {
		missing = append(missing, "QUERY_TOKEN")
	}
	if c.S3Endpoint == "" {
		missing = append(missing, "S3_ENDPOINT")
	}
	if c.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if c.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
