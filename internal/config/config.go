package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	APIBaseURL string

	// Session
	SessionFile string

	// HTTP
	HTTPTimeout  time.Duration
	RateLimit    float64 // req/sec
	RateBurst    int
	MaxRetries   int
	RetryBackoff time.Duration

	// Logging
	LogLevel string

	// Metrics
	MetricsTextfile string

	// Display
	Location *time.Location
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("EVENTS_API_URL"), "/")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "EVENTS_API_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("EVENTS_API_URL must be an absolute http(s) URL: %q", cfg.APIBaseURL)
	}

	// Optional fields with defaults
	sessionFile, err := defaultSessionFile()
	if err != nil {
		return nil, err
	}
	cfg.SessionFile = getEnvString("EVENTDESK_SESSION_FILE", sessionFile)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 10*time.Second)
	cfg.RateLimit = getEnvFloat("API_RATE_LIMIT", 10)
	cfg.RateBurst = getEnvInt("API_RATE_BURST", 5)
	cfg.MaxRetries = getEnvInt("API_MAX_RETRIES", 2)
	cfg.RetryBackoff = getEnvDuration("API_RETRY_BACKOFF", 200*time.Millisecond)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "warn")
	cfg.MetricsTextfile = getEnvString("METRICS_TEXTFILE", "")

	loc, err := loadLocation(getEnvString("EVENTDESK_TIMEZONE", "Local"))
	if err != nil {
		return nil, err
	}
	cfg.Location = loc

	return cfg, nil
}

// defaultSessionFile はセッションファイルの既定パスを返す。
// OSのユーザー設定ディレクトリ配下の eventdesk/session.yaml。
func defaultSessionFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir (set EVENTDESK_SESSION_FILE): %w", err)
	}
	return filepath.Join(dir, "eventdesk", "session.yaml"), nil
}

// loadLocation は日時入力の表示に使うタイムゾーンを解決する。
func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid EVENTDESK_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
