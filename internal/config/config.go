package config

import (
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Client    ClientConfig
	Upload    UploadConfig
	DevServer DevServerConfig
}

type AppConfig struct {
	Environment string
	LogFilePath string
	NatsURL     string // empty disables external change events
}

type ClientConfig struct {
	APIBaseURL string
	WSBaseURL  string
	// PublicOrigin is the origin the client is served from, e.g. https://aicca.app.
	// Used to derive the effective WebSocket URL when WSBaseURL still points at a dev host.
	PublicOrigin   string
	ClientID       string
	SessionID      string
	RequestTimeout time.Duration
}

type UploadConfig struct {
	ChunkSize  int
	ChunkDelay time.Duration
	Timeout    time.Duration
}

type DevServerConfig struct {
	Port               string
	StoragePath        string
	RedisURL           string // empty keeps the file registry in memory
	CorsAllowedOrigins string
	UploadTTL          time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Environment: getEnv("GO_ENV", "development"),
			LogFilePath: getEnv("LOG_FILE_PATH", "logs/aicca.log"),
			NatsURL:     getEnv("NATS_URL", ""),
		},
		Client: ClientConfig{
			APIBaseURL:     getEnv("AICCA_API_URL", "http://localhost:8000"),
			WSBaseURL:      getEnv("AICCA_WS_URL", "ws://localhost:8000"),
			PublicOrigin:   getEnv("AICCA_PUBLIC_ORIGIN", ""),
			ClientID:       getEnv("AICCA_CLIENT_ID", ""),
			SessionID:      getEnv("AICCA_SESSION_ID", ""),
			RequestTimeout: getEnvAsDuration("AICCA_REQUEST_TIMEOUT", 60*time.Second),
		},
		Upload: UploadConfig{
			ChunkSize:  getEnvAsInt("UPLOAD_CHUNK_SIZE", 1024*1024),
			ChunkDelay: getEnvAsDuration("UPLOAD_CHUNK_DELAY", 100*time.Millisecond),
			Timeout:    getEnvAsDuration("UPLOAD_TIMEOUT", 30*time.Second),
		},
		DevServer: DevServerConfig{
			Port:               getEnv("DEVSERVER_PORT", "8000"),
			StoragePath:        getEnv("DEVSERVER_STORAGE_PATH", os.TempDir()+"/aicca_uploads"),
			RedisURL:           getEnv("REDIS_URL", ""),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, http://localhost:3001"),
			UploadTTL:          getEnvAsDuration("DEVSERVER_UPLOAD_TTL", 10*time.Minute),
		},
	}
}

// EffectiveWSURL returns the WebSocket base URL the client should dial.
// When wsBase targets a local development host but publicOrigin is a real host,
// the URL is rebuilt from publicOrigin: https maps to wss, anything else to ws.
func (c ClientConfig) EffectiveWSURL() string {
	return EffectiveWSURL(c.WSBaseURL, c.PublicOrigin)
}

func EffectiveWSURL(wsBase, publicOrigin string) string {
	wsBase = strings.TrimRight(wsBase, "/")
	if publicOrigin == "" {
		return wsBase
	}
	configured, err := url.Parse(wsBase)
	if err != nil || !isLocalHost(configured.Hostname()) {
		return wsBase
	}
	origin, err := url.Parse(publicOrigin)
	if err != nil || origin.Host == "" || isLocalHost(origin.Hostname()) {
		return wsBase
	}

	scheme := "ws"
	if origin.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + "://" + origin.Host
}

func isLocalHost(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "0.0.0.0", "":
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
