package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	JWTSecret string

	// LLM
	GeminiAPIKey      string
	GeminiModel       string
	GenerationTimeout time.Duration

	// Translation（AWSRegionが空の場合は翻訳を無効化する）
	AWSRegion               string
	TranslateSourceLanguage string

	// Generation quota（RedisURLが空の場合はプロセス内カウンタを使用する）
	RedisURL         string
	GenerationLimit  int
	GenerationWindow time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int

	// Email（ResendAPIKeyが空の場合は招待メールを無効化する）
	ResendAPIKey string
	EmailFrom    string

	// Rooms
	RoomMaxPlayers  int
	RoomCodeLength  int
	RoomTTL         time.Duration
	CleanupInterval time.Duration

	// Server
	ServerPort        string
	BaseURL           string
	WorkerMetricsPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envが存在する場合は先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", slog.String("error", err.Error()))
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("SUPABASE_JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "SUPABASE_JWT_SECRET")
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-1.5-flash")
	cfg.GenerationTimeout = getEnvDuration("GENERATION_TIMEOUT", 60*time.Second)
	cfg.AWSRegion = getEnvString("AWS_REGION", "")
	cfg.TranslateSourceLanguage = getEnvString("TRANSLATE_SOURCE_LANGUAGE", "en")
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.GenerationLimit = getEnvInt("GENERATION_LIMIT", 10)
	cfg.GenerationWindow = getEnvDuration("GENERATION_WINDOW", time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ResendAPIKey = getEnvString("RESEND_API_KEY", "")
	cfg.EmailFrom = getEnvString("EMAIL_FROM", "Quizroom <noreply@quizroom.app>")
	cfg.RoomMaxPlayers = getEnvInt("ROOM_MAX_PLAYERS", 8)
	cfg.RoomCodeLength = getEnvInt("ROOM_CODE_LENGTH", 6)
	cfg.RoomTTL = getEnvDuration("ROOM_TTL", 24*time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:3000")
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", "9091")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// TranslationEnabled は翻訳バックエンドが設定されているかを返す。
func (c *Config) TranslationEnabled() bool {
	return c.AWSRegion != ""
}

// EmailEnabled は招待メール送信が設定されているかを返す。
func (c *Config) EmailEnabled() bool {
	return c.ResendAPIKey != ""
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
