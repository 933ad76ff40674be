package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Email       EmailConfig
	Zego        ZegoConfig
	Certificate CertificateConfig
	Attendance  AttendanceConfig
	Chat        ChatConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	Timezone           string // webinar dates and times entered by hosts are read here
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the certificates bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	CertificatesBucket   string
	PresignExpireMinutes int
}

// EmailConfig for the Resend dispatcher. Empty APIKey logs emails instead of sending.
type EmailConfig struct {
	FromAddress string
	FromName    string
	APIKey      string
}

// ZegoConfig for the conferencing widget.
type ZegoConfig struct {
	AppID         uint32
	ServerSecret  string
	TokenTTLHours int
}

// CertificateConfig governs eligibility and certificate ids.
type CertificateConfig struct {
	RequiredMinutes float64
	UnlockPercent   float64
	IDPrefix        string
	VerifyBaseURL   string // QR code target, cert id appended
}

// AttendanceConfig governs the periodic accrual of watch time.
type AttendanceConfig struct {
	Interval     time.Duration
	DeltaMinutes float64
	DedupTTL     time.Duration
}

// ChatConfig limits chat posting.
type ChatConfig struct {
	MaxLength  int
	RateLimit  int
	RateWindow time.Duration
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
			Timezone:           getEnv("TIMEZONE", "UTC"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "nexstream"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "nexstream:"),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			CertificatesBucket:   getEnv("AWS_S3_CERTIFICATES_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Email: EmailConfig{
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "noreply@nexstream.dev"),
			FromName:    getEnv("EMAIL_FROM_NAME", "NexStream"),
			APIKey:      getEnv("RESEND_API_KEY", ""),
		},
		Zego: ZegoConfig{
			AppID:         uint32(getEnvInt("ZEGO_APP_ID", 0)),
			ServerSecret:  getEnv("ZEGO_SERVER_SECRET", ""),
			TokenTTLHours: getEnvInt("ZEGO_TOKEN_TTL_HOURS", 2),
		},
		Certificate: CertificateConfig{
			RequiredMinutes: getEnvFloat("CERT_REQUIRED_MINUTES", 1),
			UnlockPercent:   getEnvFloat("CERT_UNLOCK_PERCENT", 50),
			IDPrefix:        strings.ToUpper(strings.TrimSpace(getEnv("CERT_ID_PREFIX", "NS"))),
			VerifyBaseURL:   getEnv("CERT_VERIFY_BASE_URL", "http://localhost:3000/verify/"),
		},
		Attendance: AttendanceConfig{
			Interval:     getEnvDuration("ATTENDANCE_INTERVAL", 30*time.Second),
			DeltaMinutes: getEnvFloat("ATTENDANCE_DELTA_MINUTES", 0.5),
			DedupTTL:     getEnvDuration("ATTENDANCE_DEDUP_TTL", 24*time.Hour),
		},
		Chat: ChatConfig{
			MaxLength:  getEnvInt("CHAT_MAX_LENGTH", 1000),
			RateLimit:  getEnvInt("CHAT_RATE_LIMIT", 5),
			RateWindow: getEnvDuration("CHAT_RATE_WINDOW", 10*time.Second),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.Timezone == "":
		return errors.New("config: TIMEZONE is required")
	case c.JWT.Secret == "":
		return errors.New("config: JWT_SECRET is required")
	case c.JWT.ExpireHours <= 0:
		return errors.New("config: JWT_EXPIRE_HOURS must be positive")
	case c.Certificate.RequiredMinutes <= 0:
		return errors.New("config: CERT_REQUIRED_MINUTES must be positive")
	case c.Certificate.UnlockPercent <= 0 || c.Certificate.UnlockPercent > 100:
		return errors.New("config: CERT_UNLOCK_PERCENT must be in (0, 100]")
	case c.Certificate.IDPrefix == "":
		return errors.New("config: CERT_ID_PREFIX is required")
	case c.Attendance.Interval <= 0:
		return errors.New("config: ATTENDANCE_INTERVAL must be positive")
	case c.Attendance.DeltaMinutes <= 0:
		return errors.New("config: ATTENDANCE_DELTA_MINUTES must be positive")
	case c.Chat.MaxLength <= 0:
		return errors.New("config: CHAT_MAX_LENGTH must be positive")
	case c.Chat.RateLimit <= 0 || c.Chat.RateWindow <= 0:
		return errors.New("config: CHAT_RATE_LIMIT and CHAT_RATE_WINDOW must be positive")
	}
	return nil
}

// Location loads the configured time zone.
func (s ServerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "config: TIMEZONE %q", s.Timezone)
	}
	return loc, nil
}

// CORSOrigins splits CORSAllowedOrigins into trimmed entries.
func (s ServerConfig) CORSOrigins() []string {
	return splitTrim(s.CORSAllowedOrigins, ",")
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
