package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Redis      RedisConfig
	SMTP       SMTPConfig
	Firebase   FirebaseConfig
	Cloudinary CloudinaryConfig
	Socket     SocketConfig
	Queue      QueueConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RunWorkers starts the queue workers inside the API process.
	RunWorkers bool
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type FirebaseConfig struct {
	ServiceAccountPath string
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

type SocketConfig struct {
	HeartbeatInterval time.Duration
	TypingTimeout     time.Duration
	TypingSweep       time.Duration
	SendBuffer        int
}

type QueueConfig struct {
	Prefix       string
	PollInterval time.Duration
	LockDuration time.Duration
	// Worker rate limit: at most LimiterMax jobs per LimiterWindow.
	LimiterMax    int
	LimiterWindow time.Duration
	// SchedulerEnabled turns on the daily report and booking reminder cron.
	SchedulerEnabled bool
	ReminderHour     int
}

type LogConfig struct {
	Level string
}

// Load builds the configuration from defaults, a .env file when present, and
// environment variables.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         env("PORT", "8099"),
			Env:          env("APP_ENV", "development"),
			ReadTimeout:  envDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: envDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			RunWorkers:   envBool("RUN_WORKERS", false),
		},
		Database: DatabaseConfig{
			DSN:             env("DATABASE_DSN", "cadence:cadence@tcp(localhost:3306)/cadence?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		JWT: JWTConfig{
			AccessSecret: env("JWT_SECRET", "change-me-in-production"),
			AccessExpiry: envDuration("JWT_ACCESS_EXPIRY", 24*time.Hour),
			Issuer:       env("JWT_ISSUER", "cadence"),
		},
		Redis: RedisConfig{
			Host:     env("REDIS_HOST", "localhost"),
			Port:     envInt("REDIS_PORT", 6379),
			Password: env("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:     env("SMTP_HOST", "localhost"),
			Port:     envInt("SMTP_PORT", 587),
			Username: env("SMTP_USER", ""),
			Password: env("SMTP_PASS", ""),
			From:     env("SMTP_FROM", "Cadence <no-reply@cadence.local>"),
			Timeout:  envDuration("SMTP_TIMEOUT", 15*time.Second),
		},
		Firebase: FirebaseConfig{
			ServiceAccountPath: env("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: env("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    env("CLOUDINARY_API_KEY", ""),
			APISecret: env("CLOUDINARY_API_SECRET", ""),
		},
		Socket: SocketConfig{
			HeartbeatInterval: envDuration("SOCKET_HEARTBEAT_INTERVAL", 30*time.Second),
			TypingTimeout:     envDuration("SOCKET_TYPING_TIMEOUT", 3*time.Second),
			TypingSweep:       envDuration("SOCKET_TYPING_SWEEP", time.Second),
			SendBuffer:        envInt("SOCKET_SEND_BUFFER", 256),
		},
		Queue: QueueConfig{
			Prefix:           env("QUEUE_PREFIX", "cadence"),
			PollInterval:     envDuration("QUEUE_POLL_INTERVAL", 500*time.Millisecond),
			LockDuration:     envDuration("QUEUE_LOCK_DURATION", 30*time.Second),
			LimiterMax:       envInt("QUEUE_LIMITER_MAX", 10),
			LimiterWindow:    envDuration("QUEUE_LIMITER_WINDOW", time.Second),
			SchedulerEnabled: envBool("QUEUE_SCHEDULER", true),
			ReminderHour:     envInt("QUEUE_REMINDER_HOUR", 9),
		},
		Log: LogConfig{
			Level: env("LOG_LEVEL", "info"),
		},
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Env == "production" && (c.JWT.AccessSecret == "" || c.JWT.AccessSecret == "change-me-in-production") {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.Socket.HeartbeatInterval <= 0 || c.Socket.TypingTimeout <= 0 || c.Socket.TypingSweep <= 0 {
		return errors.New("socket intervals must be positive")
	}
	if c.Queue.PollInterval <= 0 || c.Queue.LockDuration <= 0 {
		return errors.New("queue intervals must be positive")
	}
	if c.Queue.ReminderHour < 0 || c.Queue.ReminderHour > 23 {
		return errors.New("QUEUE_REMINDER_HOUR must be between 0 and 23")
	}
	return nil
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

// envDuration accepts Go durations ("30s") or plain milliseconds ("30000").
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
