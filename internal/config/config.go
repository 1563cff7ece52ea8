package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	Port    string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	JWTSecret string
	JWTExpiry time.Duration

	// Admin bootstrap: when both are set, an approved admin account is
	// created at startup if it does not exist yet.
	AdminEmail    string
	AdminName     string
	AdminPassword string

	// Storage (S3-compatible: MinIO, AWS S3, Cloudflare R2, etc.)
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string // Optional: for S3-compatible services (MinIO etc.)
	// S3ExternalEndpoint rewrites presigned URL hosts when the store is
	// only reachable through an internal network alias (e.g. "minio:9000"
	// inside compose, "localhost:9000" from the browser).
	S3ExternalEndpoint string
	S3UseSSL           bool
	PresignExpiry      time.Duration

	// Task queue (Redis)
	RedisAddr     string
	RedisPassword string
	TaskQueue     string
	TaskStatusTTL time.Duration

	// Staging area shared between server and worker processes
	StagingDir string

	// Worker
	WorkerConcurrency int
	ReconcileInterval time.Duration

	// Chunking
	ChunkSize         int
	ChunkOverlap      int
	SummaryChunkChars int

	// Vector index (optional; the embedding backend itself is stubbed)
	QdrantAddr       string
	QdrantCollection string

	// Observability (optional)
	SentryDSN string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		AppName: envString("APP_NAME", "doclane"),
		AppEnv:  envString("APP_ENV", "development"),
		Port:    envString("PORT", "8000"),

		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/doclane.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"),

		JWTSecret: envRequired("JWT_SECRET"),
		JWTExpiry: envDuration("JWT_EXPIRY", 30*time.Minute),

		AdminEmail:    envString("ADMIN_EMAIL", ""),
		AdminName:     envString("ADMIN_NAME", "Administrator"),
		AdminPassword: envString("ADMIN_PASSWORD", ""),

		S3Region:           envString("S3_REGION", "us-east-1"),
		S3Bucket:           envString("S3_BUCKET", "documents"),
		S3AccessKey:        envRequired("S3_ACCESS_KEY"),
		S3SecretKey:        envRequired("S3_SECRET_KEY"),
		S3Endpoint:         envString("S3_ENDPOINT", ""),
		S3ExternalEndpoint: envString("S3_EXTERNAL_ENDPOINT", ""),
		S3UseSSL:           envBool("S3_USE_SSL", false),
		PresignExpiry:      envDuration("S3_PRESIGN_EXPIRY", time.Hour),

		RedisAddr:     envString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envString("REDIS_PASSWORD", ""),
		TaskQueue:     envString("TASK_QUEUE", "doclane:tasks"),
		TaskStatusTTL: envDuration("TASK_STATUS_TTL", 24*time.Hour),

		StagingDir: envString("STAGING_DIR", "/var/lib/doclane/staging"),

		WorkerConcurrency: envInt("WORKER_CONCURRENCY", 4),
		ReconcileInterval: envDuration("RECONCILE_INTERVAL", 10*time.Minute),

		ChunkSize:         envInt("CHUNK_SIZE", 512),
		ChunkOverlap:      envInt("CHUNK_OVERLAP", 50),
		SummaryChunkChars: envInt("SUMMARY_CHUNK_CHARS", 1000),

		QdrantAddr:       envString("QDRANT_ADDR", ""),
		QdrantCollection: envString("QDRANT_COLLECTION", "document_chunks"),

		SentryDSN: envString("SENTRY_DSN", ""),
	}

	return cfg
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
