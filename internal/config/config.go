// Package config provides configuration management for exportd.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Job store backends
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"

	// Default values
	DefaultPort     = 8090
	DefaultLogLevel = "info"
	DefaultDataDir  = ".exportd"
	DefaultWorkers  = 2
	DefaultStore    = StoreSQLite

	// Environment variable names
	EnvPort     = "EXPORTD_PORT"
	EnvLogLevel = "EXPORTD_LOG_LEVEL"
	EnvDataDir  = "EXPORTD_DATA_DIR"
	EnvWorkers  = "EXPORTD_WORKERS"
	EnvStore    = "EXPORTD_STORE"

	EnvFFmpegPath  = "EXPORTD_FFMPEG_PATH"
	EnvFFprobePath = "EXPORTD_FFPROBE_PATH"

	EnvS3Bucket       = "EXPORTD_S3_BUCKET"
	EnvS3Region       = "EXPORTD_S3_REGION"
	EnvS3AccessKey    = "EXPORTD_S3_ACCESS_KEY"
	EnvS3SecretKey    = "EXPORTD_S3_SECRET_KEY"
	EnvS3Endpoint     = "EXPORTD_S3_ENDPOINT"
	EnvS3UsePathStyle = "EXPORTD_S3_USE_PATH_STYLE"

	EnvRedisAddr     = "EXPORTD_REDIS_ADDR"
	EnvRedisPassword = "EXPORTD_REDIS_PASSWORD"
	EnvRedisDB       = "EXPORTD_REDIS_DB"

	// Database filename
	DBFilename = "exportd.db"

	// Validation ceilings
	DefaultMaxElements = 200
	DefaultMaxTracks   = 20

	// Job retention and sweep cadence
	DefaultJobRetention  = 24 * time.Hour
	DefaultSweepInterval = time.Hour

	// Signed artifact URL lifetime
	DefaultDownloadURLTTL = 24 * time.Hour

	// Render timeout ceiling per job
	DefaultRenderTimeout = 30 * time.Minute
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	TempDir() string
	Workers() int
	Store() string

	FFmpegPath() string
	FFprobePath() string

	S3Bucket() string
	S3Region() string
	S3AccessKey() string
	S3SecretKey() string
	S3Endpoint() string
	S3UsePathStyle() bool

	RedisAddr() string
	RedisPassword() string
	RedisDB() int

	MaxElements() int
	MaxTracks() int
	JobRetention() time.Duration
	SweepInterval() time.Duration
	DownloadURLTTL() time.Duration
	RenderTimeout() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	workers  int
	store    string

	ffmpegPath  string
	ffprobePath string

	s3Bucket       string
	s3Region       string
	s3AccessKey    string
	s3SecretKey    string
	s3Endpoint     string
	s3UsePathStyle bool

	redisAddr     string
	redisPassword string
	redisDB       int
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:      DefaultPort,
		logLevel:  DefaultLogLevel,
		dataDir:   defaultDataDir(),
		workers:   DefaultWorkers,
		store:     DefaultStore,
		s3Region:  "us-east-1",
		redisAddr: "localhost:6379",
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if w := os.Getenv(EnvWorkers); w != "" {
		workers, err := strconv.Atoi(w)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvWorkers, err)
		}
		if workers < 1 {
			return nil, fmt.Errorf("invalid %s: worker count must be at least 1", EnvWorkers)
		}
		cfg.workers = workers
	}

	if s := os.Getenv(EnvStore); s != "" {
		switch s {
		case StoreSQLite, StoreRedis, StoreMemory:
			cfg.store = s
		default:
			return nil, fmt.Errorf("invalid %s: must be sqlite, redis or memory", EnvStore)
		}
	}

	cfg.ffmpegPath = os.Getenv(EnvFFmpegPath)
	cfg.ffprobePath = os.Getenv(EnvFFprobePath)

	cfg.s3Bucket = os.Getenv(EnvS3Bucket)
	if r := os.Getenv(EnvS3Region); r != "" {
		cfg.s3Region = r
	}
	cfg.s3AccessKey = os.Getenv(EnvS3AccessKey)
	cfg.s3SecretKey = os.Getenv(EnvS3SecretKey)
	cfg.s3Endpoint = os.Getenv(EnvS3Endpoint)
	cfg.s3UsePathStyle = envBool(EnvS3UsePathStyle)

	if ra := os.Getenv(EnvRedisAddr); ra != "" {
		cfg.redisAddr = ra
	}
	cfg.redisPassword = os.Getenv(EnvRedisPassword)
	if rdb := os.Getenv(EnvRedisDB); rdb != "" {
		n, err := strconv.Atoi(rdb)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvRedisDB, err)
		}
		cfg.redisDB = n
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// TempDir returns the directory under which per-job temp files are created
func (c *EnvConfig) TempDir() string {
	return filepath.Join(c.dataDir, "tmp")
}

// Workers returns the number of concurrent export workers
func (c *EnvConfig) Workers() int {
	return c.workers
}

// Store returns the job store backend (sqlite, redis or memory)
func (c *EnvConfig) Store() string {
	return c.store
}

func (c *EnvConfig) FFmpegPath() string  { return c.ffmpegPath }
func (c *EnvConfig) FFprobePath() string { return c.ffprobePath }

func (c *EnvConfig) S3Bucket() string    { return c.s3Bucket }
func (c *EnvConfig) S3Region() string    { return c.s3Region }
func (c *EnvConfig) S3AccessKey() string { return c.s3AccessKey }
func (c *EnvConfig) S3SecretKey() string { return c.s3SecretKey }
func (c *EnvConfig) S3Endpoint() string  { return c.s3Endpoint }
func (c *EnvConfig) S3UsePathStyle() bool {
	return c.s3UsePathStyle
}

func (c *EnvConfig) RedisAddr() string     { return c.redisAddr }
func (c *EnvConfig) RedisPassword() string { return c.redisPassword }
func (c *EnvConfig) RedisDB() int          { return c.redisDB }

func (c *EnvConfig) MaxElements() int              { return DefaultMaxElements }
func (c *EnvConfig) MaxTracks() int                { return DefaultMaxTracks }
func (c *EnvConfig) JobRetention() time.Duration   { return DefaultJobRetention }
func (c *EnvConfig) SweepInterval() time.Duration  { return DefaultSweepInterval }
func (c *EnvConfig) DownloadURLTTL() time.Duration { return DefaultDownloadURLTTL }
func (c *EnvConfig) RenderTimeout() time.Duration  { return DefaultRenderTimeout }

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

func envBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
