// Package config loads and defaults the playback engine's configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for the playback engine.
type Config struct {
	// Playback configuration (buffer goal, safety factor, initial playback rate)
	Playback PlaybackConfig `json:"playback" yaml:"playback"`

	// Origin configuration (how segments/playlists are fetched)
	Origin OriginConfig `json:"origin" yaml:"origin"`

	// Requester configuration (per-category retry/backoff/timeout)
	Requester RequesterConfig `json:"requester" yaml:"requester"`

	// Redis configuration (optional — only used when Origin.CacheEnabled)
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// PlaybackConfig holds engine-wide playback tuning.
type PlaybackConfig struct {
	// BufferGoal is the default number of seconds of media the dispatcher
	// tries to keep buffered ahead of the playback position.
	BufferGoal float64 `json:"buffer_goal" yaml:"buffer_goal"`

	// SafetyFactor is a multiplier for the raw bandwidth estimate. Neither
	// cmd/hlsplay nor the dispatcher reads it; the dispatcher always applies
	// adaptive.DefaultSafetyFactor.
	SafetyFactor float64 `json:"safety_factor" yaml:"safety_factor"`

	// InitialPlaybackRate is the playback rate requested on load.
	InitialPlaybackRate float64 `json:"initial_playback_rate" yaml:"initial_playback_rate"`
}

// OriginConfig selects and configures the Fetcher implementation used to
// retrieve playlists and segments.
type OriginConfig struct {
	// Type selects the origin backend: "http" or "s3".
	Type string `json:"type" yaml:"type"`

	// S3 configuration, used when Type == "s3".
	S3 S3Config `json:"s3" yaml:"s3"`

	// CacheEnabled wraps the selected Fetcher with a Redis-backed
	// resource cache (pkg/host.RedisResourceCache).
	CacheEnabled bool `json:"cache_enabled" yaml:"cache_enabled"`

	// CacheTTL is the TTL applied to cached playlist/segment bytes.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// S3Config holds S3-compatible origin configuration.
type S3Config struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	Region          string `json:"region" yaml:"region"`
	Bucket          string `json:"bucket" yaml:"bucket"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	UsePathStyle    bool   `json:"use_path_style" yaml:"use_path_style"`
}

// RequesterConfig holds the per-category retry/backoff/timeout defaults.
type RequesterConfig struct {
	PlaylistMaxRetry  int           `json:"playlist_max_retry" yaml:"playlist_max_retry"`
	PlaylistTimeout   time.Duration `json:"playlist_timeout" yaml:"playlist_timeout"`
	SegmentMaxRetry   int           `json:"segment_max_retry" yaml:"segment_max_retry"`
	SegmentTimeout    time.Duration `json:"segment_timeout" yaml:"segment_timeout"`
	BackoffBase       time.Duration `json:"backoff_base" yaml:"backoff_base"`
	BackoffMax        time.Duration `json:"backoff_max" yaml:"backoff_max"`
}

// RedisConfig holds Redis connection settings for the resource cache.
type RedisConfig struct {
	Address    string        `json:"address" yaml:"address"`
	Password   string        `json:"password" yaml:"password"`
	DB         int           `json:"db" yaml:"db"`
	PoolSize   int           `json:"pool_size" yaml:"pool_size"`
	KeyPrefix  string        `json:"key_prefix" yaml:"key_prefix"`
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the default playback engine configuration.
func DefaultConfig() *Config {
	return &Config{
		Playback: PlaybackConfig{
			BufferGoal:          30,
			SafetyFactor:        0.8,
			InitialPlaybackRate: 1.0,
		},
		Origin: OriginConfig{
			Type:         "http",
			CacheEnabled: false,
			CacheTTL:     30 * time.Second,
		},
		Requester: RequesterConfig{
			PlaylistMaxRetry: 0,
			PlaylistTimeout:  10 * time.Second,
			SegmentMaxRetry:  0,
			SegmentTimeout:   30 * time.Second,
			BackoffBase:      300 * time.Millisecond,
			BackoffMax:       3 * time.Second,
		},
		Redis: RedisConfig{
			Address:    "localhost:6379",
			DB:         0,
			PoolSize:   10,
			KeyPrefix:  "hlsplay:",
			DefaultTTL: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, starting from defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.loadFromEnv()

	return cfg, nil
}

// loadFromEnv overrides config from environment variables.
func (c *Config) loadFromEnv() {
	if addr := os.Getenv("HLSPLAY_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if pass := os.Getenv("HLSPLAY_REDIS_PASSWORD"); pass != "" {
		c.Redis.Password = pass
	}
	if bucket := os.Getenv("HLSPLAY_S3_BUCKET"); bucket != "" {
		c.Origin.S3.Bucket = bucket
	}
}
