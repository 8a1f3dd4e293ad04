package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

const (
	DefaultMaxSizeBytes     = 5 << 20
	DefaultInitialQuality   = 0.8
	DefaultMaxDimension     = 2000
	DefaultThumbnailSize    = 150
	DefaultThumbnailQuality = 0.7
	DefaultPageSize         = 50
)

type Config struct {
	ServerAddr   string `yaml:"server_addr"`
	DatabaseURL  string `yaml:"database_url"`
	CatalogTable string `yaml:"catalog_table"`
	KafkaBroker  string `yaml:"kafka_broker"`
	KafkaTopic   string `yaml:"kafka_topic"`
	KafkaGroup   string `yaml:"kafka_group"`
	StoragePath  string `yaml:"storage_path"`
	LogMode      string `yaml:"log_mode"`

	Codec     CodecConfig     `yaml:"codec"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Query     QueryConfig     `yaml:"query"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type CodecConfig struct {
	MaxSizeBytes     int     `yaml:"max_size_bytes"`
	InitialQuality   float64 `yaml:"initial_quality"`
	MaxDimension     int     `yaml:"max_dimension"`
	ThumbnailSize    int     `yaml:"thumbnail_size"`
	ThumbnailQuality float64 `yaml:"thumbnail_quality"`
}

type IngestConfig struct {
	Workers int `yaml:"workers"`

	// MaxMemberBytes caps one decompressed archive member; zero keeps the
	// archive package default.
	MaxMemberBytes int64 `yaml:"max_member_bytes"`
}

type QueryConfig struct {
	PageSize int `yaml:"page_size"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, cfg.Validate()
}

// ApplyDefaults fills every zero value with the pipeline defaults.
func (c *Config) ApplyDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.CatalogTable == "" {
		c.CatalogTable = "catalog_items"
	}
	if c.KafkaGroup == "" {
		c.KafkaGroup = "product-images-ingest"
	}
	if c.StoragePath == "" {
		c.StoragePath = "./data"
	}
	if c.Codec.MaxSizeBytes == 0 {
		c.Codec.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if c.Codec.InitialQuality == 0 {
		c.Codec.InitialQuality = DefaultInitialQuality
	}
	if c.Codec.MaxDimension == 0 {
		c.Codec.MaxDimension = DefaultMaxDimension
	}
	if c.Codec.ThumbnailSize == 0 {
		c.Codec.ThumbnailSize = DefaultThumbnailSize
	}
	if c.Codec.ThumbnailQuality == 0 {
		c.Codec.ThumbnailQuality = DefaultThumbnailQuality
	}
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = 4
	}
	if c.Query.PageSize == 0 {
		c.Query.PageSize = DefaultPageSize
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
}

func (c *Config) Validate() error {
	const op = "models.Config.Validate"

	if c.StoragePath == "" {
		return fmt.Errorf("%s: storage_path is required", op)
	}
	if c.Codec.InitialQuality <= 0 || c.Codec.InitialQuality > 1 {
		return fmt.Errorf("%s: codec.initial_quality must be in (0, 1], got %v", op, c.Codec.InitialQuality)
	}
	if c.Codec.ThumbnailQuality <= 0 || c.Codec.ThumbnailQuality > 1 {
		return fmt.Errorf("%s: codec.thumbnail_quality must be in (0, 1], got %v", op, c.Codec.ThumbnailQuality)
	}
	if c.Codec.MaxSizeBytes < 0 || c.Codec.MaxDimension < 0 || c.Codec.ThumbnailSize < 0 {
		return fmt.Errorf("%s: codec sizes must be positive", op)
	}
	if c.Ingest.Workers < 0 {
		return fmt.Errorf("%s: ingest.workers must be positive", op)
	}
	if c.Ingest.MaxMemberBytes < 0 {
		return fmt.Errorf("%s: ingest.max_member_bytes must not be negative", op)
	}
	if c.Query.PageSize < 0 {
		return fmt.Errorf("%s: query.page_size must be positive", op)
	}
	return nil
}
