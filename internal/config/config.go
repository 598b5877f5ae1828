package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Assets   AssetsConfig   `yaml:"assets"`
	Vision   VisionConfig   `yaml:"vision"`
	Identity IdentityConfig `yaml:"identity"`
	Worker   WorkerConfig   `yaml:"worker"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port           int     `yaml:"port" validate:"gt=0,lte=65535"`
	APIKey         string  `yaml:"api_key"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int     `yaml:"rate_limit_burst" validate:"gte=0"`
	MaxUploadMB    int     `yaml:"max_upload_mb" validate:"gt=0"`
}

type DatabaseConfig struct {
	// Driver selects the identity store: "postgres" or "memory".
	Driver   string `yaml:"driver" validate:"oneof=postgres memory"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns" validate:"gte=0"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	// URL is optional for the API; without it identity events are not published.
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type AssetsConfig struct {
	// Backend selects where face images and embeddings are written: "minio" or "filesystem".
	Backend string `yaml:"backend" validate:"oneof=minio filesystem"`
	Dir     string `yaml:"dir"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectorModel      string  `yaml:"detector_model"`
	EmbedderModel      string  `yaml:"embedder_model"`
	SegmenterModel     string  `yaml:"segmenter_model"`
	RuntimeLibrary     string  `yaml:"runtime_library"`
	DetectionThreshold float64 `yaml:"detection_threshold" validate:"gt=0,lt=1"`
	DetectionSize      int     `yaml:"detection_size" validate:"gt=0"`
	EmbeddingDim       int     `yaml:"embedding_dim" validate:"gt=0"`
}

type IdentityConfig struct {
	Prefix                 string  `yaml:"prefix" validate:"required,alpha"`
	RecognitionThreshold   float64 `yaml:"recognition_threshold" validate:"gt=0,lte=1"`
	UniquenessThreshold    float64 `yaml:"uniqueness_threshold" validate:"gt=0,ltfield=RecognitionThreshold"`
	MinConfidence          float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`
	MinFaceSize            int     `yaml:"min_face_size" validate:"gte=0"`
	MaxIDAttempts          int     `yaml:"max_id_attempts" validate:"gt=0"`
	SerializeRegistrations *bool   `yaml:"serialize_registrations"`
}

// Serialize reports whether registrations hold the store's registration lock.
func (i IdentityConfig) Serialize() bool {
	return i.SerializeRegistrations == nil || *i.SerializeRegistrations
}

type WorkerConfig struct {
	IntegrityInterval string `yaml:"integrity_interval"`
	MetricsPort       int    `yaml:"metrics_port" validate:"gte=0,lte=65535"`
	Workers           int    `yaml:"workers" validate:"gte=0"`
}

// Interval returns the integrity check period; 0 disables the periodic check.
func (w WorkerConfig) Interval() time.Duration {
	d, _ := time.ParseDuration(w.IntegrityInterval)
	return d
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// Load reads config from YAML file and applies environment variable overrides.
// An empty path yields defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges. The uniqueness threshold must stay strictly
// below the recognition threshold.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if _, err := time.ParseDuration(c.Worker.IntegrityInterval); err != nil {
		return fmt.Errorf("validate config: worker.integrity_interval: %w", err)
	}
	if c.Assets.Backend == "filesystem" && c.Assets.Dir == "" {
		return fmt.Errorf("validate config: assets.dir is required for the filesystem backend")
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitRPS == 0 {
		cfg.Server.RateLimitRPS = 5
	}
	if cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = 10
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 16
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "faceid"
	}
	if cfg.Assets.Backend == "" {
		cfg.Assets.Backend = "minio"
	}
	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "models"
	}
	if cfg.Vision.DetectorModel == "" {
		cfg.Vision.DetectorModel = "det_10g.onnx"
	}
	if cfg.Vision.EmbedderModel == "" {
		cfg.Vision.EmbedderModel = "w600k_r50.onnx"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.DetectionSize == 0 {
		cfg.Vision.DetectionSize = 640
	}
	if cfg.Vision.EmbeddingDim == 0 {
		cfg.Vision.EmbeddingDim = 512
	}
	if cfg.Identity.Prefix == "" {
		cfg.Identity.Prefix = "USR"
	}
	if cfg.Identity.RecognitionThreshold == 0 {
		cfg.Identity.RecognitionThreshold = 0.6
	}
	if cfg.Identity.UniquenessThreshold == 0 {
		cfg.Identity.UniquenessThreshold = 0.5
	}
	if cfg.Identity.MinConfidence == 0 {
		cfg.Identity.MinConfidence = 0.85
	}
	if cfg.Identity.MinFaceSize == 0 {
		cfg.Identity.MinFaceSize = 100
	}
	if cfg.Identity.MaxIDAttempts == 0 {
		cfg.Identity.MaxIDAttempts = 10
	}
	if cfg.Worker.IntegrityInterval == "" {
		cfg.Worker.IntegrityInterval = "1h"
	}
	if cfg.Worker.MetricsPort == 0 {
		cfg.Worker.MetricsPort = 8082
	}
	if cfg.Worker.Workers == 0 {
		cfg.Worker.Workers = 2
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FD_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FD_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("FD_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FD_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FD_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FD_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FD_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FD_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FD_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FD_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FD_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FD_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FD_ASSETS_BACKEND"); v != "" {
		cfg.Assets.Backend = v
	}
	if v := os.Getenv("FD_ASSETS_DIR"); v != "" {
		cfg.Assets.Dir = v
	}
	if v := os.Getenv("FD_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FD_ONNX_LIB"); v != "" {
		cfg.Vision.RuntimeLibrary = v
	}
	if v := os.Getenv("FD_RECOGNITION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Identity.RecognitionThreshold = f
		}
	}
	if v := os.Getenv("FD_UNIQUENESS_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Identity.UniquenessThreshold = f
		}
	}
	if v := os.Getenv("FD_INTEGRITY_INTERVAL"); v != "" {
		cfg.Worker.IntegrityInterval = v
	}
	if v := os.Getenv("FD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
