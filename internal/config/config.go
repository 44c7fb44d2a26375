package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Vision     VisionConfig     `yaml:"vision"`
	Capture    CaptureConfig    `yaml:"capture"`
	Attendance AttendanceConfig `yaml:"attendance"`
	References ReferencesConfig `yaml:"references"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir           string  `yaml:"models_dir"`
	DetectorModel       string  `yaml:"detector_model"`
	EmbedderModel       string  `yaml:"embedder_model"`
	EmbedderInput       string  `yaml:"embedder_input"`
	EmbedderOutput      string  `yaml:"embedder_output"`
	EmbedderInputSize   int     `yaml:"embedder_input_size"`
	EmbeddingDim        int     `yaml:"embedding_dim"`
	NormalizeEmbeddings bool    `yaml:"normalize_embeddings"`
	DetectionThreshold  float64 `yaml:"detection_threshold"`
	LibraryPath         string  `yaml:"library_path"`
}

type CaptureConfig struct {
	// Device is a webcam index ("0") or an rtsp/http URL read through ffmpeg.
	Device     string `yaml:"device"`
	FacingMode string `yaml:"facing_mode"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	FPS        int    `yaml:"fps"`
}

type AttendanceConfig struct {
	KioskID         string        `yaml:"kiosk_id"`
	MatchThreshold  float64       `yaml:"match_threshold"`
	EnrollmentQuota int           `yaml:"enrollment_quota"`
	Cutoff          string        `yaml:"cutoff"` // HH:MM local time
	Cooldown        time.Duration `yaml:"cooldown"`
	FrameInterval   time.Duration `yaml:"frame_interval"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
}

type ReferencesConfig struct {
	Backend string `yaml:"backend"` // sqlite, postgres or memory
	Path    string `yaml:"path"`    // sqlite database file
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A .env file in the working directory, if present, is loaded first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values the defaults cannot repair.
func (c *Config) Validate() error {
	if _, _, err := ParseClock(c.Attendance.Cutoff); err != nil {
		return fmt.Errorf("attendance.cutoff: %w", err)
	}
	switch c.References.Backend {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("references.backend: unknown backend %q", c.References.Backend)
	}
	if c.Attendance.EnrollmentQuota < 1 {
		return fmt.Errorf("attendance.enrollment_quota must be positive")
	}
	return nil
}

// ParseClock parses an HH:MM wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "facecheck"
	}
	if cfg.Vision.DetectorModel == "" {
		cfg.Vision.DetectorModel = "det_10g.onnx"
	}
	if cfg.Vision.EmbedderModel == "" {
		cfg.Vision.EmbedderModel = "face_recognition_128.onnx"
	}
	if cfg.Vision.EmbedderInput == "" {
		cfg.Vision.EmbedderInput = "input.1"
	}
	if cfg.Vision.EmbedderOutput == "" {
		cfg.Vision.EmbedderOutput = "output"
	}
	if cfg.Vision.EmbedderInputSize == 0 {
		cfg.Vision.EmbedderInputSize = 150
	}
	if cfg.Vision.EmbeddingDim == 0 {
		cfg.Vision.EmbeddingDim = 128
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Capture.Device == "" {
		cfg.Capture.Device = "0"
	}
	if cfg.Capture.FacingMode == "" {
		cfg.Capture.FacingMode = "user"
	}
	if cfg.Capture.Width == 0 {
		cfg.Capture.Width = 640
	}
	if cfg.Capture.Height == 0 {
		cfg.Capture.Height = 480
	}
	if cfg.Capture.FPS == 0 {
		cfg.Capture.FPS = 10
	}
	if cfg.Attendance.KioskID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Attendance.KioskID = host
		} else {
			cfg.Attendance.KioskID = "kiosk"
		}
	}
	if cfg.Attendance.MatchThreshold == 0 {
		cfg.Attendance.MatchThreshold = 0.5
	}
	if cfg.Attendance.EnrollmentQuota == 0 {
		cfg.Attendance.EnrollmentQuota = 5
	}
	if cfg.Attendance.Cutoff == "" {
		cfg.Attendance.Cutoff = "09:00"
	}
	if cfg.Attendance.Cooldown == 0 {
		cfg.Attendance.Cooldown = 500 * time.Millisecond
	}
	if cfg.Attendance.FrameInterval == 0 {
		cfg.Attendance.FrameInterval = 33 * time.Millisecond
	}
	if cfg.Attendance.SessionTTL == 0 {
		cfg.Attendance.SessionTTL = 15 * time.Minute
	}
	if cfg.References.Backend == "" {
		cfg.References.Backend = "sqlite"
	}
	if cfg.References.Path == "" {
		cfg.References.Path = "data/references.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FC_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FC_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FC_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FC_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FC_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FC_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FC_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FC_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FC_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FC_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FC_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FC_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FC_ONNX_LIBRARY"); v != "" {
		cfg.Vision.LibraryPath = v
	}
	if v := os.Getenv("FC_CAPTURE_DEVICE"); v != "" {
		cfg.Capture.Device = v
	}
	if v := os.Getenv("FC_KIOSK_ID"); v != "" {
		cfg.Attendance.KioskID = v
	}
	if v := os.Getenv("FC_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Attendance.MatchThreshold = f
		}
	}
	if v := os.Getenv("FC_CUTOFF"); v != "" {
		cfg.Attendance.Cutoff = v
	}
	if v := os.Getenv("FC_REFERENCES_BACKEND"); v != "" {
		cfg.References.Backend = v
	}
	if v := os.Getenv("FC_REFERENCES_PATH"); v != "" {
		cfg.References.Path = v
	}
}
