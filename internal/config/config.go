package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"audiototext/internal/common"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Audio  AudioConfig  `yaml:"audio"`
	SMTP   SMTPConfig   `yaml:"smtp"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr            string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	MaxUploadSize   ByteSize      `yaml:"maxUploadSize"`
	StorageDir      string        `yaml:"storageDir"`
	JournalPath     string        `yaml:"journalPath"`     // optional, overrides default storageDir/deliveries.db
	ShutdownGrace   time.Duration `yaml:"shutdownGrace"`   // time to wait for the worker before forced stop
	CallbackRetries int           `yaml:"callbackRetries"` // number of completion-callback attempts
	CallbackBackoff time.Duration `yaml:"callbackBackoff"` // initial backoff duration between attempts
	LogLevel        string        `yaml:"logLevel"`        // debug|info|warn|error
}

// AudioConfig selects the inference model and the chunking behavior.
type AudioConfig struct {
	Model                 string `yaml:"model"`                 // whisper model identifier, e.g. "tiny"
	EngineURL             string `yaml:"engineUrl"`             // base URL of the whisper inference server
	EngineAPIKey          string `yaml:"engineApiKey"`          // optional bearer token for the inference server
	SegmentSeconds        int    `yaml:"segmentSeconds"`        // seconds per chunk when chunking
	ChunkThresholdSeconds int    `yaml:"chunkThresholdSeconds"` // durations above this are chunked
	MaxUploadSeconds      int    `yaml:"maxUploadSeconds"`      // submission ceiling, measured by ffprobe
}

// SMTPConfig holds outbound mail transport settings. Username and password
// typically arrive via ${SMTP_USERNAME} / ${SMTP_PASSWORD} expansion.
type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	Timeout  time.Duration `yaml:"timeout"` // covers connect, handshake, auth and send
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseByteSize(strings.TrimSpace(value.Value))
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Accepts Kubernetes-style binary quantities (Ki, Mi, Gi), KiB/MiB/GiB,
// decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)
	type unit struct {
		suffix string
		value  uint64
	}
	units := []unit{
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, and validates it.
// If path is empty, it will attempt to read from env var AUDIOTOTEXT_CONFIG, then default to "config.yaml".
func Load(path string) (*Config, error) {
	if path == "" {
		if env := os.Getenv("AUDIOTOTEXT_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// Expand environment variables in file content so credentials stay out of the file.
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	// Ensure storage dir exists
	if cfg.Server.StorageDir != "" {
		if err := os.MkdirAll(cfg.Server.StorageDir, 0o750); err != nil {
			return nil, fmt.Errorf("ensure storageDir: %w", err)
		}
	}
	// Default journal path under storage dir if not set.
	if cfg.Server.JournalPath == "" {
		cfg.Server.JournalPath = filepath.Join(cfg.Server.StorageDir, "deliveries.db")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 2 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = ByteSize(50 * 1024 * 1024) // 50 MiB default
	}
	if cfg.Server.StorageDir == "" {
		cfg.Server.StorageDir = "data"
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if cfg.Server.CallbackRetries == 0 {
		cfg.Server.CallbackRetries = 3
	}
	if cfg.Server.CallbackBackoff == 0 {
		cfg.Server.CallbackBackoff = 2 * time.Second
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}

	// Audio defaults mirror the classic whisper deployment values.
	if cfg.Audio.Model == "" {
		cfg.Audio.Model = "tiny"
	}
	if cfg.Audio.SegmentSeconds == 0 {
		cfg.Audio.SegmentSeconds = common.DefaultSegmentSeconds
	}
	if cfg.Audio.ChunkThresholdSeconds == 0 {
		cfg.Audio.ChunkThresholdSeconds = common.DefaultChunkThresholdSeconds
	}
	if cfg.Audio.MaxUploadSeconds == 0 {
		cfg.Audio.MaxUploadSeconds = common.DefaultMaxUploadSeconds
	}

	// SMTP defaults
	if cfg.SMTP.Host == "" {
		cfg.SMTP.Host = "smtp.gmail.com"
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.Timeout == 0 {
		cfg.SMTP.Timeout = 30 * time.Second
	}
	if cfg.SMTP.From == "" {
		if cfg.SMTP.Username != "" {
			cfg.SMTP.From = cfg.SMTP.Username
		} else {
			cfg.SMTP.From = "no-reply@example.com"
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Audio.SegmentSeconds <= 0 {
		return errors.New("audio.segmentSeconds must be positive")
	}
	if cfg.Audio.ChunkThresholdSeconds < 0 {
		return errors.New("audio.chunkThresholdSeconds must not be negative")
	}
	if cfg.Audio.MaxUploadSeconds <= 0 {
		return errors.New("audio.maxUploadSeconds must be positive")
	}
	if strings.TrimSpace(cfg.Audio.EngineURL) == "" {
		return errors.New("audio.engineUrl is required")
	}
	if cfg.SMTP.Port <= 0 || cfg.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port %d out of range", cfg.SMTP.Port)
	}
	if !strings.Contains(cfg.SMTP.From, "@") {
		return fmt.Errorf("smtp.from %q is not a mail address", cfg.SMTP.From)
	}
	return nil
}
