package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultServerAddress      = ":8000"
	DefaultDoclingURL         = "http://127.0.0.1:5001"
	DefaultPictureEndpoint    = "https://api.groq.com/openai/v1/chat/completions"
	DefaultPictureTimeout     = 90 * time.Second
	DefaultTempFileTTL        = time.Hour
	DefaultTempCleanInterval  = 10 * time.Minute
	DefaultCacheTTL           = 24 * time.Hour
	DefaultLogLevel           = "info"
	DefaultMultipartMemoryMiB = 32
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig        BasicConfig              `json:"basic_config"`
	Docling            DoclingConfig            `json:"docling"`
	PictureDescription PictureDescriptionConfig `json:"picture_description"`
	Redis              RedisConfig              `json:"redis"`
	Cache              CacheConfig              `json:"cache"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	LogLevel      string `json:"log_level"`
	LogFormat     string `json:"log_format"`
	TempDir       string `json:"temp_dir"`
	// minutes
	TempFileTTL       int `json:"temp_file_ttl"`
	TempCleanInterval int `json:"temp_clean_interval"`
	// MiB kept in memory while parsing multipart bodies; the rest spills to disk.
	MultipartMemory int64 `json:"multipart_memory"`
}

type DoclingConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	// seconds, 0 leaves the conversion unbounded
	RequestTimeout int `json:"request_timeout"`
}

// PictureDescriptionConfig describes the remote vision model docling calls for every picture.
// APIKey is normally supplied through GROQ_API_KEY rather than the file.
type PictureDescriptionConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"-"`
	// seconds
	Timeout int    `json:"timeout"`
	Prompt  string `json:"prompt"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type CacheConfig struct {
	Enabled bool `json:"enabled"`
	// minutes
	TTL int `json:"ttl"`
}

// Default returns a configuration that runs against a local docling-serve without a config file.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress:     DefaultServerAddress,
			LogLevel:          DefaultLogLevel,
			LogFormat:         "text",
			TempDir:           os.TempDir(),
			TempFileTTL:       int(DefaultTempFileTTL / time.Minute),
			TempCleanInterval: int(DefaultTempCleanInterval / time.Minute),
			MultipartMemory:   DefaultMultipartMemoryMiB,
		},
		Docling: DoclingConfig{
			BaseURL: DefaultDoclingURL,
		},
		PictureDescription: PictureDescriptionConfig{
			URL:     DefaultPictureEndpoint,
			Timeout: int(DefaultPictureTimeout / time.Second),
		},
		Redis: RedisConfig{
			Host: "127.0.0.1",
			Port: 6379,
		},
		Cache: CacheConfig{
			TTL: int(DefaultCacheTTL / time.Minute),
		},
	}
}

// Load reads configuration from the provided path and applies environment overrides.
// An empty path skips the file and starts from Default.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}

		file, err := os.Open(absPath)
		if err != nil {
			return nil, fmt.Errorf("open config %s: %w", absPath, err)
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}

		if cfg.BasicConfig.TempDir != "" && !filepath.IsAbs(cfg.BasicConfig.TempDir) {
			cfg.BasicConfig.TempDir = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.TempDir)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.Docling.BaseURL == "" {
		return nil, errors.New("docling base_url must be configured")
	}
	if cfg.PictureDescription.URL == "" {
		cfg.PictureDescription.URL = DefaultPictureEndpoint
	}
	if cfg.PictureDescription.Timeout <= 0 {
		cfg.PictureDescription.Timeout = int(DefaultPictureTimeout / time.Second)
	}
	if cfg.BasicConfig.TempDir == "" {
		cfg.BasicConfig.TempDir = os.TempDir()
	}

	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file without overriding variables already set.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	// the credential is only ever read from the environment
	c.PictureDescription.APIKey = strings.TrimSpace(os.Getenv("GROQ_API_KEY"))

	if v := os.Getenv("DOCLING_API_ADDR"); v != "" {
		c.BasicConfig.ServerAddress = v
	}
	if v := os.Getenv("DOCLING_API_TEMP_DIR"); v != "" {
		c.BasicConfig.TempDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.BasicConfig.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.BasicConfig.LogFormat = v
	}
	if v := os.Getenv("DOCLING_SERVE_URL"); v != "" {
		c.Docling.BaseURL = v
	}
	if v := os.Getenv("DOCLING_SERVE_API_KEY"); v != "" {
		c.Docling.APIKey = v
	}
	if v := os.Getenv("DOCLING_SERVE_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse DOCLING_SERVE_TIMEOUT: %w", err)
		}
		c.Docling.RequestTimeout = n
	}
	if v := os.Getenv("PICTURE_DESCRIPTION_URL"); v != "" {
		c.PictureDescription.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, err := splitHostPort(v)
		if err != nil {
			return fmt.Errorf("parse REDIS_ADDR: %w", err)
		}
		c.Redis.Host, c.Redis.Port = host, port
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("DOCLING_API_CACHE"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse DOCLING_API_CACHE: %w", err)
		}
		c.Cache.Enabled = enabled
	}
	return nil
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// PictureTimeout is the per-picture remote call timeout.
func (c *Config) PictureTimeout() time.Duration {
	return time.Duration(c.PictureDescription.Timeout) * time.Second
}

// DoclingTimeout bounds a whole conversion; zero means no bound.
func (c *Config) DoclingTimeout() time.Duration {
	return time.Duration(c.Docling.RequestTimeout) * time.Second
}

func (c *Config) TempFileTTL() time.Duration {
	if c.BasicConfig.TempFileTTL <= 0 {
		return DefaultTempFileTTL
	}
	return time.Duration(c.BasicConfig.TempFileTTL) * time.Minute
}

func (c *Config) TempCleanInterval() time.Duration {
	if c.BasicConfig.TempCleanInterval <= 0 {
		return DefaultTempCleanInterval
	}
	return time.Duration(c.BasicConfig.TempCleanInterval) * time.Minute
}

func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTL <= 0 {
		return DefaultCacheTTL
	}
	return time.Duration(c.Cache.TTL) * time.Minute
}
