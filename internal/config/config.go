package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"followreq/pkg/model"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	Browser struct {
		DevToolsURL string `yaml:"devtools_url"`
		PageHost    string `yaml:"page_host"`
		CookieURL   string `yaml:"cookie_url"`
	} `yaml:"browser"`

	Session struct {
		MaxAttempts int           `yaml:"max_attempts"`
		Interval    time.Duration `yaml:"interval"`
	} `yaml:"session"`

	API struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"api"`

	Cache struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	Limits struct {
		PerMinute int `yaml:"per_minute"`
		PerHour   int `yaml:"per_hour"`
	} `yaml:"limits"`

	Fetch struct {
		ChunkSize        int `yaml:"chunk_size"`
		ChunkConcurrency int `yaml:"chunk_concurrency"`
	} `yaml:"fetch"`

	Journal struct {
		Dsn string `yaml:"dsn"`
	} `yaml:"journal"`

	// Filter 搜索时始终生效的过滤条件
	Filter model.Match `yaml:"filter"`

	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}
	c.Browser.DevToolsURL = "http://127.0.0.1:9222"
	c.Browser.PageHost = "instagram.com"
	c.Browser.CookieURL = "https://www.instagram.com"
	c.Session.MaxAttempts = 10
	c.Session.Interval = time.Second
	c.API.BaseURL = "https://i.instagram.com/api/v1"
	c.API.Timeout = 30 * time.Second
	c.Cache.TTL = 5 * time.Minute
	c.Limits.PerMinute = 5
	c.Limits.PerHour = 60
	c.Fetch.ChunkSize = 100
	c.Fetch.ChunkConcurrency = 1
	c.Server.Listen = "127.0.0.1:8765"
	c.Log.Level = "debug"
	c.Log.Writer = []string{"console"}
	c.Log.File = "followreq.log"
	return c
}

// Load 加载配置：默认值 -> 配置文件 -> .env/环境变量
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env 不存在时忽略
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("FOLLOWREQ_DEVTOOLS_URL"); v != "" {
		c.Browser.DevToolsURL = v
	}
	if v := os.Getenv("FOLLOWREQ_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("FOLLOWREQ_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("FOLLOWREQ_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FOLLOWREQ_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FOLLOWREQ_CACHE_TTL: %w", err)
		}
		c.Cache.TTL = d
	}
	if v := os.Getenv("FOLLOWREQ_CHUNK_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FOLLOWREQ_CHUNK_CONCURRENCY: %w", err)
		}
		c.Fetch.ChunkConcurrency = n
	}
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Limits.PerMinute <= 0 || c.Limits.PerHour <= 0 {
		return fmt.Errorf("limits must be positive")
	}
	if c.Fetch.ChunkSize <= 0 {
		return fmt.Errorf("fetch.chunk_size must be positive")
	}
	if c.Fetch.ChunkConcurrency <= 0 {
		c.Fetch.ChunkConcurrency = 1
	}
	if c.Session.MaxAttempts <= 0 {
		return fmt.Errorf("session.max_attempts must be positive")
	}
	return nil
}
