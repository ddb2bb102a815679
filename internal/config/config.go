package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig  BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Databases    map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis        RedisConfig               `json:"redis" yaml:"redis"`
	Entitlements Entitlements              `json:"entitlements" yaml:"entitlements"`
}

type BasicConfig struct {
	ServerAddress  string `json:"server_address" yaml:"server_address"`
	Driver         string `json:"driver" yaml:"driver"`
	TokenTTLHours  int    `json:"token_ttl_hours" yaml:"token_ttl_hours"`
	TitleWorkers   int    `json:"title_workers" yaml:"title_workers"`
	TitleQueueSize int    `json:"title_queue_size" yaml:"title_queue_size"`
}

// DatabaseConfig holds connection settings for one driver. DSN wins when set.
type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"dbname" yaml:"dbname"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// Entitlements caps how many user messages an account may send per day.
type Entitlements struct {
	GuestMessagesPerDay   int `json:"guest_messages_per_day" yaml:"guest_messages_per_day"`
	RegularMessagesPerDay int `json:"regular_messages_per_day" yaml:"regular_messages_per_day"`
}

const (
	defaultAddress         = ":8090"
	defaultDriver          = "sqlite3"
	defaultTokenTTLHours   = 24
	defaultTitleWorkers    = 2
	defaultTitleQueueSize  = 64
	defaultGuestMessages   = 20
	defaultRegularMessages = 100
)

// Load reads configuration from the provided path (defaults to config.json).
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
// A .env file next to the working directory is loaded first so CHATVAULT_*
// variables can override file values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] load .env: %v", err)
	}
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.resolveSQLitePath(filepath.Dir(absPath)); err != nil {
		return nil, err
	}
	if _, ok := cfg.Databases[cfg.BasicConfig.Driver]; !ok {
		return nil, fmt.Errorf("database config for %s not found", cfg.BasicConfig.Driver)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CHATVAULT_DB"); v != "" {
		c.BasicConfig.Driver = v
	}
	if v := os.Getenv("CHATVAULT_ADDR"); v != "" {
		c.BasicConfig.ServerAddress = v
	}
	if v := os.Getenv("CHATVAULT_DSN"); v != "" {
		driver := c.BasicConfig.Driver
		if driver == "" {
			driver = defaultDriver
		}
		if c.Databases == nil {
			c.Databases = make(map[string]DatabaseConfig)
		}
		dbCfg := c.Databases[driver]
		dbCfg.DSN = v
		c.Databases[driver] = dbCfg
	}
	if v := os.Getenv("CHATVAULT_REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Enabled = true
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
	}
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = defaultAddress
	}
	if c.BasicConfig.Driver == "" {
		c.BasicConfig.Driver = defaultDriver
	}
	if c.BasicConfig.TokenTTLHours <= 0 {
		c.BasicConfig.TokenTTLHours = defaultTokenTTLHours
	}
	if c.BasicConfig.TitleWorkers <= 0 {
		c.BasicConfig.TitleWorkers = defaultTitleWorkers
	}
	if c.BasicConfig.TitleQueueSize <= 0 {
		c.BasicConfig.TitleQueueSize = defaultTitleQueueSize
	}
	if c.Entitlements.GuestMessagesPerDay <= 0 {
		c.Entitlements.GuestMessagesPerDay = defaultGuestMessages
	}
	if c.Entitlements.RegularMessagesPerDay <= 0 {
		c.Entitlements.RegularMessagesPerDay = defaultRegularMessages
	}
}

// resolveSQLitePath makes a relative sqlite file DSN relative to the config file.
func (c *Config) resolveSQLitePath(baseDir string) error {
	for _, name := range []string{"sqlite", "sqlite3"} {
		dbCfg, ok := c.Databases[name]
		if !ok {
			continue
		}
		if dbCfg.DSN == "" {
			return fmt.Errorf("%s dsn must be configured", name)
		}
		if strings.HasPrefix(dbCfg.DSN, "file:") || strings.HasPrefix(dbCfg.DSN, ":memory:") {
			continue
		}
		if !filepath.IsAbs(dbCfg.DSN) {
			dbCfg.DSN = filepath.Join(baseDir, dbCfg.DSN)
			c.Databases[name] = dbCfg
		}
	}
	return nil
}
