package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	DSN            string                `yaml:"-"`
	RedisURL       string                `yaml:"-"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	Timezone       string                `yaml:"timezone"`
	Lookup         LookupConfig          `yaml:"lookup"`
}

type DatabaseRuntimeConfig struct {
	Driver   string            `yaml:"driver"` // mysql | postgres | sqlite
	DSN      string            `yaml:"dsn"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Name     string            `yaml:"name"`
	Charset  string            `yaml:"charset"`
	Loc      string            `yaml:"loc"`
	SSLMode  string            `yaml:"sslmode"`
	Params   map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	Enable   bool              `yaml:"enable"`
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Params   map[string]string `yaml:"params"`
}

type RuntimePathsConfig struct {
	Logs     string `yaml:"logs"`
	Catalogs string `yaml:"catalogs"`
}

// LookupConfig tunes the lookup subsystem.
type LookupConfig struct {
	DefaultLimit      int           `yaml:"default_limit"`
	MaxLimit          int           `yaml:"max_limit"`
	CatalogCacheTTL   time.Duration `yaml:"catalog_cache_ttl"`
	DataCacheTTL      time.Duration `yaml:"data_cache_ttl"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	SeedStatic        *bool         `yaml:"seed_static"`
}

// Load reads the YAML file at configPath, then applies FORMDECK_* env overrides.
// A missing file is not an error: defaults plus env are used.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := defaultAppConfig()
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	case os.IsNotExist(err) && path == DefaultConfigPath:
	default:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	applyEnv(&cfg)
	normalize(&cfg)

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d in %q, expected 1-65535", cfg.Port, path)
	}
	if cfg.Database.Driver != DriverSQLite && (cfg.Database.Port < 1 || cfg.Database.Port > 65535) {
		return nil, fmt.Errorf("invalid database.port %d in %q, expected 1-65535", cfg.Database.Port, path)
	}
	switch cfg.Database.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database.driver %q in %q", cfg.Database.Driver, path)
	}
	if cfg.Redis.DB < 0 {
		return nil, fmt.Errorf("invalid redis.db %d in %q, expected >= 0", cfg.Redis.DB, path)
	}
	if cfg.Lookup.DefaultLimit > cfg.Lookup.MaxLimit {
		return nil, fmt.Errorf("lookup.default_limit %d exceeds lookup.max_limit %d", cfg.Lookup.DefaultLimit, cfg.Lookup.MaxLimit)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Driver:   defaultDBDriver,
			Host:     defaultDBHost,
			User:     defaultDBUser,
			Password: defaultDBPassword,
			Name:     defaultDBName,
			Charset:  defaultDBCharset,
			Loc:      defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Lookup: LookupConfig{
			DefaultLimit:      defaultLookupLimit,
			MaxLimit:          defaultLookupMaxLimit,
			CatalogCacheTTL:   defaultCatalogCacheTTL,
			DataCacheTTL:      defaultDataCacheTTL,
			ReconcileInterval: defaultReconcileInterval,
		},
	}
}

func applyEnv(cfg *AppConfig) {
	if v, ok := lookupEnvInt("PORT"); ok {
		cfg.Port = v
	}
	if v, ok := lookupEnv("ENV"); ok {
		cfg.Env = v
	}
	if v, ok := lookupEnv("DB_DRIVER"); ok {
		cfg.Database.Driver = v
	}
	if v, ok := lookupEnv("DB_DSN"); ok {
		cfg.Database.DSN = v
	}
	if v, ok := lookupEnv("DB_HOST"); ok {
		cfg.Database.Host = v
	}
	if v, ok := lookupEnvInt("DB_PORT"); ok {
		cfg.Database.Port = v
	}
	if v, ok := lookupEnv("DB_USER"); ok {
		cfg.Database.User = v
	}
	if v, ok := lookupEnv("DB_PASSWORD"); ok {
		cfg.Database.Password = v
	}
	if v, ok := lookupEnv("DB_NAME"); ok {
		cfg.Database.Name = v
	}
	if v, ok := lookupEnv("REDIS_URL"); ok {
		cfg.Redis.URL = v
		cfg.Redis.Enable = true
	}
	if v, ok := lookupEnv("JWT_SECRET"); ok {
		cfg.JWTSecret = v
	}
	if v, ok := lookupEnv("TIMEZONE"); ok {
		cfg.Timezone = v
	}
	if v, ok := lookupEnv("LOG_DIR"); ok {
		cfg.Paths.Logs = v
	}
	if v, ok := lookupEnv("CATALOG_DIR"); ok {
		cfg.Paths.Catalogs = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func lookupEnvInt(key string) (int, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

func (c *AppConfig) LogDir() string {
	if c == nil {
		return ResolveRuntimePath("", "logs")
	}
	return ResolveRuntimePath(c.Paths.Logs, "logs")
}

// CatalogDir returns the directory of extra static catalogs, or "" when unset.
func (c *AppConfig) CatalogDir() string {
	if c == nil || c.Paths.Catalogs == "" {
		return ""
	}
	return ResolveRuntimePath(c.Paths.Catalogs, "catalogs")
}

// ShouldSeedStatic defaults to true.
func (c *AppConfig) ShouldSeedStatic() bool {
	return c.Lookup.SeedStatic == nil || *c.Lookup.SeedStatic
}
