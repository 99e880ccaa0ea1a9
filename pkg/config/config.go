// Package config loads the service configuration from YAML with environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const envPrefix = "STORELOC_"

// Index backends
const (
	BackendMemory  = "memory"
	BackendPostGIS = "postgis"
)

// Config structure for YAML configuration
type Config struct {
	Server struct {
		Port           int     `yaml:"port"`
		RateLimit      float64 `yaml:"rate_limit"`
		Burst          int     `yaml:"burst"`
		StoresBasePath string  `yaml:"stores_base_path"`
	} `yaml:"server"`
	Index struct {
		Backend          string `yaml:"backend"`
		Partitions       int    `yaml:"partitions"`
		SnapshotPath     string `yaml:"snapshot_path"`
		SnapshotSchedule string `yaml:"snapshot_schedule"`
	} `yaml:"index"`
	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"db_name"`
		SSLMode  string `yaml:"ssl_mode"`
	} `yaml:"postgres"`
	Import struct {
		Source string `yaml:"source"`
		Sheet  string `yaml:"sheet"`
	} `yaml:"import"`
	ObjectStore struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"object_store"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	c := &Config{}
	c.Server.Port = 8080
	c.Server.RateLimit = 100
	c.Server.Burst = 200
	c.Server.StoresBasePath = "/api/stores"
	c.Index.Backend = BackendMemory
	c.Index.SnapshotSchedule = "@every 10m"
	c.Postgres.Host = "localhost"
	c.Postgres.Port = 5432
	c.Postgres.User = "postgres"
	c.Postgres.DBName = "stores"
	c.Postgres.SSLMode = "disable"
	c.Import.Source = "data/stores.csv"
	c.Log.Level = "info"
	c.Log.Format = "text"
	return c
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config")
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", path)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return c, c.Validate()
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides fields from STORELOC_* variables, e.g. STORELOC_POSTGRES_HOST
func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"SERVER_STORES_BASE_PATH": &c.Server.StoresBasePath,
		"INDEX_BACKEND":           &c.Index.Backend,
		"INDEX_SNAPSHOT_PATH":     &c.Index.SnapshotPath,
		"INDEX_SNAPSHOT_SCHEDULE": &c.Index.SnapshotSchedule,
		"POSTGRES_HOST":           &c.Postgres.Host,
		"POSTGRES_USER":           &c.Postgres.User,
		"POSTGRES_PASSWORD":       &c.Postgres.Password,
		"POSTGRES_DB_NAME":        &c.Postgres.DBName,
		"POSTGRES_SSL_MODE":       &c.Postgres.SSLMode,
		"IMPORT_SOURCE":           &c.Import.Source,
		"IMPORT_SHEET":            &c.Import.Sheet,
		"OBJECT_STORE_ENDPOINT":   &c.ObjectStore.Endpoint,
		"OBJECT_STORE_ACCESS_KEY": &c.ObjectStore.AccessKey,
		"OBJECT_STORE_SECRET_KEY": &c.ObjectStore.SecretKey,
		"LOG_LEVEL":               &c.Log.Level,
		"LOG_FORMAT":              &c.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SERVER_PORT":      &c.Server.Port,
		"SERVER_BURST":     &c.Server.Burst,
		"INDEX_PARTITIONS": &c.Index.Partitions,
		"POSTGRES_PORT":    &c.Postgres.Port,
	}
	for key, dst := range ints {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return errors.Wrapf(err, "invalid %s%s", envPrefix, key)
			}
			*dst = n
		}
	}

	if v, ok := lookup(envPrefix + "SERVER_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid %sSERVER_RATE_LIMIT", envPrefix)
		}
		c.Server.RateLimit = f
	}
	if v, ok := lookup(envPrefix + "OBJECT_STORE_USE_SSL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %sOBJECT_STORE_USE_SSL", envPrefix)
		}
		c.ObjectStore.UseSSL = b
	}
	return nil
}

// Validate checks the values that cannot be caught later with a useful message
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case BackendMemory, BackendPostGIS:
	default:
		return errors.Errorf("unknown index backend %q", c.Index.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 || c.Server.Burst < 0 {
		return errors.New("rate limit and burst must not be negative")
	}
	if c.Index.Partitions < 0 {
		return errors.Errorf("invalid partition count %d", c.Index.Partitions)
	}
	if !strings.HasPrefix(c.Server.StoresBasePath, "/") {
		return errors.Errorf("stores base path %q must start with /", c.Server.StoresBasePath)
	}
	return nil
}
