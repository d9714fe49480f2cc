// Package config loads stackpip settings.
//
// Values come from three layers, later ones winning:
//
//  1. a YAML file (stackpip.yaml in the working directory, or --config)
//  2. STACKPIP_* environment variables
//  3. command-line flags, applied by the CLI
//
// [Config.WithDefaults] fills whatever is still unset and [Config.Validate]
// rejects values no component can use.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/stackpip/pkg/cache"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/fetch"
	"github.com/matzehuels/stackpip/pkg/install"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "stackpip.yaml"

const appName = "stackpip"

// Defaults applied by WithDefaults.
const (
	DefaultDownloads   = 8
	DefaultBuilds      = 4
	DefaultInstalls    = 4
	DefaultHTTPTimeout = 60 * time.Second
	DefaultHTTPRetries = 3
	DefaultPython      = "python3"
)

// Config is the complete set of tunables.
type Config struct {
	CacheDir        string                  `yaml:"cache_dir"`
	Cache           CacheConfig             `yaml:"cache"`
	LinkMode        string                  `yaml:"link_mode"`
	Concurrency     Concurrency             `yaml:"concurrency"`
	CompileBytecode bool                    `yaml:"compile_bytecode"`
	Python          string                  `yaml:"python"`
	BuildCommand    string                  `yaml:"build_command"`
	ObjectStore     fetch.ObjectStoreConfig `yaml:"object_store"`
	HTTP            HTTPConfig              `yaml:"http"`
	FailFast        bool                    `yaml:"fail_fast"`
}

// CacheConfig selects the build-result cache backend.
type CacheConfig struct {
	Backend       string `yaml:"backend"`
	RedisURL      string `yaml:"redis_url"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// Concurrency bounds each parallel stage.
type Concurrency struct {
	Downloads int `yaml:"downloads"`
	Builds    int `yaml:"builds"`
	Installs  int `yaml:"installs"`
}

// HTTPConfig tunes registry and URL downloads.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// Load reads path. An empty path means FileName in the working directory,
// which may be absent; an explicit path must exist. Unknown keys are
// rejected.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = FileName
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &Config{}, nil
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s", path)
	}
	return cfg, nil
}

// Parse decodes YAML from r.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode config")
	}
	return &cfg, nil
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir()
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = cache.BackendFile
	}
	if c.Cache.MongoDatabase == "" {
		c.Cache.MongoDatabase = appName
	}
	if c.Concurrency.Downloads <= 0 {
		c.Concurrency.Downloads = DefaultDownloads
	}
	if c.Concurrency.Builds <= 0 {
		c.Concurrency.Builds = DefaultBuilds
	}
	if c.Concurrency.Installs <= 0 {
		c.Concurrency.Installs = DefaultInstalls
	}
	if c.Python == "" {
		c.Python = DefaultPython
	}
	if c.BuildCommand == "" {
		c.BuildCommand = c.Python
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.HTTP.Retries <= 0 {
		c.HTTP.Retries = DefaultHTTPRetries
	}
	return c
}

// Validate reports the first setting that cannot be honored.
func (c Config) Validate() error {
	if _, err := install.ParseLinkMode(c.LinkMode); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "link_mode")
	}
	switch c.Cache.Backend {
	case "", cache.BackendFile, cache.BackendNone:
	case cache.BackendRedis:
		if c.Cache.RedisURL == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.redis_url is required for the redis backend")
		}
	case cache.BackendMongo:
		if c.Cache.MongoURI == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.mongo_uri is required for the mongo backend")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache.backend %q (want file, redis, mongo or none)", c.Cache.Backend)
	}
	if c.Concurrency.Downloads < 0 || c.Concurrency.Builds < 0 || c.Concurrency.Installs < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "concurrency limits must not be negative")
	}
	if c.HTTP.Timeout < 0 || c.HTTP.Retries < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "http.timeout and http.retries must not be negative")
	}
	return nil
}

// Mode returns the parsed link mode. Call Validate first.
func (c Config) Mode() install.LinkMode {
	m, _ := install.ParseLinkMode(c.LinkMode)
	return m
}

// CacheOptions maps the cache section onto cache.Open options.
func (c Config) CacheOptions() cache.Options {
	return cache.Options{
		Backend:       c.Cache.Backend,
		Dir:           filepath.Join(c.CacheDir, "builds"),
		RedisURL:      c.Cache.RedisURL,
		MongoURI:      c.Cache.MongoURI,
		MongoDatabase: c.Cache.MongoDatabase,
	}
}

// WheelDir is where the wheel store lives.
func (c Config) WheelDir() string { return filepath.Join(c.CacheDir, "wheels") }

// Fetcher assembles the artifact router: http(s) always, file:// for local
// paths and s3:// when an object store endpoint is configured.
func (c Config) Fetcher() (*fetch.Router, error) {
	r := fetch.NewRouter(fetch.NewHTTPFetcher(c.HTTP.Timeout, c.HTTP.Retries))
	if c.ObjectStore.Endpoint != "" {
		s3, err := fetch.NewObjectStoreFetcher(c.ObjectStore)
		if err != nil {
			return nil, err
		}
		r.Handle("s3", s3)
	}
	return r, nil
}

// DefaultCacheDir follows XDG: $XDG_CACHE_HOME/stackpip, else
// ~/.cache/stackpip, else a directory under the system temp dir.
func DefaultCacheDir() string {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName)
	}
	return filepath.Join(home, ".cache", appName)
}
