package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/matzehuels/stackpip/pkg/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STACKPIP_"

// FromEnv returns a copy of c with STACKPIP_* variables applied. Unset
// variables leave the file value alone; malformed numbers, booleans and
// durations are INVALID_CONFIG errors.
func (c Config) FromEnv() (Config, error) {
	e := envReader{}
	c.CacheDir = e.getenv("CACHE_DIR", c.CacheDir)
	c.Cache.Backend = e.getenv("CACHE_BACKEND", c.Cache.Backend)
	c.Cache.RedisURL = e.getenv("REDIS_URL", c.Cache.RedisURL)
	c.Cache.MongoURI = e.getenv("MONGO_URI", c.Cache.MongoURI)
	c.Cache.MongoDatabase = e.getenv("MONGO_DATABASE", c.Cache.MongoDatabase)
	c.LinkMode = e.getenv("LINK_MODE", c.LinkMode)
	c.Concurrency.Downloads = e.getenvInt("CONCURRENT_DOWNLOADS", c.Concurrency.Downloads)
	c.Concurrency.Builds = e.getenvInt("CONCURRENT_BUILDS", c.Concurrency.Builds)
	c.Concurrency.Installs = e.getenvInt("CONCURRENT_INSTALLS", c.Concurrency.Installs)
	c.CompileBytecode = e.getenvBool("COMPILE_BYTECODE", c.CompileBytecode)
	c.Python = e.getenv("PYTHON", c.Python)
	c.BuildCommand = e.getenv("BUILD_COMMAND", c.BuildCommand)
	c.ObjectStore.Endpoint = e.getenv("OBJECT_STORE_ENDPOINT", c.ObjectStore.Endpoint)
	c.ObjectStore.AccessKey = e.getenv("OBJECT_STORE_ACCESS_KEY", c.ObjectStore.AccessKey)
	c.ObjectStore.SecretKey = e.getenv("OBJECT_STORE_SECRET_KEY", c.ObjectStore.SecretKey)
	c.ObjectStore.UseSSL = e.getenvBool("OBJECT_STORE_USE_SSL", c.ObjectStore.UseSSL)
	c.HTTP.Timeout = e.getenvDuration("HTTP_TIMEOUT", c.HTTP.Timeout)
	c.HTTP.Retries = e.getenvInt("HTTP_RETRIES", c.HTTP.Retries)
	c.FailFast = e.getenvBool("FAIL_FAST", c.FailFast)
	return c, e.err
}

// envReader keeps the first parse error so FromEnv reads as a flat list.
type envReader struct {
	err error
}

func (e *envReader) lookup(k string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + k))
	return v, v != ""
}

func (e *envReader) fail(k, v, want string) {
	if e.err == nil {
		e.err = errors.New(errors.ErrCodeInvalidConfig, "%s%s=%q is not %s", EnvPrefix, k, v, want)
	}
}

func (e *envReader) getenv(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

func (e *envReader) getenvInt(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		e.fail(k, v, "a non-negative integer")
		return def
	}
	return n
}

func (e *envReader) getenvBool(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(k, v, "a boolean")
	return def
}

func (e *envReader) getenvDuration(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	e.fail(k, v, "a duration")
	return def
}
