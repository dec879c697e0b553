package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type CacheBackend string

const (
	CacheNone   CacheBackend = "none"
	CacheMemory CacheBackend = "memory"
	CacheRedis  CacheBackend = "redis"
)

type LogCfg struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type RedisCfg struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	TTL      time.Duration `koanf:"ttl"`
	Prefix   string        `koanf:"prefix"`
}

type CacheCfg struct {
	Backend CacheBackend `koanf:"backend"` // none|memory|redis
	Redis   RedisCfg     `koanf:"redis"`
}

type DataCfg struct {
	Root   string `koanf:"root"`
	Filter string `koanf:"filter"` // CEL over meta
}

type BackendCfg struct {
	// Listen is the address of `bench backend serve`.
	Listen string `koanf:"listen"`
	// Local names the backend the server evaluates with.
	Local   string        `koanf:"local"`
	Timeout time.Duration `koanf:"timeout"`
}

type EngineConfig struct {
	Log         LogCfg     `koanf:"log"`
	MetricsPort int        `koanf:"metrics_port"` // 0 disables /metrics
	Cache       CacheCfg   `koanf:"cache"`
	Data        DataCfg    `koanf:"data"`
	Pipeline    string     `koanf:"pipeline"`
	Backend     BackendCfg `koanf:"backend"`
}

// LoadEngineConfig merges YAML (if present) with env-vars
// (prefix `BENCHML__`, delimiter `__`, e.g. BENCHML__CACHE__BACKEND).
func LoadEngineConfig(path string) (EngineConfig, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return EngineConfig{}, err
		}
	}
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return EngineConfig{}, fmt.Errorf("engine schema_version %q not supported (want %s)", sv, SupportedSchema)
	}

	if err := k.Load(env.Provider("BENCHML__", ".", envKey), nil); err != nil {
		return EngineConfig{}, err
	}

	var cfg EngineConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	if err := applyDefaults(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// envKey maps BENCHML__CACHE__REDIS__ADDR to cache.redis.addr.
func envKey(s string) string {
	s = s[len("BENCHML__"):]
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if i+1 < len(s) && s[i] == '_' && s[i+1] == '_' {
			out = append(out, '.')
			i++
			continue
		}
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

func applyDefaults(c *EngineConfig) error {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	switch c.Cache.Backend {
	case "":
		c.Cache.Backend = CacheMemory
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("cache backend %q: want none|memory|redis", c.Cache.Backend)
	}
	if c.Cache.Redis.Addr == "" {
		c.Cache.Redis.Addr = "localhost:6379"
	}
	if c.Cache.Redis.TTL == 0 {
		c.Cache.Redis.TTL = 24 * time.Hour
	}
	if c.Data.Root == "" {
		c.Data.Root = "./data"
	}
	if c.Backend.Listen == "" {
		c.Backend.Listen = ":50051"
	}
	if c.Backend.Local == "" {
		c.Backend.Local = "radial"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 30 * time.Second
	}
	return nil
}
