// Package config loads learnhubd's configuration from defaults, an optional
// YAML file and LEARNHUB_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	learnrpc "github.com/roasbeef/learnhub/internal/api/grpc"
	"github.com/roasbeef/learnhub/internal/build"
	"github.com/roasbeef/learnhub/internal/llm"
	"github.com/roasbeef/learnhub/internal/plan"
	"github.com/roasbeef/learnhub/internal/store"
	"github.com/roasbeef/learnhub/internal/summary"
	"github.com/roasbeef/learnhub/internal/transcript"
	"github.com/roasbeef/learnhub/internal/web"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable, e.g.
	// LEARNHUB_WEB_ADDR for web.addr.
	EnvPrefix = "LEARNHUB"

	// DefaultConfigName is the config file looked up in the default
	// directories when none is given explicitly.
	DefaultConfigName = "learnhub"

	// DefaultSweepInterval is how often expired cache entries, limiter
	// buckets and plans are swept.
	DefaultSweepInterval = 5 * time.Minute
)

// aliases are conventional variable names accepted alongside the prefixed
// ones.
var aliases = map[string][]string{
	"llm.api_key":       {"GEMINI_API_KEY"},
	"llm.model":         {"GEMINI_MODEL"},
	"plan.workflow_url": {"N8N_WEBHOOK_URL"},
}

// CacheConfig configures the summary cache.
type CacheConfig struct {
	// RedisURL, when set, adds a shared redis tier behind the in-process
	// cache.
	RedisURL string `mapstructure:"redis_url"`

	// Prefix namespaces cache keys in redis.
	Prefix string `mapstructure:"prefix"`
}

// Config is the full daemon configuration.
type Config struct {
	Log        build.LogConfig          `mapstructure:"log"`
	Web        web.Config               `mapstructure:"web"`
	GRPC       learnrpc.ServerConfig    `mapstructure:"grpc"`
	LLM        llm.Config               `mapstructure:"llm"`
	Summary    summary.Config           `mapstructure:"summary"`
	Transcript transcript.YouTubeConfig `mapstructure:"transcript"`
	Plan       plan.Config              `mapstructure:"plan"`
	Store      store.Config             `mapstructure:"store"`
	Cache      CacheConfig              `mapstructure:"cache"`

	// SweepInterval is the period of the background sweepers.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Log:           build.DefaultLogConfig(),
		Web:           web.DefaultConfig(),
		GRPC:          learnrpc.DefaultServerConfig(),
		LLM:           llm.DefaultConfig(),
		Summary:       summary.DefaultConfig(),
		Transcript:    transcript.DefaultYouTubeConfig(),
		Plan:          plan.DefaultConfig(),
		Store:         store.DefaultConfig(),
		Cache:         CacheConfig{Prefix: "learnhub:summary:"},
		SweepInterval: DefaultSweepInterval,
	}
}

// New returns a viper instance primed with defaults and environment
// bindings. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	setDefaults(v, "", reflect.ValueOf(Default()))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range aliases {
		envs := append([]string{envName(key)}, names...)
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}

	return v
}

// Load reads configFile, or learnhub.yaml from the default directories when
// configFile is empty, and returns the merged configuration. A missing
// default file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".learnhub"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings no component could run with. A missing LLM key
// is not fatal here; summaries fail with a configuration error instead.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case store.BackendMemory, store.BackendSqlite, store.BackendPostgres,
		store.BackendRedis:

	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Store.Backend == store.BackendPostgres &&
		c.Store.PostgresDSN == "" {

		return errors.New("store.postgres_dsn is required for the " +
			"postgres backend")
	}
	if c.Store.Backend == store.BackendRedis && c.Store.RedisURL == "" {
		return errors.New("store.redis_url is required for the redis " +
			"backend")
	}
	if c.Web.RateLimit < 1 {
		return fmt.Errorf("web.rate_limit must be positive, got %d",
			c.Web.RateLimit)
	}
	if c.Summary.Temperature < 0 ||
		c.Summary.Temperature > summary.MaxTemperature {

		return fmt.Errorf("summary.temperature must be within [0, %v], "+
			"got %v", summary.MaxTemperature, c.Summary.Temperature)
	}
	if c.Summary.MaxTranscriptChars < 1 {
		return fmt.Errorf("summary.max_transcript_chars must be "+
			"positive, got %d", c.Summary.MaxTranscriptChars)
	}

	return nil
}

// envName returns the prefixed environment variable for a config key.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// setDefaults registers every leaf of val as a viper default so that
// AutomaticEnv can override keys that appear in no config file.
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	typ := val.Type()

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" || !field.IsExported() {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		fv := val.Field(i)
		if fv.Kind() == reflect.Struct {
			setDefaults(v, key, fv)
			continue
		}

		v.SetDefault(key, fv.Interface())
	}
}
