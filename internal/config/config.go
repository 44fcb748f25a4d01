// Package config loads ingest settings from defaults, an optional YAML file
// and GAMEVAULT_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	yaml "gopkg.in/yaml.v3"

	"github.com/freeeve/gamevault/internal/governor"
	"github.com/freeeve/gamevault/internal/retry"
)

// EnvPrefix prefixes environment overrides, e.g. GAMEVAULT_MAX_RETRIES.
const EnvPrefix = "GAMEVAULT_"

// Config holds every recognized option. YAML keys and env names derive from
// the yaml tags.
type Config struct {
	MaxOpenFiles        int           `yaml:"max_open_files" validate:"gte=1"`
	DownloadConcurrency int           `yaml:"download_concurrency" validate:"gte=1"`
	WorkerPoolSize      int           `yaml:"worker_pool_size" validate:"gte=0"` // 0 = NumCPU-1
	DBSubBatchSize      int           `yaml:"db_sub_batch_size" validate:"gte=1,lte=5000"`
	MaxRetries          int           `yaml:"max_retries" validate:"gte=0,lte=50"`
	RetryBaseDelay      time.Duration `yaml:"retry_base_delay" validate:"gte=0"`

	DatabaseDriver     string `yaml:"database_driver" validate:"oneof=postgres sqlite"`
	DatabaseURL        string `yaml:"database_url" validate:"required"`
	DBMaxOpenConns     int    `yaml:"db_max_open_conns" validate:"gte=0"`
	ChunkSize          int    `yaml:"chunk_size" validate:"gte=1024"`
	ResolveParallelism int    `yaml:"resolve_parallelism" validate:"gte=1"`
	RedisURL           string `yaml:"redis_url" validate:"omitempty,url"`

	ECODir     string `yaml:"eco_dir"`
	WatchDir   string `yaml:"watch_dir"`
	CatalogURL string `yaml:"catalog_url" validate:"omitempty,url"`
	TempDir    string `yaml:"temp_dir"`

	AcquireTimeout time.Duration `yaml:"acquire_timeout" validate:"gte=0"`
	ReportInterval time.Duration `yaml:"report_interval" validate:"gte=0"`
	LogLevel       string        `yaml:"log_level" validate:"oneof=trace debug info warn error"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		MaxOpenFiles:        4,
		DownloadConcurrency: 2,
		WorkerPoolSize:      0,
		DBSubBatchSize:      50,
		MaxRetries:          5,
		RetryBaseDelay:      100 * time.Millisecond,
		DatabaseDriver:      "sqlite",
		DatabaseURL:         "gamevault.db",
		ChunkSize:           4 << 20,
		ResolveParallelism:  8,
		ReportInterval:      10 * time.Second,
		LogLevel:            "info",
	}
}

// Load applies the YAML file at path (if non-empty) and then the
// environment on top of the defaults, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.applyYAML(raw); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyYAML(raw []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// applyEnv overrides fields from GAMEVAULT_<YAML_KEY> variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	v := reflect.ValueOf(c).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		key := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if key == "" {
			continue
		}
		name := EnvPrefix + strings.ToUpper(key)
		raw, ok := lookup(name)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		f := v.Field(i)
		switch {
		case f.Type() == durationType:
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			f.SetInt(int64(d))
		case f.Kind() == reflect.Int:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			f.SetInt(int64(n))
		case f.Kind() == reflect.String:
			f.SetString(raw)
		}
	}
	return nil
}

var validate = validator.New()

// Validate checks every field constraint and reports all violations.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fieldKeys := yamlKeys()
	var details strings.Builder
	for _, fe := range verrs {
		if details.Len() > 0 {
			details.WriteString("; ")
		}
		key := fieldKeys[fe.StructField()]
		switch fe.Tag() {
		case "required":
			fmt.Fprintf(&details, "%s is required", key)
		case "oneof":
			fmt.Fprintf(&details, "%s must be one of [%s]", key, fe.Param())
		case "gte":
			fmt.Fprintf(&details, "%s must be at least %s", key, fe.Param())
		case "lte":
			fmt.Fprintf(&details, "%s must be at most %s", key, fe.Param())
		case "url":
			fmt.Fprintf(&details, "%s must be a URL", key)
		default:
			fmt.Fprintf(&details, "%s failed %s", key, fe.Tag())
		}
	}
	return fmt.Errorf("invalid config: %s", details.String())
}

func yamlKeys() map[string]string {
	t := reflect.TypeOf(Config{})
	keys := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		keys[t.Field(i).Name] = strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
	}
	return keys
}

// RetryPolicy is the shared retry policy.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{MaxRetries: c.MaxRetries, BaseDelay: c.RetryBaseDelay, Multiplier: 2}
}

// GovernorConfig sizes the resource gates.
func (c Config) GovernorConfig() governor.Config {
	return governor.Config{
		MaxOpenFiles:        c.MaxOpenFiles,
		DownloadConcurrency: c.DownloadConcurrency,
		WorkerPoolSize:      c.WorkerPoolSize,
		AcquireTimeout:      c.AcquireTimeout,
	}
}
