// Package config loads tracker settings from defaults, an optional YAML
// file and RFC_ environment variables, in increasing precedence.
//
// Environment variables map to keys by splitting on the first underscore
// after the prefix:
//
//	RFC_WIKI_API_URL     -> wiki.api_url
//	RFC_PIPELINE_WORKERS -> pipeline.workers
//
// List values are separated by "|" since list page titles contain commas.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "RFC_"
	listSeparator     = "|"
	maxConfigFileSize = 1 << 20
)

const defaults = `
wiki:
  api_url: https://en.wikipedia.org/w/api.php
  user_agent: "rfc-tracker/1.0 (en:User:Dw31415)"
  requests_per_second: 2
  burst: 1
  kill_page: User:Dw31415/kill
rfc:
  list_pages:
    - "Wikipedia:Requests for comment/Politics, government, and law"
  max_pages: 5
  bot: Legobot
  results_page: User:DwAlphaBot/RfcEditStats
pipeline:
  workers: 5
  queue_size: 5
storage:
  local_path: ./data
report:
  dry_run: true
log:
  level: info
server:
  port: "8080"
`

// listKeys are split on listSeparator when read from the environment.
var listKeys = map[string]bool{
	"rfc.list_pages": true,
}

// Config is the full tracker configuration.
type Config struct {
	Wiki     Wiki     `koanf:"wiki"`
	RFC      RFC      `koanf:"rfc"`
	Pipeline Pipeline `koanf:"pipeline"`
	Storage  Storage  `koanf:"storage"`
	Report   Report   `koanf:"report"`
	Log      Log      `koanf:"log"`
	Server   Server   `koanf:"server"`
}

// Wiki configures the MediaWiki API client.
type Wiki struct {
	APIURL            string  `koanf:"api_url"`
	UserAgent         string  `koanf:"user_agent"`
	Username          string  `koanf:"username"`
	Password          string  `koanf:"password"`
	KillPage          string  `koanf:"kill_page"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// RFC names the pages and bot the tracker works with.
type RFC struct {
	ListPages   []string `koanf:"list_pages"`
	Bot         string   `koanf:"bot"`
	ResultsPage string   `koanf:"results_page"`
	MaxPages    int      `koanf:"max_pages"`
}

// Pipeline sizes the discovery worker pool.
type Pipeline struct {
	Workers   int `koanf:"workers"`
	QueueSize int `koanf:"queue_size"`
}

// Storage selects the record store. A bucket takes precedence over the
// local path.
type Storage struct {
	LocalPath       string `koanf:"local_path"`
	Bucket          string `koanf:"bucket"`
	CredentialsJSON string `koanf:"credentials_json"`
}

// Report controls publishing.
type Report struct {
	DryRun bool `koanf:"dry_run"`
}

// Log sets the log level: debug, info, warn or error.
type Log struct {
	Level string `koanf:"level"`
}

// Server configures the HTTP trigger service.
type Server struct {
	Port string `koanf:"port"`
}

// Load reads configuration. An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		content, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps RFC_SECTION_FIELD_NAME to section.field_name.
func envKey(name, value string) (string, any) {
	lower := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return "", nil
	}
	key := section + "." + field
	if listKeys[key] {
		var items []string
		for item := range strings.SplitSeq(value, listSeparator) {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return key, items
	}
	return key, value
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("Failed to close config file", "path", path, "error", err)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), maxConfigFileSize)
	}
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}

// Validate reports every setting that would stop the tracker from running.
func (c *Config) Validate() error {
	var errs []error
	if c.Wiki.APIURL == "" {
		errs = append(errs, errors.New("wiki.api_url is required"))
	}
	if len(c.RFC.ListPages) == 0 {
		errs = append(errs, errors.New("rfc.list_pages must name at least one page"))
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.queue_size must be positive, got %d", c.Pipeline.QueueSize))
	}
	if c.Wiki.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("wiki.requests_per_second must not be negative, got %g", c.Wiki.RequestsPerSecond))
	}
	if c.Storage.LocalPath == "" && c.Storage.Bucket == "" {
		errs = append(errs, errors.New("one of storage.local_path or storage.bucket is required"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// HasCredentials reports whether the bot should log in before editing.
func (c *Config) HasCredentials() bool {
	return c.Wiki.Username != "" && c.Wiki.Password != ""
}
