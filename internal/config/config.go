package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	RAMeanArithmetic = "arithmetic"
	RAMeanCircular   = "circular"

	SourceKeys     = "keys"
	SourceTracklet = "tracklet"
)

// Config models neodisc.yml.
type Config struct {
	Index struct {
		Backend       string        `yaml:"backend"`
		DSN           string        `yaml:"dsn"`
		LookupTimeout time.Duration `yaml:"lookup_timeout"`
		RetryAttempts int           `yaml:"retry_attempts"`
		CacheTTL      time.Duration `yaml:"cache_ttl"`
		CacheEntries  int           `yaml:"cache_entries"`
	} `yaml:"index"`
	Catalog struct {
		MaxQ float64 `yaml:"max_q"`
		File string  `yaml:"file"`
	} `yaml:"catalog"`
	Tracklet struct {
		Window time.Duration `yaml:"window"`
		Source string        `yaml:"source"`
	} `yaml:"tracklet"`
	Circumstance struct {
		RAMean string `yaml:"ra_mean"`
	} `yaml:"circumstance"`
	Bands    Bands                     `yaml:"bands"`
	Stations map[string]StationOverride `yaml:"stations"`
	Pipeline struct {
		Workers  int `yaml:"workers"`
		LogEvery int `yaml:"log_every"`
	} `yaml:"pipeline"`
}

// Bands is the photometric band correction table.
type Bands struct {
	Reference string             `yaml:"reference"`
	Offsets   map[string]float64 `yaml:"offsets"`
	Blank     float64            `yaml:"blank"`
	Default   float64            `yaml:"default"`
}

type StationOverride struct {
	Name    string `yaml:"name"`
	Project string `yaml:"project"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with neodisc init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case BackendSQLite:
	case BackendPostgres:
		if c.Index.DSN == "" {
			return fmt.Errorf("config.index.dsn is required for backend postgres")
		}
	default:
		return fmt.Errorf("config.index.backend must be %q or %q, got %q", BackendSQLite, BackendPostgres, c.Index.Backend)
	}
	if c.Index.LookupTimeout < 0 {
		return fmt.Errorf("config.index.lookup_timeout must not be negative")
	}
	if c.Index.RetryAttempts < 0 {
		return fmt.Errorf("config.index.retry_attempts must not be negative")
	}
	if c.Index.CacheTTL < 0 {
		return fmt.Errorf("config.index.cache_ttl must not be negative")
	}
	if c.Index.CacheTTL > 0 && c.Index.CacheEntries <= 0 {
		return fmt.Errorf("config.index.cache_entries must be positive when the cache is enabled")
	}
	if c.Catalog.MaxQ < 0 {
		return fmt.Errorf("config.catalog.max_q must not be negative")
	}
	if c.Tracklet.Window <= 0 {
		return fmt.Errorf("config.tracklet.window must be positive")
	}
	if c.Tracklet.Source != SourceKeys && c.Tracklet.Source != SourceTracklet {
		return fmt.Errorf("config.tracklet.source must be %q or %q", SourceKeys, SourceTracklet)
	}
	if c.Circumstance.RAMean != RAMeanArithmetic && c.Circumstance.RAMean != RAMeanCircular {
		return fmt.Errorf("config.circumstance.ra_mean must be %q or %q", RAMeanArithmetic, RAMeanCircular)
	}
	if err := c.Bands.Validate(); err != nil {
		return err
	}
	for code := range c.Stations {
		if code == "" {
			return fmt.Errorf("config.stations contains empty station code")
		}
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("config.pipeline.workers must not be negative")
	}
	if c.Pipeline.LogEvery < 0 {
		return fmt.Errorf("config.pipeline.log_every must not be negative")
	}
	return nil
}

// Validate checks the band table: single-character codes and a zero-offset
// reference band.
func (b Bands) Validate() error {
	if len(b.Offsets) == 0 {
		return fmt.Errorf("config.bands.offsets is required")
	}
	for code := range b.Offsets {
		if utf8.RuneCountInString(code) != 1 {
			return fmt.Errorf("band code %q must be a single character", code)
		}
	}
	if b.Reference == "" {
		return fmt.Errorf("config.bands.reference is required")
	}
	ref, ok := b.Offsets[b.Reference]
	if !ok {
		return fmt.Errorf("reference band %q missing from config.bands.offsets", b.Reference)
	}
	if ref != 0 {
		return fmt.Errorf("reference band %q must have offset 0, got %v", b.Reference, ref)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "neodisc.yml")
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.NewDecoder(bytes.NewBufferString(DefaultYAML)).Decode(&cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	// offsets replace the default table wholesale rather than merging into it
	var probe struct {
		Bands struct {
			Offsets map[string]float64 `yaml:"offsets"`
		} `yaml:"bands"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if probe.Bands.Offsets != nil {
		cfg.Bands.Offsets = nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config.
func (c *Config) YAML() (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const DefaultYAML = `index:
  backend: sqlite
  dsn: ""
  lookup_timeout: 0s
  retry_attempts: 3
  # lookups are reused within one object, so entries need not live long
  cache_ttl: 1m
  cache_entries: 10000

catalog:
  # NEO selection, perihelion distance in au
  max_q: 1.3
  file: ""

tracklet:
  window: 12h
  source: keys

circumstance:
  ra_mean: arithmetic

bands:
  reference: V
  blank: -0.8
  default: 0.0
  offsets:
    V: 0.0
    v: 0.0
    B: -0.8
    U: -1.3
    R: 0.4
    I: 0.8
    g: -0.35
    r: 0.14
    i: 0.32
    z: 0.26
    y: 0.32
    u: 2.5
    w: -0.13
    c: -0.05
    o: 0.33
    G: 0.28
    J: 1.2
    H: 1.4
    K: 1.7
    C: 0.4
    W: 0.4
    L: 0.2
    Y: 0.7

stations: {}

pipeline:
  workers: 0
  log_every: 1000
`
