package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ragkb/internal/chunker"
	"ragkb/internal/domain"
	"ragkb/internal/engine"
	"ragkb/internal/scoring"
)

// ThresholdsConfig holds the relevance cut-off per scoring strategy.
type ThresholdsConfig struct {
	Cosine float64 `yaml:"cosine"`
	BM25   float64 `yaml:"bm25"`
}

// BM25Config holds the BM25 tuning constants.
type BM25Config struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// RetrievalConfig configures chunking, indexing and scoring.
type RetrievalConfig struct {
	Strategy       string           `yaml:"strategy"`
	ChunkSize      int              `yaml:"chunk_size"`
	Overlap        int              `yaml:"overlap"`
	MinTokenLength int              `yaml:"min_token_length"`
	TopK           int              `yaml:"top_k"`
	Thresholds     ThresholdsConfig `yaml:"thresholds"`
	BM25           BM25Config       `yaml:"bm25"`
	CacheSize      int              `yaml:"cache_size"`
	Workers        int              `yaml:"workers"`
}

// SQLiteConfig contains the location of the SQLite database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig selects and configures the document store implementation.
type StoreConfig struct {
	Type   string        `yaml:"type"` // memory, sqlite
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
}

// LoaderConfig configures which files are read from a directory.
type LoaderConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
}

// WatchConfig configures directory watching.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr               string `yaml:"addr"`
	ReadTimeoutSec     int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec    int    `yaml:"write_timeout_sec"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"` // frequency, none
	MaxSentences int    `yaml:"max_sentences"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Env   string `yaml:"env"`   // local, dev, prod
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Store      StoreConfig      `yaml:"store"`
	Loader     LoaderConfig     `yaml:"loader"`
	Watch      WatchConfig      `yaml:"watch"`
	Server     ServerConfig     `yaml:"server"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Values of the form ${VAR} and ${VAR:-default} are taken from the environment.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*AppConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragkb/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragkb/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragkb", "config.yaml"), nil
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ragkb.db"
	}
	return filepath.Join(home, ".config", "ragkb", "kb.db")
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		Retrieval: RetrievalConfig{
			Strategy:  string(scoring.KindBM25),
			ChunkSize: chunker.DefaultChunkSize,
			Overlap:   chunker.DefaultOverlap,
			TopK:      engine.DefaultTopK,
			Thresholds: ThresholdsConfig{
				Cosine: scoring.DefaultCosineThreshold,
				BM25:   scoring.DefaultBM25Threshold,
			},
			BM25:      BM25Config{K1: scoring.DefaultK1, B: scoring.DefaultB},
			CacheSize: 256,
		},
		Store:      StoreConfig{Type: "memory"},
		Loader:     LoaderConfig{Extensions: []string{".txt", ".md"}},
		Watch:      WatchConfig{DebounceMS: 500},
		Server:     ServerConfig{Addr: ":8080", ReadTimeoutSec: 10, WriteTimeoutSec: 10, ShutdownTimeoutSec: 10},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 3},
		Logging:    LoggingConfig{Env: "local"},
	}
}

// ApplyDefaults fills empty fields with default values.
func (c *AppConfig) ApplyDefaults() {
	if c.Retrieval.Strategy == "" {
		c.Retrieval.Strategy = string(scoring.KindBM25)
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Store.Type == "sqlite" {
		if c.Store.SQLite == nil {
			c.Store.SQLite = &SQLiteConfig{}
		}
		if c.Store.SQLite.Path == "" {
			c.Store.SQLite.Path = defaultSQLitePath()
		}
	}
	if len(c.Loader.Extensions) == 0 {
		c.Loader.Extensions = []string{".txt", ".md"}
	}
	if c.Watch.DebounceMS <= 0 {
		c.Watch.DebounceMS = 500
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = 10
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = 10
	}
	if c.Server.ShutdownTimeoutSec <= 0 {
		c.Server.ShutdownTimeoutSec = 10
	}
	if c.Summarizer.Type == "" {
		c.Summarizer.Type = "frequency"
	}
	if c.Summarizer.MaxSentences <= 0 {
		c.Summarizer.MaxSentences = 3
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "local"
	}
}

// Validate checks the configuration for correctness. Every error wraps domain.ErrInvalidConfig.
func (c *AppConfig) Validate() error {
	if _, err := c.EngineOptions(); err != nil {
		return err
	}
	if _, err := chunker.New(c.Retrieval.ChunkSize, c.Retrieval.Overlap); err != nil {
		return err
	}
	if c.Retrieval.MinTokenLength < 0 {
		return invalid("retrieval.min_token_length must not be negative, got %d", c.Retrieval.MinTokenLength)
	}
	if c.Retrieval.TopK < 0 {
		return invalid("retrieval.top_k must not be negative, got %d", c.Retrieval.TopK)
	}
	for name, th := range map[string]float64{"cosine": c.Retrieval.Thresholds.Cosine, "bm25": c.Retrieval.Thresholds.BM25} {
		if math.IsNaN(th) || math.IsInf(th, 0) {
			return invalid("retrieval.thresholds.%s must be finite, got %v", name, th)
		}
	}
	if c.Retrieval.CacheSize < 0 {
		return invalid("retrieval.cache_size must not be negative, got %d", c.Retrieval.CacheSize)
	}
	switch c.Store.Type {
	case "memory":
	case "sqlite":
		if c.Store.SQLite == nil || c.Store.SQLite.Path == "" {
			return invalid("store.sqlite.path is required for the sqlite store")
		}
	default:
		return invalid("store.type must be \"memory\" or \"sqlite\", got %q", c.Store.Type)
	}
	for _, ext := range c.Loader.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return invalid("loader.extensions entries must start with a dot, got %q", ext)
		}
	}
	switch c.Summarizer.Type {
	case "frequency", "none":
	default:
		return invalid("summarizer.type must be \"frequency\" or \"none\", got %q", c.Summarizer.Type)
	}
	switch c.Logging.Env {
	case "local", "dev", "prod":
	default:
		return invalid("logging.env must be local, dev or prod, got %q", c.Logging.Env)
	}
	return nil
}

// Strategy returns the configured scoring strategy.
func (c *AppConfig) Strategy() (scoring.Strategy, error) {
	s, err := scoring.Parse(c.Retrieval.Strategy)
	if err != nil {
		return scoring.Strategy{}, err
	}
	if s.Kind == scoring.KindBM25 {
		s = scoring.BM25(c.Retrieval.BM25.K1, c.Retrieval.BM25.B)
	}
	if err := s.Validate(); err != nil {
		return scoring.Strategy{}, err
	}
	return s, nil
}

// Threshold returns the relevance cut-off for the configured strategy.
func (c *AppConfig) Threshold(s scoring.Strategy) float64 {
	if s.Kind == scoring.KindCosine {
		return c.Retrieval.Thresholds.Cosine
	}
	return c.Retrieval.Thresholds.BM25
}

// EngineOptions translates the retrieval section into engine options.
func (c *AppConfig) EngineOptions() (engine.Options, error) {
	s, err := c.Strategy()
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Strategy:       s,
		ChunkSize:      c.Retrieval.ChunkSize,
		Overlap:        c.Retrieval.Overlap,
		MinTokenLength: c.Retrieval.MinTokenLength,
		TopK:           c.Retrieval.TopK,
		Threshold:      c.Threshold(s),
		CacheSize:      c.Retrieval.CacheSize,
		Workers:        c.Retrieval.Workers,
	}, nil
}

// Debounce returns the watcher debounce interval.
func (c *AppConfig) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidConfig}, args...)...)
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		name, def, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(name)
		if val == "" && hasDefault {
			val = def
		}
		return []byte(val)
	})
}
