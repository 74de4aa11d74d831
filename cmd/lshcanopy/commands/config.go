package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wizenheimer/lsh"
)

// FeatureConfig declares one input column and the codec that hashes it.
type FeatureConfig struct {
	Name string          `yaml:"name"`
	Kind lsh.FeatureKind `yaml:"kind"`

	// Column is the TSV header of the feature; defaults to Name.
	Column string `yaml:"column"`

	MinHash          *lsh.MinHashConfig          `yaml:"minhash"`
	RandomProjection *lsh.RandomProjectionConfig `yaml:"random_projection"`
}

// IndexConfig selects the band layout.
type IndexConfig struct {
	BandWidth  int   `yaml:"band_width"`
	SliceSizes []int `yaml:"slice_sizes"`
}

// ClusterConfig configures the cluster command.
type ClusterConfig struct {
	Feature   string           `yaml:"feature"`
	Threshold float64          `yaml:"threshold"`
	Linkage   lsh.Linkage      `yaml:"linkage"`
	Distance  lsh.DistanceKind `yaml:"distance"`
	Workers   int              `yaml:"workers"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the YAML configuration of every command.
type Config struct {
	// KeyColumn names the TSV column holding record keys.
	KeyColumn string `yaml:"key_column"`

	// Precision of stored vectors: float32 or float16.
	Precision lsh.QuantizerType `yaml:"precision"`

	// NormalizeVectors scales every input vector to unit length.
	NormalizeVectors bool `yaml:"normalize_vectors"`

	Features []FeatureConfig   `yaml:"features"`
	Index    IndexConfig       `yaml:"index"`
	Canopy   lsh.CanopyConfig  `yaml:"canopy"`
	Cluster  ClusterConfig     `yaml:"cluster"`
	Match    lsh.MatcherConfig `yaml:"match"`
	Log      LogConfig         `yaml:"log"`
}

// DefaultConfig returns the configuration used when no file is given: the
// user-name / full-name entity matcher.
func DefaultConfig() *Config {
	user := lsh.DefaultMinHashConfig()
	user.N = 4
	user.NumFunctions = 10
	user.Normalize = false
	full := lsh.DefaultMinHashConfig()

	return &Config{
		KeyColumn: "userName",
		Precision: lsh.FullPrecision,
		Features: []FeatureConfig{
			{Name: "userName", Kind: lsh.StringKind, MinHash: &user},
			{Name: "fullName", Kind: lsh.StringKind, MinHash: &full},
		},
		Index:  IndexConfig{BandWidth: 2},
		Canopy: lsh.DefaultCanopyConfig(),
		Cluster: ClusterConfig{
			Feature:   "fullName",
			Threshold: 0.5,
			Linkage:   lsh.AverageLinkage,
			Distance:  lsh.Jaccard,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a YAML configuration. Fields missing from the file keep
// their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML document over the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	features := cfg.Features
	cfg.Features = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if cfg.Features == nil {
		cfg.Features = features
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration before any input is read.
func (c *Config) Validate() error {
	if c.KeyColumn == "" {
		return errors.New("key_column is required")
	}
	if len(c.Features) == 0 {
		return errors.New("at least one feature is required")
	}
	seen := make(map[string]bool)
	for i := range c.Features {
		f := &c.Features[i]
		if f.Name == "" {
			return fmt.Errorf("feature %d: name is required", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("feature %q declared twice", f.Name)
		}
		seen[f.Name] = true
		if _, err := lsh.ParseFeatureKind(string(f.Kind)); err != nil {
			return fmt.Errorf("feature %q: %w", f.Name, err)
		}
		switch f.Kind {
		case lsh.StringKind:
			if f.MinHash == nil {
				return fmt.Errorf("feature %q: string features need a minhash block", f.Name)
			}
		case lsh.VectorKind:
			if f.RandomProjection == nil {
				return fmt.Errorf("feature %q: vector features need a random_projection block", f.Name)
			}
		}
		if f.Column == "" {
			f.Column = f.Name
		}
	}
	if _, err := lsh.NewQuantizer(c.Precision); err != nil {
		return err
	}
	return nil
}

// Specs returns the feature store schema.
func (c *Config) Specs() []lsh.FeatureSpec {
	specs := make([]lsh.FeatureSpec, len(c.Features))
	for i, f := range c.Features {
		specs[i] = lsh.FeatureSpec{Name: f.Name, Kind: f.Kind}
	}
	return specs
}

// Codecs builds one codec per feature.
func (c *Config) Codecs(logger *lsh.Logger) (map[string]lsh.Codec, error) {
	codecs := make(map[string]lsh.Codec, len(c.Features))
	for _, f := range c.Features {
		var (
			codec lsh.Codec
			err   error
		)
		switch f.Kind {
		case lsh.StringKind:
			cfg := *f.MinHash
			cfg.Logger = logger
			codec, err = lsh.NewMinHashCodec(cfg)
		case lsh.VectorKind:
			cfg := *f.RandomProjection
			cfg.Logger = logger
			codec, err = lsh.NewRandomProjectionCodec(cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", f.Name, err)
		}
		codecs[f.Name] = codec
	}
	return codecs, nil
}

// Feature returns the declaration of a feature.
func (c *Config) Feature(name string) (FeatureConfig, bool) {
	for _, f := range c.Features {
		if f.Name == name {
			return f, true
		}
	}
	return FeatureConfig{}, false
}

// NewLogger builds the process logger from the log block.
func (l LogConfig) NewLogger(w io.Writer) (*lsh.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(orDefault(l.Level, "info")))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	switch orDefault(l.Format, "text") {
	case "text":
		return lsh.NewTextLogger(w, level), nil
	case "json":
		return lsh.NewJSONLogger(w, level), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: expected text or json", l.Format)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
