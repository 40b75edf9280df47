// Package config loads run configuration from an optional file, GAMM_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/objones25/gamm/internal/svd"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalid is returned for configurations that fail validation.
var ErrInvalid = errors.New("config: invalid value")

// Strategy bins.
const (
	BinSingle   = "single"
	BinIntra    = "intra"
	BinInter    = "inter"
	BinCombined = "combined"
	BinAll      = "all"
	BinParallel = "parallel"
)

// Config holds everything a run needs.
type Config struct {
	X    string   `mapstructure:"x"`    // Path of the left source matrix
	Y    string   `mapstructure:"y"`    // Path of the right source matrix
	L    int      `mapstructure:"l"`    // Sketch width
	T    int      `mapstructure:"t"`    // Thread budget
	Beta float64  `mapstructure:"beta"` // Attenuation strength
	Bins []string `mapstructure:"bins"` // Strategies to run

	SVD     SVDConfig     `mapstructure:"svd"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Report  string        `mapstructure:"report"` // Optional JSON report path
}

// SVDConfig mirrors svd.Options.
type SVDConfig struct {
	Tau       int     `mapstructure:"tau"`
	MaxSweeps int     `mapstructure:"max_sweeps"`
	Tolerance float64 `mapstructure:"tolerance"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// CacheConfig controls the Redis sketch cache. An empty RedisAddr disables it.
type CacheConfig struct {
	RedisAddr            string        `mapstructure:"redis_addr"`
	TTL                  time.Duration `mapstructure:"ttl"`
	CompressionThreshold int           `mapstructure:"compression_threshold"`
}

// Default returns the default configuration.
func Default() Config {
	opts := svd.DefaultOptions()
	return Config{
		L:    400,
		T:    runtime.NumCPU(),
		Beta: 28,
		Bins: []string{BinAll},
		SVD: SVDConfig{
			Tau:       opts.Tau,
			MaxSweeps: opts.MaxSweeps,
			Tolerance: opts.Tolerance,
		},
		Log: LogConfig{Level: "info"},
		Cache: CacheConfig{
			TTL:                  24 * time.Hour,
			CompressionThreshold: 1024,
		},
	}
}

// Options returns the SVD options.
func (c *Config) Options() svd.Options {
	return svd.Options{Tau: c.SVD.Tau, MaxSweeps: c.SVD.MaxSweeps, Tolerance: c.SVD.Tolerance}
}

// Validate checks ranges and expands the bins in place.
func (c *Config) Validate() error {
	if c.L < 2 {
		return fmt.Errorf("%w: l must be at least 2, got %d", ErrInvalid, c.L)
	}
	if c.T < 1 {
		return fmt.Errorf("%w: t must be positive, got %d", ErrInvalid, c.T)
	}
	if c.Beta < 0 {
		return fmt.Errorf("%w: beta must be non-negative, got %g", ErrInvalid, c.Beta)
	}
	if c.Cache.CompressionThreshold < 0 {
		return fmt.Errorf("%w: compression threshold must be non-negative", ErrInvalid)
	}
	if err := c.Options().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	bins, err := ExpandBins(c.Bins)
	if err != nil {
		return err
	}
	c.Bins = bins
	return nil
}

// ExpandBins resolves the "all" and "parallel" aliases and drops duplicates,
// keeping first-seen order.
func ExpandBins(bins []string) ([]string, error) {
	var out []string
	add := func(names ...string) {
		for _, n := range names {
			if !slices.Contains(out, n) {
				out = append(out, n)
			}
		}
	}
	for _, b := range bins {
		switch b = strings.ToLower(strings.TrimSpace(b)); b {
		case BinSingle, BinIntra, BinInter, BinCombined:
			add(b)
		case BinAll:
			add(BinSingle, BinIntra, BinInter, BinCombined)
		case BinParallel:
			add(BinIntra, BinInter, BinCombined)
		case "":
		default:
			return nil, fmt.Errorf("%w: unknown bin %q", ErrInvalid, b)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no bins selected", ErrInvalid)
	}
	return out, nil
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"x":            "x",
	"y":            "y",
	"l":            "l",
	"t":            "t",
	"beta":         "beta",
	"bins":         "bins",
	"tau":          "svd.tau",
	"max-sweeps":   "svd.max_sweeps",
	"tolerance":    "svd.tolerance",
	"log-level":    "log.level",
	"pretty":       "log.pretty",
	"metrics-addr": "metrics.addr",
	"redis-addr":   "cache.redis_addr",
	"cache-ttl":    "cache.ttl",
	"report":       "report",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("x", d.X, "Path of the left source matrix")
	fs.String("y", d.Y, "Path of the right source matrix")
	fs.IntP("l", "l", d.L, "Sketch width")
	fs.IntP("t", "t", d.T, "Thread budget for parallel strategies")
	fs.Float64("beta", d.Beta, "Attenuation strength of the rank reduction")
	fs.StringSlice("bins", d.Bins, "Strategies to run: single, intra, inter, combined, parallel, all")
	fs.Int("tau", d.SVD.Tau, "Jacobi pivot fraction denominator")
	fs.Int("max-sweeps", d.SVD.MaxSweeps, "Jacobi sweep cap per reduction step")
	fs.Float64("tolerance", d.SVD.Tolerance, "Jacobi convergence tolerance")
	fs.String("log-level", d.Log.Level, "Log level (trace, debug, info, warn, error)")
	fs.Bool("pretty", d.Log.Pretty, "Human-readable console logs")
	fs.String("metrics-addr", d.Metrics.Addr, "Serve Prometheus metrics on this address")
	fs.String("redis-addr", d.Cache.RedisAddr, "Cache finished sketches in this Redis server")
	fs.Duration("cache-ttl", d.Cache.TTL, "Lifetime of cached sketches")
	fs.String("report", d.Report, "Write a JSON report to this path")
}

// Load builds the configuration. path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("GAMM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
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

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("x", d.X)
	v.SetDefault("y", d.Y)
	v.SetDefault("l", d.L)
	v.SetDefault("t", d.T)
	v.SetDefault("beta", d.Beta)
	v.SetDefault("bins", d.Bins)
	v.SetDefault("svd.tau", d.SVD.Tau)
	v.SetDefault("svd.max_sweeps", d.SVD.MaxSweeps)
	v.SetDefault("svd.tolerance", d.SVD.Tolerance)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.compression_threshold", d.Cache.CompressionThreshold)
	v.SetDefault("report", d.Report)
}
