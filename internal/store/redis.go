// Package store caches finished sketches in Redis so repeated runs over the
// same inputs can skip the reduction.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/objones25/gamm/internal/amm"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrEmptyKey      = errors.New("store: key cannot be empty")
	ErrNilSketch     = errors.New("store: sketch cannot be nil")
	ErrCompression   = errors.New("store: compression failed")
	ErrDecompression = errors.New("store: decompression failed")
	ErrCorrupt       = errors.New("store: corrupt sketch payload")
)

const (
	compressedPrefix            = "compressed:"
	defaultCompressionThreshold = 1024
	defaultMaxRetries           = 3
	defaultPoolSize             = 10
	defaultMinIdleConns         = 2
)

// Config describes the Redis connection.
type Config struct {
	Addr                 string
	Password             string
	DB                   int
	DefaultTTL           time.Duration
	PoolSize             int
	MinIdleConns         int
	MaxRetries           int
	CompressionThreshold int
}

// SketchCache stores sketches as JSON, zstd-compressed above a size threshold.
type SketchCache struct {
	client               *redis.Client
	defaultTTL           time.Duration
	compressionThreshold int
	encoder              *zstd.Encoder
	decoder              *zstd.Decoder
}

// matrixPayload is the wire form of one sketch matrix.
type matrixPayload struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

type sketchPayload struct {
	BX      matrixPayload `json:"bx"`
	BY      matrixPayload `json:"by"`
	Created time.Time     `json:"created"`
}

// NewSketchCache connects to Redis and verifies the connection.
func NewSketchCache(cfg Config) (*SketchCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("store: address cannot be empty")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.MinIdleConns <= 0 {
		cfg.MinIdleConns = defaultMinIdleConns
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = defaultCompressionThreshold
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}

	return &SketchCache{
		client:               client,
		defaultTTL:           cfg.DefaultTTL,
		compressionThreshold: cfg.CompressionThreshold,
		encoder:              encoder,
		decoder:              decoder,
	}, nil
}

// Set stores s under key. A non-positive ttl means the default TTL.
func (c *SketchCache) Set(ctx context.Context, key string, s *amm.Sketch, ttl time.Duration) (err error) {
	defer observe("set", time.Now(), &err)

	if key == "" {
		return ErrEmptyKey
	}
	if s == nil || s.BX == nil || s.BY == nil {
		return ErrNilSketch
	}

	data, err := json.Marshal(sketchPayload{
		BX:      toPayload(s.BX),
		BY:      toPayload(s.BY),
		Created: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sketch: %w", err)
	}

	if len(data) > c.compressionThreshold {
		data = c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
		key = compressedPrefix + key
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get returns the sketch stored under key, or nil on a miss.
func (c *SketchCache) Get(ctx context.Context, key string) (s *amm.Sketch, err error) {
	defer observe("get", time.Now(), &err)

	if key == "" {
		return nil, ErrEmptyKey
	}

	data, err := c.client.Get(ctx, compressedPrefix+key).Bytes()
	switch {
	case err == nil:
		data, err = c.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
		}
	case errors.Is(err, redis.Nil):
		data, err = c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get sketch from Redis: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to get sketch from Redis: %w", err)
	}

	var payload sketchPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	bx, err := payload.BX.dense()
	if err != nil {
		return nil, err
	}
	by, err := payload.BY.dense()
	if err != nil {
		return nil, err
	}
	return &amm.Sketch{BX: bx, BY: by}, nil
}

// Delete removes key in both its plain and compressed form.
func (c *SketchCache) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, compressedPrefix+key)
	_, err := pipe.Exec(ctx)
	return err
}

// Keys lists the cached sketch keys.
func (c *SketchCache) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	for _, pattern := range []string{KeyPrefix + ":*", compressedPrefix + KeyPrefix + ":*"} {
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, strings.TrimPrefix(iter.Val(), compressedPrefix))
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
	}
	return keys, nil
}

// Close releases the connection pool and codecs.
func (c *SketchCache) Close() error {
	c.decoder.Close()
	if err := c.encoder.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close zstd encoder")
	}
	return c.client.Close()
}

// Health checks the Redis connection.
func (c *SketchCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func toPayload(m *mat.Dense) matrixPayload {
	rows, cols := m.Dims()
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	return matrixPayload{Rows: rows, Cols: cols, Data: data}
}

func (p matrixPayload) dense() (*mat.Dense, error) {
	if p.Rows <= 0 || p.Cols <= 0 || len(p.Data) != p.Rows*p.Cols {
		return nil, fmt.Errorf("%w: %dx%d with %d values", ErrCorrupt, p.Rows, p.Cols, len(p.Data))
	}
	return mat.NewDense(p.Rows, p.Cols, p.Data), nil
}
