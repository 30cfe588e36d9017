package lookup

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cache is the byte store the registry keeps its listing in.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type settings struct {
	logger       *zap.Logger
	cache        Cache
	cacheTTL     time.Duration
	catalogDir   string
	defaultLimit int
	maxLimit     int
	location     *time.Location
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:       zap.NewNop(),
		cacheTTL:     30 * time.Second,
		defaultLimit: 50,
		maxLimit:     500,
		location:     time.UTC,
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Option configures the registry, the service and the linker.
type Option func(*settings)

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCache caches the source listing for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *settings) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithCatalogDir adds the YAML catalogs found in dir to the built-in ones.
func WithCatalogDir(dir string) Option {
	return func(s *settings) { s.catalogDir = dir }
}

func WithLimits(def, max int) Option {
	return func(s *settings) {
		if def > 0 {
			s.defaultLimit = def
		}
		if max > 0 {
			s.maxLimit = max
		}
	}
}

// WithLocation sets the zone datetime options are displayed in.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.location = loc
		}
	}
}
