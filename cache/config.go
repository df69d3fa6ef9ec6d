package cache

import (
	"context"
	"reflect"
	"time"

	"github.com/agentuity/go-common/logger"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// ByteSize is a byte count parsed from human-friendly syntax ("64MB",
// "1.5GiB") in environment configuration.
type ByteSize uint64

// Config is the environment-level configuration for the caching layer.
// Durations accept extended syntax ("90s", "5m", "1d12h").
type Config struct {
	// RedisURL is the remote tier connection string. Empty means local-only
	// mode, which is a supported configuration, not an error.
	RedisURL string `env:"CACHE_REDIS_URL"`
	// DefaultTTL applies to Set calls without an explicit TTL.
	DefaultTTL time.Duration `env:"CACHE_DEFAULT_TTL" envDefault:"5m"`
	// MaxEntries bounds the local tier entry count.
	MaxEntries int `env:"CACHE_MAX_ENTRIES" envDefault:"10000"`
	// MaxBytes bounds the local tier's accounted size.
	MaxBytes ByteSize `env:"CACHE_MAX_BYTES" envDefault:"64MiB"`
	// SweepInterval is the period of the background expired-entry sweep.
	SweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"60s"`
	// QueryTimeout bounds each remote tier operation.
	QueryTimeout time.Duration `env:"CACHE_QUERY_TIMEOUT" envDefault:"5s"`
}

// LoadConfig reads Config from the process environment.
func LoadConfig() (Config, error) {
	var cfg Config
	err := env.ParseWithOptions(&cfg, env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): func(v string) (any, error) {
				return str2duration.ParseDuration(v)
			},
			reflect.TypeOf(ByteSize(0)): func(v string) (any, error) {
				n, err := humanize.ParseBytes(v)
				return ByteSize(n), err
			},
		},
	})
	if err != nil {
		return cfg, errors.Wrap(err, "cache: invalid configuration")
	}
	return cfg, nil
}

func (c Config) options() []Option {
	return []Option{
		WithDefaultTTL(c.DefaultTTL),
		WithMaxEntries(c.MaxEntries),
		WithMaxBytes(int64(c.MaxBytes)),
		WithSweepInterval(c.SweepInterval),
		WithQueryTimeout(c.QueryTimeout),
	}
}

// New builds a running Manager from cfg: local tier started, remote tier
// dialed when configured. An unreachable redis server degrades to
// local-only with the tier recovering in the background; only a malformed
// RedisURL is an error. Callers own the returned Manager and should Close
// it at shutdown.
func New(ctx context.Context, cfg Config, log logger.Logger) (*Manager, error) {
	opts := cfg.options()
	local := NewLocalTier(ctx, log, opts...)
	local.Start()
	var remote *RemoteTier
	if cfg.RedisURL != "" {
		r, err := DialRemoteTier(ctx, cfg.RedisURL, log, opts...)
		if err != nil {
			local.Stop()
			return nil, err
		}
		remote = r
	}
	return NewManager(local, remote, log, opts...), nil
}
