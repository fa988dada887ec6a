package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloudimg/internal/core/port"

	"github.com/rs/zerolog/log"
)

// Store is a record store that holds resources until closed.
type Store interface {
	port.RecordStore
	Close() error
}

type Config struct {
	Driver      string
	DiskPath    string
	S3          S3Config
	PostgresURL string
}

type Opener func(ctx context.Context, cfg Config) (Store, error)

// Registry maps driver names to the functions that open them.
type Registry struct {
	openers map[string]Opener
}

// DefaultRegistry knows every built in driver.
func DefaultRegistry() *Registry {
	r := &Registry{}
	r.Register("memory", func(context.Context, Config) (Store, error) {
		return NewMemory(), nil
	})
	r.Register("disk", func(_ context.Context, cfg Config) (Store, error) {
		return NewDisk(cfg.DiskPath)
	})
	r.Register("s3", func(ctx context.Context, cfg Config) (Store, error) {
		return NewS3(ctx, cfg.S3)
	})
	r.Register("postgres", func(ctx context.Context, cfg Config) (Store, error) {
		return NewPostgres(ctx, cfg.PostgresURL)
	})
	return r
}

func (r *Registry) Register(driver string, opener Opener) {
	if r.openers == nil {
		r.openers = make(map[string]Opener)
	}

	log.Debug().Str("driver", driver).Msg("adding record store driver to registry")
	r.openers[driver] = opener
}

func (r *Registry) Open(ctx context.Context, cfg Config) (Store, error) {
	if r.openers == nil {
		return nil, errors.New("can't open record store, registry not initialized")
	}

	opener, ok := r.openers[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unknown record store driver %q, available: %s", cfg.Driver,
			strings.Join(r.Drivers(), ", "))
	}

	start := time.Now()
	s, err := opener(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error opening %s record store: %w", cfg.Driver, err)
	}

	log.Info().Str("driver", cfg.Driver).Dur("elapsed", time.Since(start)).Msg("record store opened")

	return s, nil
}

func (r *Registry) Drivers() []string {
	keys := make([]string, 0, len(r.openers))
	for k := range r.openers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
