package hyperdelta

import (
	"errors"
	"fmt"
	"strings"

	"hyperdelta.dev/engine/subscribe"
)

// StorageKind names a kv.Store backend.
type StorageKind string

const (
	StorageMemory     StorageKind = "memory"
	StoragePersistent StorageKind = "persistent"
)

// Config configures an Instance. The zero value is not valid; build one
// with DefaultConfig and override fields.
type Config struct {
	Storage StorageKind
	// DataDir is required when Storage is StoragePersistent; it names the
	// directory the bbolt-backed store and instance manifest live under.
	DataDir string
	// SystemID, when non-empty, overrides generated/manifest-derived ids.
	SystemID string

	CacheSize             int
	EnableIndexing        bool
	SubscriptionQueueSize int
	BackpressurePolicy    subscribe.Policy

	// Clock lets callers stub time in tests; nil uses the system clock.
	Clock Clock
}

// DefaultConfig returns the documented defaults: memory storage, cache
// size 1000, indexing enabled, subscription queue size 1024, drop-newest
// backpressure.
func DefaultConfig() Config {
	return Config{
		Storage:               StorageMemory,
		CacheSize:             1000,
		EnableIndexing:        true,
		SubscriptionQueueSize: 1024,
		BackpressurePolicy:    subscribe.DropNewest,
	}
}

func validateConfig(cfg Config) error {
	switch cfg.Storage {
	case StorageMemory:
	case StoragePersistent:
		if strings.TrimSpace(cfg.DataDir) == "" {
			return errors.New("hyperdelta: data_dir is required for persistent storage")
		}
	default:
		return fmt.Errorf("hyperdelta: invalid storage %q", cfg.Storage)
	}
	if cfg.CacheSize < 0 {
		return errors.New("hyperdelta: cache_size must be >= 0")
	}
	if cfg.SubscriptionQueueSize < 0 {
		return errors.New("hyperdelta: subscription_queue_size must be >= 0")
	}
	switch cfg.BackpressurePolicy {
	case "", subscribe.DropNewest, subscribe.DropOldest, subscribe.BlockProducer:
	default:
		return fmt.Errorf("hyperdelta: invalid backpressure_policy %q", cfg.BackpressurePolicy)
	}
	return nil
}
