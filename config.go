package bv

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config collects the tunables of the vault. It is constructed once at
// process start and passed explicitly into the block store client, the
// scheduler, and the garbage collector.
type Config struct {
	// SmallThreshold is the block size, in bytes, at or below which a block
	// is scheduled on the small (latency-sensitive) queue.
	SmallThreshold int `envconfig:"SMALL_THRESHOLD" default:"65536"`

	// SmallLimit is the number of concurrent uploads admitted from the
	// small queue. Small uploads are cheap to buffer, so this runs high to
	// hide per-request latency.
	SmallLimit int `envconfig:"SMALL_LIMIT" default:"32"`

	// BigLimit is the number of concurrent uploads admitted from the big
	// queue. Large transfers are bandwidth-bound; running many in parallel
	// only wastes memory.
	BigLimit int `envconfig:"BIG_LIMIT" default:"3"`

	// MaxRetries bounds retries of transient storage failures.
	MaxRetries int `envconfig:"MAX_RETRIES" default:"4"`

	// RetryBase is the initial backoff delay; it doubles per attempt.
	RetryBase time.Duration `envconfig:"RETRY_BASE" default:"250ms"`

	// ResidencyCache is the size of the LRU of addresses known to be
	// present remotely, used to short-circuit duplicate puts.
	ResidencyCache int `envconfig:"RESIDENCY_CACHE" default:"65536"`

	// GCMaxFailures aborts a GC sweep once this many individual deletes
	// have failed.
	GCMaxFailures int `envconfig:"GC_MAX_FAILURES" default:"10"`

	// GCConcurrency bounds parallel deletes during a GC sweep.
	GCConcurrency int `envconfig:"GC_CONCURRENCY" default:"8"`
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() Config {
	return Config{
		SmallThreshold: 65536,
		SmallLimit:     32,
		BigLimit:       3,
		MaxRetries:     4,
		RetryBase:      250 * time.Millisecond,
		ResidencyCache: 65536,
		GCMaxFailures:  10,
		GCConcurrency:  8,
	}
}

// ConfigFromEnv builds a Config from environment variables with the given
// prefix (e.g. prefix "bv" reads BV_SMALL_LIMIT and so on).
func ConfigFromEnv(prefix string) (Config, error) {
	var c Config
	err := envconfig.Process(prefix, &c)
	return c, err
}
