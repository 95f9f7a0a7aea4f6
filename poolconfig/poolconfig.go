// Package poolconfig loads pool settings from TOML files.
//
// Example configuration:
//
//	[pool]
//	core_workers = 4
//	max_workers = 16
//	idle_timeout = "30s"
//	queue_capacity = 1024
//	rejection = "abort"
//	worker_prefix = "ingest-worker"
//
// queue_capacity accepts a number, "none" for direct handoff only, or
// "unbounded" for no limit.
package poolconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/haldre/covey"
)

// File is the top-level TOML document.
type File struct {
	Pool PoolConfig `toml:"pool"`
}

// PoolConfig mirrors the tunable pool settings.
type PoolConfig struct {
	CoreWorkers   int      `toml:"core_workers"`
	MaxWorkers    int      `toml:"max_workers"`
	IdleTimeout   duration `toml:"idle_timeout"`
	QueueCapacity capacity `toml:"queue_capacity"`
	Rejection     string   `toml:"rejection"`
	WorkerPrefix  string   `toml:"worker_prefix"`
}

// duration parses TOML strings like "30s" or "1m".
type duration struct {
	time.Duration
	set bool
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	d.set = true
	return nil
}

// capacity accepts an integer, "none", or "unbounded".
type capacity struct {
	value int
	set   bool
}

func (c *capacity) UnmarshalTOML(v interface{}) error {
	switch t := v.(type) {
	case int64:
		if t < 0 {
			return fmt.Errorf("queue_capacity must be >= 0, got %d", t)
		}
		c.value = int(t)
	case string:
		switch strings.ToLower(t) {
		case "none":
			c.value = covey.QueueNone
		case "unbounded":
			c.value = covey.QueueUnbounded
		default:
			n, err := strconv.Atoi(t)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid queue_capacity %q", t)
			}
			c.value = n
		}
	default:
		return fmt.Errorf("invalid queue_capacity type %T", v)
	}
	c.set = true
	return nil
}

// Load reads a TOML file and converts it into pool options. Settings the
// file omits keep the pool defaults.
func Load(path string) ([]covey.Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse converts raw TOML bytes into pool options.
func Parse(data []byte) ([]covey.Option, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return f.Pool.Options()
}

// Options converts the parsed settings into pool options.
func (c PoolConfig) Options() ([]covey.Option, error) {
	var opts []covey.Option
	if c.CoreWorkers != 0 {
		opts = append(opts, covey.WithCoreWorkers(c.CoreWorkers))
	}
	if c.MaxWorkers != 0 {
		opts = append(opts, covey.WithMaxWorkers(c.MaxWorkers))
	}
	if c.IdleTimeout.set {
		opts = append(opts, covey.WithIdleTimeout(c.IdleTimeout.Duration))
	}
	if c.QueueCapacity.set {
		opts = append(opts, covey.WithQueueCapacity(c.QueueCapacity.value))
	}
	if c.Rejection != "" {
		policy, err := rejectionPolicy(c.Rejection)
		if err != nil {
			return nil, err
		}
		opts = append(opts, covey.WithRejectionPolicy(policy))
	}
	if c.WorkerPrefix != "" {
		prefix := c.WorkerPrefix
		opts = append(opts, covey.WithWorkerNamer(func(id int) string {
			return fmt.Sprintf("%s-%d", prefix, id)
		}))
	}
	return opts, nil
}

func rejectionPolicy(name string) (covey.RejectionPolicy, error) {
	switch strings.ToLower(name) {
	case "abort":
		return covey.Abort, nil
	case "discard":
		return covey.Discard, nil
	case "discard_oldest", "discardoldest":
		return covey.DiscardOldest, nil
	case "caller_runs", "callerruns":
		return covey.CallerRuns, nil
	default:
		return nil, fmt.Errorf("invalid rejection policy %q (expected: abort, discard, discard_oldest, caller_runs)", name)
	}
}
