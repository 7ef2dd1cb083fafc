// Package compute declares the distributed-session provider contract the
// bridge consumes. The bridge never creates the underlying session; it only
// observes execution mode and configuration and exposes the session through
// the gateway's entry point.
package compute

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

type Mode int

const (
	ModeLocal Mode = iota
	ModeCluster
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeCluster:
		return "cluster"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "local":
		return ModeLocal, nil
	case "cluster":
		return ModeCluster, nil
	default:
		return 0, fmt.Errorf("unknown execution mode: %q", s)
	}
}

// Config is the session's configuration handle.
type Config struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewConfig(entries map[string]string) *Config {
	copied := make(map[string]string, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return &Config{entries: copied}
}

func (c *Config) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *Config) Set(key string, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Session is the provider contract: an execution-mode indicator, a
// configuration handle, and a stop that releases the session's resources.
type Session interface {
	Mode() Mode
	Config() *Config
	Stop(ctx context.Context) error
}

// LocalSession is the in-process implementation used by the CLI.
type LocalSession struct {
	mode    Mode
	conf    *Config
	stopped atomic.Bool
}

func NewLocalSession(mode Mode, conf *Config) *LocalSession {
	if conf == nil {
		conf = NewConfig(nil)
	}
	return &LocalSession{mode: mode, conf: conf}
}

func (s *LocalSession) Mode() Mode      { return s.mode }
func (s *LocalSession) Config() *Config { return s.conf }

func (s *LocalSession) Stop(ctx context.Context) error {
	s.stopped.Store(true)
	return nil
}

func (s *LocalSession) Stopped() bool { return s.stopped.Load() }
