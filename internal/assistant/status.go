package assistant

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
)

// Status is the outcome of an availability probe.
type Status struct {
	Provider  string    `json:"provider"`
	Available bool      `json:"available"`
	Message   string    `json:"message"`
	Version   string    `json:"version,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	Cached    bool      `json:"cached"`
}

// StatusCache remembers the last probe for ttl. The zero value never hits.
type StatusCache struct {
	mu     sync.Mutex
	value  Status
	stored time.Time
	ttl    time.Duration
	now    func() time.Time
}

// NewStatusCache returns a cache with ttl, or the default TTL when ttl <= 0.
func NewStatusCache(ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = config.DefaultStatusCacheTTL
	}
	return &StatusCache{ttl: ttl, now: time.Now}
}

// Get returns the cached status while it is fresh.
func (c *StatusCache) Get() (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stored.IsZero() || c.clock().Sub(c.stored) >= c.ttl {
		return Status{}, false
	}
	s := c.value
	s.Cached = true
	return s, true
}

// Store records s as the latest status.
func (c *StatusCache) Store(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = s
	c.stored = c.clock()
}

// Clear forces the next CheckStatus to probe again.
func (c *StatusCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = time.Time{}
}

func (c *StatusCache) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// CheckStatus probes the q CLI: version, then login state, then chat help.
// Results, including failures, are cached in cache when it is non-nil.
func CheckStatus(ctx context.Context, runner Runner, binary string, cache *StatusCache) Status {
	if cache != nil {
		if s, ok := cache.Get(); ok {
			return s
		}
	}
	s := probe(ctx, runner, binary)
	s.Provider = ProviderQCLI
	s.CheckedAt = time.Now()
	if cache != nil {
		cache.Store(s)
	}
	return s
}

func probe(ctx context.Context, runner Runner, binary string) Status {
	runner, binary = qDefaults(runner, binary)

	stdout, _, err := runWithTimeout(ctx, runner, config.DefaultStatusProbeTimeout, binary, "--version")
	switch {
	case isNotFound(err):
		return Status{Message: "Amazon Q CLI not found"}
	case errors.Is(err, context.DeadlineExceeded):
		return Status{Message: "Status check timed out"}
	case err != nil:
		return Status{Message: "Amazon Q CLI not installed"}
	}
	version := strings.TrimSpace(stdout)

	stdout, stderr, err := runWithTimeout(ctx, runner, config.DefaultLoginProbeTimeout, binary, "login")
	if errors.Is(err, context.DeadlineExceeded) {
		return Status{Available: true, Version: version, Message: "Available (status check timed out but CLI detected)"}
	}
	combined := strings.ToLower(stdout + "\n" + stderr)
	if strings.Contains(combined, "already logged in") || strings.Contains(combined, "you are already authenticated") {
		return Status{Available: true, Version: version, Message: "Available and authenticated"}
	}

	_, stderr, err = runWithTimeout(ctx, runner, config.DefaultLoginProbeTimeout, binary, "chat", "--help")
	switch {
	case err == nil:
		return Status{Available: true, Version: version, Message: "Available (help command works)"}
	case errors.Is(err, context.DeadlineExceeded):
		return Status{Available: true, Version: version, Message: "Available (status check timed out but CLI detected)"}
	case strings.Contains(strings.ToLower(stderr), "not logged in"):
		return Status{Version: version, Message: "Not logged in"}
	}
	msg := CleanOutput(stderr)
	if r := []rune(msg); len(r) > 100 {
		msg = string(r[:100])
	}
	return Status{Version: version, Message: "CLI error: " + msg}
}

// runWithTimeout reports context.DeadlineExceeded when the probe's own
// deadline fired.
func runWithTimeout(ctx context.Context, runner Runner, d time.Duration, name string, args ...string) (string, string, error) {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	stdout, stderr, err := runner.Run(cctx, name, args...)
	if err != nil && cctx.Err() != nil {
		return stdout, stderr, cctx.Err()
	}
	return stdout, stderr, err
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}
