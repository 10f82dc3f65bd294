package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// ModelLister is the backend capability probe.
type ModelLister interface {
	ListAvailableModels(ctx context.Context) ([]string, error)
}

// Checker aggregates health checks for external dependencies used by /diag.
type Checker struct {
	redis          RedisPinger
	backend        ModelLister
	hasBackendKey  bool
	lineConfigured bool
	timeout        time.Duration
	backendTTL     time.Duration
	now            func() time.Time

	// Last backend result; the model listing spends provider quota.
	mu          sync.Mutex
	backendAt   time.Time
	lastBackend Status
}

// Options configures the Checker.
type Options struct {
	Redis          RedisPinger
	Backend        ModelLister
	HasBackendKey  bool
	LineConfigured bool
	Timeout        time.Duration
	// BackendTTL is how long a backend result is reused; 0 means 30s.
	BackendTTL time.Duration
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis   Status `json:"redis"`
	Backend Status `json:"backend"`
	Line    Status `json:"line"`
}

func New(opts Options) *Checker {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.BackendTTL <= 0 {
		opts.BackendTTL = 30 * time.Second
	}
	return &Checker{
		redis:          opts.Redis,
		backend:        opts.Backend,
		hasBackendKey:  opts.HasBackendKey,
		lineConfigured: opts.LineConfigured,
		timeout:        opts.Timeout,
		backendTTL:     opts.BackendTTL,
		now:            time.Now,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:   c.checkRedis(ctx),
		Backend: c.checkBackend(ctx),
		Line:    c.checkLine(),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: true, Message: "Not configured (in-memory state)"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkBackend(ctx context.Context) Status {
	if !c.hasBackendKey {
		return Status{OK: false, Message: "API key missing"}
	}
	if c.backend == nil {
		return Status{OK: true, Message: "API key present"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.backendAt.IsZero() && c.now().Sub(c.backendAt) < c.backendTTL {
		return c.lastBackend
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	st := Status{OK: true}
	ids, err := c.backend.ListAvailableModels(ctx)
	if err != nil {
		st = Status{OK: false, Message: trimError(err)}
	} else {
		st.Message = fmt.Sprintf("Available (%d models)", len(ids))
	}
	c.lastBackend, c.backendAt = st, c.now()
	return st
}

func (c *Checker) checkLine() Status {
	if !c.lineConfigured {
		return Status{OK: false, Message: "Channel credentials missing"}
	}
	return Status{OK: true, Message: "Configured"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
