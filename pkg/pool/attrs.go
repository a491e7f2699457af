package pool

import (
	"time"

	"github.com/axiondb/axion/pkg/config"
)

// Name returns the pool's identity string.
func (p *Pool) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Name
}

// Username returns the pool-wide username.
func (p *Pool) Username() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.User
}

// DSN returns the connect string the pool opens sessions against.
func (p *Pool) DSN() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.DSN
}

// Min returns the minimum pool size.
func (p *Pool) Min() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Min
}

// Max returns the maximum pool size.
func (p *Pool) Max() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Max
}

// Increment returns the growth step.
func (p *Pool) Increment() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Increment
}

// GetMode returns the acquisition policy.
func (p *Pool) GetMode() config.GetMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.GetMode
}

// SetGetMode changes the acquisition policy.
func (p *Pool) SetGetMode(m config.GetMode) error {
	return p.Reconfigure(Mode(m))
}

// Timeout returns the idle-session reclaim threshold.
func (p *Pool) Timeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Timeout
}

// SetTimeout changes the idle-session reclaim threshold.
func (p *Pool) SetTimeout(d time.Duration) error {
	return p.Reconfigure(Timeout(d))
}

// WaitTimeout returns the TIMEDWAIT bound.
func (p *Pool) WaitTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.WaitTimeout
}

// MaxLifetimeSession returns the forced-recycle age bound.
func (p *Pool) MaxLifetimeSession() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.MaxLifetimeSession
}

// SetMaxLifetimeSession changes the forced-recycle age bound.
func (p *Pool) SetMaxLifetimeSession(d time.Duration) error {
	return p.Reconfigure(MaxLifetimeSession(d))
}

// MaxSessionsPerShard returns the per-shard session bound.
func (p *Pool) MaxSessionsPerShard() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.MaxSessionsPerShard
}

// StmtCacheSize returns the statement cache capacity applied to new
// sessions.
func (p *Pool) StmtCacheSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.StmtCacheSize
}

// SetStmtCacheSize changes the statement cache capacity for sessions
// created after the call.
func (p *Pool) SetStmtCacheSize(n int) error {
	return p.Reconfigure(StmtCacheSize(n))
}

// PingInterval returns the idle liveness-check policy.
func (p *Pool) PingInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.PingInterval
}

// SodaMetadataCache reports whether document-collection metadata caching
// is enabled.
func (p *Pool) SodaMetadataCache() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.SodaMetadataCache
}

// SetSodaMetadataCache toggles document-collection metadata caching.
func (p *Pool) SetSodaMetadataCache(enabled bool) error {
	return p.Reconfigure(SodaMetadataCache(enabled))
}

// Homogeneous reports whether the pool uses fixed pool-wide credentials.
func (p *Pool) Homogeneous() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Homogeneous
}

// Busy returns the number of sessions currently checked out.
func (p *Pool) Busy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.busy)
}

// Opened returns the number of live sessions, idle plus busy.
func (p *Pool) Opened() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Opened int `json:"opened"`
	Busy   int `json:"busy"`
	Idle   int `json:"idle"`
	Max    int `json:"max"`
}

// GetStats returns a consistent snapshot of pool occupancy.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Opened: p.opened,
		Busy:   len(p.busy),
		Idle:   p.idle.len(),
		Max:    p.cfg.Max,
	}
}
