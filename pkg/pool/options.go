package pool

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/axiondb/axion/pkg/axionerrors"
	"github.com/axiondb/axion/pkg/config"
	"github.com/axiondb/axion/pkg/session"
)

// Purity governs whether an acquired session may carry reused state.
type Purity int

const (
	// PurityDefault allows reuse of an idle session
	PurityDefault Purity = iota
	// PurityNew forces a fresh untagged session, bypassing reuse
	PurityNew
	// PuritySelf allows reuse only of sessions from this pool (the
	// default behavior for pooled acquisition; kept for API parity)
	PuritySelf
)

// acquireRequest collects the per-acquire parameters.
type acquireRequest struct {
	user        string
	password    string
	hasCreds    bool
	cclass      string
	purity      Purity
	tag         string
	matchAnyTag bool
	shardKey    string
}

// AcquireOption customizes one Acquire call.
type AcquireOption func(*acquireRequest)

// WithCredentials supplies per-acquire credentials. The pool must have
// been created heterogeneous; a homogeneous pool rejects this with a
// configuration error. The username may use the proxy syntax
// "user[proxy]".
func WithCredentials(user, password string) AcquireOption {
	return func(r *acquireRequest) {
		r.user = user
		r.password = password
		r.hasCreds = true
	}
}

// WithConnClass scopes reuse to acquisitions presenting the same
// connection class.
func WithConnClass(cclass string) AcquireOption {
	return func(r *acquireRequest) { r.cclass = cclass }
}

// WithPurity sets the reuse policy for this acquisition.
func WithPurity(p Purity) AcquireOption {
	return func(r *acquireRequest) { r.purity = p }
}

// WithTag requests a session whose state tag equals tag.
func WithTag(tag string) AcquireOption {
	return func(r *acquireRequest) { r.tag = tag }
}

// WithMatchAnyTag allows an idle session with any tag to satisfy a tagged
// request; the session callback is then invoked to fix the state up.
func WithMatchAnyTag() AcquireOption {
	return func(r *acquireRequest) { r.matchAnyTag = true }
}

// WithShardKey directs the acquisition at a shard. Sessions are counted
// per shard when MaxSessionsPerShard is configured.
func WithShardKey(key string) AcquireOption {
	return func(r *acquireRequest) { r.shardKey = key }
}

// releaseRequest collects the per-release parameters.
type releaseRequest struct {
	tag    string
	hasTag bool
}

// ReleaseOption customizes one Release call.
type ReleaseOption func(*releaseRequest)

// WithReleaseTag overwrites the session's tag as it returns to the idle
// registry. The tag must be a semicolon-separated list of key=value
// pairs; anything else is rejected.
func WithReleaseTag(tag string) ReleaseOption {
	return func(r *releaseRequest) {
		r.tag = tag
		r.hasTag = true
	}
}

// validateTag checks the key=value;key=value tag format the server-side
// state machinery requires. An empty tag clears the session's tag and is
// always valid.
func validateTag(tag string) error {
	if tag == "" {
		return nil
	}
	for _, directive := range strings.Split(tag, ";") {
		if key, _, found := strings.Cut(directive, "="); !found || key == "" {
			return axionerrors.Server(24488,
				"invalid properties or values provided for the session tag", 0)
		}
	}
	return nil
}

// reconfig carries the partial update applied by Reconfigure. Nil fields
// are left unchanged.
type reconfig struct {
	min                 *int
	max                 *int
	increment           *int
	getMode             *config.GetMode
	timeout             *time.Duration
	waitTimeout         *time.Duration
	maxLifetimeSession  *time.Duration
	maxSessionsPerShard *int
	stmtCacheSize       *int
	pingInterval        *time.Duration
	sodaMetadataCache   *bool
}

// ReconfigureOption names one parameter to update; parameters not named
// keep their prior value.
type ReconfigureOption func(*reconfig)

// Min updates the minimum pool size.
func Min(n int) ReconfigureOption {
	return func(rc *reconfig) { rc.min = &n }
}

// Max updates the maximum pool size.
func Max(n int) ReconfigureOption {
	return func(rc *reconfig) { rc.max = &n }
}

// Increment updates the growth step.
func Increment(n int) ReconfigureOption {
	return func(rc *reconfig) { rc.increment = &n }
}

// Mode updates the acquisition policy.
func Mode(m config.GetMode) ReconfigureOption {
	return func(rc *reconfig) { rc.getMode = &m }
}

// Timeout updates the idle-session reclaim threshold.
func Timeout(d time.Duration) ReconfigureOption {
	return func(rc *reconfig) { rc.timeout = &d }
}

// WaitTimeout updates the TIMEDWAIT bound.
func WaitTimeout(d time.Duration) ReconfigureOption {
	return func(rc *reconfig) { rc.waitTimeout = &d }
}

// MaxLifetimeSession updates the forced-recycle age bound.
func MaxLifetimeSession(d time.Duration) ReconfigureOption {
	return func(rc *reconfig) { rc.maxLifetimeSession = &d }
}

// MaxSessionsPerShard updates the per-shard session bound.
func MaxSessionsPerShard(n int) ReconfigureOption {
	return func(rc *reconfig) { rc.maxSessionsPerShard = &n }
}

// StmtCacheSize updates the statement cache capacity applied to sessions
// created after the change.
func StmtCacheSize(n int) ReconfigureOption {
	return func(rc *reconfig) { rc.stmtCacheSize = &n }
}

// PingInterval updates the idle liveness-check policy.
func PingInterval(d time.Duration) ReconfigureOption {
	return func(rc *reconfig) { rc.pingInterval = &d }
}

// SodaMetadataCache toggles document-collection metadata caching.
func SodaMetadataCache(enabled bool) ReconfigureOption {
	return func(rc *reconfig) { rc.sodaMetadataCache = &enabled }
}

// Options configures pool creation.
type Options struct {
	// Config is the pool parameter set. New backfills a zero WaitTimeout
	// and StmtCacheSize; every other zero value keeps its documented
	// meaning, so a zero PingInterval pings on every reuse. Start from
	// config.DefaultPoolConfig for the 60s ping default.
	Config config.PoolConfig
	// Backend opens and closes backend sessions
	Backend session.Backend
	// SessionCallback, when set, is invoked to fix up session state for
	// brand-new sessions and for wildcard-tag reuse with a differing tag
	SessionCallback session.Callback
	// Logger defaults to the global logger when nil
	Logger *zap.Logger
}
