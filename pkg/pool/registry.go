package pool

import (
	"time"

	"github.com/axiondb/axion/pkg/session"
)

// idleEntry is one idle session together with the pool-side bookkeeping
// the janitor and ping logic need.
type idleEntry struct {
	sess       *session.Session
	releasedAt time.Time
}

// matchSpec describes what an acquire is looking for. Sessions are only
// matched within the same credentials partition and connection class.
type matchSpec struct {
	credsKey    string
	cclass      string
	tag         string
	matchAnyTag bool
}

// idleRegistry is the LIFO-ordered collection of idle sessions. Index 0
// is the oldest entry; the top of the stack is the most recently released
// session. All methods must be called with the pool mutex held.
type idleRegistry struct {
	stack []idleEntry
}

func newIdleRegistry(capacity int) *idleRegistry {
	return &idleRegistry{stack: make([]idleEntry, 0, capacity)}
}

// push places a session at the top of the stack, making it the first
// candidate for the next matching acquire.
func (r *idleRegistry) push(s *session.Session) {
	r.stack = append(r.stack, idleEntry{sess: s, releasedAt: time.Now()})
}

// pop removes and returns the best match for spec, scanning most recently
// released first. The scan runs in two phases under one lock acquisition:
// an exact-tag pass, then an any-tag pass only when the wildcard flag is
// set. The second return reports whether the wildcard pass supplied a
// session whose tag differs from the requested one.
func (r *idleRegistry) pop(spec matchSpec) (idleEntry, bool, bool) {
	for i := len(r.stack) - 1; i >= 0; i-- {
		e := r.stack[i]
		if !r.partitionMatches(e, spec) {
			continue
		}
		if e.sess.Tag() == spec.tag {
			r.removeAt(i)
			return e, true, false
		}
	}
	if spec.matchAnyTag {
		for i := len(r.stack) - 1; i >= 0; i-- {
			e := r.stack[i]
			if !r.partitionMatches(e, spec) {
				continue
			}
			r.removeAt(i)
			return e, true, true
		}
	}
	return idleEntry{}, false, false
}

// partitionMatches checks the secondary reuse partitions: credentials and
// connection class.
func (r *idleRegistry) partitionMatches(e idleEntry, spec matchSpec) bool {
	return e.sess.Credentials().Key() == spec.credsKey &&
		e.sess.ConnClass() == spec.cclass
}

// evictOldest removes and returns the least recently released idle entry,
// used to make room at capacity when no idle session can serve a request.
func (r *idleRegistry) evictOldest() (idleEntry, bool) {
	if len(r.stack) == 0 {
		return idleEntry{}, false
	}
	e := r.stack[0]
	r.stack = r.stack[1:]
	return e, true
}

// reapExpired removes entries that have exceeded the idle timeout or the
// session lifetime bound and returns them for destruction.
func (r *idleRegistry) reapExpired(idleTimeout, maxLifetime time.Duration) []idleEntry {
	if idleTimeout <= 0 && maxLifetime <= 0 {
		return nil
	}
	now := time.Now()
	var expired []idleEntry
	kept := r.stack[:0]
	for _, e := range r.stack {
		idleTooLong := idleTimeout > 0 && now.Sub(e.releasedAt) > idleTimeout
		tooOld := maxLifetime > 0 && e.sess.Age() > maxLifetime
		if idleTooLong || tooOld {
			expired = append(expired, e)
		} else {
			kept = append(kept, e)
		}
	}
	r.stack = kept
	return expired
}

// drain removes and returns every idle entry.
func (r *idleRegistry) drain() []idleEntry {
	drained := r.stack
	r.stack = nil
	return drained
}

func (r *idleRegistry) len() int {
	return len(r.stack)
}

func (r *idleRegistry) removeAt(i int) {
	r.stack = append(r.stack[:i], r.stack[i+1:]...)
}
