package session

import (
	"container/list"
	"context"
	"sync"

	"github.com/axiondb/axion/pkg/axionerrors"
)

// Statement is a parsed statement bound to one session. Cached statements
// are shared across Prepare calls for identical SQL text and survive
// Close; uncached statements release their backend handle on Close.
type Statement struct {
	sess   *Session
	sql    string
	handle StatementHandle
	cached bool
	closed bool
}

// SQL returns the statement text exactly as prepared.
func (st *Statement) SQL() string {
	return st.sql
}

// Execute runs the statement. A stale-metadata signal from the backend
// (schema drift under a cached statement) is recovered silently by
// re-parsing and re-describing; it is never surfaced to the caller.
func (st *Statement) Execute(ctx context.Context, args ...interface{}) (Result, error) {
	if st.closed {
		return Result{}, axionerrors.Driver(axionerrors.ErrNoStatement)
	}
	if err := st.sess.guardOpen(); err != nil {
		return Result{}, err
	}

	res, err := st.handle.Exec(ctx, args...)
	if err != nil && IsStaleMetadata(err) {
		if err = st.reprepare(ctx); err == nil {
			res, err = st.handle.Exec(ctx, args...)
		}
	}
	if err != nil {
		st.sess.observeError(err)
		return Result{}, st.sess.decorate(err)
	}
	return res, nil
}

// Describe returns the statement's current column metadata.
func (st *Statement) Describe(ctx context.Context) ([]Column, error) {
	if st.closed {
		return nil, axionerrors.Driver(axionerrors.ErrNoStatement)
	}
	cols, err := st.handle.Describe(ctx)
	if err != nil {
		st.sess.observeError(err)
		return nil, st.sess.decorate(err)
	}
	return cols, nil
}

// Close releases an uncached statement's backend handle. Closing a cached
// statement is a no-op; its handle stays in the cache for reuse.
func (st *Statement) Close(ctx context.Context) error {
	if st.closed || st.cached {
		return nil
	}
	st.closed = true
	return st.handle.Close(ctx)
}

// reprepare swaps the backend handle for a freshly parsed one, dropping
// the invalidated parse.
func (st *Statement) reprepare(ctx context.Context) error {
	handle, err := st.sess.conn.Prepare(ctx, st.sql)
	if err != nil {
		return err
	}
	_ = st.handle.Close(ctx)
	st.handle = handle
	return nil
}

// invalidate closes the statement on eviction from the cache.
func (st *Statement) invalidate(ctx context.Context) {
	if st.closed {
		return
	}
	st.closed = true
	_ = st.handle.Close(ctx)
}

// stmtCache is the per-session statement cache: a capacity-bounded LRU
// keyed by exact statement text.
type stmtCache struct {
	mu      sync.Mutex
	cap     int
	order   *list.List // front is most recently used
	entries map[string]*list.Element
}

type cacheEntry struct {
	sql  string
	stmt *Statement
}

func newStmtCache(capacity int) *stmtCache {
	return &stmtCache{
		cap:     capacity,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// get returns the cached statement for sql, promoting it to most recently
// used, or nil on a miss.
func (c *stmtCache) get(sql string) *Statement {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[sql]
	if !ok {
		return nil
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).stmt
}

// put stores a freshly parsed statement, evicting the least recently used
// entry beyond capacity. A zero-capacity cache stores nothing.
func (c *stmtCache) put(ctx context.Context, sql string, st *Statement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap <= 0 {
		st.cached = false
		return
	}
	if el, ok := c.entries[sql]; ok {
		// A racing prepare for the same text keeps the first handle.
		c.order.MoveToFront(el)
		return
	}
	c.entries[sql] = c.order.PushFront(&cacheEntry{sql: sql, stmt: st})
	c.evictOverflow(ctx)
}

// resize changes capacity, evicting down to the new bound.
func (c *stmtCache) resize(ctx context.Context, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cap = capacity
	c.evictOverflow(ctx)
}

func (c *stmtCache) capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cap
}

func (c *stmtCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOverflow must be called with mu held.
func (c *stmtCache) evictOverflow(ctx context.Context) {
	for c.order.Len() > c.cap && c.cap >= 0 {
		el := c.order.Back()
		if el == nil {
			return
		}
		entry := c.order.Remove(el).(*cacheEntry)
		delete(c.entries, entry.sql)
		entry.stmt.invalidate(ctx)
	}
}

// clear drops every cached statement; used when the session is destroyed.
func (c *stmtCache) clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.order.Front(); el != nil; el = el.Next() {
		el.Value.(*cacheEntry).stmt.invalidate(ctx)
	}
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}
