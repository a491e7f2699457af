package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/axiondb/axion/pkg/backend/memdb"
	"github.com/axiondb/axion/pkg/session"
)

func newRegistrySession(t *testing.T, factory *session.Factory, user, cclass, tag string) *session.Session {
	t.Helper()
	s, err := factory.Create(context.Background(),
		session.NewCredentials(user, "pw"), cclass, "", 10)
	require.NoError(t, err)
	s.SetTag(tag)
	t.Cleanup(func() { _ = factory.Destroy(context.Background(), s) })
	return s
}

func newRegistryFactory(t *testing.T) *session.Factory {
	t.Helper()
	backend := memdb.New().AddUser("app_user", "pw").AddUser("batch_user", "pw")
	return session.NewFactory(backend, "memdb://test", zaptest.NewLogger(t))
}

func TestIdleRegistryLIFO(t *testing.T) {
	factory := newRegistryFactory(t)
	r := newIdleRegistry(4)

	first := newRegistrySession(t, factory, "app_user", "", "")
	second := newRegistrySession(t, factory, "app_user", "", "")
	r.push(first)
	r.push(second)

	spec := matchSpec{credsKey: "app_user"}
	e, ok, tagDiffers := r.pop(spec)
	require.True(t, ok)
	assert.False(t, tagDiffers)
	assert.Same(t, second, e.sess)

	e, ok, _ = r.pop(spec)
	require.True(t, ok)
	assert.Same(t, first, e.sess)

	_, ok, _ = r.pop(spec)
	assert.False(t, ok)
}

func TestIdleRegistryPartitions(t *testing.T) {
	factory := newRegistryFactory(t)
	r := newIdleRegistry(4)

	appSess := newRegistrySession(t, factory, "app_user", "", "")
	batchSess := newRegistrySession(t, factory, "batch_user", "", "")
	classSess := newRegistrySession(t, factory, "app_user", "batch", "")
	r.push(appSess)
	r.push(batchSess)
	r.push(classSess)

	// Credentials and cclass partition strictly, regardless of stack
	// position.
	e, ok, _ := r.pop(matchSpec{credsKey: "app_user"})
	require.True(t, ok)
	assert.Same(t, appSess, e.sess)

	e, ok, _ = r.pop(matchSpec{credsKey: "app_user", cclass: "batch"})
	require.True(t, ok)
	assert.Same(t, classSess, e.sess)

	_, ok, _ = r.pop(matchSpec{credsKey: "nobody"})
	assert.False(t, ok)
	assert.Equal(t, 1, r.len())
}

func TestIdleRegistryTagMatching(t *testing.T) {
	factory := newRegistryFactory(t)
	r := newIdleRegistry(4)

	utc := newRegistrySession(t, factory, "app_user", "", "TIME_ZONE=UTC")
	mst := newRegistrySession(t, factory, "app_user", "", "TIME_ZONE=MST")
	r.push(utc)
	r.push(mst)

	// Exact tag wins even when a differently tagged session is above it
	// on the stack.
	e, ok, tagDiffers := r.pop(matchSpec{credsKey: "app_user", tag: "TIME_ZONE=UTC"})
	require.True(t, ok)
	assert.False(t, tagDiffers)
	assert.Same(t, utc, e.sess)
	r.push(utc)

	// No exact match and no wildcard: miss.
	_, ok, _ = r.pop(matchSpec{credsKey: "app_user", tag: "TIME_ZONE=PST"})
	assert.False(t, ok)

	// The wildcard pass supplies a differing tag and reports it.
	e, ok, tagDiffers = r.pop(matchSpec{
		credsKey: "app_user", tag: "TIME_ZONE=PST", matchAnyTag: true,
	})
	require.True(t, ok)
	assert.True(t, tagDiffers)
	assert.Same(t, utc, e.sess)

	// An untagged request only matches untagged sessions.
	_, ok, _ = r.pop(matchSpec{credsKey: "app_user"})
	assert.False(t, ok)
	assert.Same(t, mst, r.stack[0].sess)
}

func TestIdleRegistryEvictOldest(t *testing.T) {
	factory := newRegistryFactory(t)
	r := newIdleRegistry(4)

	_, ok := r.evictOldest()
	assert.False(t, ok)

	first := newRegistrySession(t, factory, "app_user", "", "")
	second := newRegistrySession(t, factory, "app_user", "", "")
	r.push(first)
	r.push(second)

	e, ok := r.evictOldest()
	require.True(t, ok)
	assert.Same(t, first, e.sess)
	assert.Equal(t, 1, r.len())
}

func TestIdleRegistryReapExpired(t *testing.T) {
	factory := newRegistryFactory(t)
	r := newIdleRegistry(4)

	stale := newRegistrySession(t, factory, "app_user", "", "")
	fresh := newRegistrySession(t, factory, "app_user", "", "")
	r.stack = append(r.stack, idleEntry{
		sess:       stale,
		releasedAt: time.Now().Add(-time.Minute),
	})
	r.push(fresh)

	// Zero bounds reap nothing.
	assert.Empty(t, r.reapExpired(0, 0))
	assert.Equal(t, 2, r.len())

	expired := r.reapExpired(30*time.Second, 0)
	require.Len(t, expired, 1)
	assert.Same(t, stale, expired[0].sess)
	assert.Equal(t, 1, r.len())
}

func TestIdleRegistryDrain(t *testing.T) {
	factory := newRegistryFactory(t)
	r := newIdleRegistry(4)
	r.push(newRegistrySession(t, factory, "app_user", "", ""))
	r.push(newRegistrySession(t, factory, "app_user", "", ""))

	drained := r.drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, r.len())
}

func TestGeneratePoolName(t *testing.T) {
	name := generatePoolName()
	assert.Regexp(t, `^AXN:SP:\d+-\d+$`, name)
	assert.NotEqual(t, name, generatePoolName())
}

func TestValidateTag(t *testing.T) {
	assert.NoError(t, validateTag(""))
	assert.NoError(t, validateTag("TIME_ZONE=UTC"))
	assert.NoError(t, validateTag("TIME_ZONE=UTC;LANGUAGE=fr"))

	for _, bad := range []string{"nonsense", "=value", "a=1;;b=2", "a=1;bare"} {
		err := validateTag(bad)
		require.Error(t, err, bad)
	}
}
