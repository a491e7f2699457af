package memdb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/axiondb/axion/pkg/axionerrors"
	"github.com/axiondb/axion/pkg/backend/memdb"
	"github.com/axiondb/axion/pkg/session"
)

func openConn(t *testing.T, b *memdb.Backend, user, password string) session.Conn {
	t.Helper()
	conn, err := b.OpenSession(context.Background(), "memdb://test",
		session.NewCredentials(user, password))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	return conn
}

func TestAuthentication(t *testing.T) {
	b := memdb.New().AddUser("app_user", "pw")

	conn := openConn(t, b, "app_user", "pw")
	assert.NotEmpty(t, conn.ID())
	assert.Equal(t, 1, b.LiveSessions())

	_, err := b.OpenSession(context.Background(), "memdb://test",
		session.NewCredentials("app_user", "wrong"))
	require.Error(t, err)
	assert.Equal(t, "AXN-01017", axionerrors.As(err).FullCode())

	_, err = b.OpenSession(context.Background(), "memdb://test",
		session.NewCredentials("nobody", "pw"))
	require.Error(t, err)
	assert.Equal(t, 1017, axionerrors.As(err).Code)
}

func TestProxyAuthentication(t *testing.T) {
	b := memdb.New().
		AddUser("app_user", "pw").
		AllowProxy("app_user", "reporting")

	conn := openConn(t, b, "app_user[reporting]", "pw")
	assert.Equal(t, "reporting", conn.(*memdb.ServerSession).SessionUser())

	// Without a grant the proxy handshake is refused.
	_, err := b.OpenSession(context.Background(), "memdb://test",
		session.NewCredentials("app_user[other]", "pw"))
	require.Error(t, err)
	assert.Equal(t, axionerrors.NamespaceClient, axionerrors.As(err).Namespace)
}

func TestScriptedStatements(t *testing.T) {
	ctx := context.Background()
	b := memdb.New().AddUser("app_user", "pw")
	b.ScriptRows("select region from sales", "east", "west")

	conn := openConn(t, b, "app_user", "pw")
	st, err := conn.Prepare(ctx, "select region from sales")
	require.NoError(t, err)

	res, err := st.Exec(ctx)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "east", res.Rows[0][0])
	assert.Equal(t, "west", res.Rows[1][0])

	// Unscripted statements succeed with an empty result.
	other, err := conn.Prepare(ctx, "truncate table scratch")
	require.NoError(t, err)
	res, err = other.Exec(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestScriptedParseError(t *testing.T) {
	ctx := context.Background()
	b := memdb.New().AddUser("app_user", "pw")
	b.ScriptParseError("begin t_missing := 5; end;", 6550,
		"line 1, column 7:\nidentifier T_MISSING must be declared", 6)

	conn := openConn(t, b, "app_user", "pw")
	_, err := conn.Prepare(ctx, "begin t_missing := 5; end;")
	require.Error(t, err)

	e := axionerrors.As(err)
	require.NotNil(t, e)
	assert.Equal(t, "AXN-06550", e.FullCode())
	assert.Equal(t, 6, e.Offset)
}

func TestAlterSessionState(t *testing.T) {
	ctx := context.Background()
	b := memdb.New().AddUser("app_user", "pw")
	conn := openConn(t, b, "app_user", "pw")

	st, err := conn.Prepare(ctx, "alter session set TIME_ZONE = 'UTC'")
	require.NoError(t, err)
	_, err = st.Exec(ctx)
	require.NoError(t, err)

	assert.Equal(t, "UTC", b.ServerState(conn.ID())["TIME_ZONE"])
}

func TestSeveredSessionSemantics(t *testing.T) {
	ctx := context.Background()
	b := memdb.New().AddUser("app_user", "pw")
	conn := openConn(t, b, "app_user", "pw")

	st, err := conn.Prepare(ctx, "select 1")
	require.NoError(t, err)

	b.Sever(conn.ID())

	// Rollback with no open transaction is a client-side no-op; the kill
	// is only observed on a real round trip.
	require.NoError(t, conn.Rollback(ctx))

	err = conn.Ping(ctx)
	require.Error(t, err)
	assert.True(t, axionerrors.IsConnectivity(err))

	_, err = st.Exec(ctx)
	require.Error(t, err)
	assert.Equal(t, "AXD-4011", axionerrors.As(err).FullCode())
}

func TestSeveredSessionRollbackOfOpenTransaction(t *testing.T) {
	ctx := context.Background()
	b := memdb.New().AddUser("app_user", "pw")
	conn := openConn(t, b, "app_user", "pw")

	st, err := conn.Prepare(ctx, "begin tx")
	require.NoError(t, err)
	_, err = st.Exec(ctx)
	require.NoError(t, err)

	b.Sever(conn.ID())

	// With work in flight the rollback needs the server and fails.
	err = conn.Rollback(ctx)
	require.Error(t, err)
	assert.True(t, axionerrors.IsConnectivity(err))
}

func TestMetadataInvalidation(t *testing.T) {
	ctx := context.Background()
	b := memdb.New().AddUser("app_user", "pw")
	conn := openConn(t, b, "app_user", "pw")

	st, err := conn.Prepare(ctx, "select * from drifting")
	require.NoError(t, err)
	_, err = st.Exec(ctx)
	require.NoError(t, err)

	b.InvalidateMetadata()

	_, err = st.Exec(ctx)
	require.Error(t, err)
	assert.True(t, session.IsStaleMetadata(err))

	// A fresh parse observes the new schema version.
	again, err := conn.Prepare(ctx, "select * from drifting")
	require.NoError(t, err)
	_, err = again.Exec(ctx)
	require.NoError(t, err)
}

func TestStaleMetadataRecoveryThroughSessionLayer(t *testing.T) {
	ctx := context.Background()
	b := memdb.New().AddUser("app_user", "pw")
	b.ScriptRows("select * from drifting", "row")

	factory := session.NewFactory(b, "memdb://test", zaptest.NewLogger(t))
	s, err := factory.Create(ctx, session.NewCredentials("app_user", "pw"), "", "", 10)
	require.NoError(t, err)
	defer factory.Destroy(ctx, s)

	_, err = s.Execute(ctx, "select * from drifting")
	require.NoError(t, err)

	b.InvalidateMetadata()

	// The cached statement is silently re-parsed; the caller never sees
	// the stale signal.
	res, err := s.Execute(ctx, "select * from drifting")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.True(t, s.Healthy())
}

func TestCloseReleasesServerSession(t *testing.T) {
	ctx := context.Background()
	b := memdb.New().AddUser("app_user", "pw")

	conn, err := b.OpenSession(ctx, "memdb://test",
		session.NewCredentials("app_user", "pw"))
	require.NoError(t, err)
	require.Equal(t, 1, b.LiveSessions())

	require.NoError(t, conn.Close(ctx))
	assert.Equal(t, 0, b.LiveSessions())
	assert.Nil(t, b.ServerState(conn.ID()))
}
