// ABOUTME: Tests for the key lookup service over an in-memory gRPC connection
// ABOUTME: Exercises token auth, key resolution and ban records against MockStore

package lookup

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/auth"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/store"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/users"
)

const serviceToken = "game-server-token"

func dial(t *testing.T, s Store, token string) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(auth.ServiceTokenInterceptor(token, nil)))
	Register(srv, NewService(s))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestLookup_KeyAndUID(t *testing.T) {
	ms := store.NewMockStore()
	ms.SetKey("madeline", "0123456789abcdef")
	c := NewClient(dial(t, ms, serviceToken), serviceToken)
	ctx := context.Background()

	uid, err := c.LookupUID(ctx, "0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, "madeline", uid)

	key, err := c.LookupKey(ctx, "madeline")
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", key)

	uid, err = c.LookupUID(ctx, "ffffffffffffffff")
	require.NoError(t, err)
	assert.Empty(t, uid)
}

func TestLookup_EmptyArgument(t *testing.T) {
	c := NewClient(dial(t, store.NewMockStore(), ""), "")

	_, err := c.LookupKey(context.Background(), "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestLookup_RequiresToken(t *testing.T) {
	conn := dial(t, store.NewMockStore(), serviceToken)

	_, err := NewClient(conn, "").LookupKey(context.Background(), "madeline")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = NewClient(conn, "wrong").LookupKey(context.Background(), "madeline")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGetBan(t *testing.T) {
	ms := store.NewMockStore()
	from := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	require.NoError(t, ms.PutRecord("theo", &users.BanInfo{
		UID: "theo", Name: "Theo", Reason: "spam", From: &from, To: &to,
	}))
	c := NewClient(dial(t, ms, serviceToken), serviceToken)
	ctx := context.Background()

	ban, err := c.GetBan(ctx, "theo")
	require.NoError(t, err)
	assert.Equal(t, "spam", ban["Reason"])
	assert.Equal(t, "Theo", ban["Name"])
	assert.Equal(t, "2024-03-01T12:00:00Z", ban["From"])
	assert.Equal(t, "2024-03-02T12:00:00Z", ban["To"])

	none, err := c.GetBan(ctx, "madeline")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetBan_Permanent(t *testing.T) {
	ms := store.NewMockStore()
	from := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, ms.PutRecord("theo", &users.BanInfo{UID: "theo", Reason: users.PermanentBanReason, From: &from}))
	c := NewClient(dial(t, ms, ""), "")

	ban, err := c.GetBan(context.Background(), "theo")
	require.NoError(t, err)
	assert.Equal(t, users.PermanentBanReason, ban["Reason"])
	assert.NotContains(t, ban, "To")
}
