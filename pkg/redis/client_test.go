package redis_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/redis"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client := redis.NewClient(redis.Config{Host: mr.Host(), Port: port}, zapadapter.NewZapEctoLogger(zap.NewNop(), nil))
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestClient_Connect(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Connect(ctx))
	require.NoError(t, client.Ping(ctx))

	mr.Close()
	assert.Error(t, client.Connect(ctx))
}

func TestClient_GetDel(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "hubspot_state:o:u", "value", time.Minute))

	assert.Equal(t, time.Minute, mr.TTL("hubspot_state:o:u"))

	value, err := client.GetDel(ctx, "hubspot_state:o:u")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
	assert.False(t, mr.Exists("hubspot_state:o:u"))

	_, err = client.GetDel(ctx, "hubspot_state:o:u")
	assert.ErrorIs(t, err, redis.ErrNil)
}
