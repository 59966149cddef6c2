package vault_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/vault"
)

func getTestLogger() ectologger.Logger {
	return zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
}

func newTestVault(t *testing.T) (*vault.Vault, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return vault.New(redis.Wrap(rdb, getTestLogger()), 0, getTestLogger()), mr
}

type failingKV struct{}

func (failingKV) Set(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}

func (failingKV) GetDel(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "hubspot_state:org1:user1", vault.Key("hubspot", vault.PurposeState, "org1", "user1"))
	assert.Equal(t, "airtable_verifier:o:u", vault.ScopeKey(vault.Prefix("airtable", vault.PurposeVerifier), "o", "u"))
	assert.Equal(t, "notion_credentials:o:u", vault.Key("notion", vault.PurposeCredentials, "o", "u"))
}

func TestVault_StoreConsume(t *testing.T) {
	ctx := context.Background()

	t.Run("should return the stored value exactly once", func(t *testing.T) {
		v, _ := newTestVault(t)
		key := vault.Key("hubspot", vault.PurposeCredentials, "org1", "user1")

		require.NoError(t, v.Store(ctx, key, `{"access_token":"abc"}`, 0))

		value, err := v.Consume(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, `{"access_token":"abc"}`, value)

		_, err = v.Consume(ctx, key)
		assert.ErrorIs(t, err, vault.ErrNotFound)
	})

	t.Run("should overwrite a previous value", func(t *testing.T) {
		v, _ := newTestVault(t)
		key := vault.Key("notion", vault.PurposeState, "org1", "user1")

		require.NoError(t, v.Store(ctx, key, "first", 0))
		require.NoError(t, v.Store(ctx, key, "second", 0))

		value, err := v.Consume(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "second", value)
	})

	t.Run("should apply the default ttl", func(t *testing.T) {
		v, mr := newTestVault(t)
		key := vault.Key("airtable", vault.PurposeVerifier, "org1", "user1")

		require.NoError(t, v.Store(ctx, key, "verifier", 0))
		assert.Equal(t, vault.DefaultTTL, mr.TTL(key))
	})

	t.Run("should not return expired entries", func(t *testing.T) {
		v, mr := newTestVault(t)
		key := vault.Key("airtable", vault.PurposeState, "org1", "user1")

		require.NoError(t, v.Store(ctx, key, "state", 10*time.Second))
		mr.FastForward(11 * time.Second)

		_, err := v.Consume(ctx, key)
		assert.ErrorIs(t, err, vault.ErrNotFound)
	})

	t.Run("should report storage failures", func(t *testing.T) {
		v := vault.New(failingKV{}, time.Minute, getTestLogger())

		err := v.Store(ctx, "k:o:u", "v", 0)
		assert.ErrorIs(t, err, vault.ErrStorage)

		_, err = v.Consume(ctx, "k:o:u")
		assert.ErrorIs(t, err, vault.ErrStorage)
		assert.NotErrorIs(t, err, vault.ErrNotFound)
	})

	t.Run("should keep identities scoped", func(t *testing.T) {
		v, _ := newTestVault(t)

		require.NoError(t, v.Store(ctx, vault.Key("hubspot", vault.PurposeState, "org1", "user1"), "a", 0))

		_, err := v.Consume(ctx, vault.Key("hubspot", vault.PurposeState, "org1", "user2"))
		assert.ErrorIs(t, err, vault.ErrNotFound)
		_, err = v.Consume(ctx, vault.Key("airtable", vault.PurposeState, "org1", "user1"))
		assert.ErrorIs(t, err, vault.ErrNotFound)
	})
}

func TestVault_Spans(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tracing.SetTracer(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test"))
	t.Cleanup(func() { tracing.SetTracer(nil) })

	v, _ := newTestVault(t)
	_, err := v.Consume(ctx, vault.Key("notion", vault.PurposeCredentials, "o", "u"))
	require.ErrorIs(t, err, vault.ErrNotFound)

	broken := vault.New(failingKV{}, 0, getTestLogger())
	require.Error(t, broken.Store(ctx, "k", "v", 0))

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	assert.Equal(t, "Vault.Consume", ended[0].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)

	assert.Equal(t, "Vault.Store", ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Contains(t, ended[1].Status().Description, "vault storage failure")
}
