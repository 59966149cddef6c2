// Package vault keeps short-lived authorization material (pending states,
// PKCE verifiers and freshly issued credentials) in the shared cache.
// Every entry expires on its own and is removed the first time it is read.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrNotFound is returned when a key is absent or has expired
	ErrNotFound = errors.New("vault entry not found")

	// ErrStorage is returned when the backing store fails
	ErrStorage = errors.New("vault storage failure")
)

// DefaultTTL applies to every entry stored without an explicit lifetime.
const DefaultTTL = 600 * time.Second

// KeySeparator joins the namespace and identity parts of a key.
const KeySeparator = ":"

// Purposes of the values kept per (provider, org, user).
const (
	PurposeState       = "state"
	PurposeVerifier    = "verifier"
	PurposeCredentials = "credentials"
)

// KV is the subset of the cache the vault relies on.
type KV interface {
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
}

// Prefix builds the "{provider}_{purpose}" namespace for a key.
func Prefix(provider, purpose string) string {
	return provider + "_" + purpose
}

// ScopeKey builds "{prefix}:{org}:{user}".
func ScopeKey(prefix, orgID, userID string) string {
	return strings.Join([]string{prefix, orgID, userID}, KeySeparator)
}

// Key builds the full key for a provider, purpose and identity.
func Key(provider, purpose, orgID, userID string) string {
	return ScopeKey(Prefix(provider, purpose), orgID, userID)
}

// Vault stores values that can be read exactly once.
type Vault struct {
	kv         KV
	defaultTTL time.Duration
	logger     ectologger.Logger
}

// New creates a vault over the given store. A non-positive ttl falls back to DefaultTTL.
func New(kv KV, ttl time.Duration, logger ectologger.Logger) *Vault {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Vault{
		kv:         kv,
		defaultTTL: ttl,
		logger:     logger,
	}
}

// Store writes value under key, replacing whatever was there.
func (v *Vault) Store(ctx context.Context, key, value string, ttl time.Duration) (err error) {
	ctx, span := tracing.StartSpan(ctx, "Vault.Store")
	defer func() { tracing.EndWithError(span, err) }()

	if ttl <= 0 {
		ttl = v.defaultTTL
	}

	start := time.Now()
	if err := v.kv.Set(ctx, key, value, ttl); err != nil {
		metrics.RecordVaultOperation("store", "error", time.Since(start).Seconds())
		v.logger.WithContext(ctx).WithError(err).WithField("key", redactKey(key)).Error("failed to store vault entry")
		return fmt.Errorf("%w: store %s: %v", ErrStorage, redactKey(key), err)
	}
	metrics.RecordVaultOperation("store", "ok", time.Since(start).Seconds())

	return nil
}

// Consume atomically reads and deletes key. A miss is not a span error.
func (v *Vault) Consume(ctx context.Context, key string) (value string, err error) {
	ctx, span := tracing.StartSpan(ctx, "Vault.Consume")
	defer func() {
		span.SetAttributes(attribute.Bool("vault.hit", err == nil))
		if errors.Is(err, ErrNotFound) {
			span.End()
			return
		}
		tracing.EndWithError(span, err)
	}()

	start := time.Now()
	value, err = v.kv.GetDel(ctx, key)
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			metrics.RecordVaultOperation("consume", "miss", time.Since(start).Seconds())
			return "", ErrNotFound
		}
		metrics.RecordVaultOperation("consume", "error", time.Since(start).Seconds())
		v.logger.WithContext(ctx).WithError(err).WithField("key", redactKey(key)).Error("failed to consume vault entry")
		return "", fmt.Errorf("%w: consume %s: %v", ErrStorage, redactKey(key), err)
	}
	metrics.RecordVaultOperation("consume", "ok", time.Since(start).Seconds())

	return value, nil
}

// redactKey keeps the namespace of a key and drops the identities.
func redactKey(key string) string {
	prefix, _, _ := strings.Cut(key, KeySeparator)
	return prefix
}
