package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/vault"
)

var (
	// ErrValidation is returned when required identity or callback parameters are missing
	ErrValidation = errors.New("validation failed")

	// ErrStateMismatch is returned when a callback's state does not match a pending authorization
	ErrStateMismatch = errors.New("state does not match")

	// ErrAuthorizationDenied is returned when the provider reports an error on the callback
	ErrAuthorizationDenied = errors.New("authorization denied by provider")

	// ErrCredentialNotFound is returned when no credential is waiting for the caller
	ErrCredentialNotFound = errors.New("no credentials found")

	// ErrMissingAccessToken is returned when a credential has no access_token
	ErrMissingAccessToken = errors.New("no access token in credentials")

	// ErrUnknownProvider is returned for providers without an adapter
	ErrUnknownProvider = errors.New("unknown provider")
)

// EventPublisher receives lifecycle events and listed items. Failures are logged, never returned to callers.
type EventPublisher interface {
	PublishConnectionEvent(ctx context.Context, evt *models.ConnectionEvent) error
	PublishItems(ctx context.Context, evt *models.ConnectionEvent, items []models.IntegrationItem) error
}

// Manager drives the authorization-code flow for every provider and lists items with issued credentials.
type Manager struct {
	registry  *providers.Registry
	vault     *vault.Vault
	publisher EventPublisher
	logger    ectologger.Logger
}

// NewManager creates a new auth manager. publisher may be nil.
func NewManager(
	registry *providers.Registry,
	store *vault.Vault,
	publisher EventPublisher,
	logger ectologger.Logger,
) *Manager {
	return &Manager{
		registry:  registry,
		vault:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Providers lists the providers with a registered adapter.
func (m *Manager) Providers() []models.Provider {
	return m.registry.Names()
}

func (m *Manager) adapter(provider models.Provider) (providers.Adapter, error) {
	a, ok := m.registry.Get(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return a, nil
}

// requireIdentity rejects empty ids and ids containing the vault key separator,
// which would let two identities share a key.
func requireIdentity(orgID, userID string) error {
	if orgID == "" || userID == "" {
		return fmt.Errorf("%w: user_id and org_id are required", ErrValidation)
	}
	if strings.Contains(orgID, vault.KeySeparator) || strings.Contains(userID, vault.KeySeparator) {
		return fmt.Errorf("%w: user_id and org_id must not contain %q", ErrValidation, vault.KeySeparator)
	}
	return nil
}

// Authorize records a pending authorization for (org, user) and returns the provider consent URL.
// A new call replaces any authorization still pending for the same identity.
func (m *Manager) Authorize(ctx context.Context, provider models.Provider, orgID, userID string) (authURL string, err error) {
	ctx, span := tracing.StartSpan(ctx, "AuthManager.Authorize")
	defer func() { tracing.EndWithError(span, err) }()

	a, err := m.adapter(provider)
	if err != nil {
		return "", err
	}
	if err := requireIdentity(orgID, userID); err != nil {
		return "", err
	}

	token, err := providers.NewStateToken()
	if err != nil {
		return "", err
	}
	state := models.OAuthState{State: token, UserID: userID, OrgID: orgID}
	encoded, err := state.Encode()
	if err != nil {
		return "", err
	}
	stored, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to marshal oauth state: %w", err)
	}

	verifier := ""
	if a.UsesPKCE() {
		verifier = providers.NewVerifier()
	}

	// Both writes must land before the URL is handed out. A key left by a
	// half-failed pair is harmless and expires with the vault TTL.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.vault.Store(gctx, vault.Key(provider.String(), vault.PurposeState, orgID, userID), string(stored), 0)
	})
	if verifier != "" {
		g.Go(func() error {
			return m.vault.Store(gctx, vault.Key(provider.String(), vault.PurposeVerifier, orgID, userID), verifier, 0)
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RecordFlowStage(provider.String(), "authorize", "error")
		return "", err
	}

	metrics.RecordFlowStage(provider.String(), "authorize", "ok")
	m.publish(ctx, &models.ConnectionEvent{Type: models.EventAuthorizeStarted, Provider: provider, OrgID: orgID, UserID: userID})
	m.logger.WithContext(ctx).Infof("Generated %s authorization URL for user %s and org %s", provider, userID, orgID)

	return a.AuthCodeURL(encoded, verifier), nil
}

// HandleCallback validates the state echoed by the provider, exchanges the
// code and stores the resulting credential for one retrieval.
func (m *Manager) HandleCallback(ctx context.Context, provider models.Provider, query url.Values) (result *models.CallbackResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "AuthManager.HandleCallback")
	defer func() { tracing.EndWithError(span, err) }()

	a, err := m.adapter(provider)
	if err != nil {
		return nil, err
	}

	result, err = m.handleCallback(ctx, a, query)
	if err != nil {
		metrics.RecordFlowStage(provider.String(), "callback", "error")
		evt := &models.ConnectionEvent{Type: models.EventAuthorizationFailed, Provider: provider, Reason: failureReason(err)}
		if result != nil {
			evt.OrgID, evt.UserID = result.OrgID, result.UserID
		}
		m.publish(ctx, evt)
		m.logger.WithContext(ctx).WithError(err).Warnf("%s OAuth callback failed", provider)
		return nil, err
	}

	metrics.RecordFlowStage(provider.String(), "callback", "ok")
	m.publish(ctx, &models.ConnectionEvent{Type: models.EventAuthorized, Provider: provider, OrgID: result.OrgID, UserID: result.UserID})
	m.logger.WithContext(ctx).Infof("Stored %s credentials for user %s and org %s", provider, result.UserID, result.OrgID)

	return result, nil
}

// handleCallback returns the identity from the state whenever it could be decoded, even on failure.
func (m *Manager) handleCallback(ctx context.Context, a providers.Adapter, query url.Values) (*models.CallbackResult, error) {
	provider := a.Name()

	if providerErr := query.Get("error"); providerErr != "" {
		reason := query.Get("error_description")
		if reason == "" {
			reason = providerErr
		}
		return nil, fmt.Errorf("%w: %s", ErrAuthorizationDenied, reason)
	}

	code := query.Get("code")
	encoded := query.Get("state")
	if code == "" || encoded == "" {
		return nil, fmt.Errorf("%w: missing code or state", ErrValidation)
	}

	echoed, err := models.DecodeOAuthState(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateMismatch, err)
	}
	result := &models.CallbackResult{Provider: provider, OrgID: echoed.OrgID, UserID: echoed.UserID}
	if err := requireIdentity(echoed.OrgID, echoed.UserID); err != nil {
		return result, fmt.Errorf("%w: state carries no identity", ErrStateMismatch)
	}

	raw, err := m.vault.Consume(ctx, vault.Key(provider.String(), vault.PurposeState, echoed.OrgID, echoed.UserID))
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			return result, fmt.Errorf("%w: no pending authorization", ErrStateMismatch)
		}
		return result, err
	}
	var saved models.OAuthState
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		return result, fmt.Errorf("%w: stored state is corrupt", ErrStateMismatch)
	}
	if subtle.ConstantTimeCompare([]byte(saved.State), []byte(echoed.State)) != 1 {
		return result, ErrStateMismatch
	}

	verifier := ""
	if a.UsesPKCE() {
		verifier, err = m.vault.Consume(ctx, vault.Key(provider.String(), vault.PurposeVerifier, echoed.OrgID, echoed.UserID))
		if err != nil {
			if errors.Is(err, vault.ErrNotFound) {
				return result, fmt.Errorf("%w: code verifier expired", ErrStateMismatch)
			}
			return result, err
		}
	}

	start := time.Now()
	credential, err := a.Exchange(ctx, code, verifier)
	metrics.RecordTokenExchange(provider.String(), time.Since(start).Seconds())
	if err != nil {
		return result, err
	}

	credKey := vault.Key(provider.String(), vault.PurposeCredentials, echoed.OrgID, echoed.UserID)
	if err := m.vault.Store(ctx, credKey, string(credential), 0); err != nil {
		return result, err
	}

	return result, nil
}

// GetCredentials hands out the stored credential once. A second call fails with ErrCredentialNotFound.
func (m *Manager) GetCredentials(ctx context.Context, provider models.Provider, orgID, userID string) (credential models.Credential, err error) {
	ctx, span := tracing.StartSpan(ctx, "AuthManager.GetCredentials")
	defer func() { tracing.EndWithError(span, err) }()

	if _, err := m.adapter(provider); err != nil {
		return nil, err
	}
	if err := requireIdentity(orgID, userID); err != nil {
		return nil, err
	}

	raw, err := m.vault.Consume(ctx, vault.Key(provider.String(), vault.PurposeCredentials, orgID, userID))
	if err != nil {
		metrics.RecordFlowStage(provider.String(), "credentials", "error")
		if errors.Is(err, vault.ErrNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}

	credential, err = models.ParseCredential(raw)
	if err != nil {
		metrics.RecordFlowStage(provider.String(), "credentials", "error")
		return nil, fmt.Errorf("%w: %v", vault.ErrStorage, err)
	}

	metrics.RecordFlowStage(provider.String(), "credentials", "ok")
	m.publish(ctx, &models.ConnectionEvent{Type: models.EventCredentialsIssued, Provider: provider, OrgID: orgID, UserID: userID})

	return credential, nil
}

// ListItems fetches and normalizes the provider's objects using the credential's access token.
func (m *Manager) ListItems(ctx context.Context, provider models.Provider, orgID, userID string, credential models.Credential) (items []models.IntegrationItem, err error) {
	ctx, span := tracing.StartSpan(ctx, "AuthManager.ListItems")
	defer func() { tracing.EndWithError(span, err) }()

	a, err := m.adapter(provider)
	if err != nil {
		return nil, err
	}
	if a.RequiresIdentityForItems() {
		if err := requireIdentity(orgID, userID); err != nil {
			return nil, err
		}
	}

	token := credential.AccessToken()
	if token == "" {
		return nil, ErrMissingAccessToken
	}

	start := time.Now()
	raw, err := a.FetchItems(ctx, token)
	if err != nil {
		metrics.RecordItemListing(provider.String(), "error", time.Since(start).Seconds(), nil)
		m.logger.WithContext(ctx).WithError(err).Errorf("Failed to list %s items", provider)
		return nil, err
	}

	items = make([]models.IntegrationItem, 0, len(raw))
	counts := make(map[string]int)
	for _, r := range raw {
		item := a.Normalize(r)
		items = append(items, item)
		counts[item.Type]++
	}
	metrics.RecordItemListing(provider.String(), "ok", time.Since(start).Seconds(), counts)

	evt := &models.ConnectionEvent{Type: models.EventItemsListed, Provider: provider, OrgID: orgID, UserID: userID, ItemCount: len(items)}
	m.publish(ctx, evt)
	if m.publisher != nil && len(items) > 0 {
		if err := m.publisher.PublishItems(ctx, evt, items); err != nil {
			m.logger.WithContext(ctx).WithError(err).Warnf("Failed to publish %d %s items", len(items), provider)
		}
	}

	m.logger.WithContext(ctx).Infof("Fetched %d %s items for user %s", len(items), provider, userID)
	return items, nil
}

func (m *Manager) publish(ctx context.Context, evt *models.ConnectionEvent) {
	if m.publisher == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if err := m.publisher.PublishConnectionEvent(ctx, evt); err != nil {
		m.logger.WithContext(ctx).WithError(err).Warnf("Failed to publish %s event", evt.Type)
	}
}

// failureReason maps an error to a stable label for events.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrAuthorizationDenied):
		return "denied"
	case errors.Is(err, ErrValidation):
		return "invalid_request"
	case errors.Is(err, ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, providers.ErrTokenExchange):
		return "token_exchange"
	case errors.Is(err, vault.ErrStorage):
		return "storage"
	default:
		return "unknown"
	}
}
