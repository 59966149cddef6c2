// Package providers holds one adapter per third-party platform. An adapter
// knows how to build the authorization URL, exchange a code for tokens and
// list the platform's objects as integration items.
package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/oauth2"

	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrTokenExchange is returned when the provider rejects a code exchange
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrUpstreamFetch is returned when any call made while listing items fails
	ErrUpstreamFetch = errors.New("upstream fetch failed")
)

// ExchangeError carries the provider's answer to a failed code exchange.
type ExchangeError struct {
	Provider   models.Provider
	StatusCode int
	Body       string
	Err        error
}

func (e *ExchangeError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s token exchange failed: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s token exchange failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
	}
}

func (e *ExchangeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTokenExchange, e.Err}
	}
	return []error{ErrTokenExchange}
}

// FetchError reports a listing that stopped part way. Fetched counts the
// objects retrieved before the failure; they are never returned.
type FetchError struct {
	Provider models.Provider
	Fetched  int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s item listing failed after %d objects: %v", e.Provider, e.Fetched, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrUpstreamFetch, e.Err}
}

// ParentContext links a child object to the object it was listed under.
type ParentContext struct {
	ID   string
	Name string
}

// RawItem is one native object as returned by a provider API.
type RawItem struct {
	Type   string
	Object map[string]any
	Parent *ParentContext
}

// Adapter is implemented once per provider.
type Adapter interface {
	Name() models.Provider
	Endpoint() oauth2.Endpoint
	Scopes() []string
	UsesPKCE() bool
	// RequiresIdentityForItems reports whether listing needs the caller's org and user ids.
	RequiresIdentityForItems() bool
	AuthCodeURL(state, verifier string) string
	// Exchange trades an authorization code for the provider's token response, returned verbatim.
	Exchange(ctx context.Context, code, verifier string) (json.RawMessage, error)
	FetchItems(ctx context.Context, accessToken string) ([]RawItem, error)
	Normalize(item RawItem) models.IntegrationItem
}

// Settings configures one adapter.
type Settings struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Empty values use the provider's production endpoints
	AuthURL  string
	TokenURL string
	APIURL   string

	RequestsPerSecond float64
	Timeout           time.Duration
	// FanOutLimit bounds concurrent follow-up requests while listing
	FanOutLimit int
}

func (s Settings) withDefaults(authURL, tokenURL, apiURL string, rps float64) Settings {
	if s.AuthURL == "" {
		s.AuthURL = authURL
	}
	if s.TokenURL == "" {
		s.TokenURL = tokenURL
	}
	if s.APIURL == "" {
		s.APIURL = apiURL
	}
	if s.RequestsPerSecond <= 0 {
		s.RequestsPerSecond = rps
	}
	if s.Timeout <= 0 {
		s.Timeout = httpclient.DefaultTimeout
	}
	if s.FanOutLimit <= 0 {
		s.FanOutLimit = 1
	}
	return s
}

// base carries what every adapter shares: OAuth config, HTTP, limits and logging.
type base struct {
	name       models.Provider
	settings   Settings
	oauth      *oauth2.Config
	authParams []oauth2.AuthCodeOption
	http       *httpclient.Client
	limiter    *RateLimiter
	eval       *expressions.Evaluator
	logger     ectologger.Logger
}

func newBase(name models.Provider, settings Settings, scopes []string, client *httpclient.Client, eval *expressions.Evaluator, logger ectologger.Logger) base {
	return base{
		name:     name,
		settings: settings,
		oauth: &oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			RedirectURL:  settings.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  settings.AuthURL,
				TokenURL: settings.TokenURL,
			},
		},
		http:    client,
		limiter: NewRateLimiter(name, settings.RequestsPerSecond),
		eval:    eval,
		logger:  logger,
	}
}

func (b *base) Name() models.Provider {
	return b.name
}

func (b *base) Endpoint() oauth2.Endpoint {
	return b.oauth.Endpoint
}

func (b *base) Scopes() []string {
	return b.oauth.Scopes
}

// authCodeURL builds the consent URL, adding the S256 challenge when a verifier is given.
func (b *base) authCodeURL(state, verifier string) string {
	opts := append([]oauth2.AuthCodeOption{}, b.authParams...)
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return b.oauth.AuthCodeURL(state, opts...)
}

func (b *base) basicAuth() string {
	creds := b.settings.ClientID + ":" + b.settings.ClientSecret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

// call runs one outbound request under the provider's rate limit and timeout.
func (b *base) call(ctx context.Context, fn func(ctx context.Context) (*httpclient.Response, error)) (*httpclient.Response, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.settings.Timeout)
	defer cancel()

	resp, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	if httpclient.IsRateLimitStatus(resp.StatusCode) {
		b.limiter.Backoff(resp.Headers.Get("Retry-After"))
	}
	return resp, nil
}

// tokenResponse validates a token endpoint answer and returns it verbatim.
func (b *base) tokenResponse(ctx context.Context, resp *httpclient.Response, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, &ExchangeError{Provider: b.name, Err: err}
	}
	if !resp.IsSuccess() {
		b.logger.WithContext(ctx).WithField("status", resp.StatusCode).Warnf("%s rejected the authorization code", b.name)
		return nil, &ExchangeError{Provider: b.name, StatusCode: resp.StatusCode, Body: resp.Snippet()}
	}

	var obj map[string]any
	if err := json.Unmarshal(resp.Body, &obj); err != nil || obj == nil {
		return nil, &ExchangeError{Provider: b.name, StatusCode: resp.StatusCode, Err: errors.New("token response is not a json object")}
	}

	return json.RawMessage(resp.Body), nil
}

// getJSON performs an authenticated GET and decodes the body.
func (b *base) getJSON(ctx context.Context, endpoint string, query url.Values, accessToken string) (data any, body []byte, err error) {
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("Provider.%s.Get", b.name))
	defer func() { tracing.EndWithError(span, err) }()

	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	resp, err := b.call(ctx, func(ctx context.Context) (*httpclient.Response, error) {
		return b.http.Get(ctx, endpoint, map[string]string{
			"Authorization": "Bearer " + accessToken,
			"Accept":        "application/json",
		})
	})
	return b.decode(resp, err)
}

func (b *base) decode(resp *httpclient.Response, err error) (any, []byte, error) {
	if err != nil {
		return nil, nil, err
	}
	if !resp.IsSuccess() {
		return nil, nil, fmt.Errorf("status %d: %s", resp.StatusCode, resp.Snippet())
	}
	if !resp.IsJSON() {
		return nil, nil, fmt.Errorf("unexpected content type %q", resp.ContentType)
	}

	var data any
	if err := resp.DecodeJSON(&data); err != nil {
		return nil, nil, err
	}
	return data, resp.Body, nil
}

// objects keeps the JSON objects of a decoded list, skipping anything else.
func objects(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, v := range list {
		if obj, ok := v.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// errRepeatedCursor stops pagination loops on a provider that keeps returning the same page.
func errRepeatedCursor(cursor string) error {
	return fmt.Errorf("provider returned cursor %q twice", cursor)
}
