package providers

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	HubSpotAuthURL  = "https://app.hubspot.com/oauth/authorize"
	HubSpotTokenURL = "https://api.hubapi.com/oauth/v1/token"
	HubSpotAPIURL   = "https://api.hubapi.com"

	hubspotContactsPath = "/crm/v3/objects/contacts"
	hubspotPageSize     = "100"
	hubspotCursorExpr   = "paging.next.after"
	hubspotResultsExpr  = "results"
	hubspotContactType  = "Contact"
)

// HubSpotScopes are requested on every HubSpot authorization.
var HubSpotScopes = []string{
	"crm.objects.contacts.read",
	"crm.objects.contacts.write",
	"crm.schemas.custom.read",
}

// HubSpot lists CRM contacts.
type HubSpot struct {
	base
}

// NewHubSpot creates the HubSpot adapter.
func NewHubSpot(settings Settings, client *httpclient.Client, eval *expressions.Evaluator, logger ectologger.Logger) *HubSpot {
	settings = settings.withDefaults(HubSpotAuthURL, HubSpotTokenURL, HubSpotAPIURL, DefaultRequestsPerSecond[models.ProviderHubSpot])
	eval.MustCompile(hubspotCursorExpr)
	eval.MustCompile(hubspotResultsExpr)

	return &HubSpot{
		base: newBase(models.ProviderHubSpot, settings, HubSpotScopes, client, eval, logger),
	}
}

func (h *HubSpot) UsesPKCE() bool {
	return true
}

func (h *HubSpot) RequiresIdentityForItems() bool {
	return false
}

func (h *HubSpot) AuthCodeURL(state, verifier string) string {
	return h.authCodeURL(state, verifier)
}

// Exchange posts the code with the client secret in the form body.
func (h *HubSpot) Exchange(ctx context.Context, code, verifier string) (credential json.RawMessage, err error) {
	ctx, span := tracing.StartSpan(ctx, "Provider.hubspot.Exchange")
	defer func() { tracing.EndWithError(span, err) }()

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {h.settings.RedirectURI},
		"client_id":     {h.settings.ClientID},
		"client_secret": {h.settings.ClientSecret},
	}
	if verifier != "" {
		form.Set("code_verifier", verifier)
	}

	resp, err := h.call(ctx, func(ctx context.Context) (*httpclient.Response, error) {
		return h.http.PostForm(ctx, h.settings.TokenURL, form, map[string]string{"Accept": "application/json"})
	})
	return h.tokenResponse(ctx, resp, err)
}

// FetchItems follows paging.next.after until HubSpot stops returning a cursor.
func (h *HubSpot) FetchItems(ctx context.Context, accessToken string) (items []RawItem, err error) {
	ctx, span := tracing.StartSpan(ctx, "Provider.hubspot.FetchItems")
	defer func() { tracing.EndWithError(span, err) }()

	endpoint := strings.TrimRight(h.settings.APIURL, "/") + hubspotContactsPath

	after := ""
	for {
		query := url.Values{"limit": {hubspotPageSize}}
		if after != "" {
			query.Set("after", after)
		}

		page, _, err := h.getJSON(ctx, endpoint, query, accessToken)
		if err != nil {
			return nil, &FetchError{Provider: h.name, Fetched: len(items), Err: err}
		}

		results, _ := h.eval.Slice(hubspotResultsExpr, page)
		for _, obj := range objects(results) {
			items = append(items, RawItem{Type: hubspotContactType, Object: obj})
		}

		next, ok := h.eval.String(hubspotCursorExpr, page)
		if !ok {
			break
		}
		if next == after {
			return nil, &FetchError{Provider: h.name, Fetched: len(items), Err: errRepeatedCursor(next)}
		}
		after = next
	}

	h.logger.WithContext(ctx).Debugf("Fetched %d HubSpot contacts", len(items))
	return items, nil
}

// Normalize builds a Contact item named "firstname lastname", then email, then "Contact <id>".
func (h *HubSpot) Normalize(item RawItem) models.IntegrationItem {
	id := stringField(item.Object, "id")
	props, _ := item.Object["properties"].(map[string]any)

	name := strings.TrimSpace(stringField(props, "firstname") + " " + stringField(props, "lastname"))
	if name == "" {
		name = stringField(props, "email")
	}
	if name == "" {
		name = fallbackName(item.Type, id)
	}

	return models.IntegrationItem{
		ID:               id + "_" + item.Type,
		Name:             name,
		Type:             item.Type,
		CreationTime:     parseTime(item.Object, "createdAt"),
		LastModifiedTime: parseTime(item.Object, "updatedAt"),
	}
}
