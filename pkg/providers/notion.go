package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Gobusters/ectologger"
	"golang.org/x/oauth2"

	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	NotionAuthURL  = "https://api.notion.com/v1/oauth/authorize"
	NotionTokenURL = "https://api.notion.com/v1/oauth/token"
	NotionAPIURL   = "https://api.notion.com"
	NotionVersion  = "2022-06-28"

	notionSearchPath  = "/v1/search"
	notionResultsExpr = "results"
	notionTitleExpr   = "properties.title[0].plain_text"
	notionPropTitle   = "properties.title.title[0].plain_text"
	notionDBTitleExpr = "title[0].plain_text"
	notionContentKey  = "content"
)

// NotionScopes are requested on every Notion authorization.
var NotionScopes = []string{"all"}

// Notion lists the pages and databases shared with the integration.
type Notion struct {
	base
}

// NewNotion creates the Notion adapter.
func NewNotion(settings Settings, client *httpclient.Client, eval *expressions.Evaluator, logger ectologger.Logger) *Notion {
	settings = settings.withDefaults(NotionAuthURL, NotionTokenURL, NotionAPIURL, DefaultRequestsPerSecond[models.ProviderNotion])
	for _, expr := range []string{notionResultsExpr, notionTitleExpr, notionPropTitle, notionDBTitleExpr} {
		eval.MustCompile(expr)
	}

	n := &Notion{
		base: newBase(models.ProviderNotion, settings, NotionScopes, client, eval, logger),
	}
	n.authParams = []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("owner", "user")}
	return n
}

func (n *Notion) UsesPKCE() bool {
	return false
}

func (n *Notion) RequiresIdentityForItems() bool {
	return true
}

// AuthCodeURL ignores verifier; Notion does not support PKCE.
func (n *Notion) AuthCodeURL(state, _ string) string {
	return n.authCodeURL(state, "")
}

// Exchange sends a JSON body with a Basic header and the pinned API version.
func (n *Notion) Exchange(ctx context.Context, code, _ string) (credential json.RawMessage, err error) {
	ctx, span := tracing.StartSpan(ctx, "Provider.notion.Exchange")
	defer func() { tracing.EndWithError(span, err) }()

	body := map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": n.settings.RedirectURI,
	}

	resp, err := n.call(ctx, func(ctx context.Context) (*httpclient.Response, error) {
		return n.http.PostJSON(ctx, n.settings.TokenURL, body, map[string]string{
			"Authorization":  n.basicAuth(),
			"Notion-Version": NotionVersion,
			"Accept":         "application/json",
		})
	})
	return n.tokenResponse(ctx, resp, err)
}

// FetchItems runs a single search. Only the first page of results is returned.
func (n *Notion) FetchItems(ctx context.Context, accessToken string) (items []RawItem, err error) {
	ctx, span := tracing.StartSpan(ctx, "Provider.notion.FetchItems")
	defer func() { tracing.EndWithError(span, err) }()

	endpoint := strings.TrimRight(n.settings.APIURL, "/") + notionSearchPath

	resp, err := n.call(ctx, func(ctx context.Context) (*httpclient.Response, error) {
		return n.http.PostJSON(ctx, endpoint, map[string]any{}, map[string]string{
			"Authorization":  "Bearer " + accessToken,
			"Notion-Version": NotionVersion,
			"Accept":         "application/json",
		})
	})
	page, _, err := n.decode(resp, err)
	if err != nil {
		return nil, &FetchError{Provider: n.name, Err: err}
	}

	results, _ := n.eval.Slice(notionResultsExpr, page)
	objs := objects(results)
	items = make([]RawItem, 0, len(objs))
	for _, obj := range objs {
		items = append(items, RawItem{Type: stringField(obj, "object"), Object: obj})
	}

	n.logger.WithContext(ctx).Debugf("Fetched %d Notion objects", len(items))
	return items, nil
}

// Normalize names the item from its title, then any nested "content" text
// under properties, then "<object> <id>".
func (n *Notion) Normalize(item RawItem) models.IntegrationItem {
	obj := item.Object
	id := stringField(obj, "id")
	objectType := stringField(obj, "object")

	name := n.title(obj)
	if name == "" {
		name, _ = SearchKey(obj["properties"], notionContentKey)
	}
	if name == "" {
		name = fallbackName(objectType, id)
	}

	return models.IntegrationItem{
		ID:               id,
		Name:             name,
		Type:             objectType,
		ParentID:         notionParent(obj),
		CreationTime:     parseTime(obj, "created_time"),
		LastModifiedTime: parseTime(obj, "last_edited_time"),
	}
}

func (n *Notion) title(obj map[string]any) string {
	for _, expr := range []string{notionTitleExpr, notionPropTitle, notionDBTitleExpr} {
		if s, ok := n.eval.String(expr, obj); ok {
			return s
		}
	}
	return ""
}

// notionParent returns parent[parent.type], or nil for workspace-level objects.
func notionParent(obj map[string]any) *string {
	parent, ok := obj["parent"].(map[string]any)
	if !ok {
		return nil
	}
	parentType := stringField(parent, "type")
	if parentType == "" || parentType == "workspace" {
		return nil
	}
	return ptr(stringField(parent, parentType))
}
