package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/Gobusters/ectologger"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	AirtableAuthURL  = "https://airtable.com/oauth2/v1/authorize"
	AirtableTokenURL = "https://airtable.com/oauth2/v1/token"
	AirtableAPIURL   = "https://api.airtable.com"

	airtableBasesPath  = "/v0/meta/bases"
	airtableCursorExpr = "offset"
	airtableTablesExpr = "tables"
	airtableBaseType   = "Base"
	airtableTableType  = "Table"
)

// AirtableScopes are requested on every Airtable authorization.
var AirtableScopes = []string{
	"data.records:read",
	"data.records:write",
	"data.recordComments:read",
	"data.recordComments:write",
	"schema.bases:read",
	"schema.bases:write",
}

// Airtable lists bases and the tables inside each base.
type Airtable struct {
	base
}

// NewAirtable creates the Airtable adapter. settings.FanOutLimit bounds concurrent table fetches.
func NewAirtable(settings Settings, client *httpclient.Client, eval *expressions.Evaluator, logger ectologger.Logger) *Airtable {
	settings = settings.withDefaults(AirtableAuthURL, AirtableTokenURL, AirtableAPIURL, DefaultRequestsPerSecond[models.ProviderAirtable])
	eval.MustCompile(airtableCursorExpr)
	eval.MustCompile(airtableTablesExpr)

	a := &Airtable{
		base: newBase(models.ProviderAirtable, settings, AirtableScopes, client, eval, logger),
	}
	a.authParams = []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("owner", "user")}
	return a
}

func (a *Airtable) UsesPKCE() bool {
	return true
}

func (a *Airtable) RequiresIdentityForItems() bool {
	return true
}

func (a *Airtable) AuthCodeURL(state, verifier string) string {
	return a.authCodeURL(state, verifier)
}

// Exchange authenticates with a Basic header and repeats client_id in the form.
func (a *Airtable) Exchange(ctx context.Context, code, verifier string) (credential json.RawMessage, err error) {
	ctx, span := tracing.StartSpan(ctx, "Provider.airtable.Exchange")
	defer func() { tracing.EndWithError(span, err) }()

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {a.settings.RedirectURI},
		"client_id":    {a.settings.ClientID},
	}
	if verifier != "" {
		form.Set("code_verifier", verifier)
	}

	resp, err := a.call(ctx, func(ctx context.Context) (*httpclient.Response, error) {
		return a.http.PostForm(ctx, a.settings.TokenURL, form, map[string]string{
			"Authorization": a.basicAuth(),
			"Accept":        "application/json",
		})
	})
	return a.tokenResponse(ctx, resp, err)
}

// FetchItems pages through the bases, then fetches each base's tables.
// Items come back as base, its tables, next base, whatever order the table calls finish in.
func (a *Airtable) FetchItems(ctx context.Context, accessToken string) (items []RawItem, err error) {
	ctx, span := tracing.StartSpan(ctx, "Provider.airtable.FetchItems")
	defer func() { tracing.EndWithError(span, err) }()

	bases, err := a.fetchBases(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	tables := make([][]map[string]any, len(bases))
	var fetched atomic.Int64
	fetched.Add(int64(len(bases)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.settings.FanOutLimit)
	for i, b := range bases {
		baseID := stringField(b, "id")
		g.Go(func() error {
			result, err := a.fetchTables(gctx, accessToken, baseID)
			if err != nil {
				return fmt.Errorf("tables of base %s: %w", baseID, err)
			}
			tables[i] = result
			fetched.Add(int64(len(result)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &FetchError{Provider: a.name, Fetched: int(fetched.Load()), Err: err}
	}

	items = make([]RawItem, 0, int(fetched.Load()))
	for i, b := range bases {
		items = append(items, RawItem{Type: airtableBaseType, Object: b})
		parent := &ParentContext{ID: stringField(b, "id"), Name: stringField(b, "name")}
		for _, t := range tables[i] {
			items = append(items, RawItem{Type: airtableTableType, Object: t, Parent: parent})
		}
	}

	a.logger.WithContext(ctx).Debugf("Fetched %d Airtable bases and %d items in total", len(bases), len(items))
	return items, nil
}

func (a *Airtable) fetchBases(ctx context.Context, accessToken string) ([]map[string]any, error) {
	endpoint := strings.TrimRight(a.settings.APIURL, "/") + airtableBasesPath

	var bases []map[string]any
	offset := ""
	for {
		query := url.Values{}
		if offset != "" {
			query.Set("offset", offset)
		}

		page, body, err := a.getJSON(ctx, endpoint, query, accessToken)
		if err != nil {
			return nil, &FetchError{Provider: a.name, Fetched: len(bases), Err: err}
		}

		var envelope struct {
			Bases json.RawMessage `json:"bases"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, &FetchError{Provider: a.name, Fetched: len(bases), Err: err}
		}
		pageBases, err := orderedObjects(envelope.Bases)
		if err != nil {
			return nil, &FetchError{Provider: a.name, Fetched: len(bases), Err: fmt.Errorf("bases: %w", err)}
		}
		bases = append(bases, pageBases...)

		next, ok := a.eval.String(airtableCursorExpr, page)
		if !ok {
			return bases, nil
		}
		if next == offset {
			return nil, &FetchError{Provider: a.name, Fetched: len(bases), Err: errRepeatedCursor(next)}
		}
		offset = next
	}
}

func (a *Airtable) fetchTables(ctx context.Context, accessToken, baseID string) ([]map[string]any, error) {
	endpoint := strings.TrimRight(a.settings.APIURL, "/") + airtableBasesPath + "/" + url.PathEscape(baseID) + "/tables"

	page, _, err := a.getJSON(ctx, endpoint, nil, accessToken)
	if err != nil {
		return nil, err
	}
	tables, _ := a.eval.Slice(airtableTablesExpr, page)
	return objects(tables), nil
}

// Normalize builds "<id>_Base" and "<id>_Table" items. Tables point at their base.
func (a *Airtable) Normalize(item RawItem) models.IntegrationItem {
	id := stringField(item.Object, "id")
	name := stringField(item.Object, "name")
	if name == "" {
		name = fallbackName(item.Type, id)
	}

	out := models.IntegrationItem{
		ID:   id + "_" + item.Type,
		Name: name,
		Type: item.Type,
	}
	if item.Parent != nil && item.Parent.ID != "" {
		out.ParentID = ptr(item.Parent.ID + "_" + airtableBaseType)
		out.ParentPathOrName = ptr(item.Parent.Name)
	}
	return out
}
