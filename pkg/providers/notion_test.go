package providers_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/providers"
)

func TestNotion_AuthCodeURL(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	n := providers.NewNotion(testSettings(srv), newTestClient(), newTestEvaluator(), getTestLogger())

	u, err := url.Parse(n.AuthCodeURL("st", "ignored"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "user", q.Get("owner"))
	assert.Equal(t, "all", q.Get("scope"))
	assert.Equal(t, "st", q.Get("state"))
	assert.Empty(t, q.Get("code_challenge"))
	assert.False(t, n.UsesPKCE())
}

func TestNotion_Exchange(t *testing.T) {
	bodies := make(chan map[string]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		assert.Equal(t, providers.NotionVersion, r.Header.Get("Notion-Version"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		data, _ := io.ReadAll(r.Body)
		var body map[string]string
		_ = json.Unmarshal(data, &body)
		bodies <- body

		writeJSON(w, http.StatusOK, map[string]any{"access_token": "secret_x", "workspace_id": "ws1", "bot_id": "b1"})
	}))
	defer srv.Close()

	n := providers.NewNotion(testSettings(srv), newTestClient(), newTestEvaluator(), getTestLogger())
	raw, err := n.Exchange(context.Background(), "code", "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"secret_x","workspace_id":"ws1","bot_id":"b1"}`, string(raw))

	body := <-bodies
	assert.Equal(t, "authorization_code", body["grant_type"])
	assert.Equal(t, "code", body["code"])
	assert.NotEmpty(t, body["redirect_uri"])
	assert.NotContains(t, body, "code_verifier")
}

func TestNotion_FetchItems(t *testing.T) {
	t.Run("should return search results", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/search", r.URL.Path)
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, providers.NotionVersion, r.Header.Get("Notion-Version"))
			writeJSON(w, http.StatusOK, map[string]any{
				"results": []any{
					map[string]any{"object": "page", "id": "p1"},
					map[string]any{"object": "database", "id": "d1"},
				},
				"has_more": false,
			})
		}))
		defer srv.Close()

		n := providers.NewNotion(testSettings(srv), newTestClient(), newTestEvaluator(), getTestLogger())
		items, err := n.FetchItems(context.Background(), "tok")
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "page", items[0].Type)
		assert.Equal(t, "database", items[1].Type)
	})

	t.Run("should fail loud on error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "unauthorized"})
		}))
		defer srv.Close()

		n := providers.NewNotion(testSettings(srv), newTestClient(), newTestEvaluator(), getTestLogger())
		items, err := n.FetchItems(context.Background(), "tok")
		assert.Nil(t, items)
		assert.ErrorIs(t, err, providers.ErrUpstreamFetch)
	})
}

func TestNotion_Normalize(t *testing.T) {
	n := providers.NewNotion(providers.Settings{}, newTestClient(), newTestEvaluator(), getTestLogger())

	normalize := func(obj map[string]any) string {
		return n.Normalize(providers.RawItem{Type: "page", Object: obj}).Name
	}

	t.Run("should use the title list", func(t *testing.T) {
		assert.Equal(t, "X", normalize(map[string]any{
			"object":     "page",
			"id":         "abc",
			"properties": map[string]any{"title": []any{map[string]any{"plain_text": "X"}}},
		}))
	})

	t.Run("should use the title property of a real page", func(t *testing.T) {
		assert.Equal(t, "Roadmap", normalize(map[string]any{
			"object": "page",
			"id":     "abc",
			"properties": map[string]any{"title": map[string]any{
				"id":    "title",
				"type":  "title",
				"title": []any{map[string]any{"plain_text": "Roadmap"}},
			}},
		}))
	})

	t.Run("should use a database title", func(t *testing.T) {
		assert.Equal(t, "Tasks", normalize(map[string]any{
			"object": "database",
			"id":     "db",
			"title":  []any{map[string]any{"plain_text": "Tasks"}},
		}))
	})

	t.Run("should search nested content", func(t *testing.T) {
		assert.Equal(t, "Y", normalize(map[string]any{
			"object":     "page",
			"id":         "abc",
			"properties": map[string]any{"foo": map[string]any{"content": "Y"}},
		}))
	})

	t.Run("should fall back to object and id", func(t *testing.T) {
		assert.Equal(t, "page abc", normalize(map[string]any{"object": "page", "id": "abc"}))
	})

	t.Run("should resolve parents", func(t *testing.T) {
		item := n.Normalize(providers.RawItem{Object: map[string]any{
			"object":           "page",
			"id":               "p",
			"created_time":     "2023-05-01T10:00:00.000Z",
			"last_edited_time": "2023-05-02T10:00:00.000Z",
			"parent":           map[string]any{"type": "database_id", "database_id": "db1"},
		}})
		require.NotNil(t, item.ParentID)
		assert.Equal(t, "db1", *item.ParentID)
		assert.Equal(t, "page", item.Type)
		assert.Equal(t, "p", item.ID)
		require.NotNil(t, item.CreationTime)
		require.NotNil(t, item.LastModifiedTime)
		assert.True(t, item.LastModifiedTime.After(*item.CreationTime))

		item = n.Normalize(providers.RawItem{Object: map[string]any{
			"object": "page",
			"id":     "p",
			"parent": map[string]any{"type": "workspace", "workspace": true},
		}})
		assert.Nil(t, item.ParentID)
	})
}
