package hubspot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c := NewClient("app-id", "app-secret",
		WithBaseURL(ts.URL),
		WithAccessToken("tok-1"),
	)
	return c, ts
}

func TestGetRecord(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/deals/901", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Contains(t, r.URL.RawQuery, "properties=")

		_ = json.NewEncoder(w).Encode(Record{
			ID:         "901",
			Properties: map[string]string{"amount": "50000"},
		})
	}))

	rec, err := c.GetRecord(context.Background(), "deals", "901", []string{"amount", "dealstage"})
	require.NoError(t, err)
	assert.Equal(t, "901", rec.ID)
	assert.Equal(t, "50000", rec.Properties["amount"])
}

func TestGetRecord_NotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.GetRecord(context.Background(), "deals", "nope", nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestSearchRecords(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/crm/v3/objects/deals/search", r.URL.Path)

		var req SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 100, req.Limit)
		require.Len(t, req.FilterGroups, 1)

		_ = json.NewEncoder(w).Encode(SearchResponse{
			Total:   1,
			Results: []Record{{ID: "901"}},
			Paging:  &Paging{Next: &PagingNext{After: "cursor-2"}},
		})
	}))

	resp, err := c.SearchRecords(context.Background(), "deals", SearchRequest{
		Limit: 100,
		FilterGroups: []FilterGroup{{Filters: []Filter{
			{PropertyName: "dealstage", Operator: "EQ", Value: "closedwon"},
		}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "cursor-2", resp.Paging.Next.After)
}

func TestSearchRecords_AuthExpired(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"category":"EXPIRED_AUTHENTICATION"}`))
	}))

	_, err := c.SearchRecords(context.Background(), "deals", SearchRequest{})
	require.Error(t, err)
	assert.True(t, IsAuthExpired(err))
}

func TestSearchRecords_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(SearchResponse{Results: []Record{{ID: "1"}}})
	}))

	resp, err := c.SearchRecords(context.Background(), "contacts", SearchRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSetAccessToken_RotatesBearer(t *testing.T) {
	var seen []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(Record{ID: "1"})
	}))

	_, err := c.GetRecord(context.Background(), "deals", "1", nil)
	require.NoError(t, err)

	c.SetAccessToken("tok-2")
	_, err = c.GetRecord(context.Background(), "deals", "1", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer tok-1", "Bearer tok-2"}, seen)
}

func TestGetAssociations(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v4/objects/deals/901/associations/companies", r.URL.Path)
		_, _ = w.Write([]byte(`{"results":[{"toObjectId":77,"associationType":"deal_to_company"}]}`))
	}))

	assocs, err := c.GetAssociations(context.Background(), "deals", "901", "companies")
	require.NoError(t, err)
	require.Len(t, assocs, 1)
	assert.Equal(t, "77", assocs[0].ID)
}

func TestUpdateRecord(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)

		var body struct {
			Properties map[string]string `json:"properties"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "87", body.Properties["ai_fit_score"])

		w.WriteHeader(http.StatusOK)
	}))

	err := c.UpdateRecord(context.Background(), "deals", "901", map[string]string{"ai_fit_score": "87"})
	require.NoError(t, err)
}

func TestRefreshToken(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/v1/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "app-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))

		_ = json.NewEncoder(w).Encode(TokenPair{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			ExpiresIn:    1800,
		})
	}))

	pair, err := c.RefreshToken(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", pair.AccessToken)
	assert.Equal(t, "new-refresh", pair.RefreshToken)
}

func TestRefreshToken_Denied(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"BAD_REFRESH_TOKEN"}`))
	}))

	_, err := c.RefreshToken(context.Background(), "revoked")
	assert.Error(t, err)
}
