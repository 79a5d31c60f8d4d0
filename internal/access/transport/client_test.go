package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"signaccess/internal/access/transport/mocks"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestNew(t *testing.T) {
	t.Run("trims trailing slash and extracts host", func(t *testing.T) {
		c, err := New("https://example.conductor.one/")
		require.NoError(t, err)
		assert.Equal(t, "https://example.conductor.one", c.BaseURL())
		assert.Equal(t, "example.conductor.one", c.Host())
		assert.Equal(t, "https://example.conductor.one/auth/v1/token", c.URL("/auth/v1/token"))
		assert.Equal(t, "https://example.conductor.one/auth/v1/token", c.URL("auth/v1/token"))
	})

	t.Run("rejects relative url", func(t *testing.T) {
		_, err := New("example.conductor.one")
		require.Error(t, err)
		assert.True(t, IsCategory(err, CategoryInvalidConfig))
	})
}

func TestPostJSON(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockHTTPDoer(ctrl)
	c, err := New("https://example.conductor.one", WithHTTPDoer(doer))
	require.NoError(t, err)

	t.Run("sends bearer token and json body", func(t *testing.T) {
		doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, "/api/v1/search/entitlements", req.URL.Path)
			assert.Equal(t, "Bearer tok-1", req.Header.Get("Authorization"))
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "prod-admin-access", body["alias"])
			return jsonResponse(http.StatusOK, `{"list":[]}`), nil
		})

		resp, err := c.PostJSON(context.Background(), "search.entitlements", "/api/v1/search/entitlements", "tok-1",
			map[string]any{"alias": "prod-admin-access"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"list":[]}`, string(resp.Body))
	})

	t.Run("401 is an authentication error", func(t *testing.T) {
		doer.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusUnauthorized, `{"error":"expired"}`), nil)

		_, err := c.PostJSON(context.Background(), "search.tasks", "/api/v1/search/tasks", "tok", struct{}{})
		require.Error(t, err)
		assert.Equal(t, CategoryAuthentication, CategoryOf(err))
		e, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, e.StatusCode)
		assert.Equal(t, `{"error":"expired"}`, e.Body)
	})

	t.Run("other non-2xx is an api error without body in message", func(t *testing.T) {
		doer.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusInternalServerError, `secret detail`), nil)

		_, err := c.PostJSON(context.Background(), "task.grant", "/api/v1/task/grant", "tok", struct{}{})
		require.Error(t, err)
		assert.Equal(t, CategoryAPI, CategoryOf(err))
		assert.NotContains(t, err.Error(), "secret detail")
		assert.Contains(t, err.Error(), "HTTP 500")
	})

	t.Run("transport failure is a network error", func(t *testing.T) {
		doer.EXPECT().Do(gomock.Any()).Return(nil, errors.New("dial tcp: connection refused"))

		_, err := c.PostJSON(context.Background(), "task.grant", "/api/v1/task/grant", "tok", struct{}{})
		require.Error(t, err)
		assert.Equal(t, CategoryNetwork, CategoryOf(err))
	})
}

func TestPostForm(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockHTTPDoer(ctrl)
	c, err := New("https://example.conductor.one", WithHTTPDoer(doer))
	require.NoError(t, err)

	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
		assert.Equal(t, "yes", req.Header.Get("X-Decorated"))
		raw, _ := io.ReadAll(req.Body)
		form, err := url.ParseQuery(string(raw))
		require.NoError(t, err)
		assert.Equal(t, "client_credentials", form.Get("grant_type"))
		return jsonResponse(http.StatusBadRequest, `{"error":"invalid_client"}`), nil
	})

	resp, err := c.PostForm(context.Background(), "token", "auth/v1/token",
		url.Values{"grant_type": {"client_credentials"}},
		func(r *http.Request) { r.Header.Set("X-Decorated", "yes") })
	require.NoError(t, err, "non-2xx is returned as a response for the caller to classify")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDecode(t *testing.T) {
	type payload struct {
		ID string `json:"id"`
	}

	got, err := Decode[payload]("op", &Response{StatusCode: 200, Body: []byte(`{"id":"abc"}`)})
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ID)

	_, err = Decode[payload]("op", &Response{StatusCode: 200, Body: []byte(`{bad`)})
	require.Error(t, err)
	assert.Equal(t, CategoryBadData, CategoryOf(err))
}

func TestCategoryOfUnclassified(t *testing.T) {
	assert.Equal(t, CategoryNetwork, CategoryOf(errors.New("plain")))
	assert.False(t, IsCategory(errors.New("plain"), CategoryAPI))
}
