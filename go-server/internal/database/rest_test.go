package database

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestClient_Insert(t *testing.T) {
	var (
		gotPath    string
		gotHeaders http.Header
		gotBody    []map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewRestClientWithHTTP(srv.URL, "anon-key", srv.Client())

	err := client.Insert(context.Background(), "products", []map[string]string{{"name": "Acme"}})
	require.NoError(t, err)

	assert.Equal(t, "/rest/v1/products", gotPath)
	assert.Equal(t, "anon-key", gotHeaders.Get("apikey"))
	assert.Equal(t, "Bearer anon-key", gotHeaders.Get("Authorization"))
	assert.Equal(t, "return=minimal", gotHeaders.Get("Prefer"))
	assert.Equal(t, []map[string]string{{"name": "Acme"}}, gotBody)
}

func TestRestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid API key","code":"PGRST301"}`))
	}))
	defer srv.Close()

	client := NewRestClientWithHTTP(srv.URL, "bad", srv.Client())

	err := client.Insert(context.Background(), "products", []int{1})

	var restErr *RestError
	require.True(t, errors.As(err, &restErr))
	assert.Equal(t, http.StatusUnauthorized, restErr.StatusCode)
	assert.Equal(t, "PGRST301", restErr.Code)
	assert.Contains(t, restErr.Error(), "Invalid API key")
}

func TestRestClient_Select(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`[{"id":2},{"id":1}]`))
	}))
	defer srv.Close()

	client := NewRestClientWithHTTP(srv.URL, "anon-key", srv.Client())

	var out []struct {
		ID int `json:"id"`
	}
	err := client.Select(context.Background(), "products", url.Values{"limit": {"5"}}, &out)
	require.NoError(t, err)

	assert.Equal(t, "5", gotQuery.Get("limit"))
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[0].ID)
}

func TestRestError_WithoutBody(t *testing.T) {
	err := &RestError{StatusCode: http.StatusBadGateway}
	assert.Equal(t, "rest store returned status 502", err.Error())
}
