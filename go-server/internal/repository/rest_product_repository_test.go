package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fonsecaaso/goodproducts/go-server/internal/database"
	"github.com/fonsecaaso/goodproducts/go-server/internal/model"
)

func setupRestRepo(t *testing.T, handler http.HandlerFunc) *RestProductRepository {
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := database.NewRestClientWithHTTP(srv.URL, "anon-key", srv.Client())
	return NewRestProductRepository(client, "products")
}

func TestRestCreate_SendsSingleRowWithExternalFieldNames(t *testing.T) {
	var body []map[string]string
	repo := setupRestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/products", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
	})

	err := repo.Create(context.Background(), &model.SubmissionRecord{
		Name:        "Acme",
		Description: "A tool",
		Website:     "https://acme.io",
		Tags:        "ai,saas",
		Email:       "a@acme.io",
		CreatedAt:   "2025-03-14T08:26:53.589Z",
	})

	require.NoError(t, err)
	require.Len(t, body, 1)
	assert.Equal(t, "Acme", body[0]["name"])
	assert.Equal(t, "https://acme.io", body[0]["website"])
	assert.Equal(t, "ai,saas", body[0]["Tags"])
	assert.Equal(t, "2025-03-14T08:26:53.589Z", body[0]["created_at"])
}

func TestRestCreate_ErrorStatus(t *testing.T) {
	repo := setupRestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := repo.Create(context.Background(), &model.SubmissionRecord{Name: "Acme"})

	assert.ErrorIs(t, err, ErrDatabaseError)
}

func TestRestLatest_QueryShape(t *testing.T) {
	repo := setupRestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "*", q.Get("select"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "5", q.Get("limit"))
		_, _ = w.Write([]byte(`[
			{"id":7,"name":"Acme","description":"A tool","website":"https://acme.io","Tags":"ai,saas","email":"a@acme.io","created_at":"2025-03-14T08:26:53.589+00:00"}
		]`))
	})

	products, err := repo.Latest(context.Background(), 5)

	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "7", products[0].ID)
	assert.Equal(t, "ai,saas", products[0].Tags)
	assert.Equal(t, 2025, products[0].CreatedAt.Year())
}

func TestRestLatest_Error(t *testing.T) {
	repo := setupRestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	products, err := repo.Latest(context.Background(), 5)

	assert.Nil(t, products)
	assert.ErrorIs(t, err, ErrDatabaseError)
}

func TestRestLatest_AcceptsUUIDKeysAndZonelessTimestamps(t *testing.T) {
	repo := setupRestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"3f1c9a8e-2d4b-4e6f-9a1b-7c8d9e0f1a2b","name":"Beta","description":null,"website":"https://beta.io","Tags":null,"email":"b@beta.io","created_at":"2025-03-15T09:00:00.123456","extra":true},
			{"id":7,"name":"Acme","website":"https://acme.io","email":"a@acme.io","created_at":"2025-03-14 08:26:53+00"}
		]`))
	})

	products, err := repo.Latest(context.Background(), 5)

	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "3f1c9a8e-2d4b-4e6f-9a1b-7c8d9e0f1a2b", products[0].ID)
	assert.Equal(t, "Beta", products[0].Name)
	assert.Empty(t, products[0].Tags)
	assert.True(t, time.Date(2025, 3, 15, 9, 0, 0, 123_456_000, time.UTC).Equal(products[0].CreatedAt))

	assert.Equal(t, "7", products[1].ID)
	assert.True(t, time.Date(2025, 3, 14, 8, 26, 53, 0, time.UTC).Equal(products[1].CreatedAt))
}

func TestRestLatest_KeepsRowWithUnparseableTimestamp(t *testing.T) {
	repo := setupRestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"name":"Acme","created_at":"not a time"}]`))
	})

	products, err := repo.Latest(context.Background(), 5)

	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Acme", products[0].Name)
	assert.True(t, products[0].CreatedAt.IsZero())
}

func TestRowID(t *testing.T) {
	assert.Equal(t, "42", rowID(json.RawMessage(`42`)))
	assert.Equal(t, "abc", rowID(json.RawMessage(`"abc"`)))
	assert.Equal(t, "", rowID(json.RawMessage(`null`)))
	assert.Equal(t, "", rowID(nil))
}
