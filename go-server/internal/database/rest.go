package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	config "github.com/fonsecaaso/goodproducts/go-server/config"
	"github.com/fonsecaaso/goodproducts/go-server/internal/tracing"
	"go.uber.org/zap"
)

const restPath = "/rest/v1/"

// RestError is the error body returned by a PostgREST endpoint
type RestError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *RestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rest store returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("rest store returned status %d: %s", e.StatusCode, e.Message)
}

// RestClient talks to a PostgREST (Supabase-style) endpoint
type RestClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRestClient builds a client whose requests are logged and traced
func NewRestClient(secrets *config.Config) *RestClient {
	return NewRestClientWithHTTP(secrets.StoreURL, secrets.StoreAPIKey, &http.Client{
		Timeout:   10 * time.Second,
		Transport: tracing.NewLoggingTransport(nil, zap.L().Named("store")),
	})
}

// NewRestClientWithHTTP builds a client on top of an existing http.Client
func NewRestClientWithHTTP(baseURL, apiKey string, httpClient *http.Client) *RestClient {
	return &RestClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Insert posts rows to table without asking for the representation back
func (c *RestClient) Insert(ctx context.Context, table string, rows any) error {
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, table, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	return c.do(req, nil)
}

// Select runs a GET against table with the given PostgREST query and decodes the rows into out
func (c *RestClient) Select(ctx context.Context, table string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, table, query, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, out)
}

func (c *RestClient) newRequest(ctx context.Context, method, table string, query url.Values, body io.Reader) (*http.Request, error) {
	endpoint := c.baseURL + restPath + url.PathEscape(table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

func (c *RestClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		restErr := &RestError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(restErr)
		return restErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
