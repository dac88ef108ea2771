package tracing

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingTransport_PreservesBodies(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	client := &http.Client{Transport: NewLoggingTransport(nil, zap.New(core))}

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`[{"name":"Acme"}]`))
	require.NoError(t, err)
	req.Header.Set("apikey", "anon-key")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, `[{"name":"Acme"}]`, received)
	assert.Equal(t, `{"ok":true}`, string(body))

	sent := logs.FilterMessage("Sending store request").All()
	require.Len(t, sent, 1)
	headers := sent[0].ContextMap()["headers"].(map[string]string)
	assert.Equal(t, "***REDACTED***", headers["Apikey"])
	assert.Equal(t, `[{"name":"Acme"}]`, sent[0].ContextMap()["body_preview"])
}

func TestLoggingTransport_ErrorStatusLoggedAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	client := &http.Client{Transport: NewLoggingTransport(nil, zap.New(core))}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestFormatBodyPreview(t *testing.T) {
	assert.Equal(t, "(empty)", formatBodyPreview(nil))
	assert.Equal(t, "a b", formatBodyPreview([]byte("a\nb")))
	assert.Contains(t, formatBodyPreview([]byte{0, 1, 2, 3, 4}), "binary data")
	assert.True(t, strings.HasSuffix(formatBodyPreview([]byte(strings.Repeat("x", 600))), "... (truncated)"))
}

func TestLoggingTransport_MasksEmailsInPreviews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"name":"Acme","email":"a@acme.io"}]`))
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	client := &http.Client{Transport: NewLoggingTransport(nil, zap.New(core))}

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`[{"name":"Beta","email":"b.owner+x@beta.co.uk"}]`))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	// the caller still gets the real body
	assert.Contains(t, string(body), "a@acme.io")

	for _, entry := range logs.All() {
		preview, _ := entry.ContextMap()["body_preview"].(string)
		assert.NotContains(t, preview, "@")
	}
	sent := logs.FilterMessage("Sending store request").All()
	require.Len(t, sent, 1)
	assert.Equal(t, `[{"name":"Beta","email":"[REDACTED]"}]`, sent[0].ContextMap()["body_preview"])
	received := logs.FilterMessage("Received store response").All()
	require.Len(t, received, 1)
	assert.Equal(t, `[{"id":1,"name":"Acme","email":"[REDACTED]"}]`, received[0].ContextMap()["body_preview"])
}
