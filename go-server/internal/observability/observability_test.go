package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripProtocol(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{in: "http://collector:4318", want: "collector:4318"},
		{in: "https://collector:4318/v1/traces", want: "collector:4318"},
		{in: `"collector:4318"`, want: "collector:4318"},
		{in: "collector:4318/extra", want: "collector:4318"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, stripProtocol(tc.in), tc.in)
	}
}

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	obs, err := Setup(context.Background(), Options{ServiceName: "goodproducts"})
	require.NoError(t, err)

	assert.Equal(t, Status{}, obs.Status())
	assert.NoError(t, obs.Shutdown(context.Background()))
}

func TestSetup_WithEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()

	obs, err := Setup(context.Background(), Options{
		ServiceName:  "goodproducts",
		Environment:  "test",
		OTLPEndpoint: "http://127.0.0.1:4318",
		Registerer:   registry,
	})
	require.NoError(t, err)

	assert.True(t, obs.Status().TracingEnabled)
	assert.True(t, obs.Status().MetricsEnabled)

	// no collector is listening, so flush errors are expected and ignored
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_ = obs.Shutdown(ctx)
}
