package logger

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// lokiLoggingTransport traces Loki pushes on stderr; going through zap would recurse
type lokiLoggingTransport struct {
	base http.RoundTripper
	out  io.Writer
}

// NewLokiLoggingTransport creates a transport that reports each Loki push and its outcome
func NewLokiLoggingTransport() http.RoundTripper {
	return &lokiLoggingTransport{
		base: http.DefaultTransport,
		out:  os.Stderr,
	}
}

// RoundTrip implements http.RoundTripper
func (t *lokiLoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	size := req.ContentLength
	fmt.Fprintf(t.out, "[loki] push method=%s url=%s size=%d\n", req.Method, req.URL.Redacted(), size)

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		fmt.Fprintf(t.out, "[loki] push failed duration=%v error=%v\n", duration, err)
		return nil, err
	}

	fmt.Fprintf(t.out, "[loki] response status=%d duration=%v\n", resp.StatusCode, duration)

	if resp.StatusCode >= 400 && resp.Body != nil {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		if readErr == nil {
			fmt.Fprintf(t.out, "[loki] error body: %s\n", formatBodyPreviewSimple(bodyBytes, 200))
		}
	}

	return resp, nil
}

// formatBodyPreviewSimple collapses whitespace and truncates to maxLen
func formatBodyPreviewSimple(bodyBytes []byte, maxLen int) string {
	if len(bodyBytes) == 0 {
		return "(empty)"
	}

	preview := strings.Join(strings.Fields(string(bodyBytes)), " ")
	if len(preview) > maxLen {
		preview = preview[:maxLen] + "..."
	}

	return preview
}
