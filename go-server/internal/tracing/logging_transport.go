package tracing

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxPreview = 500

// loggingTransport logs and traces every outbound request to the remote store
type loggingTransport struct {
	base   http.RoundTripper
	logger *zap.Logger
}

// NewLoggingTransport wraps base (http.DefaultTransport when nil) with request logging and client spans
func NewLoggingTransport(base http.RoundTripper, logger *zap.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &loggingTransport{
		base:   base,
		logger: logger,
	}
}

// RoundTrip implements http.RoundTripper
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := StartSpan(req.Context(), "HTTP "+req.Method,
		attribute.String("http.method", req.Method),
		attribute.String("http.url", req.URL.Redacted()),
	)
	defer span.End()

	req = req.Clone(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	startTime := time.Now()
	t.logRequest(req)

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(startTime)

	if err != nil {
		t.logger.Error("Store request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.Redacted()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		EndSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	t.logResponse(span, resp, duration)

	return resp, nil
}

// logRequest logs details about the outgoing request
func (t *loggingTransport) logRequest(req *http.Request) {
	var bodyPreview string
	if req.Body != nil && req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			bodyBytes, readErr := io.ReadAll(body)
			_ = body.Close()
			if readErr == nil {
				bodyPreview = formatBodyPreview(bodyBytes)
			}
		}
	}

	t.logger.Debug("Sending store request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Int64("content_length", req.ContentLength),
		zap.String("body_preview", bodyPreview),
		zap.Any("headers", formatHeaders(req.Header)),
	)
}

// logResponse logs details about the response received
func (t *loggingTransport) logResponse(span trace.Span, resp *http.Response, duration time.Duration) {
	var bodyPreview string
	if resp.Body != nil {
		bodyBytes, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		// Restore the body for the caller
		resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		if err == nil {
			bodyPreview = formatBodyPreview(bodyBytes)
		}
	}

	logFunc := t.logger.Debug
	message := "Received store response"
	if resp.StatusCode >= 400 {
		logFunc = t.logger.Error
		message = "Store request failed with error status"
		span.SetStatus(codes.Error, resp.Status)
	} else if resp.StatusCode >= 300 {
		logFunc = t.logger.Warn
		message = "Store request received redirect"
	}

	logFunc(message,
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", duration),
		zap.String("content_type", resp.Header.Get("Content-Type")),
		zap.String("body_preview", bodyPreview),
	)
}

// emailAddress matches the submitters' addresses carried in product rows
var emailAddress = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// formatBodyPreview formats the body bytes into a readable preview with email
// addresses masked
func formatBodyPreview(bodyBytes []byte) string {
	if len(bodyBytes) == 0 {
		return "(empty)"
	}

	preview := emailAddress.ReplaceAllString(string(bodyBytes), "[REDACTED]")
	if len(preview) > maxPreview {
		preview = preview[:maxPreview] + "... (truncated)"
	}

	if !isPrintable(preview) {
		return fmt.Sprintf("(binary data, %d bytes)", len(bodyBytes))
	}

	preview = strings.ReplaceAll(preview, "\n", " ")
	preview = strings.ReplaceAll(preview, "\t", " ")

	return preview
}

// isPrintable checks if a string contains mostly printable characters
func isPrintable(s string) bool {
	printableCount := 0
	for _, r := range s {
		if r >= 32 && r <= 126 || r == '\n' || r == '\t' {
			printableCount++
		}
	}
	return len(s) > 0 && float64(printableCount)/float64(len(s)) > 0.7
}

// formatHeaders formats HTTP headers for logging, hiding credentials
func formatHeaders(headers http.Header) map[string]string {
	formatted := make(map[string]string, len(headers))
	for key, values := range headers {
		lowerKey := strings.ToLower(key)
		if strings.Contains(lowerKey, "authorization") ||
			strings.Contains(lowerKey, "apikey") ||
			strings.Contains(lowerKey, "token") ||
			strings.Contains(lowerKey, "secret") {
			formatted[key] = "***REDACTED***"
		} else {
			formatted[key] = strings.Join(values, ", ")
		}
	}
	return formatted
}
