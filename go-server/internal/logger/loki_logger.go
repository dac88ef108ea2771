package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the application logger
type Options struct {
	ServiceName string
	Environment string
	// LokiURL enables pushing JSON log lines to Loki when non-empty
	LokiURL string
	// TraceLokiRequests logs every Loki push to stderr
	TraceLokiRequests bool
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

// New builds a zap logger writing to the console and, when configured, to Loki.
// The returned shutdown waits for in-flight Loki pushes.
func New(opts Options) (*zap.Logger, func(context.Context) error) {
	level := zapcore.InfoLevel
	if opts.Environment == "development" {
		level = zapcore.DebugLevel
	}

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(os.Stdout),
		level,
	)

	if opts.LokiURL == "" {
		logger := zap.New(consoleCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
		return logger, func(context.Context) error { return logger.Sync() }
	}

	transport := http.DefaultTransport
	if opts.TraceLokiRequests {
		transport = NewLokiLoggingTransport()
	}

	writer := &lokiWriter{
		url:         opts.LokiURL,
		serviceName: opts.ServiceName,
		environment: opts.Environment,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
	}

	lokiConfig := zap.NewProductionEncoderConfig()
	lokiConfig.TimeKey = "ts"
	lokiConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	lokiCore := zapcore.NewCore(zapcore.NewJSONEncoder(lokiConfig), writer, level)

	logger := zap.New(zapcore.NewTee(consoleCore, lokiCore), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, func(ctx context.Context) error {
		_ = logger.Sync()
		return writer.wait(ctx)
	}
}

// lokiWriter implements zapcore.WriteSyncer for Loki
type lokiWriter struct {
	url         string
	serviceName string
	environment string
	client      *http.Client
	inflight    sync.WaitGroup
}

// Write implements io.Writer. Lines are pushed asynchronously; Loki outages never block logging.
func (w *lokiWriter) Write(p []byte) (int, error) {
	line := make([]byte, len(p))
	copy(line, p)
	timestamp := time.Now().UnixNano()

	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		w.push(timestamp, line)
	}()

	return len(p), nil
}

func (w *lokiWriter) push(timestamp int64, line []byte) {
	jsonData, err := json.Marshal(lokiPushRequest{
		Streams: []lokiStream{{
			Stream: w.labels(line),
			Values: [][]string{{fmt.Sprintf("%d", timestamp), string(line)}},
		}},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal loki request: %v\n", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(jsonData))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create loki request: %v\n", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to send log to loki: %v\n", err)
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "loki returned error: %d\n", resp.StatusCode)
	}
}

// labels extracts low-cardinality fields of a JSON log line as stream labels
func (w *lokiWriter) labels(line []byte) map[string]string {
	labels := map[string]string{
		"service_name": w.serviceName,
		"environment":  w.environment,
		"job":          "goodproducts",
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(line, &entry); err != nil {
		return labels
	}
	for _, key := range []string{"level", "component", "method"} {
		if v, ok := entry[key].(string); ok && v != "" {
			labels[key] = v
		}
	}
	if status, ok := entry["status"].(float64); ok {
		labels["status"] = fmt.Sprintf("%d", int(status))
	}
	return labels
}

// Sync implements zapcore.WriteSyncer
func (w *lokiWriter) Sync() error {
	return nil
}

func (w *lokiWriter) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
