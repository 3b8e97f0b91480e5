// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

// Package remote reads payloads from the path-addressable remote telemetry
// store over its REST surface.
//
// The store supports nothing beyond path traversal: a GET on a path returns
// the JSON subtree rooted there, or the literal `null` when the path holds no
// data. Read outcomes are classified into Absent, Payload, TransientError
// (network/timeout/5xx, retried once here with a short fixed delay) and
// PermanentError (bad path or permission, never retried).
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/mgeller/fleetsync/internal/logging"
	"github.com/mgeller/fleetsync/internal/metrics"
)

// nullPayload is what the store returns for a path with no data.
var nullPayload = []byte("null")

// Result is the outcome of a successful read: either a raw payload or an
// explicit absence. Absence is not an error; legacy paths are expected to be
// empty for most devices.
type Result struct {
	Absent bool
	Raw    json.RawMessage
}

// Config holds remote store client configuration.
type Config struct {
	// BaseURL is the root of the remote store's REST surface.
	BaseURL string
	// AuthToken is appended as the auth query parameter when non-empty.
	AuthToken string
	// Timeout bounds a single HTTP request.
	Timeout time.Duration
	// RetryDelay is the fixed delay before the single transient retry.
	RetryDelay time.Duration
	// ReadsPerSecond caps the client-side read rate. Zero disables the cap.
	ReadsPerSecond float64
}

// Reader fetches payloads from the remote store. Pure I/O; no business logic.
type Reader struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	retryDelay time.Duration
	limiter    *rate.Limiter
}

// NewReader creates a remote store reader.
func NewReader(cfg Config) *Reader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}

	var limiter *rate.Limiter
	if cfg.ReadsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ReadsPerSecond), int(cfg.ReadsPerSecond)+1)
	}

	return &Reader{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authToken:  cfg.AuthToken,
		httpClient: &http.Client{Timeout: timeout},
		retryDelay: retryDelay,
		limiter:    limiter,
	}
}

// Read fetches the payload at path. Transient failures are retried once with
// a fixed delay; permanent failures surface immediately.
func (r *Reader) Read(ctx context.Context, path string) (Result, error) {
	result, err := r.readOnce(ctx, path)
	if err == nil || !IsTransient(err) {
		r.observe(path, result, err)
		return result, err
	}

	logging.Debug().Str("path", path).Err(err).Msg("Transient read failure, retrying once")
	metrics.RemoteReadRetries.Inc()

	select {
	case <-time.After(r.retryDelay):
	case <-ctx.Done():
		return Result{}, &TransientError{Path: path, Err: ctx.Err()}
	}

	result, err = r.readOnce(ctx, path)
	r.observe(path, result, err)
	return result, err
}

// ListKeys reads the object at path and returns the keys whose values are
// themselves objects. Used to enumerate device identifiers under a root path.
func (r *Reader) ListKeys(ctx context.Context, path string) ([]string, error) {
	result, err := r.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	if result.Absent {
		return nil, nil
	}
	return extractObjectKeys(path, result.Raw)
}

// extractObjectKeys returns the keys of raw whose values are objects.
func extractObjectKeys(path string, raw json.RawMessage) ([]string, error) {
	var tree map[string]json.RawMessage
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, &PermanentError{Path: path, Err: fmt.Errorf("root payload is not an object: %w", err)}
	}

	keys := make([]string, 0, len(tree))
	for key, value := range tree {
		trimmed := bytes.TrimSpace(value)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// readOnce performs a single GET against the store.
func (r *Reader) readOnce(ctx context.Context, path string) (Result, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Result{}, &TransientError{Path: path, Err: err}
		}
	}

	reqURL, err := r.buildURL(path)
	if err != nil {
		return Result{}, &PermanentError{Path: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Result{}, &PermanentError{Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Result{}, &TransientError{Path: path, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug().Err(cerr).Msg("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return Result{}, &TransientError{Path: path, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if isNull(body) {
			return Result{Absent: true}, nil
		}
		return Result{Raw: body}, nil
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusBadRequest:
		return Result{}, &PermanentError{
			Path:       path,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("store rejected read: %s", truncate(body, 200)),
		}
	default:
		return Result{}, &TransientError{
			Path: path,
			Err:  fmt.Errorf("store returned status %d: %s", resp.StatusCode, truncate(body, 200)),
		}
	}
}

func (r *Reader) buildURL(path string) (string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", errors.New("empty path")
	}
	u := r.baseURL + "/" + path + ".json"
	if r.authToken != "" {
		u += "?auth=" + url.QueryEscape(r.authToken)
	}
	return u, nil
}

func (r *Reader) observe(path string, result Result, err error) {
	switch {
	case err == nil && result.Absent:
		metrics.RemoteReads.WithLabelValues("absent").Inc()
	case err == nil:
		metrics.RemoteReads.WithLabelValues("payload").Inc()
	case IsPermanent(err):
		metrics.RemoteReads.WithLabelValues("permanent_error").Inc()
		logging.Warn().Str("path", path).Err(err).Msg("Permanent remote read failure")
	default:
		metrics.RemoteReads.WithLabelValues("transient_error").Inc()
	}
}

func isNull(body []byte) bool {
	return bytes.Equal(bytes.TrimSpace(body), nullPayload)
}

func truncate(b []byte, n int) string {
	s := string(bytes.TrimSpace(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
