package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

const (
	// DefaultBaseURL is the lending service root
	DefaultBaseURL = "https://archive.org"
	// DefaultTimeout bounds a single request
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent mimics a desktop browser
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// SessionOptions configures a Session
type SessionOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// Transport overrides the HTTP round tripper (tests)
	Transport http.RoundTripper
}

// Session owns the authenticated HTTP state shared by every engine component.
type Session struct {
	base          *url.URL
	userAgent     string
	http          *http.Client
	log           *zap.Logger
	authenticated atomic.Bool
}

// NewSession creates a session with an empty cookie jar
func NewSession(opts SessionOptions, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", opts.BaseURL)
	}

	// cookiejar.Jar is safe for concurrent use, so the renewal goroutine and
	// the foreground fetch loop can share it.
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	return &Session{
		base:      base,
		userAgent: opts.UserAgent,
		http: &http.Client{
			Jar:       jar,
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		log: log,
	}, nil
}

// BaseURL returns the service root without a trailing slash
func (s *Session) BaseURL() string {
	return s.base.String()
}

// Authenticated reports whether Login succeeded on this session
func (s *Session) Authenticated() bool {
	return s.authenticated.Load()
}

// URL resolves a service path. Relative paths are joined onto the base URL,
// protocol-relative ones take the base scheme, absolute ones are kept.
func (s *Session) URL(path string) string {
	switch {
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		return path
	case strings.HasPrefix(path, "//"):
		return s.base.Scheme + ":" + path
	default:
		return s.base.String() + "/" + strings.TrimPrefix(path, "/")
	}
}

// PostForm posts url-encoded fields and decodes the JSON object response.
func (s *Session) PostForm(ctx context.Context, path string, fields url.Values, headers http.Header) (map[string]json.RawMessage, error) {
	target := s.URL(path)
	body, _, err := s.do(ctx, http.MethodPost, target, strings.NewReader(fields.Encode()), headers, "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, newTransportError(http.MethodPost, target, http.StatusOK, body, fmt.Errorf("decode json: %w", err))
	}
	return out, nil
}

// GetRaw fetches path and returns the body and response headers.
func (s *Session) GetRaw(ctx context.Context, path string, headers http.Header) ([]byte, http.Header, error) {
	return s.do(ctx, http.MethodGet, s.URL(path), nil, headers, "")
}

// GetJSON fetches path and decodes the JSON body into v.
func (s *Session) GetJSON(ctx context.Context, path string, v any) error {
	target := s.URL(path)
	body, _, err := s.do(ctx, http.MethodGet, target, nil, nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return newTransportError(http.MethodGet, target, http.StatusOK, body, fmt.Errorf("decode json: %w", err))
	}
	return nil
}

func (s *Session) do(ctx context.Context, method, target string, body io.Reader, headers http.Header, contentType string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, nil, newTransportError(method, target, 0, nil, err)
	}

	req.Header.Set("User-Agent", s.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, nil, newTransportError(method, target, 0, nil, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, newTransportError(method, target, resp.StatusCode, nil, fmt.Errorf("read body: %w", err))
	}

	s.log.Debug("http",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("dur", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, newTransportError(method, target, resp.StatusCode, bytes.TrimSpace(data), fmt.Errorf("server returned %s", resp.Status))
	}

	return data, resp.Header, nil
}
