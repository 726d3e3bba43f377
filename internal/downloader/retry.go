package downloader

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/billmal071/archivedl/internal/archive"
	"github.com/billmal071/archivedl/internal/config"
)

// RetryConfig holds retry settings
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns retry config from app settings
func DefaultRetryConfig() RetryConfig {
	cfg := config.Get()
	return RetryConfig{
		MaxAttempts: cfg.Network.RetryAttempts,
		BaseDelay:   cfg.Network.RetryBaseDelay,
		MaxDelay:    cfg.Network.RetryMaxDelay,
		Multiplier:  cfg.Network.RetryMultiplier,
	}
}

// ErrorCategory categorizes errors for retry decisions
type ErrorCategory int

const (
	// ErrorRetryable - temporary errors that should be retried
	ErrorRetryable ErrorCategory = iota
	// ErrorNonRetryable - permanent errors that should not be retried
	ErrorNonRetryable
	// ErrorRateLimited - rate limiting, should wait longer
	ErrorRateLimited
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrorRetryable:
		return "retryable"
	case ErrorRateLimited:
		return "rate-limited"
	default:
		return "non-retryable"
	}
}

// CategorizeError determines how a page fetch error should be handled
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ErrorRetryable
	}

	// Loan and protocol failures will not improve on retry.
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, archive.ErrLoanClosed),
		errors.Is(err, archive.ErrUnsupportedObfuscation),
		errors.Is(err, archive.ErrIndexOutOfRange),
		errors.Is(err, archive.ErrPrecondition):
		return ErrorNonRetryable
	}

	var te *archive.TransportError
	if errors.As(err, &te) && te.StatusCode != 0 {
		switch te.StatusCode {
		case http.StatusTooManyRequests: // 429
			return ErrorRateLimited
		case http.StatusInternalServerError, // 500
			http.StatusBadGateway,         // 502
			http.StatusServiceUnavailable, // 503
			http.StatusGatewayTimeout:     // 504
			return ErrorRetryable
		}
		if te.StatusCode >= 400 && te.StatusCode < 500 {
			return ErrorNonRetryable
		}
	}

	// Network errors are generally retryable
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorRetryable
	}

	// Connection errors
	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection reset",
		"connection refused",
		"no such host",
		"temporary failure",
		"timeout",
		"eof",
		"broken pipe",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return ErrorRetryable
		}
	}

	// Default to non-retryable for unknown errors
	return ErrorNonRetryable
}

// CalculateBackoff calculates the next backoff duration with jitter
func CalculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	if attempt <= 0 {
		return cfg.BaseDelay
	}

	// Calculate exponential delay: base * multiplier^attempt
	delay := float64(cfg.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= cfg.Multiplier
	}

	// Cap at max delay
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	// Add jitter (±25%)
	jitter := delay * 0.25 * (rand.Float64()*2 - 1)
	delay += jitter

	return time.Duration(delay)
}

// RetryOperation executes an operation with exponential backoff. onRetry, if
// set, is called before each wait.
func RetryOperation(ctx context.Context, cfg RetryConfig, operation func() error, onRetry func(attempt int, err error, wait time.Duration)) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		var wait time.Duration
		switch CategorizeError(lastErr) {
		case ErrorNonRetryable:
			return lastErr
		case ErrorRateLimited:
			// Wait longer for rate limiting
			wait = cfg.MaxDelay
		case ErrorRetryable:
			wait = CalculateBackoff(attempt, cfg)
		}

		if onRetry != nil {
			onRetry(attempt+1, lastErr, wait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return lastErr
}
