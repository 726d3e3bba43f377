package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options configures a Client
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	UserAgent     string
	RenewInterval time.Duration
	RenewTimeout  time.Duration
}

// Client drives one session through login, a single loan, metadata resolution
// and page retrieval.
type Client struct {
	session *Session
	opts    Options
	log     *zap.Logger

	mu      sync.Mutex
	loan    *Loan
	renewer *Renewer
	meta    *BookMetadata
	fetcher *PageFetcher

	// set while the first renewal of StartRenewal is in flight
	renewing bool
}

// NewClient creates a client with a fresh session
func NewClient(opts Options, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	session, err := NewSession(SessionOptions{
		BaseURL:   opts.BaseURL,
		Timeout:   opts.Timeout,
		UserAgent: opts.UserAgent,
	}, log.Named("http"))
	if err != nil {
		return nil, err
	}
	return NewClientWithSession(session, opts, log), nil
}

// NewClientWithSession creates a client around an existing session
func NewClientWithSession(session *Session, opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{session: session, opts: opts, log: log}
}

// Session returns the underlying session
func (c *Client) Session() *Session {
	return c.session
}

// Login authenticates the session
func (c *Client) Login(ctx context.Context, email, password string) error {
	return c.session.Login(ctx, email, password)
}

// Borrow opens a loan on bookID. Only one loan per client may be active.
func (c *Client) Borrow(ctx context.Context, bookID string) error {
	c.mu.Lock()
	if c.loan != nil && c.loan.State() != StateNoLoan {
		state := c.loan.State()
		c.mu.Unlock()
		return fmt.Errorf("%w: client already holds a loan (%s)", ErrPrecondition, state)
	}
	if c.loan == nil {
		c.loan = NewLoan(c.session, c.log.Named("loan"))
	}
	loan := c.loan
	c.mu.Unlock()

	return loan.Borrow(ctx, bookID)
}

// Loan returns the current loan, or nil before Borrow
func (c *Client) Loan() *Loan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loan
}

// StartRenewal performs the first renewal and starts the background cadence.
// The client lock is not held during the first renewal.
func (c *Client) StartRenewal(ctx context.Context) (*Renewer, error) {
	c.mu.Lock()
	loan := c.loan
	if err := c.renewalIdleLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.renewing = true
	c.mu.Unlock()

	r, err := StartRenewal(ctx, loan, RenewalOptions{
		Interval: c.opts.RenewInterval,
		Timeout:  c.opts.RenewTimeout,
	}, c.log.Named("renewal"))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.renewing = false
	if err != nil {
		return nil, err
	}
	c.renewer = r
	return r, nil
}

func (c *Client) renewalIdleLocked() error {
	if c.loan == nil {
		return fmt.Errorf("%w: no loan to renew", ErrPrecondition)
	}
	if c.renewing {
		return fmt.Errorf("%w: renewal already starting", ErrPrecondition)
	}
	if c.renewer != nil {
		select {
		case <-c.renewer.Done():
		default:
			return fmt.Errorf("%w: renewal already running", ErrPrecondition)
		}
	}
	return nil
}

// ResolveMetadata resolves the borrowed book's metadata
func (c *Client) ResolveMetadata(ctx context.Context) (*BookMetadata, error) {
	loan := c.Loan()
	if loan == nil {
		return nil, fmt.Errorf("%w: borrow a book first", ErrPrecondition)
	}

	meta, err := ResolveMetadata(ctx, c.session, loan, c.log.Named("metadata"))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.meta = meta
	c.fetcher = NewPageFetcher(c.session, loan, meta, c.log.Named("page"))
	c.mu.Unlock()
	return meta, nil
}

// Metadata returns the resolved metadata, or nil
func (c *Client) Metadata() *BookMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// FetchPage retrieves one page of the resolved book
func (c *Client) FetchPage(ctx context.Context, index, scale int) ([]byte, error) {
	c.mu.Lock()
	fetcher := c.fetcher
	c.mu.Unlock()

	if fetcher == nil {
		return nil, fmt.Errorf("%w: metadata not resolved", ErrPrecondition)
	}
	return fetcher.FetchPage(ctx, index, scale)
}

// Close stops renewal and releases the loan
func (c *Client) Close() {
	c.mu.Lock()
	renewer, loan := c.renewer, c.loan
	c.mu.Unlock()

	if renewer != nil {
		renewer.Stop()
	}
	if loan != nil {
		loan.Close()
	}
}
