package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// LoanState is a position in the borrow/renew lifecycle
type LoanState int

const (
	StateNoLoan LoanState = iota
	StateBrowsing
	StateGranted
	StateOpen
	StateRenewing
	StateClosed
)

func (s LoanState) String() string {
	switch s {
	case StateNoLoan:
		return "no-loan"
	case StateBrowsing:
		return "browsing"
	case StateGranted:
		return "granted"
	case StateOpen:
		return "open"
	case StateRenewing:
		return "renewing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	loanPath        = "services/loans/loan/"
	grantAccessPath = "services/loans/loan/searchInside.php"
)

// Loan is a lease on one book. Its token is replaced atomically on renewal.
type Loan struct {
	session *Session
	log     *zap.Logger

	mu     sync.Mutex
	state  LoanState
	bookID string
	err    error
	done   chan struct{}

	token atomic.Pointer[string]
}

// NewLoan creates a loan in the NoLoan state
func NewLoan(session *Session, log *zap.Logger) *Loan {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loan{
		session: session,
		log:     log,
		done:    make(chan struct{}),
	}
}

// State returns the current lifecycle state
func (l *Loan) State() LoanState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// BookID returns the borrowed book identifier
func (l *Loan) BookID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bookID
}

// Token returns the current access token, or "" before the grant
func (l *Loan) Token() string {
	if t := l.token.Load(); t != nil {
		return *t
	}
	return ""
}

// IsOpen reports whether pages may be requested under this loan.
// A loan that is mid-renewal is still open.
func (l *Loan) IsOpen() bool {
	s := l.State()
	return s == StateOpen || s == StateRenewing
}

// Done is closed when the loan closes
func (l *Loan) Done() <-chan struct{} {
	return l.done
}

// Err reports why the loan closed; nil while open or after an explicit Close
func (l *Loan) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Borrow runs the two-phase borrow handshake. The loan must be in NoLoan;
// on any failure it returns to NoLoan.
func (l *Loan) Borrow(ctx context.Context, bookID string) (err error) {
	l.mu.Lock()
	if l.state != StateNoLoan {
		state := l.state
		l.mu.Unlock()
		return fmt.Errorf("%w: borrow requires no active loan, state is %s", ErrPrecondition, state)
	}
	if bookID == "" {
		l.mu.Unlock()
		return fmt.Errorf("%w: empty book identifier", ErrPrecondition)
	}
	l.state = StateBrowsing
	l.bookID = bookID
	l.mu.Unlock()

	defer func() {
		if err != nil {
			l.mu.Lock()
			if l.state != StateClosed {
				l.state = StateNoLoan
				l.bookID = ""
			}
			l.mu.Unlock()
		}
	}()

	l.log.Debug("borrow phase", zap.String("action", "browse_book"), zap.String("book", bookID))
	if _, err := l.post(ctx, loanPath, "browse_book", bookID, ErrBorrowDenied); err != nil {
		return err
	}
	if !l.advance(StateBrowsing, StateGranted) {
		return ErrLoanClosed
	}

	l.log.Debug("borrow phase", zap.String("action", "grant_access"), zap.String("book", bookID))
	resp, err := l.post(ctx, grantAccessPath, "grant_access", bookID, ErrBorrowDenied)
	if err != nil {
		return err
	}
	token, err := l.stringField(resp, "value", grantAccessPath)
	if err != nil {
		return err
	}

	l.token.Store(&token)
	if !l.advance(StateGranted, StateOpen) {
		return ErrLoanClosed
	}
	l.log.Info("loan granted", zap.String("book", bookID))
	return nil
}

// Renew requests a fresh token for the open loan.
func (l *Loan) Renew(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case StateOpen:
	case StateClosed:
		l.mu.Unlock()
		return ErrLoanClosed
	default:
		state := l.state
		l.mu.Unlock()
		return fmt.Errorf("%w: renew requires an open loan, state is %s", ErrPrecondition, state)
	}
	l.state = StateRenewing
	bookID := l.bookID
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		if l.state == StateRenewing {
			l.state = StateOpen
		}
		l.mu.Unlock()
	}()

	l.log.Debug("renew", zap.String("action", "create_token"), zap.String("book", bookID))
	resp, err := l.post(ctx, loanPath, "create_token", bookID, ErrRenewalDenied)
	if err != nil {
		return err
	}
	token, err := l.stringField(resp, "token", loanPath)
	if err != nil {
		return err
	}

	l.token.Store(&token)
	return nil
}

// Close releases the loan. Safe to call more than once.
func (l *Loan) Close() {
	l.closeWith(nil)
}

func (l *Loan) closeWith(cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return
	}
	l.state = StateClosed
	l.err = cause
	close(l.done)
}

// advance moves from one state to the next unless the loan changed state meanwhile.
func (l *Loan) advance(from, to LoanState) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != from {
		return false
	}
	l.state = to
	return true
}

// post issues one loan action and requires a success indicator in the reply.
func (l *Loan) post(ctx context.Context, path, action, bookID string, denied error) (map[string]json.RawMessage, error) {
	resp, err := l.session.PostForm(ctx, path, url.Values{
		"action":     {action},
		"identifier": {bookID},
	}, nil)
	if err != nil {
		return nil, err
	}

	if _, ok := resp["success"]; !ok {
		msg := "unknown error"
		if raw, ok := resp["error"]; ok {
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				msg = s
			} else {
				msg = string(raw)
			}
		}
		l.log.Error("loan action refused", zap.String("action", action), zap.String("book", bookID), zap.String("error", msg))
		return nil, &ServiceError{Action: action, Message: msg, kind: denied}
	}
	return resp, nil
}

func (l *Loan) stringField(resp map[string]json.RawMessage, field, path string) (string, error) {
	target := l.session.URL(path)
	raw, ok := resp[field]
	if !ok {
		return "", newTransportError("POST", target, 200, nil, fmt.Errorf("response missing %q", field))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", newTransportError("POST", target, 200, raw, fmt.Errorf("field %q is not a string", field))
	}
	return s, nil
}
