package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport matches every *TransportError
	ErrTransport = errors.New("transport error")
	// ErrAuthentication indicates the login endpoint rejected the credentials
	ErrAuthentication = errors.New("authentication failed")
	// ErrBorrowDenied indicates one of the two borrow phases was refused
	ErrBorrowDenied = errors.New("borrow denied")
	// ErrRenewalDenied indicates the service refused to renew the loan token
	ErrRenewalDenied = errors.New("renewal denied")
	// ErrPrecondition indicates an operation was called in the wrong loan state
	ErrPrecondition = errors.New("precondition failed")
	// ErrMetadataParse indicates the book metadata could not be located or decoded
	ErrMetadataParse = errors.New("metadata parse error")
	// ErrIndexOutOfRange indicates a page index outside the resolved page list
	ErrIndexOutOfRange = errors.New("page index out of range")
	// ErrUnsupportedObfuscation indicates an obfuscation header this client cannot decrypt
	ErrUnsupportedObfuscation = errors.New("unsupported obfuscation")
	// ErrLoanClosed indicates the loan was released or revoked
	ErrLoanClosed = errors.New("loan closed")
)

// maxErrorBody caps how much of a response body is kept for diagnostics
const maxErrorBody = 512

// TransportError describes a failed HTTP exchange or an undecodable response.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func newTransportError(method, url string, status int, body []byte, err error) *TransportError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &TransportError{
		Method:     method,
		URL:        url,
		StatusCode: status,
		Body:       string(body),
		Err:        err,
	}
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Method, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransport) match any transport failure.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ServiceError is a refusal reported by the lending service in a well-formed response.
type ServiceError struct {
	// Action is the protocol action that was refused (browse_book, grant_access, create_token, login)
	Action string
	// Message is the server-supplied reason
	Message string
	kind    error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.kind, e.Action, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.kind }
