package archive

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// PageFetcher retrieves page images for one resolved book under an open loan.
type PageFetcher struct {
	session *Session
	loan    *Loan
	meta    *BookMetadata
	log     *zap.Logger
}

// NewPageFetcher binds a fetcher to resolved metadata
func NewPageFetcher(session *Session, loan *Loan, meta *BookMetadata, log *zap.Logger) *PageFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &PageFetcher{session: session, loan: loan, meta: meta, log: log}
}

// PageURL builds the request URL for a page at the given scale
func PageURL(loc PageLocator, scale int) string {
	return fmt.Sprintf("%s&scale=%d&rotate=0", loc.URL, scale)
}

// FetchPage downloads page index and decrypts its obfuscated prefix when the
// response carries an obfuscation header.
func (f *PageFetcher) FetchPage(ctx context.Context, index, scale int) ([]byte, error) {
	if f.meta == nil {
		return nil, fmt.Errorf("%w: metadata not resolved", ErrPrecondition)
	}
	if index < 0 || index >= len(f.meta.Pages) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(f.meta.Pages))
	}
	if !f.loan.IsOpen() {
		return nil, ErrLoanClosed
	}

	// Abort the request as soon as the loan closes.
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-f.loan.Done():
			cancel()
		case <-fctx.Done():
		}
	}()

	target := PageURL(f.meta.Pages[index], scale)
	headers := http.Header{}
	headers.Set("Referer", f.meta.DetailsURL)

	f.log.Debug("fetching page", zap.String("book", f.meta.BookID), zap.Int("index", index), zap.Int("scale", scale))
	body, respHeaders, err := f.session.GetRaw(fctx, target, headers)
	if !f.loan.IsOpen() {
		return nil, ErrLoanClosed
	}
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			return nil, ErrLoanClosed
		}
		return nil, err
	}

	value := respHeaders.Get(ObfuscationHeaderName)
	if value == "" {
		return body, nil
	}

	h, err := ParseObfuscationHeader(value)
	if err != nil {
		return nil, err
	}
	f.log.Debug("deobfuscating page", zap.Int("index", index), zap.Int("bytes", len(body)))
	return Deobfuscate(f.session.URL(target), h, body)
}
