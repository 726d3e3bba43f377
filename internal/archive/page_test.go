package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resolvedBook borrows the fake book and resolves its metadata
func resolvedBook(t *testing.T, f *fakeArchive) (*Loan, *PageFetcher) {
	t.Helper()
	s, l := f.openLoan(t)
	meta, err := ResolveMetadata(context.Background(), s, l, nil)
	require.NoError(t, err)
	return l, NewPageFetcher(s, l, meta, nil)
}

func TestPageURL(t *testing.T) {
	loc := PageLocator{Index: 0, URL: "https://ia800.us.archive.org/BookReader/BookReaderImages.php?file=x.jp2&id=x"}
	assert.Equal(t,
		"https://ia800.us.archive.org/BookReader/BookReaderImages.php?file=x.jp2&id=x&scale=3&rotate=0",
		PageURL(loc, 3),
	)
}

func TestFetchPagePlain(t *testing.T) {
	f := newFakeArchive(t)
	f.update(func(f *fakeArchive) {
		f.setBook("Plain", 2, [][]string{{"a.jp2", "b.jp2"}})
		f.pages["b.jp2"].plain = []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}
	})
	_, fetcher := resolvedBook(t, f)

	got, err := fetcher.FetchPage(context.Background(), 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}, got)

	f.mu.Lock()
	referer := f.lastReferer
	f.mu.Unlock()
	assert.Equal(t, f.srv.URL+"/details/"+testBookID, referer)
}

func TestFetchPageObfuscated(t *testing.T) {
	plain := make([]byte, 3000)
	for i := range plain {
		plain[i] = byte(i % 251)
	}

	for _, size := range []int{100, 1024, 3000} {
		f := newFakeArchive(t)
		f.update(func(f *fakeArchive) {
			f.setBook("Obfuscated", 1, [][]string{{"a.jp2"}})
			f.pages["a.jp2"] = &fakePage{
				plain:   plain[:size],
				version: "1",
				nonce:   [8]byte{3, 1, 4, 1, 5, 9, 2, 6},
				seed:    uint64(size),
			}
		})
		_, fetcher := resolvedBook(t, f)

		got, err := fetcher.FetchPage(context.Background(), 0, 2)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, plain[:size], got, "size %d", size)
	}
}

func TestFetchPageUnsupportedVersion(t *testing.T) {
	f := newFakeArchive(t)
	f.update(func(f *fakeArchive) {
		f.setBook("Future", 1, [][]string{{"a.jp2"}})
		f.pages["a.jp2"].version = "2"
	})
	_, fetcher := resolvedBook(t, f)

	_, err := fetcher.FetchPage(context.Background(), 0, 1)
	assert.ErrorIs(t, err, ErrUnsupportedObfuscation)
}

func TestFetchPageOutOfRange(t *testing.T) {
	f := newFakeArchive(t)
	f.update(func(f *fakeArchive) { f.setBook("Short", 2, [][]string{{"a.jp2", "b.jp2"}}) })
	_, fetcher := resolvedBook(t, f)

	for _, idx := range []int{-1, 2, 100} {
		_, err := fetcher.FetchPage(context.Background(), idx, 1)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "index %d", idx)
	}
	_, _, pageCalls := f.stats()
	assert.Zero(t, pageCalls)
}

func TestFetchPageClosedLoan(t *testing.T) {
	f := newFakeArchive(t)
	f.update(func(f *fakeArchive) { f.setBook("Closed", 1, [][]string{{"a.jp2"}}) })
	l, fetcher := resolvedBook(t, f)

	l.Close()
	_, err := fetcher.FetchPage(context.Background(), 0, 1)
	assert.ErrorIs(t, err, ErrLoanClosed)

	_, _, pageCalls := f.stats()
	assert.Zero(t, pageCalls)
}

func TestFetchPageAbortedByClose(t *testing.T) {
	f := newFakeArchive(t)
	release := make(chan struct{})
	defer close(release)
	f.update(func(f *fakeArchive) {
		f.setBook("Slow", 1, [][]string{{"a.jp2"}})
		f.pages["a.jp2"].block = release
	})
	l, fetcher := resolvedBook(t, f)

	errc := make(chan error, 1)
	go func() {
		_, err := fetcher.FetchPage(context.Background(), 0, 1)
		errc <- err
	}()

	select {
	case <-f.pageStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("page request never reached the server")
	}
	l.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrLoanClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not aborted by loan close")
	}
}

func TestFetchPageCallerCancel(t *testing.T) {
	f := newFakeArchive(t)
	release := make(chan struct{})
	defer close(release)
	f.update(func(f *fakeArchive) {
		f.setBook("Slow", 1, [][]string{{"a.jp2"}})
		f.pages["a.jp2"].block = release
	})
	l, fetcher := resolvedBook(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := fetcher.FetchPage(ctx, 0, 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLoanClosed)
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, l.IsOpen())
}

func TestFetchPageNotFound(t *testing.T) {
	f := newFakeArchive(t)
	f.update(func(f *fakeArchive) {
		f.setBook("Gone", 1, [][]string{{"a.jp2"}})
		delete(f.pages, "a.jp2")
	})
	_, fetcher := resolvedBook(t, f)

	_, err := fetcher.FetchPage(context.Background(), 0, 1)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 404, te.StatusCode)
}

func TestFetchPageWithoutMetadata(t *testing.T) {
	f := newFakeArchive(t)
	s, l := f.openLoan(t)

	_, err := NewPageFetcher(s, l, nil, nil).FetchPage(context.Background(), 0, 1)
	assert.ErrorIs(t, err, ErrPrecondition)
}
