package downloader

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billmal071/archivedl/internal/archive"
	"github.com/billmal071/archivedl/internal/db"
)

// fakeSource serves generated JPEG pages and records requests
type fakeSource struct {
	mu      sync.Mutex
	pages   int
	calls   []int
	scales  []int
	errs    map[int][]error // queued errors per index, consumed in order
	onFetch func(index int)
}

func (f *fakeSource) FetchPage(ctx context.Context, index, scale int) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, index)
	f.scales = append(f.scales, scale)
	var err error
	if q := f.errs[index]; len(q) > 0 {
		err, f.errs[index] = q[0], q[1:]
	}
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(index)
	}
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= f.pages {
		return nil, archive.ErrIndexOutOfRange
	}
	return jpegPage(index), nil
}

func (f *fakeSource) fetched() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

func jpegPage(index int) []byte {
	img := image.NewGray(image.Rect(0, 0, 8, 12))
	for i := range img.Pix {
		img.Pix[i] = uint8(index * 10)
	}
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}

func setupRip(t *testing.T, bookID string) *db.Rip {
	t.Helper()
	require.NoError(t, db.Open(filepath.Join(t.TempDir(), "test.db")))
	t.Cleanup(func() { db.Close() })

	rip := &db.Rip{BookID: bookID, FirstPage: 1, OutputDir: filepath.Join(t.TempDir(), bookID)}
	require.NoError(t, db.CreateRip(rip))
	return rip
}

func TestManagerRip(t *testing.T) {
	rip := setupRip(t, "book")
	src := &fakeSource{pages: 5}
	m := NewManager(src, Options{Scale: 2, Retry: fastRetry(2)}, nil)

	res, err := m.Rip(context.Background(), rip, Range{First: 2, Last: 4})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Written)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, []int{1, 2, 3}, src.fetched())
	assert.Equal(t, []int{2, 2, 2}, src.scales)

	for _, n := range []string{"2.jpg", "3.jpg", "4.jpg"} {
		assert.FileExists(t, filepath.Join(rip.OutputDir, n))
		assert.NoFileExists(t, filepath.Join(rip.OutputDir, n+".part"))
	}
	assert.NoFileExists(t, filepath.Join(rip.OutputDir, "1.jpg"))

	got, err := db.GetRip(rip.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCompleted, got.Status)
	assert.Equal(t, db.StatusCompleted, rip.Status)
}

func TestManagerResumeSkipsCompleted(t *testing.T) {
	rip := setupRip(t, "resume")
	src := &fakeSource{pages: 4}
	m := NewManager(src, Options{Retry: fastRetry(1)}, nil)

	_, err := m.Rip(context.Background(), rip, Range{First: 1, Last: 2})
	require.NoError(t, err)

	// a page whose file vanished is fetched again
	require.NoError(t, os.Remove(filepath.Join(rip.OutputDir, "2.jpg")))

	src2 := &fakeSource{pages: 4}
	res, err := NewManager(src2, Options{Retry: fastRetry(1)}, nil).Rip(context.Background(), rip, Range{First: 1, Last: 4})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 3, res.Written)
	assert.Equal(t, []int{1, 2, 3}, src2.fetched())
	assert.Len(t, res.Files, 4)
}

func TestManagerRetriesTransientErrors(t *testing.T) {
	rip := setupRip(t, "flaky")
	src := &fakeSource{pages: 2, errs: map[int][]error{
		1: {statusErr(503), statusErr(502)},
	}}
	m := NewManager(src, Options{Retry: fastRetry(3)}, nil)

	res, err := m.Rip(context.Background(), rip, Range{First: 1, Last: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, []int{0, 1, 1, 1}, src.fetched())
}

func TestManagerPageLocalFailure(t *testing.T) {
	rip := setupRip(t, "missing-page")
	src := &fakeSource{pages: 3, errs: map[int][]error{1: {statusErr(404)}}}
	m := NewManager(src, Options{Retry: fastRetry(3)}, nil)

	res, err := m.Rip(context.Background(), rip, Range{First: 1, Last: 3})
	require.Error(t, err)
	assert.Equal(t, []int{1}, res.Failed)
	assert.Equal(t, 2, res.Written)

	got, err := db.GetRip(rip.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "1 page(s) failed")

	n, err := db.CountPages(rip.ID, db.PageFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestManagerStopsWhenLoanCloses(t *testing.T) {
	rip := setupRip(t, "closed")
	src := &fakeSource{pages: 5, errs: map[int][]error{2: {archive.ErrLoanClosed}}}
	m := NewManager(src, Options{Retry: fastRetry(3)}, nil)

	res, err := m.Rip(context.Background(), rip, Range{First: 1, Last: 5})
	require.ErrorIs(t, err, archive.ErrLoanClosed)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, []int{0, 1, 2}, src.fetched())

	got, err := db.GetRip(rip.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusFailed, got.Status)
}

func TestManagerCancelPauses(t *testing.T) {
	rip := setupRip(t, "paused")
	src := &fakeSource{pages: 5}
	m := NewManager(src, Options{Retry: fastRetry(1)}, nil)
	src.onFetch = func(index int) {
		if index == 1 {
			assert.True(t, m.Cancel(rip.ID))
		}
	}

	_, err := m.Rip(context.Background(), rip, Range{First: 1, Last: 5})
	require.ErrorIs(t, err, context.Canceled)

	got, err := db.GetRip(rip.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusPaused, got.Status)
	assert.False(t, m.Cancel(rip.ID))
}

func TestVerifyAndMark(t *testing.T) {
	rip := setupRip(t, "verify")
	src := &fakeSource{pages: 3}
	_, err := NewManager(src, Options{Retry: fastRetry(1)}, nil).Rip(context.Background(), rip, Range{First: 1, Last: 3})
	require.NoError(t, err)

	bad, err := VerifyAndMark(rip)
	require.NoError(t, err)
	assert.Empty(t, bad)
	got, err := db.GetRip(rip.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)

	require.NoError(t, os.WriteFile(filepath.Join(rip.OutputDir, "2.jpg"), []byte("<html>error</html>"), 0644))
	bad, err = VerifyAndMark(rip)
	require.Error(t, err)
	assert.Equal(t, []int{1}, bad)

	got, err = db.GetRip(rip.ID)
	require.NoError(t, err)
	assert.False(t, got.Verified)
	done, err := db.CompletedIndexes(rip.ID)
	require.NoError(t, err)
	assert.False(t, done[1])
}

func TestVerifyPage(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "1.jpg")
	require.NoError(t, os.WriteFile(good, jpegPage(0), 0644))
	assert.NoError(t, VerifyPage(good))

	assert.Error(t, VerifyPage(filepath.Join(dir, "missing.jpg")))
	assert.Error(t, VerifyPage(""))
}
