package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/billmal071/archivedl/internal/archive"
	"github.com/billmal071/archivedl/internal/db"
)

// PageSource serves the page images of one resolved book
type PageSource interface {
	FetchPage(ctx context.Context, index, scale int) ([]byte, error)
}

// Options controls how a Manager writes pages
type Options struct {
	Scale int
	// Delay is the pause between consecutive page requests
	Delay time.Duration
	Retry RetryConfig
	// Progress receives the progress bar; nil disables it
	Progress io.Writer
}

// Result summarizes one Rip call
type Result struct {
	Written int
	Skipped int
	Failed  []int // 0-based indexes that could not be fetched
	Files   []string
}

// Manager copies a range of pages from a PageSource to disk, recording each
// page in the database so an interrupted rip can be resumed.
type Manager struct {
	source PageSource
	opts   Options
	log    *zap.Logger

	mu     sync.RWMutex
	active map[int64]context.CancelFunc
}

// NewManager creates a new page download manager
func NewManager(source PageSource, opts Options, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		source: source,
		opts:   opts,
		log:    log,
		active: make(map[int64]context.CancelFunc),
	}
}

// Rip fetches every page of r not already recorded as complete. A cancelled
// context leaves the rip paused; a fatal fetch error marks it failed.
func (m *Manager) Rip(ctx context.Context, rip *db.Rip, r Range) (*Result, error) {
	ripCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.active[rip.ID] = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.active, rip.ID)
		m.mu.Unlock()
	}()

	if err := db.UpdateStatus(rip.ID, db.StatusDownloading, ""); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(rip.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	done, err := db.CompletedIndexes(rip.ID)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var todo []int
	for _, idx := range r.Indexes() {
		path := PagePath(rip.OutputDir, idx)
		if done[idx] && fileExists(path) {
			result.Skipped++
			result.Files = append(result.Files, path)
			continue
		}
		todo = append(todo, idx)
	}

	m.log.Info("ripping pages",
		zap.String("book", rip.BookID),
		zap.Stringer("range", r),
		zap.Int("todo", len(todo)),
		zap.Int("skipped", result.Skipped),
	)

	bar := m.newBar(r.Len(), result.Skipped)

	for i, idx := range todo {
		if i > 0 && m.opts.Delay > 0 {
			select {
			case <-ripCtx.Done():
			case <-time.After(m.opts.Delay):
			}
		}
		if err := ripCtx.Err(); err != nil {
			return result, m.finish(rip, result, err)
		}

		path, err := m.fetchPage(ripCtx, rip, idx)
		if err != nil {
			if isFatal(err) {
				return result, m.finish(rip, result, err)
			}
			m.log.Warn("page failed", zap.String("book", rip.BookID), zap.Int("page", idx+1), zap.Error(err))
			result.Failed = append(result.Failed, idx)
			if dbErr := db.SavePage(&db.Page{RipID: rip.ID, PageIndex: idx, FilePath: PagePath(rip.OutputDir, idx), Status: db.PageFailed}); dbErr != nil {
				return result, dbErr
			}
		} else {
			result.Written++
			result.Files = append(result.Files, path)
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(m.opts.Progress) // New line after progress bar
	}

	return result, m.finish(rip, result, nil)
}

// Cancel stops an active rip; it is recorded as paused
func (m *Manager) Cancel(ripID int64) bool {
	m.mu.RLock()
	cancel, ok := m.active[ripID]
	m.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

// fetchPage downloads one page with retries and writes it atomically
func (m *Manager) fetchPage(ctx context.Context, rip *db.Rip, idx int) (string, error) {
	var data []byte
	err := RetryOperation(ctx, m.opts.Retry, func() error {
		var err error
		data, err = m.source.FetchPage(ctx, idx, m.opts.Scale)
		return err
	}, func(attempt int, err error, wait time.Duration) {
		m.log.Warn("retrying page",
			zap.Int("page", idx+1),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return "", err
	}

	path := PagePath(rip.OutputDir, idx)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	if err := db.SavePage(&db.Page{
		RipID:     rip.ID,
		PageIndex: idx,
		FilePath:  path,
		Size:      int64(len(data)),
		Status:    db.PageCompleted,
	}); err != nil {
		return "", err
	}
	m.log.Debug("page written", zap.Int("page", idx+1), zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

// finish records the rip's final status for this run
func (m *Manager) finish(rip *db.Rip, result *Result, cause error) error {
	switch {
	case cause == nil && len(result.Failed) == 0:
		if err := db.MarkCompleted(rip.ID); err != nil {
			return err
		}
		rip.Status = db.StatusCompleted
		return nil
	case cause == nil:
		cause = fmt.Errorf("%d page(s) failed", len(result.Failed))
	case errors.Is(cause, context.Canceled):
		if err := db.UpdateStatus(rip.ID, db.StatusPaused, ""); err != nil {
			return err
		}
		rip.Status = db.StatusPaused
		return cause
	}

	if err := db.UpdateStatus(rip.ID, db.StatusFailed, cause.Error()); err != nil {
		return err
	}
	rip.Status = db.StatusFailed
	rip.ErrorMessage = cause.Error()
	return cause
}

func (m *Manager) newBar(total, already int) *progressbar.ProgressBar {
	if m.opts.Progress == nil {
		return nil
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(m.opts.Progress),
		progressbar.OptionSetDescription("Pages"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	bar.Set(already)
	return bar
}

// isFatal reports whether a page error should stop the whole rip
func isFatal(err error) bool {
	// These repeat on every remaining page; transport errors stay page-local.
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, archive.ErrLoanClosed) ||
		errors.Is(err, archive.ErrUnsupportedObfuscation) ||
		errors.Is(err, archive.ErrPrecondition) ||
		errors.Is(err, archive.ErrIndexOutOfRange)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
