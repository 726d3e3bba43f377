package archive

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultRenewInterval is the pause between the end of one renewal and the next
	DefaultRenewInterval = 120 * time.Second
	// DefaultRenewTimeout bounds a single renewal call
	DefaultRenewTimeout = 30 * time.Second
)

// RenewalOptions configures a Renewer
type RenewalOptions struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Renewer keeps a loan alive in the background.
type Renewer struct {
	loan *Loan
	opts RenewalOptions
	log  *zap.Logger

	count    atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// StartRenewal renews the loan once synchronously, then keeps renewing it every
// Interval after the previous renewal completed. An error from the first
// renewal is returned and no background work is started.
func StartRenewal(ctx context.Context, loan *Loan, opts RenewalOptions, log *zap.Logger) (*Renewer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultRenewInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRenewTimeout
	}

	r := &Renewer{
		loan: loan,
		opts: opts,
		log:  log,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	if err := r.renewOnce(ctx); err != nil {
		if errors.Is(err, ErrRenewalDenied) {
			loan.closeWith(err)
		}
		close(r.done)
		r.setErr(err)
		return nil, err
	}

	go r.run(ctx)
	return r, nil
}

// Stop ends the renewal loop and waits for it to exit. The loan stays open.
func (r *Renewer) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

// Done is closed when the renewal loop has exited
func (r *Renewer) Done() <-chan struct{} {
	return r.done
}

// Count returns the number of successful renewals, including the first one
func (r *Renewer) Count() int {
	return int(r.count.Load())
}

// Err returns the error that ended the loop, if any
func (r *Renewer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Renewer) run(ctx context.Context) {
	defer close(r.done)

	timer := time.NewTimer(r.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.setErr(ctx.Err())
			return
		case <-r.stop:
			return
		case <-r.loan.Done():
			return
		case <-timer.C:
		}

		err := r.renewOnce(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrRenewalDenied):
			r.log.Error("renewal denied, closing loan", zap.String("book", r.loan.BookID()), zap.Error(err))
			r.loan.closeWith(err)
			r.setErr(err)
			return
		case errors.Is(err, ErrLoanClosed):
			return
		default:
			r.log.Warn("renewal failed, retrying next interval", zap.String("book", r.loan.BookID()), zap.Error(err))
		}

		// The next tick counts from completion, so slow renewals drift instead of overlapping.
		timer.Reset(r.opts.Interval)
	}
}

func (r *Renewer) renewOnce(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()
	if err := r.loan.Renew(rctx); err != nil {
		return err
	}
	n := r.count.Add(1)
	r.log.Info("loan renewed",
		zap.String("book", r.loan.BookID()),
		zap.Int64("renewals", n),
		zap.Duration("dur", time.Since(start)),
	)
	return nil
}

func (r *Renewer) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}
