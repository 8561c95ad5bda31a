// Package worker runs background maintenance loops for the API process.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carbon-tracker/internal/logging"
)

// DefaultSweepInterval is used when OTPSweeperConfig.Interval is zero
const DefaultSweepInterval = 10 * time.Minute

// ExpiredChallengeStore removes OTP challenges that are past their expiry
type ExpiredChallengeStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// OTPSweeper periodically deletes expired OTP challenges so abandoned
// registrations and resets do not accumulate.
type OTPSweeper struct {
	store        ExpiredChallengeStore
	interval     time.Duration
	now          func() time.Time
	running      bool
	mu           sync.RWMutex
	stopCh       chan struct{}
	doneCh       chan struct{}
	lastSweep    time.Time
	totalDeleted int64
}

// OTPSweeperConfig holds configuration for an OTP sweeper
type OTPSweeperConfig struct {
	Store    ExpiredChallengeStore
	Interval time.Duration
}

// OTPSweeperStatus is a snapshot of sweeper progress
type OTPSweeperStatus struct {
	Running      bool      `json:"running"`
	LastSweep    time.Time `json:"lastSweep"`
	TotalDeleted int64     `json:"totalDeleted"`
	IntervalSecs int       `json:"intervalSeconds"`
}

// NewOTPSweeper creates a new sweeper
func NewOTPSweeper(cfg *OTPSweeperConfig) (*OTPSweeper, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("challenge store cannot be nil")
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultSweepInterval
	}
	if interval < 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %v", interval)
	}

	return &OTPSweeper{
		store:    cfg.Store,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start runs one sweep immediately and then one per interval until ctx is
// cancelled or Stop is called.
func (w *OTPSweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("otp sweeper is already running")
	}
	w.running = true
	w.mu.Unlock()

	logging.FromContext(ctx).WithField("interval", w.interval.String()).Info("Starting OTP sweeper")

	go w.loop(ctx)
	return nil
}

// Stop signals the loop and waits for it to exit
func (w *OTPSweeper) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("otp sweeper is not running")
	}
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *OTPSweeper) loop(ctx context.Context) {
	defer close(w.doneCh)
	logger := logging.FromContext(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Sweep(ctx); err != nil {
			// Keep sweeping on the next tick
			logger.WithError(err).Warn("OTP sweep failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// Sweep deletes challenges that expired before now and returns how many
func (w *OTPSweeper) Sweep(ctx context.Context) (int64, error) {
	now := w.now()
	deleted, err := w.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired challenges: %w", err)
	}

	w.mu.Lock()
	w.lastSweep = now
	w.totalDeleted += deleted
	w.mu.Unlock()

	if deleted > 0 {
		logging.FromContext(ctx).WithField("deleted", deleted).Debug("Expired OTP challenges removed")
	}
	return deleted, nil
}

// GetStatus returns current sweeper status
func (w *OTPSweeper) GetStatus() *OTPSweeperStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return &OTPSweeperStatus{
		Running:      w.running,
		LastSweep:    w.lastSweep,
		TotalDeleted: w.totalDeleted,
		IntervalSecs: int(w.interval.Seconds()),
	}
}
