package pessimistic

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// LockClearer clears the lock flag of every row of a class whose lock was
// taken at or before cutoff. The SQL row store implements it.
type LockClearer interface {
	ClearExpired(ctx context.Context, class string, cutoff time.Time) (int64, error)
}

// Sweeper clears lock flags left behind by sessions that never released
// them. Readers already ignore expired leases; sweeping only tidies the
// persisted flags. Live leases are never touched.
type Sweeper struct {
	store    LockClearer
	duration time.Duration
	classes  []string
	workers  int
	now      func() time.Time
	log      *slog.Logger
}

const defaultWorkers = 4

// SweeperOption configures the Sweeper.
type SweeperOption func(*Sweeper)

// WithWorkers bounds the number of classes swept concurrently. Default is 4;
// n <= 0 keeps the default.
func WithWorkers(n int) SweeperOption {
	return func(s *Sweeper) {
		s.workers = n
	}
}

// WithSweepClock sets the time source. Default is time.Now.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// WithSweepLogger sets the logger. Default is slog.Default().
func WithSweepLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.log = l
	}
}

// NewSweeper returns a Sweeper for the given classes. duration must match
// the lease duration of the stores that lock these classes.
func NewSweeper(store LockClearer, duration time.Duration, classes []string, opts ...SweeperOption) *Sweeper {
	if duration <= 0 {
		panic("pessimistic: non-positive lock duration")
	}
	s := &Sweeper{
		store:    store,
		duration: duration,
		classes:  classes,
		workers:  defaultWorkers,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers <= 0 {
		s.workers = defaultWorkers
	}
	return s
}

// Sweep clears the expired locks of every class once and returns the number
// of rows cleared per class. The first error cancels the remaining classes.
func (s *Sweeper) Sweep(ctx context.Context) (map[string]int64, error) {
	// Expired(t, now, d) holds exactly when t <= now-d.
	cutoff := s.now().Add(-s.duration)
	var (
		mu      sync.Mutex
		cleared = make(map[string]int64, len(s.classes))
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, class := range s.classes {
		g.Go(func() error {
			n, err := s.store.ClearExpired(ctx, class, cutoff)
			if err != nil {
				return err
			}
			mu.Lock()
			cleared[class] = n
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return cleared, err
}

// Run sweeps every interval until ctx is done. Failed sweeps are logged and
// retried at the next tick.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("pessimistic: non-positive sweep interval")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		cleared, err := s.Sweep(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			s.log.WarnContext(ctx, "lock sweep failed", "error", err)
		default:
			for class, n := range cleared {
				if n > 0 {
					s.log.InfoContext(ctx, "cleared expired locks", "class", class, "count", n)
				}
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
