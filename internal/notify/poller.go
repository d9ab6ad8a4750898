package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "tourcal/internal/log"
)

// DefaultPollSchedule checks for due reminders once a minute.
const DefaultPollSchedule = "@every 1m"

// Callback receives each notification once, when it becomes due.
type Callback func(Notification)

// PollerConfig controls the poll loop.
type PollerConfig struct {
	// Schedule is a cron expression or descriptor ("@every 30s").
	// Empty means DefaultPollSchedule.
	Schedule string

	// Location is used to interpret cron expressions. Nil means time.Local.
	Location *time.Location

	// Now overrides the clock used to decide what is due.
	Now func() time.Time
}

// Poller periodically hands due notifications from a Store to a callback.
type Poller struct {
	store    *Store
	callback Callback
	now      func() time.Time
	cron     *cron.Cron

	mu       sync.Mutex
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewPoller validates the schedule and builds a stopped poller.
func NewPoller(store *Store, cfg PollerConfig, cb Callback) (*Poller, error) {
	if store == nil {
		return nil, errors.New("notify: store is nil")
	}
	if cb == nil {
		return nil, errors.New("notify: callback is nil")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultPollSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := cronLogger{}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(cfg.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	p := &Poller{
		store:    store,
		callback: cb,
		now:      cfg.Now,
		cron:     c,
		done:     make(chan struct{}),
	}
	if _, err := c.AddFunc(cfg.Schedule, func() { p.Poll() }); err != nil {
		return nil, fmt.Errorf("notify: invalid poll schedule %q: %w", cfg.Schedule, err)
	}
	return p, nil
}

// Start runs the poll loop in the background until Stop is called or ctx
// is cancelled. Starting twice, or after Stop, does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.done:
		return
	default:
	}
	if p.started {
		return
	}
	p.started = true

	p.cron.Start()
	appLog.Info("notification poller started")

	go func() {
		select {
		case <-ctx.Done():
			p.Stop()
		case <-p.done:
		}
	}()
}

// Stop halts the poll loop and waits for a running poll to finish. It is
// safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		close(p.done)
		<-p.cron.Stop().Done()
		appLog.Info("notification poller stopped")
	})
}

// Poll hands every currently due notification to the callback and returns
// how many were delivered.
func (p *Poller) Poll() int {
	due := p.store.TakeDue(p.now())
	for _, n := range due {
		appLog.Info("notification due", "id", n.ID, "title", n.Title, "scheduled_at", n.ScheduledAt.Format(time.RFC3339))
		p.callback(n)
	}
	return len(due)
}

// cronLogger routes cron's own logging into the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
