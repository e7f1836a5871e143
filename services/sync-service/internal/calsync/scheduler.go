package calsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/metrics"
)

type State int32

const (
	StateLoggedOut State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "logged_out"
}

type Authenticator interface {
	Login(ctx context.Context) error
}

type Syncer interface {
	SyncOnce(ctx context.Context, passID string) (SyncResult, error)
}

// TickGuard serialises ticks across processes sharing a store. A guard error
// lets the tick run unguarded.
type TickGuard interface {
	TryAcquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

type SchedulerConfig struct {
	Interval time.Duration
	Guard    TickGuard
	Metrics  *metrics.Metrics
}

type TickReport struct {
	PassID     string        `json:"pass_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Outcome    string        `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	Result     *SyncResult   `json:"result,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

type Scheduler struct {
	auth     Authenticator
	syncer   Syncer
	logger   *slog.Logger
	interval time.Duration
	guard    TickGuard
	metrics  *metrics.Metrics

	state atomic.Int32
	mu    sync.Mutex
	last  *TickReport
}

func NewScheduler(auth Authenticator, syncer Syncer, logger *slog.Logger, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Scheduler{
		auth:     auth,
		syncer:   syncer,
		logger:   logger,
		interval: cfg.Interval,
		guard:    cfg.Guard,
		metrics:  cfg.Metrics,
	}
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) LastTick() (TickReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return TickReport{}, false
	}
	return *s.last, true
}

// Run logs in once, syncs immediately and then every interval until ctx is
// done. A login failure is returned; tick failures never are.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("logging in")
	if err := s.auth.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	s.state.Store(int32(StateReady))
	s.logger.Info("logged in", "interval", s.interval.String())

	s.Tick(ctx)
	if ctx.Err() != nil {
		return nil
	}

	logger := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(cron.Every(s.interval), cron.FuncJob(func() { s.Tick(ctx) }))
	c.Start()

	<-ctx.Done()
	s.logger.Info("stopping scheduler")
	<-c.Stop().Done()
	return nil
}

// Tick runs one sync. Errors and panics are logged and recorded, never raised.
func (s *Scheduler) Tick(ctx context.Context) {
	report := TickReport{PassID: uuid.NewString(), StartedAt: time.Now()}
	logger := s.logger.With("pass_id", report.PassID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("sync tick panicked", "panic", r)
			report.Outcome = "panic"
			report.Error = fmt.Sprint(r)
		}
		if report.Outcome == "" {
			return
		}
		report.FinishedAt = time.Now()
		report.Elapsed = report.FinishedAt.Sub(report.StartedAt)
		s.metrics.Tick(report.Outcome)
		s.record(report)
	}()

	if s.guard != nil {
		release, ok, err := s.guard.TryAcquire(ctx)
		switch {
		case err != nil:
			logger.Warn("sync lock unavailable, running unguarded", "err", err)
		case !ok:
			logger.Info("another sync holds the lock, skipping tick")
			report.Outcome = "skipped"
			return
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("releasing sync lock failed", "err", err)
				}
			}()
		}
	}

	logger.Info("sync tick started")
	res, err := s.syncer.SyncOnce(ctx, report.PassID)
	report.Result = &res
	if err != nil {
		logger.Error("sync tick failed", "err", err)
		report.Outcome = "error"
		report.Error = err.Error()
		return
	}
	report.Outcome = "ok"
	logger.Info("sync tick finished", "passes", len(res.Passes), "elapsed", time.Since(report.StartedAt).String())
}

func (s *Scheduler) record(r TickReport) {
	s.mu.Lock()
	s.last = &r
	s.mu.Unlock()
}

// cronLogger routes cron's chatter to debug, except skipped runs.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		l.logger.Info("previous sync still running, skipping tick")
		return
	}
	l.logger.Debug("cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron "+msg, append([]interface{}{"err", err}, keysAndValues...)...)
}
