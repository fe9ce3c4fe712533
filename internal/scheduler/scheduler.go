package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ruralpay/microbank/internal/config"
	"github.com/ruralpay/microbank/internal/services"
	"github.com/sirupsen/logrus"
)

type SavingsAccruer interface {
	RunSavingsInterestAccrual(ctx context.Context, period services.Period) (*services.AccrualSummary, error)
	RetryFailedSavingsAccruals(ctx context.Context) (*services.AccrualSummary, error)
}

type FdAccruer interface {
	RunFdInterestAccrual(ctx context.Context, asOf time.Time, scopeBranchID *int64) (*services.AccrualSummary, error)
	CloseMaturedFixedDeposits(ctx context.Context, asOf time.Time) (*services.MaturitySweepSummary, error)
}

// Scheduler drives the periodic ledger jobs: monthly savings accrual (with a
// retry of earlier failed windows), daily FD accrual and the daily maturity
// sweep. Jobs run in UTC and never overlap with themselves.
type Scheduler struct {
	cron    *cron.Cron
	savings SavingsAccruer
	fd      FdAccruer
	now     func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

func New(savings SavingsAccruer, fd FdAccruer) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
		),
		savings: savings,
		fd:      fd,
		now:     time.Now,
		ctx:     context.Background(),
	}
}

// Register adds every job with a non-empty spec.
func (s *Scheduler) Register(cfg config.ScheduleConfig) error {
	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"savings_accrual", cfg.SavingsAccrual, s.RunSavingsAccrual},
		{"fd_accrual", cfg.FdAccrual, s.RunFdAccrual},
		{"fd_maturity", cfg.FdMaturity, s.RunMaturitySweep},
	}

	for _, job := range jobs {
		if job.spec == "" {
			logrus.WithField("job", job.name).Info("job disabled")
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", job.name, job.spec, err)
		}
		logrus.WithFields(logrus.Fields{"job": job.name, "spec": job.spec}).Info("job scheduled")
	}
	return nil
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()
	logrus.Info("scheduler started")
}

// Stop cancels in-flight jobs between items and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	logrus.Info("scheduler stopped")
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) RunSavingsAccrual() {
	ctx := s.jobContext()
	log := logrus.WithFields(logrus.Fields{"module": "scheduler", "job": "savings_accrual"})

	if _, err := s.savings.RetryFailedSavingsAccruals(ctx); err != nil {
		logJobError(log, err, "retry of failed savings windows")
	}

	period := services.PreviousMonth(s.now())
	summary, err := s.savings.RunSavingsInterestAccrual(ctx, period)
	if err != nil {
		logJobError(log.WithField("window", period.String()), err, "savings accrual")
		return
	}
	log.WithFields(logrus.Fields{
		"run_id":    summary.RunID,
		"processed": summary.Processed,
		"skipped":   summary.Skipped,
		"errors":    summary.Failed,
	}).Info("savings accrual completed")
}

func (s *Scheduler) RunFdAccrual() {
	ctx := s.jobContext()
	log := logrus.WithFields(logrus.Fields{"module": "scheduler", "job": "fd_accrual"})

	summary, err := s.fd.RunFdInterestAccrual(ctx, s.now(), nil)
	if err != nil {
		logJobError(log, err, "fd accrual")
		return
	}
	log.WithFields(logrus.Fields{
		"run_id":    summary.RunID,
		"processed": summary.Processed,
		"errors":    summary.Failed,
	}).Info("fd accrual completed")
}

func (s *Scheduler) RunMaturitySweep() {
	ctx := s.jobContext()
	log := logrus.WithFields(logrus.Fields{"module": "scheduler", "job": "fd_maturity"})

	summary, err := s.fd.CloseMaturedFixedDeposits(ctx, s.now())
	if err != nil {
		logJobError(log, err, "maturity sweep")
		return
	}
	log.WithFields(logrus.Fields{
		"closed": summary.Closed,
		"errors": summary.Failed,
	}).Info("maturity sweep completed")
}

// logJobError logs a held job lock as info; another instance is doing the work.
func logJobError(log *logrus.Entry, err error, what string) {
	if errors.Is(err, services.ErrJobLocked) {
		log.Info(what + " already running elsewhere, skipped")
		return
	}
	config.LogError(log, "scheduler", what, nil, err)
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logrus.WithFields(fields(keysAndValues)).Debug(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logrus.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{"module": "cron"}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
