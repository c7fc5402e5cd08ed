package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maxMuster194/testchart-sub002/internal/services"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Runner interface {
	Refresh(ctx context.Context) (services.CycleReport, error)
}

type Config struct {
	Spec       string
	Timezone   string
	RunOnStart bool
}

// Scheduler triggers refresh cycles at startup and on a cron schedule
// evaluated in the configured timezone.
type Scheduler struct {
	cron       *cron.Cron
	schedule   cron.Schedule
	location   *time.Location
	runner     Runner
	runOnStart bool
	log        *zap.Logger

	ctx     context.Context
	startup sync.WaitGroup
}

func New(cfg Config, runner Runner, log *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner is nil")
	}
	if cfg.Spec == "" {
		return nil, errors.New("cron spec is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("scheduler")

	location := time.UTC
	if cfg.Timezone != "" {
		loaded, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
		location = loaded
	}

	schedule, err := cron.ParseStandard(cfg.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", cfg.Spec, err)
	}

	cronLog := cronLogger{log: log.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		schedule:   schedule,
		location:   location,
		runner:     runner,
		runOnStart: cfg.RunOnStart,
		log:        log,
		ctx:        context.Background(),
	}
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.runCycle(s.ctx, "cron")
	}))

	return s, nil
}

// Start launches the startup cycle (when enabled) in the background and
// starts the cron loop. It does not block.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.ctx = ctx

	if s.runOnStart {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			s.runCycle(ctx, "startup")
		}()
	}

	s.cron.Start()
	s.log.Info("scheduler started", zap.Time("next_run", s.Next()), zap.String("timezone", s.location.String()))
}

// Stop halts the cron loop and waits for running cycles until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.startup.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running cycles: %w", ctx.Err())
	}
}

// Next returns the next scheduled run in the scheduler's timezone.
func (s *Scheduler) Next() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.schedule.Next(time.Now().In(s.location))
}

func (s *Scheduler) runCycle(ctx context.Context, trigger string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("refresh cycle panicked", zap.String("trigger", trigger), zap.Any("panic", r))
		}
	}()

	report, err := s.runner.Refresh(ctx)
	fields := []zap.Field{
		zap.String("trigger", trigger),
		zap.String("cycle_id", report.ID),
		zap.String("status", string(report.Status())),
	}

	switch {
	case errors.Is(err, services.ErrCycleSkipped):
		s.log.Info("refresh cycle skipped", fields...)
	case err != nil:
		s.log.Error("refresh cycle failed", append(fields, zap.Error(err))...)
	default:
		s.log.Info("refresh cycle finished", fields...)
	}
}

// cronLogger adapts zap to cron.Logger. Cron's own chatter goes to debug.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
