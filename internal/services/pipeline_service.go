package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maxMuster194/testchart-sub002/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type PipelineOption func(*PipelineService)

func WithSnapshotWriter(writer SnapshotWriter) PipelineOption {
	return func(s *PipelineService) {
		s.snapshots = writer
	}
}

func WithCycleObserver(observer CycleObserver) PipelineOption {
	return func(s *PipelineService) {
		s.observer = observer
	}
}

func WithLogger(log *zap.Logger) PipelineOption {
	return func(s *PipelineService) {
		if log != nil {
			s.log = log
		}
	}
}

type PipelineService struct {
	marketService MarketProvider
	fetcher       RemoteFetcher
	parser        PriceParser
	store         DatasetReplacer
	logService    LogWriter
	snapshots     SnapshotWriter
	observer      CycleObserver
	guard         *marketGuard
	log           *zap.Logger
	now           func() time.Time
}

type marketRun struct {
	market  models.Market
	outcome MarketOutcome
	records []models.PriceRecord
}

func NewPipelineService(marketService MarketProvider, fetcher RemoteFetcher, parser PriceParser, store DatasetReplacer, logService LogWriter, opts ...PipelineOption) (*PipelineService, error) {
	if marketService == nil {
		return nil, errors.New("market service is nil")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is nil")
	}
	if parser == nil {
		return nil, errors.New("parser is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logService == nil {
		return nil, errors.New("log service is nil")
	}

	s := &PipelineService{
		marketService: marketService,
		fetcher:       fetcher,
		parser:        parser,
		store:         store,
		logService:    logService,
		guard:         newMarketGuard(),
		log:           zap.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("pipeline")

	return s, nil
}

// Refresh runs one ingestion cycle over every registered market. Markets are
// fetched and parsed concurrently, then stored one after another. A market
// that fails only fails itself; a market already held by another cycle is
// skipped. The cycle is not cancelled when ctx is.
func (s *PipelineService) Refresh(ctx context.Context) (CycleReport, error) {
	if s == nil {
		return CycleReport{}, errors.New("pipeline service is nil")
	}
	if s.marketService == nil {
		return CycleReport{}, errors.New("market service is nil")
	}
	if s.logService == nil {
		return CycleReport{}, errors.New("log service is nil")
	}

	ctx = context.WithoutCancel(ctx)
	eventID := uuid.NewString()
	report := CycleReport{ID: eventID, StartedAt: s.now().UTC()}

	startMsg := "refresh cycle started"
	_ = s.logService.CreateLog(ctx, &eventID, "", LogActionCycle, LogOutcomeSuccess, &startMsg)

	markets, err := s.marketService.GetMarkets(ctx)
	if err != nil {
		failMsg := fmt.Sprintf("get markets: %v", err)
		_ = s.logService.CreateLog(ctx, &eventID, "", LogActionCycle, LogOutcomeFail, &failMsg)
		report.CompletedAt = s.now().UTC()
		s.observeCycle(CycleStatusFailed, report)
		s.log.Error("refresh cycle failed", zap.String("cycle_id", eventID), zap.Error(err))
		return report, fmt.Errorf("%w: get markets: %w", ErrCycleFailed, err)
	}
	if len(markets) == 0 {
		emptyMsg := "no markets registered"
		_ = s.logService.CreateLog(ctx, &eventID, "", LogActionCycle, LogOutcomeSkipped, &emptyMsg)
		report.CompletedAt = s.now().UTC()
		s.observeCycle(CycleStatusSkipped, report)
		s.log.Warn("refresh cycle skipped, no markets registered", zap.String("cycle_id", eventID))
		return report, fmt.Errorf("%w: %w", ErrCycleSkipped, ErrNoMarkets)
	}

	runs := make([]*marketRun, 0, len(markets))
	var group errgroup.Group
	for _, market := range markets {
		run := &marketRun{market: market, outcome: MarketOutcome{Market: market.Name, State: MarketStateIdle}}
		runs = append(runs, run)

		if !s.guard.acquire(market.Name) {
			run.outcome.State = MarketStateSkipped
			skipMsg := "previous cycle still in flight"
			_ = s.logService.CreateLog(ctx, &eventID, market.Name, LogActionCycle, LogOutcomeSkipped, &skipMsg)
			s.log.Info("market skipped", zap.String("cycle_id", eventID), zap.String("market", market.Name))
			continue
		}

		group.Go(func() error {
			s.fetchAndParse(ctx, &eventID, run)
			return nil
		})
	}
	_ = group.Wait()

	for _, run := range runs {
		if run.outcome.State != MarketStateSkipped {
			s.finishMarket(ctx, &eventID, run)
		}
		report.Markets = append(report.Markets, run.outcome)
		if s.observer != nil {
			s.observer.ObserveMarket(run.market.Name, string(run.outcome.State), run.outcome.Records)
		}
	}

	report.CompletedAt = s.now().UTC()
	status := report.Status()
	summary := report.Summary()

	outcome := LogOutcomeSuccess
	switch status {
	case CycleStatusSkipped:
		outcome = LogOutcomeSkipped
	case CycleStatusFailed, CycleStatusPartial:
		outcome = LogOutcomeFail
	}
	_ = s.logService.CreateLog(ctx, &eventID, "", LogActionCycle, outcome, &summary)
	s.observeCycle(status, report)

	fields := []zap.Field{
		zap.String("cycle_id", eventID),
		zap.String("status", string(status)),
		zap.Int("markets", len(report.Markets)),
		zap.Duration("duration", report.CompletedAt.Sub(report.StartedAt)),
	}
	if status == CycleStatusFailed || status == CycleStatusPartial {
		s.log.Warn(summary, fields...)
	} else {
		s.log.Info(summary, fields...)
	}

	return report, report.Err()
}

// InFlight returns the stage of every market currently held by a cycle.
func (s *PipelineService) InFlight() map[string]MarketState {
	if s == nil || s.guard == nil {
		return map[string]MarketState{}
	}
	return s.guard.snapshot()
}

func (s *PipelineService) fetchAndParse(ctx context.Context, eventID *string, run *marketRun) {
	defer func() {
		if r := recover(); r != nil {
			s.failMarket(ctx, eventID, run, LogActionCycle, fmt.Errorf("panic: %v", r))
		}
	}()

	s.setState(run, MarketStateFetching)
	payload, err := s.fetcher.Fetch(ctx, run.market.RemotePath)
	if err != nil {
		s.failMarket(ctx, eventID, run, LogActionFetch, err)
		return
	}
	fetchMsg := fmt.Sprintf("fetched path=%s bytes=%d", run.market.RemotePath, len(payload))
	_ = s.logService.CreateLog(ctx, eventID, run.market.Name, LogActionFetch, LogOutcomeSuccess, &fetchMsg)

	s.setState(run, MarketStateParsing)
	result, err := s.parser.Parse(ctx, payload)
	if err != nil {
		s.failMarket(ctx, eventID, run, LogActionParse, err)
		return
	}
	if len(result.Records) == 0 {
		s.failMarket(ctx, eventID, run, LogActionParse, fmt.Errorf("%w: file has no delivery days", ErrUnparseable))
		return
	}

	run.records = result.Records
	run.outcome.SkippedRows = result.SkippedRows
	run.outcome.Duplicates = result.Duplicates
	parseMsg := fmt.Sprintf("parsed records=%d skipped=%d duplicates=%d", len(result.Records), result.SkippedRows, result.Duplicates)
	_ = s.logService.CreateLog(ctx, eventID, run.market.Name, LogActionParse, LogOutcomeSuccess, &parseMsg)
}

// finishMarket snapshots and stores a parsed market, then releases it.
func (s *PipelineService) finishMarket(ctx context.Context, eventID *string, run *marketRun) {
	defer s.guard.release(run.market.Name)
	defer func() {
		if r := recover(); r != nil {
			s.failMarket(ctx, eventID, run, LogActionCycle, fmt.Errorf("panic: %v", r))
		}
	}()

	if run.outcome.State == MarketStateFailed {
		return
	}

	if s.snapshots != nil {
		path, err := s.snapshots.Write(ctx, run.market.Name, run.records)
		if err != nil {
			failMsg := fmt.Sprintf("write snapshot: %v", err)
			_ = s.logService.CreateLog(ctx, eventID, run.market.Name, LogActionSnapshot, LogOutcomeFail, &failMsg)
			s.log.Warn("snapshot failed", zap.String("market", run.market.Name), zap.Error(err))
		} else {
			run.outcome.SnapshotPath = path
			successMsg := fmt.Sprintf("snapshot path=%s records=%d", path, len(run.records))
			_ = s.logService.CreateLog(ctx, eventID, run.market.Name, LogActionSnapshot, LogOutcomeSuccess, &successMsg)
		}
	}

	s.setState(run, MarketStateReplacing)
	count, err := s.store.ReplaceAll(ctx, run.market, run.records, eventID)
	if err != nil {
		// The store writes its own REPLACE entry.
		s.failMarket(ctx, eventID, run, "", err)
		return
	}

	run.outcome.Records = count
	s.setState(run, MarketStateDone)
}

func (s *PipelineService) setState(run *marketRun, state MarketState) {
	run.outcome.State = state
	s.guard.set(run.market.Name, state)
}

func (s *PipelineService) failMarket(ctx context.Context, eventID *string, run *marketRun, action string, err error) {
	run.outcome.Stage = run.outcome.State
	run.outcome.State = MarketStateFailed
	run.outcome.Error = err.Error()
	run.records = nil

	if action != "" {
		failMsg := fmt.Sprintf("%s: %v", run.outcome.Stage, err)
		_ = s.logService.CreateLog(ctx, eventID, run.market.Name, action, LogOutcomeFail, &failMsg)
	}
	s.log.Warn("market failed",
		zap.String("market", run.market.Name),
		zap.String("stage", string(run.outcome.Stage)),
		zap.Error(err),
	)
}

func (s *PipelineService) observeCycle(status CycleStatus, report CycleReport) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveCycle(string(status), report.CompletedAt.Sub(report.StartedAt))
}
