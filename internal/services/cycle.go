package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrCycleFailed = errors.New("refresh cycle failed")
var ErrCycleSkipped = errors.New("refresh cycle skipped")

// ErrNoMarkets is returned, wrapped in ErrCycleSkipped, when no market is
// registered.
var ErrNoMarkets = errors.New("no markets registered")

type MarketState string

const (
	MarketStateIdle      MarketState = "idle"
	MarketStateFetching  MarketState = "fetching"
	MarketStateParsing   MarketState = "parsing"
	MarketStateReplacing MarketState = "replacing"
	MarketStateDone      MarketState = "done"
	MarketStateFailed    MarketState = "failed"
	MarketStateSkipped   MarketState = "skipped"
)

type CycleStatus string

const (
	CycleStatusOK      CycleStatus = "ok"
	CycleStatusPartial CycleStatus = "partial"
	CycleStatusFailed  CycleStatus = "failed"
	CycleStatusSkipped CycleStatus = "skipped"
)

// MarketOutcome is the result of one market in one cycle. Stage names the
// state the market was in when it failed.
type MarketOutcome struct {
	Market       string      `json:"market"`
	State        MarketState `json:"state"`
	Stage        MarketState `json:"stage,omitempty"`
	Records      int         `json:"records"`
	SkippedRows  int         `json:"skipped_rows,omitempty"`
	Duplicates   int         `json:"duplicates,omitempty"`
	SnapshotPath string      `json:"snapshot_path,omitempty"`
	Error        string      `json:"error,omitempty"`
}

type CycleReport struct {
	ID          string          `json:"cycle_id"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Markets     []MarketOutcome `json:"markets"`
}

// Status folds the market outcomes. A cycle where every market was skipped
// (or that had no markets) is skipped; markets skipped because another cycle
// held them do not count against an otherwise successful cycle.
func (r CycleReport) Status() CycleStatus {
	done, failed := 0, 0
	for _, market := range r.Markets {
		switch market.State {
		case MarketStateDone:
			done++
		case MarketStateFailed:
			failed++
		}
	}

	switch {
	case done == 0 && failed == 0:
		return CycleStatusSkipped
	case failed == 0:
		return CycleStatusOK
	case done == 0:
		return CycleStatusFailed
	default:
		return CycleStatusPartial
	}
}

func (r CycleReport) Summary() string {
	parts := make([]string, 0, len(r.Markets))
	for _, market := range r.Markets {
		switch market.State {
		case MarketStateDone:
			parts = append(parts, fmt.Sprintf("%s=%s(%d)", market.Market, market.State, market.Records))
		case MarketStateFailed:
			parts = append(parts, fmt.Sprintf("%s=%s@%s", market.Market, market.State, market.Stage))
		default:
			parts = append(parts, fmt.Sprintf("%s=%s", market.Market, market.State))
		}
	}

	summary := fmt.Sprintf("cycle %s status=%s", r.ID, r.Status())
	if len(parts) > 0 {
		summary += " " + strings.Join(parts, " ")
	}
	return summary
}

// Err maps the cycle status to the error Refresh returns.
func (r CycleReport) Err() error {
	switch r.Status() {
	case CycleStatusFailed:
		return fmt.Errorf("%w: %s", ErrCycleFailed, r.Summary())
	case CycleStatusSkipped:
		return ErrCycleSkipped
	default:
		return nil
	}
}
