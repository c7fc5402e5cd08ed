package services

import (
	"context"
	"time"

	"github.com/maxMuster194/testchart-sub002/internal/models"
)

type MarketProvider interface {
	GetMarkets(ctx context.Context) ([]models.Market, error)
	GetMarket(ctx context.Context, name string) (models.Market, error)
}

type LogWriter interface {
	CreateLog(ctx context.Context, eventID *string, market string, action string, outcome string, message *string) error
}

type RemoteFetcher interface {
	Fetch(ctx context.Context, remotePath string) ([]byte, error)
}

type PriceParser interface {
	Parse(ctx context.Context, payload []byte) (ParseResult, error)
}

type DatasetReplacer interface {
	ReplaceAll(ctx context.Context, market models.Market, records []models.PriceRecord, eventID *string) (int, error)
}

type SnapshotWriter interface {
	Write(ctx context.Context, market string, records []models.PriceRecord) (string, error)
}

type CycleObserver interface {
	ObserveMarket(market string, state string, records int)
	ObserveCycle(status string, duration time.Duration)
}
