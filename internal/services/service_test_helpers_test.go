package services

import (
	"context"
	"sync"
	"testing"

	"github.com/maxMuster194/testchart-sub002/internal/config"
	"github.com/maxMuster194/testchart-sub002/internal/repo"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testMarkets = []config.MarketConfig{
	{Name: "austria", RemotePath: "/prices/austria.csv", Collection: "austria_prices"},
	{Name: "germany", RemotePath: "/prices/germany.csv", Collection: "germany_prices"},
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db
}

func openMigratedTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db := openTestDB(t)
	if err := repo.Migrate(db, testMarkets); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

type loggedEntry struct {
	eventID string
	market  string
	action  string
	outcome string
	message string
}

type stubLogWriter struct {
	mu      sync.Mutex
	entries []loggedEntry
}

func (s *stubLogWriter) CreateLog(ctx context.Context, eventID *string, market string, action string, outcome string, message *string) error {
	entry := loggedEntry{market: market, action: action, outcome: outcome}
	if eventID != nil {
		entry.eventID = *eventID
	}
	if message != nil {
		entry.message = *message
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubLogWriter) find(market string, action string, outcome string) []loggedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []loggedEntry
	for _, entry := range s.entries {
		if entry.market == market && entry.action == action && entry.outcome == outcome {
			found = append(found, entry)
		}
	}
	return found
}

func floatPtr(value float64) *float64 {
	return &value
}
