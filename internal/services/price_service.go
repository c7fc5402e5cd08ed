package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maxMuster194/testchart-sub002/internal/models"

	"gorm.io/gorm"
)

const replaceBatchSize = 500

var ErrStore = errors.New("dataset store failed")
var ErrInvalidDateRange = errors.New("invalid date range")
var ErrInvalidUnit = errors.New("invalid unit")

const (
	UnitEurPerMwh = "eur_mwh"
	UnitCtPerKwh  = "ct_kwh"
)

type PriceService struct {
	db         *gorm.DB
	markets    MarketProvider
	logService LogWriter
}

type priceFilter struct {
	from string
	to   string
}

func NewPriceService(db *gorm.DB, markets MarketProvider, logService LogWriter) (*PriceService, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if markets == nil {
		return nil, errors.New("market provider is nil")
	}
	if logService == nil {
		return nil, errors.New("log service is nil")
	}

	return &PriceService{
		db:         db,
		markets:    markets,
		logService: logService,
	}, nil
}

// ReplaceAll swaps the market's dataset for records in one transaction.
// Readers see either the old or the new dataset; on failure the old one
// stays.
func (s *PriceService) ReplaceAll(ctx context.Context, market models.Market, records []models.PriceRecord, eventID *string) (int, error) {
	if s == nil {
		return 0, errors.New("price service is nil")
	}
	if s.db == nil {
		return 0, errors.New("db is nil")
	}
	if s.logService == nil {
		return 0, errors.New("log service is nil")
	}
	if market.Collection == "" {
		return 0, errors.New("market collection is empty")
	}
	if len(records) == 0 {
		return 0, errors.New("records are empty")
	}

	rows := make([]models.PriceRecord, len(records))
	seen := make(map[string]bool, len(records))
	for i, record := range records {
		if record.DeliveryDay == "" {
			return 0, fmt.Errorf("record %d has no delivery day", i)
		}
		if seen[record.DeliveryDay] {
			return 0, fmt.Errorf("duplicate delivery day %s", record.DeliveryDay)
		}
		seen[record.DeliveryDay] = true

		record.ID = ""
		rows[i] = record
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted := tx.Table(market.Collection).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.PriceRecord{})
		if deleted.Error != nil {
			return fmt.Errorf("clear %s: %w", market.Collection, deleted.Error)
		}
		if err := tx.Table(market.Collection).CreateInBatches(&rows, replaceBatchSize).Error; err != nil {
			return fmt.Errorf("insert into %s: %w", market.Collection, err)
		}
		return nil
	})
	if err != nil {
		failMsg := fmt.Sprintf("replace rows=%d collection=%s: %v", len(rows), market.Collection, err)
		_ = s.logService.CreateLog(ctx, eventID, market.Name, LogActionReplace, LogOutcomeFail, &failMsg)
		return 0, fmt.Errorf("%w: %w", ErrStore, err)
	}

	successMsg := fmt.Sprintf("replaced rows=%d collection=%s", len(rows), market.Collection)
	_ = s.logService.CreateLog(ctx, eventID, market.Name, LogActionReplace, LogOutcomeSuccess, &successMsg)

	return len(rows), nil
}

func (s *PriceService) GetPrices(ctx context.Context, market string, date string, from string, to string) ([]models.PriceRecord, error) {
	if s == nil {
		return nil, errors.New("price service is nil")
	}
	if s.db == nil {
		return nil, errors.New("db is nil")
	}

	filter, err := parsePriceFilter(date, from, to)
	if err != nil {
		return nil, err
	}

	entry, err := s.markets.GetMarket(ctx, market)
	if err != nil {
		return nil, err
	}

	return s.findPrices(ctx, entry.Collection, filter)
}

// GetAllPrices returns the filtered records of every market keyed by market
// name. Markets without matching records are left out.
func (s *PriceService) GetAllPrices(ctx context.Context, date string, from string, to string) (map[string][]models.PriceRecord, error) {
	if s == nil {
		return nil, errors.New("price service is nil")
	}
	if s.db == nil {
		return nil, errors.New("db is nil")
	}

	filter, err := parsePriceFilter(date, from, to)
	if err != nil {
		return nil, err
	}

	markets, err := s.markets.GetMarkets(ctx)
	if err != nil {
		return nil, err
	}

	results := make(map[string][]models.PriceRecord, len(markets))
	for _, market := range markets {
		records, err := s.findPrices(ctx, market.Collection, filter)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			results[market.Name] = records
		}
	}

	return results, nil
}

func (s *PriceService) CountPrices(ctx context.Context, market models.Market) (int64, error) {
	if s == nil {
		return 0, errors.New("price service is nil")
	}
	if s.db == nil {
		return 0, errors.New("db is nil")
	}
	if market.Collection == "" {
		return 0, errors.New("market collection is empty")
	}

	var count int64
	if err := s.db.WithContext(ctx).Table(market.Collection).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", market.Collection, err)
	}

	return count, nil
}

func (s *PriceService) findPrices(ctx context.Context, collection string, filter priceFilter) ([]models.PriceRecord, error) {
	if collection == "" {
		return nil, errors.New("market collection is empty")
	}

	query := s.db.WithContext(ctx).Table(collection)
	if filter.from != "" {
		query = query.Where("delivery_day >= ?", filter.from)
	}
	if filter.to != "" {
		query = query.Where("delivery_day <= ?", filter.to)
	}

	var records []models.PriceRecord
	if err := query.Order("delivery_day").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("get prices from %s: %w", collection, err)
	}

	return records, nil
}

// parsePriceFilter accepts either a single date or an inclusive from/to
// range; a single date wins over the range.
func parsePriceFilter(date string, from string, to string) (priceFilter, error) {
	if strings.TrimSpace(date) != "" {
		day, err := NormalizeDeliveryDay(date)
		if err != nil {
			return priceFilter{}, err
		}
		return priceFilter{from: day, to: day}, nil
	}

	var filter priceFilter
	var err error
	if strings.TrimSpace(from) != "" {
		if filter.from, err = NormalizeDeliveryDay(from); err != nil {
			return priceFilter{}, err
		}
	}
	if strings.TrimSpace(to) != "" {
		if filter.to, err = NormalizeDeliveryDay(to); err != nil {
			return priceFilter{}, err
		}
	}
	if filter.from != "" && filter.to != "" && filter.from > filter.to {
		return priceFilter{}, ErrInvalidDateRange
	}

	return filter, nil
}

// ParseUnit normalizes a unit query value; empty means EUR/MWh.
func ParseUnit(unit string) (string, error) {
	switch unit = strings.ToLower(strings.TrimSpace(unit)); unit {
	case "", UnitEurPerMwh:
		return UnitEurPerMwh, nil
	case UnitCtPerKwh:
		return UnitCtPerKwh, nil
	default:
		return "", ErrInvalidUnit
	}
}

// ConvertUnit returns copies of records with hourly values expressed in unit.
// Stored values are EUR/MWh; ct/kWh is a tenth of that.
func ConvertUnit(records []models.PriceRecord, unit string) ([]models.PriceRecord, error) {
	unit, err := ParseUnit(unit)
	if err != nil {
		return nil, err
	}
	if unit == UnitEurPerMwh {
		return records, nil
	}

	converted := make([]models.PriceRecord, len(records))
	for i, record := range records {
		values := make([]*float64, len(record.HourlyValues))
		for j, value := range record.HourlyValues {
			if value == nil {
				continue
			}
			scaled := *value * 0.1
			values[j] = &scaled
		}
		record.HourlyValues = values
		converted[i] = record
	}

	return converted, nil
}
