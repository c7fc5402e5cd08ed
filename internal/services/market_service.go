package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maxMuster194/testchart-sub002/internal/models"

	"gorm.io/gorm"
)

var ErrUnknownMarket = errors.New("unknown market")

type MarketService struct {
	db *gorm.DB
}

func NewMarketService(db *gorm.DB) (*MarketService, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}

	return &MarketService{db: db}, nil
}

func (s *MarketService) GetMarkets(ctx context.Context) ([]models.Market, error) {
	if s == nil {
		return nil, errors.New("market service is nil")
	}
	if s.db == nil {
		return nil, errors.New("db is nil")
	}

	var markets []models.Market
	if err := s.db.WithContext(ctx).Order("name").Find(&markets).Error; err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}

	return markets, nil
}

func (s *MarketService) GetMarket(ctx context.Context, name string) (models.Market, error) {
	if s == nil {
		return models.Market{}, errors.New("market service is nil")
	}
	if s.db == nil {
		return models.Market{}, errors.New("db is nil")
	}

	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return models.Market{}, ErrUnknownMarket
	}

	var market models.Market
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&market).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Market{}, fmt.Errorf("%w: %s", ErrUnknownMarket, name)
	}
	if err != nil {
		return models.Market{}, fmt.Errorf("get market %s: %w", name, err)
	}

	return market, nil
}
