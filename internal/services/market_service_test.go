package services

import (
	"context"
	"errors"
	"testing"
)

func TestNewMarketServiceNilDB(t *testing.T) {
	if _, err := NewMarketService(nil); err == nil {
		t.Fatalf("NewMarketService nil db: expected error")
	}
}

func TestMarketServiceGetMarkets(t *testing.T) {
	service, err := NewMarketService(openMigratedTestDB(t))
	if err != nil {
		t.Fatalf("NewMarketService: %v", err)
	}

	markets, err := service.GetMarkets(context.Background())
	if err != nil {
		t.Fatalf("GetMarkets: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("markets length = %d, want 2", len(markets))
	}
	if markets[0].Name != "austria" || markets[1].Name != "germany" {
		t.Fatalf("markets = %q, %q, want austria, germany", markets[0].Name, markets[1].Name)
	}
	if markets[1].Collection != "germany_prices" {
		t.Fatalf("Collection = %q, want %q", markets[1].Collection, "germany_prices")
	}
}

func TestMarketServiceGetMarket(t *testing.T) {
	service, err := NewMarketService(openMigratedTestDB(t))
	if err != nil {
		t.Fatalf("NewMarketService: %v", err)
	}

	market, err := service.GetMarket(context.Background(), " Germany ")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if market.RemotePath != "/prices/germany.csv" {
		t.Fatalf("RemotePath = %q, want %q", market.RemotePath, "/prices/germany.csv")
	}

	for _, name := range []string{"", "france"} {
		if _, err := service.GetMarket(context.Background(), name); !errors.Is(err, ErrUnknownMarket) {
			t.Fatalf("GetMarket(%q): err = %v, want ErrUnknownMarket", name, err)
		}
	}
}

func TestMarketServiceNilReceiver(t *testing.T) {
	var service *MarketService
	if _, err := service.GetMarkets(context.Background()); err == nil {
		t.Fatalf("GetMarkets nil receiver: expected error")
	}
	if _, err := service.GetMarket(context.Background(), "germany"); err == nil {
		t.Fatalf("GetMarket nil receiver: expected error")
	}
}
