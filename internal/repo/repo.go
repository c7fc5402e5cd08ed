package repo

import (
	"errors"
	"fmt"

	"github.com/maxMuster194/testchart-sub002/internal/config"
	"github.com/maxMuster194/testchart-sub002/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the postgres database. A nil log falls back to gorm's
// default logger at warn level.
func Connect(dsn string, log logger.Interface) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is empty")
	}
	if log == nil {
		log = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return db, nil
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}

	return sqlDB.Close()
}

// Migrate creates the shared tables, one price table per configured market,
// and syncs the markets table with the configuration.
func Migrate(db *gorm.DB, markets []config.MarketConfig) error {
	if db == nil {
		return errors.New("db is nil")
	}

	if err := db.AutoMigrate(&models.Market{}, &models.Log{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	for _, market := range markets {
		if err := migratePriceTable(db, market.Collection); err != nil {
			return err
		}
	}

	if err := ensureMarkets(db, markets); err != nil {
		return fmt.Errorf("ensure markets: %w", err)
	}

	return nil
}

func migratePriceTable(db *gorm.DB, collection string) error {
	if collection == "" {
		return errors.New("collection is empty")
	}

	if err := db.Table(collection).AutoMigrate(&models.PriceRecord{}); err != nil {
		return fmt.Errorf("auto migrate %s: %w", collection, err)
	}

	// Index names are global in postgres, so they are named per table here
	// instead of through struct tags. The non-unique index of older schemas
	// is replaced.
	drop := fmt.Sprintf("DROP INDEX IF EXISTS idx_%s_delivery_day", collection)
	if err := db.Exec(drop).Error; err != nil {
		return fmt.Errorf("drop delivery day index on %s: %w", collection, err)
	}
	query := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS uidx_%s_delivery_day ON %s (delivery_day)", collection, collection)
	if err := db.Exec(query).Error; err != nil {
		return fmt.Errorf("create delivery day index on %s: %w", collection, err)
	}

	return nil
}

func ensureMarkets(db *gorm.DB, markets []config.MarketConfig) error {
	if db == nil {
		return errors.New("db is nil")
	}

	names := make([]string, 0, len(markets))
	for _, entry := range markets {
		names = append(names, entry.Name)

		var market models.Market
		err := db.Where("name = ?", entry.Name).First(&market).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			market = models.Market{
				Name:       entry.Name,
				RemotePath: entry.RemotePath,
				Collection: entry.Collection,
			}
			if err := db.Create(&market).Error; err != nil {
				return fmt.Errorf("create market %s: %w", entry.Name, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("select market %s: %w", entry.Name, err)
		}

		if market.RemotePath == entry.RemotePath && market.Collection == entry.Collection {
			continue
		}
		updates := map[string]interface{}{
			"remote_path": entry.RemotePath,
			"collection":  entry.Collection,
		}
		if err := db.Model(&market).Updates(updates).Error; err != nil {
			return fmt.Errorf("update market %s: %w", entry.Name, err)
		}
	}

	// Price tables of removed markets are left in place; only the registry
	// entry goes, so the pipeline stops fetching them.
	stale := db.Session(&gorm.Session{AllowGlobalUpdate: true})
	if len(names) > 0 {
		stale = stale.Where("name NOT IN ?", names)
	}
	if err := stale.Delete(&models.Market{}).Error; err != nil {
		return fmt.Errorf("delete stale markets: %w", err)
	}

	return nil
}
