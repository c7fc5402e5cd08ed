package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/maxMuster194/testchart-sub002/internal/models"

	"go.uber.org/zap"
)

type SnapshotService struct {
	dir string
	log *zap.Logger
}

func NewSnapshotService(dir string, log *zap.Logger) (*SnapshotService, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("snapshot dir is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &SnapshotService{dir: dir, log: log.Named("snapshot")}, nil
}

// Write stores records as <dir>/<market>.csv in the provider layout. The file
// is written next to its final name and renamed, so readers never see a
// partial snapshot.
func (s *SnapshotService) Write(ctx context.Context, market string, records []models.PriceRecord) (string, error) {
	if s == nil {
		return "", errors.New("snapshot service is nil")
	}
	if market == "" || strings.ContainsAny(market, `/\`) || strings.Contains(market, "..") {
		return "", fmt.Errorf("invalid snapshot market name %q", market)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(s.dir, market+".csv")
	tmp, err := os.CreateTemp(s.dir, market+"-*.csv.tmp")
	if err != nil {
		return "", fmt.Errorf("create snapshot file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	writeErr := writeSnapshotCsv(tmp, records)
	closeErr := tmp.Close()
	if writeErr != nil {
		return "", fmt.Errorf("write snapshot: %w", writeErr)
	}
	if closeErr != nil {
		return "", fmt.Errorf("close snapshot: %w", closeErr)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("rename snapshot: %w", err)
	}

	s.log.Debug("wrote snapshot", zap.String("market", market), zap.String("path", path), zap.Int("records", len(records)))
	return path, nil
}

func writeSnapshotCsv(file *os.File, records []models.PriceRecord) error {
	hours := 0
	attributeSet := map[string]bool{}
	for _, record := range records {
		hours = max(hours, len(record.HourlyValues))
		for key := range record.Attributes {
			attributeSet[key] = true
		}
	}

	attributes := make([]string, 0, len(attributeSet))
	for key := range attributeSet {
		attributes = append(attributes, key)
	}
	sort.Strings(attributes)

	header := make([]string, 0, 1+len(attributes)+hours)
	header = append(header, defaultDeliveryDayColumn)
	header = append(header, attributes...)
	for i := 1; i <= hours; i++ {
		header = append(header, fmt.Sprintf("Hour %d", i))
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, record := range records {
		// Rows carry only their own hours, so 23 and 25 hour days keep
		// their length when read back.
		row := make([]string, 0, 1+len(attributes)+len(record.HourlyValues))
		row = append(row, FormatDeliveryDay(record.DeliveryDay))
		for _, key := range attributes {
			row = append(row, formatSnapshotValue(record.Attributes[key]))
		}
		for _, value := range record.HourlyValues {
			if value == nil {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(*value, 'f', -1, 64))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatSnapshotValue(value interface{}) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}
