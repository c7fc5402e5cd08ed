package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/maxMuster194/testchart-sub002/internal/config"
	"github.com/maxMuster194/testchart-sub002/internal/models"
)

const (
	defaultDeliveryDayColumn = "Delivery day"
	defaultHourColumnPattern = `(?i)^hour\s*\d+[a-z]?$`
)

var ErrUnparseable = errors.New("unparseable price file")

// suffixedHourColumn matches split-hour columns such as "Hour 3A".
var suffixedHourColumn = regexp.MustCompile(`\d\s*[A-Za-z]$`)

type ParseResult struct {
	Records     []models.PriceRecord
	Rows        int
	SkippedRows int
	Duplicates  int
}

type CsvService struct {
	deliveryDayColumn string
	hourColumn        *regexp.Regexp
}

func NewCsvService(cfg config.CSVConfig) (*CsvService, error) {
	column := strings.TrimSpace(cfg.DeliveryDayColumn)
	if column == "" {
		column = defaultDeliveryDayColumn
	}

	pattern := cfg.HourColumnPattern
	if pattern == "" {
		pattern = defaultHourColumnPattern
	}
	hourColumn, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile hour column pattern: %w", err)
	}

	return &CsvService{
		deliveryDayColumn: column,
		hourColumn:        hourColumn,
	}, nil
}

// Parse turns a provider CSV file into price records. Bad rows are dropped
// and counted; only a file that cannot be read as a price table at all
// returns ErrUnparseable.
func (s *CsvService) Parse(ctx context.Context, payload []byte) (ParseResult, error) {
	if s == nil {
		return ParseResult{}, errors.New("csv service is nil")
	}
	if s.hourColumn == nil {
		return ParseResult{}, errors.New("hour column pattern is nil")
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return ParseResult{}, fmt.Errorf("%w: payload is empty", ErrUnparseable)
	}

	header, rows, skipped, err := readCsvRows(payload)
	if err != nil {
		return ParseResult{}, err
	}

	layout := s.resolveLayout(header)
	result := ParseResult{
		Records:     make([]models.PriceRecord, 0, len(rows)),
		Rows:        len(rows),
		SkippedRows: skipped,
	}

	positions := make(map[string]int, len(rows))
	hasHourValues := false
	for _, fields := range rows {
		if err := ctx.Err(); err != nil {
			return ParseResult{}, err
		}

		record, ok := layout.normalize(fields)
		if !ok {
			result.SkippedRows++
			continue
		}
		if len(record.HourlyValues) > 0 {
			hasHourValues = true
		}

		if idx, seen := positions[record.DeliveryDay]; seen {
			result.Records[idx] = record
			result.Duplicates++
			continue
		}
		positions[record.DeliveryDay] = len(result.Records)
		result.Records = append(result.Records, record)
	}

	if len(layout.hours) == 0 && !hasHourValues {
		return ParseResult{}, fmt.Errorf("%w: no hour columns in header", ErrUnparseable)
	}
	if len(rows) > 0 && len(result.Records) == 0 {
		return ParseResult{}, fmt.Errorf("%w: none of %d rows could be read", ErrUnparseable, len(rows))
	}

	return result, nil
}

// readCsvRows returns the header and the non-blank data rows. Rows the csv
// reader rejects are counted as skipped.
func readCsvRows(payload []byte) ([]string, [][]string, int, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.Comma = ','
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var header []string
	var rows [][]string
	skipped := 0
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			if header == nil {
				return nil, nil, 0, fmt.Errorf("%w: header: %w", ErrUnparseable, err)
			}
			skipped++
			continue
		}
		if err != nil {
			return nil, nil, 0, fmt.Errorf("%w: %w", ErrUnparseable, err)
		}

		if isBlankRow(fields) {
			continue
		}
		if header == nil {
			header = normalizeHeader(fields)
			continue
		}
		rows = append(rows, fields)
	}

	if header == nil {
		return nil, nil, 0, fmt.Errorf("%w: no header row", ErrUnparseable)
	}

	return header, rows, skipped, nil
}

func normalizeHeader(fields []string) []string {
	header := make([]string, len(fields))
	for i, field := range fields {
		name := strings.TrimSpace(field)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		header[i] = name
	}
	return header
}

func isBlankRow(fields []string) bool {
	for _, field := range fields {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

type csvLayout struct {
	header      []string
	deliveryDay int
	hours       []int
	optional    map[int]bool
	attributes  []int
}

func (s *CsvService) resolveLayout(header []string) csvLayout {
	layout := csvLayout{header: header, deliveryDay: 0}
	for i, name := range header {
		if strings.EqualFold(name, s.deliveryDayColumn) {
			layout.deliveryDay = i
			break
		}
	}

	for i, name := range header {
		if i == layout.deliveryDay {
			continue
		}
		if s.hourColumn.MatchString(name) {
			layout.hours = append(layout.hours, i)
			if suffixedHourColumn.MatchString(name) {
				if layout.optional == nil {
					layout.optional = make(map[int]bool)
				}
				layout.optional[i] = true
			}
			continue
		}
		layout.attributes = append(layout.attributes, i)
	}

	return layout
}

// normalize maps one row onto a record. Hour cells present in the row keep
// their position, with unreadable cells as nil; a blank split-hour cell is an
// hour the day does not have and is dropped. Cells past the header width are
// appended as extra hours.
func (l csvLayout) normalize(fields []string) (models.PriceRecord, bool) {
	if l.deliveryDay >= len(fields) {
		return models.PriceRecord{}, false
	}
	day, err := NormalizeDeliveryDay(fields[l.deliveryDay])
	if err != nil {
		return models.PriceRecord{}, false
	}

	values := make([]*float64, 0, len(l.hours))
	for _, idx := range l.hours {
		if idx >= len(fields) {
			continue
		}
		if l.optional[idx] && strings.TrimSpace(fields[idx]) == "" {
			continue
		}
		values = append(values, parseHourValue(fields[idx]))
	}

	extra := fields[min(len(l.header), len(fields)):]
	for len(extra) > 0 && strings.TrimSpace(extra[len(extra)-1]) == "" {
		extra = extra[:len(extra)-1]
	}
	for _, field := range extra {
		values = append(values, parseHourValue(field))
	}

	var attributes map[string]interface{}
	for _, idx := range l.attributes {
		if idx >= len(fields) {
			continue
		}
		if attributes == nil {
			attributes = make(map[string]interface{}, len(l.attributes))
		}
		attributes[l.header[idx]] = parseDynamicValue(fields[idx])
	}

	return models.PriceRecord{
		DeliveryDay:  day,
		HourlyValues: values,
		Attributes:   attributes,
	}, true
}

func parseHourValue(field string) *float64 {
	value, ok := parseNumber(field)
	if !ok {
		return nil
	}
	return &value
}

func parseDynamicValue(field string) interface{} {
	trimmed := strings.TrimSpace(field)
	if trimmed == "" {
		return nil
	}
	if value, ok := parseNumber(trimmed); ok {
		return value
	}
	return trimmed
}

func parseNumber(field string) (float64, bool) {
	trimmed := strings.TrimSpace(field)
	if trimmed == "" {
		return 0, false
	}

	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}
