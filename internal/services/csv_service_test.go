package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/maxMuster194/testchart-sub002/internal/config"
)

func newTestCsvService(t *testing.T) *CsvService {
	t.Helper()

	service, err := NewCsvService(config.CSVConfig{})
	if err != nil {
		t.Fatalf("NewCsvService: %v", err)
	}
	return service
}

func hourHeader(hours int) string {
	columns := []string{"Delivery day"}
	for i := 1; i <= hours; i++ {
		columns = append(columns, fmt.Sprintf("Hour %d", i))
	}
	return strings.Join(columns, ",")
}

// priceRow renders a row of n values starting at base, stepping by 0.5.
func priceRow(day string, n int, base float64) string {
	fields := []string{day}
	for i := 0; i < n; i++ {
		fields = append(fields, fmt.Sprintf("%.2f", base+float64(i)*0.5))
	}
	return strings.Join(fields, ",")
}

func TestCsvServiceParse(t *testing.T) {
	service := newTestCsvService(t)

	payload := strings.Join([]string{
		hourHeader(24),
		priceRow("01/06/2025", 24, 10.5),
		priceRow("02/06/2025", 24, 20),
		priceRow("03/06/2025", 24, 30),
	}, "\n")

	result, err := service.Parse(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(result.Records))
	}
	if result.SkippedRows != 0 {
		t.Fatalf("skipped = %d, want 0", result.SkippedRows)
	}

	first := result.Records[0]
	if first.DeliveryDay != "2025-06-01" {
		t.Fatalf("delivery day = %q, want %q", first.DeliveryDay, "2025-06-01")
	}
	if len(first.HourlyValues) != 24 {
		t.Fatalf("hourly values = %d, want 24", len(first.HourlyValues))
	}
	if first.HourlyValues[0] == nil || *first.HourlyValues[0] != 10.5 {
		t.Fatalf("hour 1 = %v, want 10.5", first.HourlyValues[0])
	}
	if first.HourlyValues[23] == nil || *first.HourlyValues[23] != 22 {
		t.Fatalf("hour 24 = %v, want 22", first.HourlyValues[23])
	}
	if result.Records[2].DeliveryDay != "2025-06-03" {
		t.Fatalf("order not preserved: %q", result.Records[2].DeliveryDay)
	}
}

func TestCsvServiceParseKeepsMissingValuesAsNil(t *testing.T) {
	service := newTestCsvService(t)

	payload := hourHeader(4) + "\n" + "01/06/2025,1.5,,n/a,0\n"

	result, err := service.Parse(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	values := result.Records[0].HourlyValues
	if len(values) != 4 {
		t.Fatalf("hourly values = %d, want 4", len(values))
	}
	if values[1] != nil {
		t.Fatalf("empty cell = %v, want nil", *values[1])
	}
	if values[2] != nil {
		t.Fatalf("non-numeric cell = %v, want nil", *values[2])
	}
	if values[3] == nil || *values[3] != 0 {
		t.Fatalf("zero cell = %v, want 0", values[3])
	}
}

func TestCsvServiceParseDaylightSavingDays(t *testing.T) {
	service := newTestCsvService(t)

	payload := strings.Join([]string{
		hourHeader(24),
		priceRow("30/03/2025", 23, 50),
		priceRow("31/03/2025", 24, 50),
		priceRow("26/10/2025", 25, 50),
	}, "\n")

	result, err := service.Parse(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := map[string]int{"2025-03-30": 23, "2025-03-31": 24, "2025-10-26": 25}
	for _, record := range result.Records {
		if len(record.HourlyValues) != want[record.DeliveryDay] {
			t.Fatalf("%s: hourly values = %d, want %d", record.DeliveryDay, len(record.HourlyValues), want[record.DeliveryDay])
		}
	}

	last := result.Records[2].HourlyValues
	if last[24] == nil || *last[24] != 62 {
		t.Fatalf("extra hour = %v, want 62", last[24])
	}
}

func TestCsvServiceParseSplitHourColumns(t *testing.T) {
	service := newTestCsvService(t)

	columns := []string{"Delivery day", "Hour 1", "Hour 2", "Hour 3A", "Hour 3B"}
	for i := 4; i <= 24; i++ {
		columns = append(columns, fmt.Sprintf("Hour %d", i))
	}

	// row fills hours 1, 2, 3A and 3B with the given cells, then 4..24.
	row := func(day string, h3a string, h3b string) string {
		fields := []string{day, "1", "2", h3a, h3b}
		for i := 4; i <= 24; i++ {
			fields = append(fields, fmt.Sprintf("%d", i))
		}
		return strings.Join(fields, ",")
	}

	payload := strings.Join([]string{
		strings.Join(columns, ","),
		row("01/06/2025", "3", ""),
		row("30/03/2025", "", ""),
		row("26/10/2025", "3", "3.5"),
		row("02/06/2025", "n/a", ""),
	}, "\n")

	result, err := service.Parse(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.Records) != 4 {
		t.Fatalf("records = %d, want 4", len(result.Records))
	}

	want := map[string]int{"2025-06-01": 24, "2025-03-30": 23, "2025-10-26": 25, "2025-06-02": 24}
	for _, record := range result.Records {
		if len(record.HourlyValues) != want[record.DeliveryDay] {
			t.Fatalf("%s: hourly values = %d, want %d", record.DeliveryDay, len(record.HourlyValues), want[record.DeliveryDay])
		}
	}

	normal := result.Records[0].HourlyValues
	if normal[2] == nil || *normal[2] != 3 {
		t.Fatalf("hour 3 = %v, want 3", normal[2])
	}
	if normal[3] == nil || *normal[3] != 4 {
		t.Fatalf("hour 4 = %v, want 4", normal[3])
	}

	spring := result.Records[1].HourlyValues
	if spring[2] == nil || *spring[2] != 4 {
		t.Fatalf("spring hour 3 = %v, want 4", spring[2])
	}

	autumn := result.Records[2].HourlyValues
	if autumn[3] == nil || *autumn[3] != 3.5 {
		t.Fatalf("autumn hour 3B = %v, want 3.5", autumn[3])
	}

	if result.Records[3].HourlyValues[2] != nil {
		t.Fatalf("unreadable hour 3A = %v, want nil", *result.Records[3].HourlyValues[2])
	}
}

func TestCsvServiceParseSkipsBadRows(t *testing.T) {
	service := newTestCsvService(t)

	payload := strings.Join([]string{
		"",
		hourHeader(2),
		"01/06/2025,1,2",
		"",
		"not a date,3,4",
		",,",
		"31/02/2025,5,6",
		"02/06/2025,7,8",
	}, "\n")

	result, err := service.Parse(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(result.Records))
	}
	if result.SkippedRows != 2 {
		t.Fatalf("skipped = %d, want 2", result.SkippedRows)
	}
}

func TestCsvServiceParseDuplicateDaysLastWins(t *testing.T) {
	service := newTestCsvService(t)

	payload := strings.Join([]string{
		hourHeader(1),
		"01/06/2025,1",
		"02/06/2025,2",
		"01/06/2025,3",
	}, "\n")

	result, err := service.Parse(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(result.Records))
	}
	if result.Duplicates != 1 {
		t.Fatalf("duplicates = %d, want 1", result.Duplicates)
	}
	if result.Records[0].DeliveryDay != "2025-06-01" || *result.Records[0].HourlyValues[0] != 3 {
		t.Fatalf("duplicate day not replaced by last row: %+v", result.Records[0])
	}
}

func TestCsvServiceParseAttributes(t *testing.T) {
	service := newTestCsvService(t)

	payload := "\ufeffDelivery day,Auction,Hour 1,Hour 2,Base\n01/06/2025,DE-LU,10,11,10.5\n"

	result, err := service.Parse(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	record := result.Records[0]
	if len(record.HourlyValues) != 2 {
		t.Fatalf("hourly values = %d, want 2", len(record.HourlyValues))
	}
	if record.Attributes["Auction"] != "DE-LU" {
		t.Fatalf("Auction = %v, want %q", record.Attributes["Auction"], "DE-LU")
	}
	if record.Attributes["Base"] != 10.5 {
		t.Fatalf("Base = %v, want 10.5", record.Attributes["Base"])
	}
}

func TestCsvServiceParseDeliveryDayFallsBackToFirstColumn(t *testing.T) {
	service := newTestCsvService(t)

	payload := "Date,Hour 1\n2025-06-01,42\n"

	result, err := service.Parse(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.Records[0].DeliveryDay != "2025-06-01" {
		t.Fatalf("delivery day = %q, want %q", result.Records[0].DeliveryDay, "2025-06-01")
	}
}

func TestCsvServiceParseUnparseable(t *testing.T) {
	service := newTestCsvService(t)

	cases := map[string]string{
		"empty":           "",
		"whitespace":      " \n\n ",
		"no hour columns": "Delivery day,Comment\n01/06/2025,none\n",
		"no valid rows":   hourHeader(2) + "\nfoo,1,2\nbar,3,4\n",
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := service.Parse(context.Background(), []byte(payload))
			if !errors.Is(err, ErrUnparseable) {
				t.Fatalf("Parse: err = %v, want ErrUnparseable", err)
			}
		})
	}
}

func TestCsvServiceParseHeaderOnly(t *testing.T) {
	service := newTestCsvService(t)

	result, err := service.Parse(context.Background(), []byte(hourHeader(24)+"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.Records) != 0 {
		t.Fatalf("records = %d, want 0", len(result.Records))
	}
}

func TestNewCsvServiceInvalidPattern(t *testing.T) {
	if _, err := NewCsvService(config.CSVConfig{HourColumnPattern: "("}); err == nil {
		t.Fatalf("NewCsvService invalid pattern: expected error")
	}
}
