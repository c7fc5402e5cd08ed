package services

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidDate = errors.New("invalid date")

const (
	deliveryDayLayout = "2006-01-02"
	sourceDayLayout   = "02/01/2006"
)

var deliveryDayInputLayouts = []string{
	sourceDayLayout,
	"2/1/2006",
	deliveryDayLayout,
	"02.01.2006",
}

// NormalizeDeliveryDay turns DD/MM/YYYY (and the other accepted inputs)
// into the stored YYYY-MM-DD form.
func NormalizeDeliveryDay(value string) (string, error) {
	value = strings.Trim(strings.TrimSpace(value), `"'`)
	if value == "" {
		return "", ErrInvalidDate
	}

	for _, layout := range deliveryDayInputLayouts {
		day, err := time.Parse(layout, value)
		if err == nil {
			return day.Format(deliveryDayLayout), nil
		}
	}

	return "", ErrInvalidDate
}

// FormatDeliveryDay renders a stored day in the provider's DD/MM/YYYY form.
func FormatDeliveryDay(value string) string {
	day, err := time.Parse(deliveryDayLayout, value)
	if err != nil {
		return value
	}
	return day.Format(sourceDayLayout)
}
