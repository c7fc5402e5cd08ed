package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PriceRecord is one delivery day of a market's day-ahead price file.
// Records of different markets live in different tables, so queries must
// select the table explicitly. DeliveryDay is kept as YYYY-MM-DD so that
// lexical order is date order.
type PriceRecord struct {
	ID           string                        `gorm:"type:uuid;primaryKey" json:"id"`
	DeliveryDay  string                        `gorm:"type:varchar(10);not null" json:"delivery_day"`
	HourlyValues datatypes.JSONSlice[*float64] `json:"hourly_values"`
	Attributes   datatypes.JSONMap             `json:"attributes,omitempty"`
}

func (r *PriceRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
