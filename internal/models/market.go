package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Market struct {
	ID         string `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string `gorm:"type:text;not null;uniqueIndex" json:"name"`
	RemotePath string `gorm:"type:text;not null" json:"remote_path"`
	Collection string `gorm:"type:text;not null" json:"collection"`
}

func (m *Market) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
