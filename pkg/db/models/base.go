package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base supplies a client-generated UUID primary key.
type Base struct {
	ID uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
}

// BeforeCreate assigns an id when the caller left it blank.
func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// StringList is a JSON encoded list of strings.
type StringList = datatypes.JSONSlice[string]
