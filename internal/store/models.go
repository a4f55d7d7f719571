package store

import (
	"time"

	"gorm.io/datatypes"
)

// DocumentModel is the GORM row backing one document. The collection name
// discriminates the four logical collections inside a single table.
type DocumentModel struct {
	ID         string         `gorm:"primaryKey;size:24"`
	Collection string         `gorm:"not null;index:idx_documents_collection"`
	Data       datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time
}

// TableName pins the table name independent of gorm pluralization.
func (DocumentModel) TableName() string {
	return "documents"
}
