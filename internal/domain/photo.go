package domain

import (
	"time"
)

// Photo represents one image file tracked by the indexer.
// A photo is considered fully indexed once VectorID is set; there is no
// separate status column, the vector reference is the single source of truth.
type Photo struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Path      string    `gorm:"type:text;not null;uniqueIndex:idx_photos_path" json:"path"`
	Filename  string    `gorm:"type:text;not null" json:"filename"`
	SizeMB    float64   `gorm:"column:size_mb" json:"size_mb"`
	CreatedAt time.Time `json:"created_at"`
	IndexedAt time.Time `json:"indexed_at"`
	VectorID  *string   `gorm:"type:text;uniqueIndex:idx_photos_vector_id" json:"vector_id,omitempty"`
}

// TableName returns the database table name for Photo.
func (Photo) TableName() string {
	return "images"
}

// FullyIndexed reports whether the photo has a backing embedding entry.
func (p *Photo) FullyIndexed() bool {
	return p.VectorID != nil && *p.VectorID != ""
}
