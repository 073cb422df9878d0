package models

import "time"

// Blob stores uploaded media. Content is stored as a blob.
type Blob struct {
	Key         string    `gorm:"column:key;primaryKey" json:"key"`
	ContentType string    `gorm:"column:content_type" json:"contentType"`
	Size        int64     `gorm:"column:size" json:"size"`
	Data        []byte    `gorm:"column:data;type:bytea" json:"-"`
	CreatedAt   time.Time `gorm:"column:created_at;index" json:"createdAt"`
}
