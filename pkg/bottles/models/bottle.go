/*
 * OneBottle API
 *
 * One bottle per participant, discovered at random by everyone else.
 *
 * API version: 1.0.0
 */

package models

import (
	"strings"
	"time"
)

// MediaKind is the coarse media family of a bottle.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// MediaKindFromContentType maps a declared content type to a MediaKind.
// The second return value is false for anything that is not image/* or video/*.
func MediaKindFromContentType(contentType string) (MediaKind, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return MediaKindImage, true
	case strings.HasPrefix(ct, "video/"):
		return MediaKindVideo, true
	default:
		return "", false
	}
}

// Visibility of a bottle. Only approved bottles are ever stored.
type Visibility string

const VisibilityApproved Visibility = "approved"

// Bottle is the single media artifact a participant leaves behind.
type Bottle struct {
	ID         string     `gorm:"column:id;primaryKey"`
	OwnerID    string     `gorm:"column:owner_id;not null;uniqueIndex:idx_bottles_owner"`
	MediaKey   string     `gorm:"column:media_key;not null"`
	MediaURL   string     `gorm:"column:media_url;not null"`
	MediaKind  MediaKind  `gorm:"column:media_kind;not null"`
	Visibility Visibility `gorm:"column:visibility;not null;index"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
}

// BottleView is what a viewer gets from discovery. The owner is never included.
type BottleView struct {
	Id        string    `json:"id"`
	MediaUrl  string    `json:"media_url"`
	MediaKind MediaKind `json:"media_kind"`
}

// BottleDetail is the external view of GET /artifacts/:id.
type BottleDetail struct {
	Id        string    `json:"id"`
	MediaUrl  string    `json:"media_url"`
	MediaKind MediaKind `json:"media_kind"`
	CreatedAt time.Time `json:"created_at"`
}

type BottleParams struct {
	Id string `path:"id"`
}

type MediaParams struct {
	Key string `path:"key"`
}
