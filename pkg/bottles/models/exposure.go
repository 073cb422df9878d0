package models

import "time"

// DayLayout formats the calendar day an exposure counts against.
const DayLayout = "2006-01-02"

// Exposure records that a viewer has been shown a bottle.
// (viewer_id, bottle_id) is unique: a bottle is shown to a viewer at most once.
type Exposure struct {
	ID        string    `gorm:"column:id;primaryKey"`
	ViewerID  string    `gorm:"column:viewer_id;not null;uniqueIndex:idx_exposures_viewer_bottle,priority:1;index:idx_exposures_viewer_day,priority:1"`
	BottleID  string    `gorm:"column:bottle_id;not null;uniqueIndex:idx_exposures_viewer_bottle,priority:2"`
	ShownOn   string    `gorm:"column:shown_on;not null;index:idx_exposures_viewer_day,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// DailyCounter backs the strict quota mode: one row per viewer per day,
// incremented atomically before a bottle is picked.
type DailyCounter struct {
	ViewerID string `gorm:"column:viewer_id;primaryKey"`
	Day      string `gorm:"column:day;primaryKey"`
	Shown    int    `gorm:"column:shown;not null;default:0"`
}
