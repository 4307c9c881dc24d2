package models

import (
	"time"
)

// Pageview is one page load reported by the tracking pixel.
type Pageview struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp   time.Time `gorm:"column:ts;not null;index:idx_pv_ts" json:"ts"`
	Path        string    `gorm:"type:text;not null" json:"path"`
	Referrer    string    `gorm:"type:text;not null" json:"referrer"`
	VisitorHash string    `gorm:"column:visitor_hash;type:varchar(16);not null;index:idx_pv_visitor" json:"visitor_hash"`
	Browser     string    `gorm:"type:varchar(16);not null" json:"browser"`
	OS          string    `gorm:"column:os;type:varchar(16);not null" json:"os"`
	Device      string    `gorm:"type:varchar(16);not null" json:"device"`
	Lang        string    `gorm:"type:varchar(10);not null" json:"lang"`
}

// Event is a named custom event posted by the tracked page.
type Event struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp   time.Time `gorm:"column:ts;not null;index:idx_ev_ts" json:"ts"`
	Name        string    `gorm:"type:varchar(64);not null;index:idx_ev_name" json:"name"`
	Data        string    `gorm:"type:text;not null" json:"data"`
	VisitorHash string    `gorm:"column:visitor_hash;type:varchar(16);not null" json:"visitor_hash"`
	Path        string    `gorm:"type:varchar(256);not null" json:"path"`
}

func (Pageview) TableName() string {
	return "pageviews"
}

func (Event) TableName() string {
	return "events"
}
