// Package datastore persists the feed cursor and last-known visitor
// snapshots so restarts resume from known state instead of replaying the
// whole feed window.
package datastore

import "time"

// FeedCursor records how far into the activity feed the poller has read.
type FeedCursor struct {
	ID       uint      `gorm:"primaryKey"`
	LastSeen time.Time `gorm:"index"`
}

// VisitorSnapshot is the persisted form of a feeder's resolved visitor
// state, restored at startup the way the platform restores sensor state.
type VisitorSnapshot struct {
	FeederID       string `gorm:"primaryKey"`
	SpeciesID      string
	SpeciesName    string
	MediaID        string
	ContentURL     string
	ThumbnailURL   string
	MediaCreatedAt time.Time
	IsVideo        bool
	UpdatedAt      time.Time
}

// Interface abstracts the database access for the application.
type Interface interface {
	Open() error
	Close() error

	GetFeedCursor() (time.Time, error)
	SaveFeedCursor(lastSeen time.Time) error

	GetVisitorSnapshot(feederID string) (*VisitorSnapshot, error)
	GetAllVisitorSnapshots() ([]VisitorSnapshot, error)
	SaveVisitorSnapshot(snapshot *VisitorSnapshot) error
}
