package models

import (
	"time"

	"gorm.io/datatypes"
)

// RealtimeEntry backs the realtime key/value channel when it lives in the
// database instead of Firebase.
type RealtimeEntry struct {
	OrgID     string         `gorm:"primaryKey;size:64"`
	Key       string         `gorm:"primaryKey;size:128"`
	Value     datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}
