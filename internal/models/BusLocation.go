package models

import (
	"time"

	"gorm.io/gorm"
)

// BusLocation is a persisted GPS fix reported by the driver device of a bus.
type BusLocation struct {
	gorm.Model
	OrgID            string    `json:"org_id" gorm:"index:idx_location_bus;size:64"`
	BusID            string    `json:"bus_id" gorm:"index:idx_location_bus;size:64"`
	DriverID         string    `json:"driver_id" gorm:"size:64"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Accuracy         float64   `json:"accuracy"` // meters
	Speed            float64   `json:"speed"`    // m/s
	Bearing          float64   `json:"bearing"`  // degrees
	Altitude         float64   `json:"altitude"` // meters
	IsMoving         bool      `json:"is_moving"`
	DistanceFromLast float64   `json:"distance_from_last"`
	Timestamp        time.Time `json:"timestamp"`
	EventType        string    `json:"event_type"` // initial, move, stopped, started, periodic
}
