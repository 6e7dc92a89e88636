// internal/models/bus.go
package models

import "time"

const (
	BusStatusIdle   = "idle"
	BusStatusOnTrip = "on_trip"
)

// Bus is the seat pool students draw from. AvailSeats is derived and stays
// within [0, Capacity].
type Bus struct {
	ID           string `json:"id" gorm:"primaryKey;size:64"`
	OrgID        string `json:"org_id" gorm:"index;uniqueIndex:idx_bus_org_registration;size:64"`
	BusNumber    string `json:"bus_number"`
	Registration string `json:"registration" gorm:"uniqueIndex:idx_bus_org_registration;size:64"`
	Capacity     int    `json:"capacity"`
	AvailSeats   int    `json:"avail_seats"`

	DriverID   *string `json:"driver_id" gorm:"index;size:64"`
	DriverName string  `json:"driver_name"`
	RouteID    *string `json:"route_id" gorm:"index;size:64"`
	RouteName  string  `json:"route"`

	Status     string     `json:"status" gorm:"default:idle"`
	LastLat    float64    `json:"last_lat"`
	LastLng    float64    `json:"last_lng"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (*Bus) KeyColumn() string { return "id" }
func (b *Bus) RecordID() string { return b.ID }
func (b *Bus) SetRecordID(id string) { b.ID = id }
func (b *Bus) SetOrgID(org string) { b.OrgID = org }
