// internal/models/route.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

// Route is an ordered list of stop references, each carrying the fee charged
// for boarding at that stop on this route.
type Route struct {
	ID          string                       `json:"id" gorm:"primaryKey;size:64"`
	OrgID       string                       `json:"org_id" gorm:"index;size:64"`
	Name        string                       `json:"name"`
	Description string                       `json:"description"`
	Stops       datatypes.JSONSlice[StopRef] `json:"stops"`
	AssignedBus *string                      `json:"assigned_bus" gorm:"index;size:64"` // mirrors Bus.RouteID

	// Geometry is a WKB LineString; the API speaks GeoJSON.
	Geometry []byte `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (*Route) KeyColumn() string { return "id" }
func (r *Route) RecordID() string { return r.ID }
func (r *Route) SetRecordID(id string) { r.ID = id }
func (r *Route) SetOrgID(org string) { r.OrgID = org }

// StopFor returns the first stop reference of the route that points at stop.
func (r *Route) StopFor(stop Stop) (StopRef, bool) {
	for _, ref := range r.Stops {
		if ref.Matches(stop) {
			return ref, true
		}
	}
	return StopRef{}, false
}
