// internal/models/stop.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

// Stop is a pickup/drop-off point referenced by routes. AssignedStudents holds
// the roll numbers whose BusStopID points here.
type Stop struct {
	ID               string                      `json:"id" gorm:"primaryKey;size:64"`
	OrgID            string                      `json:"org_id" gorm:"index;size:64"`
	Name             string                      `json:"name"`
	Latitude         float64                     `json:"latitude"`
	Longitude        float64                     `json:"longitude"`
	Fee              float64                     `json:"fee"`
	AssignedStudents datatypes.JSONSlice[string] `json:"assigned_students"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (*Stop) KeyColumn() string { return "id" }
func (s *Stop) RecordID() string { return s.ID }
func (s *Stop) SetRecordID(id string) { s.ID = id }
func (s *Stop) SetOrgID(org string) { s.OrgID = org }

// HasStudent reports whether roll is in the assigned set.
func (s *Stop) HasStudent(roll string) bool {
	for _, r := range s.AssignedStudents {
		if r == roll {
			return true
		}
	}
	return false
}

// AddStudent inserts roll into the set. It returns false if it was already there.
func (s *Stop) AddStudent(roll string) bool {
	if s.HasStudent(roll) {
		return false
	}
	s.AssignedStudents = append(s.AssignedStudents, roll)
	return true
}

// RemoveStudent drops roll from the set. It returns false if it was absent.
func (s *Stop) RemoveStudent(roll string) bool {
	out := s.AssignedStudents[:0]
	removed := false
	for _, r := range s.AssignedStudents {
		if r == roll {
			removed = true
			continue
		}
		out = append(out, r)
	}
	s.AssignedStudents = out
	return removed
}
