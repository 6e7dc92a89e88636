// internal/models/student.go
package models

import "time"

// Student is keyed by roll number inside its organization. The roll number is
// also the student's login identity.
type Student struct {
	OrgID        string `json:"org_id" gorm:"primaryKey;size:64"`
	RollNumber   string `json:"roll_number" gorm:"primaryKey;size:64"`
	FullName     string `json:"full_name"`
	ParentName   string `json:"parent_name"`
	ParentPhone  string `json:"parent_phone"`
	StudentPhone string `json:"student_phone"`
	Email        string `json:"email"`
	Address      string `json:"address"`
	Batch        string `json:"batch"`
	RFIDTag      string `json:"rfid_tag_id" gorm:"index;size:64"`
	PhotoURL     string `json:"photo_url"`
	AuthUID      string `json:"auth_uid"`

	// Fee plan. Due = FeeAmount - Paid after every payment or reset.
	FeeAmount  float64    `json:"fee_amount"`
	Paid       float64    `json:"paid"`
	Due        float64    `json:"due"`
	CanTravel  bool       `json:"can_travel"`
	FeeResetAt *time.Time `json:"fee_reset_at,omitempty"`

	// Assignment. Nil references mean unassigned.
	BusID     *string `json:"bus_id" gorm:"index;size:64"`
	BusNumber string  `json:"bus_number"`
	RouteID   *string `json:"route_id" gorm:"index;size:64"`
	RouteName string  `json:"route_name"`
	BusStop   string  `json:"bus_stop"`
	BusStopID *string `json:"bus_stop_id" gorm:"index;size:64"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (*Student) KeyColumn() string { return "roll_number" }
func (s *Student) RecordID() string { return s.RollNumber }
func (s *Student) SetRecordID(id string) { s.RollNumber = id }
func (s *Student) SetOrgID(org string) { s.OrgID = org }
