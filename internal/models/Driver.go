// internal/models/driver.go
package models

import "time"

// Driver is keyed by license number inside its organization.
type Driver struct {
	OrgID                 string `json:"org_id" gorm:"primaryKey;size:64"`
	LicenseNumber         string `json:"license_number" gorm:"primaryKey;size:64"`
	FullName              string `json:"full_name"`
	PhoneNumber           string `json:"phone_number"`
	DateOfBirth           string `json:"date_of_birth"`
	JoiningDate           string `json:"joining_date"`
	LicenseExpiryDate     string `json:"license_expiry_date"`
	EmergencyContactName  string `json:"emergency_contact_name"`
	EmergencyContactPhone string `json:"emergency_contact_phone"`
	BloodGroup            string `json:"blood_group"`
	Address               string `json:"address"`
	PhotoURL              string `json:"photo_url"`
	AuthUID               string `json:"auth_uid"`

	AssignedBus *string `json:"assigned_bus" gorm:"index;size:64"` // mirrors Bus.DriverID
	CanAddStop  bool    `json:"can_add_stop"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (*Driver) KeyColumn() string { return "license_number" }
func (d *Driver) RecordID() string { return d.LicenseNumber }
func (d *Driver) SetRecordID(id string) { d.LicenseNumber = id }
func (d *Driver) SetOrgID(org string) { d.OrgID = org }
