package models

import "time"

const (
	TripStarted   = "started"
	TripCompleted = "completed"

	ScanEntry = "entry"
	ScanExit  = "exit"
)

// Trip is one run of a bus. Scans are ordered by Timestamp.
type Trip struct {
	ID        string     `json:"id" gorm:"primaryKey;size:64"`
	OrgID     string     `json:"org_id" gorm:"index:idx_trip_bus;size:64"`
	BusID     string     `json:"bus_id" gorm:"index:idx_trip_bus;size:64"`
	DriverID  string     `json:"driver_id" gorm:"size:64"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Scans     []Scan     `json:"scans,omitempty" gorm:"foreignKey:TripID;constraint:OnDelete:CASCADE"`
}

// Scan is one RFID tap on the bus reader.
type Scan struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	TripID     string    `json:"trip_id" gorm:"index;size:64"`
	OrgID      string    `json:"org_id" gorm:"size:64"`
	CardID     string    `json:"card_id"`
	RollNumber string    `json:"roll_number" gorm:"size:64"`
	Type       string    `json:"type"`
	Allowed    bool      `json:"allowed"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
