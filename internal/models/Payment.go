// internal/models/payment.go
package models

import "time"

// Payment belongs to one student. Resets archive payments instead of deleting
// them; the sum of non-archived amounts equals Student.Paid.
type Payment struct {
	ID         string     `json:"id" gorm:"primaryKey;size:64"`
	OrgID      string     `json:"org_id" gorm:"index:idx_payment_student;size:64"`
	RollNumber string     `json:"roll_number" gorm:"index:idx_payment_student;size:64"`
	Amount     float64    `json:"amount"`
	Date       time.Time  `json:"date"`
	Method     string     `json:"method"`
	Note       string     `json:"note"`
	Archived   bool       `json:"archived" gorm:"index"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (*Payment) KeyColumn() string { return "id" }
func (p *Payment) RecordID() string { return p.ID }
func (p *Payment) SetRecordID(id string) { p.ID = id }
func (p *Payment) SetOrgID(org string) { p.OrgID = org }
