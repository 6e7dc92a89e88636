package boarding

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"school_bus/internal/apperr"
	"school_bus/internal/store"
)

// TagWriteKey is the realtime key the admin app and the RFID writer share.
const TagWriteKey = "rfid_write"

// Tag write states. The writer device moves pending to written or failed;
// saved means the tag is stored on the student.
const (
	TagPending = "pending"
	TagWritten = "written"
	TagFailed  = "failed"
	TagSaved   = "saved"
)

// TagWrite is the state of the RFID write handshake of an organization.
type TagWrite struct {
	RollNumber string `json:"roll_number"`
	Status     string `json:"status"`
	TagID      string `json:"tag_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RequestTagWrite asks the writer device to write a tag for roll. A newer
// request replaces an unfinished one.
func (s *Service) RequestTagWrite(ctx context.Context, org, roll string) (*TagWrite, error) {
	if s.live == nil {
		return nil, apperr.Upstream(nil, "realtime channel is not configured")
	}
	if _, err := s.store.Students.Get(ctx, org, roll); err != nil {
		return nil, err
	}
	tw := &TagWrite{RollNumber: roll, Status: TagPending}
	if err := s.live.Set(ctx, org, TagWriteKey, tw); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"org_id": org, "roll": roll}).Info("RFID tag write requested")
	return tw, nil
}

// ReportTagWrite records the writer device's answer to the pending request.
func (s *Service) ReportTagWrite(ctx context.Context, org string, report TagWrite) (*TagWrite, error) {
	if s.live == nil {
		return nil, apperr.Upstream(nil, "realtime channel is not configured")
	}
	var cur TagWrite
	if err := s.live.Get(ctx, org, TagWriteKey, &cur); err != nil {
		return nil, err
	}
	if cur.Status != TagPending {
		return nil, apperr.Conflict("no tag write is pending")
	}
	if report.RollNumber != "" && report.RollNumber != cur.RollNumber {
		return nil, apperr.Conflict("pending tag write is for %q, not %q", cur.RollNumber, report.RollNumber)
	}

	switch report.Status {
	case TagWritten:
		cur.TagID = strings.TrimSpace(report.TagID)
		if cur.TagID == "" {
			return nil, apperr.Validation("tag_id is required when status is %q", TagWritten)
		}
	case TagFailed:
		cur.Error = report.Error
	default:
		return nil, apperr.Validation("status must be %q or %q", TagWritten, TagFailed)
	}
	cur.Status = report.Status
	if err := s.live.Set(ctx, org, TagWriteKey, &cur); err != nil {
		return nil, err
	}
	return &cur, nil
}

// TagWriteStatus returns the handshake state. A written tag is stored on the
// student the first time it is seen here; a tag that already belongs to
// another student is rejected.
func (s *Service) TagWriteStatus(ctx context.Context, org string) (*TagWrite, error) {
	if s.live == nil {
		return nil, apperr.Upstream(nil, "realtime channel is not configured")
	}
	var cur TagWrite
	if err := s.live.Get(ctx, org, TagWriteKey, &cur); err != nil {
		return nil, err
	}
	if cur.Status != TagWritten {
		return &cur, nil
	}

	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		for other, err := range tx.Students.List(ctx, org, store.Eq("rfid_tag_id", cur.TagID)) {
			if err != nil {
				return err
			}
			if other.RollNumber != cur.RollNumber {
				return apperr.Conflict("tag %q already belongs to student %q", cur.TagID, other.RollNumber)
			}
		}
		return tx.Students.Update(ctx, org, cur.RollNumber, map[string]any{"rfid_tag_id": cur.TagID})
	})
	if err != nil {
		return nil, err
	}

	cur.Status = TagSaved
	if err := s.live.Set(ctx, org, TagWriteKey, &cur); err != nil {
		logrus.WithError(err).Warn("Tag saved but handshake state not updated")
	}
	logrus.WithFields(logrus.Fields{
		"org_id": org,
		"roll":   cur.RollNumber,
		"tag_id": cur.TagID,
	}).Info("RFID tag saved")
	return &cur, nil
}
