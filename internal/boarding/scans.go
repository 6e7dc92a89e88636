package boarding

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
	"school_bus/internal/store"
)

// Reasons a scan is refused.
const (
	ReasonUnknownCard = "unknown_card"
	ReasonFeesDue     = "fees_due"
	ReasonWrongBus    = "wrong_bus"
)

// BoardedStudent is a student currently on the bus.
type BoardedStudent struct {
	RollNumber string    `json:"roll_number"`
	FullName   string    `json:"full_name"`
	BoardedAt  time.Time `json:"boarded_at"`
}

// RecordScan stores a tap of cardID on the reader of busID. The card is the
// student's roll number or the id of the RFID tag written for them. An entry
// is allowed when the student may travel and rides this bus; exits are
// always allowed for known students.
func (s *Service) RecordScan(ctx context.Context, org, busID, cardID, kind string) (*models.Scan, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return nil, apperr.Validation("card id is required")
	}
	switch kind {
	case "":
		kind = models.ScanEntry
	case models.ScanEntry, models.ScanExit:
	default:
		return nil, apperr.Validation("scan type must be %q or %q", models.ScanEntry, models.ScanExit)
	}

	trip, err := activeTrip(ctx, s.db, org, busID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, apperr.Conflict("bus %q has no active trip", busID)
	}

	st, err := s.resolveCard(ctx, org, cardID)
	if err != nil {
		return nil, err
	}
	scan := &models.Scan{
		TripID:    trip.ID,
		OrgID:     org,
		CardID:    cardID,
		Type:      kind,
		Allowed:   true,
		Timestamp: s.now().UTC(),
	}
	switch {
	case st == nil:
		scan.Allowed, scan.Reason = false, ReasonUnknownCard
	case kind == models.ScanExit:
		scan.RollNumber = st.RollNumber
	case !st.CanTravel:
		scan.RollNumber = st.RollNumber
		scan.Allowed, scan.Reason = false, ReasonFeesDue
	case !models.SameRef(st.BusID, &busID):
		scan.RollNumber = st.RollNumber
		scan.Allowed, scan.Reason = false, ReasonWrongBus
	default:
		scan.RollNumber = st.RollNumber
	}

	if err := s.db.WithContext(ctx).Create(scan).Error; err != nil {
		return nil, apperr.Upstream(err, "could not record scan")
	}
	logrus.WithFields(logrus.Fields{
		"org_id":  org,
		"bus_id":  busID,
		"roll":    scan.RollNumber,
		"type":    scan.Type,
		"allowed": scan.Allowed,
		"reason":  scan.Reason,
	}).Info("Scan recorded")
	s.publish(ctx, org, "scans/"+busID, scan)
	return scan, nil
}

// resolveCard finds the student by roll number, then by RFID tag. Unknown
// cards yield nil.
func (s *Service) resolveCard(ctx context.Context, org, cardID string) (*models.Student, error) {
	st, err := s.store.Students.Get(ctx, org, cardID)
	if err == nil {
		return st, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}
	for st, err := range s.store.Students.List(ctx, org, store.Eq("rfid_tag_id", cardID)) {
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, nil
}

// Boarded replays the scans of the latest trip of busID: allowed entries add
// a student, exits remove them. The result is in boarding order.
func (s *Service) Boarded(ctx context.Context, org, busID string) ([]BoardedStudent, error) {
	if _, err := s.store.Buses.Get(ctx, org, busID); err != nil {
		return nil, err
	}
	trip, err := latestTrip(ctx, s.db, org, busID)
	if err != nil || trip == nil {
		return []BoardedStudent{}, err
	}

	onBoard := map[string]time.Time{}
	seen := map[string]bool{}
	var order []string
	for _, sc := range trip.Scans {
		if sc.RollNumber == "" {
			continue
		}
		switch {
		case sc.Type == models.ScanEntry && sc.Allowed:
			if !seen[sc.RollNumber] {
				seen[sc.RollNumber] = true
				order = append(order, sc.RollNumber)
			}
			onBoard[sc.RollNumber] = sc.Timestamp
		case sc.Type == models.ScanExit:
			delete(onBoard, sc.RollNumber)
		}
	}

	out := make([]BoardedStudent, 0, len(onBoard))
	for _, roll := range order {
		at, ok := onBoard[roll]
		if !ok {
			continue
		}
		b := BoardedStudent{RollNumber: roll, BoardedAt: at}
		if st, err := s.store.Students.Get(ctx, org, roll); err == nil {
			b.FullName = st.FullName
		}
		out = append(out, b)
	}
	return out, nil
}
