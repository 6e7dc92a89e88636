// Package tracking decides which GPS fixes from the driver devices are worth
// keeping, stores them and publishes the live position of every bus.
package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
	"school_bus/internal/realtime"
	"school_bus/internal/store"
)

// Event types of a saved fix.
const (
	EventInitial  = "initial"
	EventMove     = "move"
	EventStopped  = "stopped"
	EventStarted  = "started"
	EventPeriodic = "periodic"
)

const (
	minDistanceForSave = 5.0  // meters
	minTimeDiffForSave = 10.0 // seconds
	minSpeedForMoving  = 0.5  // m/s
	maxSpeedForStopped = 1.0  // m/s
	periodicInterval   = 60 * time.Second
)

// LiveKey is the realtime key carrying the latest position of a bus.
func LiveKey(busID string) string { return "live/" + busID }

// Result tells the device what happened to its fix.
type Result struct {
	Status     string    `json:"status"`
	EventType  string    `json:"event_type,omitempty"`
	Distance   float64   `json:"distance"`
	IsMoving   bool      `json:"is_moving"`
	Timestamp  time.Time `json:"timestamp"`
	SequenceID uint      `json:"sequence_id,omitempty"`
}

// Position is what dashboards receive for a bus.
type Position struct {
	BusID      string    `json:"bus_id"`
	BusNumber  string    `json:"bus_number"`
	DriverID   string    `json:"driver_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	Speed      float64   `json:"speed"`
	Bearing    float64   `json:"bearing"`
	Altitude   float64   `json:"altitude"`
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"`
	IsMoving   bool      `json:"is_moving"`
	SequenceID uint      `json:"sequence_id"`
}

type Tracker struct {
	db    *gorm.DB
	store *store.Store
	live  realtime.Store
	now   func() time.Time
}

func New(db *gorm.DB, live realtime.Store) *Tracker {
	return &Tracker{db: db, store: store.New(db), live: live, now: time.Now}
}

// ShouldSave decides whether a fix is significant given the last saved fix
// (nil if none), the distance and time since it and the reported speed.
func ShouldSave(last *models.BusLocation, distance, speed, timeDiff float64) (bool, string) {
	if last == nil {
		return true, EventInitial
	}
	if distance >= minDistanceForSave {
		return true, EventMove
	}
	if last.IsMoving && speed < maxSpeedForStopped && timeDiff >= minTimeDiffForSave {
		return true, EventStopped
	}
	if !last.IsMoving && speed >= minSpeedForMoving && timeDiff >= minTimeDiffForSave {
		return true, EventStarted
	}
	if timeDiff >= periodicInterval.Seconds() {
		return true, EventPeriodic
	}
	return false, "insignificant"
}

// Process handles a fix sent by the device of driver license. The fix must
// be for the bus the driver is assigned to.
func (t *Tracker) Process(ctx context.Context, org, license string, fix Fix) (Result, error) {
	if err := fix.Validate(); err != nil {
		return Result{}, apperr.Validation("%s", err.Error())
	}
	driver, err := t.store.Drivers.Get(ctx, org, license)
	if err != nil {
		return Result{}, err
	}
	if driver.AssignedBus == nil {
		return Result{}, apperr.Conflict("driver %q has no bus assigned", license)
	}
	if fix.BusID == "" {
		fix.BusID = *driver.AssignedBus
	}
	if fix.BusID != *driver.AssignedBus {
		logrus.WithFields(logrus.Fields{
			"driver_id":   license,
			"assigned":    *driver.AssignedBus,
			"payload_bus": fix.BusID,
		}).Warn("Driver attempted to send location for a different bus. Denying.")
		return Result{}, apperr.Conflict("unauthorized location update for bus %q", fix.BusID)
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = t.now().UTC()
	}
	speed := fix.Speed
	if speed < 0 {
		speed = 0
	}

	last, err := t.last(ctx, org, fix.BusID)
	if err != nil {
		return Result{}, err
	}
	var distance, bearing, timeDiff float64
	if last != nil {
		distance = Distance(last.Latitude, last.Longitude, fix.Latitude, fix.Longitude)
		bearing = Bearing(last.Latitude, last.Longitude, fix.Latitude, fix.Longitude)
		timeDiff = fix.Timestamp.Sub(last.Timestamp).Seconds()
	}
	if distance == 0 {
		bearing = fix.Bearing
	}

	ok, eventType := ShouldSave(last, distance, speed, timeDiff)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"bus_id":     fix.BusID,
			"distance_m": distance,
			"speed_mps":  speed,
		}).Debug("Location received - minor movement, not saved.")
		return Result{Status: "ignored", Distance: distance, Timestamp: fix.Timestamp}, nil
	}

	rec := models.BusLocation{
		OrgID:            org,
		BusID:            fix.BusID,
		DriverID:         license,
		Latitude:         fix.Latitude,
		Longitude:        fix.Longitude,
		Accuracy:         fix.Accuracy,
		Speed:            speed,
		Bearing:          bearing,
		Altitude:         fix.Altitude,
		IsMoving:         speed > minSpeedForMoving,
		DistanceFromLast: distance,
		Timestamp:        fix.Timestamp,
		EventType:        eventType,
	}
	if err := t.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return Result{}, apperr.Upstream(err, "failed to save location")
	}
	seen := fix.Timestamp
	if err := t.store.Buses.Update(ctx, org, fix.BusID, map[string]any{
		"last_lat":     fix.Latitude,
		"last_lng":     fix.Longitude,
		"last_seen_at": &seen,
	}); err != nil {
		return Result{}, err
	}

	pos := Position{
		BusID:      fix.BusID,
		DriverID:   license,
		Latitude:   rec.Latitude,
		Longitude:  rec.Longitude,
		Accuracy:   rec.Accuracy,
		Speed:      rec.Speed,
		Bearing:    rec.Bearing,
		Altitude:   rec.Altitude,
		Timestamp:  rec.Timestamp,
		EventType:  eventType,
		IsMoving:   rec.IsMoving,
		SequenceID: rec.ID,
	}
	if bus, err := t.store.Buses.Get(ctx, org, fix.BusID); err == nil {
		pos.BusNumber = bus.BusNumber
	}
	if t.live != nil {
		if err := t.live.Set(ctx, org, LiveKey(fix.BusID), pos); err != nil {
			logrus.WithError(err).WithField("bus_id", fix.BusID).Warn("Failed to publish live position")
		}
	}

	logrus.WithFields(logrus.Fields{
		"bus_id":      fix.BusID,
		"event_type":  eventType,
		"distance_m":  distance,
		"sequence_id": rec.ID,
	}).Info("Bus location saved and published.")
	return Result{
		Status:     "saved",
		EventType:  eventType,
		Distance:   distance,
		IsMoving:   rec.IsMoving,
		Timestamp:  rec.Timestamp,
		SequenceID: rec.ID,
	}, nil
}

func (t *Tracker) last(ctx context.Context, org, busID string) (*models.BusLocation, error) {
	var loc models.BusLocation
	err := t.db.WithContext(ctx).
		Where("org_id = ? AND bus_id = ?", org, busID).
		Order("timestamp desc").Order("id desc").
		First(&loc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Upstream(err, "database error fetching last location")
	}
	return &loc, nil
}

// History returns up to limit saved fixes of a bus, newest first.
func (t *Tracker) History(ctx context.Context, org, busID string, limit int) ([]models.BusLocation, error) {
	if _, err := t.store.Buses.Get(ctx, org, busID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []models.BusLocation
	err := t.db.WithContext(ctx).
		Where("org_id = ? AND bus_id = ?", org, busID).
		Order("timestamp desc").Order("id desc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, apperr.Upstream(err, "could not load location history")
	}
	return out, nil
}
