// Package boarding runs bus trips: drivers start and end them, the RFID
// reader on the bus records entry and exit scans, and admins see who is on
// board.
package boarding

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
	"school_bus/internal/realtime"
	"school_bus/internal/store"
)

type Service struct {
	db    *gorm.DB
	store *store.Store
	live  realtime.Store
	now   func() time.Time
}

func New(db *gorm.DB, live realtime.Store) *Service {
	return &Service{db: db, store: store.New(db), live: live, now: time.Now}
}

// StartTrip opens a trip for busID and marks the bus on_trip. A bus can have
// one open trip at a time.
func (s *Service) StartTrip(ctx context.Context, org, busID, driver string) (*models.Trip, error) {
	var trip *models.Trip
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		if _, err := tx.Buses.GetForUpdate(ctx, org, busID); err != nil {
			return err
		}
		open, err := activeTrip(ctx, tx.DB(), org, busID)
		if err != nil {
			return err
		}
		if open != nil {
			return apperr.Conflict("bus %q already has an active trip %q", busID, open.ID)
		}

		trip = &models.Trip{
			ID:        uuid.NewString(),
			OrgID:     org,
			BusID:     busID,
			DriverID:  driver,
			Status:    models.TripStarted,
			StartedAt: s.now().UTC(),
		}
		if err := tx.DB().WithContext(ctx).Create(trip).Error; err != nil {
			return apperr.Upstream(err, "could not start trip")
		}
		return tx.Buses.Update(ctx, org, busID, map[string]any{"status": models.BusStatusOnTrip})
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"org_id":  org,
		"bus_id":  busID,
		"trip_id": trip.ID,
	}).Info("Trip started")
	s.publish(ctx, org, "trips/"+busID, trip)
	return trip, nil
}

// EndTrip closes the open trip of busID and returns the bus to idle.
func (s *Service) EndTrip(ctx context.Context, org, busID string) (*models.Trip, error) {
	var trip *models.Trip
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		if _, err := tx.Buses.GetForUpdate(ctx, org, busID); err != nil {
			return err
		}
		open, err := activeTrip(ctx, tx.DB(), org, busID)
		if err != nil {
			return err
		}
		if open == nil {
			return apperr.Conflict("bus %q has no active trip", busID)
		}
		ended := s.now().UTC()
		open.Status, open.EndedAt = models.TripCompleted, &ended
		err = tx.DB().WithContext(ctx).Model(&models.Trip{}).
			Where("org_id = ? AND id = ?", org, open.ID).
			Updates(map[string]any{"status": open.Status, "ended_at": open.EndedAt}).Error
		if err != nil {
			return apperr.Upstream(err, "could not end trip")
		}
		trip = open
		return tx.Buses.Update(ctx, org, busID, map[string]any{"status": models.BusStatusIdle})
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"org_id":  org,
		"bus_id":  busID,
		"trip_id": trip.ID,
	}).Info("Trip ended")
	s.publish(ctx, org, "trips/"+busID, trip)
	return trip, nil
}

// Trips lists the most recent trips of busID, newest first, with their scans.
func (s *Service) Trips(ctx context.Context, org, busID string, limit int) ([]models.Trip, error) {
	if _, err := s.store.Buses.Get(ctx, org, busID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	var trips []models.Trip
	err := s.db.WithContext(ctx).
		Preload("Scans", func(db *gorm.DB) *gorm.DB { return db.Order("timestamp, id") }).
		Where("org_id = ? AND bus_id = ?", org, busID).
		Order("started_at desc").
		Limit(limit).
		Find(&trips).Error
	if err != nil {
		return nil, apperr.Upstream(err, "could not load trips")
	}
	return trips, nil
}

func activeTrip(ctx context.Context, db *gorm.DB, org, busID string) (*models.Trip, error) {
	var trip models.Trip
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ? AND bus_id = ? AND status = ?", org, busID, models.TripStarted).
		Order("started_at desc").
		First(&trip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Upstream(err, "could not load active trip")
	}
	return &trip, nil
}

func latestTrip(ctx context.Context, db *gorm.DB, org, busID string) (*models.Trip, error) {
	var trip models.Trip
	err := db.WithContext(ctx).
		Preload("Scans", func(db *gorm.DB) *gorm.DB { return db.Order("timestamp, id") }).
		Where("org_id = ? AND bus_id = ?", org, busID).
		Order("started_at desc").
		First(&trip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Upstream(err, "could not load latest trip")
	}
	return &trip, nil
}

func (s *Service) publish(ctx context.Context, org, key string, v any) {
	if s.live == nil {
		return
	}
	if err := s.live.Set(ctx, org, key, v); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to publish realtime update")
	}
}
