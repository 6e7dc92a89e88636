package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
)

// Channel is the Postgres NOTIFY channel realtime updates travel on.
const Channel = "realtime_updates"

// maxNotifyPayload stays under the 8000 byte NOTIFY limit. Larger values are
// announced without their value and re-read by the listener.
const maxNotifyPayload = 7900

// Store reads and writes realtime keys of an organization.
type Store interface {
	Set(ctx context.Context, org, key string, value any) error
	Get(ctx context.Context, org, key string, out any) error
}

// DBStore keeps realtime keys in the realtime_entries table. On Postgres every
// write is announced with pg_notify so all instances can fan it out; other
// databases publish straight to the local hub.
type DBStore struct {
	db     *gorm.DB
	hub    *Hub
	notify bool
}

func NewDBStore(db *gorm.DB, hub *Hub) *DBStore {
	return &DBStore{db: db, hub: hub, notify: db.Dialector.Name() == "postgres"}
}

func (s *DBStore) Set(ctx context.Context, org, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return apperr.Validation("realtime value for %q is not JSON encodable", key)
	}
	entry := models.RealtimeEntry{OrgID: org, Key: key, Value: datatypes.JSON(raw), UpdatedAt: time.Now()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "org_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return apperr.Upstream(err, "could not write realtime key %q", key)
	}

	ev := Event{OrgID: org, Key: key, Value: raw}
	if !s.notify {
		if s.hub != nil {
			s.hub.Publish(ev)
		}
		return nil
	}
	payload, _ := json.Marshal(ev)
	if len(payload) > maxNotifyPayload {
		payload, _ = json.Marshal(Event{OrgID: org, Key: key})
	}
	if err := s.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", Channel, string(payload)).Error; err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to announce realtime update")
	}
	return nil
}

// Get decodes the value of key into out, NotFound when unset.
func (s *DBStore) Get(ctx context.Context, org, key string, out any) error {
	raw, err := s.raw(ctx, org, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Validation("realtime value for %q has unexpected shape", key)
	}
	return nil
}

func (s *DBStore) raw(ctx context.Context, org, key string) (json.RawMessage, error) {
	var entry models.RealtimeEntry
	err := s.db.WithContext(ctx).Where("org_id = ? AND key = ?", org, key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("realtime key %q not set", key)
	}
	if err != nil {
		return nil, apperr.Upstream(err, "could not read realtime key %q", key)
	}
	return json.RawMessage(entry.Value), nil
}
