package tracking

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
	"school_bus/internal/realtime"
	"school_bus/internal/testutil"
)

const org = "org-1"

func TestDistanceAndBearing(t *testing.T) {
	// One degree of latitude is about 111.2 km.
	assert.InDelta(t, 111195, Distance(0, 0, 1, 0), 50)
	assert.Zero(t, Distance(12.97, 77.59, 12.97, 77.59))
	assert.InDelta(t, 0, Bearing(0, 0, 1, 0), 0.001)
	assert.InDelta(t, 90, Bearing(0, 0, 0, 1), 0.001)
	assert.InDelta(t, 270, Bearing(0, 1, 0, 0), 0.001)
}

func TestFixUnmarshal(t *testing.T) {
	tests := []struct {
		name, ts string
		want     time.Time
		wantErr  bool
	}{
		{"utc", "2025-06-01T08:00:00Z", time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC), false},
		{"no zone", "2025-06-01T08:00:00.5", time.Date(2025, 6, 1, 8, 0, 0, 5e8, time.UTC), false},
		{"offset", "2025-06-01T13:30:00+05:30", time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC), false},
		{"empty", "", time.Time{}, false},
		{"short", "12", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Fix
			err := json.Unmarshal([]byte(`{"bus_id":"b","latitude":1,"timestamp":"`+tt.ts+`"}`), &f)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(f.Timestamp), "got %v", f.Timestamp)
			assert.Equal(t, "b", f.BusID)
			assert.Equal(t, 1.0, f.Latitude)
		})
	}
}

func TestShouldSave(t *testing.T) {
	moving := &models.BusLocation{IsMoving: true}
	parked := &models.BusLocation{IsMoving: false}

	tests := []struct {
		name                      string
		last                      *models.BusLocation
		distance, speed, timeDiff float64
		want                      string
	}{
		{"first fix", nil, 0, 0, 0, EventInitial},
		{"moved", parked, 5, 0, 1, EventMove},
		{"stopped", moving, 1, 0.2, 10, EventStopped},
		{"started", parked, 1, 0.8, 10, EventStarted},
		{"periodic", parked, 1, 0, 60, EventPeriodic},
		{"noise", moving, 2, 3, 5, "insignificant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := ShouldSave(tt.last, tt.distance, tt.speed, tt.timeDiff)
			assert.Equal(t, tt.want, got)
		})
	}
}

func setup(t *testing.T) (*Tracker, *realtime.DBStore) {
	db := testutil.SetupTestDB(t)
	busID := "bus-1"
	testutil.MustCreate(t, db,
		&models.Bus{ID: busID, OrgID: org, BusNumber: "KA-01", Registration: "R1", Capacity: 30, AvailSeats: 30, DriverID: testutil.Ptr("DL-1")},
		&models.Driver{OrgID: org, LicenseNumber: "DL-1", FullName: "Ravi", AssignedBus: &busID},
		&models.Driver{OrgID: org, LicenseNumber: "DL-2", FullName: "Idle"},
	)
	live := realtime.NewDBStore(db, nil)
	return New(db, live), live
}

func TestProcess_SavesSignificantFixes(t *testing.T) {
	tr, live := setup(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	res, err := tr.Process(ctx, org, "DL-1", Fix{Latitude: 12.9716, Longitude: 77.5946, Speed: 3, Timestamp: t0})
	require.NoError(t, err)
	assert.Equal(t, "saved", res.Status)
	assert.Equal(t, EventInitial, res.EventType)

	// About 1 m further two seconds later: not significant.
	res, err = tr.Process(ctx, org, "DL-1", Fix{Latitude: 12.97161, Longitude: 77.5946, Speed: 3, Timestamp: t0.Add(2 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, "ignored", res.Status)

	// About 111 m north.
	res, err = tr.Process(ctx, org, "DL-1", Fix{BusID: "bus-1", Latitude: 12.9726, Longitude: 77.5946, Speed: 5, Timestamp: t0.Add(20 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, EventMove, res.EventType)
	assert.InDelta(t, 111, res.Distance, 1)

	hist, err := tr.History(ctx, org, "bus-1", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, EventMove, hist[0].EventType)
	assert.InDelta(t, 0, hist[0].Bearing, 0.5)

	bus := testutil.Bus(t, tr.db, org, "bus-1")
	assert.Equal(t, 12.9726, bus.LastLat)
	require.NotNil(t, bus.LastSeenAt)

	var pos Position
	require.NoError(t, live.Get(ctx, org, LiveKey("bus-1"), &pos))
	assert.Equal(t, "KA-01", pos.BusNumber)
	assert.Equal(t, EventMove, pos.EventType)
}

func TestProcess_Rejections(t *testing.T) {
	tr, _ := setup(t)
	ctx := context.Background()

	_, err := tr.Process(ctx, org, "DL-1", Fix{BusID: "bus-9", Latitude: 1, Longitude: 1})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = tr.Process(ctx, org, "DL-2", Fix{Latitude: 1, Longitude: 1})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = tr.Process(ctx, org, "DL-1", Fix{Latitude: 91, Longitude: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = tr.Process(ctx, org, "DL-404", Fix{Latitude: 1, Longitude: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
