package assignment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"school_bus/internal/models"
	"school_bus/internal/testutil"
)

const org = "org-1"

func setup(t *testing.T) (*Coordinator, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return New(db), db
}

func seedBus(t *testing.T, db *gorm.DB, id string, capacity int) *models.Bus {
	t.Helper()
	bus := &models.Bus{
		ID:           id,
		OrgID:        org,
		BusNumber:    "No. " + id,
		Registration: "REG-" + id,
		Capacity:     capacity,
		AvailSeats:   capacity,
	}
	testutil.MustCreate(t, db, bus)
	return bus
}

func seedDriver(t *testing.T, db *gorm.DB, license string) *models.Driver {
	t.Helper()
	d := &models.Driver{OrgID: org, LicenseNumber: license, FullName: "Driver " + license}
	testutil.MustCreate(t, db, d)
	return d
}

// seedPair seeds a driver already driving a bus.
func seedPair(t *testing.T, db *gorm.DB, license, busID string) {
	t.Helper()
	testutil.MustCreate(t, db,
		&models.Bus{ID: busID, OrgID: org, BusNumber: "No. " + busID, Registration: "REG-" + busID,
			Capacity: 40, AvailSeats: 40, DriverID: testutil.Ptr(license), DriverName: "Driver " + license},
		&models.Driver{OrgID: org, LicenseNumber: license, FullName: "Driver " + license, AssignedBus: testutil.Ptr(busID)},
	)
}

func seedStop(t *testing.T, db *gorm.DB, id, name string, fee float64) *models.Stop {
	t.Helper()
	s := &models.Stop{ID: id, OrgID: org, Name: name, Fee: fee}
	testutil.MustCreate(t, db, s)
	return s
}

func seedRoute(t *testing.T, db *gorm.DB, id string, refs ...models.StopRef) *models.Route {
	t.Helper()
	r := &models.Route{ID: id, OrgID: org, Name: "Route " + id, Stops: datatypes.JSONSlice[models.StopRef](refs)}
	testutil.MustCreate(t, db, r)
	return r
}

// seedServedRoute seeds a route and a bus serving it.
func seedServedRoute(t *testing.T, db *gorm.DB, routeID, busID string, capacity int, refs ...models.StopRef) {
	t.Helper()
	r := &models.Route{ID: routeID, OrgID: org, Name: "Route " + routeID,
		Stops: datatypes.JSONSlice[models.StopRef](refs), AssignedBus: testutil.Ptr(busID)}
	b := &models.Bus{ID: busID, OrgID: org, BusNumber: "No. " + busID, Registration: "REG-" + busID,
		Capacity: capacity, AvailSeats: capacity, RouteID: testutil.Ptr(routeID), RouteName: r.Name}
	testutil.MustCreate(t, db, r, b)
}

// assertLinksSymmetric checks both directions of the driver and route links
// for every record of the org.
func assertLinksSymmetric(t *testing.T, db *gorm.DB) {
	t.Helper()
	var (
		buses   []models.Bus
		drivers []models.Driver
		routes  []models.Route
	)
	db.Where("org_id = ?", org).Find(&buses)
	db.Where("org_id = ?", org).Find(&drivers)
	db.Where("org_id = ?", org).Find(&routes)

	busByID := map[string]models.Bus{}
	for _, b := range buses {
		busByID[b.ID] = b
		assert.True(t, b.AvailSeats >= 0 && b.AvailSeats <= b.Capacity, "bus %s seats %d/%d", b.ID, b.AvailSeats, b.Capacity)
	}
	for _, d := range drivers {
		if d.AssignedBus == nil {
			continue
		}
		b, ok := busByID[*d.AssignedBus]
		if assert.True(t, ok, "driver %s points at missing bus", d.LicenseNumber) {
			assert.Equal(t, d.LicenseNumber, models.Deref(b.DriverID), "bus %s driver", b.ID)
		}
	}
	for _, r := range routes {
		if r.AssignedBus == nil {
			continue
		}
		b, ok := busByID[*r.AssignedBus]
		if assert.True(t, ok, "route %s points at missing bus", r.ID) {
			assert.Equal(t, r.ID, models.Deref(b.RouteID), "bus %s route", b.ID)
		}
	}
	for _, b := range buses {
		if b.DriverID != nil {
			var d models.Driver
			if assert.NoError(t, db.Where("org_id = ? AND license_number = ?", org, *b.DriverID).First(&d).Error) {
				assert.Equal(t, b.ID, models.Deref(d.AssignedBus), "driver %s bus", d.LicenseNumber)
			}
		}
		if b.RouteID != nil {
			var r models.Route
			if assert.NoError(t, db.Where("org_id = ? AND id = ?", org, *b.RouteID).First(&r).Error) {
				assert.Equal(t, b.ID, models.Deref(r.AssignedBus), "route %s bus", r.ID)
			}
		}
	}
}
