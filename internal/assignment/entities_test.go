package assignment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
	"school_bus/internal/testutil"
)

func TestCreateBus_InitialisesSeatsAndLinks(t *testing.T) {
	c, db := setup(t)
	ctx := context.Background()
	seedDriver(t, db, "D1")
	seedRoute(t, db, "R1")
	testutil.MustCreate(t, db, &models.Student{OrgID: org, RollNumber: "1", RouteID: testutil.Ptr("R1")})

	bus := &models.Bus{BusNumber: "7", Registration: "KA-01", Capacity: 30,
		DriverID: testutil.Ptr("D1"), RouteID: testutil.Ptr("R1")}
	require.NoError(t, c.CreateBus(ctx, org, bus))
	require.NotEmpty(t, bus.ID)

	got := testutil.Bus(t, db, org, bus.ID)
	assert.Equal(t, "Driver D1", got.DriverName)
	assert.Equal(t, "Route R1", got.RouteName)
	assert.Equal(t, 29, got.AvailSeats)
	assert.Equal(t, models.BusStatusIdle, got.Status)
	assert.Equal(t, bus.ID, models.Deref(testutil.Student(t, db, org, "1").BusID))
	assertLinksSymmetric(t, db)
}

func TestCreateBus_RejectsTakenDriverWithoutWriting(t *testing.T) {
	c, db := setup(t)
	seedPair(t, db, "D1", "B1")

	err := c.CreateBus(context.Background(), org, &models.Bus{
		BusNumber: "8", Registration: "KA-02", Capacity: 30, DriverID: testutil.Ptr("D1"),
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	var n int64
	db.Model(&models.Bus{}).Where("org_id = ?", org).Count(&n)
	assert.EqualValues(t, 1, n)
}

func TestCreateBus_Validation(t *testing.T) {
	c, db := setup(t)
	ctx := context.Background()
	seedBus(t, db, "B1", 10)

	assert.ErrorIs(t, c.CreateBus(ctx, org, &models.Bus{Registration: "X"}), apperr.ErrValidation)
	assert.ErrorIs(t, c.CreateBus(ctx, org, &models.Bus{BusNumber: "1", Registration: "X", Capacity: -1}), apperr.ErrValidation)
	assert.ErrorIs(t, c.CreateBus(ctx, org, &models.Bus{BusNumber: "1", Registration: "REG-B1"}), apperr.ErrAlreadyExists)
}

func TestCreateDriver_RejectsOccupiedBus(t *testing.T) {
	c, db := setup(t)
	seedPair(t, db, "D1", "B1")

	err := c.CreateDriver(context.Background(), org, &models.Driver{
		LicenseNumber: "D2", FullName: "Second", AssignedBus: testutil.Ptr("B1"),
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	var n int64
	db.Model(&models.Driver{}).Where("org_id = ? AND license_number = ?", org, "D2").Count(&n)
	assert.Zero(t, n)
}

func TestUpdateBus_CapacityRecalculatesSeats(t *testing.T) {
	c, db := setup(t)
	seedServedRoute(t, db, "R1", "B1", 10)
	for _, roll := range []string{"1", "2", "3"} {
		testutil.MustCreate(t, db, &models.Student{OrgID: org, RollNumber: roll, BusID: testutil.Ptr("B1")})
	}

	bus, err := c.UpdateBus(context.Background(), org, "B1", BusPatch{Capacity: testutil.Ptr(4)})
	require.NoError(t, err)
	assert.Equal(t, 4, bus.Capacity)
	assert.Equal(t, 1, bus.AvailSeats)
}

func TestUpdateBus_ConflictRollsBackEarlierChanges(t *testing.T) {
	c, db := setup(t)
	seedPair(t, db, "D1", "B1")
	seedDriver(t, db, "D2")
	seedServedRoute(t, db, "R1", "B2", 10)

	_, err := c.UpdateBus(context.Background(), org, "B1", BusPatch{
		Fields: map[string]any{"bus_number": "99"},
		Driver: SetRef("D2"),
		Route:  SetRef("R1"),
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	b1 := testutil.Bus(t, db, org, "B1")
	assert.Equal(t, "D1", models.Deref(b1.DriverID))
	assert.Equal(t, "No. B1", b1.BusNumber)
	assert.Nil(t, testutil.Driver(t, db, org, "D2").AssignedBus)
	assertLinksSymmetric(t, db)
}

func TestUpdateBus_RenumberCopiesToStudents(t *testing.T) {
	c, db := setup(t)
	seedBus(t, db, "B1", 10)
	testutil.MustCreate(t, db, &models.Student{OrgID: org, RollNumber: "1", BusID: testutil.Ptr("B1"), BusNumber: "No. B1"})

	_, err := c.UpdateBus(context.Background(), org, "B1", BusPatch{Fields: map[string]any{"bus_number": "12A"}})
	require.NoError(t, err)
	assert.Equal(t, "12A", testutil.Student(t, db, org, "1").BusNumber)
}

func TestUpdateDriver_RenameCopiesToBus(t *testing.T) {
	c, db := setup(t)
	seedPair(t, db, "D1", "B1")

	d, err := c.UpdateDriver(context.Background(), org, "D1", DriverPatch{Fields: map[string]any{"full_name": "Anil K"}})
	require.NoError(t, err)
	assert.Equal(t, "Anil K", d.FullName)
	assert.Equal(t, "Anil K", testutil.Bus(t, db, org, "B1").DriverName)
}

func TestUpdateRoute_RenameAndReplaceStops(t *testing.T) {
	c, db := setup(t)
	seedStop(t, db, "S1", "Gate", 100)
	seedStop(t, db, "S2", "Lake", 200)
	seedServedRoute(t, db, "R1", "B1", 10, models.StopByID("S1", "Gate", 0))
	testutil.MustCreate(t, db, &models.Student{OrgID: org, RollNumber: "1", BusStopID: testutil.Ptr("S2")})

	r, err := c.UpdateRoute(context.Background(), org, "R1", RoutePatch{
		Fields:       map[string]any{"name": "East Loop"},
		ReplaceStops: true,
		Stops:        []models.StopRef{models.StopByName("lake", 0), models.StopByID("S1", "", 150)},
	})
	require.NoError(t, err)
	require.Len(t, r.Stops, 2)
	assert.Equal(t, models.StopByID("S2", "Lake", 200), r.Stops[0])
	assert.Equal(t, models.StopByID("S1", "Gate", 150), r.Stops[1])

	assert.Equal(t, "East Loop", testutil.Bus(t, db, org, "B1").RouteName)
	st := testutil.Student(t, db, org, "1")
	assert.Equal(t, "B1", models.Deref(st.BusID))
	assert.Equal(t, "East Loop", st.RouteName)
}

func TestSyncRouteStops_UnknownStopID(t *testing.T) {
	c, db := setup(t)
	seedRoute(t, db, "R1")

	_, err := c.SyncRouteStops(context.Background(), org, "R1", []models.StopRef{models.StopByID("ghost", "", 0)})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSyncRouteStops_KeepsUnresolvedNames(t *testing.T) {
	c, db := setup(t)
	seedRoute(t, db, "R1")

	r, err := c.SyncRouteStops(context.Background(), org, "R1", []models.StopRef{models.StopByName("Old Market", 50)})
	require.NoError(t, err)
	assert.True(t, r.Stops[0].Legacy())
	assert.True(t, testutil.Route(t, db, org, "R1").Stops[0].Legacy())
}

func TestCreateRoute_WithBus(t *testing.T) {
	c, db := setup(t)
	ctx := context.Background()
	seedStop(t, db, "S1", "Gate", 100)
	seedBus(t, db, "B1", 10)
	testutil.MustCreate(t, db, &models.Student{OrgID: org, RollNumber: "1", BusStopID: testutil.Ptr("S1")})

	r := &models.Route{Name: "West", Stops: []models.StopRef{models.StopByID("S1", "", 0)}, AssignedBus: testutil.Ptr("B1")}
	require.NoError(t, c.CreateRoute(ctx, org, r))

	assert.Equal(t, r.ID, models.Deref(testutil.Bus(t, db, org, "B1").RouteID))
	assert.Equal(t, "B1", models.Deref(testutil.Student(t, db, org, "1").BusID))
	assert.Equal(t, 9, testutil.Bus(t, db, org, "B1").AvailSeats)

	err := c.CreateRoute(ctx, org, &models.Route{Name: "Dup", AssignedBus: testutil.Ptr("B1")})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assertLinksSymmetric(t, db)
}

func TestDeleteDriver_FreesBus(t *testing.T) {
	c, db := setup(t)
	seedPair(t, db, "D1", "B1")

	require.NoError(t, c.DeleteDriver(context.Background(), org, "D1"))
	assert.Nil(t, testutil.Bus(t, db, org, "B1").DriverID)
	assert.ErrorIs(t, c.DeleteDriver(context.Background(), org, "D1"), apperr.ErrNotFound)
}

func TestDeleteBus_UnlinksEverything(t *testing.T) {
	c, db := setup(t)
	seedServedRoute(t, db, "R1", "B1", 10)
	testutil.MustCreate(t, db,
		&models.Driver{OrgID: org, LicenseNumber: "D1", AssignedBus: testutil.Ptr("B1")},
		&models.Student{OrgID: org, RollNumber: "1", RouteID: testutil.Ptr("R1"), BusID: testutil.Ptr("B1")},
	)
	db.Model(&models.Bus{}).Where("id = ?", "B1").Update("driver_id", "D1")

	require.NoError(t, c.DeleteBus(context.Background(), org, "B1"))

	assert.Nil(t, testutil.Driver(t, db, org, "D1").AssignedBus)
	assert.Nil(t, testutil.Route(t, db, org, "R1").AssignedBus)
	st := testutil.Student(t, db, org, "1")
	assert.Nil(t, st.BusID)
	assert.Equal(t, "R1", models.Deref(st.RouteID))
}

func TestDeleteRoute_ReleasesSeats(t *testing.T) {
	c, db := setup(t)
	seedServedRoute(t, db, "R1", "B1", 10)
	testutil.MustCreate(t, db, &models.Student{OrgID: org, RollNumber: "1", RouteID: testutil.Ptr("R1"), BusID: testutil.Ptr("B1")})
	db.Model(&models.Bus{}).Where("id = ?", "B1").Update("avail_seats", 9)

	require.NoError(t, c.DeleteRoute(context.Background(), org, "R1"))

	b := testutil.Bus(t, db, org, "B1")
	assert.Nil(t, b.RouteID)
	assert.Equal(t, 10, b.AvailSeats)
	st := testutil.Student(t, db, org, "1")
	assert.Nil(t, st.RouteID)
	assert.Nil(t, st.BusID)
}

func TestDeleteStop_DropsRouteEntries(t *testing.T) {
	c, db := setup(t)
	seedStop(t, db, "S1", "Gate", 100)
	seedStop(t, db, "S2", "Lake", 100)
	seedRoute(t, db, "R1", models.StopByID("S1", "Gate", 0), models.StopByName("gate", 0), models.StopByID("S2", "Lake", 0))
	testutil.MustCreate(t, db, &models.Student{OrgID: org, RollNumber: "1", BusStopID: testutil.Ptr("S1"), BusStop: "Gate"})

	require.NoError(t, c.DeleteStop(context.Background(), org, "S1"))

	r := testutil.Route(t, db, org, "R1")
	require.Len(t, r.Stops, 1)
	assert.Equal(t, "S2", r.Stops[0].ID)
	st := testutil.Student(t, db, org, "1")
	assert.Nil(t, st.BusStopID)
	assert.Empty(t, st.BusStop)
}

func TestUpdateStop_RenameCopiesToStudentsAndRoutes(t *testing.T) {
	c, db := setup(t)
	seedStop(t, db, "S1", "Gate", 100)
	seedRoute(t, db, "R1", models.StopByID("S1", "Gate", 0))
	testutil.MustCreate(t, db, &models.Student{OrgID: org, RollNumber: "1", BusStopID: testutil.Ptr("S1"), BusStop: "Gate"})

	s, err := c.UpdateStop(context.Background(), org, "S1", map[string]any{"name": "North Gate"})
	require.NoError(t, err)
	assert.Equal(t, "North Gate", s.Name)
	assert.Equal(t, "North Gate", testutil.Student(t, db, org, "1").BusStop)
	assert.Equal(t, "North Gate", testutil.Route(t, db, org, "R1").Stops[0].Name)
}

func TestCreateStop_Validation(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()
	assert.ErrorIs(t, c.CreateStop(ctx, org, &models.Stop{Name: "  "}), apperr.ErrValidation)

	s := &models.Stop{Name: "Gate", AssignedStudents: []string{"x"}}
	require.NoError(t, c.CreateStop(ctx, org, s))
	assert.NotEmpty(t, s.ID)
	assert.Empty(t, s.AssignedStudents)
}
