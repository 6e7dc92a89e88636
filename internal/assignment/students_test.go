package assignment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
	"school_bus/internal/testutil"
)

// twoRoutes seeds stop S1 on R1 (bus B1) and stop S2 on R2 (bus B2).
func twoRoutes(t *testing.T, db *gorm.DB, b2Capacity int) {
	t.Helper()
	seedStop(t, db, "S1", "North Gate", 400)
	seedStop(t, db, "S2", "Lake Road", 300)
	seedServedRoute(t, db, "R1", "B1", 10, models.StopByID("S1", "North Gate", 650))
	seedServedRoute(t, db, "R2", "B2", b2Capacity, models.StopByID("S2", "Lake Road", 0))
}

func TestCreateStudent_ResolvesStopRouteAndBus(t *testing.T) {
	c, db := setup(t)
	twoRoutes(t, db, 10)

	st := &models.Student{RollNumber: "101", FullName: "Meera", BusStopID: testutil.Ptr("S1")}
	require.NoError(t, c.CreateStudent(context.Background(), org, st))

	got := testutil.Student(t, db, org, "101")
	assert.Equal(t, "North Gate", got.BusStop)
	assert.Equal(t, "R1", models.Deref(got.RouteID))
	assert.Equal(t, "B1", models.Deref(got.BusID))
	assert.Equal(t, "No. B1", got.BusNumber)
	assert.Equal(t, 650.0, got.FeeAmount, "route fee wins over stop default")
	assert.Equal(t, 650.0, got.Due)
	assert.False(t, got.CanTravel)

	assert.Equal(t, 9, testutil.Bus(t, db, org, "B1").AvailSeats)
	assert.True(t, testutil.Ptr(testutil.Stop(t, db, org, "S1")).HasStudent("101"))
}

func TestCreateStudent_StopDefaultFee(t *testing.T) {
	c, db := setup(t)
	twoRoutes(t, db, 10)

	require.NoError(t, c.CreateStudent(context.Background(), org, &models.Student{
		RollNumber: "102", FullName: "Ishan", BusStopID: testutil.Ptr("S2"),
	}))
	assert.Equal(t, 300.0, testutil.Student(t, db, org, "102").FeeAmount)
}

func TestCreateStudent_FullBusRejectsWholeCreation(t *testing.T) {
	c, db := setup(t)
	twoRoutes(t, db, 0)

	err := c.CreateStudent(context.Background(), org, &models.Student{
		RollNumber: "103", FullName: "Zoya", BusStopID: testutil.Ptr("S2"),
	})
	assert.ErrorIs(t, err, apperr.ErrCapacity)

	var n int64
	db.Model(&models.Student{}).Where("org_id = ?", org).Count(&n)
	assert.Zero(t, n)
	assert.False(t, testutil.Ptr(testutil.Stop(t, db, org, "S2")).HasStudent("103"))
}

func TestCreateStudent_StartsWithNothingPaid(t *testing.T) {
	c, db := setup(t)

	require.NoError(t, c.CreateStudent(context.Background(), org, &models.Student{
		RollNumber: "104", FullName: "Meera", FeeAmount: 6000, Paid: 6000, CanTravel: true,
	}))

	st := testutil.Student(t, db, org, "104")
	assert.Zero(t, st.Paid)
	assert.Equal(t, 6000.0, st.Due)
	assert.False(t, st.CanTravel)

	var sum float64
	require.NoError(t, db.Model(&models.Payment{}).
		Where("org_id = ? AND roll_number = ? AND archived = ?", org, "104", false).
		Select("COALESCE(SUM(amount), 0)").Scan(&sum).Error)
	assert.Equal(t, st.Paid, sum)
}

func TestCreateStudent_RejectsDuplicateAndMissingFields(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.CreateStudent(ctx, org, &models.Student{FullName: "No roll"}), apperr.ErrValidation)
	require.NoError(t, c.CreateStudent(ctx, org, &models.Student{RollNumber: "1", FullName: "A"}))
	assert.ErrorIs(t, c.CreateStudent(ctx, org, &models.Student{RollNumber: "1", FullName: "B"}), apperr.ErrAlreadyExists)
}

func TestCreateStudent_UnknownStop(t *testing.T) {
	c, _ := setup(t)
	err := c.CreateStudent(context.Background(), org, &models.Student{
		RollNumber: "1", FullName: "A", BusStopID: testutil.Ptr("nowhere"),
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReassignStudentStop_MovesSeatAndMembership(t *testing.T) {
	c, db := setup(t)
	ctx := context.Background()
	twoRoutes(t, db, 10)
	require.NoError(t, c.CreateStudent(ctx, org, &models.Student{
		RollNumber: "101", FullName: "Meera", BusStopID: testutil.Ptr("S1"),
	}))

	st, err := c.ReassignStudentStop(ctx, org, "101", testutil.Ptr("S2"))
	require.NoError(t, err)
	assert.Equal(t, "S2", models.Deref(st.BusStopID))
	assert.Equal(t, "Lake Road", st.BusStop)
	assert.Equal(t, "R2", models.Deref(st.RouteID))
	assert.Equal(t, "B2", models.Deref(st.BusID))

	assert.False(t, testutil.Ptr(testutil.Stop(t, db, org, "S1")).HasStudent("101"))
	assert.True(t, testutil.Ptr(testutil.Stop(t, db, org, "S2")).HasStudent("101"))
	assert.Equal(t, 10, testutil.Bus(t, db, org, "B1").AvailSeats)
	assert.Equal(t, 9, testutil.Bus(t, db, org, "B2").AvailSeats)
}

func TestReassignStudentStop_FullTargetBusChangesNothing(t *testing.T) {
	c, db := setup(t)
	ctx := context.Background()
	twoRoutes(t, db, 0)
	require.NoError(t, c.CreateStudent(ctx, org, &models.Student{
		RollNumber: "101", FullName: "Meera", BusStopID: testutil.Ptr("S1"),
	}))

	_, err := c.ReassignStudentStop(ctx, org, "101", testutil.Ptr("S2"))
	assert.ErrorIs(t, err, apperr.ErrCapacity)

	st := testutil.Student(t, db, org, "101")
	assert.Equal(t, "S1", models.Deref(st.BusStopID))
	assert.Equal(t, "B1", models.Deref(st.BusID))
	assert.True(t, testutil.Ptr(testutil.Stop(t, db, org, "S1")).HasStudent("101"))
	assert.False(t, testutil.Ptr(testutil.Stop(t, db, org, "S2")).HasStudent("101"))
	assert.Equal(t, 9, testutil.Bus(t, db, org, "B1").AvailSeats)
}

func TestReassignStudentStop_MissingNewStop(t *testing.T) {
	c, db := setup(t)
	twoRoutes(t, db, 10)
	testutil.MustCreate(t, db, &models.Student{OrgID: org, RollNumber: "101", BusStopID: testutil.Ptr("S1")})

	_, err := c.ReassignStudentStop(context.Background(), org, "101", testutil.Ptr("gone"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "S1", models.Deref(testutil.Student(t, db, org, "101").BusStopID))
}

func TestReassignStudentStop_MissingOldStopIsIgnored(t *testing.T) {
	c, db := setup(t)
	twoRoutes(t, db, 10)
	testutil.MustCreate(t, db, &models.Student{OrgID: org, RollNumber: "101", BusStopID: testutil.Ptr("deleted")})

	st, err := c.ReassignStudentStop(context.Background(), org, "101", testutil.Ptr("S2"))
	require.NoError(t, err)
	assert.Equal(t, "B2", models.Deref(st.BusID))
	assert.True(t, testutil.Ptr(testutil.Stop(t, db, org, "S2")).HasStudent("101"))
}

func TestReassignStudentStop_LegacyRouteEntry(t *testing.T) {
	c, db := setup(t)
	seedStop(t, db, "S9", "Main Gate", 0)
	seedServedRoute(t, db, "R9", "B9", 5, models.StopByName("main gate ", 800))
	testutil.MustCreate(t, db, &models.Student{OrgID: org, RollNumber: "7"})

	st, err := c.ReassignStudentStop(context.Background(), org, "7", testutil.Ptr("S9"))
	require.NoError(t, err)
	assert.Equal(t, "R9", models.Deref(st.RouteID))
	assert.Equal(t, "B9", models.Deref(st.BusID))
	assert.Equal(t, 4, testutil.Bus(t, db, org, "B9").AvailSeats)
}

func TestReassignStudentStop_ClearStop(t *testing.T) {
	c, db := setup(t)
	ctx := context.Background()
	twoRoutes(t, db, 10)
	require.NoError(t, c.CreateStudent(ctx, org, &models.Student{
		RollNumber: "101", FullName: "Meera", BusStopID: testutil.Ptr("S1"),
	}))

	st, err := c.ReassignStudentStop(ctx, org, "101", nil)
	require.NoError(t, err)
	assert.Nil(t, st.BusStopID)
	assert.Nil(t, st.BusID)
	assert.Nil(t, st.RouteID)
	assert.Equal(t, 10, testutil.Bus(t, db, org, "B1").AvailSeats)
	assert.Empty(t, testutil.Stop(t, db, org, "S1").AssignedStudents)
}

func TestAssignStudentBus(t *testing.T) {
	c, db := setup(t)
	ctx := context.Background()
	seedServedRoute(t, db, "R1", "B1", 2)
	testutil.MustCreate(t, db, &models.Student{OrgID: org, RollNumber: "1"})

	st, err := c.AssignStudentBus(ctx, org, "1", testutil.Ptr("B1"))
	require.NoError(t, err)
	assert.Equal(t, "No. B1", st.BusNumber)
	assert.Equal(t, "R1", models.Deref(st.RouteID))
	assert.Equal(t, 1, testutil.Bus(t, db, org, "B1").AvailSeats)

	_, err = c.AssignStudentBus(ctx, org, "1", testutil.Ptr("nope"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 1, testutil.Bus(t, db, org, "B1").AvailSeats)
}

func TestUpdateStudent_FeeAmountKeepsGateOneWay(t *testing.T) {
	c, db := setup(t)
	ctx := context.Background()
	testutil.MustCreate(t, db, &models.Student{OrgID: org, RollNumber: "1", FeeAmount: 500, Paid: 500, CanTravel: true})

	st, err := c.UpdateStudent(ctx, org, "1", StudentPatch{FeeAmount: testutil.Ptr(800.0)})
	require.NoError(t, err)
	assert.Equal(t, 300.0, st.Due)
	assert.True(t, st.CanTravel)

	_, err = c.UpdateStudent(ctx, org, "1", StudentPatch{FeeAmount: testutil.Ptr(-1.0)})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDeleteStudent_ReleasesSeatStopAndPayments(t *testing.T) {
	c, db := setup(t)
	ctx := context.Background()
	twoRoutes(t, db, 10)
	require.NoError(t, c.CreateStudent(ctx, org, &models.Student{
		RollNumber: "101", FullName: "Meera", BusStopID: testutil.Ptr("S1"),
	}))
	testutil.MustCreate(t, db, &models.Payment{ID: "p1", OrgID: org, RollNumber: "101", Amount: 100})

	require.NoError(t, c.DeleteStudent(ctx, org, "101"))

	assert.Equal(t, 10, testutil.Bus(t, db, org, "B1").AvailSeats)
	assert.False(t, testutil.Ptr(testutil.Stop(t, db, org, "S1")).HasStudent("101"))
	var n int64
	db.Model(&models.Payment{}).Where("org_id = ? AND roll_number = ?", org, "101").Count(&n)
	assert.Zero(t, n)

	assert.ErrorIs(t, c.DeleteStudent(ctx, org, "101"), apperr.ErrNotFound)
}
