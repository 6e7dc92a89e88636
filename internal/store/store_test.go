package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
	"school_bus/internal/testutil"
)

const org = "org-1"

func TestCreate_StudentRejectsRollCollision(t *testing.T) {
	s := New(testutil.SetupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Students.Create(ctx, org, &models.Student{RollNumber: "R1", FullName: "Asha"}))

	err := s.Students.Create(ctx, org, &models.Student{RollNumber: "R1", FullName: "Other"})
	assert.True(t, apperr.KindOf(err) == apperr.KindAlreadyExists, "got %v", err)

	got, err := s.Students.Get(ctx, org, "R1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.FullName)
}

func TestCreate_SameRollInAnotherOrg(t *testing.T) {
	s := New(testutil.SetupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Students.Create(ctx, "org-a", &models.Student{RollNumber: "R1"}))
	require.NoError(t, s.Students.Create(ctx, "org-b", &models.Student{RollNumber: "R1"}))

	_, err := s.Students.Get(ctx, "org-c", "R1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreate_DriverRequiresLicense(t *testing.T) {
	s := New(testutil.SetupTestDB(t))

	err := s.Drivers.Create(context.Background(), org, &models.Driver{FullName: "No License"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreate_GeneratesBusID(t *testing.T) {
	s := New(testutil.SetupTestDB(t))
	bus := &models.Bus{BusNumber: "7", Registration: "KA-01", Capacity: 30}

	require.NoError(t, s.Buses.Create(context.Background(), org, bus))

	assert.NotEmpty(t, bus.ID)
	assert.Equal(t, org, bus.OrgID)
}

func TestCreate_DuplicateRegistrationIsAlreadyExists(t *testing.T) {
	s := New(testutil.SetupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Buses.Create(ctx, org, &models.Bus{Registration: "KA-01"}))
	err := s.Buses.Create(ctx, org, &models.Bus{Registration: "KA-01"})

	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
}

func TestUpdateAndDelete_NotFound(t *testing.T) {
	s := New(testutil.SetupTestDB(t))
	ctx := context.Background()

	err := s.Buses.Update(ctx, org, "missing", map[string]any{"bus_number": "9"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = s.Buses.Delete(ctx, org, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdate_MergesFields(t *testing.T) {
	s := New(testutil.SetupTestDB(t))
	ctx := context.Background()
	bus := &models.Bus{BusNumber: "7", Registration: "KA-01", Capacity: 30}
	require.NoError(t, s.Buses.Create(ctx, org, bus))

	require.NoError(t, s.Buses.Update(ctx, org, bus.ID, map[string]any{"driver_id": "DL-1", "driver_name": "Ravi"}))

	got, err := s.Buses.Get(ctx, org, bus.ID)
	require.NoError(t, err)
	assert.Equal(t, "DL-1", models.Deref(got.DriverID))
	assert.Equal(t, "Ravi", got.DriverName)
	assert.Equal(t, "7", got.BusNumber)
}

func TestList_PagesThroughLargeResultSets(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)
	ctx := context.Background()

	busID := "bus-1"
	total := PageSize*2 + 17
	students := make([]models.Student, 0, total)
	for i := 0; i < total; i++ {
		students = append(students, models.Student{OrgID: org, RollNumber: fmt.Sprintf("R%05d", i), BusID: &busID})
	}
	require.NoError(t, db.CreateInBatches(students, 200).Error)
	testutil.MustCreate(t, db, &models.Student{OrgID: org, RollNumber: "Z-unassigned"})

	seen := 0
	last := ""
	for st, err := range s.Students.List(ctx, org, Eq("bus_id", busID)) {
		require.NoError(t, err)
		assert.Greater(t, st.RollNumber, last)
		last = st.RollNumber
		seen++
	}
	assert.Equal(t, total, seen)

	n, err := s.Students.Count(ctx, org, IsNull("bus_id"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestList_StopsEarly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)
	for i := 0; i < 5; i++ {
		testutil.MustCreate(t, db, &models.Stop{ID: fmt.Sprintf("s%d", i), OrgID: org, Name: "stop"})
	}

	seen := 0
	for _, err := range s.Stops.List(context.Background(), org) {
		require.NoError(t, err)
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestUpdateWhere_In(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)
	ctx := context.Background()
	testutil.MustCreate(t, db,
		&models.Student{OrgID: org, RollNumber: "A"},
		&models.Student{OrgID: org, RollNumber: "B"},
		&models.Student{OrgID: org, RollNumber: "C"},
	)

	n, err := s.Students.UpdateWhere(ctx, org, map[string]any{"bus_number": "12"}, In("roll_number", []string{"A", "C"}))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Students.UpdateWhere(ctx, org, map[string]any{"bus_number": "99"}, In("roll_number", nil))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "", testutil.Student(t, db, org, "B").BusNumber)
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx *Store) error {
		if err := tx.Stops.Create(ctx, org, &models.Stop{ID: "s1", Name: "Gate"}); err != nil {
			return err
		}
		return apperr.Conflict("stop is busy")
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = s.Stops.Get(ctx, org, "s1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestChunk(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, Chunk(items, 2))
	assert.Equal(t, [][]string{{"a", "b", "c", "d", "e"}}, Chunk(items, 10))
	assert.Empty(t, Chunk([]string{}, 3))
}
