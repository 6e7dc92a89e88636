// Package testutil builds throwaway databases and fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"school_bus/internal/models"
)

// SetupTestDB opens a private in-memory SQLite database with the full schema.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	// One connection keeps the in-memory database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// MustCreate inserts records directly, bypassing every consistency rule.
func MustCreate(t *testing.T, db *gorm.DB, records ...any) {
	t.Helper()
	for _, r := range records {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("Failed to create fixture %T: %v", r, err)
		}
	}
}

// Reload re-reads dest by its primary key conditions.
func Reload[T any](t *testing.T, db *gorm.DB, conds ...any) T {
	t.Helper()
	var out T
	if err := db.Where(conds[0], conds[1:]...).First(&out).Error; err != nil {
		t.Fatalf("Failed to reload %T: %v", out, err)
	}
	return out
}

// Bus reloads a bus.
func Bus(t *testing.T, db *gorm.DB, org, id string) models.Bus {
	t.Helper()
	return Reload[models.Bus](t, db, "org_id = ? AND id = ?", org, id)
}

// Driver reloads a driver.
func Driver(t *testing.T, db *gorm.DB, org, license string) models.Driver {
	t.Helper()
	return Reload[models.Driver](t, db, "org_id = ? AND license_number = ?", org, license)
}

// Route reloads a route.
func Route(t *testing.T, db *gorm.DB, org, id string) models.Route {
	t.Helper()
	return Reload[models.Route](t, db, "org_id = ? AND id = ?", org, id)
}

// Stop reloads a stop.
func Stop(t *testing.T, db *gorm.DB, org, id string) models.Stop {
	t.Helper()
	return Reload[models.Stop](t, db, "org_id = ? AND id = ?", org, id)
}

// Student reloads a student.
func Student(t *testing.T, db *gorm.DB, org, roll string) models.Student {
	t.Helper()
	return Reload[models.Student](t, db, "org_id = ? AND roll_number = ?", org, roll)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
