// Package seats maintains the avail_seats counter of a bus.
//
// The counter only moves through guarded single-statement updates, so two
// concurrent reservations can never both take the last seat: the decrement
// carries "avail_seats > 0" in its WHERE clause and the increment carries
// "avail_seats < capacity".
package seats

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
)

// Ledger runs on a database handle; pass a transaction to make seat changes
// part of a larger unit of work.
type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Init sets a new bus's counter to its full capacity.
func Init(bus *models.Bus) {
	if bus.Capacity < 0 {
		bus.Capacity = 0
	}
	bus.AvailSeats = bus.Capacity
}

func (l *Ledger) buses(ctx context.Context, org, busID string) *gorm.DB {
	return l.db.WithContext(ctx).Model(&models.Bus{}).Where("org_id = ? AND id = ?", org, busID)
}

// Reserve takes one seat on busID.
func (l *Ledger) Reserve(ctx context.Context, org, busID string) error {
	res := l.buses(ctx, org, busID).
		Where("avail_seats > 0").
		Update("avail_seats", gorm.Expr("avail_seats - 1"))
	if res.Error != nil {
		return apperr.Upstream(res.Error, "could not reserve seat")
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if err := l.mustExist(ctx, org, busID); err != nil {
		return err
	}
	return apperr.Capacity("bus %q has no available seats", busID)
}

// Release gives one seat back to busID. The counter never exceeds capacity;
// releasing on a full bus or a bus that no longer exists is a no-op.
func (l *Ledger) Release(ctx context.Context, org, busID string) error {
	res := l.buses(ctx, org, busID).
		Where("avail_seats < capacity").
		Update("avail_seats", gorm.Expr("avail_seats + 1"))
	if res.Error != nil {
		return apperr.Upstream(res.Error, "could not release seat")
	}
	return nil
}

// Move transfers a seat from one bus to another. The target seat is reserved
// first so a full target leaves the source untouched.
func (l *Ledger) Move(ctx context.Context, org string, from, to *string) error {
	if models.SameRef(from, to) {
		return nil
	}
	if to != nil {
		if err := l.Reserve(ctx, org, *to); err != nil {
			return err
		}
	}
	if from != nil {
		return l.Release(ctx, org, *from)
	}
	return nil
}

// Recalculate repairs the counter from the students actually riding the bus
// and returns the new value.
func (l *Ledger) Recalculate(ctx context.Context, org, busID string) (int, error) {
	var bus models.Bus
	if err := l.buses(ctx, org, busID).First(&bus).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.NotFound("bus %q not found", busID)
		}
		return 0, apperr.Upstream(err, "could not load bus")
	}

	var riders int64
	err := l.db.WithContext(ctx).Model(&models.Student{}).
		Where("org_id = ? AND bus_id = ?", org, busID).
		Count(&riders).Error
	if err != nil {
		return 0, apperr.Upstream(err, "could not count riders")
	}

	avail := Available(bus.Capacity, int(riders))
	if err := l.buses(ctx, org, busID).Update("avail_seats", avail).Error; err != nil {
		return 0, apperr.Upstream(err, "could not store seat count")
	}
	return avail, nil
}

// Available is capacity minus riders, clamped to [0, capacity].
func Available(capacity, riders int) int {
	if capacity < 0 {
		capacity = 0
	}
	avail := capacity - riders
	if avail < 0 {
		return 0
	}
	if avail > capacity {
		return capacity
	}
	return avail
}

func (l *Ledger) mustExist(ctx context.Context, org, busID string) error {
	var n int64
	if err := l.buses(ctx, org, busID).Count(&n).Error; err != nil {
		return apperr.Upstream(err, "could not load bus")
	}
	if n == 0 {
		return apperr.NotFound("bus %q not found", busID)
	}
	return nil
}

// MaxCount bounds the counts ParseCount accepts.
const MaxCount = math.MaxInt32

// ParseCount reads a seat count from a JSON number, a numeric string or a Go
// integer. Anything else yields 0 and false; callers log when that happens so
// legacy records with junk capacities are visible.
func ParseCount(v any) (int, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case int:
		return ParseCount(int64(n))
	case int64:
		if n > MaxCount || n < -MaxCount {
			return 0, false
		}
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n > MaxCount || n < -MaxCount {
			return 0, false
		}
		return int(n), true
	case json.Number:
		return ParseCount(string(n))
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return ParseCount(i)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return ParseCount(f)
		}
		return 0, false
	default:
		return 0, false
	}
}
