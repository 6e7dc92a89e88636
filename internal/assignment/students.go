package assignment

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
	"school_bus/internal/seats"
	"school_bus/internal/store"
)

// StudentPatch is a partial student update. Fields holds plain columns only.
type StudentPatch struct {
	Fields    map[string]any
	FeeAmount *float64
	Stop      RefUpdate
	Bus       RefUpdate
}

// ReassignStudentStop moves a student to stopID (nil drops the stop). The
// student follows the route that carries the stop and that route's bus; the
// seat moves with it, so a full target bus rejects the change.
func (c *Coordinator) ReassignStudentStop(ctx context.Context, org, roll string, stopID *string) (*models.Student, error) {
	return c.UpdateStudent(ctx, org, roll, StudentPatch{Stop: RefUpdate{Present: true, ID: stopID}})
}

// AssignStudentBus puts a student directly on busID, bypassing stop lookup.
func (c *Coordinator) AssignStudentBus(ctx context.Context, org, roll string, busID *string) (*models.Student, error) {
	return c.UpdateStudent(ctx, org, roll, StudentPatch{Bus: RefUpdate{Present: true, ID: busID}})
}

// CreateStudent inserts a student. A requested stop is resolved to its route
// and bus, and a seat is taken on that bus; an unknown stop or bus, or a full
// bus, rejects the whole creation. A new student has paid nothing: money only
// arrives through recorded payments.
func (c *Coordinator) CreateStudent(ctx context.Context, org string, st *models.Student) error {
	st.RollNumber = strings.TrimSpace(st.RollNumber)
	if st.RollNumber == "" || strings.TrimSpace(st.FullName) == "" {
		return apperr.Validation("roll_number and full_name are required")
	}

	return c.store.Transaction(ctx, func(tx *store.Store) error {
		exists, err := tx.Students.Exists(ctx, org, st.RollNumber)
		if err != nil {
			return err
		}
		if exists {
			return apperr.AlreadyExists("student %q already exists", st.RollNumber)
		}

		var (
			stop *models.Stop
			bus  *models.Bus
		)
		switch {
		case st.BusStopID != nil:
			if stop, err = tx.Stops.GetForUpdate(ctx, org, *st.BusStopID); err != nil {
				return err
			}
			route, ref, err := findRouteForStop(ctx, tx, org, stop, st.RouteID)
			if err != nil {
				return err
			}
			st.BusStop = stop.Name
			st.RouteID, st.RouteName = nil, ""
			if route != nil {
				st.RouteID, st.RouteName = &route.ID, route.Name
				if st.FeeAmount == 0 {
					st.FeeAmount = stopFee(ref, stop)
				}
				if bus, err = routeBus(ctx, tx, org, route); err != nil {
					return err
				}
			}
		case st.BusID != nil:
			if bus, err = tx.Buses.Get(ctx, org, *st.BusID); err != nil {
				return err
			}
			st.RouteID, st.RouteName = bus.RouteID, bus.RouteName
		case st.RouteID != nil:
			route, err := tx.Routes.Get(ctx, org, *st.RouteID)
			if err != nil {
				return err
			}
			st.RouteName = route.Name
			if bus, err = routeBus(ctx, tx, org, route); err != nil {
				return err
			}
		}

		st.BusID, st.BusNumber = nil, ""
		if bus != nil {
			if err := seats.New(tx.DB()).Reserve(ctx, org, bus.ID); err != nil {
				return err
			}
			st.BusID, st.BusNumber = &bus.ID, bus.BusNumber
		}

		st.Paid = 0
		st.Due = st.FeeAmount
		st.CanTravel = st.Due <= 0
		if err := tx.Students.Create(ctx, org, st); err != nil {
			return err
		}
		if stop != nil && stop.AddStudent(st.RollNumber) {
			if err := tx.Stops.Update(ctx, org, stop.ID, map[string]any{"assigned_students": stop.AssignedStudents}); err != nil {
				return err
			}
		}
		logrus.WithFields(logrus.Fields{
			"org_id": org,
			"roll":   st.RollNumber,
			"stop":   models.Deref(st.BusStopID),
			"bus_id": models.Deref(st.BusID),
		}).Info("Student created.")
		return nil
	})
}

// UpdateStudent applies a partial update. Reference changes are validated and
// written in the same transaction as the plain fields.
func (c *Coordinator) UpdateStudent(ctx context.Context, org, roll string, patch StudentPatch) (*models.Student, error) {
	var out *models.Student
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		st, err := tx.Students.GetForUpdate(ctx, org, roll)
		if err != nil {
			return err
		}
		if patch.Stop.Present {
			if err := reassignStop(ctx, tx, org, st, patch.Stop.ID); err != nil {
				return err
			}
		}
		if patch.Bus.Present {
			if err := assignStudentBus(ctx, tx, org, st, patch.Bus.ID); err != nil {
				return err
			}
		}

		fields := make(map[string]any, len(patch.Fields)+3)
		for k, v := range patch.Fields {
			fields[k] = v
		}
		if patch.FeeAmount != nil {
			if *patch.FeeAmount < 0 {
				return apperr.Validation("fee_amount must not be negative")
			}
			due := *patch.FeeAmount - st.Paid
			fields["fee_amount"] = *patch.FeeAmount
			fields["due"] = due
			fields["can_travel"] = st.CanTravel || due <= 0
		}
		if err := tx.Students.Update(ctx, org, roll, fields); err != nil {
			return err
		}
		out, err = tx.Students.Get(ctx, org, roll)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteStudent removes a student with its payments, frees its seat and
// drops it from its stop.
func (c *Coordinator) DeleteStudent(ctx context.Context, org, roll string) error {
	return c.store.Transaction(ctx, func(tx *store.Store) error {
		st, err := tx.Students.GetForUpdate(ctx, org, roll)
		if err != nil {
			return err
		}
		if st.BusID != nil {
			if err := seats.New(tx.DB()).Release(ctx, org, *st.BusID); err != nil {
				return err
			}
		}
		if err := leaveStop(ctx, tx, org, st); err != nil {
			return err
		}
		if _, err := tx.Payments.DeleteWhere(ctx, org, store.Eq("roll_number", roll)); err != nil {
			return err
		}
		return tx.Students.Delete(ctx, org, roll)
	})
}

func reassignStop(ctx context.Context, tx *store.Store, org string, st *models.Student, stopID *string) error {
	if models.SameRef(st.BusStopID, stopID) {
		return nil
	}

	var (
		stop  *models.Stop
		route *models.Route
		bus   *models.Bus
		err   error
	)
	if stopID != nil {
		if stop, err = tx.Stops.GetForUpdate(ctx, org, *stopID); err != nil {
			return err
		}
		if route, _, err = findRouteForStop(ctx, tx, org, stop, st.RouteID); err != nil {
			return err
		}
		if route == nil {
			logrus.WithFields(logrus.Fields{
				"org_id": org,
				"stop":   stop.ID,
			}).Warn("Stop is not on any route; student left without a bus.")
		} else if bus, err = routeBus(ctx, tx, org, route); err != nil {
			return err
		}
	}

	var busID *string
	if bus != nil {
		busID = &bus.ID
	}
	if err := seats.New(tx.DB()).Move(ctx, org, st.BusID, busID); err != nil {
		return err
	}
	if err := leaveStop(ctx, tx, org, st); err != nil {
		return err
	}
	if stop != nil && stop.AddStudent(st.RollNumber) {
		if err := tx.Stops.Update(ctx, org, stop.ID, map[string]any{"assigned_students": stop.AssignedStudents}); err != nil {
			return err
		}
	}

	st.BusStopID, st.BusStop = stopID, ""
	st.RouteID, st.RouteName = nil, ""
	st.BusID, st.BusNumber = busID, ""
	if stop != nil {
		st.BusStop = stop.Name
	}
	if route != nil {
		st.RouteID, st.RouteName = &route.ID, route.Name
	}
	if bus != nil {
		st.BusNumber = bus.BusNumber
	}
	return tx.Students.Update(ctx, org, st.RollNumber, map[string]any{
		"bus_stop_id": refValue(st.BusStopID),
		"bus_stop":    st.BusStop,
		"route_id":    refValue(st.RouteID),
		"route_name":  st.RouteName,
		"bus_id":      refValue(st.BusID),
		"bus_number":  st.BusNumber,
	})
}

func assignStudentBus(ctx context.Context, tx *store.Store, org string, st *models.Student, busID *string) error {
	if models.SameRef(st.BusID, busID) {
		return nil
	}
	var bus *models.Bus
	if busID != nil {
		var err error
		if bus, err = tx.Buses.GetForUpdate(ctx, org, *busID); err != nil {
			return err
		}
	}
	if err := seats.New(tx.DB()).Move(ctx, org, st.BusID, busID); err != nil {
		return err
	}

	fields := map[string]any{"bus_id": refValue(busID), "bus_number": ""}
	st.BusID, st.BusNumber = busID, ""
	if bus != nil {
		fields["bus_number"] = bus.BusNumber
		st.BusNumber = bus.BusNumber
		if bus.RouteID != nil {
			fields["route_id"], fields["route_name"] = *bus.RouteID, bus.RouteName
			st.RouteID, st.RouteName = bus.RouteID, bus.RouteName
		}
	}
	return tx.Students.Update(ctx, org, st.RollNumber, fields)
}

// leaveStop removes the student from its current stop's set. A stop that no
// longer exists is ignored.
func leaveStop(ctx context.Context, tx *store.Store, org string, st *models.Student) error {
	if st.BusStopID == nil {
		return nil
	}
	old, err := tx.Stops.GetForUpdate(ctx, org, *st.BusStopID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if !old.RemoveStudent(st.RollNumber) {
		return nil
	}
	return tx.Stops.Update(ctx, org, old.ID, map[string]any{"assigned_students": old.AssignedStudents})
}

// routeBus loads the bus serving route; a dangling reference yields nil.
func routeBus(ctx context.Context, tx *store.Store, org string, route *models.Route) (*models.Bus, error) {
	if route.AssignedBus == nil {
		return nil, nil
	}
	bus, err := tx.Buses.Get(ctx, org, *route.AssignedBus)
	if apperr.KindOf(err) == apperr.KindNotFound {
		logrus.WithFields(logrus.Fields{
			"org_id":   org,
			"route_id": route.ID,
			"bus_id":   *route.AssignedBus,
		}).Warn("Route points at a missing bus.")
		return nil, nil
	}
	return bus, err
}
