package assignment

import (
	"context"
	"strings"

	"gorm.io/datatypes"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
	"school_bus/internal/seats"
	"school_bus/internal/store"
)

type DriverPatch struct {
	Fields map[string]any
	Bus    RefUpdate
}

type BusPatch struct {
	Fields   map[string]any
	Capacity *int
	Driver   RefUpdate
	Route    RefUpdate
}

type RoutePatch struct {
	Fields       map[string]any
	ReplaceStops bool
	Stops        []models.StopRef
	Bus          RefUpdate
}

// CreateDriver inserts a driver, optionally already placed on a bus. The bus
// must exist and be free.
func (c *Coordinator) CreateDriver(ctx context.Context, org string, d *models.Driver) error {
	d.LicenseNumber = strings.TrimSpace(d.LicenseNumber)
	if d.LicenseNumber == "" || strings.TrimSpace(d.FullName) == "" {
		return apperr.Validation("license_number and full_name are required")
	}
	busID := d.AssignedBus
	d.AssignedBus = nil

	return c.store.Transaction(ctx, func(tx *store.Store) error {
		exists, err := tx.Drivers.Exists(ctx, org, d.LicenseNumber)
		if err != nil {
			return err
		}
		if exists {
			return apperr.AlreadyExists("driver %q already exists", d.LicenseNumber)
		}
		if busID != nil {
			bus, err := tx.Buses.Get(ctx, org, *busID)
			if err != nil {
				return err
			}
			if bus.DriverID != nil {
				return apperr.Conflict("bus %q already has driver %q", bus.ID, *bus.DriverID)
			}
		}
		if err := tx.Drivers.Create(ctx, org, d); err != nil {
			return err
		}
		return linkDriverBus(ctx, tx, org, d, busID)
	})
}

func (c *Coordinator) UpdateDriver(ctx context.Context, org, license string, patch DriverPatch) (*models.Driver, error) {
	var out *models.Driver
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		d, err := tx.Drivers.GetForUpdate(ctx, org, license)
		if err != nil {
			return err
		}
		if patch.Bus.Present {
			if err := linkDriverBus(ctx, tx, org, d, patch.Bus.ID); err != nil {
				return err
			}
		}
		if err := tx.Drivers.Update(ctx, org, license, patch.Fields); err != nil {
			return err
		}
		if name, ok := patch.Fields["full_name"]; ok {
			if _, err := tx.Buses.UpdateWhere(ctx, org, map[string]any{"driver_name": name}, store.Eq("driver_id", license)); err != nil {
				return err
			}
		}
		out, err = tx.Drivers.Get(ctx, org, license)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteDriver removes a driver and takes it off whatever bus it drives.
func (c *Coordinator) DeleteDriver(ctx context.Context, org, license string) error {
	return c.store.Transaction(ctx, func(tx *store.Store) error {
		if _, err := tx.Drivers.GetForUpdate(ctx, org, license); err != nil {
			return err
		}
		_, err := tx.Buses.UpdateWhere(ctx, org,
			map[string]any{"driver_id": nil, "driver_name": ""},
			store.Eq("driver_id", license),
		)
		if err != nil {
			return err
		}
		return tx.Drivers.Delete(ctx, org, license)
	})
}

// CreateBus inserts a bus with all seats free. A requested driver or route
// must exist and be unassigned.
func (c *Coordinator) CreateBus(ctx context.Context, org string, b *models.Bus) error {
	if strings.TrimSpace(b.BusNumber) == "" || strings.TrimSpace(b.Registration) == "" {
		return apperr.Validation("bus_number and registration are required")
	}
	if b.Capacity < 0 {
		return apperr.Validation("capacity must not be negative")
	}
	seats.Init(b)
	driverID, routeID := b.DriverID, b.RouteID
	b.DriverID, b.DriverName = nil, ""
	b.RouteID, b.RouteName = nil, ""

	var plan syncPlan
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		if driverID != nil {
			d, err := tx.Drivers.Get(ctx, org, *driverID)
			if err != nil {
				return err
			}
			if d.AssignedBus != nil {
				return apperr.Conflict("driver %q is already assigned to bus %q", d.LicenseNumber, *d.AssignedBus)
			}
		}
		if routeID != nil {
			r, err := tx.Routes.Get(ctx, org, *routeID)
			if err != nil {
				return err
			}
			if r.AssignedBus != nil {
				return apperr.Conflict("route %q is already served by bus %q", r.ID, *r.AssignedBus)
			}
		}
		if err := tx.Buses.Create(ctx, org, b); err != nil {
			return err
		}
		if err := linkBusDriver(ctx, tx, org, b, driverID); err != nil {
			return err
		}
		var err error
		plan, err = linkBusRoute(ctx, tx, org, b, routeID)
		return err
	})
	if err != nil {
		return err
	}
	return c.apply(ctx, org, plan)
}

// UpdateBus applies a partial update. Driver and route changes are validated
// before anything is written; a conflict on either leaves the bus untouched.
func (c *Coordinator) UpdateBus(ctx context.Context, org, id string, patch BusPatch) (*models.Bus, error) {
	var (
		out  *models.Bus
		plan syncPlan
	)
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		bus, err := tx.Buses.GetForUpdate(ctx, org, id)
		if err != nil {
			return err
		}
		if patch.Driver.Present {
			if err := linkBusDriver(ctx, tx, org, bus, patch.Driver.ID); err != nil {
				return err
			}
		}
		if patch.Route.Present {
			if plan, err = linkBusRoute(ctx, tx, org, bus, patch.Route.ID); err != nil {
				return err
			}
		}

		fields := make(map[string]any, len(patch.Fields)+1)
		for k, v := range patch.Fields {
			fields[k] = v
		}
		if patch.Capacity != nil {
			if *patch.Capacity < 0 {
				return apperr.Validation("capacity must not be negative")
			}
			fields["capacity"] = *patch.Capacity
		}
		if err := tx.Buses.Update(ctx, org, id, fields); err != nil {
			return err
		}
		if number, ok := patch.Fields["bus_number"]; ok {
			if _, err := tx.Students.UpdateWhere(ctx, org, map[string]any{"bus_number": number}, store.Eq("bus_id", id)); err != nil {
				return err
			}
		}
		if patch.Capacity != nil {
			if _, err := seats.New(tx.DB()).Recalculate(ctx, org, id); err != nil {
				return err
			}
		}
		out, err = tx.Buses.Get(ctx, org, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := c.apply(ctx, org, plan); err != nil {
		return out, err
	}
	if !plan.empty() {
		return c.store.Buses.Get(ctx, org, id)
	}
	return out, nil
}

// DeleteBus removes a bus. Its driver, route and riders are unassigned; the
// riders stay on their route and stop.
func (c *Coordinator) DeleteBus(ctx context.Context, org, id string) error {
	return c.store.Transaction(ctx, func(tx *store.Store) error {
		if _, err := tx.Buses.GetForUpdate(ctx, org, id); err != nil {
			return err
		}
		if _, err := tx.Drivers.UpdateWhere(ctx, org, map[string]any{"assigned_bus": nil}, store.Eq("assigned_bus", id)); err != nil {
			return err
		}
		if _, err := tx.Routes.UpdateWhere(ctx, org, map[string]any{"assigned_bus": nil}, store.Eq("assigned_bus", id)); err != nil {
			return err
		}
		_, err := tx.Students.UpdateWhere(ctx, org,
			map[string]any{"bus_id": nil, "bus_number": ""},
			store.Eq("bus_id", id),
		)
		if err != nil {
			return err
		}
		return tx.Buses.Delete(ctx, org, id)
	})
}

// CreateRoute inserts a route with a resolved stop list and, optionally, the
// bus serving it. Students already sitting on its stops follow the bus.
func (c *Coordinator) CreateRoute(ctx context.Context, org string, r *models.Route) error {
	if strings.TrimSpace(r.Name) == "" {
		return apperr.Validation("name is required")
	}
	busID := r.AssignedBus
	r.AssignedBus = nil

	var plan syncPlan
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		resolved, err := resolveRefs(ctx, tx, org, r.Stops)
		if err != nil {
			return err
		}
		if busID != nil {
			bus, err := tx.Buses.Get(ctx, org, *busID)
			if err != nil {
				return err
			}
			if bus.RouteID != nil {
				return apperr.Conflict("bus %q already serves route %q", bus.ID, *bus.RouteID)
			}
		}
		r.Stops = resolved
		if err := tx.Routes.Create(ctx, org, r); err != nil {
			return err
		}
		if plan, err = linkRouteBus(ctx, tx, org, r, busID); err != nil {
			return err
		}
		plan.routes = append(plan.routes, r.ID)
		return nil
	})
	if err != nil {
		return err
	}
	return c.apply(ctx, org, plan)
}

func (c *Coordinator) UpdateRoute(ctx context.Context, org, id string, patch RoutePatch) (*models.Route, error) {
	var (
		out  *models.Route
		plan syncPlan
	)
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		route, err := tx.Routes.GetForUpdate(ctx, org, id)
		if err != nil {
			return err
		}
		fields := make(map[string]any, len(patch.Fields)+1)
		for k, v := range patch.Fields {
			fields[k] = v
		}
		if patch.ReplaceStops {
			resolved, err := resolveRefs(ctx, tx, org, patch.Stops)
			if err != nil {
				return err
			}
			fields["stops"] = resolved
			plan.routes = append(plan.routes, id)
		}
		if patch.Bus.Present {
			p, err := linkRouteBus(ctx, tx, org, route, patch.Bus.ID)
			if err != nil {
				return err
			}
			plan.merge(p)
		}
		if err := tx.Routes.Update(ctx, org, id, fields); err != nil {
			return err
		}
		if name, ok := patch.Fields["name"]; ok {
			if _, err := tx.Buses.UpdateWhere(ctx, org, map[string]any{"route_name": name}, store.Eq("route_id", id)); err != nil {
				return err
			}
			if _, err := tx.Students.UpdateWhere(ctx, org, map[string]any{"route_name": name}, store.Eq("route_id", id)); err != nil {
				return err
			}
		}
		out, err = tx.Routes.Get(ctx, org, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, c.apply(ctx, org, plan)
}

// DeleteRoute removes a route. Its bus is released and its students lose the
// route and the bus but keep their stop.
func (c *Coordinator) DeleteRoute(ctx context.Context, org, id string) error {
	var plan syncPlan
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		if _, err := tx.Routes.GetForUpdate(ctx, org, id); err != nil {
			return err
		}
		riders := set{}
		for st, err := range tx.Students.List(ctx, org, store.Eq("route_id", id)) {
			if err != nil {
				return err
			}
			riders.add(models.Deref(st.BusID))
		}
		_, err := tx.Buses.UpdateWhere(ctx, org,
			map[string]any{"route_id": nil, "route_name": ""},
			store.Eq("route_id", id),
		)
		if err != nil {
			return err
		}
		_, err = tx.Students.UpdateWhere(ctx, org,
			map[string]any{"route_id": nil, "route_name": "", "bus_id": nil, "bus_number": ""},
			store.Eq("route_id", id),
		)
		if err != nil {
			return err
		}
		plan.buses = riders.sorted()
		return tx.Routes.Delete(ctx, org, id)
	})
	if err != nil {
		return err
	}
	return c.apply(ctx, org, plan)
}

// CreateStop inserts a stop. Students join stops through ReassignStudentStop
// only, so any assigned set in the request is discarded.
func (c *Coordinator) CreateStop(ctx context.Context, org string, s *models.Stop) error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return apperr.Validation("name is required")
	}
	if s.Fee < 0 {
		return apperr.Validation("fee must not be negative")
	}
	s.AssignedStudents = nil
	return c.store.Stops.Create(ctx, org, s)
}

// UpdateStop applies plain field changes; a rename is copied to the students
// at the stop and to the route entries pointing at it.
func (c *Coordinator) UpdateStop(ctx context.Context, org, id string, fields map[string]any) (*models.Stop, error) {
	var out *models.Stop
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.Stops.Update(ctx, org, id, fields); err != nil {
			return err
		}
		if name, ok := fields["name"].(string); ok {
			if _, err := tx.Students.UpdateWhere(ctx, org, map[string]any{"bus_stop": name}, store.Eq("bus_stop_id", id)); err != nil {
				return err
			}
			err := rewriteRouteStops(ctx, tx, org, func(ref models.StopRef) (models.StopRef, bool) {
				if ref.Legacy() || ref.ID != id {
					return ref, true
				}
				ref.Name = name
				return ref, true
			})
			if err != nil {
				return err
			}
		}
		var err error
		out, err = tx.Stops.Get(ctx, org, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteStop removes a stop, drops it from every route and clears it on the
// students sitting there. Those students keep their route and bus.
func (c *Coordinator) DeleteStop(ctx context.Context, org, id string) error {
	return c.store.Transaction(ctx, func(tx *store.Store) error {
		stop, err := tx.Stops.GetForUpdate(ctx, org, id)
		if err != nil {
			return err
		}
		_, err = tx.Students.UpdateWhere(ctx, org,
			map[string]any{"bus_stop_id": nil, "bus_stop": ""},
			store.Eq("bus_stop_id", id),
		)
		if err != nil {
			return err
		}
		err = rewriteRouteStops(ctx, tx, org, func(ref models.StopRef) (models.StopRef, bool) {
			return ref, !ref.Matches(*stop)
		})
		if err != nil {
			return err
		}
		return tx.Stops.Delete(ctx, org, id)
	})
}

// rewriteRouteStops passes every route stop entry through fn, dropping the
// entries fn rejects, and stores the routes that changed.
func rewriteRouteStops(ctx context.Context, tx *store.Store, org string, fn func(models.StopRef) (models.StopRef, bool)) error {
	routes, err := tx.Routes.All(ctx, org)
	if err != nil {
		return err
	}
	for _, r := range routes {
		next := make(datatypes.JSONSlice[models.StopRef], 0, len(r.Stops))
		changed := false
		for _, ref := range r.Stops {
			out, keep := fn(ref)
			if !keep || out != ref {
				changed = true
			}
			if keep {
				next = append(next, out)
			}
		}
		if !changed {
			continue
		}
		if err := tx.Routes.Update(ctx, org, r.ID, map[string]any{"stops": next}); err != nil {
			return err
		}
	}
	return nil
}
