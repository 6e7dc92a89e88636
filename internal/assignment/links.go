package assignment

import (
	"context"

	"github.com/sirupsen/logrus"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
	"school_bus/internal/store"
)

// AssignBusDriver makes driverID the driver of busID, or clears the bus's
// driver when driverID is nil. The previous driver of the bus is released.
// A driver already holding a different bus is rejected with a conflict.
func (c *Coordinator) AssignBusDriver(ctx context.Context, org, busID string, driverID *string) (*models.Bus, error) {
	var out *models.Bus
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		bus, err := tx.Buses.GetForUpdate(ctx, org, busID)
		if err != nil {
			return err
		}
		if err := linkBusDriver(ctx, tx, org, bus, driverID); err != nil {
			return err
		}
		out = bus
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AssignDriverBus moves a driver to busID, or takes the driver off its bus
// when busID is nil. A bus already driven by someone else is rejected with a
// conflict; the driver's previous bus is released.
func (c *Coordinator) AssignDriverBus(ctx context.Context, org, license string, busID *string) (*models.Driver, error) {
	var out *models.Driver
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		driver, err := tx.Drivers.GetForUpdate(ctx, org, license)
		if err != nil {
			return err
		}
		if err := linkDriverBus(ctx, tx, org, driver, busID); err != nil {
			return err
		}
		out = driver
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AssignBusRoute puts busID on routeID (nil takes the bus off its route) and
// then moves the students of both the old and the new route.
func (c *Coordinator) AssignBusRoute(ctx context.Context, org, busID string, routeID *string) (*models.Bus, error) {
	var (
		out  *models.Bus
		plan syncPlan
	)
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		bus, err := tx.Buses.GetForUpdate(ctx, org, busID)
		if err != nil {
			return err
		}
		plan, err = linkBusRoute(ctx, tx, org, bus, routeID)
		if err != nil {
			return err
		}
		out = bus
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, c.apply(ctx, org, plan)
}

// AssignRouteBus is AssignBusRoute seen from the route. A bus already serving
// another route is rejected with a conflict.
func (c *Coordinator) AssignRouteBus(ctx context.Context, org, routeID string, busID *string) (*models.Route, error) {
	var (
		out  *models.Route
		plan syncPlan
	)
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		route, err := tx.Routes.GetForUpdate(ctx, org, routeID)
		if err != nil {
			return err
		}
		plan, err = linkRouteBus(ctx, tx, org, route, busID)
		if err != nil {
			return err
		}
		out = route
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, c.apply(ctx, org, plan)
}

func linkBusDriver(ctx context.Context, tx *store.Store, org string, bus *models.Bus, driverID *string) error {
	if models.SameRef(bus.DriverID, driverID) {
		return nil
	}

	var next *models.Driver
	if driverID != nil {
		d, err := tx.Drivers.GetForUpdate(ctx, org, *driverID)
		if err != nil {
			return err
		}
		if d.AssignedBus != nil && *d.AssignedBus != bus.ID {
			return apperr.Conflict("driver %q is already assigned to bus %q", d.LicenseNumber, *d.AssignedBus)
		}
		next = d
	}

	if bus.DriverID != nil {
		_, err := tx.Drivers.UpdateWhere(ctx, org,
			map[string]any{"assigned_bus": nil},
			store.Eq("license_number", *bus.DriverID),
			store.Eq("assigned_bus", bus.ID),
		)
		if err != nil {
			return err
		}
	}

	name := ""
	if next != nil {
		if err := tx.Drivers.Update(ctx, org, next.LicenseNumber, map[string]any{"assigned_bus": bus.ID}); err != nil {
			return err
		}
		name = next.FullName
	}
	err := tx.Buses.Update(ctx, org, bus.ID, map[string]any{
		"driver_id":   refValue(driverID),
		"driver_name": name,
	})
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"org_id":     org,
		"bus_id":     bus.ID,
		"old_driver": models.Deref(bus.DriverID),
		"new_driver": models.Deref(driverID),
	}).Info("Bus driver changed.")
	bus.DriverID, bus.DriverName = driverID, name
	return nil
}

func linkDriverBus(ctx context.Context, tx *store.Store, org string, driver *models.Driver, busID *string) error {
	if models.SameRef(driver.AssignedBus, busID) {
		return nil
	}

	var next *models.Bus
	if busID != nil {
		b, err := tx.Buses.GetForUpdate(ctx, org, *busID)
		if err != nil {
			return err
		}
		if b.DriverID != nil && *b.DriverID != driver.LicenseNumber {
			return apperr.Conflict("bus %q already has driver %q", b.ID, *b.DriverID)
		}
		next = b
	}

	if driver.AssignedBus != nil {
		_, err := tx.Buses.UpdateWhere(ctx, org,
			map[string]any{"driver_id": nil, "driver_name": ""},
			store.Eq("id", *driver.AssignedBus),
			store.Eq("driver_id", driver.LicenseNumber),
		)
		if err != nil {
			return err
		}
	}
	if next != nil {
		err := tx.Buses.Update(ctx, org, next.ID, map[string]any{
			"driver_id":   driver.LicenseNumber,
			"driver_name": driver.FullName,
		})
		if err != nil {
			return err
		}
	}
	if err := tx.Drivers.Update(ctx, org, driver.LicenseNumber, map[string]any{"assigned_bus": refValue(busID)}); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"org_id":  org,
		"driver":  driver.LicenseNumber,
		"old_bus": models.Deref(driver.AssignedBus),
		"new_bus": models.Deref(busID),
	}).Info("Driver bus changed.")
	driver.AssignedBus = busID
	return nil
}

func linkBusRoute(ctx context.Context, tx *store.Store, org string, bus *models.Bus, routeID *string) (syncPlan, error) {
	if models.SameRef(bus.RouteID, routeID) {
		return syncPlan{}, nil
	}

	var next *models.Route
	if routeID != nil {
		r, err := tx.Routes.GetForUpdate(ctx, org, *routeID)
		if err != nil {
			return syncPlan{}, err
		}
		if r.AssignedBus != nil && *r.AssignedBus != bus.ID {
			return syncPlan{}, apperr.Conflict("route %q is already served by bus %q", r.ID, *r.AssignedBus)
		}
		next = r
	}

	plan := syncPlan{buses: []string{bus.ID}}
	if bus.RouteID != nil {
		_, err := tx.Routes.UpdateWhere(ctx, org,
			map[string]any{"assigned_bus": nil},
			store.Eq("id", *bus.RouteID),
			store.Eq("assigned_bus", bus.ID),
		)
		if err != nil {
			return syncPlan{}, err
		}
		plan.routes = append(plan.routes, *bus.RouteID)
	}

	name := ""
	if next != nil {
		if err := tx.Routes.Update(ctx, org, next.ID, map[string]any{"assigned_bus": bus.ID}); err != nil {
			return syncPlan{}, err
		}
		name = next.Name
		plan.routes = append(plan.routes, next.ID)
	}
	err := tx.Buses.Update(ctx, org, bus.ID, map[string]any{
		"route_id":   refValue(routeID),
		"route_name": name,
	})
	if err != nil {
		return syncPlan{}, err
	}

	logrus.WithFields(logrus.Fields{
		"org_id":    org,
		"bus_id":    bus.ID,
		"old_route": models.Deref(bus.RouteID),
		"new_route": models.Deref(routeID),
	}).Info("Bus route changed.")
	bus.RouteID, bus.RouteName = routeID, name
	return plan, nil
}

func linkRouteBus(ctx context.Context, tx *store.Store, org string, route *models.Route, busID *string) (syncPlan, error) {
	if models.SameRef(route.AssignedBus, busID) {
		return syncPlan{}, nil
	}

	var next *models.Bus
	if busID != nil {
		b, err := tx.Buses.GetForUpdate(ctx, org, *busID)
		if err != nil {
			return syncPlan{}, err
		}
		if b.RouteID != nil && *b.RouteID != route.ID {
			return syncPlan{}, apperr.Conflict("bus %q already serves route %q", b.ID, *b.RouteID)
		}
		next = b
	}

	plan := syncPlan{routes: []string{route.ID}}
	if route.AssignedBus != nil {
		_, err := tx.Buses.UpdateWhere(ctx, org,
			map[string]any{"route_id": nil, "route_name": ""},
			store.Eq("id", *route.AssignedBus),
			store.Eq("route_id", route.ID),
		)
		if err != nil {
			return syncPlan{}, err
		}
		plan.buses = append(plan.buses, *route.AssignedBus)
	}
	if next != nil {
		err := tx.Buses.Update(ctx, org, next.ID, map[string]any{
			"route_id":   route.ID,
			"route_name": route.Name,
		})
		if err != nil {
			return syncPlan{}, err
		}
		plan.buses = append(plan.buses, next.ID)
	}
	if err := tx.Routes.Update(ctx, org, route.ID, map[string]any{"assigned_bus": refValue(busID)}); err != nil {
		return syncPlan{}, err
	}

	logrus.WithFields(logrus.Fields{
		"org_id":   org,
		"route_id": route.ID,
		"old_bus":  models.Deref(route.AssignedBus),
		"new_bus":  models.Deref(busID),
	}).Info("Route bus changed.")
	route.AssignedBus = busID
	return plan, nil
}
