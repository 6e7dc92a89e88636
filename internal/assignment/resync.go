package assignment

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
	"school_bus/internal/store"
)

// ResyncRoute rewrites the route and bus fields of every student of routeID
// from the route's current bus and recomputes the seats of every bus those
// students rode before. It is safe to run any number of times.
func (c *Coordinator) ResyncRoute(ctx context.Context, org, routeID string) error {
	if _, err := c.store.Routes.Get(ctx, org, routeID); err != nil {
		return err
	}
	return c.apply(ctx, org, syncPlan{routes: []string{routeID}})
}

// SyncRouteStops replaces the stop list of a route. Legacy name refs are
// resolved to stop ids where a stop with that name exists.
func (c *Coordinator) SyncRouteStops(ctx context.Context, org, routeID string, refs []models.StopRef) (*models.Route, error) {
	var out *models.Route
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		route, err := tx.Routes.GetForUpdate(ctx, org, routeID)
		if err != nil {
			return err
		}
		resolved, err := resolveRefs(ctx, tx, org, refs)
		if err != nil {
			return err
		}
		if err := tx.Routes.Update(ctx, org, route.ID, map[string]any{"stops": resolved}); err != nil {
			return err
		}
		route.Stops = resolved
		out = route
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, c.apply(ctx, org, syncPlan{routes: []string{routeID}})
}

// resyncRoute moves the members of a route onto the route's bus, batch by
// batch, and returns the buses whose rider count may have changed.
func (c *Coordinator) resyncRoute(ctx context.Context, org, routeID string) ([]string, error) {
	route, err := c.store.Routes.Get(ctx, org, routeID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var bus *models.Bus
	if route.AssignedBus != nil {
		bus, err = c.store.Buses.Get(ctx, org, *route.AssignedBus)
		switch {
		case apperr.KindOf(err) == apperr.KindNotFound:
			logrus.WithFields(logrus.Fields{
				"org_id":   org,
				"route_id": route.ID,
				"bus_id":   *route.AssignedBus,
			}).Warn("Route points at a missing bus; clearing bus on its students.")
			bus = nil
		case err != nil:
			return nil, err
		}
	}

	members, touched, err := c.routeMembers(ctx, org, route)
	if err != nil {
		return nil, err
	}
	fields := func() map[string]any {
		m := map[string]any{
			"route_id":   route.ID,
			"route_name": route.Name,
			"bus_id":     nil,
			"bus_number": "",
		}
		if bus != nil {
			m["bus_id"] = bus.ID
			m["bus_number"] = bus.BusNumber
		}
		return m
	}

	for i, batch := range store.Chunk(members, c.batchSize) {
		err := c.store.Transaction(ctx, func(tx *store.Store) error {
			_, err := tx.Students.UpdateWhere(ctx, org, fields(), store.In("roll_number", batch))
			return err
		})
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"org_id":   org,
				"route_id": route.ID,
				"batch":    i,
			}).WithError(err).Error("Route resync batch failed.")
			return nil, err
		}
	}

	if bus != nil {
		touched.add(bus.ID)
	}
	logrus.WithFields(logrus.Fields{
		"org_id":   org,
		"route_id": route.ID,
		"bus_id":   models.Deref(route.AssignedBus),
		"students": len(members),
	}).Info("Route students resynced.")
	return touched.sorted(), nil
}

// routeMembers collects the roll numbers riding a route: students whose
// route_id points at it, plus unrouted students sitting on one of its stops.
// It also returns the buses those students currently ride.
func (c *Coordinator) routeMembers(ctx context.Context, org string, route *models.Route) ([]string, set, error) {
	var ids, names []string
	for _, ref := range route.Stops {
		if ref.Legacy() {
			if ref.Name != "" {
				names = append(names, ref.Name)
			}
			continue
		}
		ids = append(ids, ref.ID)
	}

	members, buses := set{}, set{}
	collect := func(byStop bool, filters ...store.Filter) error {
		for st, err := range c.store.Students.List(ctx, org, filters...) {
			if err != nil {
				return err
			}
			// A student explicitly on another route keeps it even if the
			// stop is shared.
			if byStop && st.RouteID != nil && *st.RouteID != route.ID {
				continue
			}
			members.add(st.RollNumber)
			buses.add(models.Deref(st.BusID))
		}
		return nil
	}

	if err := collect(false, store.Eq("route_id", route.ID)); err != nil {
		return nil, nil, err
	}
	if len(ids) > 0 {
		if err := collect(true, store.In("bus_stop_id", ids)); err != nil {
			return nil, nil, err
		}
	}
	if len(names) > 0 {
		if err := collect(true, store.IsNull("bus_stop_id"), store.In("bus_stop", names)); err != nil {
			return nil, nil, err
		}
	}
	return members.sorted(), buses, nil
}

// resolveRefs validates a stop list and upgrades legacy name refs to id refs
// when a stop with that name exists. Id refs get the stop's current name and,
// when they carry no fee of their own, the stop's default fee.
func resolveRefs(ctx context.Context, tx *store.Store, org string, refs []models.StopRef) (datatypes.JSONSlice[models.StopRef], error) {
	stops, err := tx.Stops.All(ctx, org)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Stop, len(stops))
	byName := make(map[string]models.Stop, len(stops))
	for _, s := range stops {
		byID[s.ID] = s
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if _, dup := byName[key]; !dup {
			byName[key] = s
		}
	}

	out := make(datatypes.JSONSlice[models.StopRef], 0, len(refs))
	for i, ref := range refs {
		var (
			stop models.Stop
			ok   bool
		)
		switch {
		case !ref.Legacy():
			if stop, ok = byID[ref.ID]; !ok {
				return nil, apperr.NotFound("stop %q not found", ref.ID)
			}
		case strings.TrimSpace(ref.Name) == "":
			return nil, apperr.Validation("stop #%d has neither id nor name", i+1)
		default:
			if stop, ok = byName[strings.ToLower(strings.TrimSpace(ref.Name))]; !ok {
				logrus.WithFields(logrus.Fields{
					"org_id": org,
					"stop":   ref.Name,
				}).Warn("Keeping unresolved stop name on route.")
				out = append(out, models.StopByName(ref.Name, ref.Fee))
				continue
			}
		}
		fee := ref.Fee
		if fee == 0 {
			fee = stop.Fee
		}
		out = append(out, models.StopByID(stop.ID, stop.Name, fee))
	}
	return out, nil
}

// findRouteForStop returns the route whose stop list contains stop. When the
// stop sits on several routes, prefer wins if it is one of them; otherwise the
// route with the smallest id is used.
func findRouteForStop(ctx context.Context, s *store.Store, org string, stop *models.Stop, prefer *string) (*models.Route, models.StopRef, error) {
	var (
		found *models.Route
		ref   models.StopRef
	)
	for r, err := range s.Routes.List(ctx, org) {
		if err != nil {
			return nil, models.StopRef{}, err
		}
		match, ok := r.StopFor(*stop)
		if !ok {
			continue
		}
		if prefer != nil && r.ID == *prefer {
			return r, match, nil
		}
		if found == nil {
			found, ref = r, match
		}
	}
	return found, ref, nil
}

// stopFee is the fee a student boarding at stop on route pays.
func stopFee(ref models.StopRef, stop *models.Stop) float64 {
	if ref.Fee > 0 {
		return ref.Fee
	}
	return stop.Fee
}
