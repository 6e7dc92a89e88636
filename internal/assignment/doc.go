// Package assignment keeps the cross references between drivers, buses,
// routes, stops and students consistent.
//
// Four pairs are maintained in both directions:
//
//	driver.assigned_bus      <-> bus.driver_id
//	route.assigned_bus       <-> bus.route_id
//	stop.assigned_students   <-> student.bus_stop_id
//	route's bus              ->  bus_id/bus_number of the route's students
//
// Every operation validates all counterparts before it writes anything and
// performs the reference swap inside one transaction, so a rejected request
// leaves no partial state behind. Moving the students of a route to a new bus
// can touch thousands of rows; that resync runs after the swap commits, in
// batches of at most BatchSize students, each batch in its own transaction.
// The resync computes absolute values from the route, so re-running it after
// a failure converges (ResyncRoute is exposed as the repair entry point).
package assignment
