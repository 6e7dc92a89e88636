package assignment

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
	"school_bus/internal/seats"
	"school_bus/internal/store"
)

// DefaultBatchSize caps the number of students written per resync batch.
const DefaultBatchSize = 450

// Coordinator applies reference changes and their compensating writes.
type Coordinator struct {
	store     *store.Store
	batchSize int
}

func New(db *gorm.DB) *Coordinator {
	return &Coordinator{store: store.New(db), batchSize: DefaultBatchSize}
}

// WithBatchSize overrides the resync batch size.
func (c *Coordinator) WithBatchSize(n int) *Coordinator {
	if n > 0 {
		c.batchSize = n
	}
	return c
}

// RefUpdate is a requested change of one reference. A zero RefUpdate leaves
// the reference alone; Present with a nil ID unassigns it.
type RefUpdate struct {
	Present bool
	ID      *string
}

// SetRef builds a RefUpdate from a client supplied id; "" unassigns.
func SetRef(id string) RefUpdate {
	return RefUpdate{Present: true, ID: models.Ref(id)}
}

// syncPlan is the follow-up work of a committed reference swap: routes whose
// students must be resynced and buses whose seat counters must be recomputed.
type syncPlan struct {
	routes []string
	buses  []string
}

func (p *syncPlan) merge(o syncPlan) {
	p.routes = append(p.routes, o.routes...)
	p.buses = append(p.buses, o.buses...)
}

func (p syncPlan) empty() bool { return len(p.routes) == 0 && len(p.buses) == 0 }

// apply resyncs the planned routes, then recalculates every bus that gained
// or lost riders.
func (c *Coordinator) apply(ctx context.Context, org string, plan syncPlan) error {
	if plan.empty() {
		return nil
	}
	buses := newSet(plan.buses...)
	for _, routeID := range newSet(plan.routes...).sorted() {
		touched, err := c.resyncRoute(ctx, org, routeID)
		if err != nil {
			return err
		}
		buses.add(touched...)
	}

	ledger := seats.New(c.store.DB())
	for _, busID := range buses.sorted() {
		avail, err := ledger.Recalculate(ctx, org, busID)
		if apperr.KindOf(err) == apperr.KindNotFound {
			continue
		}
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"org_id":      org,
			"bus_id":      busID,
			"avail_seats": avail,
		}).Debug("Recalculated seats after reassignment.")
	}
	return nil
}

// refValue turns an optional reference into a column value.
func refValue(ref *string) any {
	if ref == nil {
		return nil
	}
	return *ref
}

type set map[string]struct{}

func newSet(vals ...string) set {
	s := set{}
	s.add(vals...)
	return s
}

func (s set) add(vals ...string) {
	for _, v := range vals {
		if v != "" {
			s[v] = struct{}{}
		}
	}
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
