package fees

import (
	"context"
	"strings"

	"school_bus/internal/models"
)

type idKey struct{ route, stop string }

type nameKey struct{ route, stop string }

// feeTable is the fee charged per (route, stop) pair. Pairs are indexed by
// id where the route entry carries a stop id, and always by lowercased name.
type feeTable struct {
	byID   map[idKey]float64
	byName map[nameKey]float64
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (l *Ledger) feeTable(ctx context.Context, org string) (feeTable, error) {
	t := feeTable{byID: map[idKey]float64{}, byName: map[nameKey]float64{}}

	stops, err := l.store.Stops.All(ctx, org)
	if err != nil {
		return t, err
	}
	stopByID := make(map[string]models.Stop, len(stops))
	stopByName := make(map[string]models.Stop, len(stops))
	for _, s := range stops {
		stopByID[s.ID] = s
		if _, dup := stopByName[normalize(s.Name)]; !dup {
			stopByName[normalize(s.Name)] = s
		}
	}

	for r, err := range l.store.Routes.List(ctx, org) {
		if err != nil {
			return t, err
		}
		for _, ref := range r.Stops {
			name, fee := ref.Name, ref.Fee
			stop, ok := stopByID[ref.ID]
			if ref.Legacy() {
				stop, ok = stopByName[normalize(ref.Name)]
			}
			if ok {
				name = stop.Name
				if fee == 0 {
					fee = stop.Fee
				}
			}
			if !ref.Legacy() {
				t.byID[idKey{r.ID, ref.ID}] = fee
			}
			key := nameKey{normalize(r.Name), normalize(name)}
			if _, dup := t.byName[key]; !dup {
				t.byName[key] = fee
			}
		}
	}
	return t, nil
}

// lookup returns the current fee of st, falling back to its stored fee.
func (t feeTable) lookup(st *models.Student) float64 {
	if st.RouteID != nil && st.BusStopID != nil {
		if fee, ok := t.byID[idKey{*st.RouteID, *st.BusStopID}]; ok {
			return fee
		}
	}
	if fee, ok := t.byName[nameKey{normalize(st.RouteName), normalize(st.BusStop)}]; ok {
		return fee
	}
	return st.FeeAmount
}
