package fees

import (
	"context"
	"sort"

	"school_bus/internal/models"
	"school_bus/internal/store"
)

type Entry struct {
	models.Payment
	PaidToDate float64 `json:"paid_to_date"`
	Due        float64 `json:"due"`
}

// Statement is the current cycle of one student: open payments in date order
// with the running balance after each.
type Statement struct {
	RollNumber string  `json:"roll_number"`
	FeeAmount  float64 `json:"fee_amount"`
	Paid       float64 `json:"paid"`
	Due        float64 `json:"due"`
	CanTravel  bool    `json:"can_travel"`
	Entries    []Entry `json:"entries"`
}

func (l *Ledger) Statement(ctx context.Context, org, roll string) (*Statement, error) {
	st, err := l.store.Students.Get(ctx, org, roll)
	if err != nil {
		return nil, err
	}
	payments, err := l.store.Payments.All(ctx, org, store.Eq("roll_number", roll), store.Eq("archived", false))
	if err != nil {
		return nil, err
	}
	sortByDate(payments)

	out := &Statement{
		RollNumber: st.RollNumber,
		FeeAmount:  st.FeeAmount,
		Paid:       st.Paid,
		Due:        st.Due,
		CanTravel:  st.CanTravel,
		Entries:    make([]Entry, 0, len(payments)),
	}
	var paid float64
	for _, p := range payments {
		paid += p.Amount
		out.Entries = append(out.Entries, Entry{Payment: p, PaidToDate: paid, Due: st.FeeAmount - paid})
	}
	return out, nil
}

// History returns every payment of a student, archived ones included.
func (l *Ledger) History(ctx context.Context, org, roll string) ([]models.Payment, error) {
	if _, err := l.store.Students.Get(ctx, org, roll); err != nil {
		return nil, err
	}
	payments, err := l.store.Payments.All(ctx, org, store.Eq("roll_number", roll))
	if err != nil {
		return nil, err
	}
	sortByDate(payments)
	return payments, nil
}

func sortByDate(payments []models.Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		if payments[i].Date.Equal(payments[j].Date) {
			return payments[i].CreatedAt.Before(payments[j].CreatedAt)
		}
		return payments[i].Date.Before(payments[j].Date)
	})
}
