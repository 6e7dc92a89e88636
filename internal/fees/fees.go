// Package fees keeps per-student balances: payments raise Paid, a fee cycle
// reset archives the payments and charges every student the current fee of
// their stop.
package fees

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
	"school_bus/internal/store"
)

const DefaultBatchSize = 450

type Ledger struct {
	store     *store.Store
	batchSize int
	now       func() time.Time
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{store: store.New(db), batchSize: DefaultBatchSize, now: time.Now}
}

// WithBatchSize overrides how many students a reset writes per transaction.
func (l *Ledger) WithBatchSize(n int) *Ledger {
	if n > 0 {
		l.batchSize = n
	}
	return l
}

// PaymentInput is one payment as entered by an admin. A zero Date means now.
type PaymentInput struct {
	Amount float64
	Date   time.Time
	Method string
	Note   string
}

// RecordPayment appends a payment and updates the student's balance. Once the
// balance is settled the student may travel; later fee changes never take
// that back within the cycle.
func (l *Ledger) RecordPayment(ctx context.Context, org, roll string, in PaymentInput) (*models.Payment, *models.Student, error) {
	if in.Amount <= 0 {
		return nil, nil, apperr.Validation("amount must be positive")
	}
	if in.Date.IsZero() {
		in.Date = l.now()
	}

	var (
		payment *models.Payment
		student *models.Student
	)
	err := l.store.Transaction(ctx, func(tx *store.Store) error {
		st, err := tx.Students.GetForUpdate(ctx, org, roll)
		if err != nil {
			return err
		}
		p := &models.Payment{
			RollNumber: roll,
			Amount:     in.Amount,
			Date:       in.Date,
			Method:     strings.TrimSpace(in.Method),
			Note:       in.Note,
		}
		if err := tx.Payments.Create(ctx, org, p); err != nil {
			return err
		}

		st.Paid += in.Amount
		st.Due = st.FeeAmount - st.Paid
		st.CanTravel = st.CanTravel || st.Due <= 0
		err = tx.Students.Update(ctx, org, roll, map[string]any{
			"paid":       st.Paid,
			"due":        st.Due,
			"can_travel": st.CanTravel,
		})
		if err != nil {
			return err
		}
		payment, student = p, st
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logrus.WithFields(logrus.Fields{
		"org_id":     org,
		"roll":       roll,
		"amount":     in.Amount,
		"due":        student.Due,
		"can_travel": student.CanTravel,
	}).Info("Payment recorded.")
	return payment, student, nil
}

// ResetReport summarizes a fee cycle reset.
type ResetReport struct {
	Students int   `json:"students"`
	Batches  int   `json:"batches"`
	Archived int64 `json:"archived_payments"`
}

// ResetFeeCycle starts a new fee cycle for the whole organization. Each
// student is charged the current fee of their route and stop (or keeps the
// stored fee when neither matches), loses the travel permission and has the
// payments of the closed cycle archived. Students are written in batches,
// one transaction each; re-running after a failure converges.
func (l *Ledger) ResetFeeCycle(ctx context.Context, org string) (ResetReport, error) {
	table, err := l.feeTable(ctx, org)
	if err != nil {
		return ResetReport{}, err
	}

	fees := map[string]float64{}
	for st, err := range l.store.Students.List(ctx, org) {
		if err != nil {
			return ResetReport{}, err
		}
		fees[st.RollNumber] = table.lookup(st)
	}
	rolls := make([]string, 0, len(fees))
	for roll := range fees {
		rolls = append(rolls, roll)
	}
	sort.Strings(rolls)

	report := ResetReport{Students: len(rolls)}
	now := l.now()
	for i, batch := range store.Chunk(rolls, l.batchSize) {
		var archived int64
		err := l.store.Transaction(ctx, func(tx *store.Store) error {
			// One statement per distinct fee inside the batch.
			byFee := map[float64][]string{}
			for _, roll := range batch {
				byFee[fees[roll]] = append(byFee[fees[roll]], roll)
			}
			for fee, group := range byFee {
				if _, err := tx.Students.UpdateWhere(ctx, org, resetFields(fee, now), store.In("roll_number", group)); err != nil {
					return err
				}
			}
			n, err := archivePayments(ctx, tx, org, now, store.In("roll_number", batch))
			archived = n
			return err
		})
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"org_id": org,
				"batch":  i,
			}).WithError(err).Error("Fee reset batch failed.")
			return report, err
		}
		report.Batches++
		report.Archived += archived
	}

	logrus.WithFields(logrus.Fields{
		"org_id":   org,
		"students": report.Students,
		"batches":  report.Batches,
		"archived": report.Archived,
	}).Info("Fee cycle reset.")
	return report, nil
}

// ResetStudent starts a new cycle for one student at its stored fee.
func (l *Ledger) ResetStudent(ctx context.Context, org, roll string) (*models.Student, error) {
	var out *models.Student
	now := l.now()
	err := l.store.Transaction(ctx, func(tx *store.Store) error {
		st, err := tx.Students.GetForUpdate(ctx, org, roll)
		if err != nil {
			return err
		}
		if err := tx.Students.Update(ctx, org, roll, resetFields(st.FeeAmount, now)); err != nil {
			return err
		}
		if _, err := archivePayments(ctx, tx, org, now, store.Eq("roll_number", roll)); err != nil {
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

func resetFields(fee float64, now time.Time) map[string]any {
	return map[string]any{
		"fee_amount":   fee,
		"paid":         0,
		"due":          fee,
		"can_travel":   false,
		"fee_reset_at": now,
	}
}

// archivePayments archives the open payments matching filter. Payments that
// are already archived keep their original archive time.
func archivePayments(ctx context.Context, tx *store.Store, org string, now time.Time, filter store.Filter) (int64, error) {
	return tx.Payments.UpdateWhere(ctx, org,
		map[string]any{"archived": true, "archived_at": now},
		filter,
		store.Eq("archived", false),
	)
}
