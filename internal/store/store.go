package store

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"school_bus/internal/apperr"
	"school_bus/internal/models"
)

// PageSize is the number of rows List fetches per round trip.
const PageSize = 500

// Record is implemented by every org scoped model.
type Record interface {
	KeyColumn() string
	RecordID() string
	SetRecordID(id string)
	SetOrgID(org string)
}

// Filter narrows a query.
type Filter func(*gorm.DB) *gorm.DB

// Eq filters on column == value. A nil value matches NULL.
func Eq(column string, value any) Filter {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause.Eq{Column: clause.Column{Name: column}, Value: value})
	}
}

// In filters on column being one of values. An empty set matches nothing.
func In(column string, values []string) Filter {
	return func(db *gorm.DB) *gorm.DB {
		if len(values) == 0 {
			return db.Where("1 = 0")
		}
		vals := make([]any, len(values))
		for i, v := range values {
			vals[i] = v
		}
		return db.Where(clause.IN{Column: clause.Column{Name: column}, Values: vals})
	}
}

// IsNull filters on column IS NULL.
func IsNull(column string) Filter { return Eq(column, nil) }

// Repo is the repository of one entity kind.
type Repo[T any, P interface {
	*T
	Record
}] struct {
	db   *gorm.DB
	kind string
}

func newRepo[T any, P interface {
	*T
	Record
}](db *gorm.DB, kind string) *Repo[T, P] {
	return &Repo[T, P]{db: db, kind: kind}
}

func (r *Repo[T, P]) keyColumn() string {
	return P(new(T)).KeyColumn()
}

func (r *Repo[T, P]) scoped(ctx context.Context, org string) *gorm.DB {
	return r.db.WithContext(ctx).Model(P(new(T))).Where("org_id = ?", org)
}

func (r *Repo[T, P]) byKey(ctx context.Context, org, id string) *gorm.DB {
	return r.scoped(ctx, org).Where(clause.Eq{Column: clause.Column{Name: r.keyColumn()}, Value: id})
}

// Create inserts e under org. An explicit id must be free; an empty id is
// generated for kinds keyed by "id" and rejected for the others.
func (r *Repo[T, P]) Create(ctx context.Context, org string, e P) error {
	if org == "" {
		return apperr.Validation("organization is required")
	}
	e.SetOrgID(org)
	if id := e.RecordID(); id != "" {
		exists, err := r.Exists(ctx, org, id)
		if err != nil {
			return err
		}
		if exists {
			return apperr.AlreadyExists("%s %q already exists", r.kind, id)
		}
	} else if r.keyColumn() == "id" {
		e.SetRecordID(uuid.NewString())
	} else {
		return apperr.Validation("%s requires %s", r.kind, r.keyColumn())
	}

	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.AlreadyExists("%s %q already exists", r.kind, e.RecordID())
		}
		return apperr.Upstream(err, "could not create %s", r.kind)
	}
	return nil
}

// Exists reports whether id is taken under org.
func (r *Repo[T, P]) Exists(ctx context.Context, org, id string) (bool, error) {
	var n int64
	if err := r.byKey(ctx, org, id).Count(&n).Error; err != nil {
		return false, apperr.Upstream(err, "could not look up %s", r.kind)
	}
	return n > 0, nil
}

// Get loads one record or fails with NotFound.
func (r *Repo[T, P]) Get(ctx context.Context, org, id string) (P, error) {
	return r.get(r.byKey(ctx, org, id), id)
}

// GetForUpdate is Get with a row lock when the database supports one. Use it
// inside Transaction for read-compare-write sequences.
func (r *Repo[T, P]) GetForUpdate(ctx context.Context, org, id string) (P, error) {
	return r.get(r.byKey(ctx, org, id).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *Repo[T, P]) get(q *gorm.DB, id string) (P, error) {
	if id == "" {
		return nil, apperr.Validation("%s id is required", r.kind)
	}
	var e T
	if err := q.First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("%s %q not found", r.kind, id)
		}
		return nil, apperr.Upstream(err, "could not load %s", r.kind)
	}
	return &e, nil
}

// Update merges fields into the record.
func (r *Repo[T, P]) Update(ctx context.Context, org, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.byKey(ctx, org, id).Updates(fields)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return apperr.AlreadyExists("%s update collides with an existing record", r.kind)
		}
		return apperr.Upstream(res.Error, "could not update %s", r.kind)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("%s %q not found", r.kind, id)
	}
	return nil
}

// UpdateWhere merges fields into every record matching filters and returns
// how many rows were written.
func (r *Repo[T, P]) UpdateWhere(ctx context.Context, org string, fields map[string]any, filters ...Filter) (int64, error) {
	q := r.scoped(ctx, org)
	for _, f := range filters {
		q = f(q)
	}
	res := q.Updates(fields)
	if res.Error != nil {
		return 0, apperr.Upstream(res.Error, "could not update %s records", r.kind)
	}
	return res.RowsAffected, nil
}

// Delete removes one record.
func (r *Repo[T, P]) Delete(ctx context.Context, org, id string) error {
	res := r.byKey(ctx, org, id).Delete(P(new(T)))
	if res.Error != nil {
		return apperr.Upstream(res.Error, "could not delete %s", r.kind)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("%s %q not found", r.kind, id)
	}
	return nil
}

// DeleteWhere removes every record matching filters.
func (r *Repo[T, P]) DeleteWhere(ctx context.Context, org string, filters ...Filter) (int64, error) {
	q := r.scoped(ctx, org)
	for _, f := range filters {
		q = f(q)
	}
	res := q.Delete(P(new(T)))
	if res.Error != nil {
		return 0, apperr.Upstream(res.Error, "could not delete %s records", r.kind)
	}
	return res.RowsAffected, nil
}

// Count returns the number of records matching filters.
func (r *Repo[T, P]) Count(ctx context.Context, org string, filters ...Filter) (int64, error) {
	q := r.scoped(ctx, org)
	for _, f := range filters {
		q = f(q)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, apperr.Upstream(err, "could not count %s records", r.kind)
	}
	return n, nil
}

// List lazily yields every record matching filters in key order. Iteration
// stops at the first error, which is yielded with a nil record.
func (r *Repo[T, P]) List(ctx context.Context, org string, filters ...Filter) iter.Seq2[P, error] {
	key := r.keyColumn()
	return func(yield func(P, error) bool) {
		last := ""
		for {
			q := r.scoped(ctx, org)
			for _, f := range filters {
				q = f(q)
			}
			if last != "" {
				q = q.Where(clause.Gt{Column: clause.Column{Name: key}, Value: last})
			}
			var page []T
			err := q.Order(clause.OrderByColumn{Column: clause.Column{Name: key}}).Limit(PageSize).Find(&page).Error
			if err != nil {
				yield(nil, apperr.Upstream(err, "could not list %s records", r.kind))
				return
			}
			for i := range page {
				if !yield(&page[i], nil) {
					return
				}
			}
			if len(page) < PageSize {
				return
			}
			last = P(&page[len(page)-1]).RecordID()
		}
	}
}

// All collects List into a slice.
func (r *Repo[T, P]) All(ctx context.Context, org string, filters ...Filter) ([]T, error) {
	var out []T
	for e, err := range r.List(ctx, org, filters...) {
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

// Store bundles the repositories over one database handle.
type Store struct {
	db       *gorm.DB
	Students *Repo[models.Student, *models.Student]
	Drivers  *Repo[models.Driver, *models.Driver]
	Buses    *Repo[models.Bus, *models.Bus]
	Routes   *Repo[models.Route, *models.Route]
	Stops    *Repo[models.Stop, *models.Stop]
	Payments *Repo[models.Payment, *models.Payment]
}

func New(db *gorm.DB) *Store {
	return &Store{
		db:       db,
		Students: newRepo[models.Student](db, "student"),
		Drivers:  newRepo[models.Driver](db, "driver"),
		Buses:    newRepo[models.Bus](db, "bus"),
		Routes:   newRepo[models.Route](db, "route"),
		Stops:    newRepo[models.Stop](db, "stop"),
		Payments: newRepo[models.Payment](db, "payment"),
	}
}

// DB returns the handle the store runs on (a transaction inside Transaction).
func (s *Store) DB() *gorm.DB { return s.db }

// Transaction runs fn with a store bound to a single database transaction.
// fn's error rolls the transaction back and is returned unchanged.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
	if err != nil && apperr.KindOf(err) == apperr.KindInternal {
		return apperr.Upstream(err, "transaction failed")
	}
	return err
}

// Chunk splits items into consecutive batches of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
