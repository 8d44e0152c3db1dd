package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/fiche-cuisine/internal/database"
	"github.com/iliyamo/fiche-cuisine/internal/model"
	"github.com/iliyamo/fiche-cuisine/internal/validator"
)

const reservationColumns = `id, client_name, pax, service_date, arrival_time, drink_formula, notes, status, created_at, updated_at`

// ReservationRepo provides CRUD operations for reservations and their
// items. Every write runs the validator first and then performs all of
// its statements inside one transaction, so a reservation is never seen
// with its parent row updated but its items stale. Slot uniqueness and
// per-category capacity are also checked by the database inside that
// transaction.
type ReservationRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sqlx.DB) *ReservationRepo {
	return &ReservationRepo{db: db, now: time.Now}
}

// Patch describes a partial update. Nil fields are left untouched. A
// non-nil Items replaces the whole item set, an empty slice clears it.
type Patch struct {
	ClientName   *string
	Pax          any
	ServiceDate  *string
	ArrivalTime  *string
	DrinkFormula *string
	Notes        *string
	Status       *string
	Items        *[]validator.ItemInput
}

// SlotOverrides changes the slot of a duplicated reservation.
type SlotOverrides struct {
	ClientName  *string
	ServiceDate *string
	ArrivalTime *string
}

// ListFilter narrows List results. Empty fields do not filter.
type ListFilter struct {
	Query       string
	ServiceDate string
	Page        Page
}

// Create validates the candidate and inserts it with its items.
func (r *ReservationRepo) Create(ctx context.Context, c validator.Candidate) (*model.Reservation, error) {
	res, err := validator.Normalize(c)
	if err != nil {
		return nil, err
	}
	now := r.timestamp()
	res.ID = uuid.NewString()
	res.CreatedAt, res.UpdatedAt = now, now

	err = database.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := insertReservationTx(ctx, tx, &res); err != nil {
			return err
		}
		if err := insertItemsTx(ctx, tx, res.ID, res.Items); err != nil {
			return err
		}
		return verifyCapacityTx(ctx, tx, res.ID)
	})
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return r.GetByID(ctx, res.ID)
}

// GetByID returns a reservation with its items or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	return getReservation(ctx, r.db, id)
}

// Update applies the patch and re-validates the resulting reservation.
// When the patch leaves items untouched the capacity check runs against
// the stored items, so lowering pax below an existing category total is
// rejected as well.
func (r *ReservationRepo) Update(ctx context.Context, id string, p Patch) (*model.Reservation, error) {
	err := database.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		cur, err := getReservation(ctx, tx, id)
		if err != nil {
			return err
		}
		cand := applyPatch(validator.FromReservation(*cur), p)
		res, err := validator.Normalize(cand)
		if err != nil {
			return err
		}

		const q = `UPDATE reservations
                   SET client_name = ?, pax = ?, service_date = ?, arrival_time = ?,
                       drink_formula = ?, notes = ?, status = ?, updated_at = ?
                   WHERE id = ?`
		if _, err := tx.ExecContext(ctx, tx.Rebind(q),
			res.ClientName, res.Pax, res.ServiceDate, res.ArrivalTime,
			res.DrinkFormula, res.Notes, string(res.Status), r.timestamp(), id,
		); err != nil {
			return err
		}
		if p.Items != nil {
			// delete-all-then-insert, same transaction as the parent update
			if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM reservation_items WHERE reservation_id = ?`), id); err != nil {
				return err
			}
			if err := insertItemsTx(ctx, tx, id, res.Items); err != nil {
				return err
			}
		}
		return verifyCapacityTx(ctx, tx, id)
	})
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return r.GetByID(ctx, id)
}

// Delete removes a reservation and its items.
func (r *ReservationRepo) Delete(ctx context.Context, id string) error {
	return database.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM reservation_items WHERE reservation_id = ?`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM reservations WHERE id = ?`), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Duplicate copies a reservation and its items into a new reservation.
// Without overrides the copy occupies the same slot and fails with
// ErrDuplicateSlot.
func (r *ReservationRepo) Duplicate(ctx context.Context, id string, o SlotOverrides) (*model.Reservation, error) {
	src, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cand := validator.FromReservation(*src)
	if o.ClientName != nil {
		cand.ClientName = *o.ClientName
	}
	if o.ServiceDate != nil {
		cand.ServiceDate = *o.ServiceDate
	}
	if o.ArrivalTime != nil {
		cand.ArrivalTime = *o.ArrivalTime
	}
	return r.Create(ctx, cand)
}

// List returns reservations matching the filter, newest service date
// first and by arrival time within a day.
func (r *ReservationRepo) List(ctx context.Context, f ListFilter) (*PageResult[model.Reservation], error) {
	var (
		where []string
		args  []interface{}
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, `LOWER(client_name) LIKE ? ESCAPE '!'`)
		args = append(args, "%"+escapeLike(strings.ToLower(q))+"%")
	}
	if f.ServiceDate != "" {
		where = append(where, `service_date = ?`)
		args = append(args, f.ServiceDate)
	}
	cond := ""
	if len(where) > 0 {
		cond = "WHERE " + strings.Join(where, " AND ")
	}
	return r.page(ctx, cond, args, `service_date DESC, arrival_time ASC`, f.Page)
}

// ListUpcoming returns reservations whose service date and arrival time
// are at or after now, soonest first. now must already be expressed in
// the restaurant's timezone.
func (r *ReservationRepo) ListUpcoming(ctx context.Context, now time.Time, p Page) (*PageResult[model.Reservation], error) {
	d, hm := now.Format(time.DateOnly), now.Format("15:04")
	cond := `WHERE (service_date > ? OR (service_date = ? AND arrival_time >= ?))`
	return r.page(ctx, cond, []interface{}{d, d, hm}, `service_date ASC, arrival_time ASC`, p)
}

// ListPast returns reservations strictly before now, most recent first.
func (r *ReservationRepo) ListPast(ctx context.Context, now time.Time, p Page) (*PageResult[model.Reservation], error) {
	d, hm := now.Format(time.DateOnly), now.Format("15:04")
	cond := `WHERE (service_date < ? OR (service_date = ? AND arrival_time < ?))`
	return r.page(ctx, cond, []interface{}{d, d, hm}, `service_date DESC, arrival_time DESC`, p)
}

// ListByDate returns every reservation of a service day by arrival time.
func (r *ReservationRepo) ListByDate(ctx context.Context, date string) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE service_date = ? ORDER BY arrival_time ASC, client_name ASC`
	var rows []model.Reservation
	if err := sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(q), date); err != nil {
		return nil, err
	}
	if err := attachItems(ctx, r.db, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// FindBySlot returns the reservation occupying the slot, or ErrNotFound.
func (r *ReservationRepo) FindBySlot(ctx context.Context, s model.Slot) (*model.Reservation, error) {
	id, err := findSlotTx(ctx, r.db, s)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// InsertImported stores an already normalized reservation coming from an
// external feed, in its own transaction. It returns (nil, nil) when the
// slot is already taken and ErrDuplicateSlot when the unique constraint
// rejected the insert after the existence check passed.
func (r *ReservationRepo) InsertImported(ctx context.Context, res model.Reservation) (*model.Reservation, error) {
	now := r.timestamp()
	res.ID = uuid.NewString()
	res.CreatedAt, res.UpdatedAt = now, now
	exists := false
	err := database.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := findSlotTx(ctx, tx, res.Slot()); err == nil {
			exists = true
			return nil
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := insertReservationTx(ctx, tx, &res); err != nil {
			return err
		}
		if err := insertItemsTx(ctx, tx, res.ID, res.Items); err != nil {
			return err
		}
		return verifyCapacityTx(ctx, tx, res.ID)
	})
	if err != nil {
		return nil, mapWriteErr(err)
	}
	if exists {
		return nil, nil
	}
	return &res, nil
}

// Count returns the number of stored reservations.
func (r *ReservationRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM reservations`)
	return n, err
}

func (r *ReservationRepo) page(ctx context.Context, cond string, args []interface{}, order string, p Page) (*PageResult[model.Reservation], error) {
	p = p.normalized()
	out := &PageResult[model.Reservation]{Items: []model.Reservation{}, Page: p.Number, PageSize: p.Size}

	if err := r.db.GetContext(ctx, &out.Total, r.db.Rebind(`SELECT COUNT(*) FROM reservations `+cond), args...); err != nil {
		return nil, err
	}
	q := `SELECT ` + reservationColumns + ` FROM reservations ` + cond + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	pageArgs := append(append([]interface{}{}, args...), p.Size, p.offset())
	if err := sqlx.SelectContext(ctx, r.db, &out.Items, r.db.Rebind(q), pageArgs...); err != nil {
		return nil, err
	}
	if err := attachItems(ctx, r.db, out.Items); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ReservationRepo) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(string) string
}

func getReservation(ctx context.Context, q queryer, id string) (*model.Reservation, error) {
	var res model.Reservation
	err := sqlx.GetContext(ctx, q, &res, q.Rebind(`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rows := []model.Reservation{res}
	if err := attachItems(ctx, q, rows); err != nil {
		return nil, err
	}
	return &rows[0], nil
}

// attachItems loads the items of all given reservations in a single query.
func attachItems(ctx context.Context, q queryer, rows []model.Reservation) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rows))
	index := make(map[string]int, len(rows))
	for i := range rows {
		rows[i].Items = []model.ReservationItem{}
		ids = append(ids, rows[i].ID)
		index[rows[i].ID] = i
	}
	query, args, err := sqlx.In(`SELECT id, reservation_id, category, name, quantity, position
                                 FROM reservation_items
                                 WHERE reservation_id IN (?)
                                 ORDER BY reservation_id, position, id`, ids)
	if err != nil {
		return err
	}
	var items []model.ReservationItem
	if err := sqlx.SelectContext(ctx, q, &items, q.Rebind(query), args...); err != nil {
		return err
	}
	for _, it := range items {
		if i, ok := index[it.ReservationID]; ok {
			rows[i].Items = append(rows[i].Items, it)
		}
	}
	return nil
}

func findSlotTx(ctx context.Context, q queryer, s model.Slot) (string, error) {
	const query = `SELECT id FROM reservations
                   WHERE service_date = ? AND arrival_time = ? AND client_name = ? AND pax = ?`
	var id string
	err := sqlx.GetContext(ctx, q, &id, q.Rebind(query), s.ServiceDate, s.ArrivalTime, s.ClientName, s.Pax)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

func insertReservationTx(ctx context.Context, tx *sqlx.Tx, res *model.Reservation) error {
	q := `INSERT INTO reservations (` + reservationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, tx.Rebind(q),
		res.ID, res.ClientName, res.Pax, res.ServiceDate, res.ArrivalTime,
		res.DrinkFormula, res.Notes, string(res.Status), res.CreatedAt, res.UpdatedAt,
	)
	return err
}

// insertItemsTx inserts all items in a single statement. Passing an empty
// slice has no effect.
func insertItemsTx(ctx context.Context, tx *sqlx.Tx, reservationID string, items []model.ReservationItem) error {
	if len(items) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO reservation_items (id, reservation_id, category, name, quantity, position) VALUES `)
	args := make([]interface{}, 0, len(items)*6)
	for i, it := range items {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, uuid.NewString(), reservationID, string(it.Category), it.Name, it.Quantity, i)
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(b.String()), args...)
	return err
}

// verifyCapacityTx re-checks the per-category totals against pax with the
// rows as the transaction sees them.
func verifyCapacityTx(ctx context.Context, tx *sqlx.Tx, reservationID string) error {
	const q = `SELECT i.category AS category, SUM(i.quantity) AS total, r.pax AS pax
               FROM reservation_items i
               JOIN reservations r ON r.id = i.reservation_id
               WHERE i.reservation_id = ?
               GROUP BY i.category, r.pax
               HAVING SUM(i.quantity) > r.pax
               ORDER BY i.category`
	var rows []struct {
		Category model.Category `db:"category"`
		Total    int            `db:"total"`
		Pax      int            `db:"pax"`
	}
	if err := sqlx.SelectContext(ctx, tx, &rows, tx.Rebind(q), reservationID); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	capErr := &validator.CapacityExceededError{Pax: rows[0].Pax}
	for _, row := range rows {
		capErr.Categories = append(capErr.Categories, validator.CategoryTotal{Category: row.Category, Total: row.Total})
	}
	return capErr
}

func applyPatch(c validator.Candidate, p Patch) validator.Candidate {
	if p.ClientName != nil {
		c.ClientName = *p.ClientName
	}
	if p.Pax != nil {
		c.Pax = p.Pax
	}
	if p.ServiceDate != nil {
		c.ServiceDate = *p.ServiceDate
	}
	if p.ArrivalTime != nil {
		c.ArrivalTime = *p.ArrivalTime
	}
	if p.DrinkFormula != nil {
		c.DrinkFormula = *p.DrinkFormula
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Items != nil {
		c.Items = *p.Items
	}
	return c
}

func mapWriteErr(err error) error {
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateSlot, err)
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
