// Package validator normalizes candidate reservations before they are
// written.  It is pure: no I/O, no clock, and running Normalize on its own
// output yields the same value.
package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/fiche-cuisine/internal/model"
)

// Length limits and defaults for reservation fields.
const (
	MaxClientName   = 200
	MaxDrinkFormula = 200
	MaxNotes        = 4000
	MaxItemName     = 200

	MinPax = 1
	MaxPax = 500

	DefaultClientName = "Client"
)

// ItemInput is a reservation line item as received from a caller.  The
// category may come in Category or, for older clients, in Type.
type ItemInput struct {
	Category string `json:"category"`
	Type     string `json:"type,omitempty"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

func (i ItemInput) categoryLabel() string {
	if strings.TrimSpace(i.Category) != "" {
		return i.Category
	}
	return i.Type
}

// Candidate is an unvalidated reservation.  Pax is untyped because callers
// may send numbers, numeric strings or nothing at all.
type Candidate struct {
	ClientName   string
	Pax          any
	ServiceDate  string
	ArrivalTime  string
	DrinkFormula string
	Notes        string
	Status       string
	Items        []ItemInput
}

// FromReservation converts a stored reservation back into a candidate so
// that patches can be re-validated against the full resulting state.
func FromReservation(r model.Reservation) Candidate {
	items := make([]ItemInput, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, ItemInput{Category: string(it.Category), Name: it.Name, Quantity: it.Quantity})
	}
	return Candidate{
		ClientName:   r.ClientName,
		Pax:          r.Pax,
		ServiceDate:  r.ServiceDate,
		ArrivalTime:  r.ArrivalTime,
		DrinkFormula: r.DrinkFormula,
		Notes:        r.Notes,
		Status:       string(r.Status),
		Items:        items,
	}
}

// Normalize applies the reservation rules in order: text clamping, pax
// clamping, item filtering and the per-category capacity check.  The
// returned reservation has no ID or timestamps.
func Normalize(c Candidate) (model.Reservation, error) {
	verr := &ValidationError{}

	res := model.Reservation{
		ClientName:   Truncate(strings.TrimSpace(c.ClientName), MaxClientName),
		DrinkFormula: Truncate(strings.TrimSpace(c.DrinkFormula), MaxDrinkFormula),
		Notes:        Truncate(strings.TrimSpace(c.Notes), MaxNotes),
		Pax:          NormalizePax(c.Pax),
	}
	if res.ClientName == "" {
		res.ClientName = DefaultClientName
	}

	if d, err := ParseServiceDate(c.ServiceDate); err != nil {
		verr.Add("service_date", err.Error())
	} else {
		res.ServiceDate = d
	}
	if t, err := ParseArrivalTime(c.ArrivalTime); err != nil {
		verr.Add("arrival_time", err.Error())
	} else {
		res.ArrivalTime = t
	}
	if st, err := ParseStatus(c.Status); err != nil {
		verr.Add("status", err.Error())
	} else {
		res.Status = st
	}

	items := make([]model.ReservationItem, 0, len(c.Items))
	for i, in := range c.Items {
		name := Truncate(strings.TrimSpace(in.Name), MaxItemName)
		if name == "" || in.Quantity <= 0 {
			continue
		}
		cat, ok := ParseCategory(in.categoryLabel())
		if !ok {
			verr.Add(fmt.Sprintf("items[%d].category", i), fmt.Sprintf("unknown category %q", in.categoryLabel()))
			continue
		}
		items = append(items, model.ReservationItem{Category: cat, Name: name, Quantity: in.Quantity, Position: len(items)})
	}
	res.Items = items

	if verr.HasErrors() {
		return model.Reservation{}, verr
	}
	if err := CheckCapacity(res.Pax, res.Items); err != nil {
		return model.Reservation{}, err
	}
	return res, nil
}

// CheckCapacity fails with a *CapacityExceededError when the quantities of
// any category add up to more than pax.
func CheckCapacity(pax int, items []model.ReservationItem) error {
	totals := CategoryTotals(items)
	var over []CategoryTotal
	for _, cat := range model.Categories {
		if totals[cat] > pax {
			over = append(over, CategoryTotal{Category: cat, Total: totals[cat]})
		}
	}
	if len(over) > 0 {
		return &CapacityExceededError{Pax: pax, Categories: over}
	}
	return nil
}

// CategoryTotals sums item quantities per category.
func CategoryTotals(items []model.ReservationItem) map[model.Category]int {
	totals := make(map[model.Category]int, len(model.Categories))
	for _, it := range items {
		totals[it.Category] += it.Quantity
	}
	return totals
}

// NormalizePax converts raw input to a cover count clamped to [1, 500].
// Missing or non-numeric input yields 1.
func NormalizePax(raw any) int {
	n := MinPax
	switch v := raw.(type) {
	case int:
		n = v
	case int64:
		n = clampInt64(v)
	case float64:
		if math.IsNaN(v) {
			return MinPax
		}
		n = clampInt64(int64(math.Max(math.Min(v, MaxPax+1), MinPax-1)))
	case json.Number:
		if i, err := v.Int64(); err == nil {
			n = clampInt64(i)
		} else if f, err := v.Float64(); err == nil {
			return NormalizePax(f)
		}
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.Atoi(s); err == nil {
			n = i
		} else if f, err := strconv.ParseFloat(s, 64); err == nil {
			return NormalizePax(f)
		}
	}
	return ClampPax(n)
}

// ClampPax bounds n to [1, 500].
func ClampPax(n int) int {
	if n < MinPax {
		return MinPax
	}
	if n > MaxPax {
		return MaxPax
	}
	return n
}

func clampInt64(v int64) int {
	if v < MinPax {
		return MinPax
	}
	if v > MaxPax {
		return MaxPax
	}
	return int(v)
}

// Truncate shortens s to at most max runes.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// ParseServiceDate accepts "YYYY-MM-DD", optionally followed by a time part,
// and returns the date part.
func ParseServiceDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("is required")
	}
	if len(s) > 10 {
		s = s[:10]
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return "", fmt.Errorf("must be a date in YYYY-MM-DD format")
	}
	return d.Format(time.DateOnly), nil
}

// ParseArrivalTime accepts "HH:MM" or "HH:MM:SS" and returns "HH:MM".
func ParseArrivalTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("is required")
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04"), nil
		}
	}
	return "", fmt.Errorf("must be a time in HH:MM format")
}

// ParseStatus validates a status; empty input means draft.
func ParseStatus(s string) (model.Status, error) {
	switch st := model.Status(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return model.StatusDraft, nil
	case model.StatusDraft, model.StatusConfirmed, model.StatusPrinted:
		return st, nil
	}
	return "", fmt.Errorf("must be one of draft, confirmed, printed")
}

var categoryAliases = map[string]model.Category{
	"starter":  model.CategoryStarter,
	"starters": model.CategoryStarter,
	"entree":   model.CategoryStarter,
	"entrees":  model.CategoryStarter,
	"main":     model.CategoryMain,
	"mains":    model.CategoryMain,
	"plat":     model.CategoryMain,
	"plats":    model.CategoryMain,
	"dessert":  model.CategoryDessert,
	"desserts": model.CategoryDessert,
}

// ParseCategory resolves a category label, accepting the French labels
// printed on kitchen sheets.
func ParseCategory(s string) (model.Category, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("é", "e", "É", "e").Replace(key)
	cat, ok := categoryAliases[key]
	return cat, ok
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed input, field by field.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: msg}}}
}

// Add records a field failure.
func (e *ValidationError) Add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool { return len(e.Fields) > 0 }

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// CategoryTotal is the summed quantity of one category.
type CategoryTotal struct {
	Category model.Category `json:"category"`
	Total    int            `json:"total"`
}

// CapacityExceededError is returned when item quantities of a category
// exceed the reservation's pax.
type CapacityExceededError struct {
	Pax        int
	Categories []CategoryTotal
}

func (e *CapacityExceededError) Error() string {
	cats := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		cats = append(cats, fmt.Sprintf("%s=%d", c.Category, c.Total))
	}
	sort.Strings(cats)
	return fmt.Sprintf("quantity exceeds capacity of %d pax: %s", e.Pax, strings.Join(cats, ", "))
}
