package model

import "time"

// Status is the lifecycle state of a reservation's kitchen sheet.
type Status string

const (
    StatusDraft     Status = "draft"
    StatusConfirmed Status = "confirmed"
    StatusPrinted   Status = "printed"
)

// Category groups dishes on the kitchen sheet.  It is shared by menu
// items and reservation line items.
type Category string

const (
    CategoryStarter Category = "starter"
    CategoryMain    Category = "main"
    CategoryDessert Category = "dessert"
)

// Categories lists the categories in kitchen-sheet order.
var Categories = []Category{CategoryStarter, CategoryMain, CategoryDessert}

// Reservation records a group booking together with the dishes ordered
// for it.  The tuple (ServiceDate, ArrivalTime, ClientName, Pax) forms
// the reservation's slot and is unique across all rows.
//
// Fields:
//  ID           – opaque uuid.
//  ClientName   – display name of the client or group (≤ 200 chars).
//  Pax          – number of covers, 1..500.
//  ServiceDate  – calendar date, "YYYY-MM-DD".
//  ArrivalTime  – arrival time of day, "HH:MM".
//  DrinkFormula – drinks package (≤ 200 chars).
//  Notes        – free text for the kitchen (≤ 4000 chars).
//  Status       – draft, confirmed or printed.
//  Items        – ordered dishes; owned by the reservation.
type Reservation struct {
    ID           string            `db:"id" json:"id"`
    ClientName   string            `db:"client_name" json:"client_name"`
    Pax          int               `db:"pax" json:"pax"`
    ServiceDate  string            `db:"service_date" json:"service_date"`
    ArrivalTime  string            `db:"arrival_time" json:"arrival_time"`
    DrinkFormula string            `db:"drink_formula" json:"drink_formula"`
    Notes        string            `db:"notes" json:"notes"`
    Status       Status            `db:"status" json:"status"`
    CreatedAt    time.Time         `db:"created_at" json:"created_at"`
    UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
    Items        []ReservationItem `db:"-" json:"items"`
}

// Slot returns the reservation's uniqueness tuple.
func (r *Reservation) Slot() Slot {
    return Slot{ServiceDate: r.ServiceDate, ArrivalTime: r.ArrivalTime, ClientName: r.ClientName, Pax: r.Pax}
}

// Slot is the (service_date, arrival_time, client_name, pax) tuple that
// identifies a reservation for de-duplication.
type Slot struct {
    ServiceDate string
    ArrivalTime string
    ClientName  string
    Pax         int
}

// ReservationItem is one ordered dish of a reservation.
type ReservationItem struct {
    ID            string   `db:"id" json:"id,omitempty"`
    ReservationID string   `db:"reservation_id" json:"-"`
    Category      Category `db:"category" json:"category"`
    Name          string   `db:"name" json:"name"`
    Quantity      int      `db:"quantity" json:"quantity"`
    Position      int      `db:"position" json:"-"`
}

// ItemsByCategory splits items into the kitchen-sheet sections, keeping
// their stored order inside each section.
func ItemsByCategory(items []ReservationItem) map[Category][]ReservationItem {
    out := make(map[Category][]ReservationItem, len(Categories))
    for _, it := range items {
        out[it.Category] = append(out[it.Category], it)
    }
    return out
}
