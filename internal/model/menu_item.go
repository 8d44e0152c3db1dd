package model

// MenuItem is a dish of the restaurant catalogue that can be picked when
// filling a reservation's items.  Inactive items are hidden from search.
type MenuItem struct {
    ID       string   `db:"id" json:"id"`
    Name     string   `db:"name" json:"name"`
    Category Category `db:"category" json:"category"`
    Active   bool     `db:"active" json:"active"`
}
