// Package queue defines message payloads exchanged over the message broker.
package queue

// ReservationsImportedQueue is the durable queue carrying import events.
const ReservationsImportedQueue = "reservations.imported"

// ReservationsImportedEvent is published after a Zenchef sync created at
// least one reservation. It carries enough for an audit trail without a
// database lookup.
type ReservationsImportedEvent struct {
    IdempotencyKey string            `json:"idempotency_key,omitempty"`
    FromDate       string            `json:"from_date"`
    ToDate         string            `json:"to_date"`
    Count          int               `json:"count"`
    Reservations   []ImportedBooking `json:"reservations"`
    ImportedAt     string            `json:"imported_at"`
}

// ImportedBooking is one reservation created by a sync.
type ImportedBooking struct {
    ID          string `json:"id"`
    ClientName  string `json:"client_name"`
    ServiceDate string `json:"service_date"`
    ArrivalTime string `json:"arrival_time"`
    Pax         int    `json:"pax"`
}
