// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrDuplicateSlot indicates that another reservation already
// occupies the same (date, time, client, pax) slot, while ErrNotFound
// signals that the requested row does not exist.
package repository

import "errors"

// ErrNotFound is returned when a reservation, menu item or setting does
// not exist. Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrDuplicateSlot is returned when a write would create a second
// reservation with the same service date, arrival time, client name and
// pax. It is derived from the storage-level unique constraint. Handlers
// should translate this into an HTTP 409 response.
var ErrDuplicateSlot = errors.New("duplicate reservation slot")
