// Package service holds the application workflows that span several
// repositories or external systems.
package service

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    log "github.com/sirupsen/logrus"

    "github.com/iliyamo/fiche-cuisine/internal/model"
    q "github.com/iliyamo/fiche-cuisine/internal/queue"
    "github.com/iliyamo/fiche-cuisine/internal/repository"
    "github.com/iliyamo/fiche-cuisine/internal/validator"
    "github.com/iliyamo/fiche-cuisine/internal/zenchef"
)

// Import defaults.
const (
    DefaultPerPage     = 250
    ImportPaxThreshold = 10 // imported only when strictly above
    ImportDrink        = "Sans alcool"
    ImportNotes        = "Import Zenchef"
    ImportDefaultName  = "Groupe"
)

// ErrSettingsMissing is returned when the Zenchef credentials are not
// configured.
var ErrSettingsMissing = errors.New("zenchef settings missing: api_token and restaurant_id are required")

// Source lists upstream reservations page by page.
type Source interface {
    FetchPage(ctx context.Context, creds zenchef.Credentials, q zenchef.PageQuery) ([]zenchef.Reservation, error)
}

// ImportStore persists imported reservations.
type ImportStore interface {
    InsertImported(ctx context.Context, res model.Reservation) (*model.Reservation, error)
}

// Ledger records idempotency keys.
type Ledger interface {
    Claim(ctx context.Context, key string) (repository.ClaimResult, error)
    Release(ctx context.Context, key string) error
}

// SyncRequest describes one sync call. Credentials are read by the caller.
type SyncRequest struct {
    Credentials    model.ZenchefCredentials
    FromDate       string
    ToDate         string
    PerPage        int
    IdempotencyKey string
}

// SyncResult is returned to the caller of a sync.
type SyncResult struct {
    Created    []q.ImportedBooking `json:"created"`
    Count      int                 `json:"count"`
    FromDate   string              `json:"fromDate"`
    ToDate     string              `json:"toDate"`
    Idempotent bool                `json:"idempotent,omitempty"`
}

// SyncService imports large group reservations from Zenchef.
type SyncService struct {
    source    Source
    store     ImportStore
    ledger    Ledger
    publisher EventPublisher
    loc       *time.Location
    now       func() time.Time
}

// NewSyncService wires a SyncService. publisher may be nil and loc
// defaults to UTC.
func NewSyncService(source Source, store ImportStore, ledger Ledger, publisher EventPublisher, loc *time.Location) *SyncService {
    if loc == nil {
        loc = time.UTC
    }
    return &SyncService{source: source, store: store, ledger: ledger, publisher: publisher, loc: loc, now: time.Now}
}

// Sync pulls every page for the requested dates and stores the
// reservations above ImportPaxThreshold covers that are not already present.
// A key already claimed short-circuits with an empty idempotent result.
// Records stored before a failure stay stored. A failed run keeps its key
// once it has stored anything; a run that stored nothing releases the key
// so a retry with the same key runs again.
func (s *SyncService) Sync(ctx context.Context, req SyncRequest) (res *SyncResult, err error) {
    if !req.Credentials.Complete() {
        return nil, ErrSettingsMissing
    }

    out := &SyncResult{Created: []q.ImportedBooking{}}
    key := strings.TrimSpace(req.IdempotencyKey)
    if key != "" {
        claim, cerr := s.ledger.Claim(ctx, key)
        if cerr != nil {
            return nil, fmt.Errorf("claim idempotency key: %w", cerr)
        }
        if claim == repository.AlreadyClaimed {
            log.WithField("key", key).Info("zenchef sync: key already processed")
            return &SyncResult{Created: []q.ImportedBooking{}, FromDate: req.FromDate, ToDate: req.ToDate, Idempotent: true}, nil
        }
        defer func() {
            if err == nil {
                return
            }
            if len(out.Created) > 0 {
                log.WithError(err).WithFields(log.Fields{"key": key, "stored": len(out.Created)}).
                    Warn("zenchef sync: failed after storing records, keeping idempotency key")
                return
            }
            // the caller's context may be gone already
            if rerr := s.ledger.Release(context.WithoutCancel(ctx), key); rerr != nil {
                log.WithError(rerr).WithField("key", key).Error("zenchef sync: release idempotency key")
            }
        }()
    }

    from, to, err := s.dateRange(req.FromDate, req.ToDate)
    if err != nil {
        return nil, err
    }
    perPage := req.PerPage
    if perPage <= 0 {
        perPage = DefaultPerPage
    }

    creds := zenchef.Credentials{APIToken: req.Credentials.APIToken, RestaurantID: req.Credentials.RestaurantID}
    out.FromDate, out.ToDate = from, to
    for page := 1; ; page++ {
        records, err := s.source.FetchPage(ctx, creds, zenchef.PageQuery{FromDate: from, ToDate: to, PerPage: perPage, Page: page})
        if err != nil {
            return nil, err
        }
        for _, rec := range records {
            created, err := s.importOne(ctx, rec)
            if err != nil {
                return nil, err
            }
            if created != nil {
                out.Created = append(out.Created, *created)
            }
        }
        // a short page is the last one
        if len(records) == 0 || len(records) < perPage {
            break
        }
    }
    out.Count = len(out.Created)

    log.WithFields(log.Fields{"from": from, "to": to, "created": out.Count}).Info("zenchef sync done")
    if out.Count > 0 {
        s.publish(ctx, key, out)
    }
    return out, nil
}

// importOne stores rec when it qualifies. It returns nil for records that
// are filtered out, invalid, or already present.
func (s *SyncService) importOne(ctx context.Context, rec zenchef.Reservation) (*q.ImportedBooking, error) {
    pax := validator.NormalizePax(rec.NumberOfPeople)
    if pax <= ImportPaxThreshold {
        return nil, nil
    }
    date, at := ParseStartTime(rec.StartTime, s.loc)
    cand := validator.Candidate{
        ClientName:   CustomerName(rec.Customer),
        Pax:          pax,
        ServiceDate:  date,
        ArrivalTime:  at,
        DrinkFormula: ImportDrink,
        Notes:        ImportNotes,
        Status:       string(model.StatusConfirmed),
    }
    norm, err := validator.Normalize(cand)
    if err != nil {
        log.WithError(err).WithField("start_time", rec.StartTime).Warn("zenchef sync: skipping invalid record")
        return nil, nil
    }

    stored, err := s.store.InsertImported(ctx, norm)
    if errors.Is(err, repository.ErrDuplicateSlot) {
        log.WithField("client", norm.ClientName).Debug("zenchef sync: slot taken concurrently")
        return nil, nil
    }
    if err != nil {
        return nil, fmt.Errorf("store imported reservation: %w", err)
    }
    if stored == nil {
        return nil, nil
    }
    return &q.ImportedBooking{
        ID:          stored.ID,
        ClientName:  stored.ClientName,
        ServiceDate: stored.ServiceDate,
        ArrivalTime: stored.ArrivalTime,
        Pax:         stored.Pax,
    }, nil
}

func (s *SyncService) dateRange(from, to string) (string, string, error) {
    var err error
    if strings.TrimSpace(from) == "" {
        from = s.now().In(s.loc).Format(time.DateOnly)
    } else if from, err = validator.ParseServiceDate(from); err != nil {
        return "", "", validator.NewValidationError("fromDate", err.Error())
    }
    if strings.TrimSpace(to) == "" {
        to = from
    } else if to, err = validator.ParseServiceDate(to); err != nil {
        return "", "", validator.NewValidationError("toDate", err.Error())
    }
    return from, to, nil
}

func (s *SyncService) publish(ctx context.Context, key string, res *SyncResult) {
    if s.publisher == nil {
        return
    }
    ev := q.ReservationsImportedEvent{
        IdempotencyKey: key,
        FromDate:       res.FromDate,
        ToDate:         res.ToDate,
        Count:          res.Count,
        Reservations:   res.Created,
        ImportedAt:     s.now().UTC().Format(time.RFC3339),
    }
    if err := s.publisher.PublishReservationsImported(ctx, ev); err != nil {
        log.WithError(err).Warn("zenchef sync: publish import event failed")
    }
}

// ParseStartTime splits an upstream start time into a service date and an
// HH:MM arrival time in loc. Values that do not parse as RFC 3339 fall back
// to slicing: "YYYY-MM-DD" before the T and the first five characters
// after it, or "00:00" when there is no T.
func ParseStartTime(raw string, loc *time.Location) (string, string) {
    raw = strings.TrimSpace(raw)
    if t, err := time.Parse(time.RFC3339, raw); err == nil {
        t = t.In(loc)
        return t.Format(time.DateOnly), t.Format("15:04")
    }
    if t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, loc); err == nil {
        return t.Format(time.DateOnly), t.Format("15:04")
    }
    if d, rest, ok := strings.Cut(raw, "T"); ok {
        return prefix(d, 10), prefix(rest, 5)
    }
    return prefix(raw, 10), "00:00"
}

// CustomerName joins first and last name, falling back to "Groupe".
func CustomerName(c *zenchef.Customer) string {
    if c == nil {
        return ImportDefaultName
    }
    name := strings.TrimSpace(strings.TrimSpace(c.Firstname) + " " + strings.TrimSpace(c.Lastname))
    if name == "" {
        return ImportDefaultName
    }
    return validator.Truncate(name, validator.MaxClientName)
}

func prefix(s string, n int) string {
    if len(s) > n {
        return s[:n]
    }
    return s
}
