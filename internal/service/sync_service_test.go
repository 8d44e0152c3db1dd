package service

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "path/filepath"
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/fiche-cuisine/internal/database"
    "github.com/iliyamo/fiche-cuisine/internal/model"
    q "github.com/iliyamo/fiche-cuisine/internal/queue"
    "github.com/iliyamo/fiche-cuisine/internal/repository"
    "github.com/iliyamo/fiche-cuisine/internal/zenchef"
)

var testCreds = model.ZenchefCredentials{APIToken: "tok", RestaurantID: "r-1"}

// fakeSource serves fixed pages and records every query.
type fakeSource struct {
    pages   map[int][]zenchef.Reservation
    failOn  int
    queries []zenchef.PageQuery
}

func (f *fakeSource) FetchPage(_ context.Context, _ zenchef.Credentials, pq zenchef.PageQuery) ([]zenchef.Reservation, error) {
    f.queries = append(f.queries, pq)
    if f.failOn != 0 && pq.Page == f.failOn {
        return nil, &zenchef.UpstreamError{Status: http.StatusServiceUnavailable, Message: "down", Retryable: true}
    }
    return f.pages[pq.Page], nil
}

type fakePublisher struct {
    events []q.ReservationsImportedEvent
    err    error
}

func (p *fakePublisher) PublishReservationsImported(_ context.Context, ev q.ReservationsImportedEvent) error {
    p.events = append(p.events, ev)
    return p.err
}

type fixture struct {
    svc    *SyncService
    src    *fakeSource
    pub    *fakePublisher
    res    *repository.ReservationRepo
    ledger *repository.IdempotencyRepo
}

func newFixture(t *testing.T, pages map[int][]zenchef.Reservation) *fixture {
    t.Helper()
    db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "sync.db"))
    require.NoError(t, err)
    t.Cleanup(func() { db.Close() })
    require.NoError(t, database.ApplySchema(context.Background(), db))

    paris, err := time.LoadLocation("Europe/Paris")
    require.NoError(t, err)

    f := &fixture{
        src:    &fakeSource{pages: pages},
        pub:    &fakePublisher{},
        res:    repository.NewReservationRepo(db),
        ledger: repository.NewIdempotencyRepo(db),
    }
    f.svc = NewSyncService(f.src, f.res, f.ledger, f.pub, paris)
    f.svc.now = func() time.Time { return time.Date(2025, 10, 14, 23, 30, 0, 0, time.UTC) }
    return f
}

func booking(first, last string, people any) zenchef.Reservation {
    return zenchef.Reservation{
        StartTime:      "2025-10-15T19:30:00+02:00",
        NumberOfPeople: people,
        Customer:       &zenchef.Customer{Firstname: first, Lastname: last},
    }
}

func TestSync_IdempotencyKeyAppliesOnce(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, map[int][]zenchef.Reservation{
        1: {booking("Jean", "Dupont", 12), booking("Anne", "Martin", 20)},
    })
    req := SyncRequest{Credentials: testCreds, FromDate: "2025-10-15", IdempotencyKey: "abc"}

    first, err := f.svc.Sync(ctx, req)
    require.NoError(t, err)
    assert.Equal(t, 2, first.Count)
    assert.False(t, first.Idempotent)
    assert.Equal(t, "2025-10-15", first.ToDate)

    second, err := f.svc.Sync(ctx, req)
    require.NoError(t, err)
    assert.True(t, second.Idempotent)
    assert.Equal(t, 0, second.Count)
    assert.Empty(t, second.Created)
    assert.Equal(t, "2025-10-15", second.FromDate)
    assert.Len(t, f.src.queries, 1)

    n, err := f.res.Count(ctx)
    require.NoError(t, err)
    assert.Equal(t, 2, n)
}

func TestSync_DeduplicatesWithoutKey(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, map[int][]zenchef.Reservation{
        1: {booking("Jean", "Dupont", 12), booking("Jean", "Dupont", 12)},
    })
    req := SyncRequest{Credentials: testCreds, FromDate: "2025-10-15"}

    first, err := f.svc.Sync(ctx, req)
    require.NoError(t, err)
    assert.Equal(t, 1, first.Count)
    require.Len(t, first.Created, 1)
    assert.Equal(t, "Jean Dupont", first.Created[0].ClientName)
    assert.Equal(t, "19:30", first.Created[0].ArrivalTime)

    second, err := f.svc.Sync(ctx, req)
    require.NoError(t, err)
    assert.Equal(t, 0, second.Count)
    assert.NotNil(t, second.Created)
    assert.Len(t, f.src.queries, 2)

    stored, err := f.res.GetByID(ctx, first.Created[0].ID)
    require.NoError(t, err)
    assert.Equal(t, model.StatusConfirmed, stored.Status)
    assert.Equal(t, ImportDrink, stored.DrinkFormula)
    assert.Equal(t, ImportNotes, stored.Notes)
    assert.Empty(t, stored.Items)
}

func TestSync_KeepsOnlyLargeParties(t *testing.T) {
    f := newFixture(t, map[int][]zenchef.Reservation{
        1: {booking("a", "", 5), booking("b", "", 11), booking("c", "", 15), booking("d", "", 10), booking("e", "", nil), booking("f", "", "13")},
    })
    res, err := f.svc.Sync(context.Background(), SyncRequest{Credentials: testCreds})
    require.NoError(t, err)

    var pax []int
    for _, c := range res.Created {
        pax = append(pax, c.Pax)
    }
    assert.Equal(t, []int{11, 15, 13}, pax)
}

func TestSync_StopsOnShortPage(t *testing.T) {
    f := newFixture(t, map[int][]zenchef.Reservation{
        1: {booking("a", "", 11), booking("b", "", 12)},
        2: {booking("c", "", 13)},
        3: {booking("never", "", 14)},
    })
    res, err := f.svc.Sync(context.Background(), SyncRequest{Credentials: testCreds, PerPage: 2})
    require.NoError(t, err)
    assert.Equal(t, 3, res.Count)
    require.Len(t, f.src.queries, 2)
    assert.Equal(t, 2, f.src.queries[1].Page)
    assert.Equal(t, 2, f.src.queries[1].PerPage)
}

func TestSync_StopsOnEmptyPage(t *testing.T) {
    f := newFixture(t, map[int][]zenchef.Reservation{
        1: {booking("a", "", 11), booking("b", "", 12)},
        2: {booking("c", "", 13), booking("d", "", 14)},
    })
    res, err := f.svc.Sync(context.Background(), SyncRequest{Credentials: testCreds, PerPage: 2})
    require.NoError(t, err)
    assert.Equal(t, 4, res.Count)
    assert.Len(t, f.src.queries, 3)
}

func TestSync_Defaults(t *testing.T) {
    f := newFixture(t, nil)
    res, err := f.svc.Sync(context.Background(), SyncRequest{Credentials: testCreds})
    require.NoError(t, err)
    // 23:30 UTC is already the next day in Paris
    assert.Equal(t, "2025-10-15", res.FromDate)
    assert.Equal(t, "2025-10-15", res.ToDate)
    require.Len(t, f.src.queries, 1)
    assert.Equal(t, DefaultPerPage, f.src.queries[0].PerPage)
    assert.Equal(t, 1, f.src.queries[0].Page)
    assert.Empty(t, f.pub.events)
}

func TestSync_UpstreamErrorAfterStoringKeepsKey(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, map[int][]zenchef.Reservation{
        1: {booking("a", "", 11), booking("b", "", 12)},
    })
    f.src.failOn = 2

    _, err := f.svc.Sync(ctx, SyncRequest{Credentials: testCreds, PerPage: 2, IdempotencyKey: "k1"})
    var upErr *zenchef.UpstreamError
    require.True(t, errors.As(err, &upErr))
    assert.Equal(t, http.StatusServiceUnavailable, upErr.Status)

    n, err := f.res.Count(ctx)
    require.NoError(t, err)
    assert.Equal(t, 2, n)
    assert.Empty(t, f.pub.events)

    ok, err := f.ledger.Exists(ctx, "k1")
    require.NoError(t, err)
    assert.True(t, ok)

    f.src.failOn = 0
    f.src.queries = nil
    res, err := f.svc.Sync(ctx, SyncRequest{Credentials: testCreds, PerPage: 2, IdempotencyKey: "k1"})
    require.NoError(t, err)
    assert.True(t, res.Idempotent)
    assert.Empty(t, f.src.queries)
}

func TestSync_UpstreamErrorBeforeStoringReleasesKey(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, map[int][]zenchef.Reservation{
        1: {booking("a", "", 11)},
    })
    f.src.failOn = 1

    _, err := f.svc.Sync(ctx, SyncRequest{Credentials: testCreds, IdempotencyKey: "retry-me"})
    var upErr *zenchef.UpstreamError
    require.True(t, errors.As(err, &upErr))

    ok, err := f.ledger.Exists(ctx, "retry-me")
    require.NoError(t, err)
    assert.False(t, ok)

    f.src.failOn = 0
    res, err := f.svc.Sync(ctx, SyncRequest{Credentials: testCreds, IdempotencyKey: "retry-me"})
    require.NoError(t, err)
    assert.False(t, res.Idempotent)
    assert.Equal(t, 1, res.Count)

    ok, err = f.ledger.Exists(ctx, "retry-me")
    require.NoError(t, err)
    assert.True(t, ok)
}

// scriptedStore fails InsertImported for the client names in errs.
type scriptedStore struct {
    errs     map[string]error
    inserted []string
}

func (s *scriptedStore) InsertImported(_ context.Context, res model.Reservation) (*model.Reservation, error) {
    if err := s.errs[res.ClientName]; err != nil {
        return nil, err
    }
    s.inserted = append(s.inserted, res.ClientName)
    res.ID = fmt.Sprintf("id-%d", len(s.inserted))
    return &res, nil
}

func TestSync_StoreErrors(t *testing.T) {
    pages := map[int][]zenchef.Reservation{
        1: {booking("Race", "", 12), booking("Next", "", 12)},
    }

    t.Run("duplicate slot is skipped", func(t *testing.T) {
        f := newFixture(t, pages)
        store := &scriptedStore{errs: map[string]error{
            "Race": fmt.Errorf("%w: x", repository.ErrDuplicateSlot),
        }}
        f.svc.store = store

        res, err := f.svc.Sync(context.Background(), SyncRequest{Credentials: testCreds})
        require.NoError(t, err)
        require.Equal(t, 1, res.Count)
        assert.Equal(t, "Next", res.Created[0].ClientName)
        assert.Equal(t, []string{"Next"}, store.inserted)
    })

    t.Run("other errors abort", func(t *testing.T) {
        f := newFixture(t, pages)
        boom := errors.New("disk full")
        store := &scriptedStore{errs: map[string]error{"Race": boom}}
        f.svc.store = store

        res, err := f.svc.Sync(context.Background(), SyncRequest{Credentials: testCreds, IdempotencyKey: "boom"})
        require.ErrorIs(t, err, boom)
        assert.Nil(t, res)
        assert.Empty(t, store.inserted)
        assert.Empty(t, f.pub.events)

        ok, err := f.ledger.Exists(context.Background(), "boom")
        require.NoError(t, err)
        assert.False(t, ok)
    })
}

func TestSync_SettingsMissing(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, nil)

    _, err := f.svc.Sync(ctx, SyncRequest{Credentials: model.ZenchefCredentials{APIToken: "tok"}, IdempotencyKey: "k"})
    assert.ErrorIs(t, err, ErrSettingsMissing)
    assert.Empty(t, f.src.queries)

    ok, err := f.ledger.Exists(ctx, "k")
    require.NoError(t, err)
    assert.False(t, ok)
}

func TestSync_InvalidDate(t *testing.T) {
    f := newFixture(t, nil)
    _, err := f.svc.Sync(context.Background(), SyncRequest{Credentials: testCreds, FromDate: "15/10/2025"})
    require.Error(t, err)
    assert.Contains(t, err.Error(), "fromDate")
    assert.Empty(t, f.src.queries)
}

func TestSync_PublishesImportEvent(t *testing.T) {
    f := newFixture(t, map[int][]zenchef.Reservation{1: {booking("Jean", "Dupont", 12)}})
    f.pub.err = errors.New("broker down")

    res, err := f.svc.Sync(context.Background(), SyncRequest{Credentials: testCreds, IdempotencyKey: "evt"})
    require.NoError(t, err)
    require.Len(t, f.pub.events, 1)
    ev := f.pub.events[0]
    assert.Equal(t, "evt", ev.IdempotencyKey)
    assert.Equal(t, 1, ev.Count)
    assert.Equal(t, res.Created, ev.Reservations)
}

func TestSync_SkipsUnparseableStartTime(t *testing.T) {
    bad := booking("Bad", "", 12)
    bad.StartTime = "tomorrow"
    f := newFixture(t, map[int][]zenchef.Reservation{1: {bad, booking("Good", "", 12)}})

    res, err := f.svc.Sync(context.Background(), SyncRequest{Credentials: testCreds})
    require.NoError(t, err)
    require.Equal(t, 1, res.Count)
    assert.Equal(t, "Good", res.Created[0].ClientName)
}

func TestParseStartTime(t *testing.T) {
    paris, err := time.LoadLocation("Europe/Paris")
    require.NoError(t, err)

    tests := []struct {
        in, date, at string
    }{
        {"2025-10-15T19:30:00+02:00", "2025-10-15", "19:30"},
        {"2025-10-15T17:30:00Z", "2025-10-15", "19:30"},
        {"2025-10-15T23:15:00Z", "2025-10-16", "01:15"},
        {"2025-10-15T19:30:00", "2025-10-15", "19:30"},
        {"2025-10-15T19:30", "2025-10-15", "19:30"},
        {"2025-10-15", "2025-10-15", "00:00"},
        {"", "", "00:00"},
    }
    for _, tt := range tests {
        t.Run(tt.in, func(t *testing.T) {
            d, at := ParseStartTime(tt.in, paris)
            assert.Equal(t, tt.date, d)
            assert.Equal(t, tt.at, at)
        })
    }
}

func TestParseStartTime_UTCConvertedToRestaurantTime(t *testing.T) {
    paris, err := time.LoadLocation("Europe/Paris")
    require.NoError(t, err)

    d, at := ParseStartTime("2025-10-15T19:30:00Z", paris)
    assert.Equal(t, "2025-10-15", d)
    assert.Equal(t, "21:30", at)
}

func TestCustomerName(t *testing.T) {
    assert.Equal(t, ImportDefaultName, CustomerName(nil))
    assert.Equal(t, ImportDefaultName, CustomerName(&zenchef.Customer{Firstname: "  ", Lastname: ""}))
    assert.Equal(t, "Jean", CustomerName(&zenchef.Customer{Firstname: " Jean "}))
    assert.Equal(t, "Dupont", CustomerName(&zenchef.Customer{Lastname: "Dupont"}))
    assert.Equal(t, "Jean Dupont", CustomerName(&zenchef.Customer{Firstname: "Jean", Lastname: "Dupont"}))

    long := CustomerName(&zenchef.Customer{Firstname: strings.Repeat("é", 150), Lastname: strings.Repeat("a", 150)})
    assert.Equal(t, 200, len([]rune(long)))
}

func ExampleParseStartTime() {
    d, at := ParseStartTime("2025-10-15T19:30:00+02:00", time.UTC)
    fmt.Println(d, at)
    // Output: 2025-10-15 17:30
}
