package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fiche-cuisine/internal/database"
	"github.com/iliyamo/fiche-cuisine/internal/handler"
	"github.com/iliyamo/fiche-cuisine/internal/model"
	"github.com/iliyamo/fiche-cuisine/internal/repository"
	"github.com/iliyamo/fiche-cuisine/internal/router"
	"github.com/iliyamo/fiche-cuisine/internal/service"
	"github.com/iliyamo/fiche-cuisine/internal/zenchef"
)

type testServer struct {
	e        *echo.Echo
	settings *repository.SettingRepo
	cache    *countingCache
}

type countingCache struct{ n atomic.Int32 }

func (c *countingCache) Invalidate(context.Context) { c.n.Add(1) }

func newTestServer(t *testing.T, zenchefURL string) *testServer {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.ApplySchema(context.Background(), db))

	reservations := repository.NewReservationRepo(db)
	settings := repository.NewSettingRepo(db)
	ledger := repository.NewIdempotencyRepo(db)
	client := zenchef.NewClient(zenchefURL, zenchef.WithTimeout(2*time.Second))
	sync := service.NewSyncService(client, reservations, ledger, nil, time.UTC)
	cache := &countingCache{}

	e := echo.New()
	e.Use(echomw.RequestID())
	router.RegisterRoutes(e, router.Handlers{
		Health:       handler.Health(db),
		Reservations: handler.NewReservationHandler(reservations, time.UTC, 20),
		MenuItems:    handler.NewMenuItemHandler(repository.NewMenuItemRepo(db), cache),
		Zenchef:      handler.NewZenchefHandler(settings, sync),
	})
	return &testServer{e: e, settings: settings, cache: cache}
}

func (s *testServer) do(t *testing.T, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, target, bytes.NewReader(raw))
		r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func reservationPayload(name string, pax int) map[string]any {
	return map[string]any{
		"client_name":   name,
		"pax":           pax,
		"service_date":  "2025-10-15",
		"arrival_time":  "19:30",
		"drink_formula": "Sans alcool",
		"items": []map[string]any{
			{"type": "Entrée", "name": "Terrine", "quantity": pax},
			{"category": "main", "name": "Magret", "quantity": pax},
		},
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReservations_CRUD(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodPost, "/api/reservations", reservationPayload("Dupont", 12))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Reservation](t, rec)
	require.Len(t, created.Items, 2)
	assert.Equal(t, model.CategoryStarter, created.Items[0].Category)

	rec = s.do(t, http.MethodGet, "/api/reservations/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/reservations/"+created.ID, map[string]any{"notes": "Terrasse", "status": "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Reservation](t, rec)
	assert.Equal(t, "Terrasse", updated.Notes)
	assert.Equal(t, model.StatusConfirmed, updated.Status)
	assert.Len(t, updated.Items, 2)

	rec = s.do(t, http.MethodGet, "/api/reservations?q=dup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[repository.PageResult[model.Reservation]](t, rec)
	assert.Equal(t, 1, page.Total)

	rec = s.do(t, http.MethodDelete, "/api/reservations/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/reservations/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReservations_ErrorMapping(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodPost, "/api/reservations", reservationPayload("Dupont", 12))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/reservations", reservationPayload("Dupont", 12))
	assert.Equal(t, http.StatusConflict, rec.Code)

	over := reservationPayload("Martin", 10)
	over["items"] = []map[string]any{{"category": "main", "name": "Boeuf", "quantity": 11}}
	rec = s.do(t, http.MethodPost, "/api/reservations", over)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 10, body["pax"])
	assert.NotEmpty(t, body["categories"])

	bad := reservationPayload("Bad", 12)
	bad["service_date"] = "15/10/2025"
	rec = s.do(t, http.MethodPost, "/api/reservations", bad)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "service_date")

	r := httptest.NewRequest(http.MethodPost, "/api/reservations", strings.NewReader("{"))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rr := httptest.NewRecorder()
	s.e.ServeHTTP(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rec = s.do(t, http.MethodPut, "/api/reservations/missing", map[string]any{"notes": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/reservations?service_date=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReservations_Duplicate(t *testing.T) {
	s := newTestServer(t, "")
	created := decode[model.Reservation](t, s.do(t, http.MethodPost, "/api/reservations", reservationPayload("Dupont", 12)))

	rec := s.do(t, http.MethodPost, "/api/reservations/"+created.ID+"/duplicate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/reservations/"+created.ID+"/duplicate", map[string]any{"service_date": "2025-10-16"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cp := decode[model.Reservation](t, rec)
	assert.Equal(t, "2025-10-16", cp.ServiceDate)
	assert.Len(t, cp.Items, 2)
}

func TestReservations_UpcomingAndPast(t *testing.T) {
	s := newTestServer(t, "")
	old := reservationPayload("Old", 12)
	old["service_date"] = "2001-01-01"
	future := reservationPayload("Future", 12)
	future["service_date"] = "2099-01-01"
	for _, p := range []map[string]any{old, future} {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/reservations", p).Code)
	}

	up := decode[repository.PageResult[model.Reservation]](t, s.do(t, http.MethodGet, "/api/reservations/upcoming?page_size=5", nil))
	require.Len(t, up.Items, 1)
	assert.Equal(t, "Future", up.Items[0].ClientName)
	assert.Equal(t, 5, up.PageSize)

	past := decode[repository.PageResult[model.Reservation]](t, s.do(t, http.MethodGet, "/api/reservations/past?page=abc", nil))
	require.Len(t, past.Items, 1)
	assert.Equal(t, "Old", past.Items[0].ClientName)
	assert.Equal(t, 1, past.Page)
}

func TestReservations_PDF(t *testing.T) {
	s := newTestServer(t, "")
	created := decode[model.Reservation](t, s.do(t, http.MethodPost, "/api/reservations", reservationPayload("Jean Dupont", 12)))

	rec := s.do(t, http.MethodGet, "/api/reservations/"+created.ID+"/pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "fiche_2025-10-15_Jean_Dupont_")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	rec = s.do(t, http.MethodGet, "/api/reservations/day/2025-10-15/pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "fiches_2025-10-15.pdf")

	rec = s.do(t, http.MethodGet, "/api/reservations/day/2025-13-40/pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/reservations/missing/pdf", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMenuItems(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodPost, "/api/menu-items", map[string]any{"name": "Tarte Tatin", "type": "Dessert"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	it := decode[model.MenuItem](t, rec)
	assert.Equal(t, model.CategoryDessert, it.Category)
	assert.True(t, it.Active)

	rec = s.do(t, http.MethodPost, "/api/menu-items", map[string]any{"name": " ", "category": "soup"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "name")
	assert.Contains(t, rec.Body.String(), "category")

	rec = s.do(t, http.MethodGet, "/api/menu-items/search?q=tat&category=dessert", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.MenuItem](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/menu-items/search?category=soup", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/menu-items/"+it.ID, map[string]any{"active": false})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/menu-items/search?q=tat", nil)
	assert.Empty(t, decode[[]model.MenuItem](t, rec))

	rec = s.do(t, http.MethodDelete, "/api/menu-items/"+it.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(3), s.cache.n.Load())

	rec = s.do(t, http.MethodGet, "/api/menu-items/"+it.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestZenchefSettings(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodGet, "/api/zenchef/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"api_token":null,"restaurant_id":null}`, rec.Body.String())

	rec = s.do(t, http.MethodPut, "/api/zenchef/settings", map[string]any{"restaurant_id": "r-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPut, "/api/zenchef/settings", map[string]any{"api_token": "tok"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/zenchef/settings", nil)
	assert.JSONEq(t, `{"api_token":"tok","restaurant_id":"r-1"}`, rec.Body.String())
}

func TestZenchefSync(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"reservations":[
			{"startTime":"2025-10-15T19:30:00Z","numberOfPeople":14,"customer":{"firstname":"Jean","lastname":"Dupont"}},
			{"startTime":"2025-10-15T12:00:00Z","numberOfPeople":4,"customer":{"firstname":"Petit","lastname":"Groupe"}}
		]}`))
	}))
	defer upstream.Close()
	s := newTestServer(t, upstream.URL)

	rec := s.do(t, http.MethodPost, "/api/zenchef/sync", map[string]any{"fromDate": "2025-10-15"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "settings missing")
	assert.Equal(t, int32(0), calls.Load())

	require.NoError(t, s.settings.SetCredentials(context.Background(), ptr("wrong"), ptr("r-1")))
	rec = s.do(t, http.MethodPost, "/api/zenchef/sync", map[string]any{"fromDate": "2025-10-15"}, handler.IdempotencyHeader, "k1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	require.NoError(t, s.settings.SetCredentials(context.Background(), ptr("tok"), nil))
	rec = s.do(t, http.MethodPost, "/api/zenchef/sync/", map[string]any{"fromDate": "2025-10-15"}, handler.IdempotencyHeader, "k1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[service.SyncResult](t, rec)
	require.Len(t, res.Created, 1)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, "Jean Dupont", res.Created[0].ClientName)
	assert.Equal(t, "2025-10-15", res.ToDate)

	before := calls.Load()
	rec = s.do(t, http.MethodPost, "/api/zenchef/sync", map[string]any{"fromDate": "2025-10-15"}, handler.IdempotencyHeader, "k1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"created":[],"count":0,"fromDate":"2025-10-15","toDate":"","idempotent":true}`, rec.Body.String())
	assert.Equal(t, before, calls.Load())
}

func ptr[T any](v T) *T { return &v }
