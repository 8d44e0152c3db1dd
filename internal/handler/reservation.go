package handler

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fiche-cuisine/internal/pdf"
	"github.com/iliyamo/fiche-cuisine/internal/repository"
	"github.com/iliyamo/fiche-cuisine/internal/validator"
)

// ReservationHandler serves /api/reservations.
type ReservationHandler struct {
	Repo     *repository.ReservationRepo
	Loc      *time.Location // restaurant timezone for upcoming/past
	PageSize int            // default page size
	now      func() time.Time
}

// NewReservationHandler constructs the handler and panics on a nil repository.
func NewReservationHandler(repo *repository.ReservationRepo, loc *time.Location, pageSize int) *ReservationHandler {
	if repo == nil {
		panic("nil repository passed to NewReservationHandler")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ReservationHandler{Repo: repo, Loc: loc, PageSize: pageSize, now: time.Now}
}

type reservationBody struct {
	ClientName   string                `json:"client_name"`
	Pax          any                   `json:"pax"`
	ServiceDate  string                `json:"service_date"`
	ArrivalTime  string                `json:"arrival_time"`
	DrinkFormula string                `json:"drink_formula"`
	Notes        string                `json:"notes"`
	Status       string                `json:"status"`
	Items        []validator.ItemInput `json:"items"`
}

type reservationPatchBody struct {
	ClientName   *string                `json:"client_name"`
	Pax          any                    `json:"pax"`
	ServiceDate  *string                `json:"service_date"`
	ArrivalTime  *string                `json:"arrival_time"`
	DrinkFormula *string                `json:"drink_formula"`
	Notes        *string                `json:"notes"`
	Status       *string                `json:"status"`
	Items        *[]validator.ItemInput `json:"items"`
}

type duplicateBody struct {
	ClientName  *string `json:"client_name"`
	ServiceDate *string `json:"service_date"`
	ArrivalTime *string `json:"arrival_time"`
}

// List handles GET /api/reservations?q=&service_date=&page=&page_size=
func (h *ReservationHandler) List(c echo.Context) error {
	f := repository.ListFilter{Query: c.QueryParam("q"), Page: h.page(c)}
	if d := strings.TrimSpace(c.QueryParam("service_date")); d != "" {
		date, err := validator.ParseServiceDate(d)
		if err != nil {
			return badRequest(c, "invalid service_date")
		}
		f.ServiceDate = date
	}
	out, err := h.Repo.List(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Upcoming handles GET /api/reservations/upcoming
func (h *ReservationHandler) Upcoming(c echo.Context) error {
	out, err := h.Repo.ListUpcoming(c.Request().Context(), h.now().In(h.Loc), h.page(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Past handles GET /api/reservations/past
func (h *ReservationHandler) Past(c echo.Context) error {
	out, err := h.Repo.ListPast(c.Request().Context(), h.now().In(h.Loc), h.page(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Create handles POST /api/reservations
func (h *ReservationHandler) Create(c echo.Context) error {
	var body reservationBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.Repo.Create(c.Request().Context(), validator.Candidate{
		ClientName:   body.ClientName,
		Pax:          body.Pax,
		ServiceDate:  body.ServiceDate,
		ArrivalTime:  body.ArrivalTime,
		DrinkFormula: body.DrinkFormula,
		Notes:        body.Notes,
		Status:       body.Status,
		Items:        body.Items,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Get handles GET /api/reservations/:id
func (h *ReservationHandler) Get(c echo.Context) error {
	res, err := h.Repo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Update handles PUT /api/reservations/:id. Absent fields are kept; a
// present items array replaces all items.
func (h *ReservationHandler) Update(c echo.Context) error {
	var body reservationPatchBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.Repo.Update(c.Request().Context(), c.Param("id"), repository.Patch{
		ClientName:   body.ClientName,
		Pax:          body.Pax,
		ServiceDate:  body.ServiceDate,
		ArrivalTime:  body.ArrivalTime,
		DrinkFormula: body.DrinkFormula,
		Notes:        body.Notes,
		Status:       body.Status,
		Items:        body.Items,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Delete handles DELETE /api/reservations/:id
func (h *ReservationHandler) Delete(c echo.Context) error {
	if err := h.Repo.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// Duplicate handles POST /api/reservations/:id/duplicate. The optional
// body moves the copy to another slot.
func (h *ReservationHandler) Duplicate(c echo.Context) error {
	var body duplicateBody
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	res, err := h.Repo.Duplicate(c.Request().Context(), c.Param("id"), repository.SlotOverrides{
		ClientName:  body.ClientName,
		ServiceDate: body.ServiceDate,
		ArrivalTime: body.ArrivalTime,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// PDF handles GET /api/reservations/:id/pdf
func (h *ReservationHandler) PDF(c echo.Context) error {
	res, err := h.Repo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	var buf bytes.Buffer
	if err := pdf.RenderReservation(&buf, res); err != nil {
		return respondError(c, err)
	}
	return sendPDF(c, pdf.ReservationFilename(res), buf.Bytes())
}

// DayPDF handles GET /api/reservations/day/:date/pdf
func (h *ReservationHandler) DayPDF(c echo.Context) error {
	date, err := validator.ParseServiceDate(c.Param("date"))
	if err != nil || len(strings.TrimSpace(c.Param("date"))) != len(time.DateOnly) {
		return badRequest(c, "invalid date")
	}
	rows, err := h.Repo.ListByDate(c.Request().Context(), date)
	if err != nil {
		return respondError(c, err)
	}
	var buf bytes.Buffer
	if err := pdf.RenderDay(&buf, date, rows); err != nil {
		return respondError(c, err)
	}
	return sendPDF(c, pdf.DayFilename(date), buf.Bytes())
}

func (h *ReservationHandler) page(c echo.Context) repository.Page {
	n, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	return repository.NewPage(n, size, h.PageSize)
}

func sendPDF(c echo.Context, filename string, body []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+strings.ReplaceAll(filename, `"`, "")+`"`)
	return c.Blob(http.StatusOK, "application/pdf", body)
}
