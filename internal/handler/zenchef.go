package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fiche-cuisine/internal/repository"
	"github.com/iliyamo/fiche-cuisine/internal/service"
)

// IdempotencyHeader carries the client-chosen key of a sync call.
const IdempotencyHeader = "Idempotency-Key"

// ZenchefHandler serves /api/zenchef.
type ZenchefHandler struct {
	Settings *repository.SettingRepo
	Sync     *service.SyncService
}

// NewZenchefHandler constructs the handler and panics on nil dependencies.
func NewZenchefHandler(settings *repository.SettingRepo, sync *service.SyncService) *ZenchefHandler {
	if settings == nil || sync == nil {
		panic("nil dependency passed to NewZenchefHandler")
	}
	return &ZenchefHandler{Settings: settings, Sync: sync}
}

type settingsBody struct {
	APIToken     *string `json:"api_token"`
	RestaurantID *string `json:"restaurant_id"`
}

type syncBody struct {
	FromDate string `json:"fromDate"`
	ToDate   string `json:"toDate"`
	PerPage  int    `json:"perPage"`
}

// GetSettings handles GET /api/zenchef/settings. Unset values are null.
func (h *ZenchefHandler) GetSettings(c echo.Context) error {
	creds, err := h.Settings.Credentials(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, settingsBody{APIToken: nonEmpty(creds.APIToken), RestaurantID: nonEmpty(creds.RestaurantID)})
}

// UpdateSettings handles PUT /api/zenchef/settings. Absent fields are kept.
func (h *ZenchefHandler) UpdateSettings(c echo.Context) error {
	var body settingsBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.Settings.SetCredentials(c.Request().Context(), body.APIToken, body.RestaurantID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// RunSync handles POST /api/zenchef/sync with an optional Idempotency-Key
// header.
func (h *ZenchefHandler) RunSync(c echo.Context) error {
	var body syncBody
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	ctx := c.Request().Context()
	creds, err := h.Settings.Credentials(ctx)
	if err != nil {
		return respondError(c, err)
	}
	res, err := h.Sync.Sync(ctx, service.SyncRequest{
		Credentials:    creds,
		FromDate:       body.FromDate,
		ToDate:         body.ToDate,
		PerPage:        body.PerPage,
		IdempotencyKey: c.Request().Header.Get(IdempotencyHeader),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
