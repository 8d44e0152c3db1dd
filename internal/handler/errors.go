package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/fiche-cuisine/internal/repository"
	"github.com/iliyamo/fiche-cuisine/internal/service"
	"github.com/iliyamo/fiche-cuisine/internal/validator"
	"github.com/iliyamo/fiche-cuisine/internal/zenchef"
)

// respondError maps domain errors to HTTP responses. Anything unexpected is
// logged with the request id and answered with a generic 500.
func respondError(c echo.Context, err error) error {
	var (
		verr   *validator.ValidationError
		capErr *validator.CapacityExceededError
		upErr  *zenchef.UpstreamError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation failed", "fields": verr.Fields})
	case errors.As(err, &capErr):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error":      capErr.Error(),
			"pax":        capErr.Pax,
			"categories": capErr.Categories,
		})
	case errors.Is(err, repository.ErrDuplicateSlot):
		return c.JSON(http.StatusConflict, map[string]string{"error": "a reservation already exists for this client, date, time and party size"})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, service.ErrSettingsMissing):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &upErr):
		return c.JSON(upErr.Status, map[string]string{"error": upErr.Message})
	}

	reqID := c.Response().Header().Get(echo.HeaderXRequestID)
	log.WithError(err).WithFields(log.Fields{
		"request_id": reqID,
		"method":     c.Request().Method,
		"path":       c.Path(),
	}).Error("unhandled error")
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error", "request_id": reqID})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}
