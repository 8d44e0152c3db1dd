package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fiche-cuisine/internal/handler"
)

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Health       echo.HandlerFunc
	Reservations *handler.ReservationHandler
	MenuItems    *handler.MenuItemHandler
	Zenchef      *handler.ZenchefHandler
	// SearchCache wraps the menu search route; nil means uncached.
	SearchCache echo.MiddlewareFunc
	// SyncLimiter wraps the sync routes; nil means unlimited.
	SyncLimiter echo.MiddlewareFunc
}

// SyncPaths are the route patterns of the Zenchef import.
var SyncPaths = []string{"/api/zenchef/sync", "/api/zenchef/sync/"}

// RegisterRoutes registers the health check and the /api routes.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	e.GET("/healthz", h.Health)

	api := e.Group("/api")
	registerReservations(api.Group("/reservations"), h.Reservations)
	registerMenuItems(api.Group("/menu-items"), h.MenuItems, h.SearchCache)
	registerZenchef(api.Group("/zenchef"), h.Zenchef, h.SyncLimiter)
}

func registerReservations(g *echo.Group, r *handler.ReservationHandler) {
	g.GET("", r.List)
	g.POST("", r.Create)
	// static segments win over :id in echo's router
	g.GET("/upcoming", r.Upcoming)
	g.GET("/past", r.Past)
	g.GET("/day/:date/pdf", r.DayPDF)

	g.GET("/:id", r.Get)
	g.PUT("/:id", r.Update)
	g.DELETE("/:id", r.Delete)
	g.POST("/:id/duplicate", r.Duplicate)
	g.GET("/:id/pdf", r.PDF)
}

func registerMenuItems(g *echo.Group, m *handler.MenuItemHandler, cache echo.MiddlewareFunc) {
	g.GET("", m.List)
	g.POST("", m.Create)
	if cache != nil {
		g.GET("/search", m.Search, cache)
	} else {
		g.GET("/search", m.Search)
	}
	g.GET("/:id", m.Get)
	g.PUT("/:id", m.Update)
	g.DELETE("/:id", m.Delete)
}

func registerZenchef(g *echo.Group, z *handler.ZenchefHandler, limiter echo.MiddlewareFunc) {
	g.GET("/settings", z.GetSettings)
	g.PUT("/settings", z.UpdateSettings)
	var mw []echo.MiddlewareFunc
	if limiter != nil {
		mw = append(mw, limiter)
	}
	g.POST("/sync", z.RunSync, mw...)
	g.POST("/sync/", z.RunSync, mw...)
}
