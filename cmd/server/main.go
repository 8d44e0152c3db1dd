package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // RESTAURANT_TZ must resolve on minimal images

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/fiche-cuisine/internal/app"
	"github.com/iliyamo/fiche-cuisine/internal/config"
	"github.com/iliyamo/fiche-cuisine/internal/handler"
	"github.com/iliyamo/fiche-cuisine/internal/middleware"
	"github.com/iliyamo/fiche-cuisine/internal/router"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.WithError(err).Fatal("load .env")
	}
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if cfg.Env == "prod" {
		log.SetFormatter(&log.JSONFormatter{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Publisher(cfg))
	if err != nil {
		log.WithError(err).Fatal("bootstrap")
	}
	defer a.Close()

	rdb := config.NewRedisClient()
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.CORSOrigins}))
	apiLimit := config.LoadRateLimitConfig()
	apiLimit.SkipPaths = router.SyncPaths
	e.Use(middleware.NewTokenBucket(apiLimit, rdb))

	router.RegisterRoutes(e, router.Handlers{
		Health:       handler.Health(a.DB),
		Reservations: handler.NewReservationHandler(a.Reservations, cfg.Location, cfg.PageSizeDefault),
		MenuItems:    handler.NewMenuItemHandler(a.MenuItems, cache),
		Zenchef:      handler.NewZenchefHandler(a.Settings, a.Sync),
		SearchCache:  cache.Middleware(),
		SyncLimiter:  middleware.NewTokenBucket(config.LoadSyncRateLimitConfig(), rdb),
	})

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(log.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}
