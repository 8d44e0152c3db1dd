package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    log "github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request with the correlation id set by
// echo's RequestID middleware. Handler errors are passed to echo's error
// handler first so the logged status is the one sent.
func RequestLogger() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err)
            }
            req, res := c.Request(), c.Response()
            entry := log.WithFields(log.Fields{
                "request_id": res.Header().Get(echo.HeaderXRequestID),
                "method":     req.Method,
                "path":       req.URL.Path,
                "status":     res.Status,
                "latency_ms": time.Since(start).Milliseconds(),
                "remote_ip":  c.RealIP(),
            })
            switch {
            case res.Status >= 500:
                entry.Error("request")
            case res.Status >= 400:
                entry.Warn("request")
            default:
                entry.Info("request")
            }
            return nil
        }
    }
}
