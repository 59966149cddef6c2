package middleware

import (
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
)

func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			ctx := req.Context()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			stop := time.Now()
			route := context.GetRoute(ctx)
			method := context.GetMethod(ctx)
			metrics.RecordAPIRequest(route, method, strconv.Itoa(res.Status), stop.Sub(start).Seconds())

			// query strings are left out: callbacks carry authorization codes
			logger.WithContext(ctx).WithFields(map[string]interface{}{
				"request_id":    context.GetRequestID(ctx),
				"method":        method,
				"path":          req.URL.Path,
				"status":        res.Status,
				"route":         route,
				"provider":      context.GetProvider(ctx),
				"remote_ip":     context.GetRemoteIP(ctx),
				"referer":       context.GetReferer(ctx),
				"protocol":      req.Proto,
				"host":          req.Host,
				"user_agent":    req.UserAgent(),
				"start_time":    start,
				"stop_time":     stop,
				"response_time": stop.Sub(start),
				"request_size":  req.Header.Get(echo.HeaderContentLength),
				"response_size": strconv.FormatInt(res.Size, 10),
			}).Info("Request")

			return nil
		}
	}
}
