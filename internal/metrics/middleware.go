package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// маршрут потока живет все соединение, длительность не наблюдается
const streamPath = "/api/v1/ws"

// HTTPMetricsMiddleware учитывает запросы по шаблону маршрута. Запросы вне
// зарегистрированных маршрутов попадают под один ярлык unmatched.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		HTTPRequestsInFlight.Inc()
		start := time.Now()
		c.Next()
		HTTPRequestsInFlight.Dec()

		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		if route != streamPath {
			HTTPRequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		}
	}
}
