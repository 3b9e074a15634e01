package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/smallbiznis/cartloop/internal/clientinfo"
	"github.com/smallbiznis/cartloop/internal/events"
)

const sessionCookie = "cartloop_session"

// VersionHeaderMiddleware identifies responses as coming from this service.
func VersionHeaderMiddleware(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Cartloop-Version", version)
		c.Next()
	}
}

// SessionMiddleware assigns every visitor a session id cookie and installs
// the request event scope plus the client details used in outbound payloads.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(sessionCookie)
		if err != nil || sessionID == "" {
			sessionID = uuid.NewString()
			c.SetCookie(sessionCookie, sessionID, int((30 * 24 * time.Hour).Seconds()), "/", "", false, true)
		}
		c.Set("session_id", sessionID)

		ctx := events.WithScope(c.Request.Context())
		ctx = clientinfo.WithInfo(ctx, clientinfo.Info{
			BrowserIP:      c.ClientIP(),
			AcceptLanguage: c.GetHeader("Accept-Language"),
			UserAgent:      c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// SessionID returns the visitor session id installed by SessionMiddleware.
func SessionID(c *gin.Context) string {
	return c.GetString("session_id")
}

// RequestLogMiddleware logs one line per request.
func RequestLogMiddleware(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHTTPMetrics() *httpMetrics {
	return &httpMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartloop",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cartloop",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func MetricsMiddleware() gin.HandlerFunc {
	metrics := newHTTPMetrics()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
