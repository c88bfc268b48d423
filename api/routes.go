package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"homecontrol/metrics"
)

// SetupRoutes wires the HTTP surface onto the router.
func SetupRoutes(router *gin.Engine, h *Handlers, m *metrics.Metrics, hub *WebSocketHub) {
	router.Use(CORSMiddleware())
	router.Use(MetricsMiddleware(m))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	api := router.Group("/api")
	{
		tvs := api.Group("/devices")
		{
			tvs.GET("", h.GetDevices)
			tvs.POST("/:id/play", h.Play)
			tvs.POST("/:id/navigate", h.Navigate)
			tvs.POST("/:id/volume", h.Volume)
			tvs.POST("/:id/text", h.TypeText)
			tvs.POST("/:id/power/on", h.PowerOn)
			tvs.POST("/:id/power/off", h.PowerOff)
			tvs.POST("/:id/playpause", h.PlayPause)
			tvs.GET("/:id/status", h.Status)
			tvs.GET("/:id/screenshot", h.Screenshot)
			tvs.GET("/:id/apps", h.ListApps)
		}

		bulbs := api.Group("/bulbs")
		{
			bulbs.GET("", h.GetBulbs)
			bulbs.POST("/:id", h.SetBulb)
		}
	}

	router.GET("/ws", func(c *gin.Context) {
		HandleWebSocket(hub, c)
	})
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// MetricsMiddleware records request counts and latency per route pattern.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
