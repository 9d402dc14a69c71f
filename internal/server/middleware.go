package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/guildcrawl/internal/logger"
)

// quietPaths are polled by probes and scrapers and only logged at debug.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("route", route),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("took", time.Since(start)),
		}

		switch {
		case len(c.Errors) > 0:
			log.Warn("Request failed", append(fields, logger.Strings("errors", c.Errors.Errors()))...)
		case quietPaths[route]:
			log.Debug("Request served", fields...)
		default:
			log.Info("Request served", fields...)
		}
	}
}

func recoverer(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		log.Error("Handler panicked",
			logger.Any("panic", recovered),
			logger.String("route", c.FullPath()),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}
