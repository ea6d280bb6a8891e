package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var defaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// CORS allows the catalog dashboard to call the API. allowedOrigins is a
// comma separated list; "*" allows any origin.
func CORS(allowedOrigins string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Merchant-ID", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	switch strings.TrimSpace(allowedOrigins) {
	case "*":
		config.AllowAllOrigins = true
		config.AllowCredentials = false
	case "":
		config.AllowOrigins = defaultOrigins
	default:
		for _, o := range strings.Split(allowedOrigins, ",") {
			if o = strings.TrimSuffix(strings.TrimSpace(o), "/"); o != "" {
				config.AllowOrigins = append(config.AllowOrigins, o)
			}
		}
	}
	return cors.New(config)
}
