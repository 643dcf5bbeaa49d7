package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// the status api is read mostly and only ever called from local tools
var corsConfig = cors.Config{
	AllowOrigins: []string{"http://localhost", "http://127.0.0.1"},
	AllowOriginFunc: func(origin string) bool {
		return isLoopbackOrigin(origin)
	},
	AllowMethods: []string{"GET", "POST", "HEAD"},
	AllowHeaders: []string{
		"Origin",
		"Content-Type",
		"Authorization",
	},
	MaxAge: 12 * time.Hour,
}

func CORS() gin.HandlerFunc {
	return cors.New(corsConfig)
}
