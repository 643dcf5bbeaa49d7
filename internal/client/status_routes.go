package client

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openmined/bulkpin/internal/client/handlers"
	"github.com/openmined/bulkpin/internal/client/middleware"
	"github.com/openmined/bulkpin/internal/version"
)

func SetupRoutes(tracker *handlers.ProgressTracker, ctrl handlers.RunController, config *StatusServerConfig) (http.Handler, error) {
	r := gin.New()

	rate := config.RateLimit
	if rate == "" {
		rate = defaultStatusRateLimit
	}
	rateLimiter, err := middleware.RateLimiter(rate)
	if err != nil {
		return nil, err
	}

	statusH := handlers.NewStatusHandler(tracker)
	runH := handlers.NewRunHandler(ctrl)

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(middleware.Gzip())
	r.Use(rateLimiter)

	r.GET("/", IndexHandler)
	r.GET("/healthz", handlers.Healthz)

	v1 := r.Group("/v1")
	v1.Use(middleware.TokenAuth(middleware.TokenAuthConfig{Token: config.AuthToken}))
	{
		v1.GET("/status", statusH.Status)

		v1Run := v1.Group("/run")
		{
			v1Run.POST("/start", runH.Start)
			v1Run.POST("/stop", runH.Stop)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler(), nil
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func IndexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, version.DetailedWithApp())
}
