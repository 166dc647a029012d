package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hellofresh/health-go/v5"
)

var healthCheck *health.Health

func init() {
	healthCheck, _ = health.New(health.WithComponent(health.Component{
		Name: "consent-pdp",
	}))
}

func HealthReq(c *gin.Context) {
	checkResult := healthCheck.Measure(c.Request.Context())
	if checkResult.Status == health.StatusOK {
		c.AbortWithStatusJSON(http.StatusOK, checkResult)
	} else {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, checkResult)
	}
}

func Health() *health.Health {
	return healthCheck
}

/**
* Registers a liveness check for a backing store. A failing check turns
* the health endpoint to service-unavailable.
 */
func RegisterStoreCheck(name string, ping func(ctx context.Context) error) {
	healthCheck.Register(health.Config{
		Name:      name,
		Timeout:   time.Second * 2,
		SkipOnErr: false,
		Check:     ping,
	})
}
