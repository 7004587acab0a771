package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/filehub/internal/auth/seat"
	"github.com/charlesng35/filehub/pkg/response"
)

// Health returns a simple status payload useful for liveness checks.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}

// Ready reports readiness: the database must answer a ping and the seat
// allocator (which may sit on Redis) must answer a state query.
func Ready(db *gorm.DB, allocator seat.Allocator) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		healthy := true

		if db != nil {
			if sqlDB, err := db.DB(); err != nil {
				checks["database"] = "error: " + err.Error()
				healthy = false
			} else if err := sqlDB.PingContext(requestContext(c)); err != nil {
				checks["database"] = "error: " + err.Error()
				healthy = false
			} else {
				checks["database"] = "ok"
			}
		}

		if allocator != nil {
			if _, err := allocator.State(requestContext(c)); err != nil {
				checks["seat_pool"] = "error: " + err.Error()
				healthy = false
			} else {
				checks["seat_pool"] = "ok"
			}
		}

		status := http.StatusOK
		statusText := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			statusText = "degraded"
		}
		response.Success(c, status, gin.H{"status": statusText, "checks": checks})
	}
}
