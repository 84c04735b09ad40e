package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error writes the flat {"error": ...} body every service in the mesh
// uses for failures.
func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// ServiceError is the gateway's unavailable-downstream shape.
func ServiceError(c *gin.Context, status int, service, msg string) {
	c.JSON(status, gin.H{"error": msg, "service": service})
}

// Healthy 健康检查统一返回体
func Healthy(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
