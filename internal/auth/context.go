package auth

import "github.com/gin-gonic/gin"

// GetHostID returns the authenticated host ID or empty string.
func GetHostID(c *gin.Context) string {
	if v, ok := c.Get("hostID"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetHostEmail returns the authenticated host email or empty string.
func GetHostEmail(c *gin.Context) string {
	if v, ok := c.Get("hostEmail"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
