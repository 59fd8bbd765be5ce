package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/medscribe/util"
)

const defaultMaxBodySize = 10 << 20

// BodySizeLimit caps request bodies at a size such as "10MB" or "512KB".
// Websocket upgrades carry no body and pass through untouched.
func BodySizeLimit(maxSize string) gin.HandlerFunc {
	limit := util.ParseSize(maxSize, defaultMaxBodySize)
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
