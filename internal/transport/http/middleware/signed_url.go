package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"image-annotator/internal/signing"
	"image-annotator/internal/transport/http/response"
)

const ContextObjectNameKey = "object_name"

// RequireSignedURL admits a request only when its token query parameter was
// issued for the :filename path parameter.
func RequireSignedURL(signer *signing.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("filename")
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing token")
			c.Abort()
			return
		}

		if err := signer.Verify(token, name); err != nil {
			response.Error(c, 403, response.CodeForbidden, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextObjectNameKey, name)
		c.Next()
	}
}
