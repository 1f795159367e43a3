package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisper-subtitle/auth"
	"github.com/kbukum/whisper-subtitle/errors"
)

// ClaimsKey is the gin context key holding *auth.Claims.
const ClaimsKey = "auth_claims"

// TokenParser verifies a bearer token.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// Auth rejects requests without a valid bearer token. Verified claims are
// stored under ClaimsKey and in the request context.
func Auth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, errors.Unauthorized("Authorization header required."))
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			abort(c, errors.Unauthorized("Authorization header must use the Bearer scheme."))
			return
		}
		claims, err := parser.Parse(strings.TrimSpace(token))
		if err != nil {
			if auth.IsExpired(err) {
				abort(c, errors.TokenExpired())
			} else {
				abort(c, errors.InvalidToken())
			}
			return
		}
		c.Set(ClaimsKey, claims)
		c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

func abort(c *gin.Context, e *errors.AppError) {
	c.AbortWithStatusJSON(e.HTTPStatus, e.ToResponse())
}
