package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	problem "github.com/onebottle/onebottle-api/pkg/bottles/helpers/problem"
)

// AdminScope grants access to the /admin routes.
const AdminScope = "bottles:admin"

// RequireAccess only lets through requests carrying an HS256 bearer token,
// signed with secret, whose space separated scope claim contains requiredScope.
// With an empty secret every request is refused.
func RequireAccess(secret, requiredScope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			abort(c, problem.NewServiceUnavailable("Admin access is not configured"))
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			abort(c, problem.NewUnauthorized("Missing or invalid Authorization header"))
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := parse(tokenStr, secret)
		if err != nil {
			abort(c, problem.NewUnauthorized("Invalid access token"))
			return
		}
		if !hasScope(claims, requiredScope) {
			abort(c, problem.NewForbidden("Access token missing required scope"))
			return
		}

		if sub, ok := claims["sub"].(string); ok {
			c.Set("subject", sub)
		}
		c.Next()
	}
}

func parse(tokenStr, secret string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func hasScope(claims jwt.MapClaims, requiredScope string) bool {
	scopeStr, ok := claims["scope"].(string)
	if !ok {
		return false
	}

	for _, scope := range strings.Split(scopeStr, " ") {
		if scope == requiredScope {
			return true
		}
	}

	return false
}

func abort(c *gin.Context, apiErr problem.APIError) {
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(apiErr.Status, apiErr)
}
