package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"

	"github.com/fatflowers/billsync/pkg/logctx"
	"github.com/fatflowers/billsync/pkg/response"
)

const (
	roleAdmin = "admin"
	// GinKeyOperator holds the subject of the admin token.
	GinKeyOperator = "operator"
)

var errNotAdmin = errors.New("token is not an admin token")

// AdminAuthMiddleware accepts HS256 bearer tokens signed with secret whose
// "role" claim is "admin". Without a secret the admin API is disabled.
func AdminAuthMiddleware(secret string, base *zap.SugaredLogger) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				response.ErrorT[any](response.APIResponseCodeError, "admin api disabled: admin.jwt_secret not set"))
			return
		}

		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "missing bearer token"))
			return
		}
		claims, err := parseAdminToken(raw, key)
		if err != nil {
			logctx.FromGin(c, base).Warnw("admin_auth_rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "invalid token"))
			return
		}

		if sub, _ := claims["sub"].(string); sub != "" {
			c.Set(GinKeyOperator, sub)
			lg := logctx.FromGin(c, base).With("operator", sub)
			c.Set(logctx.GinKeyLogger, lg)
			c.Request = c.Request.WithContext(logctx.WithLogger(c.Request.Context(), lg))
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func parseAdminToken(raw string, key []byte) (jwt.MapClaims, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid claims")
	}
	if role, _ := claims["role"].(string); role != roleAdmin {
		return nil, errNotAdmin
	}
	return claims, nil
}
