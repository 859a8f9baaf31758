package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// CookieName is the cookie carrying the operator session.
const CookieName = "classattend_session"

// OperatorAuth enforces an operator session read from the session cookie or a
// bearer header. Page requests without one are redirected to loginPath.
func OperatorAuth(signingKey, issuer, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := sessionToken(c)
		if tokenStr != "" {
			if claims, err := Parse(tokenStr, signingKey, issuer); err == nil {
				c.Set("claims", claims)
				c.Next()
				return
			}
		}
		if c.Request.Method == http.MethodGet {
			c.Redirect(http.StatusSeeOther, loginPath+"?next="+url.QueryEscape(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}

func sessionToken(c *gin.Context) string {
	if v, err := c.Cookie(CookieName); err == nil && v != "" {
		return v
	}
	authz := c.GetHeader("Authorization")
	if len(authz) > len("bearer ") && strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}
