package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thatlq1812/user-agreement/internal/handler/response"
	"github.com/thatlq1812/user-agreement/internal/service"
)

// ComplianceGate sends authenticated users with outstanding agreements to the
// consent flow. Paths with an allowed prefix pass through. GET and HEAD are
// redirected with 303; other methods are refused since a redirect would drop
// their body.
func ComplianceGate(evaluator service.ConsentEvaluator, visitPath string, allow ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			c.Next()
			return
		}

		path := c.Request.URL.Path
		for _, prefix := range allow {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		outstanding, err := evaluator.OutstandingPublished(c.Request.Context(), userID)
		if err != nil {
			response.FromError(c, err)
			return
		}
		if len(outstanding) == 0 {
			c.Next()
			return
		}

		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			response.Error(c, http.StatusForbidden, response.CodeForbidden,
				"Outstanding agreements must be accepted first")
			return
		}

		target := visitPath + "?destination=" + url.QueryEscape(c.Request.URL.RequestURI())
		c.Redirect(http.StatusSeeOther, target)
		c.Abort()
	}
}
