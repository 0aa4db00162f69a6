package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET, POST, DELETE, OPTIONS"
	corsHeaders = "Authorization, Content-Type, X-Request-Id"
	corsMaxAge  = "600"
)

// corsPolicy answers every origin with "*" when no allowlist is configured.
type corsPolicy struct {
	origins map[string]struct{}
}

func CORS(allowlist []string) gin.HandlerFunc {
	p := &corsPolicy{origins: make(map[string]struct{}, len(allowlist))}
	for _, origin := range allowlist {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			p.origins[origin] = struct{}{}
		}
	}
	return p.handle
}

func (p *corsPolicy) allowOrigin(origin string) (string, bool) {
	if len(p.origins) == 0 {
		return "*", true
	}
	if _, ok := p.origins[origin]; ok && origin != "" {
		return origin, true
	}
	return "", false
}

func (p *corsPolicy) handle(c *gin.Context) {
	if value, ok := p.allowOrigin(c.GetHeader("Origin")); ok {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", value)
		if value != "*" {
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Methods", corsMethods)
		h.Set("Access-Control-Allow-Headers", corsHeaders)
		h.Set("Access-Control-Max-Age", corsMaxAge)
	}
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}
