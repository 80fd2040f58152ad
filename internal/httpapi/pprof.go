package httpapi

import (
	hpprof "net/http/pprof"
	"strings"

	"github.com/gin-gonic/gin"
)

// mountPprof exposes net/http/pprof under g. pprof.Index expects paths
// rooted at /debug/pprof/, so the request path is rewritten first.
func mountPprof(g *gin.RouterGroup) {
	base := strings.TrimSuffix(g.BasePath(), "/") + "/"
	g.GET("/", pprofIndex(base))
	g.GET("/:profile", func(c *gin.Context) {
		switch c.Param("profile") {
		case "cmdline":
			hpprof.Cmdline(c.Writer, c.Request)
		case "profile":
			hpprof.Profile(c.Writer, c.Request)
		case "symbol":
			hpprof.Symbol(c.Writer, c.Request)
		case "trace":
			hpprof.Trace(c.Writer, c.Request)
		default:
			pprofIndex(base)(c)
		}
	})
}

func pprofIndex(base string) gin.HandlerFunc {
	return func(c *gin.Context) {
		suffix := strings.TrimPrefix(c.Request.URL.Path, base)
		r2 := c.Request.Clone(c.Request.Context())
		r2.URL.Path = "/debug/pprof/" + suffix
		hpprof.Index(c.Writer, r2)
	}
}
