// Package httpfilter enforces consent on the server's outgoing Set-Cookie
// headers. Filtering happens at header-flush time and is best-effort: once
// headers have left the process nothing can be done, and the client-side
// deletion sweep is the backstop.
package httpfilter

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
	"github.com/xkilldash9x/consentgate/internal/consent"
)

// EngineResolver builds the decision engine for one request. Returning nil
// disables filtering for that request (fail-open).
type EngineResolver func(c *gin.Context) *consent.Engine

// Observer receives every Set-Cookie the application emitted, before
// blocking runs, so detection reflects true application behavior.
type Observer interface {
	ObserveSetCookie(c *gin.Context, id schemas.Identity)
}

// Blocking returns middleware that strips disallowed Set-Cookie headers
// just before they are flushed. Register it BEFORE Detection so detection
// records the unfiltered set.
func Blocking(resolve EngineResolver, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("httpfilter")
	return func(c *gin.Context) {
		engine := resolve(c)
		if engine == nil || !engine.Restricted() {
			c.Next()
			return
		}

		c.Writer = &filterWriter{
			ResponseWriter: c.Writer,
			apply: func() {
				header := c.Writer.Header()
				values := header.Values("Set-Cookie")
				if len(values) == 0 {
					return
				}
				kept := values[:0:0]
				for _, raw := range values {
					id, err := schemas.ParseSetCookie(raw)
					if err != nil {
						kept = append(kept, raw)
						continue
					}
					if id.Domain == "" {
						id.Domain = c.Request.Host
					}
					if engine.ShouldBlock(id) {
						log.Debug("Suppressed Set-Cookie header",
							zap.String("cookie", id.Name))
						continue
					}
					kept = append(kept, raw)
				}
				header.Del("Set-Cookie")
				for _, raw := range kept {
					header.Add("Set-Cookie", raw)
				}
			},
		}
		c.Next()
	}
}

// Detection returns middleware that records outgoing Set-Cookie headers
// into the observer. Strictly read-only.
func Detection(observer Observer, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("httpdetect")
	return func(c *gin.Context) {
		c.Writer = &filterWriter{
			ResponseWriter: c.Writer,
			apply: func() {
				for _, raw := range c.Writer.Header().Values("Set-Cookie") {
					id, err := schemas.ParseSetCookie(raw)
					if err != nil {
						continue
					}
					if id.Domain == "" {
						id.Domain = c.Request.Host
					}
					observer.ObserveSetCookie(c, id)
					log.Debug("Observed outgoing cookie", zap.String("cookie", id.Name))
				}
			},
		}
		c.Next()
	}
}

// filterWriter runs apply exactly once, immediately before the wrapped
// writer flushes headers. Writes that arrive after the flush pass through.
type filterWriter struct {
	gin.ResponseWriter
	apply   func()
	applied bool
}

func (w *filterWriter) beforeFlush() {
	if w.applied || w.ResponseWriter.Written() {
		w.applied = true
		return
	}
	w.applied = true
	w.apply()
}

func (w *filterWriter) WriteHeader(code int) {
	w.beforeFlush()
	w.ResponseWriter.WriteHeader(code)
}

func (w *filterWriter) WriteHeaderNow() {
	w.beforeFlush()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *filterWriter) Write(b []byte) (int, error) {
	w.beforeFlush()
	return w.ResponseWriter.Write(b)
}

func (w *filterWriter) WriteString(s string) (int, error) {
	w.beforeFlush()
	return w.ResponseWriter.WriteString(s)
}
