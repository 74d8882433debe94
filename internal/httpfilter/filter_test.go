package httpfilter

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
	"github.com/xkilldash9x/consentgate/internal/consent"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []schemas.Identity
}

func (o *recordingObserver) ObserveSetCookie(_ *gin.Context, id schemas.Identity) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, id)
}

func blockingEngine(t *testing.T) *consent.Engine {
	t.Helper()
	table := consent.NewTable([]schemas.MappingRule{
		{ID: "r1", Pattern: "_ga*", Category: "analytics", Priority: 50},
		{ID: "r2", Pattern: "wordpress_*", Category: "essential", Priority: 100, Position: 1},
	}, zap.NewNop())
	categories := []schemas.Category{
		{ID: "essential", Required: true, DefaultEnabled: true},
		{ID: "analytics"},
		{ID: "marketing"},
	}
	return consent.NewEngine(schemas.ModeCategories, schemas.PreferenceUnset,
		schemas.Snapshot{"essential": true, "analytics": false, "marketing": true},
		categories, table, zap.NewNop())
}

func newRouter(engine *consent.Engine, observer Observer) *gin.Engine {
	r := gin.New()
	resolve := func(*gin.Context) *consent.Engine { return engine }
	r.Use(Blocking(resolve, zap.NewNop()))
	if observer != nil {
		r.Use(Detection(observer, zap.NewNop()))
	}
	r.GET("/set", func(c *gin.Context) {
		c.Header("Set-Cookie", "_ga=GA1.2.3; Path=/")
		c.Writer.Header().Add("Set-Cookie", "wordpress_logged_in=abc; Path=/; HttpOnly")
		c.Writer.Header().Add("Set-Cookie", "custom=1; Path=/")
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestBlocking(t *testing.T) {
	t.Run("strips disallowed cookies before flush", func(t *testing.T) {
		r := newRouter(blockingEngine(t), nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/set", nil)
		r.ServeHTTP(w, req)

		cookies := w.Result().Header.Values("Set-Cookie")
		require.NotEmpty(t, cookies)
		joined := ""
		for _, c := range cookies {
			joined += c + "\n"
		}
		assert.NotContains(t, joined, "_ga=", "Declined analytics cookie should be suppressed")
		assert.Contains(t, joined, "wordpress_logged_in=", "Required category survives")
		assert.Contains(t, joined, "custom=", "Unmapped cookie survives while some categories are accepted")
	})

	t.Run("nil engine disables filtering", func(t *testing.T) {
		r := newRouter(nil, nil)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/set", nil))

		assert.Len(t, w.Result().Header.Values("Set-Cookie"), 3)
	})

	t.Run("permissive engine leaves headers alone", func(t *testing.T) {
		table := consent.NewTable(nil, zap.NewNop())
		engine := consent.NewEngine(schemas.ModeSimple, schemas.PreferenceAccepted,
			nil, nil, table, zap.NewNop())
		r := newRouter(engine, nil)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/set", nil))

		assert.Len(t, w.Result().Header.Values("Set-Cookie"), 3)
	})

	t.Run("simple mode decline blocks everything", func(t *testing.T) {
		table := consent.NewTable(nil, zap.NewNop())
		engine := consent.NewEngine(schemas.ModeSimple, schemas.PreferenceDeclined,
			nil, nil, table, zap.NewNop())
		r := newRouter(engine, nil)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/set", nil))

		assert.Empty(t, w.Result().Header.Values("Set-Cookie"))
	})
}

func TestDetection(t *testing.T) {
	t.Run("records the unfiltered cookie set", func(t *testing.T) {
		observer := &recordingObserver{}
		r := newRouter(blockingEngine(t), observer)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/set", nil)
		req.Host = "example.com"
		r.ServeHTTP(w, req)

		require.Len(t, observer.seen, 3, "Detection must see cookies that blocking later removes")
		names := map[string]bool{}
		for _, id := range observer.seen {
			names[id.Name] = true
			assert.Equal(t, "example.com", id.Domain, "Host fills in a missing domain")
		}
		assert.True(t, names["_ga"])
		assert.True(t, names["custom"])

		// And the response itself is still filtered.
		joined := ""
		for _, c := range w.Result().Header.Values("Set-Cookie") {
			joined += c + "\n"
		}
		assert.NotContains(t, joined, "_ga=")
	})
}
