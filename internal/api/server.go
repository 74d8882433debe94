// Package api exposes the consent sync endpoints consumed by the client
// runtime, plus the admin CRUD surface. Auth for the admin group is left to
// the deployment (reverse proxy); the consent endpoints are protected by a
// stateless anti-forgery token.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
	"github.com/xkilldash9x/consentgate/internal/consent"
	"github.com/xkilldash9x/consentgate/internal/detector"
	"github.com/xkilldash9x/consentgate/internal/httpfilter"
	"github.com/xkilldash9x/consentgate/internal/session"
)

// Config carries the server's tunables.
type Config struct {
	// Secret keys both the session pseudo-identity and the anti-forgery
	// tokens.
	Secret string
	// SessionTTL is how long a stored preference record lives.
	SessionTTL time.Duration
}

// Server wires the consent engine, stores, and detector behind a gin
// router. Construct with NewServer, serve the result of Handler.
type Server struct {
	cfg      Config
	rules    schemas.RuleStore
	prefs    schemas.PreferenceStore
	detector *detector.Detector
	log      *zap.Logger
	router   *gin.Engine
}

// NewServer assembles the router with the response-filter middleware pair
// in front of every route.
func NewServer(cfg Config, rules schemas.RuleStore, prefs schemas.PreferenceStore, det *detector.Detector, logger *zap.Logger) *Server {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = session.DefaultTTL
	}
	s := &Server{
		cfg:      cfg,
		rules:    rules,
		prefs:    prefs,
		detector: det,
		log:      logger.Named("api"),
		router:   gin.New(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(httpfilter.Blocking(s.engineFor, s.log))
	s.router.Use(httpfilter.Detection(s, s.log))

	cg := s.router.Group("/consent")
	cg.GET("/token", s.handleToken)
	cg.GET("/sync", s.handleSync)
	cg.POST("/preference", s.requireToken, s.handleSavePreference)
	cg.POST("/categories", s.requireToken, s.handleSaveCategories)

	s.router.POST("/detect/log", s.requireToken, s.handleLogDetected)

	admin := s.router.Group("/admin")
	admin.GET("/categories", s.handleListCategories)
	admin.POST("/categories", s.handleSaveCategory)
	admin.DELETE("/categories/:id", s.handleDeleteCategory)
	admin.GET("/mappings", s.handleListMappings)
	admin.POST("/mappings", s.handleSaveMapping)
	admin.DELETE("/mappings/:id", s.handleDeleteMapping)
	admin.GET("/detected", s.handleListDetected)
	admin.POST("/detected/:key/assign", s.handleAssignDetected)
	admin.GET("/settings", s.handleGetSettings)
	admin.PUT("/settings", s.handleSaveSettings)

	return s
}

// Handler returns the router for mounting into an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// sessionKey derives the caller's pseudo-identity. Collisions behind shared
// NATs are accepted; this is a preference mirror, not authentication.
func (s *Server) sessionKey(c *gin.Context) string {
	return session.Key(c.Request.RemoteAddr, c.Request.UserAgent(), s.cfg.Secret)
}

// engineFor builds the per-request decision engine. Any load failure
// results in a nil engine, which disables filtering for the request.
func (s *Server) engineFor(c *gin.Context) *consent.Engine {
	ctx := c.Request.Context()

	settings, err := s.rules.Settings(ctx)
	if err != nil {
		s.log.Warn("Failed to load settings, allowing all cookies", zap.Error(err))
		return nil
	}
	categories, err := s.rules.Categories(ctx)
	if err != nil {
		s.log.Warn("Failed to load categories, allowing all cookies", zap.Error(err))
		return nil
	}
	mappings, err := s.rules.Mappings(ctx)
	if err != nil {
		s.log.Warn("Failed to load mappings, allowing all cookies", zap.Error(err))
		return nil
	}
	rec, err := s.prefs.Get(ctx, s.sessionKey(c))
	if err != nil {
		s.log.Warn("Failed to load preference record, allowing all cookies", zap.Error(err))
		return nil
	}

	table := consent.NewTable(mappings, s.log)
	return consent.DecideRecord(settings, rec, categories, table, s.log)
}

// ObserveSetCookie feeds the detection middleware into the detector.
func (s *Server) ObserveSetCookie(c *gin.Context, id schemas.Identity) {
	if s.detector == nil {
		return
	}
	if err := s.detector.Observe(c.Request.Context(), id, "http", c.FullPath()); err != nil {
		s.log.Warn("Failed to record detected cookie", zap.Error(err))
	}
}

// requireToken enforces the anti-forgery token on mutating endpoints.
func (s *Server) requireToken(c *gin.Context) {
	token := c.GetHeader("X-Consent-Token")
	if err := verifyToken([]byte(s.cfg.Secret), s.sessionKey(c), token, time.Now()); err != nil {
		if !errors.Is(err, errBadToken) {
			s.log.Warn("Token verification failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid token"})
		return
	}
	c.Next()
}

// Run serves until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("API server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
