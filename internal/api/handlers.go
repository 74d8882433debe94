package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
	"github.com/xkilldash9x/consentgate/internal/consent"
)

// -- Consent endpoints --

func (s *Server) handleToken(c *gin.Context) {
	token := issueToken([]byte(s.cfg.Secret), s.sessionKey(c), time.Now())
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// handleSync returns the stored preference state for the caller's session,
// falling back to the undetermined-visitor defaults.
func (s *Server) handleSync(c *gin.Context) {
	ctx := c.Request.Context()

	settings, err := s.rules.Settings(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings unavailable"})
		return
	}
	categories, err := s.rules.Categories(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "categories unavailable"})
		return
	}

	rec, err := s.prefs.Get(ctx, s.sessionKey(c))
	if err != nil {
		s.log.Warn("Failed to load preference record for sync", zap.Error(err))
	}
	if rec == nil {
		rec = &schemas.PreferenceRecord{
			Categories: consent.DefaultSnapshot(categories),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"mode":        settings.Mode,
		"value":       rec.Simple,
		"preferences": consent.Sanitize(rec.Categories, categories),
	})
}

type savePreferenceRequest struct {
	Value schemas.SimplePreference `json:"value" binding:"required"`
}

func (s *Server) handleSavePreference(c *gin.Context) {
	var req savePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Value != schemas.PreferenceAccepted && req.Value != schemas.PreferenceDeclined {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value must be accepted or declined"})
		return
	}

	ctx := c.Request.Context()
	key := s.sessionKey(c)

	rec, err := s.prefs.Get(ctx, key)
	if err != nil || rec == nil {
		rec = &schemas.PreferenceRecord{}
	}
	rec.Simple = req.Value
	rec.SavedAt = time.Now().UTC()

	if err := s.prefs.Set(ctx, key, *rec, s.cfg.SessionTTL); err != nil {
		s.log.Error("Failed to store preference", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type saveCategoriesRequest struct {
	Preferences schemas.Snapshot `json:"preferences" binding:"required"`
}

// handleSaveCategories stores a category snapshot and switches the site
// into category mode, mirroring the client's source of truth.
func (s *Server) handleSaveCategories(c *gin.Context) {
	var req saveCategoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	categories, err := s.rules.Categories(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "categories unavailable"})
		return
	}

	key := s.sessionKey(c)
	rec, err := s.prefs.Get(ctx, key)
	if err != nil || rec == nil {
		rec = &schemas.PreferenceRecord{}
	}
	rec.Categories = consent.Sanitize(req.Preferences, categories)
	rec.SavedAt = time.Now().UTC()

	if err := s.prefs.Set(ctx, key, *rec, s.cfg.SessionTTL); err != nil {
		s.log.Error("Failed to store category preferences", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
		return
	}

	settings, err := s.rules.Settings(ctx)
	if err == nil && settings.Mode != schemas.ModeCategories {
		settings.Mode = schemas.ModeCategories
		if err := s.rules.SaveSettings(ctx, settings); err != nil {
			s.log.Warn("Failed to switch to category mode", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"preferences": rec.Categories})
}

type logDetectedRequest struct {
	Cookies []string `json:"cookies" binding:"required"`
	Source  string   `json:"source"`
}

// handleLogDetected is fire-and-forget from the client's perspective:
// individual parse failures are skipped, not reported.
func (s *Server) handleLogDetected(c *gin.Context) {
	var req logDetectedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.detector == nil {
		c.Status(http.StatusAccepted)
		return
	}
	if req.Source == "" {
		req.Source = "script"
	}

	ctx := c.Request.Context()
	for _, raw := range req.Cookies {
		id, err := schemas.ParseSetCookie(raw)
		if err != nil {
			continue
		}
		if id.Domain == "" {
			id.Domain = c.Request.Host
		}
		if err := s.detector.Observe(ctx, id, req.Source, ""); err != nil {
			s.log.Warn("Failed to record detected cookie", zap.Error(err))
		}
	}
	c.Status(http.StatusAccepted)
}

// -- Admin endpoints --

func (s *Server) handleListCategories(c *gin.Context) {
	cats, err := s.rules.Categories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cats)
}

func (s *Server) handleSaveCategory(c *gin.Context) {
	var cat schemas.Category
	if err := c.ShouldBindJSON(&cat); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if cat.ID == "" || cat.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and name are required"})
		return
	}
	if err := s.rules.SaveCategory(c.Request.Context(), cat); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cat)
}

func (s *Server) handleDeleteCategory(c *gin.Context) {
	if err := s.rules.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListMappings(c *gin.Context) {
	rules, err := s.rules.Mappings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (s *Server) handleSaveMapping(c *gin.Context) {
	var rule schemas.MappingRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rule.Pattern == "" || rule.Category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pattern and category are required"})
		return
	}
	saved, err := s.rules.SaveMapping(c.Request.Context(), rule)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) handleDeleteMapping(c *gin.Context) {
	if err := s.rules.DeleteMapping(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListDetected(c *gin.Context) {
	if s.detector == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	detected, err := s.detector.Inventory(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detected)
}

type assignRequest struct {
	Category string `json:"category" binding:"required"`
}

func (s *Server) handleAssignDetected(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.detector == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "detection disabled"})
		return
	}
	if err := s.detector.Assign(c.Request.Context(), c.Param("key"), req.Category); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetSettings(c *gin.Context) {
	settings, err := s.rules.Settings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleSaveSettings(c *gin.Context) {
	var settings schemas.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !settings.Mode.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown mode"})
		return
	}
	if err := s.rules.SaveSettings(c.Request.Context(), settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}
