// admin.go - privacy-conscious visitor tracking and the admin dashboard
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Zachkp/stats-consult/internal/auth"
	"github.com/Zachkp/stats-consult/internal/blob"
	"github.com/Zachkp/stats-consult/internal/errors"
	"github.com/Zachkp/stats-consult/internal/store"
)

const (
	sessionCookie = "admin_session"
	userKey       = "user"

	// Files one project form may carry: cover, document and gallery.
	maxFilesPerRequest = 12
)

// Hash IP address for privacy compliance (consistent per IP)
func (s *Server) hashIP(ip string) string {
	hash := sha256.New()
	hash.Write([]byte(ip + s.cfg.HashSalt))
	return hex.EncodeToString(hash.Sum(nil))[:16] // Truncate for storage efficiency
}

// Privacy-conscious visitor tracking middleware
func (s *Server) visitorTrackingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip tracking for assets, admin pages and background fetches
		path := c.Request.URL.Path
		if c.Request.Method != http.MethodGet ||
			isHTMX(c) ||
			strings.HasPrefix(path, "/static/") ||
			strings.HasPrefix(path, s.cfg.UploadURLPrefix+"/") ||
			strings.HasPrefix(path, "/admin/") ||
			strings.HasPrefix(path, "/favicon") ||
			strings.HasPrefix(path, "/privacy") ||
			path == "/background.svg" {
			c.Next()
			return
		}

		// Respect Do Not Track header
		if c.GetHeader("DNT") == "1" || c.GetHeader("Sec-GPC") == "1" {
			c.Next()
			return
		}

		hashed, ua := s.hashIP(c.ClientIP()), c.GetHeader("User-Agent")
		s.background(func(ctx context.Context) {
			if err := s.store.RecordVisit(ctx, hashed, ua, path); err != nil {
				log.Printf("Error recording visitor: %v", err)
			}
		})
		c.Next()
	}
}

// cleanup removes visitor records past retention and expired sessions.
func (s *Server) cleanup(ctx context.Context) (visits, sessions int64, err error) {
	if visits, err = s.store.PruneVisits(ctx, s.cfg.VisitorRetention); err != nil {
		return 0, 0, err
	}
	if sessions, err = s.auth.PruneSessions(ctx); err != nil {
		return visits, 0, err
	}
	if visits > 0 {
		log.Printf("Privacy cleanup: Removed %d visitor records older than %s", visits, s.cfg.VisitorRetention)
	}
	return visits, sessions, nil
}

// runCleanup calls cleanup now and then every interval until ctx ends.
func (s *Server) runCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, _, err := s.cleanup(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Error cleaning up old data: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Middleware to check admin authentication
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(sessionCookie)
		user, err := s.auth.CurrentUser(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, errors.ErrUnauthorized) {
				s.renderError(c, err)
				return
			}
			switch {
			case isHTMX(c):
				c.Header("HX-Redirect", "/admin/login")
				c.AbortWithStatus(http.StatusUnauthorized)
			case wantsJSON(c):
				s.renderError(c, err)
			default:
				c.Redirect(http.StatusFound, "/admin/login")
				c.Abort()
			}
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func (s *Server) setSession(c *gin.Context, sess *auth.Session) {
	c.SetSameSite(http.SameSiteLaxMode)
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	c.SetCookie(sessionCookie, sess.Token, maxAge, "/admin", "", gin.Mode() == gin.ReleaseMode, true)
}

// Setup all admin routes
func (s *Server) setupAdminRoutes(r *gin.Engine) {
	// Privacy policy route
	r.GET("/privacy", func(c *gin.Context) {
		c.HTML(http.StatusOK, "privacy.html", s.page(c, gin.H{
			"title":     "Privacy Policy",
			"policy":    PrivacyPolicy,
			"retention": retentionLabel(s.cfg.VisitorRetention),
		}))
	})

	r.GET("/admin/login", func(c *gin.Context) {
		c.HTML(http.StatusOK, "admin-login.html", s.page(c, gin.H{
			"title":  "Admin Login",
			"signup": s.cfg.AllowSignup,
		}))
	})
	r.POST("/admin/login", s.handleLogin)
	r.POST("/admin/signup", s.handleSignup)

	r.GET("/admin/logout", func(c *gin.Context) {
		token, _ := c.Cookie(sessionCookie)
		if err := s.auth.SignOut(c.Request.Context(), token); err != nil {
			log.Printf("Error ending session: %v", err)
		}
		c.SetCookie(sessionCookie, "", -1, "/admin", "", false, true)
		log.Printf("Admin logout from %s", s.hashIP(c.ClientIP()))
		c.Redirect(http.StatusFound, "/admin/login")
	})

	// Protected admin routes group
	adminGroup := r.Group("/admin")
	adminGroup.Use(s.adminAuthMiddleware())

	adminGroup.GET("/dashboard", s.handleDashboard)

	// Admin API endpoints for HTMX/AJAX
	adminGroup.GET("/api/stats", func(c *gin.Context) {
		stats, err := s.store.Stats(c.Request.Context())
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	// Admin statistics export (for backups or analysis)
	adminGroup.GET("/export/stats", func(c *gin.Context) {
		stats, err := s.store.Stats(c.Request.Context())
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.Header("Content-Disposition", "attachment; filename=admin-stats.json")
		log.Printf("Admin stats exported by %s", s.hashIP(c.ClientIP()))
		c.JSON(http.StatusOK, stats)
	})

	adminGroup.POST("/messages/:id/read", s.handleMarkRead)
	adminGroup.DELETE("/messages/:id", s.handleDeleteMessage)
	adminGroup.POST("/messages/delete", s.handleBulkDelete)

	adminGroup.POST("/projects", s.handleSaveProject)
	adminGroup.POST("/projects/:id", s.handleSaveProject)
	adminGroup.GET("/projects/:id/edit", s.handleEditProject)
	adminGroup.DELETE("/projects/:id", s.handleDeleteProject)

	adminGroup.POST("/privacy/cleanup", func(c *gin.Context) {
		visits, sessions, err := s.cleanup(c.Request.Context())
		if err != nil {
			s.renderError(c, err)
			return
		}
		log.Printf("Privacy cleanup run by %s", s.hashIP(c.ClientIP()))
		if isHTMX(c) {
			c.String(http.StatusOK, "Removed %d visitor records and %d expired sessions.", visits, sessions)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":          "Privacy cleanup complete",
			"visits_removed":   visits,
			"sessions_removed": sessions,
		})
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	sess, err := s.auth.SignIn(c.Request.Context(), c.PostForm("email"), c.PostForm("password"))
	if err != nil {
		if !errors.Is(err, errors.ErrUnauthorized) {
			s.renderError(c, err)
			return
		}
		log.Printf("Failed admin login attempt from %s", s.hashIP(c.ClientIP()))
		c.HTML(http.StatusUnauthorized, "admin-login.html", s.page(c, gin.H{
			"title":  "Admin Login",
			"signup": s.cfg.AllowSignup,
			"email":  c.PostForm("email"),
			"error":  "Invalid credentials",
		}))
		return
	}
	s.setSession(c, sess)
	log.Printf("Admin login successful from %s", s.hashIP(c.ClientIP()))
	c.Redirect(http.StatusFound, "/admin/dashboard")
}

func (s *Server) handleSignup(c *gin.Context) {
	if !s.cfg.AllowSignup {
		s.renderError(c, errors.NewForbidden("sign-up is disabled"))
		return
	}
	var creds auth.Credentials
	if err := c.ShouldBind(&creds); err != nil {
		s.renderError(c, errors.NewInvalidRequest("malformed form"))
		return
	}
	sess, err := s.auth.SignUp(c.Request.Context(), creds)
	if err != nil {
		if errors.Is(err, errors.ErrValidation) || errors.Is(err, errors.ErrConflict) {
			sErr := errors.As(err)
			c.HTML(sErr.Status, "admin-login.html", s.page(c, gin.H{
				"title":        "Admin Sign Up",
				"signup":       true,
				"signupEmail":  creds.Email,
				"signupName":   creds.FullName,
				"signupError":  sErr.Message,
				"signupFields": sErr.Fields,
			}))
			return
		}
		s.renderError(c, err)
		return
	}
	s.setSession(c, sess)
	log.Printf("Admin account created from %s", s.hashIP(c.ClientIP()))
	c.Redirect(http.StatusFound, "/admin/dashboard")
}

func (s *Server) handleDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.renderError(c, err)
		return
	}
	messages, err := s.store.ListMessages(ctx)
	if err != nil {
		s.renderError(c, err)
		return
	}
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.HTML(http.StatusOK, "admin-dashboard.html", s.page(c, gin.H{
		"title":    "Dashboard",
		"user":     c.MustGet(userKey).(*auth.User),
		"stats":    stats,
		"messages": messages,
		"projects": projects,
		"form":     projectForm{Values: store.ProjectInput{ImagePosition: store.DefaultImagePosition}},
	}))
}

func (s *Server) handleMarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.store.MarkMessageRead(ctx, c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	m, err := s.store.GetMessage(ctx, c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	if wantsJSON(c) {
		c.JSON(http.StatusOK, m)
		return
	}
	c.HTML(http.StatusOK, "admin-message.html", m)
}

func (s *Server) handleDeleteMessage(c *gin.Context) {
	if err := s.store.DeleteMessage(c.Request.Context(), c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	log.Printf("Message %s deleted by admin from %s", c.Param("id"), s.hashIP(c.ClientIP()))
	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"message": "Message deleted successfully"})
		return
	}
	// HTMX removes the row when the response is empty.
	c.Status(http.StatusOK)
}

func (s *Server) handleBulkDelete(c *gin.Context) {
	ctx := c.Request.Context()
	ids := c.PostFormArray("ids")
	if len(ids) == 0 {
		s.renderError(c, errors.NewInvalidRequest("select at least one message"))
		return
	}
	n, err := s.store.DeleteMessages(ctx, ids)
	if err != nil {
		s.renderError(c, err)
		return
	}
	log.Printf("%d messages deleted by admin from %s", n, s.hashIP(c.ClientIP()))
	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"deleted": n})
		return
	}
	messages, err := s.store.ListMessages(ctx)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.HTML(http.StatusOK, "admin-messages.html", gin.H{"messages": messages})
}

// projectForm is the project editor's view model.
type projectForm struct {
	ID     string
	Values store.ProjectInput
	Errors map[string]string
}

func (s *Server) handleEditProject(c *gin.Context) {
	p, err := s.store.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.HTML(http.StatusOK, "admin-project-form.html", projectForm{
		ID: p.ID,
		Values: store.ProjectInput{
			Title:         p.Title,
			Description:   p.Description,
			ImageURL:      p.ImageURL,
			Gallery:       p.Gallery,
			Link:          p.Link,
			FileURL:       p.FileURL,
			ImagePosition: p.ImagePosition,
		},
	})
}

// handleSaveProject creates (no :id) or updates a project from a multipart
// form. New uploads replace the matching URL fields; replaced files are
// deleted once the record is saved.
func (s *Server) handleSaveProject(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes*maxFilesPerRequest)

	var in store.ProjectInput
	if err := c.ShouldBind(&in); err != nil {
		var tooBig *http.MaxBytesError
		if stderrors.As(err, &tooBig) {
			s.renderError(c, errors.NewTooLarge(tooBig.Limit, c.Request.ContentLength))
			return
		}
		s.renderError(c, errors.NewInvalidRequest("malformed form"))
		return
	}

	var old *store.Project
	if id != "" {
		p, err := s.store.GetProject(ctx, id)
		if err != nil {
			s.renderError(c, err)
			return
		}
		old = p
	}
	if c.PostForm("remove_image") == "on" {
		in.ImageURL = ""
	}
	if c.PostForm("remove_file") == "on" {
		in.FileURL = ""
	}

	submitted := in
	uploaded, err := s.storeUploads(c, &in)
	if err != nil {
		s.discard(uploaded)
		s.renderError(c, err)
		return
	}

	var saved *store.Project
	if old == nil {
		saved, err = s.store.CreateProject(ctx, in)
	} else {
		saved, err = s.store.UpdateProject(ctx, id, in)
	}
	if err != nil {
		s.discard(uploaded)
		if errors.Is(err, errors.ErrValidation) && isHTMX(c) {
			c.Header("HX-Retarget", "#project-form")
			c.Header("HX-Reswap", "outerHTML")
			c.HTML(http.StatusOK, "admin-project-form.html", projectForm{ID: id, Values: submitted, Errors: errors.As(err).Fields})
			return
		}
		s.renderError(c, err)
		return
	}
	if old != nil {
		s.discard(orphaned(old, saved))
	}
	log.Printf("Project %s saved by admin from %s", saved.ID, s.hashIP(c.ClientIP()))

	if wantsJSON(c) {
		c.JSON(http.StatusOK, saved)
		return
	}
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.HTML(http.StatusOK, "admin-projects.html", gin.H{
		"projects": projects,
		"form":     projectForm{Values: store.ProjectInput{ImagePosition: store.DefaultImagePosition}},
	})
}

// storeUploads saves the form's files and points in at them. It returns the
// URLs written so far, even on error.
func (s *Server) storeUploads(c *gin.Context, in *store.ProjectInput) ([]string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		// Plain urlencoded forms carry no files.
		return nil, nil
	}

	var urls []string
	put := func(fh *multipart.FileHeader, kind blob.Kind) (string, error) {
		f, err := fh.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
		}
		defer f.Close()
		obj, err := s.blobs.Put(f, kind)
		if err != nil {
			return "", err
		}
		urls = append(urls, obj.URL)
		return obj.URL, nil
	}

	if fhs := form.File["image"]; len(fhs) > 0 {
		if in.ImageURL, err = put(fhs[0], blob.Image); err != nil {
			return urls, err
		}
	}
	if fhs := form.File["document"]; len(fhs) > 0 {
		if in.FileURL, err = put(fhs[0], blob.Document); err != nil {
			return urls, err
		}
	}
	for _, fh := range form.File["gallery_files"] {
		u, err := put(fh, blob.Image)
		if err != nil {
			return urls, err
		}
		in.Gallery = append(in.Gallery, u)
	}
	return urls, nil
}

// orphaned lists the URLs old referenced that saved no longer does.
func orphaned(old, saved *store.Project) []string {
	keep := map[string]bool{saved.ImageURL: true, saved.FileURL: true}
	for _, g := range saved.Gallery {
		keep[g] = true
	}
	var gone []string
	for _, u := range append([]string{old.ImageURL, old.FileURL}, old.Gallery...) {
		if u != "" && !keep[u] {
			gone = append(gone, u)
		}
	}
	return gone
}

// discard deletes uploads this site owns. URLs pointing elsewhere are left
// alone.
func (s *Server) discard(urls []string) {
	for _, u := range urls {
		key, ok := s.blobs.KeyFromURL(u)
		if !ok {
			continue
		}
		if err := s.blobs.Delete(key); err != nil && !errors.Is(err, errors.ErrNotFound) {
			log.Printf("Error deleting upload %s: %v", key, err)
		}
	}
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := s.store.GetProject(ctx, c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	if err := s.store.DeleteProject(ctx, p.ID); err != nil {
		s.renderError(c, err)
		return
	}
	s.discard(append([]string{p.ImageURL, p.FileURL}, p.Gallery...))
	log.Printf("Project %s deleted by admin from %s", p.ID, s.hashIP(c.ClientIP()))
	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"message": "Project deleted successfully"})
		return
	}
	c.Status(http.StatusOK)
}

func retentionLabel(d time.Duration) string {
	days := int(d.Hours() / 24)
	switch {
	case days >= 365 && days%365 == 0:
		if days == 365 {
			return "12 months"
		}
		return fmt.Sprintf("%d years", days/365)
	case days >= 1:
		return fmt.Sprintf("%d days", days)
	default:
		return d.String()
	}
}
