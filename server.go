package main

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Zachkp/stats-consult/internal/auth"
	"github.com/Zachkp/stats-consult/internal/background"
	"github.com/Zachkp/stats-consult/internal/blob"
	"github.com/Zachkp/stats-consult/internal/config"
	"github.com/Zachkp/stats-consult/internal/content"
	"github.com/Zachkp/stats-consult/internal/errors"
	"github.com/Zachkp/stats-consult/internal/markdown"
	"github.com/Zachkp/stats-consult/internal/notify"
	"github.com/Zachkp/stats-consult/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:generate sh -c "GOOS=js GOARCH=wasm go build -o static/background.wasm ./cmd/bgwasm && cp \"$(go env GOROOT)/lib/wasm/wasm_exec.js\" static/"

//go:embed static
var staticFS embed.FS

const themeCookie = "theme"

// siteStore is everything the handlers need from the record store.
type siteStore interface {
	store.ProjectStore
	store.MessageStore
	RecordVisit(ctx context.Context, hashedIP, userAgent, path string) error
	PruneVisits(ctx context.Context, retention time.Duration) (int64, error)
	Stats(ctx context.Context) (*store.Stats, error)
}

type accounts interface {
	auth.Authenticator
	PruneSessions(ctx context.Context) (int64, error)
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	Store    siteStore
	Auth     accounts
	Blobs    blob.Store
	Notifier notify.Notifier
	Site     *content.Site
}

type Server struct {
	cfg      *config.Config
	store    siteStore
	auth     accounts
	blobs    blob.Store
	notifier notify.Notifier
	site     *content.Site

	// tracking counts background writes (visits, notifications) still in
	// flight.
	tracking sync.WaitGroup
}

func NewServer(cfg *config.Config, d Deps) *Server {
	return &Server{
		cfg:      cfg,
		store:    d.Store,
		auth:     d.Auth,
		blobs:    d.Blobs,
		notifier: d.Notifier,
		site:     d.Site,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	if err := r.SetTrustedProxies(s.cfg.TrustedProxies); err != nil {
		log.Printf("Ignoring TRUSTED_PROXIES: %v", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.SetHTMLTemplate(template.Must(template.New("").Funcs(templateFuncs()).ParseFS(templateFS, "templates/*.html")))
	r.MaxMultipartMemory = 8 << 20

	r.Use(securityHeaders())
	r.Use(s.visitorTrackingMiddleware())

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("failed to create static sub-FS: %v", err)
	}
	r.StaticFS("/static", http.FS(static))
	r.Static(s.cfg.UploadURLPrefix, s.cfg.UploadDir)

	r.GET("/", s.handleIndex)
	r.GET("/projects/:id", s.handleProject)

	// HTMX Contact form endpoint - returns just the form HTML
	r.GET("/contact-form", func(c *gin.Context) {
		c.HTML(http.StatusOK, "contact.html", gin.H{"form": contactForm{}})
	})
	r.POST("/contact", s.handleContact)
	r.POST("/theme", s.handleTheme)
	r.GET("/background.svg", s.handleBackground)

	s.setupAdminRoutes(r)
	return r
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"markdown": markdown.Render,
		"excerpt":  markdown.Excerpt,
		"formatTime": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04")
		},
		"initial": func(s string) string {
			for _, r := range s {
				return strings.ToUpper(string(r))
			}
			return ""
		},
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", "default-src 'self'; script-src 'self' 'wasm-unsafe-eval' https://unpkg.com; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// page adds the fields every full page template reads.
func (s *Server) page(c *gin.Context, data gin.H) gin.H {
	if data == nil {
		data = gin.H{}
	}
	data["theme"] = currentTheme(c)
	data["site"] = s.site
	data["year"] = time.Now().Year()
	data["version"] = Version
	return data
}

func (s *Server) handleIndex(c *gin.Context) {
	projects, err := s.store.ListProjects(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.HTML(http.StatusOK, "index.html", s.page(c, gin.H{
		"projects": projects,
		"form":     contactForm{},
	}))
}

func (s *Server) handleProject(c *gin.Context) {
	p, err := s.store.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.HTML(http.StatusOK, "project-details.html", gin.H{"project": p})
}

// contactForm is the contact form's view model: what was typed and what
// was wrong with it.
type contactForm struct {
	Values store.MessageInput
	Errors map[string]string
}

// Handle contact form submission with HTMX
func (s *Server) handleContact(c *gin.Context) {
	var in store.MessageInput
	if err := c.ShouldBind(&in); err != nil {
		s.renderError(c, errors.NewInvalidRequest("malformed form"))
		return
	}

	msg, err := s.store.CreateMessage(c.Request.Context(), in)
	if err != nil {
		if errors.Is(err, errors.ErrValidation) && isHTMX(c) {
			// HTMX only swaps 2xx responses.
			c.HTML(http.StatusOK, "contact.html", gin.H{
				"form": contactForm{Values: in, Errors: errors.As(err).Fields},
			})
			return
		}
		if !errors.Is(err, errors.ErrValidation) {
			log.Printf("Error storing contact message: %v", err)
		}
		s.renderError(c, err)
		return
	}
	log.Printf("Contact message %s stored from %s", msg.ID, s.hashIP(c.ClientIP()))

	// The message is already stored; mail is best effort.
	s.background(func(ctx context.Context) {
		if err := s.notifier.ContactReceived(ctx, msg); err != nil {
			log.Printf("Error sending contact email: %v", err)
		}
	})

	if wantsJSON(c) {
		c.JSON(http.StatusCreated, msg)
		return
	}
	c.HTML(http.StatusOK, "contact-success.html", gin.H{"success": ContactSuccess})
}

func currentTheme(c *gin.Context) background.Theme {
	v, _ := c.Cookie(themeCookie)
	return background.ParseTheme(v)
}

// nextTheme is what the toggle switches to. From system it picks the
// opposite of what the platform is currently showing.
func nextTheme(current background.Theme, systemDark bool) background.Theme {
	if background.ResolveDark(current, systemDark) {
		return background.ThemeLight
	}
	return background.ThemeDark
}

func (s *Server) handleTheme(c *gin.Context) {
	systemDark, _ := strconv.ParseBool(c.PostForm("system_dark"))
	theme := nextTheme(currentTheme(c), systemDark)

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(themeCookie, string(theme), 365*24*3600, "/", "", false, true)

	switch {
	case wantsJSON(c):
		c.JSON(http.StatusOK, gin.H{"theme": theme})
	case isHTMX(c):
		c.Header("HX-Trigger", fmt.Sprintf(`{"theme-changed":{"value":%q}}`, theme))
		c.HTML(http.StatusOK, "theme-toggle.html", gin.H{"theme": theme})
	default:
		c.Redirect(http.StatusSeeOther, "/")
	}
}

// handleBackground serves a still frame of the particle field for visitors
// without WebAssembly.
func (s *Server) handleBackground(c *gin.Context) {
	opts := background.SnapshotOptions{
		Width:  1280,
		Height: 720,
		Frames: 60,
		Seed:   1,
		Theme:  currentTheme(c),
	}
	cacheControl := "public, max-age=3600"
	if v := c.Query("theme"); v != "" {
		opts.Theme = background.ParseTheme(v)
	} else {
		// The theme came from the cookie.
		cacheControl = "private, max-age=3600"
		c.Header("Vary", "Cookie")
	}
	opts.SystemDark = c.Query("system_dark") == "true"

	var err error
	for name, dst := range map[string]*int{"w": &opts.Width, "h": &opts.Height, "frames": &opts.Frames} {
		if v := c.Query(name); v != "" {
			if *dst, err = strconv.Atoi(v); err != nil {
				s.renderError(c, errors.NewInvalidRequest(name+" must be an integer"))
				return
			}
		}
	}
	if v := c.Query("seed"); v != "" {
		if opts.Seed, err = strconv.ParseUint(v, 10, 64); err != nil {
			s.renderError(c, errors.NewInvalidRequest("seed must be a non-negative integer"))
			return
		}
	}

	var buf bytes.Buffer
	if err := background.Snapshot(&buf, opts); err != nil {
		s.renderError(c, errors.NewInvalidRequest(err.Error()))
		return
	}
	c.Header("Cache-Control", cacheControl)
	c.Data(http.StatusOK, "image/svg+xml", buf.Bytes())
}

// background runs fn off the request path with its own deadline.
func (s *Server) background(fn func(ctx context.Context)) {
	s.tracking.Add(1)
	go func() {
		defer s.tracking.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

func isHTMX(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

// renderError renders err as an HTMX fragment, JSON or a full error page,
// depending on who asked.
func (s *Server) renderError(c *gin.Context, err error) {
	sErr := errors.As(err)
	message := sErr.Message
	if sErr.Code == errors.ErrInternal {
		log.Printf("Internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		message = "Something went wrong. Please try again later."
	}

	switch {
	case isHTMX(c):
		c.HTML(sErr.Status, "error-fragment.html", gin.H{"error": message, "fields": sErr.Fields})
	case wantsJSON(c):
		body := gin.H{
			"code":    string(sErr.Code),
			"message": message,
			"status":  sErr.Status,
		}
		if len(sErr.Fields) > 0 {
			body["fields"] = sErr.Fields
		}
		c.JSON(sErr.Status, gin.H{"error": body})
	default:
		c.HTML(sErr.Status, "error.html", s.page(c, gin.H{
			"status": sErr.Status,
			"error":  message,
			"fields": sErr.Fields,
		}))
	}
	c.Abort()
}
