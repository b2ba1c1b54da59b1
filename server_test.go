package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zachkp/stats-consult/internal/auth"
	"github.com/Zachkp/stats-consult/internal/background"
	"github.com/Zachkp/stats-consult/internal/blob"
	"github.com/Zachkp/stats-consult/internal/config"
	"github.com/Zachkp/stats-consult/internal/content"
	"github.com/Zachkp/stats-consult/internal/store"
)

const (
	testEmail    = "admin@example.com"
	testPassword = "correct horse"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*store.Message
}

func (n *recordingNotifier) ContactReceived(_ context.Context, m *store.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, m)
	return nil
}

type testSite struct {
	s      *Server
	db     *store.Store
	router *gin.Engine
	notes  *recordingNotifier
	blobs  *blob.Local
}

func setupServer(t *testing.T) *testSite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg, err := config.FromEnv(func(k string) string {
		return map[string]string{
			"DATA_DIR":  dir,
			"HASH_SALT": "test-salt",
		}[k]
	})
	require.NoError(t, err)

	db, err := store.Open(cfg.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs, err := blob.NewLocal(cfg.UploadDir, cfg.UploadURLPrefix, cfg.MaxUploadBytes)
	require.NoError(t, err)

	site, err := content.Load()
	require.NoError(t, err)

	accounts := auth.NewService(db.DB(), cfg.SessionTTL)
	_, err = accounts.EnsureUser(context.Background(), auth.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	notes := &recordingNotifier{}
	s := NewServer(cfg, Deps{Store: db, Auth: accounts, Blobs: blobs, Notifier: notes, Site: site})
	ts := &testSite{s: s, db: db, router: s.Router(), notes: notes, blobs: blobs}
	t.Cleanup(s.tracking.Wait)
	return ts
}

func (ts *testSite) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// login signs the test admin in and returns the session cookie.
func (ts *testSite) login(t *testing.T) *http.Cookie {
	t.Helper()
	w := ts.do(postForm("/admin/login", url.Values{"email": {testEmail}, "password": {testPassword}}))
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/dashboard", w.Header().Get("Location"))
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestIndex(t *testing.T) {
	ts := setupServer(t)

	_, err := ts.db.CreateProject(context.Background(), store.ProjectInput{Title: "Survival analysis", Description: "Cox models for a **cohort** study"})
	require.NoError(t, err)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Ghanem")
	assert.Contains(t, body, "Survival analysis")
	assert.Contains(t, body, `data-theme="system"`)
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'self'")
}

func TestProjectDetails(t *testing.T) {
	ts := setupServer(t)

	p, err := ts.db.CreateProject(context.Background(), store.ProjectInput{Title: "Meta-analysis", Description: "Pooled **effects**"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/projects/"+p.ID, nil)
	req.Header.Set("HX-Request", "true")
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<strong>effects</strong>")

	req = httptest.NewRequest(http.MethodGet, "/projects/missing", nil)
	req.Header.Set("Accept", "application/json")
	w = ts.do(req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"NOT_FOUND"`)
}

func TestContact_ValidationFragment(t *testing.T) {
	ts := setupServer(t)

	req := postForm("/contact", url.Values{"name": {"Ada"}, "email": {"not-an-email"}})
	req.Header.Set("HX-Request", "true")
	w := ts.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `class="field-error"`)
	assert.Contains(t, body, `value="Ada"`)

	msgs, err := ts.db.ListMessages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestContact_ValidationJSON(t *testing.T) {
	ts := setupServer(t)

	req := postForm("/contact", url.Values{"name": {"Ada"}})
	req.Header.Set("Accept", "application/json")
	w := ts.do(req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body struct {
		Error struct {
			Code   string            `json:"code"`
			Fields map[string]string `json:"fields"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION", body.Error.Code)
	assert.Contains(t, body.Error.Fields, "email")
	assert.Contains(t, body.Error.Fields, "message")
}

func TestContact_Success(t *testing.T) {
	ts := setupServer(t)

	req := postForm("/contact", url.Values{
		"name":    {" Ada Lovelace "},
		"email":   {"ada@example.com"},
		"message": {"I need help with a mixed model."},
	})
	req.Header.Set("HX-Request", "true")
	w := ts.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Message Sent!")

	msgs, err := ts.db.ListMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Ada Lovelace", msgs[0].Name)
	assert.False(t, msgs[0].Read)

	ts.s.tracking.Wait()
	require.Len(t, ts.notes.sent, 1)
	assert.Equal(t, msgs[0].ID, ts.notes.sent[0].ID)
}

func TestNextTheme(t *testing.T) {
	tests := []struct {
		current    background.Theme
		systemDark bool
		want       background.Theme
	}{
		{background.ThemeDark, false, background.ThemeLight},
		{background.ThemeLight, true, background.ThemeDark},
		{background.ThemeSystem, true, background.ThemeLight},
		{background.ThemeSystem, false, background.ThemeDark},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextTheme(tt.current, tt.systemDark), "%s systemDark=%v", tt.current, tt.systemDark)
	}
}

func TestThemeToggle(t *testing.T) {
	ts := setupServer(t)

	req := postForm("/theme", url.Values{"system_dark": {"true"}})
	req.Header.Set("HX-Request", "true")
	w := ts.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"theme-changed":{"value":"light"}}`, w.Header().Get("HX-Trigger"))
	assert.Contains(t, w.Body.String(), `id="theme-toggle"`)

	var theme *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == themeCookie {
			theme = c
		}
	}
	require.NotNil(t, theme)
	assert.Equal(t, "light", theme.Value)

	// The cookie drives the next toggle and page render.
	req = postForm("/theme", nil)
	req.AddCookie(theme)
	req.Header.Set("Accept", "application/json")
	w = ts.do(req)
	assert.JSONEq(t, `{"theme":"dark"}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(theme)
	assert.Contains(t, ts.do(req).Body.String(), `data-theme="light"`)

	w = ts.do(postForm("/theme", nil))
	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestBackgroundSVG(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/background.svg?w=320&h=200&frames=5&seed=7&theme=light", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<svg xmlns=\"http://www.w3.org/2000/svg\" width=\"320\"")

	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Vary"))

	// Without ?theme= the cookie decides, so shared caches must not reuse it.
	req := httptest.NewRequest(http.MethodGet, "/background.svg?w=320&h=200&frames=1", nil)
	req.AddCookie(&http.Cookie{Name: themeCookie, Value: "light"})
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "private, max-age=3600", w.Header().Get("Cache-Control"))
	assert.Equal(t, "Cookie", w.Header().Get("Vary"))

	w = ts.do(httptest.NewRequest(http.MethodGet, "/background.svg?w=wide", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/background.svg?w=0", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_RequiresSession(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/login", w.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	req.Header.Set("HX-Request", "true")
	w = ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "/admin/login", w.Header().Get("HX-Redirect"))

	req = httptest.NewRequest(http.MethodGet, "/admin/api/stats", nil)
	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "forged"})
	w = ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_LoginFailure(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(postForm("/admin/login", url.Values{"email": {testEmail}, "password": {"wrong password"}}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid credentials")
	assert.Empty(t, w.Result().Cookies())
}

func TestAdmin_SignupDisabled(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(postForm("/admin/signup", url.Values{"email": {"new@example.com"}, "password": {"long enough"}}))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmin_DashboardAndLogout(t *testing.T) {
	ts := setupServer(t)
	ctx := context.Background()
	_, err := ts.db.CreateMessage(ctx, store.MessageInput{Name: "Grace", Email: "grace@example.com", Message: "Hello"})
	require.NoError(t, err)

	session := ts.login(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	req.AddCookie(session)
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "grace@example.com")

	req = httptest.NewRequest(http.MethodGet, "/admin/api/stats", nil)
	req.AddCookie(session)
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	var stats store.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.Messages)
	assert.EqualValues(t, 1, stats.UnreadMessages)

	req = httptest.NewRequest(http.MethodGet, "/admin/export/stats", nil)
	req.AddCookie(session)
	w = ts.do(req)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "admin-stats.json")

	req = httptest.NewRequest(http.MethodGet, "/admin/logout", nil)
	req.AddCookie(session)
	w = ts.do(req)
	assert.Equal(t, http.StatusFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	req.AddCookie(session)
	w = ts.do(req)
	assert.Equal(t, http.StatusFound, w.Code, "session must be gone after logout")
}

func TestAdmin_Messages(t *testing.T) {
	ts := setupServer(t)
	ctx := context.Background()
	session := ts.login(t)

	var ids []string
	for _, name := range []string{"One", "Two", "Three"} {
		m, err := ts.db.CreateMessage(ctx, store.MessageInput{Name: name, Email: "x@example.com", Message: "Hi " + name})
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/messages/"+ids[0]+"/read", nil)
	req.AddCookie(session)
	req.Header.Set("HX-Request", "true")
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "Mark read")
	m, err := ts.db.GetMessage(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, m.Read)

	req = httptest.NewRequest(http.MethodDelete, "/admin/messages/"+ids[0], nil)
	req.AddCookie(session)
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/admin/messages/"+ids[0], nil)
	req.AddCookie(session)
	req.Header.Set("Accept", "application/json")
	w = ts.do(req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = postForm("/admin/messages/delete", url.Values{"ids": ids[1:]})
	req.AddCookie(session)
	req.Header.Set("Accept", "application/json")
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":2}`, w.Body.String())

	req = postForm("/admin/messages/delete", nil)
	req.AddCookie(session)
	req.Header.Set("Accept", "application/json")
	w = ts.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func multipartProject(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, data := range files {
		fw, err := mw.CreateFormFile(field, field+".bin")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestAdmin_ProjectLifecycle(t *testing.T) {
	ts := setupServer(t)
	ctx := context.Background()
	session := ts.login(t)

	body, ctype := multipartProject(t, map[string]string{
		"title":          "Thesis support",
		"description":    "Power analysis and *reporting*",
		"image_position": "25% 75%",
	}, map[string][]byte{"image": pngBytes(t)})
	req := httptest.NewRequest(http.MethodPost, "/admin/projects", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Accept", "application/json")
	req.AddCookie(session)
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var created store.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "25% 75%", created.ImagePosition)
	require.True(t, strings.HasPrefix(created.ImageURL, "/uploads/"))
	assert.True(t, strings.HasSuffix(created.ImageURL, ".png"))
	key, ok := ts.blobs.KeyFromURL(created.ImageURL)
	require.True(t, ok)
	assert.FileExists(t, filepath.Join(ts.blobs.Dir(), key))

	// The upload is served back.
	w = ts.do(httptest.NewRequest(http.MethodGet, created.ImageURL, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/projects/"+created.ID+"/edit", nil)
	req.AddCookie(session)
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Thesis support")

	// Removing the cover deletes the stored file.
	body, ctype = multipartProject(t, map[string]string{
		"title":        "Thesis support",
		"image_url":    created.ImageURL,
		"remove_image": "on",
	}, nil)
	req = httptest.NewRequest(http.MethodPost, "/admin/projects/"+created.ID, body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Accept", "application/json")
	req.AddCookie(session)
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p, err := ts.db.GetProject(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, p.ImageURL)
	assert.NoFileExists(t, filepath.Join(ts.blobs.Dir(), key))

	req = httptest.NewRequest(http.MethodDelete, "/admin/projects/"+created.ID, nil)
	req.AddCookie(session)
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	projects, err := ts.db.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestAdmin_ProjectValidation(t *testing.T) {
	ts := setupServer(t)
	session := ts.login(t)

	body, ctype := multipartProject(t, map[string]string{"title": "", "link": "not a url"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/admin/projects", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("HX-Request", "true")
	req.AddCookie(session)
	w := ts.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "#project-form", w.Header().Get("HX-Retarget"))
	assert.Contains(t, w.Body.String(), `id="project-form"`)

	// A text file posing as the cover image is refused and nothing is kept.
	body, ctype = multipartProject(t, map[string]string{"title": "Bad upload"}, map[string][]byte{"image": []byte("just some text")})
	req = httptest.NewRequest(http.MethodPost, "/admin/projects", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Accept", "application/json")
	req.AddCookie(session)
	w = ts.do(req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	entries, err := os.ReadDir(ts.blobs.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVisitorTracking(t *testing.T) {
	ts := setupServer(t)
	ctx := context.Background()

	ts.do(httptest.NewRequest(http.MethodGet, "/", nil))

	dnt := httptest.NewRequest(http.MethodGet, "/", nil)
	dnt.Header.Set("DNT", "1")
	ts.do(dnt)

	gpc := httptest.NewRequest(http.MethodGet, "/", nil)
	gpc.Header.Set("Sec-GPC", "1")
	ts.do(gpc)

	ts.do(httptest.NewRequest(http.MethodGet, "/privacy", nil))
	ts.do(httptest.NewRequest(http.MethodGet, "/background.svg?w=10&h=10&frames=1", nil))

	ts.s.tracking.Wait()
	visits, err := ts.db.RecentVisits(ctx, 10)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, "/", visits[0].Path)
	assert.Len(t, visits[0].HashedIP, 16)
	assert.NotContains(t, visits[0].HashedIP, "192.0.2.1")
}

func TestAdmin_PrivacyCleanup(t *testing.T) {
	ts := setupServer(t)
	session := ts.login(t)

	require.NoError(t, ts.db.RecordVisit(context.Background(), "abc", "ua", "/"))

	req := httptest.NewRequest(http.MethodPost, "/admin/privacy/cleanup", nil)
	req.AddCookie(session)
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"visits_removed":0`)

	req = httptest.NewRequest(http.MethodPost, "/admin/privacy/cleanup", nil)
	req.AddCookie(session)
	req.Header.Set("HX-Request", "true")
	w = ts.do(req)
	assert.Contains(t, w.Body.String(), "Removed 0 visitor records")
}

func TestHashIP(t *testing.T) {
	ts := setupServer(t)

	a := ts.s.hashIP("192.0.2.1")
	assert.Len(t, a, 16)
	assert.Equal(t, a, ts.s.hashIP("192.0.2.1"))
	assert.NotEqual(t, a, ts.s.hashIP("192.0.2.2"))
}

func TestRetentionLabel(t *testing.T) {
	assert.Equal(t, "12 months", retentionLabel(365*24*time.Hour))
	assert.Equal(t, "2 years", retentionLabel(2*365*24*time.Hour))
	assert.Equal(t, "30 days", retentionLabel(30*24*time.Hour))
	assert.Equal(t, "1h0m0s", retentionLabel(time.Hour))
}

func TestOrphaned(t *testing.T) {
	old := &store.Project{ImageURL: "/uploads/a.png", FileURL: "/uploads/b.pdf", Gallery: []string{"/uploads/c.png", "/uploads/d.png"}}
	saved := &store.Project{ImageURL: "/uploads/a.png", Gallery: []string{"/uploads/d.png"}}
	assert.ElementsMatch(t, []string{"/uploads/b.pdf", "/uploads/c.png"}, orphaned(old, saved))
}
