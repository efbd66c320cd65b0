package static

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogeunblocker/doge/v4/cfg"
	"github.com/dogeunblocker/doge/v4/web"
)

func testSite() fstest.MapFS {
	return fstest.MapFS{
		"index.html":            {Data: []byte("<h1>app</h1>")},
		"loader.html":           {Data: []byte("<h1>student</h1>")},
		"apps.html":             {Data: []byte("<h1>apps</h1>")},
		"gms.html":              {Data: []byte("<h1>games</h1>")},
		"agloader.html":         {Data: []byte("<h1>lessons</h1>")},
		"info.html":             {Data: []byte("<h1>info</h1>")},
		"loading.html":          {Data: []byte("<h1>go</h1>")},
		"public/index.html":     {Data: []byte("<h1>home</h1>")},
		"public/css/style.css":  {Data: []byte("body{}")},
		"public/js/app.js":      {Data: []byte("console.log(1)")},
		"public/img/logo":       {Data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")},
		"public/.env":           {Data: []byte("SECRET=1")},
		"public/docs/readme.md": {Data: []byte("# no index here")},
		"public/app":            {Data: []byte("shadowing asset")},
	}
}

func newRouter(t *testing.T, site fs.FS, logger *logrus.Logger) *mux.Router {
	s, err := New(Config{
		Root:         site,
		AssetsDir:    "public",
		Pages:        cfg.DefaultPages(),
		FallbackPage: "gms.html",
		Logger:       logger,
	})
	require.NoError(t, err)

	r := mux.NewRouter()
	s.RegisterService(r)
	r.NotFoundHandler = http.HandlerFunc(s.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.NotFound)
	return r
}

func get(handler http.Handler, method, target string) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(method, target, nil))
	return res
}

func TestPages(t *testing.T) {
	site := testSite()
	delete(site, "public/app")
	r := newRouter(t, site, nil)

	expected := map[string]string{
		"/app":     "<h1>app</h1>",
		"/student": "<h1>student</h1>",
		"/apps":    "<h1>apps</h1>",
		"/gms":     "<h1>games</h1>",
		"/lessons": "<h1>lessons</h1>",
		"/info":    "<h1>info</h1>",
		"/go":      "<h1>go</h1>",
	}
	for target, body := range expected {
		t.Run(target, func(t *testing.T) {
			res := get(r, http.MethodGet, target)
			assert.Equal(t, http.StatusOK, res.Code)
			assert.Equal(t, body, res.Body.String())
			assert.Equal(t, "text/html; charset=utf-8", res.Header().Get("Content-Type"))
		})
	}
}

func TestPageTrailingSlash(t *testing.T) {
	site := testSite()
	delete(site, "public/app")
	r := newRouter(t, site, nil)

	res := get(r, http.MethodGet, "/lessons/")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "<h1>lessons</h1>", res.Body.String())

	res = get(r, http.MethodHead, "/info/")
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestHeadPage(t *testing.T) {
	site := testSite()
	delete(site, "public/app")
	r := newRouter(t, site, nil)

	res := get(r, http.MethodHead, "/info")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, res.Body.String())
}

func TestAssets(t *testing.T) {
	r := newRouter(t, testSite(), nil)

	res := get(r, http.MethodGet, "/css/style.css")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "body{}", res.Body.String())
	assert.Contains(t, res.Header().Get("Content-Type"), "text/css")

	res = get(r, http.MethodGet, "/js/app.js")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "console.log(1)", res.Body.String())

	res = get(r, http.MethodGet, "/img/logo")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "image/png", res.Header().Get("Content-Type"), "extensionless assets are sniffed")
}

func TestAssetsShadowPages(t *testing.T) {
	r := newRouter(t, testSite(), nil)

	res := get(r, http.MethodGet, "/app")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "shadowing asset", res.Body.String())
}

func TestAssetDirectories(t *testing.T) {
	r := newRouter(t, testSite(), nil)

	res := get(r, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "<h1>home</h1>", res.Body.String())

	// no index.html, so no match and no listing
	res = get(r, http.MethodGet, "/docs/")
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "<h1>games</h1>", res.Body.String())
}

func TestAssetDirectoryRedirect(t *testing.T) {
	site := testSite()
	site["public/css/index.html"] = &fstest.MapFile{Data: []byte("css index")}
	r := newRouter(t, site, nil)

	res := get(r, http.MethodGet, "/css")
	assert.Equal(t, http.StatusMovedPermanently, res.Code)
	assert.Equal(t, "/css/", res.Header().Get("Location"))

	res = get(r, http.MethodGet, "/css/")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "css index", res.Body.String())
}

func TestNotFound(t *testing.T) {
	r := newRouter(t, testSite(), nil)

	for _, target := range []string{"/nope", "/app/extra", "/.env", "/css/missing.css", "/worker.js"} {
		res := get(r, http.MethodGet, target)
		assert.Equal(t, http.StatusNotFound, res.Code, target)
		assert.Equal(t, "<h1>games</h1>", res.Body.String(), target)
		assert.Equal(t, "text/html; charset=utf-8", res.Header().Get("Content-Type"), target)
	}
}

func TestWrongMethodIsNotFound(t *testing.T) {
	r := newRouter(t, testSite(), nil)

	res := get(r, http.MethodPost, "/info")
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "<h1>games</h1>", res.Body.String())
}

func TestMissingPageFile(t *testing.T) {
	site := testSite()
	delete(site, "info.html")
	logger, hook := test.NewNullLogger()
	r := newRouter(t, site, logger)

	res := get(r, http.MethodGet, "/info")
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "<h1>games</h1>", res.Body.String())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "info.html", hook.LastEntry().Data["file"])
}

func TestMissingFallback(t *testing.T) {
	site := testSite()
	delete(site, "gms.html")
	r := newRouter(t, site, nil)

	res := get(r, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Contains(t, res.Body.String(), "404 page not found")
}

func TestAssetName(t *testing.T) {
	testCases := []struct {
		in   string
		out  string
		ok   bool
	}{
		{"/", ".", true},
		{"/css/style.css", "css/style.css", true},
		{"/../../etc/passwd", "etc/passwd", true},
		{"/a/./b", "a/b", true},
		{"/.git/config", "", false},
		{"/css/.hidden", "", false},
	}
	for _, tc := range testCases {
		out, ok := assetName(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.out, out, tc.in)
		}
	}
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New(Config{AssetsDir: "public"})
	assert.ErrorIs(t, err, ErrNoRoot)
}

func TestEmbeddedSite(t *testing.T) {
	r := newRouter(t, web.Site(), nil)

	res := get(r, http.MethodGet, "/gms")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "<title>Games</title>")

	res = get(r, http.MethodGet, "/css/style.css")
	assert.Equal(t, http.StatusOK, res.Code)
}
