// Package static serves the named HTML pages, the public assets directory
// and the fallback page returned for unknown paths.
package static

import (
	"bytes"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dogeunblocker/doge/v4/cfg"
	"github.com/dogeunblocker/doge/v4/logging"
)

// Config contains the parameters of a static Server.
type Config struct {
	// Root holds the pages, and AssetsDir beneath it
	Root         fs.FS
	AssetsDir    string
	Pages        []cfg.Page
	FallbackPage string
	Logger       *logrus.Logger
}

// Server serves files from an fs.FS.  It is safe for concurrent use; nothing
// is mutated after New returns.
type Server struct {
	root     fs.FS
	assets   fs.FS
	pages    []cfg.Page
	fallback string
	logger   *logrus.Logger
}

// New creates a static Server.
func New(c Config) (*Server, error) {
	if c.Root == nil {
		return nil, ErrNoRoot
	}
	assets, err := fs.Sub(c.Root, c.AssetsDir)
	if err != nil {
		return nil, errors.Wrapf(err, "assets directory %q", c.AssetsDir)
	}
	return &Server{
		root:     c.Root,
		assets:   assets,
		pages:    c.Pages,
		fallback: c.FallbackPage,
		logger:   logging.OrNull(c.Logger),
	}, nil
}

// RegisterService adds the asset route, followed by the routes for each page
// alias.  Assets come first so that a file in the assets directory shadows
// a page alias of the same name.  An alias also matches with a trailing
// slash.
func (s *Server) RegisterService(r *mux.Router) {
	r.MatcherFunc(s.matchAsset).Methods(http.MethodGet, http.MethodHead).HandlerFunc(s.serveAsset)
	for _, page := range s.pages {
		handler := s.PageHandler(page.File)
		for _, p := range []string{page.Path, strings.TrimSuffix(page.Path, "/") + "/"} {
			r.Path(p).Methods(http.MethodGet, http.MethodHead).Handler(handler)
		}
	}
}

// PageHandler returns a handler serving the named file from the root.
func (s *Server) PageHandler(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.servePage(w, r, name)
	})
}

// NotFound responds 404 with the body of the fallback page.
func (s *Server) NotFound(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(s.root, s.fallback)
	if err != nil {
		logging.FromContext(r.Context(), s.logger).WithFields(logrus.Fields{
			"path": r.URL.Path,
			"file": s.fallback,
		}).Errorf("could not read fallback page: %v", err)
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType(s.fallback, data))
	w.WriteHeader(http.StatusNotFound)
	if r.Method != http.MethodHead {
		_, _ = w.Write(data)
	}
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request, name string) {
	data, modTime, err := readFile(s.root, name)
	if err != nil {
		s.readError(w, r, name, err)
		return
	}
	serveBytes(w, r, name, modTime, data)
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	name, ok := assetName(r.URL.Path)
	if !ok {
		s.NotFound(w, r)
		return
	}
	info, err := fs.Stat(s.assets, name)
	if err != nil {
		s.readError(w, r, name, err)
		return
	}
	if info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		name = path.Join(name, "index.html")
	}
	data, modTime, err := readFile(s.assets, name)
	if err != nil {
		s.readError(w, r, name, err)
		return
	}
	serveBytes(w, r, name, modTime, data)
}

// matchAsset reports whether the request path names an existing file, or a
// directory with an index.html, in the assets directory.
func (s *Server) matchAsset(r *http.Request, _ *mux.RouteMatch) bool {
	name, ok := assetName(r.URL.Path)
	if !ok {
		return false
	}
	info, err := fs.Stat(s.assets, name)
	if err != nil {
		return false
	}
	if !info.IsDir() {
		return true
	}
	index, err := fs.Stat(s.assets, path.Join(name, "index.html"))
	return err == nil && !index.IsDir()
}

func (s *Server) readError(w http.ResponseWriter, r *http.Request, name string, err error) {
	entry := logging.FromContext(r.Context(), s.logger).WithFields(logrus.Fields{
		"path": r.URL.Path,
		"file": name,
	})
	if errors.Is(err, fs.ErrNotExist) {
		entry.Warnf("file read: %v", err)
		s.NotFound(w, r)
		return
	}
	entry.Errorf("file read: %v", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// assetName converts a URL path into a name valid for fs.FS.  Paths with a
// dot-prefixed segment are never served.
func assetName(urlPath string) (string, bool) {
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" {
		return ".", true
	}
	for _, segment := range strings.Split(name, "/") {
		if strings.HasPrefix(segment, ".") {
			return "", false
		}
	}
	return name, fs.ValidPath(name)
}

func readFile(fsys fs.FS, name string) ([]byte, time.Time, error) {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return nil, time.Time{}, err
	}
	if info.IsDir() {
		return nil, time.Time{}, errors.Wrap(fs.ErrNotExist, name+" is a directory")
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, info.ModTime(), nil
}

func serveBytes(w http.ResponseWriter, r *http.Request, name string, modTime time.Time, data []byte) {
	w.Header().Set("Content-Type", contentType(name, data))
	http.ServeContent(w, r, name, modTime, bytes.NewReader(data))
}

// contentType derives a content type from the file extension, falling back
// to sniffing the content.
func contentType(name string, data []byte) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return mimetype.Detect(data).String()
}
