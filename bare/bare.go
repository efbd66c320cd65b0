package bare

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dogeunblocker/doge/v4/internal"
	"github.com/dogeunblocker/doge/v4/logging"
)

const (
	defaultDialTimeout = 30 * time.Second

	// bound on receiving the connect message of a websocket session
	connectTimeout = 10 * time.Second

	flushInterval = 100 * time.Millisecond
)

// Config contains the run time parameters of a Server.
type Config struct {
	// Prefix is the path prefix claimed by the server.  It must begin and end
	// with '/'.
	Prefix string

	// DialTimeout bounds connecting to a remote.
	DialTimeout time.Duration

	// Name reported in the manifest
	ProjectName string

	// Transport used for remote HTTP requests and websocket dials.  A
	// transport with DialTimeout applied is built if nil.
	Transport *http.Transport

	Logger *logrus.Logger
}

// Server is a bare engine.  It claims every request whose path begins with
// its prefix.
type Server struct {
	prefix   string
	client   *http.Client
	dialer   *websocket.Dialer
	upgrader websocket.Upgrader
	manifest []byte
	logger   *logrus.Logger
}

// Manifest describes the server on GET <prefix>.
type Manifest struct {
	Versions []string `json:"versions"`
	Language string   `json:"language"`
	Project  Project  `json:"project"`
}

// Project identifies the implementation in a Manifest.
type Project struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// New creates a bare Server.
func New(c Config) *Server {
	dialTimeout := c.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	transport := c.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: dialTimeout,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConns:        100,
			// bodies are passed through still encoded
			DisableCompression: true,
		}
	}
	name := c.ProjectName
	if name == "" {
		name = logging.LoggerName
	}
	manifest, _ := json.Marshal(Manifest{
		Versions: []string{"v3"},
		Language: "Go",
		Project:  Project{Name: name, Version: internal.Version},
	})

	return &Server{
		prefix: c.Prefix,
		client: &http.Client{
			Transport: transport,
			// do not follow redirects, and instead pass them back to the caller
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		dialer: &websocket.Dialer{
			NetDialContext:   transport.DialContext,
			Proxy:            transport.Proxy,
			TLSClientConfig:  transport.TLSClientConfig,
			HandshakeTimeout: dialTimeout,
		},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		manifest: manifest,
		logger:   logging.OrNull(c.Logger),
	}
}

// Claims reports whether the request path is under the server's prefix.
func (s *Server) Claims(r *http.Request) bool {
	return s.prefix != "" && strings.HasPrefix(r.URL.Path, s.prefix)
}

// ServeHTTP serves the manifest and plain bare requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w.Header())
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Max-Age", "7200")
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.URL.Path {
	case s.prefix:
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, unknownRoute())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(s.manifest)
		}
	case s.prefix + "v3/":
		s.serveRequest(w, r)
	default:
		writeError(w, unknownRoute())
	}
}

// ServeUpgrade serves websocket sessions on <prefix>v3/.  Any other path is
// answered 404 without upgrading.
func (s *Server) ServeUpgrade(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.prefix+"v3/" {
		setCORSHeaders(w.Header())
		writeError(w, unknownRoute())
		return
	}
	s.serveWebsocket(w, r)
}

func (s *Server) log(r *http.Request) *logrus.Entry {
	return logging.FromContext(r.Context(), s.logger).WithField("remote-addr", r.RemoteAddr)
}

func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "*")
	h.Set("Access-Control-Allow-Methods", "*")
	h.Set("Access-Control-Expose-Headers", "*")
}
