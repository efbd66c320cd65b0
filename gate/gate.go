// Package gate decides, for every inbound request, whether the proxy engine
// or the route table handles it.
package gate

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/http/httpguts"

	"github.com/dogeunblocker/doge/v4/logging"
)

// Engine is a proxy engine that intercepts the requests it claims.
type Engine interface {
	// Claims reports whether the engine handles r.  It must not read the
	// body.
	Claims(r *http.Request) bool

	// ServeHTTP handles a claimed plain request.
	ServeHTTP(w http.ResponseWriter, r *http.Request)

	// ServeUpgrade handles a claimed connection upgrade.  w supports
	// http.Hijacker when the underlying connection does.
	ServeUpgrade(w http.ResponseWriter, r *http.Request)
}

// Gate is an http.Handler placed in front of the route table.
type Gate struct {
	engine   Engine
	fallback http.Handler
	logger   *logrus.Logger
}

// New creates a Gate.  A nil engine claims nothing.
func New(engine Engine, fallback http.Handler, logger *logrus.Logger) *Gate {
	return &Gate{
		engine:   engine,
		fallback: fallback,
		logger:   logging.OrNull(logger),
	}
}

// IsUpgrade reports whether the Connection header carries the upgrade token.
func IsUpgrade(r *http.Request) bool {
	return httpguts.HeaderValuesContainsToken(r.Header["Connection"], "upgrade")
}

func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrade := IsUpgrade(r)
	claimed := g.engine != nil && g.engine.Claims(r)

	switch {
	case claimed && upgrade:
		g.engine.ServeUpgrade(w, r)
	case claimed:
		g.engine.ServeHTTP(w, r)
	case upgrade:
		g.abort(w, r)
	default:
		g.fallback.ServeHTTP(w, r)
	}
}

// abort closes the connection of an unclaimed upgrade without writing a
// response.
func (g *Gate) abort(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), g.logger).WithFields(logrus.Fields{
		"path":        r.URL.Path,
		"remote-addr": r.RemoteAddr,
	})
	conn, _, err := http.NewResponseController(w).Hijack()
	if err != nil {
		log.Warnf("cannot hijack unclaimed upgrade: %v", err)
		w.Header().Set("Connection", "close")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	log.Debug("closing unclaimed upgrade")
	_ = conn.Close()
}
