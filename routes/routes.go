// Package routes assembles the handler chain served by the listener:
// request ids and logging, panic recovery, the proxy gate, and the route
// table.
package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dogeunblocker/doge/v4/gate"
	"github.com/dogeunblocker/doge/v4/internal/httputil"
	"github.com/dogeunblocker/doge/v4/logging"
)

// RequestIDHeader carries the id assigned to each request.
const RequestIDHeader = "X-Doge-Request-Id"

// Config contains everything needed to build the handler chain.
type Config struct {
	// Services register their routes in order; earlier routes win.
	Services []httputil.ServiceProvider

	// NotFound answers requests no route matches, including method
	// mismatches.
	NotFound http.Handler

	// Engine may be nil, in which case nothing is intercepted.
	Engine gate.Engine

	// OnPanic is called after a handler panic has been answered with 500.
	OnPanic func(recovered interface{})

	Logger *logrus.Logger
}

// NewRouter builds the route table.  It is not modified after this returns.
func NewRouter(services []httputil.ServiceProvider, notFound http.Handler) *mux.Router {
	r := mux.NewRouter()
	for _, service := range services {
		service.RegisterService(r)
	}
	if notFound != nil {
		r.NotFoundHandler = notFound
		r.MethodNotAllowedHandler = notFound
	}
	return r
}

// New builds the complete handler chain.
func New(c Config) http.Handler {
	logger := logging.OrNull(c.Logger)
	router := NewRouter(c.Services, c.NotFound)
	handler := gate.New(c.Engine, router, logger)
	return withRequestID(logger, recoverer(logger, c.OnPanic, handler))
}
