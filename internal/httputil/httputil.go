package httputil

import (
	"github.com/gorilla/mux"
)

// ServiceProvider is implemented by every component which contributes
// routes to the server's route table.
type ServiceProvider interface {
	RegisterService(r *mux.Router)
}
