package channels

import "net/http"

// Channel is an inbound messaging integration mounted on the gateway mux.
type Channel interface {
	Name() string
	RegisterRoutes(mux *http.ServeMux)
}
