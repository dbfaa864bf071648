// Package routes declares HTTP routes as data so handlers can publish their
// surface and registration stays in one place.
package routes

import "net/http"

// Route binds an HTTP method and pattern to a handler.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}
