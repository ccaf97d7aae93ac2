// Package middleware wraps the router with cross-cutting HTTP concerns.
package middleware

import "net/http"

// System collects middleware in registration order and applies them so
// the first registered runs outermost.
type System interface {
	Use(mw func(http.Handler) http.Handler)
	Apply(handler http.Handler) http.Handler
}

type chain struct {
	layers []func(http.Handler) http.Handler
}

func New() System {
	return &chain{}
}

func (c *chain) Use(fn func(http.Handler) http.Handler) {
	c.layers = append(c.layers, fn)
}

func (c *chain) Apply(handler http.Handler) http.Handler {
	wrapped := handler
	for i := len(c.layers) - 1; i >= 0; i-- {
		wrapped = c.layers[i](wrapped)
	}
	return wrapped
}
