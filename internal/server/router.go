package server

import "net/http"

// BasicRouter implements [Router] on top of [http.ServeMux].
//
// Routes are registered with method-scoped patterns ("GET /top-tracks"), so
// the mux itself answers 405 with an Allow header when a known path is hit
// with the wrong method. The middleware chain wraps the mux as a whole, which
// keeps request logging in front of 404s and 405s too.
type BasicRouter struct {
	mux   *http.ServeMux
	chain []Middleware
}

// NewBasicRouter creates an empty [BasicRouter].
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{mux: http.NewServeMux()}
}

// Use appends middleware to the chain. The first middleware added becomes the
// outermost wrapper.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.chain = append(r.chain, middleware...)
}

// Handle registers handler for the given method and path pattern.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	r.mux.Handle(method+" "+path, handler)
}

// Handler registers handler under every pattern it reports. The patterns are
// not method-scoped; the handler dispatches on the request itself.
func (r *BasicRouter) Handler(handler Handler) {
	for _, route := range handler.Routes() {
		r.mux.Handle(route, handler)
	}
}

// ServeHTTP runs the request through the middleware chain into the mux.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)
	for i := len(r.chain) - 1; i >= 0; i-- {
		handler = r.chain[i](handler)
	}
	handler.ServeHTTP(w, req)
}
