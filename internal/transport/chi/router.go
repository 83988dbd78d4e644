package chi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// SpendParams are the query parameters of POST /v1/spend/{resource}.
type SpendParams struct {
	// N is the number of units to consume (default 1).
	N *int `form:"n,omitempty" json:"n,omitempty"`
}

// ServerOptions configures HandlerWithOptions.
type ServerOptions struct {
	BaseRouter       chi.Router
	Middlewares      []func(http.Handler) http.Handler
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler mounts the API on a new chi router.
func Handler(s *Server) http.Handler {
	return HandlerWithOptions(s, ServerOptions{})
}

// HandlerWithOptions mounts the API routes on opts.BaseRouter.
func HandlerWithOptions(s *Server, opts ServerOptions) http.Handler {
	r := opts.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if opts.ErrorHandlerFunc == nil {
		opts.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, err.Error())
		}
	}
	w := &wrapper{server: s, middlewares: opts.Middlewares, onError: opts.ErrorHandlerFunc}

	r.Get("/health", w.wrap(s.HealthCheck))
	r.Get("/metrics", w.wrap(s.Metrics))
	r.Route("/v1", func(r chi.Router) {
		r.Get("/usage", w.wrap(s.ListUsage))
		r.Get("/usage/{resource}", w.wrap(w.getUsage))
		r.Post("/spend/{resource}", w.wrap(w.spend))
		r.Post("/credits", w.wrap(s.AddCredits))
		r.Put("/tier", w.wrap(s.SetTier))
		r.Post("/sync", w.wrap(s.Sync))
	})
	return r
}

// wrapper binds path and query parameters before calling the server.
type wrapper struct {
	server      *Server
	middlewares []func(http.Handler) http.Handler
	onError     func(w http.ResponseWriter, r *http.Request, err error)
}

func (w *wrapper) wrap(h http.HandlerFunc) http.HandlerFunc {
	var handler http.Handler = h
	for _, mw := range w.middlewares {
		handler = mw(handler)
	}
	return handler.ServeHTTP
}

func (w *wrapper) getUsage(rw http.ResponseWriter, r *http.Request) {
	resource, err := bindResource(r)
	if err != nil {
		w.onError(rw, r, err)
		return
	}
	w.server.GetUsage(rw, r, resource)
}

func (w *wrapper) spend(rw http.ResponseWriter, r *http.Request) {
	resource, err := bindResource(r)
	if err != nil {
		w.onError(rw, r, err)
		return
	}

	var params SpendParams
	if err := runtime.BindQueryParameter("form", true, false, "n", r.URL.Query(), &params.N); err != nil {
		w.onError(rw, r, fmt.Errorf("invalid format for parameter n: %w", err))
		return
	}
	w.server.Spend(rw, r, resource, params)
}

func bindResource(r *http.Request) (string, error) {
	var resource string
	err := runtime.BindStyledParameterWithOptions("simple", "resource", chi.URLParam(r, "resource"), &resource,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", fmt.Errorf("invalid format for parameter resource: %w", err)
	}
	return resource, nil
}
