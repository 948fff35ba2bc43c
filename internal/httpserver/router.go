package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"storygate/internal/handlers"
	"storygate/internal/identity"
	"storygate/internal/metrics"
	"storygate/internal/middleware"
)

// Handlers groups the endpoint handlers mounted under /{version}/ai.
type Handlers struct {
	Narrative *handlers.NarrativeHandler
	Image     *handlers.ImageHandler
	Jobs      *handlers.JobHandler
	Cache     *handlers.CacheHandler
	Status    *handlers.StatusHandler
}

type Options struct {
	Version        string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Identity       identity.Resolver
	// StaticDir is served under StaticPrefix when both are set.
	StaticDir    string
	StaticPrefix string
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, h Handlers, opts Options) {
	if opts.Version == "" {
		opts.Version = "v1"
	}

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())                    // panic recovery
	r.Use(middleware.Timeout(opts.RequestTimeout))   // request timeout
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes)) // body cap

	r.Route("/"+opts.Version+"/ai", func(r chi.Router) {
		r.Use(middleware.Identity(opts.Identity))

		r.Post("/generate-prompt", h.Narrative.GeneratePrompt)
		r.Post("/generate-image", h.Image.GenerateImage)
		r.Post("/generate-main-image", h.Image.GenerateMainImage)
		r.Post("/generate-image-async", h.Jobs.Enqueue)
		r.Get("/generate-image-job/{jobID}", h.Jobs.Status)
		r.Get("/jobs", h.Jobs.List)
		r.Post("/cache/invalidate", h.Cache.Invalidate)
		r.Get("/cache/list", h.Cache.List)
		r.Get("/status", h.Status.Status)
	})

	if opts.StaticDir != "" && opts.StaticPrefix != "" {
		prefix := "/" + strings.Trim(opts.StaticPrefix, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", staticFiles(opts.StaticDir)))
	}

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}

// staticFiles serves cached image files. Directory listings and dot-files
// (in-flight temp files) are not exposed.
func staticFiles(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if p == "" || strings.HasSuffix(p, "/") {
			http.NotFound(w, r)
			return
		}
		for _, seg := range strings.Split(p, "/") {
			if strings.HasPrefix(seg, ".") {
				http.NotFound(w, r)
				return
			}
		}
		fs.ServeHTTP(w, r)
	})
}
