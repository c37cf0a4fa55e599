// Package ops exposes the operational HTTP surface of the indexer: health,
// Prometheus metrics, build info and queue administration.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/fargraph/go-fargraph/buildinfo"
	"github.com/fargraph/go-fargraph/pkg/queue"
)

// ConfiguredRouter returns the ops router as an http handler.
func ConfiguredRouter(metricsHandler http.Handler, admin queue.Admin, adminPassword string) *Router {
	queues := &queuesController{admin: admin}

	router := NewRouter()
	router.Get("/healthz", healthHandler)
	router.Get("/health", healthHandler)
	router.Get("/version", versionHandler, withLogging)
	router.Get("/metrics", metricsHandler.ServeHTTP)

	router.Get("/queues/stats", queues.stats, withLogging)
	router.Post("/queues/{queue}/pause", queues.pause, withLogging, basicAuth(adminPassword))
	router.Post("/queues/{queue}/resume", queues.resume, withLogging, basicAuth(adminPassword))
	router.Post("/queues/{queue}/drain", queues.drain, withLogging, basicAuth(adminPassword))

	return router
}

// Serve runs the ops server until the context is canceled, then drains it.
func Serve(ctx context.Context, addr string, router *Router) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: time.Second * 5,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("ops server shutdown")
		}
	}()
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.GetSummary())
}

type queuesController struct {
	admin queue.Admin
}

func (c *queuesController) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.admin.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("getting queue stats")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "getting queue stats"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (c *queuesController) pause(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["queue"]
	if err := c.admin.Pause(r.Context(), name); err != nil {
		log.Error().Err(err).Str("queue", name).Msg("pausing queue")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "pausing queue"})
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (c *queuesController) resume(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["queue"]
	if err := c.admin.Resume(r.Context(), name); err != nil {
		log.Error().Err(err).Str("queue", name).Msg("resuming queue")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "resuming queue"})
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (c *queuesController) drain(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["queue"]
	if err := c.admin.Drain(r.Context(), name); err != nil {
		log.Error().Err(err).Str("queue", name).Msg("draining queue")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "draining queue"})
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Router provides a nice api around mux.Router.
type Router struct {
	r *mux.Router
}

// NewRouter is a Mux HTTP router constructor.
func NewRouter() *Router {
	return &Router{r: mux.NewRouter()}
}

// Get creates a subroute on the specified URI that only accepts GET. You can provide specific middlewares.
func (r *Router) Get(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodGet)
	sub.Use(mid...)
}

// Post creates a subroute on the specified URI that only accepts POST. You can provide specific middlewares.
func (r *Router) Post(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodPost)
	sub.Use(mid...)
}

// Handler returns the configured router http handler.
func (r *Router) Handler() http.Handler {
	return r.r
}

// withLogging logs non-200 responses.
func withLogging(h http.Handler) http.Handler {
	handler := func(rw http.ResponseWriter, req *http.Request) {
		loggedRW := &responseWriterLogger{ResponseWriter: rw}
		h.ServeHTTP(loggedRW, req)

		if loggedRW.statusCode != http.StatusOK && loggedRW.statusCode != 0 {
			log.Warn().
				Int("statusCode", loggedRW.statusCode).
				Str("path", req.URL.Path).
				Msg("non-200 status code response")
		}
	}
	return http.HandlerFunc(handler)
}

type responseWriterLogger struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseWriterLogger) WriteHeader(statusCode int) {
	r.ResponseWriter.WriteHeader(statusCode)
	r.statusCode = statusCode
}

// basicAuth guards mutating admin routes with a shared password.
func basicAuth(password string) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			_, pass, ok := req.BasicAuth()
			if !ok || pass != password {
				rw.Header().Set("WWW-Authenticate", `Basic realm="fargraph"`)
				writeJSON(rw, http.StatusUnauthorized, errorResponse{Message: "unauthorized"})
				return
			}
			h.ServeHTTP(rw, req)
		})
	}
}
