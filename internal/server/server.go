// Package server exposes the webhook endpoint and serves the stored build
// logs over HTTP.
package server

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/NielsdaWheelz/pushci/internal/logstore"
	"github.com/NielsdaWheelz/pushci/internal/pipeline"
	"github.com/NielsdaWheelz/pushci/internal/webhook"
)

// NotFoundBody is returned for missing log pages.
const NotFoundBody = "404 File not found. Build logs might be empty."

// PushHandler processes one accepted push to completion.
type PushHandler interface {
	HandlePush(ctx context.Context, batch pipeline.PushBatch) []pipeline.CommitOutcome
}

// Server wires the webhook to the pipeline and serves the log store.
type Server struct {
	Addr          string
	Store         *logstore.Store
	Pushes        PushHandler
	WebhookSecret string
	CloneURL      string
	Log           logrus.FieldLogger

	// ctx is handed to push processing; it is never cancelled while
	// pushes are in flight.
	ctx      context.Context
	inFlight sync.WaitGroup
	httpSrv  *http.Server
}

// New creates a Server.
func New(addr string, store *logstore.Store, pushes PushHandler, log logrus.FieldLogger) *Server {
	return &Server{
		Addr:   addr,
		Store:  store,
		Pushes: pushes,
		Log:    log,
		ctx:    context.Background(),
	}
}

// Router returns the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	r.Handle("/webhook", &webhook.Handler{
		Secret:   s.WebhookSecret,
		CloneURL: s.CloneURL,
		Dispatch: s.Dispatch,
		Log:      s.logger(),
	}).Methods(http.MethodPost)
	r.HandleFunc("/", s.indexHandler).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/index.html", s.indexHandler).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/buildLogs/{name}", s.logHandler).Methods(http.MethodGet, http.MethodHead)
	r.NotFoundHandler = http.HandlerFunc(notFound)
	return r
}

// Dispatch processes batch in the background. Shutdown waits for it.
func (s *Server) Dispatch(batch pipeline.PushBatch) {
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		s.Pushes.HandlePush(s.context(), batch)
	}()
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully:
// new requests are refused and in-flight pushes run to completion.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger().WithField("addr", s.Addr).Info("server listening")
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger().Info("shutting down; waiting for in-flight pushes")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.httpSrv.Shutdown(shutdownCtx)
	s.Wait()
	return err
}

// Wait blocks until every dispatched push has finished.
func (s *Server) Wait() {
	s.inFlight.Wait()
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, s.Store.IndexPath())
}

func (s *Server) logHandler(w http.ResponseWriter, r *http.Request) {
	// PagePath only accepts "{n}.html", so traversal is impossible.
	path := s.Store.PagePath(mux.Vars(r)["name"])
	if path == "" {
		notFound(w, r)
		return
	}
	s.serveFile(w, r, path)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger().WithError(err).WithField("path", path).Warn("failed to read page")
		}
		notFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(data)
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(NotFoundBody))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger().WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("request")
	})
}

func (s *Server) context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Server) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}
