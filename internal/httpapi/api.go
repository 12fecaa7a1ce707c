// Package httpapi serves the digit normalizer over HTTP with gin.
//
// Routes:
//
//	POST /api/predict     {"image": "<base64>"} -> prediction, confidence, probabilities
//	POST /api/normalize   {"image": "<base64>"} -> 28x28 canvas PNG, region and tensor
//	GET  /api/health      liveness and whether a model is loaded
//	GET  /api/model-info  classifier shapes and backend
//	GET  /metrics         Prometheus metrics for this API
//
// Every response carries an X-Request-ID header. Errors are JSON objects
// with a single "error" field.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"

	"github.com/ironsheep/digit-normalizer/internal/classify"
	"github.com/ironsheep/digit-normalizer/internal/pipeline"
)

// RequestIDHeader carries the per-request id. A client-supplied value is
// kept; otherwise a ksuid is generated.
const RequestIDHeader = "X-Request-ID"

// Options configures an API.
type Options struct {
	// CORSOrigin is sent as Access-Control-Allow-Origin. Empty disables
	// CORS headers.
	CORSOrigin string

	// Timeout bounds each classifier call. Zero means no limit beyond the
	// client's own request context.
	Timeout time.Duration
}

// API is the HTTP surface. It is safe for concurrent use.
type API struct {
	normalizer *pipeline.Normalizer
	classifier classify.Classifier
	opts       Options

	registry *prometheus.Registry
	metrics  *metrics
	engine   *gin.Engine
}

// New builds the router. norm defaults to a Normalizer without diagnostics;
// clf may be nil, in which case prediction routes report that no model is
// loaded.
func New(norm *pipeline.Normalizer, clf classify.Classifier, opts Options) *API {
	if norm == nil {
		norm = pipeline.New()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	a := &API{
		normalizer: norm,
		classifier: clf,
		opts:       opts,
		registry:   registry,
		metrics:    newMetrics(registry),
		engine:     gin.New(),
	}

	a.engine.Use(gin.Recovery(), requestID(), a.metrics.instrument(), accessLog(), cors(opts.CORSOrigin))

	api := a.engine.Group("/api")
	api.GET("/health", a.health)
	api.GET("/model-info", a.modelInfo)
	api.POST("/predict", a.predict)
	api.POST("/normalize", a.normalize)

	a.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return a
}

// Handler returns the http.Handler serving every route.
func (a *API) Handler() http.Handler {
	return a.engine
}

// Registry returns the Prometheus registry behind /metrics.
func (a *API) Registry() *prometheus.Registry {
	return a.registry
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully, giving in-flight requests up to grace to finish.
func (a *API) ListenAndServe(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("component", "HTTP_API").Str("listenAddr", addr).Msg("starting listener")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Str("component", "HTTP_API").Msg("shutting down, no further requests will be served")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = ksuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().Str("component", "HTTP_API").
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// cors answers preflight requests with 204 and decorates every response.
// Preflights reach this middleware through gin's no-route chain.
func cors(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
			c.Header("Access-Control-Expose-Headers", RequestIDHeader)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
