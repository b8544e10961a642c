package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ricirt/task-insights/internal/api/handler"
	apimw "github.com/ricirt/task-insights/internal/api/middleware"
	"github.com/ricirt/task-insights/internal/worker"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	status *worker.Status,
	sampler handler.QueueSampler,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger, "/health", "/metrics"))

	rh := handler.NewRootHandler()
	hh := handler.NewHealthHandler(status)
	qh := handler.NewQueueHandler(sampler, status)

	r.Get("/", rh.Root)
	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/queue", qh.GetQueue)
	})

	return r
}
