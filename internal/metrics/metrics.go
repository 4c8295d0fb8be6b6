// Package metrics registers the Prometheus instruments for world
// generation and the read API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/planetgrid/internal/world"
)

var (
	GenerationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planetgrid_generation_seconds",
		Help:    "Time spent in each stage of world generation",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"stage"})
	CellsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planetgrid_cells",
		Help: "Leaf cells in the current world",
	})
	PlatesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "planetgrid_plates",
		Help: "Plates in the current world by tier",
	}, []string{"tier"})
	PlacementDraws = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planetgrid_placement_draws_total",
		Help: "Candidate points drawn while placing plates",
	})
	GenerationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planetgrid_generations_total",
		Help: "Generate calls by outcome",
	}, []string{"outcome"})
	LocateRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planetgrid_locate_requests_total",
		Help: "Point-location requests served by the API",
	})
)

func init() {
	prometheus.MustRegister(GenerationSeconds)
	prometheus.MustRegister(CellsTotal)
	prometheus.MustRegister(PlatesTotal)
	prometheus.MustRegister(PlacementDraws)
	prometheus.MustRegister(GenerationsTotal)
	prometheus.MustRegister(LocateRequests)
}

// ObserveGeneration records the outcome of a Generate call on g.
func ObserveGeneration(g *world.Grid, err error) {
	if err != nil {
		GenerationsTotal.WithLabelValues("error").Inc()
		return
	}
	GenerationsTotal.WithLabelValues("ok").Inc()

	s := g.Stats()
	if !s.Reused {
		GenerationSeconds.WithLabelValues("build").Observe(s.Build.Seconds())
	}
	GenerationSeconds.WithLabelValues("placement").Observe(s.Placement.Seconds())
	GenerationSeconds.WithLabelValues("labelling").Observe(s.Labelling.Seconds())
	GenerationSeconds.WithLabelValues("relief").Observe(s.Relief.Seconds())
	PlacementDraws.Add(float64(s.Draws))
	CellsTotal.Set(float64(s.Cells))

	var major, minor int
	for _, p := range g.Plates() {
		if p.Major {
			major++
		} else {
			minor++
		}
	}
	PlatesTotal.WithLabelValues("major").Set(float64(major))
	PlatesTotal.WithLabelValues("minor").Set(float64(minor))
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
