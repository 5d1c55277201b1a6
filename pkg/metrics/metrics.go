package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects generation metrics.
type Metrics struct {
	registry    *prometheus.Registry
	generations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lyrics      *prometheus.CounterVec
	playlist    prometheus.Gauge
}

func New(provider string) *Metrics {
	labels := prometheus.Labels{"provider": provider}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "musaix_generation_requests_total",
				Help:        "Generation requests by stage and result",
				ConstLabels: labels,
			},
			[]string{"stage", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "musaix_generation_duration_seconds",
				Help:        "Duration of generation requests",
				ConstLabels: labels,
				Buckets:     []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"stage"},
		),
		lyrics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "musaix_lyrics_requests_total",
				Help:        "Full lyrics requests by result",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
		playlist: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "musaix_playlist_tracks",
				Help: "Tracks in the playlist",
			},
		),
	}
	m.registry.MustRegister(
		m.generations,
		m.duration,
		m.lyrics,
		m.playlist,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) Generation(stage string, err error, d time.Duration) {
	m.generations.WithLabelValues(stage, result(err)).Inc()
	m.duration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) Lyrics(err error, d time.Duration) {
	m.lyrics.WithLabelValues(result(err)).Inc()
	m.duration.WithLabelValues("lyrics").Observe(d.Seconds())
}

func (m *Metrics) Playlist(n int) {
	m.playlist.Set(float64(n))
}

// Handler serves the metrics in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
