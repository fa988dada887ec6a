package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cloudimg"

// Prometheus counts pipeline events on its own registry.
type Prometheus struct {
	registry     *prometheus.Registry
	decisions    *prometheus.CounterVec
	uploads      *prometheus.CounterVec
	placeholders *prometheus.CounterVec
	assets       *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Upload gate decisions by kind.",
		}, []string{"decision"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Remote uploads by result.",
		}, []string{"result"}),
		placeholders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placeholder_fetches_total",
			Help:      "Placeholder fetches by result.",
		}, []string{"result"}),
		assets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_total",
			Help:      "Processed assets by result.",
		}, []string{"result"}),
	}

	p.registry.MustRegister(p.decisions, p.uploads, p.placeholders, p.assets)

	return p
}

func (p *Prometheus) ObserveDecision(decision string) {
	p.decisions.WithLabelValues(decision).Inc()
}

func (p *Prometheus) ObserveUpload(err error) {
	p.uploads.WithLabelValues(result(err)).Inc()
}

func (p *Prometheus) ObservePlaceholder(err error) {
	p.placeholders.WithLabelValues(result(err)).Inc()
}

func (p *Prometheus) ObserveAsset(err error) {
	p.assets.WithLabelValues(result(err)).Inc()
}

// WriteTextfile writes every metric in the text exposition format, for the node exporter's
// textfile collector.
func (p *Prometheus) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("error writing metrics textfile %w", err)
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
