// Package monitoring implements the negotiation metrics collector on top of
// prometheus.
package monitoring

import (
	"time"

	"debatemesh/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	linksActive        prometheus.Gauge
	linksOpenedTotal   prometheus.Counter
	linksClosedTotal   prometheus.Counter
	offersSentTotal    prometheus.Counter
	answersSentTotal   prometheus.Counter
	glareTotal         prometheus.Counter
	offersIgnoredTotal prometheus.Counter
	candidatesBuffered prometheus.Counter
	candidatesFlushed  prometheus.Counter
	rechecksTotal      prometheus.Counter

	linkSetupDuration prometheus.Histogram
}

var _ ports.MeshMetrics = (*PrometheusCollector)(nil)

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		linksActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "debatemesh_links_active",
			Help: "Number of currently open peer links",
		}),

		linksOpenedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "debatemesh_links_opened_total",
			Help: "Total number of peer links created",
		}),

		linksClosedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "debatemesh_links_closed_total",
			Help: "Total number of peer links torn down",
		}),

		offersSentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "debatemesh_offers_sent_total",
			Help: "Total number of offers sent",
		}),

		answersSentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "debatemesh_answers_sent_total",
			Help: "Total number of answers sent",
		}),

		glareTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "debatemesh_offer_collisions_total",
			Help: "Total number of offer collisions detected",
		}),

		offersIgnoredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "debatemesh_offers_ignored_total",
			Help: "Total number of remote offers dropped by the impolite side",
		}),

		candidatesBuffered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "debatemesh_ice_candidates_buffered_total",
			Help: "Total number of ICE candidates buffered before the remote description",
		}),

		candidatesFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "debatemesh_ice_candidates_flushed_total",
			Help: "Total number of buffered ICE candidates applied",
		}),

		rechecksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "debatemesh_rechecks_total",
			Help: "Total number of mesh recheck passes",
		}),

		linkSetupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "debatemesh_link_setup_duration_seconds",
			Help:    "Time from link creation to first stable negotiation",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

func (p *PrometheusCollector) LinkOpened() {
	p.linksActive.Inc()
	p.linksOpenedTotal.Inc()
}

func (p *PrometheusCollector) LinkClosed() {
	p.linksActive.Dec()
	p.linksClosedTotal.Inc()
}

func (p *PrometheusCollector) OfferSent()  { p.offersSentTotal.Inc() }
func (p *PrometheusCollector) AnswerSent() { p.answersSentTotal.Inc() }

func (p *PrometheusCollector) GlareDetected() { p.glareTotal.Inc() }
func (p *PrometheusCollector) OfferIgnored()  { p.offersIgnoredTotal.Inc() }

func (p *PrometheusCollector) CandidateBuffered() { p.candidatesBuffered.Inc() }

func (p *PrometheusCollector) CandidatesFlushed(n int) {
	p.candidatesFlushed.Add(float64(n))
}

func (p *PrometheusCollector) RecheckPerformed() { p.rechecksTotal.Inc() }

func (p *PrometheusCollector) LinkStable(setup time.Duration) {
	p.linkSetupDuration.Observe(setup.Seconds())
}
