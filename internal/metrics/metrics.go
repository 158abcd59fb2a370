// Package metrics exposes the dispatch pipeline's Prometheus counters.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the pipeline and usecases depend on. Nop satisfies it
// for tests and for binaries that do not expose metrics.
type Recorder interface {
	ListingScored(rejected bool, reason string)
	TrackedCreated()
	ApplicationCreated(status string)
	ClaimConflict()
	SendOutcome(outcome string)
	LimiterDenied(reason string)
	StuckApplications(n int)
	SourceFetched(source string, listings int, err error)
}

type Collector struct {
	scored       *prometheus.CounterVec
	tracked      prometheus.Counter
	created      *prometheus.CounterVec
	claimConfl   prometheus.Counter
	sends        *prometheus.CounterVec
	denials      *prometheus.CounterVec
	stuck        prometheus.Gauge
	sourceItems  *prometheus.CounterVec
	sourceErrors *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoapply_listings_scored_total",
			Help: "Listings scored per user, by outcome and hard-filter reason.",
		}, []string{"outcome", "filter"}),
		tracked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoapply_tracked_listings_created_total",
			Help: "Tracked listings created by the dispatcher.",
		}),
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoapply_applications_created_total",
			Help: "Applications created, by initial status.",
		}, []string{"status"}),
		claimConfl: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoapply_claim_conflicts_total",
			Help: "READY to SENDING claims lost to a concurrent dispatcher.",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoapply_sends_total",
			Help: "Send attempts by outcome (sent, requeued, failed).",
		}, []string{"outcome"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoapply_rate_limit_denials_total",
			Help: "Rate limiter denials by reason.",
		}, []string{"reason"}),
		stuck: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autoapply_stuck_applications",
			Help: "Applications in SENDING longer than the stuck threshold at the last sweep.",
		}),
		sourceItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoapply_source_listings_total",
			Help: "Raw listings returned per source.",
		}, []string{"source"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoapply_source_errors_total",
			Help: "Source fetch failures.",
		}, []string{"source"}),
	}

	reg.MustRegister(
		c.scored,
		c.tracked,
		c.created,
		c.claimConfl,
		c.sends,
		c.denials,
		c.stuck,
		c.sourceItems,
		c.sourceErrors,
	)
	return c
}

func (c *Collector) ListingScored(rejected bool, reason string) {
	if !rejected {
		c.scored.WithLabelValues("scored", "").Inc()
		return
	}
	c.scored.WithLabelValues("rejected", filterLabel(reason)).Inc()
}

func (c *Collector) TrackedCreated() { c.tracked.Inc() }

func (c *Collector) ApplicationCreated(status string) { c.created.WithLabelValues(status).Inc() }

func (c *Collector) ClaimConflict() { c.claimConfl.Inc() }

func (c *Collector) SendOutcome(outcome string) { c.sends.WithLabelValues(outcome).Inc() }

func (c *Collector) LimiterDenied(reason string) { c.denials.WithLabelValues(reason).Inc() }

func (c *Collector) StuckApplications(n int) { c.stuck.Set(float64(n)) }

func (c *Collector) SourceFetched(source string, listings int, err error) {
	if err != nil {
		c.sourceErrors.WithLabelValues(source).Inc()
		return
	}
	c.sourceItems.WithLabelValues(source).Add(float64(listings))
}

// filterLabel keeps label cardinality bounded: reasons carry free text after
// the colon ("Platform not selected: X").
func filterLabel(reason string) string {
	switch {
	case strings.HasPrefix(reason, "Platform"):
		return "platform"
	case strings.HasPrefix(reason, "No keyword"):
		return "keyword"
	case strings.HasPrefix(reason, "Category"):
		return "category"
	case strings.HasPrefix(reason, "Location"):
		return "location"
	default:
		return "other"
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type Nop struct{}

func (Nop) ListingScored(bool, string)         {}
func (Nop) TrackedCreated()                    {}
func (Nop) ApplicationCreated(string)          {}
func (Nop) ClaimConflict()                     {}
func (Nop) SendOutcome(string)                 {}
func (Nop) LimiterDenied(string)               {}
func (Nop) StuckApplications(int)              {}
func (Nop) SourceFetched(string, int, error)   {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
