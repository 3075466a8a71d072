// Package metrics exposes Prometheus instruments for the ledger and its live views.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const namespace = "impact"

type Metrics struct {
	donationsRecorded  prometheus.Counter
	donationAmount     prometheus.Counter
	writeConflicts     prometheus.Counter
	writeFailures      *prometheus.CounterVec
	subscribers        *prometheus.GaugeVec
	snapshotsPublished *prometheus.CounterVec
	degraded           prometheus.Gauge
	transportErrors    prometheus.Counter
	auditDrift         prometheus.Gauge
}

// New registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		donationsRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "donations_recorded_total",
			Help: "Donations committed together with the aggregate counters.",
		}),
		donationAmount: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "donation_amount_total",
			Help: "Sum of committed donation amounts.",
		}),
		writeConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "write_conflicts_total",
			Help: "Ledger transactions aborted by the store's conflict detection.",
		}),
		writeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "write_failures_total",
			Help: "Donation submissions that did not commit, by reason.",
		}, []string{"reason"}),
		subscribers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "stream", Name: "subscribers",
			Help: "Active live-view subscriptions, by view.",
		}, []string{"view"}),
		snapshotsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "snapshots_published_total",
			Help: "Snapshots delivered to observers, by view.",
		}, []string{"view"}),
		degraded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "stream", Name: "degraded",
			Help: "1 while views are served from fallback data.",
		}),
		transportErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "transport_errors_total",
			Help: "Change-stream transport failures.",
		}),
		auditDrift: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "audit", Name: "drift",
			Help: "1 when the last reconciliation found counters out of step with the ledger.",
		}),
	}
}

func (m *Metrics) DonationRecorded(amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.donationsRecorded.Inc()
	m.donationAmount.Add(amount.InexactFloat64())
}

func (m *Metrics) WriteConflict() {
	if m == nil {
		return
	}
	m.writeConflicts.Inc()
}

func (m *Metrics) WriteFailure(reason string) {
	if m == nil {
		return
	}
	m.writeFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) SubscriberAdded(view string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(view).Inc()
}

func (m *Metrics) SubscriberRemoved(view string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(view).Dec()
}

func (m *Metrics) SnapshotPublished(view string) {
	if m == nil {
		return
	}
	m.snapshotsPublished.WithLabelValues(view).Inc()
}

func (m *Metrics) SetDegraded(on bool) {
	if m == nil {
		return
	}
	if on {
		m.degraded.Set(1)
		return
	}
	m.degraded.Set(0)
}

func (m *Metrics) TransportError() {
	if m == nil {
		return
	}
	m.transportErrors.Inc()
}

func (m *Metrics) SetAuditDrift(drift bool) {
	if m == nil {
		return
	}
	if drift {
		m.auditDrift.Set(1)
		return
	}
	m.auditDrift.Set(0)
}
