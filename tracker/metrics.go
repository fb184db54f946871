package tracker

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts the tracker's externally interesting outcomes. Stale
// responses are an expected race, not an error; the counter exists so that
// operators can see the race happening without grepping debug logs.
type Metrics struct {
	// StaleResponses counts responses dropped because their session id no
	// longer matches the follower's current replication session.
	StaleResponses prometheus.Counter

	// ProtocolAnomalies counts responses dropped because they reference an
	// index the leader never sent in the current session, or otherwise
	// malformed replies from buggy peers.
	ProtocolAnomalies prometheus.Counter

	// RejectedRetreats counts rejections dropped because they referred to
	// an index already confirmed durable within the same session.
	RejectedRetreats prometheus.Counter

	// SnapshotsStarted counts snapshot transfers started because a
	// follower's next index fell below the leader's first retained index.
	SnapshotsStarted prometheus.Counter
}

// NewMetrics creates the tracker counters and registers them with r.
// A nil Registerer leaves the counters unregistered, which is what tests
// and embedders with their own registry plumbing want.
func NewMetrics(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		StaleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replication",
			Subsystem: "tracker",
			Name:      "stale_responses_total",
			Help:      "Responses dropped for carrying a retired replication session id.",
		}),
		ProtocolAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replication",
			Subsystem: "tracker",
			Name:      "protocol_anomalies_total",
			Help:      "Responses dropped for referencing an index never sent in the session.",
		}),
		RejectedRetreats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replication",
			Subsystem: "tracker",
			Name:      "rejected_retreats_total",
			Help:      "Rejections dropped for referring to already-confirmed progress.",
		}),
		SnapshotsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replication",
			Subsystem: "tracker",
			Name:      "snapshots_started_total",
			Help:      "Snapshot transfers started toward lagging followers.",
		}),
	}

	if r != nil {
		r.MustRegister(m.StaleResponses, m.ProtocolAnomalies, m.RejectedRetreats, m.SnapshotsStarted)
	}
	return m
}
