// Package metrics holds the Prometheus collectors of the bidding service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "auction"

// Bid submission outcomes.
const (
	OutcomeAccepted    = "accepted"
	OutcomeInvalid     = "invalid"
	OutcomeRateLimited = "rate_limited"
	OutcomeConflict    = "conflict"
	OutcomeDropped     = "dropped"
	OutcomeEnded       = "ended"
	OutcomeFailed      = "failed"
)

// Reconciliation sources.
const (
	SourceLoad         = "load"
	SourcePush         = "push"
	SourcePushFallback = "push_fallback"
	SourcePoll         = "poll"
	SourceRefresh      = "refresh"
	SourceOwnBid       = "own_bid"
)

var (
	BidSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bid_submissions_total",
		Help:      "Bid submissions by outcome.",
	}, []string{"outcome"})

	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliations_total",
		Help:      "Applied price reconciliations by source.",
	}, []string{"source"})

	ReconcileFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_failures_total",
		Help:      "Failed background fetches by source.",
	}, []string{"source"})

	BidderLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bidder_lookups_total",
		Help:      "Returning-bidder lookups by kind and result.",
	}, []string{"kind", "result"})

	ActiveViews = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_views",
		Help:      "Currently mounted bid views.",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)
