package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BloodRequestsCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "lifeline", Name: "blood_requests_created_total", Help: "Total blood requests created"})
	BloodRequestsMatched = promauto.NewCounter(prometheus.CounterOpts{Namespace: "lifeline", Name: "blood_requests_matched_total", Help: "Total blood requests accepted by a donor"})
	AcceptConflicts      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "lifeline", Name: "accept_conflicts_total", Help: "Accept/assign attempts that lost the conditional update"})
	TripsAssigned        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "lifeline", Name: "trips_assigned_total", Help: "Total ambulance trips assigned to a driver"})
	NotificationsSent    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "lifeline", Name: "notifications_sent_total", Help: "Notifications delivered to connected clients"})
	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{Namespace: "lifeline", Name: "notifications_dropped_total", Help: "Notifications dropped (client disconnected or buffer full)"})
	LocationPings        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "lifeline", Name: "location_pings_total", Help: "Responder location pings received"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "lifeline", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lifeline",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
