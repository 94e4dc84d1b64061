package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BidsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_bids_total",
		Help: "Bid placement and update attempts by outcome",
	}, []string{"operation", "outcome"})

	StoreConflictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_store_conflicts_total",
		Help: "Optimistic transaction commits that lost a race and were retried",
	}, []string{"store"})

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_notifications_total",
		Help: "Bid notifications by channel and outcome",
	}, []string{"channel", "outcome"})

	LiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "auction_live_connections",
		Help: "Currently open live auction feeds",
	})

	CascadeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_cascade_total",
		Help: "Artist removal cascades by outcome",
	}, []string{"outcome"})

	ReconciledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_reconciled_total",
		Help: "Auction store records handled by the repair pass",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(BidsTotal)
	prometheus.MustRegister(StoreConflictsTotal)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(LiveConnections)
	prometheus.MustRegister(CascadeTotal)
	prometheus.MustRegister(ReconciledTotal)
}
