package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_operations_total",
			Help: "Total number of grid operations by outcome",
		},
		[]string{"operation", "code"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grid_operation_duration_seconds",
			Help:    "Duration of grid operations, including the backend commit",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"operation"},
	)

	ClaimedCells = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grid_claimed_cells",
			Help: "Number of claimed cells",
		},
	)

	TotalBurned = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grid_total_burned",
			Help: "Cumulative amount burned by purchases",
		},
	)

	UnlockedRing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grid_unlocked_ring",
			Help: "Highest purchasable ring",
		},
	)

	RewardsContributedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grid_rewards_contributed_total",
			Help: "Total amount moved into the land-buy reward pool",
		},
	)

	RewardsPaidTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grid_rewards_paid_total",
			Help: "Total amount paid out of the land-buy reward pool to parcel owners",
		},
	)

	ArchiveUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_archive_uploads_total",
			Help: "Total number of snapshot archive uploads",
		},
		[]string{"status"},
	)
)

// RecordOperation records the outcome and duration of a grid operation.
func RecordOperation(operation string, duration time.Duration, err error) {
	code := "OK"
	if err != nil {
		code = griderror.Code(err)
	}
	OperationsTotal.WithLabelValues(operation, code).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetTotals publishes the grid-wide counters after a commit.
func SetTotals(claimedCells uint32, totalBurned uint64, unlockedRing uint8) {
	ClaimedCells.Set(float64(claimedCells))
	TotalBurned.Set(float64(totalBurned))
	UnlockedRing.Set(float64(unlockedRing))
}

// RecordArchiveUpload records a snapshot upload attempt.
func RecordArchiveUpload(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ArchiveUploadsTotal.WithLabelValues(status).Inc()
}
