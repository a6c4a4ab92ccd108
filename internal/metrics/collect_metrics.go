package metrics

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/oxx-labs/oxx-backend/pkg/chain"
)

// StartMetricsCollection refreshes process gauges every interval until ctx is done.
func StartMetricsCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		collectSystemMetrics()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collectSystemMetrics()
			}
		}
	}()
}

func collectSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	UptimeSeconds.Set(time.Since(startTime).Seconds())
	MemoryUsageBytes.Set(float64(memStats.Alloc))
	GoroutinesActive.Set(float64(runtime.NumGoroutine()))
}

// Outcome maps an error from the chain adapter to a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case chain.IsTimeout(err):
		return "timeout"
	case chain.IsReverted(err):
		return "reverted"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// ChainObserver records adapter activity.
type ChainObserver struct{}

var _ chain.Observer = ChainObserver{}

func (ChainObserver) ObserveRead(method string, duration time.Duration, err error) {
	ChainReadsTotal.WithLabelValues(method, Outcome(err)).Inc()
	ChainReadDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

func (ChainObserver) ObserveSubmit(method string, err error) {
	TransactionsSubmittedTotal.WithLabelValues(method, Outcome(err)).Inc()
}

func (ChainObserver) ObserveConfirmation(method string, duration time.Duration, err error) {
	ConfirmationsTotal.WithLabelValues(method, Outcome(err)).Inc()
	ConfirmationDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}
