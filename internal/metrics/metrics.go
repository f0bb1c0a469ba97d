package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "landslide"

// Consumer outcomes.
const (
	OutcomeProcessed      = "processed"
	OutcomeSkippedInvalid = "skipped_invalid"
	OutcomeIgnored        = "ignored"
	OutcomeDuplicate      = "duplicate"
	OutcomeFailed         = "failed"
)

var (
	ScannerTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scanner_ticks_total",
		Help:      "Scanner ticks by result (ok, error, skipped)",
	}, []string{"result"})

	ScannerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scanner_tick_duration_seconds",
		Help:      "Duration of a scanner tick",
		Buckets:   prometheus.DefBuckets,
	})

	CommandsTimedOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_timed_out_total",
		Help:      "Commands moved from sent to timeout",
	})

	ScannerLostRacesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scanner_lost_races_total",
		Help:      "Candidates that were no longer sent when the scanner tried to transition them",
	})

	OutboundSchemaViolationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbound_schema_violations_total",
		Help:      "Events built by this process that failed their own schema",
	})

	OutboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_published_total",
		Help:      "Outbox rows published to the broker",
	})

	OutboxFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_failed_total",
		Help:      "Outbox publish or mark-sent failures",
	})

	ConsumerMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_messages_total",
		Help:      "Consumed messages by topic and outcome",
	}, []string{"topic", "outcome"})

	ConsumerBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_batches_total",
		Help:      "Consumer batches by topic and result (committed, aborted)",
	}, []string{"topic", "result"})
)

// ObserveBatch is a kafka.BatchObserver.
func ObserveBatch(topic string, _ int32, _ int, err error) {
	result := "committed"
	if err != nil {
		result = "aborted"
	}

	ConsumerBatchesTotal.WithLabelValues(topic, result).Inc()
}

func CountMessage(topic, outcome string) {
	ConsumerMessagesTotal.WithLabelValues(topic, outcome).Inc()
}
