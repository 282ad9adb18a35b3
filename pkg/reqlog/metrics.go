package reqlog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reqlog_flushes_total",
		Help: "Number of non-empty batches handed to the log sink",
	})
	recordsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reqlog_records_written_total",
		Help: "Request records persisted by the log sink",
	})
	droppedBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reqlog_dropped_batches_total",
		Help: "Batches lost because the log sink failed",
	})
	droppedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reqlog_dropped_records_total",
		Help: "Request records lost because the log sink failed",
	})
	mirrorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reqlog_mirror_failures_total",
		Help: "Batches the primary sink kept but a mirror sink rejected",
	})
	bufferedRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reqlog_buffered_records",
		Help: "Records waiting in the write buffer",
	})
)
