package metrics

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"meridian-hq/vesta/pkg/telemetry/logging"
)

// SummaryReporter periodically logs a one-line dispatch summary (served
// and failed totals since the last report) on a cron schedule. It gives
// operators a heartbeat in the logs without scraping Prometheus.
type SummaryReporter struct {
	collector *Collector
	logger    *logging.Logger
	cron      *cron.Cron

	lastServed int64
	lastFailed int64
}

// NewSummaryReporter creates a reporter that logs on the given cron
// schedule (standard five-field syntax, e.g. "0 * * * *" for hourly).
func NewSummaryReporter(c *Collector, logger *logging.Logger, schedule string) (*SummaryReporter, error) {
	if logger == nil {
		logger = logging.Default()
	}
	sr := &SummaryReporter{
		collector: c,
		logger:    logger,
		cron:      cron.New(),
	}
	if _, err := sr.cron.AddFunc(schedule, sr.report); err != nil {
		return nil, fmt.Errorf("invalid summary schedule %q: %w", schedule, err)
	}
	return sr, nil
}

// Start begins the reporting schedule.
func (sr *SummaryReporter) Start() {
	sr.cron.Start()
}

// Stop halts the schedule. Already-running reports complete.
func (sr *SummaryReporter) Stop() {
	sr.cron.Stop()
}

func (sr *SummaryReporter) report() {
	if sr.collector == nil {
		return
	}
	served := sr.collector.served.Load()
	failed := sr.collector.failed.Load()
	sr.logger.Info("dispatch summary",
		"served", served-sr.lastServed,
		"failed", failed-sr.lastFailed,
		"served_total", served,
		"failed_total", failed,
	)
	sr.lastServed = served
	sr.lastFailed = failed
}
