// Package metrics exposes crawl activity to Prometheus. Event counters are
// incremented inline by the crawler; stored-state gauges are gathered at
// scrape time.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionCounter returns the number of sessions held in durable storage.
type SessionCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Recorder holds the event counters incremented during a crawl.
type Recorder struct {
	LegsStarted        prometheus.Counter
	LoopsDetected      prometheus.Counter
	QueriesSpoken      prometheus.Counter
	MenusParsed        prometheus.Counter
	ShortSpeechRetries prometheus.Counter
	RecordingsFetched  prometheus.Counter
	ClassifierFailures prometheus.Counter
}

// NewRecorder creates the crawl counters and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		LegsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xdial_call_legs_started_total",
			Help: "Total outbound call legs placed by the crawler",
		}),
		LoopsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xdial_loops_detected_total",
			Help: "Total sessions terminated by the transcript loop guard",
		}),
		QueriesSpoken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xdial_queries_spoken_total",
			Help: "Total query injections spoken into live calls",
		}),
		MenusParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xdial_menus_parsed_total",
			Help: "Total menus extracted and merged into discovery trees",
		}),
		ShortSpeechRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xdial_short_speech_retries_total",
			Help: "Total retries triggered by undersized speech results",
		}),
		RecordingsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xdial_recordings_fetched_total",
			Help: "Total call recordings downloaded and transcribed",
		}),
		ClassifierFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xdial_classifier_failures_total",
			Help: "Total semantic classifier calls that fell back to defaults",
		}),
	}
	reg.MustRegister(
		r.LegsStarted,
		r.LoopsDetected,
		r.QueriesSpoken,
		r.MenusParsed,
		r.ShortSpeechRetries,
		r.RecordingsFetched,
		r.ClassifierFailures,
	)
	return r
}

// Collector is a prometheus.Collector that gathers stored-state metrics at
// scrape time. Any provider may be nil if unavailable.
type Collector struct {
	sessions  SessionCounter
	startTime time.Time

	sessionsDesc *prometheus.Desc
	uptimeDesc   *prometheus.Desc
}

// NewCollector creates a scrape-time collector.
func NewCollector(sessions SessionCounter, startTime time.Time) *Collector {
	return &Collector{
		sessions:  sessions,
		startTime: startTime,

		sessionsDesc: prometheus.NewDesc(
			"xdial_sessions_stored",
			"Number of crawl sessions held in durable storage",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"xdial_uptime_seconds",
			"Seconds since process start",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessionsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries providers at scrape
// time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.sessions != nil {
		count, err := c.sessions.Count(ctx)
		if err != nil {
			slog.Error("metrics: failed to count sessions", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.sessionsDesc, prometheus.GaugeValue,
				float64(count),
			)
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.CounterValue,
		time.Since(c.startTime).Seconds(),
	)
}
