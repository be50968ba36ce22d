package status

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/intercom-listener/internal/logic"
)

const namespace = "intercom"

var (
	acceptedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "accepted_edges_total"),
		"Sensor edges accepted by the debouncer.",
		[]string{"channel"}, nil)
	notificationsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "notifications_total"),
		"Dispatch attempts by result.",
		[]string{"result"}, nil)
	pendingDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "notification_pending"),
		"1 while a channel has a notification awaiting dispatch.",
		[]string{"channel"}, nil)
	connectedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "connected"),
		"1 while the notification channel is connected.",
		nil, nil)
	wakeDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "wake_cause"),
		"Why the process is running; the value is always 1.",
		[]string{"cause", "channel"}, nil)
	uptimeDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "uptime_seconds"),
		"Seconds since the process started.",
		nil, nil)
)

// Collector exposes a Tracker as Prometheus metrics. Values are read from a
// fresh snapshot on every scrape.
type Collector struct {
	tracker *Tracker
}

// NewCollector creates a Collector over t.
func NewCollector(t *Tracker) *Collector {
	return &Collector{tracker: t}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- acceptedDesc
	ch <- notificationsDesc
	ch <- pendingDesc
	ch <- connectedDesc
	ch <- wakeDesc
	ch <- uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.tracker.Snapshot()

	for _, cs := range snap.Channels {
		ch <- prometheus.MustNewConstMetric(acceptedDesc, prometheus.CounterValue,
			float64(snap.Counts.Accepted[cs.Channel]), string(cs.Channel))
		ch <- prometheus.MustNewConstMetric(pendingDesc, prometheus.GaugeValue,
			boolValue(cs.Pending), string(cs.Channel))
	}

	for _, r := range []struct {
		result logic.DispatchResult
		n      int
	}{
		{logic.DispatchSent, snap.Counts.Sent},
		{logic.DispatchFailed, snap.Counts.Failed},
		{logic.DispatchSkipped, snap.Counts.Skipped},
	} {
		ch <- prometheus.MustNewConstMetric(notificationsDesc, prometheus.CounterValue, float64(r.n), string(r.result))
	}

	ch <- prometheus.MustNewConstMetric(connectedDesc, prometheus.GaugeValue,
		boolValue(snap.Connectivity == logic.Connected))
	if snap.Wake.Cause != "" {
		ch <- prometheus.MustNewConstMetric(wakeDesc, prometheus.GaugeValue, 1,
			string(snap.Wake.Cause), string(snap.Wake.Channel))
	}
	ch <- prometheus.MustNewConstMetric(uptimeDesc, prometheus.GaugeValue, snap.Uptime().Seconds())
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
