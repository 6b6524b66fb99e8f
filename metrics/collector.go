// Package metrics exports the avatar codec's rate meters as Prometheus
// collectors, one gauge pair per snapshot section and direction.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vastspace/avatarwire/rate"
)

// Collector adapts an AvatarRates pair to the Prometheus collector
// interface. Gauges are sampled from the smoothed meters at scrape time.
type Collector struct {
	rates *rate.AvatarRates

	dataDesc   *prometheus.Desc
	updateDesc *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over both directions of rates. The
// constLabels typically carry the avatar session id.
func NewCollector(rates *rate.AvatarRates, constLabels prometheus.Labels) *Collector {
	return &Collector{
		rates: rates,
		dataDesc: prometheus.NewDesc(
			"avatar_section_data_rate_kibps",
			"Smoothed avatar section byte rate in KiB/s.",
			[]string{"section", "direction"}, constLabels,
		),
		updateDesc: prometheus.NewDesc(
			"avatar_section_update_rate",
			"Smoothed avatar section update rate in events/s.",
			[]string{"section", "direction"}, constLabels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.dataDesc
	ch <- c.updateDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.collectDirection(ch, c.rates.Inbound, "inbound")
	c.collectDirection(ch, c.rates.Outbound, "outbound")
}

func (c *Collector) collectDirection(ch chan<- prometheus.Metric, rates *rate.Rates, direction string) {
	for _, name := range rates.Names() {
		label := name
		if label == "" {
			label = "total"
		}

		dataRate, err := rates.DataRate(name)
		if err != nil {
			continue
		}
		updateRate, err := rates.UpdateRate(name)
		if err != nil {
			continue
		}

		ch <- prometheus.MustNewConstMetric(c.dataDesc, prometheus.GaugeValue, dataRate, label, direction)
		ch <- prometheus.MustNewConstMetric(c.updateDesc, prometheus.GaugeValue, updateRate, label, direction)
	}
}
