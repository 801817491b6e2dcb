package metrics

import "github.com/prometheus/client_golang/prometheus"

// statsCollector reads the inverter transport counters at scrape time.
type statsCollector struct {
	source StatsSource

	reads       *prometheus.Desc
	writes      *prometheus.Desc
	readErrors  *prometheus.Desc
	timeouts    *prometheus.Desc
	consecutive *prometheus.Desc
}

func newStatsCollector(source StatsSource) *statsCollector {
	labels := []string{"inverter"}
	return &statsCollector{
		source:      source,
		reads:       prometheus.NewDesc("inverter_modbus_reads_total", "Successful register reads", labels, nil),
		writes:      prometheus.NewDesc("inverter_modbus_writes_total", "Successful register writes", labels, nil),
		readErrors:  prometheus.NewDesc("inverter_modbus_read_errors_total", "Failed register reads", labels, nil),
		timeouts:    prometheus.NewDesc("inverter_modbus_timeouts_total", "Register reads that timed out", labels, nil),
		consecutive: prometheus.NewDesc("inverter_modbus_consecutive_read_errors", "Current run of failed reads", labels, nil),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.reads
	ch <- c.writes
	ch <- c.readErrors
	ch <- c.timeouts
	ch <- c.consecutive
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.source.Stats()
	id := c.source.ID()
	ch <- prometheus.MustNewConstMetric(c.reads, prometheus.CounterValue, float64(st.Reads), id)
	ch <- prometheus.MustNewConstMetric(c.writes, prometheus.CounterValue, float64(st.Writes), id)
	ch <- prometheus.MustNewConstMetric(c.readErrors, prometheus.CounterValue, float64(st.ReadErrors), id)
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(st.Timeouts), id)
	ch <- prometheus.MustNewConstMetric(c.consecutive, prometheus.GaugeValue, float64(st.Consecutive), id)
}
