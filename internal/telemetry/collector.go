package telemetry

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielpatrickdp/mdap-controller/internal/calibrate"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #region collector

// Source returns the current metrics snapshot.
type Source func() mdap.Snapshot

// Collector exports mdap.Metrics snapshots and the last calibration table.
// Values are read at scrape time; nothing is double-counted.
type Collector struct {
	source Source

	samples      *prometheus.Desc
	failed       *prometheus.Desc
	steps        *prometheus.Desc
	flaggedSteps *prometheus.Desc
	redFlags     *prometheus.Desc
	success      *prometheus.Desc
	avgSamples   *prometheus.Desc
	efficiency   *prometheus.Desc

	mu      sync.Mutex
	results []calibrate.Result
}

// NewCollector wraps a snapshot source. source may be nil when only
// calibration results are exported.
func NewCollector(source Source) *Collector {
	cfgLabels := []string{"k_margin", "max_candidates", "batch"}
	return &Collector{
		source:       source,
		samples:      prometheus.NewDesc("mdap_samples_total", "Predictor calls issued.", nil, nil),
		failed:       prometheus.NewDesc("mdap_failed_samples_total", "Predictor calls that failed or timed out.", nil, nil),
		steps:        prometheus.NewDesc("mdap_steps_total", "Committed decisions.", nil, nil),
		flaggedSteps: prometheus.NewDesc("mdap_flagged_steps_total", "Decisions carrying a red flag.", nil, nil),
		redFlags:     prometheus.NewDesc("mdap_red_flags_total", "Red flags by reason.", []string{"reason"}, nil),
		success:      prometheus.NewDesc("mdap_calibration_success_rate", "Episodes solved over episodes attempted.", cfgLabels, nil),
		avgSamples:   prometheus.NewDesc("mdap_calibration_avg_samples_per_episode", "Mean predictor calls per episode.", cfgLabels, nil),
		efficiency:   prometheus.NewDesc("mdap_calibration_efficiency", "Optimal steps over mean steps of solved episodes.", cfgLabels, nil),
	}
}

// ObserveCalibration replaces the exported calibration table.
func (c *Collector) ObserveCalibration(results []calibrate.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = latestPerCell(results)
}

// latestPerCell keeps the last result for each exported label set.
func latestPerCell(results []calibrate.Result) []calibrate.Result {
	type cell struct{ k, max, batch int }
	index := make(map[cell]int, len(results))
	var out []calibrate.Result
	for _, r := range results {
		key := cell{r.Config.KMargin, r.Config.MaxCandidates, r.Config.Increment()}
		if i, ok := index[key]; ok {
			out[i] = r
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.samples, c.failed, c.steps, c.flaggedSteps, c.redFlags, c.success, c.avgSamples, c.efficiency,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source != nil {
		s := c.source()
		ch <- prometheus.MustNewConstMetric(c.samples, prometheus.CounterValue, float64(s.TotalSamples))
		ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(s.FailedSamples))
		ch <- prometheus.MustNewConstMetric(c.steps, prometheus.CounterValue, float64(s.Steps()))
		ch <- prometheus.MustNewConstMetric(c.flaggedSteps, prometheus.CounterValue, float64(s.FlaggedSteps))
		for _, r := range s.Reasons() {
			ch <- prometheus.MustNewConstMetric(c.redFlags, prometheus.CounterValue, float64(s.RedFlagsByReason[r]), string(r))
		}
	}

	c.mu.Lock()
	results := c.results
	c.mu.Unlock()
	for _, r := range results {
		labels := []string{
			strconv.Itoa(r.Config.KMargin),
			strconv.Itoa(r.Config.MaxCandidates),
			strconv.Itoa(r.Config.Increment()),
		}
		ch <- prometheus.MustNewConstMetric(c.success, prometheus.GaugeValue, r.SuccessRate, labels...)
		ch <- prometheus.MustNewConstMetric(c.avgSamples, prometheus.GaugeValue, r.AvgSamplesPerEpisode, labels...)
		ch <- prometheus.MustNewConstMetric(c.efficiency, prometheus.GaugeValue, r.Efficiency, labels...)
	}
}

// #endregion

// #region registry

// NewRegistry returns a private registry holding c.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return reg
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// #endregion
