// Package metrics exposes the profile registry as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skobkin/amdgpu-clockprofile/internal/profile"
)

const namespace = "clockprofile"

type registryCollector struct {
	registry *profile.Registry

	idlePower    *prometheus.Desc
	measurements *prometheus.Desc
	optimal      []optimalMetric
}

type optimalMetric struct {
	desc    *prometheus.Desc
	extract func(opt profile.Optimal) float64
}

// NewCollector returns a collector that recomputes recommendations on every
// scrape. It returns nil when reg is nil.
func NewCollector(reg *profile.Registry) prometheus.Collector {
	if reg == nil {
		return nil
	}

	serviceDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "optimal", name),
			help,
			[]string{"device", "service"},
			nil,
		)
	}

	return &registryCollector{
		registry: reg,
		idlePower: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "idle_power_watts"),
			"Configured idle power draw of the device in Watts.",
			[]string{"device"},
			nil,
		),
		measurements: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "service", "measurements"),
			"Number of clock levels measured for the service on the device.",
			[]string{"device", "service"},
			nil,
		),
		optimal: []optimalMetric{
			{
				desc:    serviceDesc("clock_mhz", "Clock with the best RPS per dynamic Watt."),
				extract: func(opt profile.Optimal) float64 { return float64(opt.ClockMHz) },
			},
			{
				desc:    serviceDesc("rps", "Requests per second measured at the optimal clock."),
				extract: func(opt profile.Optimal) float64 { return opt.RPS },
			},
			{
				desc:    serviceDesc("dynamic_power_watts", "Power above idle at the optimal clock in Watts."),
				extract: func(opt profile.Optimal) float64 { return opt.DynamicPowerWatts },
			},
			{
				desc:    serviceDesc("total_power_watts", "Total active power at the optimal clock in Watts."),
				extract: func(opt profile.Optimal) float64 { return opt.TotalPowerWatts },
			},
			{
				desc:    serviceDesc("efficiency_rps_per_watt", "Requests per second per dynamic Watt at the optimal clock."),
				extract: func(opt profile.Optimal) float64 { return opt.Efficiency },
			},
		},
	}
}

func (c *registryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.idlePower
	ch <- c.measurements
	for _, metric := range c.optimal {
		ch <- metric.desc
	}
}

// Collect reads the registry through one snapshot so a scrape never mixes
// idle power and measurements from different updates.
func (c *registryCollector) Collect(ch chan<- prometheus.Metric) {
	for _, device := range c.registry.Snapshot() {
		ch <- prometheus.MustNewConstMetric(c.idlePower, prometheus.GaugeValue, device.IdlePowerWatts, device.ID)

		for _, svc := range device.Services {
			ch <- prometheus.MustNewConstMetric(c.measurements, prometheus.GaugeValue, float64(svc.Measurements), device.ID, svc.ID)
			for _, metric := range c.optimal {
				ch <- prometheus.MustNewConstMetric(metric.desc, prometheus.GaugeValue, metric.extract(svc.Optimal), device.ID, svc.ID)
			}
		}
	}
}
