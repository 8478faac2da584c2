package api

import (
	"github.com/skobkin/amdgpu-clockprofile/internal/gpu"
	"github.com/skobkin/amdgpu-clockprofile/internal/profile"
	"github.com/skobkin/amdgpu-clockprofile/internal/version"
)

// DeviceSummary describes a registered device.
type DeviceSummary struct {
	ID              string  `json:"id"`
	Name            string  `json:"name,omitempty"`
	PCIID           string  `json:"pci_id,omitempty"`
	IdlePowerW      float64 `json:"idle_power_w"`
	SupportedClocks []int   `json:"supported_clocks"`
}

// Recommendation is the most efficient recorded clock for a device/service pair.
type Recommendation struct {
	Device        string  `json:"device"`
	Service       string  `json:"service"`
	ClockMHz      int     `json:"clock_mhz"`
	RPS           float64 `json:"rps"`
	DynamicPowerW float64 `json:"dynamic_power_w"`
	TotalPowerW   float64 `json:"total_power_w"`
	Efficiency    float64 `json:"efficiency"`
	Measurements  int     `json:"measurements"`
}

// NewRecommendation converts a registry result into a payload.
func NewRecommendation(device, service string, opt profile.Optimal, measurements int) Recommendation {
	return Recommendation{
		Device:        device,
		Service:       service,
		ClockMHz:      opt.ClockMHz,
		RPS:           opt.RPS,
		DynamicPowerW: opt.DynamicPowerWatts,
		TotalPowerW:   opt.TotalPowerWatts,
		Efficiency:    opt.Efficiency,
		Measurements:  measurements,
	}
}

// RecommendReport is the JSON output of the recommend command.
type RecommendReport struct {
	Type            string           `json:"type"`
	Version         version.Info     `json:"version"`
	Devices         []DeviceSummary  `json:"devices"`
	Recommendations []Recommendation `json:"recommendations"`
}

// NewRecommendReport constructs a recommend payload.
func NewRecommendReport(devices []DeviceSummary, recs []Recommendation) RecommendReport {
	return RecommendReport{
		Type:            "recommend",
		Version:         version.Current(),
		Devices:         devices,
		Recommendations: recs,
	}
}

// DiscoverReport is the JSON output of the discover command.
type DiscoverReport struct {
	Type string     `json:"type"`
	GPUs []gpu.Info `json:"gpus"`
}

// NewDiscoverReport constructs a discover payload.
func NewDiscoverReport(gpus []gpu.Info) DiscoverReport {
	if gpus == nil {
		gpus = []gpu.Info{}
	}
	return DiscoverReport{
		Type: "discover",
		GPUs: gpus,
	}
}
