package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skobkin/amdgpu-clockprofile/internal/profile"
)

func newSeededRegistry(t *testing.T) *profile.Registry {
	t.Helper()
	reg := profile.NewRegistry()
	require.NoError(t, reg.AddDevice("Tesla_V100", 50, []int{1000, 1200, 1350}))
	require.NoError(t, reg.AddDevice("idle_only", 20, nil))
	require.NoError(t, reg.RecordMeasurement("Tesla_V100", "ResNet50", 1000, 800, 180))
	require.NoError(t, reg.RecordMeasurement("Tesla_V100", "ResNet50", 1200, 950, 220))
	require.NoError(t, reg.RecordMeasurement("Tesla_V100", "ResNet50", 1350, 1050, 270))
	return reg
}

func TestNewCollectorNilRegistry(t *testing.T) {
	assert.Nil(t, NewCollector(nil))
}

func TestCollectorExposesRecommendations(t *testing.T) {
	reg := newSeededRegistry(t)
	collector := NewCollector(reg)

	expected := `
# HELP clockprofile_device_idle_power_watts Configured idle power draw of the device in Watts.
# TYPE clockprofile_device_idle_power_watts gauge
clockprofile_device_idle_power_watts{device="Tesla_V100"} 50
clockprofile_device_idle_power_watts{device="idle_only"} 20
# HELP clockprofile_service_measurements Number of clock levels measured for the service on the device.
# TYPE clockprofile_service_measurements gauge
clockprofile_service_measurements{device="Tesla_V100",service="ResNet50"} 3
# HELP clockprofile_optimal_clock_mhz Clock with the best RPS per dynamic Watt.
# TYPE clockprofile_optimal_clock_mhz gauge
clockprofile_optimal_clock_mhz{device="Tesla_V100",service="ResNet50"} 1000
# HELP clockprofile_optimal_dynamic_power_watts Power above idle at the optimal clock in Watts.
# TYPE clockprofile_optimal_dynamic_power_watts gauge
clockprofile_optimal_dynamic_power_watts{device="Tesla_V100",service="ResNet50"} 130
`
	err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"clockprofile_device_idle_power_watts",
		"clockprofile_service_measurements",
		"clockprofile_optimal_clock_mhz",
		"clockprofile_optimal_dynamic_power_watts",
	)
	require.NoError(t, err)

	// 2 idle gauges, 1 measurement count, 5 optimal gauges.
	assert.Equal(t, 8, testutil.CollectAndCount(collector))
}

func TestCollectorEfficiencyReflectsIdlePower(t *testing.T) {
	reg := newSeededRegistry(t)

	promReg := prometheus.NewPedanticRegistry()
	require.NoError(t, promReg.Register(NewCollector(reg)))

	assert.InDelta(t, 800.0/130.0, gatherGauge(t, promReg, "clockprofile_optimal_efficiency_rps_per_watt"), 1e-9)

	require.NoError(t, reg.UpdateIdlePower("Tesla_V100", 170))
	assert.InDelta(t, 80.0, gatherGauge(t, promReg, "clockprofile_optimal_efficiency_rps_per_watt"), 1e-9)
}

func TestCollectorMatchesSnapshot(t *testing.T) {
	reg := newSeededRegistry(t)
	require.NoError(t, reg.RecordMeasurement("idle_only", "BERT", 900, 0, 10))

	promReg := prometheus.NewPedanticRegistry()
	require.NoError(t, promReg.Register(NewCollector(reg)))

	families, err := promReg.Gather()
	require.NoError(t, err)

	clocks := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "clockprofile_optimal_clock_mhz" {
			continue
		}
		for _, metric := range family.GetMetric() {
			var device string
			for _, label := range metric.GetLabel() {
				if label.GetName() == "device" {
					device = label.GetValue()
				}
			}
			clocks[device] = metric.GetGauge().GetValue()
		}
	}

	assert.Equal(t, map[string]float64{"Tesla_V100": 1000, "idle_only": 900}, clocks)
}

func gatherGauge(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		require.Len(t, family.GetMetric(), 1)
		return family.GetMetric()[0].GetGauge().GetValue()
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}
