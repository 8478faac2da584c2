package profile

import "time"

// Measurement is the throughput and total active power observed at one clock.
type Measurement struct {
	RPS        float64 `json:"rps"`
	PowerWatts float64 `json:"power_watts"`
}

// Table maps a clock frequency in MHz to the measurement recorded there.
type Table map[int]Measurement

// Optimal describes the most efficient recorded clock for a device/service pair.
type Optimal struct {
	ClockMHz          int     `json:"clock_mhz"`
	RPS               float64 `json:"rps"`
	DynamicPowerWatts float64 `json:"dynamic_power_watts"`
	TotalPowerWatts   float64 `json:"total_power_watts"`
	Efficiency        float64 `json:"efficiency"`
}

// DeviceSnapshot is a consistent view of one device taken by Registry.Snapshot.
type DeviceSnapshot struct {
	ID              string
	IdlePowerWatts  float64
	SupportedClocks []int
	Services        []ServiceSnapshot
}

// ServiceSnapshot holds the recommendation for one service on a device.
type ServiceSnapshot struct {
	ID           string
	Measurements int
	Optimal      Optimal
}

type deviceProfile struct {
	idlePower       float64
	supportedClocks []int
	services        map[string]*serviceTable
	updatedAt       time.Time
}

// serviceTable keeps clocks in the order they were first recorded so the
// optimal scan is deterministic.
type serviceTable struct {
	order     []int
	entries   map[int]Measurement
	updatedAt time.Time
}

func newServiceTable() *serviceTable {
	return &serviceTable{entries: make(map[int]Measurement)}
}

func (t *serviceTable) put(clockMHz int, m Measurement) {
	if _, ok := t.entries[clockMHz]; !ok {
		t.order = append(t.order, clockMHz)
	}
	t.entries[clockMHz] = m
}

// optimal must be called with the registry lock held.
func (t *serviceTable) optimal(idle float64) (Optimal, bool) {
	if len(t.order) == 0 {
		return Optimal{}, false
	}

	best := Optimal{Efficiency: efficiencySentinel}
	for _, clock := range t.order {
		m := t.entries[clock]
		dynamic := m.PowerWatts - idle

		efficiency := 0.0
		if m.RPS > 0 && dynamic > 0 {
			efficiency = m.RPS / dynamic
		}

		if efficiency > best.Efficiency {
			best = Optimal{
				ClockMHz:          clock,
				RPS:               m.RPS,
				DynamicPowerWatts: dynamic,
				TotalPowerWatts:   m.PowerWatts,
				Efficiency:        efficiency,
			}
		}
	}
	return best, true
}
