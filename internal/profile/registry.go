// Package profile keeps per-device, per-service clock measurements and
// derives the clock with the best throughput per watt of dynamic power.
package profile

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// efficiencySentinel is below any reachable efficiency, so a non-empty table
// always produces a winner.
const efficiencySentinel = -1.0

// Registry holds one profile per device id. All operations are synchronous.
// A single lock guards every table so idle power and measurements are read
// consistently within one calculation.
type Registry struct {
	now func() time.Time

	mu      sync.RWMutex
	devices map[string]*deviceProfile
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock overrides the timestamp source used for update bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		now:     time.Now,
		devices: make(map[string]*deviceProfile),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddDevice registers a device. The clock list is copied.
func (r *Registry) AddDevice(deviceID string, idlePowerWatts float64, supportedClocks []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[deviceID]; ok {
		return fmt.Errorf("add device %q: %w", deviceID, ErrDuplicateDevice)
	}

	r.devices[deviceID] = &deviceProfile{
		idlePower:       idlePowerWatts,
		supportedClocks: slices.Clone(supportedClocks),
		services:        make(map[string]*serviceTable),
		updatedAt:       r.now(),
	}
	return nil
}

// UpdateIdlePower overwrites the idle power of an existing device.
func (r *Registry) UpdateIdlePower(deviceID string, idlePowerWatts float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return fmt.Errorf("update idle power %q: %w", deviceID, ErrDeviceNotFound)
	}
	device.idlePower = idlePowerWatts
	device.updatedAt = r.now()
	return nil
}

// IdlePower returns the idle power of a device.
func (r *Registry) IdlePower(deviceID string) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return 0, fmt.Errorf("idle power %q: %w", deviceID, ErrDeviceNotFound)
	}
	return device.idlePower, nil
}

// RecordMeasurement stores or replaces the measurement at clockMHz for the
// given service. Values are not validated here.
func (r *Registry) RecordMeasurement(deviceID, serviceID string, clockMHz int, rps, totalPowerWatts float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return fmt.Errorf("record measurement %q/%q: %w", deviceID, serviceID, ErrDeviceNotFound)
	}

	table, ok := device.services[serviceID]
	if !ok {
		table = newServiceTable()
		device.services[serviceID] = table
	}
	table.put(clockMHz, Measurement{RPS: rps, PowerWatts: totalPowerWatts})
	table.updatedAt = r.now()
	return nil
}

// Measurement returns the measurement recorded at clockMHz, if any.
func (r *Registry) Measurement(deviceID, serviceID string, clockMHz int) (Measurement, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	table := r.table(deviceID, serviceID)
	if table == nil {
		return Measurement{}, false
	}
	m, ok := table.entries[clockMHz]
	return m, ok
}

// Measurements returns a copy of every measurement recorded for the pair.
func (r *Registry) Measurements(deviceID, serviceID string) (Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	table := r.table(deviceID, serviceID)
	if table == nil {
		return nil, false
	}
	out := make(Table, len(table.entries))
	for clock, m := range table.entries {
		out[clock] = m
	}
	return out, true
}

// SupportedClocks returns a copy of the clock list given at AddDevice time.
func (r *Registry) SupportedClocks(deviceID string) ([]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("supported clocks %q: %w", deviceID, ErrDeviceNotFound)
	}
	return slices.Clone(device.supportedClocks), nil
}

// DeviceExists reports whether deviceID was added.
func (r *Registry) DeviceExists(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[deviceID]
	return ok
}

// HasMeasurements reports whether at least one measurement exists for the pair.
func (r *Registry) HasMeasurements(deviceID, serviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table(deviceID, serviceID) != nil
}

// OptimalSettings scans the recorded clocks in first-recorded order and
// returns the one with the highest RPS per watt of dynamic power. Entries
// with non-positive RPS or dynamic power score 0 but stay eligible, so a
// non-empty table always yields a result. Ties keep the earlier clock.
func (r *Registry) OptimalSettings(deviceID, serviceID string) (Optimal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	table := r.table(deviceID, serviceID)
	if table == nil {
		return Optimal{}, false
	}
	return table.optimal(r.devices[deviceID].idlePower)
}

// Snapshot captures every device and the recommendation for each of its
// services under a single read lock. Devices and services are sorted by id.
func (r *Registry) Snapshot() []DeviceSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]DeviceSnapshot, 0, len(ids))
	for _, id := range ids {
		device := r.devices[id]
		snap := DeviceSnapshot{
			ID:              id,
			IdlePowerWatts:  device.idlePower,
			SupportedClocks: slices.Clone(device.supportedClocks),
		}

		services := make([]string, 0, len(device.services))
		for svc := range device.services {
			services = append(services, svc)
		}
		sort.Strings(services)

		for _, svc := range services {
			table := device.services[svc]
			opt, ok := table.optimal(device.idlePower)
			if !ok {
				continue
			}
			snap.Services = append(snap.Services, ServiceSnapshot{
				ID:           svc,
				Measurements: len(table.entries),
				Optimal:      opt,
			})
		}
		out = append(out, snap)
	}
	return out
}

// Devices returns every registered device id in sorted order.
func (r *Registry) Devices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Services returns the sorted ids of services with measurements on deviceID.
func (r *Registry) Services(deviceID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(device.services))
	for id := range device.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DeviceUpdatedAt returns when the device was added or its idle power last changed.
func (r *Registry) DeviceUpdatedAt(deviceID string) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return time.Time{}, fmt.Errorf("device updated at %q: %w", deviceID, ErrDeviceNotFound)
	}
	return device.updatedAt, nil
}

// ServiceUpdatedAt returns when a measurement was last recorded for the pair.
func (r *Registry) ServiceUpdatedAt(deviceID, serviceID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	table := r.table(deviceID, serviceID)
	if table == nil {
		return time.Time{}, false
	}
	return table.updatedAt, true
}

// table must be called with mu held.
func (r *Registry) table(deviceID, serviceID string) *serviceTable {
	device, ok := r.devices[deviceID]
	if !ok {
		return nil
	}
	return device.services[serviceID]
}
