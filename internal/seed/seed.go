// Package seed loads a YAML set of device profiles and clock measurements
// and applies it to a profile registry.
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skobkin/amdgpu-clockprofile/internal/profile"
)

// File is the decoded seed document.
type File struct {
	Devices []Device `yaml:"devices"`
}

// Device describes one accelerator and the measurements taken on it.
type Device struct {
	ID              string        `yaml:"id"`
	IdlePowerWatts  float64       `yaml:"idle_power_watts"`
	SupportedClocks []int         `yaml:"supported_clocks"`
	Measurements    []Measurement `yaml:"measurements"`
}

// Measurement is one (service, clock) observation.
type Measurement struct {
	Service    string  `yaml:"service"`
	ClockMHz   int     `yaml:"clock_mhz"`
	RPS        float64 `yaml:"rps"`
	PowerWatts float64 `yaml:"power_watts"`
}

// Load reads and validates the seed file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	file, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("seed file %s: %w", path, err)
	}
	return file, nil
}

// Parse decodes and validates a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Validate checks structural constraints. All problems are reported together.
func (f *File) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(f.Devices))

	for i, device := range f.Devices {
		if device.ID == "" {
			errs = append(errs, fmt.Errorf("devices[%d]: id must not be empty", i))
		} else if _, dup := seen[device.ID]; dup {
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate id %q", i, device.ID))
		}
		seen[device.ID] = struct{}{}

		if device.IdlePowerWatts < 0 {
			errs = append(errs, fmt.Errorf("devices[%d]: idle_power_watts must be >= 0", i))
		}
		for j, clock := range device.SupportedClocks {
			if clock <= 0 {
				errs = append(errs, fmt.Errorf("devices[%d].supported_clocks[%d]: must be > 0", i, j))
			}
		}
		for j, m := range device.Measurements {
			if m.Service == "" {
				errs = append(errs, fmt.Errorf("devices[%d].measurements[%d]: service must not be empty", i, j))
			}
			if m.ClockMHz <= 0 {
				errs = append(errs, fmt.Errorf("devices[%d].measurements[%d]: clock_mhz must be > 0", i, j))
			}
		}
	}

	return errors.Join(errs...)
}

// Apply adds every device to reg and records its measurements in file order.
// A device that is already registered keeps its clocks and only has its idle
// power replaced.
func (f *File) Apply(reg *profile.Registry, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	for _, device := range f.Devices {
		err := reg.AddDevice(device.ID, device.IdlePowerWatts, device.SupportedClocks)
		switch {
		case errors.Is(err, profile.ErrDuplicateDevice):
			if err := reg.UpdateIdlePower(device.ID, device.IdlePowerWatts); err != nil {
				return fmt.Errorf("apply device %q: %w", device.ID, err)
			}
			logger.Debug("updated existing device", "device_id", device.ID, "idle_power_w", device.IdlePowerWatts)
		case err != nil:
			return fmt.Errorf("apply device %q: %w", device.ID, err)
		default:
			logger.Debug("added device", "device_id", device.ID, "clocks", len(device.SupportedClocks))
		}

		for _, m := range device.Measurements {
			if err := reg.RecordMeasurement(device.ID, m.Service, m.ClockMHz, m.RPS, m.PowerWatts); err != nil {
				return fmt.Errorf("apply measurement %q/%q@%dMHz: %w", device.ID, m.Service, m.ClockMHz, err)
			}
		}
		logger.Info("seeded device", "device_id", device.ID, "measurements", len(device.Measurements))
	}

	return nil
}
