// Package app wires configuration, device discovery, the measurement seed,
// and the profile registry into the CLI commands.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/skobkin/amdgpu-clockprofile/internal/api"
	"github.com/skobkin/amdgpu-clockprofile/internal/config"
	"github.com/skobkin/amdgpu-clockprofile/internal/gpu"
	"github.com/skobkin/amdgpu-clockprofile/internal/metrics"
	"github.com/skobkin/amdgpu-clockprofile/internal/profile"
	"github.com/skobkin/amdgpu-clockprofile/internal/seed"
)

// ErrNoProfileFile is returned by Recommend when no seed file is configured.
var ErrNoProfileFile = errors.New("profile file is not set")

// Recommend builds a registry from discovered devices and the configured seed
// file, then writes one recommendation per device/service pair to w.
func Recommend(ctx context.Context, baseLogger *slog.Logger, cfg config.Config, w io.Writer) error {
	appLogger := baseLogger.With("component", "app")

	if cfg.ProfileFile == "" {
		return ErrNoProfileFile
	}

	reg := profile.NewRegistry()
	known := make(map[string]gpu.Info)

	if cfg.Discover {
		gpus, err := gpu.Discover(cfg.SysfsRoot, baseLogger.With("component", "gpu_discovery"))
		if err != nil {
			return fmt.Errorf("discover gpus: %w", err)
		}
		appLogger.Info("discovered GPUs", "count", len(gpus))

		for _, info := range gpus {
			if err := reg.AddDevice(info.ID, cfg.DefaultIdlePower, info.SupportedClocks); err != nil {
				return fmt.Errorf("register discovered gpu: %w", err)
			}
			known[info.ID] = info
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	file, err := seed.Load(cfg.ProfileFile)
	if err != nil {
		return err
	}
	if err := file.Apply(reg, baseLogger.With("component", "seed")); err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}

	devices, recs := collectReport(reg, known)
	appLogger.Info("computed recommendations", "devices", len(devices), "recommendations", len(recs))

	switch cfg.OutputFormat {
	case config.FormatJSON:
		if err := writeJSON(w, api.NewRecommendReport(devices, recs)); err != nil {
			return err
		}
	default:
		if err := writeRecommendTable(w, recs); err != nil {
			return err
		}
	}

	if cfg.EmitMetrics {
		if err := writeMetrics(w, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// Discover lists GPUs found under the configured sysfs root.
func Discover(ctx context.Context, baseLogger *slog.Logger, cfg config.Config, w io.Writer) error {
	gpus, err := gpu.Discover(cfg.SysfsRoot, baseLogger.With("component", "gpu_discovery"))
	if err != nil {
		return fmt.Errorf("discover gpus: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if cfg.OutputFormat == config.FormatJSON {
		return writeJSON(w, api.NewDiscoverReport(gpus))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPCI\tPCI_ID\tNAME\tCLOCKS_MHZ")
	for _, info := range gpus {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", info.ID, info.PCI, info.PCIID, info.Name, formatClocks(info.SupportedClocks))
	}
	return tw.Flush()
}

func collectReport(reg *profile.Registry, known map[string]gpu.Info) ([]api.DeviceSummary, []api.Recommendation) {
	var (
		devices []api.DeviceSummary
		recs    = []api.Recommendation{}
	)

	for _, device := range reg.Snapshot() {
		info := known[device.ID]
		devices = append(devices, api.DeviceSummary{
			ID:              device.ID,
			Name:            info.Name,
			PCIID:           info.PCIID,
			IdlePowerW:      device.IdlePowerWatts,
			SupportedClocks: device.SupportedClocks,
		})
		for _, svc := range device.Services {
			recs = append(recs, api.NewRecommendation(device.ID, svc.ID, svc.Optimal, svc.Measurements))
		}
	}

	return devices, recs
}

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func writeRecommendTable(w io.Writer, recs []api.Recommendation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tSERVICE\tCLOCK_MHZ\tRPS\tDYNAMIC_W\tTOTAL_W\tRPS_PER_W\tNOTE")
	for _, rec := range recs {
		note := ""
		// A zero score means no measurement had positive RPS and dynamic power.
		if rec.Efficiency == 0 {
			note = "no usable measurement"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
			rec.Device, rec.Service, rec.ClockMHz, rec.RPS, rec.DynamicPowerW, rec.TotalPowerW, rec.Efficiency, note)
	}
	return tw.Flush()
}

func writeMetrics(w io.Writer, reg *profile.Registry) error {
	promReg := prometheus.NewRegistry()
	if err := promReg.Register(metrics.NewCollector(reg)); err != nil {
		return err
	}
	families, err := promReg.Gather()
	if err != nil {
		return err
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return err
		}
	}
	return nil
}

func formatClocks(clocks []int) string {
	if len(clocks) == 0 {
		return "-"
	}
	buf := make([]byte, 0, len(clocks)*5)
	for i, clock := range clocks {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(clock), 10)
	}
	return string(buf)
}
