package gpu

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

const (
	drmClassPath      = "class/drm"
	ppDpmSclkFilename = "pp_dpm_sclk"
)

// Info describes a GPU and the shader clock levels it exposes.
type Info struct {
	ID              string `json:"id"`
	PCI             string `json:"pci"`
	PCIID           string `json:"pci_id"`
	Name            string `json:"name"`
	SupportedClocks []int  `json:"supported_clocks"`
}

// Discover enumerates DRM cards exposed via sysfs under the provided root.
// Cards whose clock table cannot be read are returned with no clocks.
func Discover(root string, logger *slog.Logger) ([]Info, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sysRoot, err := os.OpenRoot(root)
	if err != nil {
		return nil, fmt.Errorf("open sysfs root: %w", err)
	}
	defer sysRoot.Close()

	entries, err := fs.ReadDir(sysRoot.FS(), drmClassPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("drm class path missing", "path", filepath.Join(root, drmClassPath))
			return nil, nil
		}
		return nil, fmt.Errorf("read drm class dir: %w", err)
	}

	var infos []Info
	for _, entry := range entries {
		name := entry.Name()
		if !isCardName(name) {
			continue
		}
		if !entry.IsDir() && entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		deviceRoot, err := sysRoot.OpenRoot(filepath.Join(drmClassPath, name, "device"))
		if err != nil {
			logger.Warn("failed to open device root", "card", name, "err", err)
			continue
		}

		info := loadCardInfo(name, deviceRoot, logger)
		if err := deviceRoot.Close(); err != nil {
			logger.Debug("failed to close device root", "card", name, "err", err)
		}
		infos = append(infos, info)
	}

	return infos, nil
}

func loadCardInfo(cardID string, deviceRoot *os.Root, logger *slog.Logger) Info {
	ids := readPCIIdentity(deviceRoot)

	info := Info{
		ID:    cardID,
		PCI:   ids.slot,
		PCIID: ids.pciID,
		Name:  ids.name,
	}
	if resolved := lookupGPUName(ids); shouldUseResolvedName(info.Name, resolved) {
		info.Name = resolved
	}

	raw, err := deviceRoot.ReadFile(ppDpmSclkFilename)
	if err != nil {
		logger.Debug("clock table unavailable", "card", cardID, "err", err)
		return info
	}
	info.SupportedClocks = parseClockLevels(raw)
	return info
}

type pciIdentity struct {
	slot      string
	pciID     string
	name      string
	subVendor string
	subDevice string
}

func readPCIIdentity(deviceRoot *os.Root) pciIdentity {
	var ids pciIdentity

	if data, err := deviceRoot.ReadFile("uevent"); err == nil {
		text := string(data)
		ids.slot = parseKeyValue(text, "PCI_SLOT_NAME")
		ids.pciID = parseKeyValue(text, "PCI_ID")
		if subsys := parseKeyValue(text, "PCI_SUBSYS_ID"); subsys != "" {
			if vendor, device, ok := strings.Cut(subsys, ":"); ok {
				ids.subVendor = vendor
				ids.subDevice = device
			}
		}
		ids.name = parseKeyValue(text, "PCI_ID_NAME")
		if ids.name == "" {
			ids.name = parseKeyValue(text, "DRIVER")
		}
	}

	if ids.pciID == "" {
		vendor, vErr := readTrim(deviceRoot, "vendor")
		device, dErr := readTrim(deviceRoot, "device")
		if vErr == nil && dErr == nil {
			ids.pciID = strings.TrimPrefix(vendor, "0x") + ":" + strings.TrimPrefix(device, "0x")
		}
	}
	if ids.name == "" {
		ids.name, _ = readTrim(deviceRoot, "product_name")
	}
	if ids.subVendor == "" {
		ids.subVendor, _ = readTrim(deviceRoot, "subsystem_vendor")
	}
	if ids.subDevice == "" {
		ids.subDevice, _ = readTrim(deviceRoot, "subsystem_device")
	}
	return ids
}

// parseClockLevels reads pp_dpm_* content ("0: 500Mhz", "1: 2100Mhz *") and
// returns the distinct clocks in file order. Non-numbered levels such as the
// deep-sleep "S:" entry are skipped.
func parseClockLevels(raw []byte) []int {
	var (
		clocks []int
		seen   = make(map[int]struct{})
	)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		level, rest, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !ok || !allDigits(strings.TrimSpace(level)) {
			continue
		}
		clock, ok := extractClockMHz(rest)
		if !ok || clock <= 0 {
			continue
		}
		if _, dup := seen[clock]; dup {
			continue
		}
		seen[clock] = struct{}{}
		clocks = append(clocks, clock)
	}
	return clocks
}

func extractClockMHz(line string) (int, bool) {
	for _, field := range strings.Fields(line) {
		field = strings.ToLower(strings.TrimSuffix(field, "*"))
		if !strings.HasSuffix(field, "mhz") {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSuffix(field, "mhz"), 64)
		if err != nil {
			continue
		}
		return int(value + 0.5), true
	}
	return 0, false
}

func isCardName(name string) bool {
	index, ok := strings.CutPrefix(name, "card")
	return ok && allDigits(index)
}

func parseKeyValue(data, key string) string {
	prefix := key + "="
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		if value, ok := strings.CutPrefix(scanner.Text(), prefix); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func readTrim(root *os.Root, name string) (string, error) {
	data, err := root.ReadFile(name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func allDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
