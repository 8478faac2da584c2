package gpu

import (
	"strings"
	"sync"

	"github.com/jaypipes/pcidb"
)

var (
	pciOnce sync.Once
	pciDB   *pcidb.PCIDB
	pciErr  error
)

// lookupGPUName resolves a marketing name from the system PCI database.
func lookupGPUName(ids pciIdentity) string {
	db := loadPCIDatabase()
	if db == nil {
		return ""
	}
	return resolveName(db.Products, ids)
}

// resolveName prefers the board-specific subsystem entry when one matches
// and falls back to the chip's product name.
func resolveName(products map[string]*pcidb.Product, ids pciIdentity) string {
	vendorID, deviceID, ok := strings.Cut(ids.pciID, ":")
	if !ok {
		return ""
	}
	vendorID = normalizePCIID(vendorID)
	deviceID = normalizePCIID(deviceID)
	if vendorID == "" || deviceID == "" {
		return ""
	}

	product, ok := products[vendorID+deviceID]
	if !ok || product == nil {
		return ""
	}

	subVendorID := normalizePCIID(ids.subVendor)
	subDeviceID := normalizePCIID(ids.subDevice)
	if subVendorID != "" && subDeviceID != "" {
		for _, subsystem := range product.Subsystems {
			if subsystem == nil || subsystem.Name == "" {
				continue
			}
			if strings.EqualFold(subsystem.VendorID, subVendorID) && strings.EqualFold(subsystem.ID, subDeviceID) {
				return subsystem.Name
			}
		}
	}

	return product.Name
}

func loadPCIDatabase() *pcidb.PCIDB {
	pciOnce.Do(func() {
		pciDB, pciErr = pcidb.New()
	})
	if pciErr != nil {
		return nil
	}
	return pciDB
}

func normalizePCIID(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "0x")
	value = strings.TrimPrefix(value, "0X")
	if value == "" {
		return ""
	}
	value = strings.ToLower(value)
	if len(value) < 4 {
		value = strings.Repeat("0", 4-len(value)) + value
	}
	return value
}

// shouldUseResolvedName reports whether the sysfs-provided name is only a
// driver name or placeholder that the PCI database can improve on.
func shouldUseResolvedName(current, resolved string) bool {
	if resolved == "" {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(current))
	switch {
	case lower == "", lower == "amdgpu", lower == "radeon", lower == "unknown":
		return true
	case strings.HasPrefix(lower, "pci device"), strings.HasPrefix(lower, "0x"):
		return true
	}
	return false
}
