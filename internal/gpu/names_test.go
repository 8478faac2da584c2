package gpu

import (
	"testing"

	"github.com/jaypipes/pcidb"
)

func TestResolveName(t *testing.T) {
	t.Parallel()

	products := map[string]*pcidb.Product{
		"100273bf": {
			VendorID: "1002",
			ID:       "73bf",
			Name:     "Navi 21 [Radeon RX 6800/6800 XT / 6900 XT]",
			Subsystems: []*pcidb.Product{
				nil,
				{VendorID: "1002", ID: "0e3a", Name: ""},
				{VendorID: "1002", ID: "0e3a", Name: "Radeon RX 6900 XT"},
				{VendorID: "148c", ID: "2408", Name: "Red Devil AMD Radeon RX 6800 XT"},
			},
		},
		"10026798": {
			VendorID: "1002",
			ID:       "6798",
			Name:     "Tahiti XT [Radeon HD 7970]",
		},
	}

	tests := []struct {
		name string
		ids  pciIdentity
		want string
	}{
		{
			name: "subsystem match wins",
			ids:  pciIdentity{pciID: "1002:73BF", subVendor: "0x148C", subDevice: "0x2408"},
			want: "Red Devil AMD Radeon RX 6800 XT",
		},
		{
			name: "unnamed subsystem is skipped",
			ids:  pciIdentity{pciID: "1002:73bf", subVendor: "1002", subDevice: "0e3a"},
			want: "Radeon RX 6900 XT",
		},
		{
			name: "unknown subsystem falls back to product",
			ids:  pciIdentity{pciID: "1002:73bf", subVendor: "1043", subDevice: "04f2"},
			want: "Navi 21 [Radeon RX 6800/6800 XT / 6900 XT]",
		},
		{
			name: "missing subsystem ids fall back to product",
			ids:  pciIdentity{pciID: "1002:73bf", subVendor: "148c"},
			want: "Navi 21 [Radeon RX 6800/6800 XT / 6900 XT]",
		},
		{
			name: "product without subsystems",
			ids:  pciIdentity{pciID: "1002:6798", subVendor: "1002", subDevice: "3000"},
			want: "Tahiti XT [Radeon HD 7970]",
		},
		{
			name: "unknown product",
			ids:  pciIdentity{pciID: "10de:1db4"},
			want: "",
		},
		{
			name: "malformed pci id",
			ids:  pciIdentity{pciID: "100273bf"},
			want: "",
		},
		{
			name: "empty device part",
			ids:  pciIdentity{pciID: "1002:"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := resolveName(products, tt.ids); got != tt.want {
				t.Fatalf("resolveName(%+v) = %q, want %q", tt.ids, got, tt.want)
			}
		})
	}
}

func TestResolveNameNilProducts(t *testing.T) {
	t.Parallel()

	if got := resolveName(nil, pciIdentity{pciID: "1002:73bf"}); got != "" {
		t.Fatalf("resolveName(nil) = %q, want empty", got)
	}
}

func TestNormalizePCIID(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":         "",
		"  ":       "",
		"0x1002":   "1002",
		"0X73BF":   "73bf",
		" 73DF\n":  "73df",
		"2":        "0002",
		"0x3a":     "003a",
		"0x":       "",
		"abcdef12": "abcdef12",
	}

	for input, want := range tests {
		if got := normalizePCIID(input); got != want {
			t.Errorf("normalizePCIID(%q) = %q, want %q", input, got, want)
		}
	}
}
