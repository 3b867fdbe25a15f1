package loader

import (
	"testing"

	"github.com/vireolabs/mwemu/internal/emu"
)

func TestPESectionPermDefaultsToRead(t *testing.T) {
	if got := peSectionPerm(0); got != emu.PermRead {
		t.Fatalf("peSectionPerm(0) = %v, want PermRead (PE sections with no flags are still readable)", got)
	}
}

func TestPESectionPermCodeSection(t *testing.T) {
	const (
		imageSCNMemExecute = 0x20000000
		imageSCNMemRead    = 0x40000000
	)
	got := peSectionPerm(imageSCNMemExecute | imageSCNMemRead)
	want := emu.PermRead | emu.PermExec
	if got != want {
		t.Fatalf("peSectionPerm(.text flags) = %v, want %v", got, want)
	}
}

func TestNormalizeDLLName(t *testing.T) {
	cases := map[string]string{
		"KERNEL32.dll": "kernel32",
		"msvcrt.DLL":   "msvcrt",
		"ntdll":        "ntdll",
	}
	for in, want := range cases {
		if got := normalizeDLLName(in); got != want {
			t.Fatalf("normalizeDLLName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCStringStopsAtNul(t *testing.T) {
	raw := []byte("VirtualAlloc\x00garbage")
	if got := cString(raw, 0); got != "VirtualAlloc" {
		t.Fatalf("cString = %q, want %q", got, "VirtualAlloc")
	}
}

func TestCStringOutOfRangeIsEmpty(t *testing.T) {
	raw := []byte("abc")
	if got := cString(raw, 10); got != "" {
		t.Fatalf("cString(out of range) = %q, want empty", got)
	}
}
