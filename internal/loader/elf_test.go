package loader

import (
	"debug/elf"
	"testing"

	"github.com/vireolabs/mwemu/internal/emu"
)

func TestPermOfCombinesAllThreeBits(t *testing.T) {
	got := permOf(elf.PF_R | elf.PF_W | elf.PF_X)
	want := emu.PermRead | emu.PermWrite | emu.PermExec
	if got != want {
		t.Fatalf("permOf(RWX) = %v, want %v", got, want)
	}
}

func TestPermOfReadOnly(t *testing.T) {
	if got := permOf(elf.PF_R); got != emu.PermRead {
		t.Fatalf("permOf(R) = %v, want PermRead", got)
	}
}

func TestPermOfNoFlags(t *testing.T) {
	if got := permOf(0); got != 0 {
		t.Fatalf("permOf(0) = %v, want no permissions", got)
	}
}

func TestLeU32AndLeU64(t *testing.T) {
	if got := leU32([]byte{0x78, 0x56, 0x34, 0x12}); got != 0x12345678 {
		t.Fatalf("leU32 = 0x%x, want 0x12345678", got)
	}
	if got := leU64([]byte{1, 0, 0, 0, 0, 0, 0, 0}); got != 1 {
		t.Fatalf("leU64 = %d, want 1", got)
	}
}

func TestWritePtr32vs64(t *testing.T) {
	m := emu.NewAddressSpace()
	m.Map("d", 0x1000, 0x100, emu.PermRW)

	writePtr(m, 0x1000, 0xAABBCCDD, false)
	if got := m.ReadU32(0x1000); got != 0xAABBCCDD {
		t.Fatalf("32-bit writePtr: ReadU32 = 0x%x, want 0xaabbccdd", got)
	}

	writePtr(m, 0x1010, 0x1122334455667788, true)
	if got := m.ReadU64(0x1010); got != 0x1122334455667788 {
		t.Fatalf("64-bit writePtr: ReadU64 = 0x%x, want 0x1122334455667788", got)
	}
}
