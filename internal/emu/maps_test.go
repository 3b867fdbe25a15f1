package emu

import "testing"

func TestMapRejectsOverlap(t *testing.T) {
	m := NewAddressSpace()
	if _, err := m.Map("a", 0x1000, 0x1000, PermRW); err != nil {
		t.Fatalf("first map: %v", err)
	}
	if _, err := m.Map("b", 0x1800, 0x1000, PermRW); err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestReadWriteU32RoundTrip(t *testing.T) {
	m := NewAddressSpace()
	m.Map("r", 0x2000, 0x100, PermRW)
	m.WriteU32(0x2004, 0xCAFEBABE)
	if got := m.ReadU32(0x2004); got != 0xCAFEBABE {
		t.Fatalf("ReadU32 = 0x%x, want 0xcafebabe", got)
	}
}

func TestWriteToNonWritableRegionPanics(t *testing.T) {
	m := NewAddressSpace()
	m.Map("ro", 0x3000, 0x100, PermR)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic writing to a read-only region")
		}
	}()
	m.WriteU8(0x3000, 1)
}

func TestInvalidateOnWriteFiresOnlyForExecutableRegions(t *testing.T) {
	m := NewAddressSpace()
	m.Map("data", 0x4000, 0x100, PermRW)
	m.Map("code", 0x5000, 0x100, PermRWX)

	var invalidated []uint64
	m.SetExecWriteHook(func(addr, size uint64) { invalidated = append(invalidated, addr) })

	m.WriteU8(0x4000, 1)
	if len(invalidated) != 0 {
		t.Fatal("write to non-executable region must not invalidate the decode cache")
	}

	m.WriteU8(0x5000, 1)
	if len(invalidated) != 1 || invalidated[0] != 0x5000 {
		t.Fatalf("expected one invalidation at 0x5000, got %v", invalidated)
	}
}

func TestWriteHookReceivesWrittenBytes(t *testing.T) {
	m := NewAddressSpace()
	m.Map("d", 0x6000, 0x100, PermRW)

	var gotAddr uint64
	var gotData []byte
	m.SetWriteHook(func(addr uint64, data []byte) {
		gotAddr = addr
		gotData = append([]byte(nil), data...)
	})

	m.WriteU16(0x6010, 0xBEEF)
	if gotAddr != 0x6010 {
		t.Fatalf("hook addr = 0x%x, want 0x6010", gotAddr)
	}
	if len(gotData) != 2 || gotData[0] != 0xEF || gotData[1] != 0xBE {
		t.Fatalf("hook data = %x, want little-endian [ef be]", gotData)
	}
}

func TestReadHookFiresOnEachTypedRead(t *testing.T) {
	m := NewAddressSpace()
	m.Map("d", 0x7000, 0x100, PermR)

	var hits int
	m.SetReadHook(func(addr, size uint64) { hits++ })

	m.ReadU8(0x7000)
	m.ReadU64(0x7008)
	if hits != 2 {
		t.Fatalf("expected 2 read-hook fires, got %d", hits)
	}
}

func TestCStringRoundTrip(t *testing.T) {
	m := NewAddressSpace()
	m.Map("d", 0x8000, 0x100, PermRW)
	m.WriteCString(0x8000, "hello")
	s, err := m.ReadCString(0x8000)
	if err != nil {
		t.Fatal(err)
	}
	if s != "hello" {
		t.Fatalf("ReadCString = %q, want %q", s, "hello")
	}
}

func TestWStringRoundTrip(t *testing.T) {
	m := NewAddressSpace()
	m.Map("d", 0x9000, 0x100, PermRW)
	m.WriteWString(0x9000, "hi")
	s, err := m.ReadWString(0x9000)
	if err != nil {
		t.Fatal(err)
	}
	if s != "hi" {
		t.Fatalf("ReadWString = %q, want %q", s, "hi")
	}
}

func TestLib64AllocStaysInLibraryZone(t *testing.T) {
	m := NewAddressSpace()
	addr, err := m.Lib64Alloc("kernel32.dll", 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if addr < m.Libs64Min || addr >= m.Libs64Max {
		t.Fatalf("Lib64Alloc returned 0x%x outside [0x%x,0x%x)", addr, m.Libs64Min, m.Libs64Max)
	}
	if !m.InLibraryZone(addr) {
		t.Fatal("InLibraryZone should report true for an address it just allocated")
	}
}

func TestAllocAvoidsCollision(t *testing.T) {
	m := NewAddressSpace()
	first, err := m.Alloc("a", 0x100)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Alloc("b", 0x100)
	if err != nil {
		t.Fatal(err)
	}
	if second < first+0x100 {
		t.Fatalf("second allocation 0x%x overlaps first [0x%x,0x%x)", second, first, first+0x100)
	}
}
