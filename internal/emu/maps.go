package emu

import (
	"encoding/binary"
	"fmt"
	"sort"
	"unicode/utf16"
)

func decodeUTF16(units []uint16) string { return string(utf16.Decode(units)) }
func encodeUTF16(s string) []uint16     { return utf16.Encode([]rune(s)) }

// Permission packs the read/write/execute triple of a Region into three
// bits, mirroring the Permission bitflags of the original mem64.rs.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermWrite
	PermExec
)

func (p Permission) Readable() bool  { return p&PermRead != 0 }
func (p Permission) Writable() bool  { return p&PermWrite != 0 }
func (p Permission) Executable() bool { return p&PermExec != 0 }

func (p Permission) String() string {
	r, w, x := byte('-'), byte('-'), byte('-')
	if p.Readable() {
		r = 'r'
	}
	if p.Writable() {
		w = 'w'
	}
	if p.Executable() {
		x = 'x'
	}
	return string([]byte{r, w, x})
}

const (
	PermRWX = PermRead | PermWrite | PermExec
	PermRW  = PermRead | PermWrite
	PermRX  = PermRead | PermExec
	PermR   = PermRead
)

// Region is a named contiguous byte range [Base, Bottom) with a single
// permission triple. It owns its backing bytes. Grounded on the
// original Mem64 type and the teacher's memory-region layout constants
// in internal/emulator/emulator.go.
type Region struct {
	Name   string
	Base   uint64
	Bottom uint64
	Perm   Permission
	Data   []byte
}

func (r *Region) Size() uint64 { return r.Bottom - r.Base }

func (r *Region) Contains(addr uint64) bool {
	return addr >= r.Base && addr < r.Bottom
}

func (r *Region) ContainsRange(addr uint64, size uint64) bool {
	if size == 0 {
		return r.Contains(addr)
	}
	end := addr + size
	return addr >= r.Base && end <= r.Bottom && end > addr
}

func (r *Region) off(addr uint64) uint64 { return addr - r.Base }

// AddressSpace is the ordered collection of regions plus the two
// reserved library-zone gaps from spec.md §3 ("Maps").
type AddressSpace struct {
	regions []*Region

	Libs32Min uint64
	Libs32Max uint64
	Libs64Min uint64
	Libs64Max uint64

	heapNext uint64
	heapMin  uint64
	heapMax  uint64

	onExecWrite func(addr, size uint64)
	onWrite     func(addr uint64, data []byte)
	onRead      func(addr, size uint64)
}

// SetExecWriteHook wires the decode-cache invalidation callback; Core
// calls this once during construction.
func (m *AddressSpace) SetExecWriteHook(fn func(addr, size uint64)) {
	m.onExecWrite = fn
}

// SetWriteHook wires a callback invoked after every guest memory write,
// used by internal/trace to populate the CSV "memory-delta" column
// (spec.md §6) without the address space needing to know trace exists.
func (m *AddressSpace) SetWriteHook(fn func(addr uint64, data []byte)) {
	m.onWrite = fn
}

// SetReadHook wires a callback invoked after every in-bounds guest
// memory read, used by internal/emu's Breakpoints to implement
// memory-read watchpoints (spec.md §3 "Breakpoints") from the same
// choke point requireRead already guards.
func (m *AddressSpace) SetReadHook(fn func(addr, size uint64)) {
	m.onRead = fn
}

// Default layout constants, generalized from the teacher's
// CodeBase/StackBase/HeapBase/LibcBase scheme in internal/emulator/emulator.go.
const (
	DefaultCodeBase32  = 0x00400000
	DefaultCodeBase64  = 0x0000000140000000
	DefaultStackBase32 = 0x0012F000
	DefaultStackBase64 = 0x000000007FFE0000
	DefaultStackSize   = 0x00100000
	DefaultHeapBase32  = 0x00A00000
	DefaultHeapBase64  = 0x0000000000A00000
	DefaultHeapSize    = 0x10000000

	DefaultLibs32Min = 0x76000000
	DefaultLibs32Max = 0x7FFF0000
	DefaultLibs64Min = 0x0000000076000000
	DefaultLibs64Max = 0x00000000F0000000
)

func NewAddressSpace() *AddressSpace {
	return &AddressSpace{
		Libs32Min: DefaultLibs32Min,
		Libs32Max: DefaultLibs32Max,
		Libs64Min: DefaultLibs64Min,
		Libs64Max: DefaultLibs64Max,
		heapMin:   DefaultHeapBase64,
		heapMax:   DefaultHeapBase64 + DefaultHeapSize,
		heapNext:  DefaultHeapBase64,
	}
}

// Map installs a new region. Overlap with an existing region is
// forbidden at creation (spec.md §3).
func (m *AddressSpace) Map(name string, base, size uint64, perm Permission) (*Region, error) {
	bottom := base + size
	for _, r := range m.regions {
		if base < r.Bottom && bottom > r.Base {
			return nil, fmt.Errorf("emu: region %q[0x%x,0x%x) overlaps existing %q[0x%x,0x%x)",
				name, base, bottom, r.Name, r.Base, r.Bottom)
		}
	}
	r := &Region{Name: name, Base: base, Bottom: bottom, Perm: perm, Data: make([]byte, size)}
	m.regions = append(m.regions, r)
	sort.Slice(m.regions, func(i, j int) bool { return m.regions[i].Base < m.regions[j].Base })
	return r, nil
}

// Unmap destroys the region with the given base (Region.dealloc).
func (m *AddressSpace) Unmap(base uint64) bool {
	for i, r := range m.regions {
		if r.Base == base {
			m.regions = append(m.regions[:i], m.regions[i+1:]...)
			return true
		}
	}
	return false
}

// GetByAddr returns the unique region containing addr, or nil.
func (m *AddressSpace) GetByAddr(addr uint64) *Region {
	i := sort.Search(len(m.regions), func(i int) bool { return m.regions[i].Bottom > addr })
	if i < len(m.regions) && m.regions[i].Contains(addr) {
		return m.regions[i]
	}
	return nil
}

func (m *AddressSpace) IsMapped(addr uint64) bool { return m.GetByAddr(addr) != nil }

// Regions exposes the sorted region list (read-only view for loaders,
// trace dumps, and the TUI memory pane).
func (m *AddressSpace) Regions() []*Region { return m.regions }

// Alloc finds the first free interval of sufficient size within the
// heap zone and maps it as an anonymous RW region (spec.md §4.1).
func (m *AddressSpace) Alloc(name string, size uint64) (uint64, error) {
	size = (size + 15) &^ 15
	base := m.heapNext
	for {
		bottom := base + size
		if bottom > m.heapMax {
			return 0, fmt.Errorf("emu: heap exhausted allocating 0x%x bytes", size)
		}
		collide := false
		for _, r := range m.regions {
			if base < r.Bottom && bottom > r.Base {
				base = r.Bottom
				collide = true
				break
			}
		}
		if !collide {
			break
		}
	}
	if _, err := m.Map(name, base, size, PermRW); err != nil {
		return 0, err
	}
	m.heapNext = base + size
	return base, nil
}

// Lib32Alloc / Lib64Alloc restrict allocation to the system-library
// zones, per spec.md §4.1, so user image-base collisions are resolved
// independently of the user layout.
func (m *AddressSpace) Lib32Alloc(name string, size uint64) (uint64, error) {
	return m.allocInZone(name, size, m.Libs32Min, m.Libs32Max)
}

func (m *AddressSpace) Lib64Alloc(name string, size uint64) (uint64, error) {
	return m.allocInZone(name, size, m.Libs64Min, uint64(m.Libs64Max))
}

func (m *AddressSpace) allocInZone(name string, size, zoneMin, zoneMax uint64) (uint64, error) {
	size = (size + 0xFFF) &^ 0xFFF
	base := zoneMin
	for {
		bottom := base + size
		if bottom > zoneMax {
			return 0, fmt.Errorf("emu: library zone exhausted allocating %q (0x%x bytes)", name, size)
		}
		collide := false
		for _, r := range m.regions {
			if base < r.Bottom && bottom > r.Base {
				base = r.Bottom
				collide = true
				break
			}
		}
		if !collide {
			break
		}
	}
	if _, err := m.Map(name, base, size, PermRWX); err != nil {
		return 0, err
	}
	return base, nil
}

// InLibraryZone reports whether addr lies at or above either library
// zone's minimum base (spec.md §6 "Library-zone bases").
func (m *AddressSpace) InLibraryZone(addr uint64) bool {
	return addr >= m.Libs32Min || addr >= m.Libs64Min
}

// --- typed little-endian primitives (spec.md §4.1) ---
//
// Reads from a non-readable region and writes to a non-writable region
// are host programming errors (panics), not guest faults: the core's
// exception machinery is reserved for guest-observable dereference
// faults raised by the operand resolver against unmapped addresses.

func (m *AddressSpace) requireRead(r *Region, addr, size uint64, what string) {
	if r == nil || !r.ContainsRange(addr, size) {
		panic(fmt.Sprintf("emu: host bug: %s read out of range at 0x%x", what, addr))
	}
	if !r.Perm.Readable() {
		panic(fmt.Sprintf("emu: host bug: %s read from non-readable region %q at 0x%x", what, r.Name, addr))
	}
	if m.onRead != nil {
		m.onRead(addr, size)
	}
}

func (m *AddressSpace) requireWrite(r *Region, addr, size uint64, what string) {
	if r == nil || !r.ContainsRange(addr, size) {
		panic(fmt.Sprintf("emu: host bug: %s write out of range at 0x%x", what, addr))
	}
	if !r.Perm.Writable() {
		panic(fmt.Sprintf("emu: host bug: %s write to non-writable region %q at 0x%x", what, r.Name, addr))
	}
}

func (m *AddressSpace) ReadU8(addr uint64) uint8 {
	r := m.GetByAddr(addr)
	m.requireRead(r, addr, 1, "u8")
	return r.Data[r.off(addr)]
}

func (m *AddressSpace) WriteU8(addr uint64, v uint8) {
	r := m.GetByAddr(addr)
	m.requireWrite(r, addr, 1, "u8")
	r.Data[r.off(addr)] = v
	m.invalidateOnWrite(r, addr, 1)
}

func (m *AddressSpace) ReadU16(addr uint64) uint16 {
	r := m.GetByAddr(addr)
	m.requireRead(r, addr, 2, "u16")
	o := r.off(addr)
	return binary.LittleEndian.Uint16(r.Data[o : o+2])
}

func (m *AddressSpace) WriteU16(addr uint64, v uint16) {
	r := m.GetByAddr(addr)
	m.requireWrite(r, addr, 2, "u16")
	o := r.off(addr)
	binary.LittleEndian.PutUint16(r.Data[o:o+2], v)
	m.invalidateOnWrite(r, addr, 2)
}

func (m *AddressSpace) ReadU32(addr uint64) uint32 {
	r := m.GetByAddr(addr)
	m.requireRead(r, addr, 4, "u32")
	o := r.off(addr)
	return binary.LittleEndian.Uint32(r.Data[o : o+4])
}

func (m *AddressSpace) WriteU32(addr uint64, v uint32) {
	r := m.GetByAddr(addr)
	m.requireWrite(r, addr, 4, "u32")
	o := r.off(addr)
	binary.LittleEndian.PutUint32(r.Data[o:o+4], v)
	m.invalidateOnWrite(r, addr, 4)
}

func (m *AddressSpace) ReadU64(addr uint64) uint64 {
	r := m.GetByAddr(addr)
	m.requireRead(r, addr, 8, "u64")
	o := r.off(addr)
	return binary.LittleEndian.Uint64(r.Data[o : o+8])
}

func (m *AddressSpace) WriteU64(addr uint64, v uint64) {
	r := m.GetByAddr(addr)
	m.requireWrite(r, addr, 8, "u64")
	o := r.off(addr)
	binary.LittleEndian.PutUint64(r.Data[o:o+8], v)
	m.invalidateOnWrite(r, addr, 8)
}

// U128 is a 128-bit value stored as two 64-bit halves, little-endian
// (Lo holds bits [63:0], Hi holds bits [127:64]).
type U128 struct {
	Lo, Hi uint64
}

// U256 adds the upper 128 bits introduced by AVX; YMM[127:0] aliases
// the corresponding XMM register (spec.md §3).
type U256 struct {
	Lo, Hi U128
}

func (m *AddressSpace) ReadU128(addr uint64) U128 {
	r := m.GetByAddr(addr)
	m.requireRead(r, addr, 16, "u128")
	o := r.off(addr)
	return U128{
		Lo: binary.LittleEndian.Uint64(r.Data[o : o+8]),
		Hi: binary.LittleEndian.Uint64(r.Data[o+8 : o+16]),
	}
}

func (m *AddressSpace) WriteU128(addr uint64, v U128) {
	r := m.GetByAddr(addr)
	m.requireWrite(r, addr, 16, "u128")
	o := r.off(addr)
	binary.LittleEndian.PutUint64(r.Data[o:o+8], v.Lo)
	binary.LittleEndian.PutUint64(r.Data[o+8:o+16], v.Hi)
	m.invalidateOnWrite(r, addr, 16)
}

func (m *AddressSpace) ReadU256(addr uint64) U256 {
	return U256{Lo: m.ReadU128(addr), Hi: m.ReadU128(addr + 16)}
}

func (m *AddressSpace) WriteU256(addr uint64, v U256) {
	m.WriteU128(addr, v.Lo)
	m.WriteU128(addr+16, v.Hi)
}

func (m *AddressSpace) Read(addr uint64, size uint64) []byte {
	r := m.GetByAddr(addr)
	m.requireRead(r, addr, size, "bulk")
	o := r.off(addr)
	out := make([]byte, size)
	copy(out, r.Data[o:o+size])
	return out
}

func (m *AddressSpace) Write(addr uint64, data []byte) {
	r := m.GetByAddr(addr)
	m.requireWrite(r, addr, uint64(len(data)), "bulk")
	o := r.off(addr)
	copy(r.Data[o:o+uint64(len(data))], data)
	m.invalidateOnWrite(r, addr, uint64(len(data)))
}

const maxStringScan = 1 << 20 // 1 MiB safety cap (spec.md §4.1)

// ReadCString scans for a null terminator up to the safety cap.
func (m *AddressSpace) ReadCString(addr uint64) (string, error) {
	var buf []byte
	for i := uint64(0); i < maxStringScan; i++ {
		b := m.ReadU8(addr + i)
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
	return "", fmt.Errorf("emu: ReadCString: no terminator within %d bytes of 0x%x", maxStringScan, addr)
}

func (m *AddressSpace) WriteCString(addr uint64, s string) {
	m.Write(addr, append([]byte(s), 0))
}

// ReadWString / WriteWString handle the UTF-16LE wide strings Windows
// APIs pass.
func (m *AddressSpace) ReadWString(addr uint64) (string, error) {
	var units []uint16
	for i := uint64(0); i < maxStringScan; i += 2 {
		u := m.ReadU16(addr + i)
		if u == 0 {
			return decodeUTF16(units), nil
		}
		units = append(units, u)
	}
	return "", fmt.Errorf("emu: ReadWString: no terminator within %d bytes of 0x%x", maxStringScan, addr)
}

func (m *AddressSpace) WriteWString(addr uint64, s string) {
	units := encodeUTF16(s)
	for i, u := range units {
		m.WriteU16(addr+uint64(i*2), u)
	}
	m.WriteU16(addr+uint64(len(units)*2), 0)
}

// invalidateOnWrite flushes any decode-cache line intersecting the
// written range when the destination is executable, implementing
// spec.md §9's resolution of the self-modifying-code Open Question:
// invalidation is unconditional, not best-effort. It also fires the
// trace write hook, if one is set, regardless of permissions.
func (m *AddressSpace) invalidateOnWrite(r *Region, addr, size uint64) {
	if m.onWrite != nil && r != nil {
		o := r.off(addr)
		m.onWrite(addr, r.Data[o:o+size])
	}
	if r == nil || !r.Perm.Executable() || m.onExecWrite == nil {
		return
	}
	m.onExecWrite(addr, size)
}

// onExecWrite is wired by Core to DecodeCache.InvalidateRange; kept as
// a callback rather than a direct dependency so AddressSpace stays
// usable standalone in tests (e.g. loader tests) without a full Core.
