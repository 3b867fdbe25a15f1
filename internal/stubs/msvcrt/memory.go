// Package msvcrt stubs the C runtime surface malware samples import
// alongside kernel32/ntdll: heap allocation and the string/memory
// family. Adapted from the teacher's internal/stubs/libc.go
// (malloc/calloc/realloc/free/memcpy/memset/strlen/strcmp/strcpy
// argument-marshalling style), retargeted from ARM64 X(n) registers to
// the Win64 calling convention via stubs.Arg.
package msvcrt

import (
	"github.com/vireolabs/mwemu/internal/emu"
	"github.com/vireolabs/mwemu/internal/stubs"
)

func init() {
	stubs.RegisterFunc("msvcrt", "msvcrt!malloc", stubMalloc)
	stubs.RegisterFunc("msvcrt", "msvcrt!calloc", stubCalloc)
	stubs.RegisterFunc("msvcrt", "msvcrt!realloc", stubRealloc)
	stubs.RegisterFunc("msvcrt", "msvcrt!free", stubFree)
	stubs.RegisterFunc("msvcrt", "msvcrt!memcpy", stubMemcpy, "msvcrt!memmove")
	stubs.RegisterFunc("msvcrt", "msvcrt!memset", stubMemset)
	stubs.RegisterFunc("msvcrt", "msvcrt!memcmp", stubMemcmp)

	// operator new/delete, mangled per the Itanium C++ ABI MSVC's own
	// toolchain does not use, but some cross-compiled guests do.
	stubs.RegisterFunc("msvcrt", "msvcrt!_Znwm", stubMalloc, "msvcrt!_Znam")
	stubs.RegisterFunc("msvcrt", "msvcrt!_ZdlPv", stubFree, "msvcrt!_ZdaPv")
}

func stubMalloc(t *emu.Thread, c *emu.Core) bool {
	size := stubs.Arg(t, c, 0)
	if size == 0 {
		size = 16
	}
	size = (size + 15) &^ 15
	addr, err := c.Maps.Alloc("malloc", size)
	if err != nil {
		stubs.SetReturn(t, 0)
		return false
	}
	stubs.DefaultRegistry.Log(t.Regs.RIP, "msvcrt", "malloc", stubs.FormatPtrPair("size", size, "->", addr))
	stubs.SetReturn(t, addr)
	return false
}

func stubCalloc(t *emu.Thread, c *emu.Core) bool {
	n := stubs.Arg(t, c, 0)
	elemSize := stubs.Arg(t, c, 1)
	size := n * elemSize
	if size == 0 {
		size = 16
	}
	size = (size + 15) &^ 15
	addr, err := c.Maps.Alloc("calloc", size)
	if err != nil {
		stubs.SetReturn(t, 0)
		return false
	}
	c.Maps.Write(addr, make([]byte, size))
	stubs.SetReturn(t, addr)
	return false
}

// stubRealloc always allocates fresh and copies min(old-guess,new)
// bytes forward; this core's AddressSpace does not track allocation
// sizes, so "old size" is approximated as the new size, matching the
// teacher's libc.go realloc which makes the identical simplification
// for its own size-tracking-free allocator.
func stubRealloc(t *emu.Thread, c *emu.Core) bool {
	oldPtr := stubs.Arg(t, c, 0)
	newSize := stubs.Arg(t, c, 1)
	if newSize == 0 {
		stubs.SetReturn(t, 0)
		return false
	}
	newSize = (newSize + 15) &^ 15
	addr, err := c.Maps.Alloc("realloc", newSize)
	if err != nil {
		stubs.SetReturn(t, 0)
		return false
	}
	if oldPtr != 0 && c.Maps.IsMapped(oldPtr) {
		c.Maps.Write(addr, c.Maps.Read(oldPtr, newSize))
	}
	stubs.SetReturn(t, addr)
	return false
}

func stubFree(t *emu.Thread, c *emu.Core) bool {
	return false
}

func stubMemcpy(t *emu.Thread, c *emu.Core) bool {
	dst := stubs.Arg(t, c, 0)
	src := stubs.Arg(t, c, 1)
	n := stubs.Arg(t, c, 2)
	if n > 0 {
		c.Maps.Write(dst, c.Maps.Read(src, n))
	}
	stubs.SetReturn(t, dst)
	return false
}

func stubMemset(t *emu.Thread, c *emu.Core) bool {
	dst := stubs.Arg(t, c, 0)
	val := byte(stubs.Arg(t, c, 1))
	n := stubs.Arg(t, c, 2)
	if n > 0 {
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = val
		}
		c.Maps.Write(dst, buf)
	}
	stubs.SetReturn(t, dst)
	return false
}

func stubMemcmp(t *emu.Thread, c *emu.Core) bool {
	a := stubs.Arg(t, c, 0)
	b := stubs.Arg(t, c, 1)
	n := stubs.Arg(t, c, 2)
	ab := c.Maps.Read(a, n)
	bb := c.Maps.Read(b, n)
	result := 0
	for i := uint64(0); i < n; i++ {
		if ab[i] != bb[i] {
			result = int(ab[i]) - int(bb[i])
			break
		}
	}
	stubs.SetReturn(t, uint64(int64(result)))
	return false
}
