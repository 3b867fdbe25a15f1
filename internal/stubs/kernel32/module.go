package kernel32

import (
	"strings"
	"sync"

	"github.com/vireolabs/mwemu/internal/emu"
	"github.com/vireolabs/mwemu/internal/stubs"
)

func init() {
	stubs.RegisterFunc("kernel32", "kernel32!LoadLibraryA", stubLoadLibraryA)
	stubs.RegisterFunc("kernel32", "kernel32!LoadLibraryW", stubLoadLibraryW)
	stubs.RegisterFunc("kernel32", "kernel32!GetProcAddress", stubGetProcAddress)
	stubs.RegisterFunc("kernel32", "kernel32!GetModuleHandleA", stubGetModuleHandleA)
	stubs.RegisterFunc("kernel32", "kernel32!GetModuleHandleW", stubGetModuleHandleW)
	stubs.RegisterFunc("kernel32", "kernel32!FreeLibrary", stubFreeLibrary)
}

var (
	moduleMu      sync.Mutex
	moduleHandles = map[string]uint64{}
	nextModule    = emu.DefaultLibs64Min
)

// handleFor returns a stable, nonzero synthetic module handle for name,
// allocating a fresh one in the library zone on first sight. This core
// never actually maps the named DLL's code; the handle exists only so
// GetProcAddress has something to key its resolution off.
func handleFor(name string) uint64 {
	key := strings.ToLower(strings.TrimSuffix(name, ".dll"))
	moduleMu.Lock()
	defer moduleMu.Unlock()
	if h, ok := moduleHandles[key]; ok {
		return h
	}
	h := nextModule
	nextModule += 0x10000
	moduleHandles[key] = h
	return h
}

func moduleNameForHandle(h uint64) string {
	moduleMu.Lock()
	defer moduleMu.Unlock()
	for name, addr := range moduleHandles {
		if addr == h {
			return name
		}
	}
	return ""
}

func stubLoadLibraryA(t *emu.Thread, c *emu.Core) bool {
	name, _ := c.Maps.ReadCString(stubs.Arg(t, c, 0))
	h := handleFor(name)
	stubs.DefaultRegistry.Log(t.Regs.RIP, "kernel32", "LoadLibraryA", stubs.FormatPtr("name", 0)+" "+name)
	stubs.SetReturn(t, h)
	return false
}

func stubLoadLibraryW(t *emu.Thread, c *emu.Core) bool {
	name, _ := c.Maps.ReadWString(stubs.Arg(t, c, 0))
	stubs.SetReturn(t, handleFor(name))
	return false
}

// stubGetProcAddress resolves "<module>!<proc>" against the stub
// registry: on a hit it allocates a fresh library-zone trampoline
// address, binds the stub there via Registry.BindOne, and hands that
// address back so a later CALL through it dispatches the hook exactly
// like a statically imported one (spec.md §4.8). On a miss it returns
// a fresh unbound trampoline that will fault as unimplemented if
// called, rather than silently returning null for every unknown
// export.
func stubGetProcAddress(t *emu.Thread, c *emu.Core) bool {
	moduleHandle := stubs.Arg(t, c, 0)
	procName, _ := c.Maps.ReadCString(stubs.Arg(t, c, 1))
	module := moduleNameForHandle(moduleHandle)
	if module == "" {
		module = "kernel32"
	}
	symbol := module + "!" + procName

	addr, err := c.Maps.Lib64Alloc(symbol, 0x10)
	if err != nil {
		stubs.SetReturn(t, 0)
		return false
	}
	if _, ok := stubs.DefaultRegistry.BindOne(symbol, addr); ok {
		stubs.DefaultRegistry.Log(t.Regs.RIP, "kernel32", "GetProcAddress", symbol+" -> bound")
	} else {
		stubs.DefaultRegistry.Log(t.Regs.RIP, "kernel32", "GetProcAddress", symbol+" -> unresolved")
	}
	stubs.SetReturn(t, addr)
	return false
}

func stubGetModuleHandleA(t *emu.Thread, c *emu.Core) bool {
	namePtr := stubs.Arg(t, c, 0)
	if namePtr == 0 {
		stubs.SetReturn(t, emu.DefaultCodeBase64)
		return false
	}
	name, _ := c.Maps.ReadCString(namePtr)
	stubs.SetReturn(t, handleFor(name))
	return false
}

func stubGetModuleHandleW(t *emu.Thread, c *emu.Core) bool {
	namePtr := stubs.Arg(t, c, 0)
	if namePtr == 0 {
		stubs.SetReturn(t, emu.DefaultCodeBase64)
		return false
	}
	name, _ := c.Maps.ReadWString(namePtr)
	stubs.SetReturn(t, handleFor(name))
	return false
}

func stubFreeLibrary(t *emu.Thread, c *emu.Core) bool {
	stubs.SetReturn(t, 1)
	return false
}
