// Package stubs provides a registry of library-boundary hook
// implementations keyed by imported symbol name. Each per-DLL stub
// package (kernel32, ntdll, msvcrt, ...) uses init() to register its
// hooks against DefaultRegistry; the loader resolves import names to
// addresses and Install binds the two together.
package stubs

import (
	"fmt"
	"sync"

	"github.com/vireolabs/mwemu/internal/emu"
	glog "github.com/vireolabs/mwemu/internal/log"
)

// HookFunc is the signature stub packages implement. Returns true to
// stop emulation (process-exit-style stubs), false to continue.
type HookFunc func(t *emu.Thread, c *emu.Core) bool

// StubDef defines a stub with its symbol name and hook function.
type StubDef struct {
	Name     string   // symbol name, e.g. "kernel32!CreateFileW"
	Aliases  []string // alternate spellings the same hook should answer to
	Hook     HookFunc
	Category string // for logging: "kernel32", "ntdll", "msvcrt", "pthread"
}

// Registry holds all registered stub definitions and, once installed,
// the address each one was bound to. It satisfies emu.StubRegistry.
type Registry struct {
	mu    sync.RWMutex
	stubs map[string]*StubDef    // symbol name -> definition
	addrs map[uint64]emu.StubHook // resolved address -> bound hook

	OnCall func(category, name, detail string)
}

// DefaultRegistry is the global registry used by init() functions in
// the per-library stub packages.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		stubs: make(map[string]*StubDef),
		addrs: make(map[uint64]emu.StubHook),
	}
}

// Register adds a stub definition to the registry. Called from init()
// functions in stub packages.
func (r *Registry) Register(def StubDef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stubs[def.Name] = &def
	for _, alias := range def.Aliases {
		r.stubs[alias] = &def
	}
}

// RegisterFunc is a convenience wrapper for registering a single stub.
func (r *Registry) RegisterFunc(category, name string, hook HookFunc, aliases ...string) {
	r.Register(StubDef{
		Name:     name,
		Aliases:  aliases,
		Hook:     hook,
		Category: category,
	})
}

// Install binds every registered stub whose symbol name appears in
// imports to its resolved address, implementing the loader side of
// spec.md §4.8's library-boundary contract. When InstallFallbacks is
// true, unmatched imports get a stub that zeroes RAX/EAX and returns,
// rather than left to fault on dispatch.
func (r *Registry) Install(imports map[string]uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	installed := 0
	bound := make(map[uint64]bool)

	for name, addr := range imports {
		if addr == 0 {
			continue
		}
		def, ok := r.stubs[name]
		if !ok {
			continue
		}
		if bound[addr] {
			continue
		}
		bound[addr] = true
		r.addrs[addr] = wrapHook(def.Hook)
		installed++
		if glog.L != nil {
			glog.L.StubInstall(def.Category, name, addr, "import")
		}
	}

	if InstallFallbacks {
		for name, addr := range imports {
			if addr == 0 || bound[addr] {
				continue
			}
			bound[addr] = true
			symName := name
			r.addrs[addr] = func(t *emu.Thread, c *emu.Core) bool {
				if glog.L != nil {
					glog.L.StubFallback(symName)
				}
				SetReturn(t, 0)
				return false
			}
			installed++
		}
	}

	return installed
}

// BindOne binds a single already-registered symbol name to addr,
// outside the bulk Install pass. Used by GetProcAddress-style stubs
// that resolve a function dynamically at runtime rather than through
// the loader's import table.
func (r *Registry) BindOne(name string, addr uint64) (emu.StubHook, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.stubs[name]
	if !ok {
		return nil, false
	}
	hook := wrapHook(def.Hook)
	r.addrs[addr] = hook
	return hook, true
}

// Resolve implements emu.StubRegistry.
func (r *Registry) Resolve(addr uint64) (emu.StubHook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hook, ok := r.addrs[addr]
	return hook, ok
}

func wrapHook(fn HookFunc) emu.StubHook {
	return func(t *emu.Thread, c *emu.Core) bool { return fn(t, c) }
}

// Log is the primary method stub hooks call to report their activity:
// it forwards to the trace callback (if any) and to the zap logger.
// rip is the stub's return address (the caller's RIP, already restored
// by dispatchLibrary before the hook ran).
func (r *Registry) Log(rip uint64, category, name, detail string) {
	r.mu.RLock()
	cb := r.OnCall
	r.mu.RUnlock()

	if cb != nil {
		cb(category, name, detail)
	}
	if glog.L != nil {
		glog.L.Trace(rip, category, name, detail)
	}
}

// Count returns the number of distinct registered stub names.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stubs)
}

// List returns the primary name of every registered stub; aliases are
// not listed separately.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.stubs))
	seen := make(map[string]bool)
	for name, def := range r.stubs {
		if seen[def.Name] {
			continue
		}
		seen[def.Name] = true
		names = append(names, def.Name)
	}
	return names
}

// Debug enables verbose logging during installation.
var Debug = false

// InstallFallbacks enables fallback stubs for unstubbed imports. When
// true, all unknown imports get a stub that zeroes RAX/EAX and returns.
var InstallFallbacks = true

// Register adds a stub to the default registry.
func Register(def StubDef) { DefaultRegistry.Register(def) }

// RegisterFunc adds a simple stub to the default registry.
func RegisterFunc(category, name string, hook HookFunc, aliases ...string) {
	DefaultRegistry.RegisterFunc(category, name, hook, aliases...)
}

// Install hooks all stubs in the default registry.
func Install(imports map[string]uint64) int { return DefaultRegistry.Install(imports) }

// FormatHex formats a value as a hex string for stub detail strings.
func FormatHex(v uint64) string {
	if v == 0 {
		return "0"
	}
	return fmt.Sprintf("0x%x", v)
}

// FormatPtr formats a name=value pair.
func FormatPtr(name string, val uint64) string {
	return name + "=" + FormatHex(val)
}

// FormatPtrPair formats two name=value pairs, omitting the second when
// its name is empty.
func FormatPtrPair(name1 string, val1 uint64, name2 string, val2 uint64) string {
	if name2 == "" {
		return FormatPtr(name1, val1)
	}
	return FormatPtr(name1, val1) + " " + FormatPtr(name2, val2)
}
