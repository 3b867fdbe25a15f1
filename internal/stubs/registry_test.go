package stubs

import (
	"testing"

	"github.com/vireolabs/mwemu/internal/emu"
)

func TestInstallBindsRegisteredSymbolsOnly(t *testing.T) {
	r := NewRegistry()
	called := false
	r.RegisterFunc("test", "test!Known", func(t *emu.Thread, c *emu.Core) bool {
		called = true
		return false
	})

	imports := map[string]uint64{
		"test!Known":   0x1000,
		"test!Unknown": 0x2000,
	}

	prevFallback := InstallFallbacks
	InstallFallbacks = false
	defer func() { InstallFallbacks = prevFallback }()

	installed := r.Install(imports)
	if installed != 1 {
		t.Fatalf("Install() = %d, want 1 (fallbacks disabled)", installed)
	}

	hook, ok := r.Resolve(0x1000)
	if !ok {
		t.Fatal("expected the known symbol's address to resolve")
	}
	hook(nil, nil)
	if !called {
		t.Fatal("expected the registered hook to run")
	}

	if _, ok := r.Resolve(0x2000); ok {
		t.Fatal("unregistered symbol must not resolve when fallbacks are disabled")
	}
}

func TestInstallFallbackBindsUnknownImports(t *testing.T) {
	r := NewRegistry()

	prevFallback := InstallFallbacks
	InstallFallbacks = true
	defer func() { InstallFallbacks = prevFallback }()

	installed := r.Install(map[string]uint64{"unknown!Thing": 0x3000})
	if installed != 1 {
		t.Fatalf("Install() = %d, want 1 (fallback stub)", installed)
	}
	if _, ok := r.Resolve(0x3000); !ok {
		t.Fatal("expected a fallback stub bound to the unknown import's address")
	}
}

func TestInstallSkipsZeroAddresses(t *testing.T) {
	r := NewRegistry()
	r.RegisterFunc("test", "test!Foo", func(t *emu.Thread, c *emu.Core) bool { return false })

	prevFallback := InstallFallbacks
	InstallFallbacks = false
	defer func() { InstallFallbacks = prevFallback }()

	installed := r.Install(map[string]uint64{"test!Foo": 0})
	if installed != 0 {
		t.Fatalf("Install() = %d, want 0 for a zero-valued import address", installed)
	}
}

func TestAliasesResolveToSameHook(t *testing.T) {
	r := NewRegistry()
	r.Register(StubDef{
		Name:    "kernel32!ExitProcess",
		Aliases: []string{"kernel32!ExitProcessStub"},
		Hook:    func(t *emu.Thread, c *emu.Core) bool { return true },
	})

	if _, ok := r.BindOne("kernel32!ExitProcessStub", 0x4000); !ok {
		t.Fatal("expected the alias to resolve via BindOne")
	}
	hook, ok := r.Resolve(0x4000)
	if !ok {
		t.Fatal("expected the bound address to resolve")
	}
	if !hook(nil, nil) {
		t.Fatal("expected the aliased hook's behavior to run")
	}
}

func TestCountReflectsNamesAndAliases(t *testing.T) {
	r := NewRegistry()
	r.RegisterFunc("k32", "k32!A", nil, "k32!AAlias")
	if r.Count() != 2 {
		t.Fatalf("Count() = %d, want 2 (name + alias)", r.Count())
	}
}
