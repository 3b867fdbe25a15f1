package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vireolabs/mwemu/internal/emu"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pred.js")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEvalTruthyExpressionStops(t *testing.T) {
	path := writeScript(t, "rax == 0x42")
	pred, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	th := emu.NewThread(0, false, false)
	th.Regs.Set64(emu.RAX, 0x42)

	if !pred.Eval(th, "rip", 0x1000) {
		t.Fatal("expected the predicate to evaluate truthy and request a stop")
	}
}

func TestEvalFalsyExpressionContinues(t *testing.T) {
	path := writeScript(t, "rax == 0x99")
	pred, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	th := emu.NewThread(0, false, false)
	th.Regs.Set64(emu.RAX, 0x42)

	if pred.Eval(th, "rip", 0x1000) {
		t.Fatal("expected the predicate to evaluate falsy and continue")
	}
}

func TestEvalExposesFlagsAndReason(t *testing.T) {
	path := writeScript(t, `zf && reason == "mem-write" && addr == 8192`)
	pred, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	th := emu.NewThread(0, false, false)
	th.Flags.ZF = true

	if !pred.Eval(th, "mem-write", 0x2000) {
		t.Fatal("expected predicate referencing flags/reason/addr to evaluate truthy")
	}
}

func TestLoadRejectsUncompilableScript(t *testing.T) {
	path := writeScript(t, "this is not valid javascript (")
	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject a script that fails to compile")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/predicate.js"); err == nil {
		t.Fatal("expected an error loading a nonexistent script file")
	}
}
