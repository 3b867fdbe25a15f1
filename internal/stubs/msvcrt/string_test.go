package msvcrt

import (
	"testing"

	"github.com/vireolabs/mwemu/internal/config"
	"github.com/vireolabs/mwemu/internal/emu"
)

func newTestCore(t *testing.T) (*emu.Core, *emu.Thread) {
	t.Helper()
	c := emu.NewCore(config.Default())
	if _, err := c.Maps.Map("strings", 0x10000, 0x1000, emu.PermRW); err != nil {
		t.Fatal(err)
	}
	th := emu.NewThread(0, false, false)
	return c, th
}

func TestStubStrlen(t *testing.T) {
	c, th := newTestCore(t)
	c.Maps.WriteCString(0x10000, "hello")
	th.Regs.Set64(emu.RCX, 0x10000)

	stubStrlen(th, c)
	if got := th.Regs.Get64(emu.RAX); got != 5 {
		t.Fatalf("strlen = %d, want 5", got)
	}
}

func TestStubStrcmpEqual(t *testing.T) {
	c, th := newTestCore(t)
	c.Maps.WriteCString(0x10000, "abc")
	c.Maps.WriteCString(0x10010, "abc")
	th.Regs.Set64(emu.RCX, 0x10000)
	th.Regs.Set64(emu.RDX, 0x10010)

	stubStrcmp(th, c)
	if got := int32(th.Regs.Get64(emu.RAX)); got != 0 {
		t.Fatalf("strcmp(\"abc\",\"abc\") = %d, want 0", got)
	}
}

func TestStubStricmpCaseInsensitive(t *testing.T) {
	c, th := newTestCore(t)
	c.Maps.WriteCString(0x10000, "ABC")
	c.Maps.WriteCString(0x10010, "abc")
	th.Regs.Set64(emu.RCX, 0x10000)
	th.Regs.Set64(emu.RDX, 0x10010)

	stubStricmp(th, c)
	if got := int32(th.Regs.Get64(emu.RAX)); got != 0 {
		t.Fatalf("stricmp(\"ABC\",\"abc\") = %d, want 0", got)
	}
}

func TestStubStrcpyWritesNulTerminated(t *testing.T) {
	c, th := newTestCore(t)
	c.Maps.WriteCString(0x10010, "copy me")
	th.Regs.Set64(emu.RCX, 0x10000)
	th.Regs.Set64(emu.RDX, 0x10010)

	stubStrcpy(th, c)
	got, err := c.Maps.ReadCString(0x10000)
	if err != nil {
		t.Fatal(err)
	}
	if got != "copy me" {
		t.Fatalf("strcpy result = %q, want %q", got, "copy me")
	}
	if th.Regs.Get64(emu.RAX) != 0x10000 {
		t.Fatal("strcpy must return the destination pointer")
	}
}

func TestStubStrcatAppends(t *testing.T) {
	c, th := newTestCore(t)
	c.Maps.WriteCString(0x10000, "foo")
	c.Maps.WriteCString(0x10010, "bar")
	th.Regs.Set64(emu.RCX, 0x10000)
	th.Regs.Set64(emu.RDX, 0x10010)

	stubStrcat(th, c)
	got, _ := c.Maps.ReadCString(0x10000)
	if got != "foobar" {
		t.Fatalf("strcat result = %q, want %q", got, "foobar")
	}
}

func TestStubWcslenCountsUTF16Units(t *testing.T) {
	c, th := newTestCore(t)
	c.Maps.WriteWString(0x10000, "hi")
	th.Regs.Set64(emu.RCX, 0x10000)

	stubWcslen(th, c)
	if got := th.Regs.Get64(emu.RAX); got != 2 {
		t.Fatalf("wcslen = %d, want 2", got)
	}
}
