package msvcrt

import (
	"strings"
	"unicode/utf16"

	"github.com/vireolabs/mwemu/internal/emu"
	"github.com/vireolabs/mwemu/internal/stubs"
)

func init() {
	stubs.RegisterFunc("msvcrt", "msvcrt!strlen", stubStrlen)
	stubs.RegisterFunc("msvcrt", "msvcrt!strcmp", stubStrcmp)
	stubs.RegisterFunc("msvcrt", "msvcrt!strncmp", stubStrncmp)
	stubs.RegisterFunc("msvcrt", "msvcrt!stricmp", stubStricmp, "msvcrt!_stricmp")
	stubs.RegisterFunc("msvcrt", "msvcrt!strcpy", stubStrcpy)
	stubs.RegisterFunc("msvcrt", "msvcrt!strncpy", stubStrncpy)
	stubs.RegisterFunc("msvcrt", "msvcrt!strcat", stubStrcat)
	stubs.RegisterFunc("msvcrt", "msvcrt!wcslen", stubWcslen)
}

func stubStrlen(t *emu.Thread, c *emu.Core) bool {
	s, _ := c.Maps.ReadCString(stubs.Arg(t, c, 0))
	stubs.SetReturn(t, uint64(len(s)))
	return false
}

func stubWcslen(t *emu.Thread, c *emu.Core) bool {
	s, _ := c.Maps.ReadWString(stubs.Arg(t, c, 0))
	stubs.SetReturn(t, uint64(len(utf16.Encode([]rune(s)))))
	return false
}

func stubStrcmp(t *emu.Thread, c *emu.Core) bool {
	a, _ := c.Maps.ReadCString(stubs.Arg(t, c, 0))
	b, _ := c.Maps.ReadCString(stubs.Arg(t, c, 1))
	stubs.SetReturn(t, uint64(int64(strings.Compare(a, b))))
	return false
}

func stubStricmp(t *emu.Thread, c *emu.Core) bool {
	a, _ := c.Maps.ReadCString(stubs.Arg(t, c, 0))
	b, _ := c.Maps.ReadCString(stubs.Arg(t, c, 1))
	stubs.SetReturn(t, uint64(int64(strings.Compare(strings.ToLower(a), strings.ToLower(b)))))
	return false
}

func stubStrncmp(t *emu.Thread, c *emu.Core) bool {
	a, _ := c.Maps.ReadCString(stubs.Arg(t, c, 0))
	b, _ := c.Maps.ReadCString(stubs.Arg(t, c, 1))
	n := stubs.Arg(t, c, 2)
	if uint64(len(a)) > n {
		a = a[:n]
	}
	if uint64(len(b)) > n {
		b = b[:n]
	}
	stubs.SetReturn(t, uint64(int64(strings.Compare(a, b))))
	return false
}

func stubStrcpy(t *emu.Thread, c *emu.Core) bool {
	dst := stubs.Arg(t, c, 0)
	src, _ := c.Maps.ReadCString(stubs.Arg(t, c, 1))
	c.Maps.WriteCString(dst, src)
	stubs.SetReturn(t, dst)
	return false
}

func stubStrncpy(t *emu.Thread, c *emu.Core) bool {
	dst := stubs.Arg(t, c, 0)
	src, _ := c.Maps.ReadCString(stubs.Arg(t, c, 1))
	n := stubs.Arg(t, c, 2)
	if uint64(len(src)) > n {
		src = src[:n]
	}
	c.Maps.Write(dst, []byte(src))
	stubs.SetReturn(t, dst)
	return false
}

func stubStrcat(t *emu.Thread, c *emu.Core) bool {
	dst := stubs.Arg(t, c, 0)
	dstStr, _ := c.Maps.ReadCString(dst)
	src, _ := c.Maps.ReadCString(stubs.Arg(t, c, 1))
	c.Maps.WriteCString(dst, dstStr+src)
	stubs.SetReturn(t, dst)
	return false
}
