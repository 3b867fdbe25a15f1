// Package allstubs imports every per-library stub package so their
// init() functions register against stubs.DefaultRegistry. Import this
// package (blank) from cmd/mwemu to activate the full stub surface
// without cmd/mwemu needing to know the individual library packages.
package allstubs

import (
	_ "github.com/vireolabs/mwemu/internal/stubs/kernel32"
	_ "github.com/vireolabs/mwemu/internal/stubs/msvcrt"
	_ "github.com/vireolabs/mwemu/internal/stubs/ntdll"
)
