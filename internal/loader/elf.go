// Package loader maps PE32/PE64/ELF32/ELF64 images into an emu.AddressSpace
// and resolves their imports, fulfilling the obligations of §6: mapped
// regions with correct permissions, an initial RIP, an initial stack,
// and import addresses patched to point at mapped code (here, the
// library zone where per-symbol stub addresses live).
package loader

import (
	"debug/elf"
	"fmt"
	"os"

	"github.com/vireolabs/mwemu/internal/emu"
)

// Image is what a loader hands back to cmd/mwemu: everything Core
// needs to start running the guest.
type Image struct {
	Entry    uint64
	Bits     int // 32 or 64, mirrors emu.Core.Mode
	BaseAddr uint64
	EndAddr  uint64
	Imports  map[string]uint64 // symbol name -> resolved library-zone stub address
}

// ImportResolver finds or creates a stub address for an external symbol
// name, consulting the registry first (a real implementation elsewhere
// resolves to per-DLL stub functions) and falling back to a fresh
// library-zone allocation that traps as unimplemented when called.
type ImportResolver func(name string) (uint64, bool)

// LoadELF maps an ELF32/ELF64 image's PT_LOAD segments into maps and
// resolves its dynamic-symbol imports via resolve. Grounded on the
// teacher's internal/emulator/elf.go PT_LOAD-mapping and relocation
// pass, generalized from ARM64-only relocation types to the x86-64
// R_X86_64_* / x86 R_386_* families and from a single fixed load base
// to the emu.AddressSpace's page-aligned Map API.
func LoadELF(maps *emu.AddressSpace, path string, resolve ImportResolver) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open ELF: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_X86_64 && f.Machine != elf.EM_386 {
		return nil, fmt.Errorf("loader: unsupported ELF machine %v (want EM_X86_64 or EM_386)", f.Machine)
	}
	is64 := f.Machine == elf.EM_X86_64

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read file: %w", err)
	}

	fileBase := uint64(0xFFFFFFFFFFFFFFFF)
	fileEnd := uint64(0)
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Vaddr < fileBase {
			fileBase = prog.Vaddr
		}
		if end := prog.Vaddr + prog.Memsz; end > fileEnd {
			fileEnd = end
		}
	}
	if fileBase == 0xFFFFFFFFFFFFFFFF {
		return nil, fmt.Errorf("loader: no PT_LOAD segments in %s", path)
	}

	var relocOffset uint64
	defaultBase := uint64(emu.DefaultCodeBase32)
	if is64 {
		defaultBase = emu.DefaultCodeBase64
	}
	if fileBase < 0x10000 {
		// position-independent image: relocate away from the null page
		relocOffset = defaultBase - fileBase
	}

	img := &Image{
		Entry:    f.Entry + relocOffset,
		BaseAddr: fileBase + relocOffset,
		EndAddr:  fileEnd + relocOffset,
		Imports:  map[string]uint64{},
	}
	if is64 {
		img.Bits = 64
	} else {
		img.Bits = 32
	}

	for i, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		loadVAddr := prog.Vaddr + relocOffset
		perm := permOf(prog.Flags)

		const pageSize = 0x1000
		alignedAddr := loadVAddr &^ (pageSize - 1)
		alignedEnd := (loadVAddr + prog.Memsz + pageSize - 1) &^ (pageSize - 1)
		if _, err := maps.Map(fmt.Sprintf("elf_seg_%d", i), alignedAddr, alignedEnd-alignedAddr, perm); err != nil {
			return nil, fmt.Errorf("loader: map segment %d: %w", i, err)
		}

		if prog.Filesz > 0 && prog.Off+prog.Filesz <= uint64(len(fileData)) {
			maps.Write(loadVAddr, fileData[prog.Off:prog.Off+prog.Filesz])
		}
		// the rest of the region (.bss) is already zeroed by Map's make([]byte,...).
	}

	syms, _ := f.DynamicSymbols()
	for _, sym := range syms {
		if sym.Value == 0 && sym.Name != "" {
			if addr, ok := resolve(sym.Name); ok {
				img.Imports[sym.Name] = addr
			}
		}
	}

	if err := applyELFRelocations(maps, f, relocOffset, img.Imports, is64); err != nil {
		return nil, fmt.Errorf("loader: relocate: %w", err)
	}

	return img, nil
}

func permOf(flags elf.ProgFlag) emu.Permission {
	var p emu.Permission
	if flags&elf.PF_R != 0 {
		p |= emu.PermRead
	}
	if flags&elf.PF_W != 0 {
		p |= emu.PermWrite
	}
	if flags&elf.PF_X != 0 {
		p |= emu.PermExec
	}
	return p
}

// x86-64 / i386 relocation types this loader understands; the
// remainder of the ELF relocation space (TLS models, copy relocs) is
// out of scope for the guest images this core targets.
const (
	rX8664Relative = 8  // R_X86_64_RELATIVE
	rX8664GlobDat  = 6  // R_X86_64_GLOB_DAT
	rX8664JumpSlot = 7  // R_X86_64_JUMP_SLOT
	r386Relative   = 8  // R_386_RELATIVE
	r386GlobDat    = 6  // R_386_GLOB_DAT
	r386JumpSlot   = 7  // R_386_JUMP_SLOT
)

func applyELFRelocations(maps *emu.AddressSpace, f *elf.File, relocOffset uint64, imports map[string]uint64, is64 bool) error {
	dynSyms, _ := f.DynamicSymbols()

	for _, sec := range f.Sections {
		isRela := sec.Type == elf.SHT_RELA
		isRel := sec.Type == elf.SHT_REL
		if !isRela && !isRel {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			continue
		}
		entrySize := 8
		if isRela {
			entrySize = 12
		}
		if is64 {
			entrySize *= 2
		}

		for off := 0; off+entrySize <= len(data); off += entrySize {
			var rOffset, rInfo uint64
			if is64 {
				rOffset = leU64(data[off:])
				rInfo = leU64(data[off+8:])
			} else {
				rOffset = uint64(leU32(data[off:]))
				rInfo = uint64(leU32(data[off+4:]))
			}
			relType := rInfo & 0xFFFFFFFF
			symIdx := int(rInfo >> 32)
			if !is64 {
				relType = rInfo & 0xFF
				symIdx = int(rInfo >> 8)
			}
			target := rOffset + relocOffset

			relative := relType == rX8664Relative
			globOrJump := relType == rX8664GlobDat || relType == rX8664JumpSlot
			if !is64 {
				relative = relType == r386Relative
				globOrJump = relType == r386GlobDat || relType == r386JumpSlot
			}

			switch {
			case relative:
				writePtr(maps, target, relocOffset, is64)
			case globOrJump:
				idx := symIdx - 1
				if idx < 0 || idx >= len(dynSyms) {
					continue
				}
				sym := dynSyms[idx]
				if sym.Value != 0 {
					writePtr(maps, target, sym.Value+relocOffset, is64)
				} else if addr, ok := imports[sym.Name]; ok {
					writePtr(maps, target, addr, is64)
				}
			}
		}
	}
	return nil
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leU64(b []byte) uint64 {
	return uint64(leU32(b)) | uint64(leU32(b[4:]))<<32
}

func writePtr(maps *emu.AddressSpace, addr, value uint64, is64 bool) {
	if !maps.IsMapped(addr) {
		return
	}
	if is64 {
		maps.WriteU64(addr, value)
	} else {
		maps.WriteU32(addr, uint32(value))
	}
}
