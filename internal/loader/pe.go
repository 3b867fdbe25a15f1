package loader

import (
	"debug/pe"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/vireolabs/mwemu/internal/emu"
)

// LoadPE maps a PE32/PE64 image's sections into maps and performs IAT
// binding: for each import descriptor, walk its thunk array and patch
// the FirstThunk slot with the address resolve returns for "dll!name".
// Grounded on original_source/.../pe/pe64.rs's iat_binding/
// iat_binding_original (OriginalFirstThunk supplies the hint/name,
// FirstThunk is the slot patched; an ordinal import is resolved under
// the synthetic name "dll!ordinal<N>" rather than silently skipped)
// and on stdlib debug/pe for header/section parsing, matching
// DESIGN.md's stdlib-for-binary-parsing precedent.
func LoadPE(maps *emu.AddressSpace, path string, resolve ImportResolver) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read file: %w", err)
	}
	f, err := pe.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open PE: %w", err)
	}
	defer f.Close()

	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		return loadPE(maps, raw, f, uint64(oh.ImageBase), oh.AddressOfEntryPoint,
			oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_IMPORT], 64, resolve)
	case *pe.OptionalHeader32:
		return loadPE(maps, raw, f, uint64(oh.ImageBase), oh.AddressOfEntryPoint,
			oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_IMPORT], 32, resolve)
	default:
		return nil, fmt.Errorf("loader: %s has no recognized optional header", path)
	}
}

func loadPE(maps *emu.AddressSpace, raw []byte, f *pe.File, imageBase uint64, entryRVA uint32, importDD pe.DataDirectory, bits int, resolve ImportResolver) (*Image, error) {
	img := &Image{
		Entry:    imageBase + uint64(entryRVA),
		Bits:     bits,
		BaseAddr: imageBase,
		Imports:  map[string]uint64{},
	}

	for i, s := range f.Sections {
		perm := peSectionPerm(s.Characteristics)
		base := imageBase + uint64(s.VirtualAddress)
		size := uint64(s.VirtualSize)
		if size == 0 {
			size = uint64(s.Size)
		}
		size = (size + 0xFFF) &^ 0xFFF
		if size == 0 {
			continue
		}
		if _, err := maps.Map(fmt.Sprintf("pe_sect_%d_%s", i, s.Name), base, size, perm); err != nil {
			return nil, fmt.Errorf("loader: map section %q: %w", s.Name, err)
		}
		data, err := s.Data()
		if err == nil && len(data) > 0 {
			maps.Write(base, data)
		}
		if end := base + size; end > img.EndAddr {
			img.EndAddr = end
		}
	}

	if importDD.VirtualAddress == 0 {
		return img, nil
	}
	if err := bindIAT(maps, raw, f, imageBase, importDD, bits, resolve, img.Imports); err != nil {
		return nil, err
	}
	return img, nil
}

func peSectionPerm(characteristics uint32) emu.Permission {
	const (
		imageSCNMemExecute = 0x20000000
		imageSCNMemRead    = 0x40000000
		imageSCNMemWrite   = 0x80000000
	)
	var p emu.Permission
	if characteristics&imageSCNMemRead != 0 {
		p |= emu.PermRead
	}
	if characteristics&imageSCNMemWrite != 0 {
		p |= emu.PermWrite
	}
	if characteristics&imageSCNMemExecute != 0 {
		p |= emu.PermExec
	}
	if p == 0 {
		p = emu.PermRead
	}
	return p
}

// rvaToOffset finds the file offset backing a virtual address, needed
// because the import directory's thunk arrays are read from the raw
// file image rather than through the emu memory (which may not yet
// contain unmapped padding bytes).
func rvaToOffset(f *pe.File, rva uint32) (int, bool) {
	for _, s := range f.Sections {
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+s.VirtualSize {
			return int(s.Offset + (rva - s.VirtualAddress)), true
		}
	}
	return 0, false
}

type importDescriptor struct {
	OriginalFirstThunk uint32
	Name               uint32
	FirstThunk         uint32
}

func bindIAT(maps *emu.AddressSpace, raw []byte, f *pe.File, imageBase uint64, importDD pe.DataDirectory, bits int, resolve ImportResolver, imports map[string]uint64) error {
	off, ok := rvaToOffset(f, importDD.VirtualAddress)
	if !ok {
		return fmt.Errorf("loader: import directory RVA 0x%x has no backing section", importDD.VirtualAddress)
	}

	const descSize = 20
	for off+descSize <= len(raw) {
		var d importDescriptor
		d.OriginalFirstThunk = binary.LittleEndian.Uint32(raw[off:])
		d.Name = binary.LittleEndian.Uint32(raw[off+12:])
		d.FirstThunk = binary.LittleEndian.Uint32(raw[off+16:])
		off += descSize
		if d.OriginalFirstThunk == 0 && d.FirstThunk == 0 {
			break
		}

		nameOff, ok := rvaToOffset(f, d.Name)
		dll := ""
		if ok {
			dll = normalizeDLLName(cString(raw, nameOff))
		}

		nameThunkRVA := d.OriginalFirstThunk
		if nameThunkRVA == 0 {
			nameThunkRVA = d.FirstThunk
		}
		if err := bindThunkArray(maps, raw, f, imageBase, nameThunkRVA, d.FirstThunk, bits, dll, resolve, imports); err != nil {
			return err
		}
	}
	return nil
}

func bindThunkArray(maps *emu.AddressSpace, raw []byte, f *pe.File, imageBase uint64, nameThunkRVA, addrThunkRVA uint32, bits int, dll string, resolve ImportResolver, imports map[string]uint64) error {
	entrySize := 4
	ordinalBit := uint64(0x80000000)
	if bits == 64 {
		entrySize = 8
		ordinalBit = 0x8000000000000000
	}

	nameOff, ok := rvaToOffset(f, nameThunkRVA)
	if !ok {
		return nil
	}
	addrRVA := addrThunkRVA

	for {
		if nameOff+entrySize > len(raw) {
			break
		}
		var entry uint64
		if bits == 64 {
			entry = binary.LittleEndian.Uint64(raw[nameOff:])
		} else {
			entry = uint64(binary.LittleEndian.Uint32(raw[nameOff:]))
		}
		if entry == 0 {
			break
		}

		var symbol string
		if entry&ordinalBit != 0 {
			symbol = fmt.Sprintf("%s!ordinal%d", dll, entry&0xFFFF)
		} else {
			hintNameRVA := uint32(entry)
			if hOff, ok := rvaToOffset(f, hintNameRVA); ok {
				symbol = dll + "!" + cString(raw, hOff+2)
			}
		}

		if symbol != "" {
			addr, ok := resolve(symbol)
			if ok {
				imports[symbol] = addr
				slotAddr := imageBase + uint64(addrRVA)
				if maps.IsMapped(slotAddr) {
					if bits == 64 {
						maps.WriteU64(slotAddr, addr)
					} else {
						maps.WriteU32(slotAddr, uint32(addr))
					}
				}
			}
		}

		nameOff += entrySize
		addrRVA += uint32(entrySize)
	}
	return nil
}

// normalizeDLLName turns "KERNEL32.dll" into "kernel32" so import
// symbol keys ("kernel32!VirtualAlloc") match the lowercase,
// extension-free names internal/stubs registers its hooks under.
func normalizeDLLName(name string) string {
	name = strings.ToLower(name)
	name = strings.TrimSuffix(name, ".dll")
	return name
}

func cString(raw []byte, off int) string {
	if off < 0 || off >= len(raw) {
		return ""
	}
	end := off
	for end < len(raw) && raw[end] != 0 {
		end++
	}
	return strings.Clone(string(raw[off:end]))
}
