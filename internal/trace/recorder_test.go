package trace

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/vireolabs/mwemu/internal/emu"
)

func TestRecorderWritesHeader(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewRecorder(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "index,rip,bytes,disassembly,register-delta,memory-delta,comments") {
		t.Fatalf("unexpected header: %q", buf.String())
	}
}

func TestRecorderFirstRowDumpsAllRegisters(t *testing.T) {
	var buf bytes.Buffer
	rec, err := NewRecorder(&buf)
	if err != nil {
		t.Fatal(err)
	}

	var regs emu.Regs
	regs.Set64(emu.RAX, 0x42)
	if err := rec.Record(&regs, &regs, 0x1000, []byte{0x90}, "nop", ""); err != nil {
		t.Fatal(err)
	}
	rec.Flush()

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	if !strings.Contains(rows[1][4], "rax=0x42") {
		t.Fatalf("expected full register dump on index 0, got %q", rows[1][4])
	}
}

func TestRecorderSubsequentRowsOnlyShowDelta(t *testing.T) {
	var buf bytes.Buffer
	rec, _ := NewRecorder(&buf)

	var pre, post emu.Regs
	pre.Set64(emu.RAX, 1)
	post = pre
	rec.Record(&pre, &pre, 0x1000, nil, "nop", "")

	post.Set64(emu.RBX, 2)
	rec.Record(&pre, &post, 0x1001, nil, "mov rbx, 2", "")
	rec.Flush()

	rows, _ := csv.NewReader(&buf).ReadAll()
	if !strings.Contains(rows[2][4], "rbx=0x2") {
		t.Fatalf("expected only rbx in the delta row, got %q", rows[2][4])
	}
	if strings.Contains(rows[2][4], "rax=") {
		t.Fatalf("unchanged rax must not appear in the delta row, got %q", rows[2][4])
	}
}

func TestRecorderDrainsMemoryWritesIntoNextRow(t *testing.T) {
	var buf bytes.Buffer
	rec, _ := NewRecorder(&buf)

	maps := emu.NewAddressSpace()
	maps.Map("d", 0x2000, 0x100, emu.PermRW)
	rec.AttachMemoryLog(maps)

	maps.WriteU8(0x2000, 0xFF)

	var regs emu.Regs
	rec.Record(&regs, &regs, 0x1000, nil, "mov [0x2000], al", "")
	rec.Flush()

	rows, _ := csv.NewReader(&buf).ReadAll()
	if !strings.Contains(rows[1][5], "[0x2000]=ff") {
		t.Fatalf("expected memory-delta column to report the write, got %q", rows[1][5])
	}
}
