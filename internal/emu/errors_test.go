package emu

import (
	"errors"
	"testing"
)

func TestFaultErrorMessage(t *testing.T) {
	f := &Fault{Kind: QWordDereferencing, Addr: 0xDEAD0000}
	want := "QWordDereferencing at 0xdead0000"
	if got := f.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestFaultKindStringUnknown(t *testing.T) {
	if got := FaultKind(99).String(); got != "UnknownFault" {
		t.Fatalf("String() = %q, want UnknownFault", got)
	}
}

func TestErrNoHandlerUnwrapsToFault(t *testing.T) {
	f := &Fault{Kind: BadAddressDereferencing, Addr: 0x1}
	err := &ErrNoHandler{Fault: f}

	var target *Fault
	if !errors.As(err, &target) {
		t.Fatal("errors.As must unwrap ErrNoHandler to its *Fault")
	}
	if target != f {
		t.Fatal("unwrapped fault must be the same instance")
	}
}

func TestErrUnimplementedMessage(t *testing.T) {
	e := &ErrUnimplemented{Mnemonic: "VPSHUFB", RIP: 0x401000}
	if e.Error() == "" {
		t.Fatal("expected a non-empty error message")
	}
}
