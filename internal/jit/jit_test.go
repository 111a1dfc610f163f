package jit

import (
	"bytes"
	"testing"
)

func TestAssembleMovRegImm64(t *testing.T) {
	code, err := Assemble("mov rax, 42")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := []byte{0x48, 0xB8, 42, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(code, want) {
		t.Fatalf("code = % x, want % x", code, want)
	}
}

func TestAssembleMovExtendedRegisterSetsREXB(t *testing.T) {
	code, err := Assemble("mov r9, 1")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if code[0] != 0x49 { // 0x48 | REX.B
		t.Fatalf("rex byte = %#x, want 0x49", code[0])
	}
	if code[1] != 0xB8+1 {
		t.Fatalf("opcode = %#x, want 0xB9 (B8 + r9&7)", code[1])
	}
}

func TestAssembleAddRegReg(t *testing.T) {
	code, err := Assemble("add rax, rbx")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := []byte{0x48, 0x01, 0xC0 | 3<<3 | 0} // modrm: reg=rbx(3), rm=rax(0)
	if !bytes.Equal(code, want) {
		t.Fatalf("code = % x, want % x", code, want)
	}
}

func TestAssembleSubRegReg(t *testing.T) {
	code, err := Assemble("sub rdx, rcx")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if code[1] != 0x29 {
		t.Fatalf("opcode = %#x, want 0x29", code[1])
	}
}

func TestAssembleRet(t *testing.T) {
	code, err := Assemble("ret")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !bytes.Equal(code, []byte{0xC3}) {
		t.Fatalf("code = % x, want C3", code)
	}
}

func TestAssembleMultipleInstructionsSemicolonSeparated(t *testing.T) {
	code, err := Assemble("mov rax, 1; mov rbx, 2; add rax, rbx; ret")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	wantLen := 10 + 10 + 3 + 1
	if len(code) != wantLen {
		t.Fatalf("len(code) = %d, want %d", len(code), wantLen)
	}
	if code[len(code)-1] != 0xC3 {
		t.Fatalf("last byte = %#x, want C3 (ret)", code[len(code)-1])
	}
}

func TestAssembleUnknownMnemonic(t *testing.T) {
	if _, err := Assemble("frob rax, 1"); err != ErrUnknownMnemonic {
		t.Fatalf("err = %v, want ErrUnknownMnemonic", err)
	}
}

func TestAssembleUnknownRegister(t *testing.T) {
	if _, err := Assemble("mov zzz, 1"); err != ErrUnknownRegister {
		t.Fatalf("err = %v, want ErrUnknownRegister", err)
	}
}

func TestAssembleWrongOperandCount(t *testing.T) {
	if _, err := Assemble("mov rax"); err != ErrBadOperandCount {
		t.Fatalf("err = %v, want ErrBadOperandCount", err)
	}
	if _, err := Assemble("ret rax"); err != ErrBadOperandCount {
		t.Fatalf("err = %v, want ErrBadOperandCount", err)
	}
}

func TestAssembleBadImmediate(t *testing.T) {
	if _, err := Assemble("mov rax, notanumber"); err != ErrBadImmediate {
		t.Fatalf("err = %v, want ErrBadImmediate", err)
	}
}
