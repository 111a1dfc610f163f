// Package jit implements TinyASM, the minimal x86-64 assembler/JIT
// embedded as a user-mode shell feature (spec.md §1, §4.12): a small
// instruction subset (`mov reg,imm64`, `add/sub reg,reg`, `ret`), encoded
// table-driven in the style of gmofishsauce-wut4/asm's InstrDef/lookupInstr
// pattern (mnemonic -> encoding rule), adapted from that 16-bit
// fictional-CPU encoder to a real x86-64 instruction subset since no x86
// encoder exists in the teacher itself.
package jit

import (
	"errors"
	"strconv"
	"strings"
)

var ErrUnknownMnemonic = errors.New("jit: unknown mnemonic")
var ErrUnknownRegister = errors.New("jit: unknown register")
var ErrBadOperandCount = errors.New("jit: wrong number of operands")
var ErrBadImmediate = errors.New("jit: bad immediate")

// registers maps mnemonic register names to the x86 register numbering
// (0=rax, 1=rcx, 2=rdx, 3=rbx, 4=rsp, 5=rbp, 6=rsi, 7=rdi, 8..15=r8..r15),
// the same numbering ModRM/REX.B/REX.R encode against.
var registers = map[string]uint8{
	"rax": 0, "rcx": 1, "rdx": 2, "rbx": 3,
	"rsp": 4, "rbp": 5, "rsi": 6, "rdi": 7,
	"r8": 8, "r9": 9, "r10": 10, "r11": 11,
	"r12": 12, "r13": 13, "r14": 14, "r15": 15,
}

// encoder is one mnemonic's encoding rule, analogous to wut4's InstrDef
// but operating on already-split operand strings instead of a fixed
// bit-field format, since x86-64 encodings vary far more per-instruction
// than the fictional CPU's five uniform formats do.
type encoder func(operands []string) ([]byte, error)

var mnemonics map[string]encoder

func init() {
	mnemonics = map[string]encoder{
		"mov": encodeMovRegImm64,
		"add": encodeAluRegReg(0x01),
		"sub": encodeAluRegReg(0x29),
		"ret": encodeRet,
	}
}

// Assemble encodes a TinyASM source snippet (one instruction per line,
// separated by newlines or ';') into machine code. Pure and
// host-testable: no allocation, mapping, or execution happens here.
func Assemble(src string) ([]byte, error) {
	var out []byte
	for _, line := range splitLines(src) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		enc, err := encodeLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return out, nil
}

func splitLines(src string) []string {
	src = strings.ReplaceAll(src, ";", "\n")
	return strings.Split(src, "\n")
}

func encodeLine(line string) ([]byte, error) {
	fields := strings.SplitN(line, " ", 2)
	mnemonic := strings.ToLower(fields[0])
	enc, ok := mnemonics[mnemonic]
	if !ok {
		return nil, ErrUnknownMnemonic
	}
	var operands []string
	if len(fields) == 2 {
		for _, op := range strings.Split(fields[1], ",") {
			operands = append(operands, strings.TrimSpace(op))
		}
	}
	return enc(operands)
}

func reg(name string) (uint8, error) {
	r, ok := registers[strings.ToLower(name)]
	if !ok {
		return 0, ErrUnknownRegister
	}
	return r, nil
}

// encodeMovRegImm64 encodes `mov reg, imm64` as REX.W + (B8+rd) io — MOV
// r64, imm64.
func encodeMovRegImm64(operands []string) ([]byte, error) {
	if len(operands) != 2 {
		return nil, ErrBadOperandCount
	}
	dst, err := reg(operands[0])
	if err != nil {
		return nil, err
	}
	imm, err := strconv.ParseUint(operands[1], 0, 64)
	if err != nil {
		return nil, ErrBadImmediate
	}

	rex := byte(0x48)
	if dst >= 8 {
		rex |= 0x1 // REX.B extends the opcode-encoded register
	}
	out := []byte{rex, 0xB8 + (dst & 7)}
	for i := 0; i < 8; i++ {
		out = append(out, byte(imm>>(8*i)))
	}
	return out, nil
}

// encodeAluRegReg builds an encoder for `op dst, src` two-register ALU
// forms using opcode /r with REX.W, REX.R (extends src, the ModRM.reg
// field) and REX.B (extends dst, the ModRM.rm field).
func encodeAluRegReg(opcode byte) encoder {
	return func(operands []string) ([]byte, error) {
		if len(operands) != 2 {
			return nil, ErrBadOperandCount
		}
		dst, err := reg(operands[0])
		if err != nil {
			return nil, err
		}
		src, err := reg(operands[1])
		if err != nil {
			return nil, err
		}
		rex := byte(0x48)
		if src >= 8 {
			rex |= 0x4
		}
		if dst >= 8 {
			rex |= 0x1
		}
		modrm := byte(0xC0) | (src&7)<<3 | (dst & 7)
		return []byte{rex, opcode, modrm}, nil
	}
}

func encodeRet(operands []string) ([]byte, error) {
	if len(operands) != 0 {
		return nil, ErrBadOperandCount
	}
	return []byte{0xC3}, nil
}
