package encoder

import (
	"testing"

	"github.com/lookbusy1344/gba-assembler/parser"
)

func TestRotatedImmediate(t *testing.T) {
	tests := []struct {
		value uint32
		want  uint32
		ok    bool
	}{
		{0, 0, true},
		{0xFF, 0xFF, true},
		{0x100, 0xC01, true},        // 0x01 ror 24, smallest rotation
		{0x04000000, 0x301, true},   // 0x01 ror 6
		{0x03000000, 0x403, true},   // 0x03 ror 8
		{0xFF000000, 0x4FF, true},   // 0xFF ror 8
		{0x101, 0, false},
		{0x12345678, 0, false},
	}
	for _, tt := range tests {
		got, ok := RotatedImmediate(tt.value)
		if ok != tt.ok {
			t.Errorf("RotatedImmediate(%#x): expected ok=%v", tt.value, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("RotatedImmediate(%#x): expected %#x, got %#x", tt.value, tt.want, got)
		}
	}
}

func TestRotatedImmediate_RoundTrip(t *testing.T) {
	// every encodable value must decode back to itself
	for _, value := range []uint32{0, 1, 0xFF, 0x3F0, 0xC0000034, 0x00AB0000} {
		enc, ok := RotatedImmediate(value)
		if !ok {
			t.Fatalf("RotatedImmediate(%#x) unexpectedly failed", value)
		}
		imm := enc & 0xFF
		rot := ((enc >> 8) & 0xF) * 2
		decoded := (imm >> rot) | (imm << ((32 - rot) % 32))
		if decoded != value {
			t.Errorf("%#x encoded to %#x which decodes to %#x", value, enc, decoded)
		}
	}
}

func TestSplitMnemonic(t *testing.T) {
	pos := parser.Position{Filename: "t.gvasm", Line: 1, Column: 1}
	tests := []struct {
		raw      string
		thumb    bool
		base     string
		cond     uint32
		hasCond  bool
		setFlags bool
		ok       bool
	}{
		{"mov", false, "mov", 0, false, false, true},
		{"movs", false, "mov", 0, false, true, true},
		{"moveq", false, "mov", CondEQ, true, false, true},
		{"movseq", false, "mov", CondEQ, true, true, true},
		{"mov.eq", false, "mov", CondEQ, true, false, true},
		{"mov.eq.s", false, "mov", CondEQ, true, true, true},
		{"ldr.s", false, "ldr", 0, false, true, true},
		{"bls", false, "b", CondLS, true, false, true},
		{"bl", false, "bl", 0, false, false, true},
		{"blo", false, "b", CondCC, true, false, true},
		{"bhs", false, "b", CondCS, true, false, true},
		{"adcs", false, "adc", 0, false, true, true},
		{"subs", false, "sub", 0, false, true, true},
		{"bx", false, "bx", 0, false, false, true},
		{"frobnicate", false, "", 0, false, false, false},
		{"bne", true, "b", CondNE, true, false, true},
		{"ldrsh", true, "ldrsh", 0, false, false, true},
	}
	for _, tt := range tests {
		m, ok := SplitMnemonic(tt.raw, tt.thumb, pos)
		if ok != tt.ok {
			t.Errorf("%q: expected ok=%v", tt.raw, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if m.Base != tt.base || m.HasCond != tt.hasCond || m.SetFlags != tt.setFlags {
			t.Errorf("%q: got base=%q hasCond=%v setFlags=%v", tt.raw, m.Base, m.HasCond, m.SetFlags)
		}
		if tt.hasCond && m.Cond != tt.cond {
			t.Errorf("%q: expected cond %d, got %d", tt.raw, tt.cond, m.Cond)
		}
	}
}

func TestARMBranchOffset(t *testing.T) {
	pos := parser.Position{}
	tests := []struct {
		target, site uint32
		want         uint32
	}{
		{0x08000000, 0x08000000, 0xFFFFFE}, // branch to self
		{0x08000008, 0x08000000, 0},
		{0x0800000C, 0x08000000, 1},
		{0x08000000, 0x08000008, 0xFFFFFC},
	}
	for _, tt := range tests {
		got, err := armBranchOffset(tt.target, tt.site, pos)
		if err != nil {
			t.Errorf("armBranchOffset(%#x, %#x): %v", tt.target, tt.site, err)
			continue
		}
		if got != tt.want {
			t.Errorf("armBranchOffset(%#x, %#x): expected %#x, got %#x", tt.target, tt.site, tt.want, got)
		}
	}

	if _, err := armBranchOffset(0x08000002, 0x08000000, pos); err == nil {
		t.Error("expected an error for an unaligned branch target")
	}
}

func TestThumbBLPair(t *testing.T) {
	hi, lo, err := ThumbBLPair(0x08000100, 0x08000000, parser.Position{})
	if err != nil {
		t.Fatalf("ThumbBLPair: %v", err)
	}
	// offset = 0x100 - 4 = 0xFC halfwords 0x7E
	if hi != 0xF000 {
		t.Errorf("expected hi 0xF000, got %#x", hi)
	}
	if lo != 0xF87E {
		t.Errorf("expected lo 0xF87E, got %#x", lo)
	}
}

func TestThumbBranchOffset(t *testing.T) {
	// conditional branch range is ±256 bytes from site+4
	if _, err := thumbBranchOffset(0x08000300, 0x08000000, 8, parser.Position{}); err == nil {
		t.Error("expected out-of-range error for a distant conditional branch")
	}
	got, err := thumbBranchOffset(0x08000008, 0x08000000, 8, parser.Position{})
	if err != nil {
		t.Fatalf("thumbBranchOffset: %v", err)
	}
	if got != 2 {
		t.Errorf("expected offset 2, got %d", got)
	}
}
