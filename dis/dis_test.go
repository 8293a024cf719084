package dis

import (
	"strings"
	"testing"
)

func TestARM_Decode(t *testing.T) {
	tests := []struct {
		word uint32
		addr uint32
		want string
	}{
		{0xE3A00301, 0x08000000, "mov r0, #0x4000000"},
		{0xE3A02403, 0x08000000, "mov r2, #0x3000000"},
		{0xEAFFFFFE, 0x08000000, "b 0x08000000"},
		{0xEB000000, 0x08000000, "bl 0x08000008"},
		{0xE12FFF1E, 0x08000000, "bx lr"},
		{0xE5910004, 0x08000000, "ldr r0, [r1, #4]"},
		{0xE51F2004, 0x08000000, "ldr r2, [pc, #-4]"},
		{0xE4810004, 0x08000000, "str r0, [r1], #4"},
		{0xE1D100B2, 0x08000000, "ldrh r0, [r1, #2]"},
		{0xE0821003, 0x08000000, "add r1, r2, r3"},
		{0xE1A00101, 0x08000000, "mov r0, r1, lsl #2"},
		{0xE3500005, 0x08000000, "cmp r0, #0x5"},
		{0xE92D4010, 0x08000000, "stmdb sp!, {r4, lr}"},
		{0xE8BD8010, 0x08000000, "ldmia sp!, {r4, pc}"},
		{0xE0000291, 0x08000000, "mul r0, r1, r2"},
		{0xEF050000, 0x08000000, "swi 0x50000"},
		{0x03A00001, 0x08000000, "mov.eq r0, #0x1"},
	}
	for _, tt := range tests {
		got := ARM(tt.word, tt.addr)
		if got != tt.want {
			t.Errorf("ARM(%#08x): expected %q, got %q", tt.word, tt.want, got)
		}
	}
}

func TestARM_UnknownIsData(t *testing.T) {
	got := ARM(0xEC000000, 0x08000000)
	if !strings.HasPrefix(got, ".i32") {
		t.Errorf("expected raw data rendering, got %q", got)
	}
}

func TestThumb_Decode(t *testing.T) {
	tests := []struct {
		half uint16
		next uint16
		addr uint32
		want string
		size int
	}{
		{0x2005, 0, 0x08000000, "mov r0, #5", 2},
		{0x4C01, 0, 0x08000000, "ldr r4, [pc, #4]", 2},
		{0x4770, 0, 0x08000000, "bx lr", 2},
		{0xE7FE, 0, 0x08000000, "b 0x08000000", 2},
		{0xD1FE, 0, 0x08000000, "b.ne 0x08000000", 2},
		{0xB510, 0, 0x08000000, "push {r4, lr}", 2},
		{0xBD10, 0, 0x08000000, "pop {r4, pc}", 2},
		{0x1888, 0, 0x08000000, "add r0, r1, r2", 2},
		{0x6848, 0, 0x08000000, "ldr r0, [r1, #4]", 2},
		{0xDF05, 0, 0x08000000, "swi 0x5", 2},
		{0xF000, 0xF800, 0x08000000, "bl 0x08000004", 4},
		{0x4680, 0, 0x08000000, "mov r8, r0", 2},
		{0xC806, 0, 0x08000000, "ldmia r0!, {r1, r2}", 2},
	}
	for _, tt := range tests {
		got, size := Thumb(tt.half, tt.next, tt.addr)
		if got != tt.want || size != tt.size {
			t.Errorf("Thumb(%#04x): expected %q/%d, got %q/%d", tt.half, tt.want, tt.size, got, size)
		}
	}
}

func TestListing(t *testing.T) {
	image := []byte{0x01, 0x03, 0xA0, 0xE3} // mov r0, #0x4000000
	lines := Listing(image, 0x08000000, false)
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "08000000:") || !strings.Contains(lines[0], "mov r0") {
		t.Errorf("unexpected listing line: %q", lines[0])
	}
}

func TestHexDump(t *testing.T) {
	image := []byte("ABCDEFGHIJKLMNOPQ")
	lines := HexDump(image, 0x08000000)
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "41 42 43") || !strings.Contains(lines[0], "ABCDEFGHIJKLMNOP") {
		t.Errorf("unexpected dump line: %q", lines[0])
	}
}
