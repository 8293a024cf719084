package asm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lookbusy1344/gba-assembler/parser"
)

func newTestAssembler(files map[string][]byte, say SayFunc) *Assembler {
	if files == nil {
		files = map[string][]byte{}
	}
	return New(&MemFileSystem{Files: files}, say)
}

func assemble(t *testing.T, src string) []byte {
	t.Helper()
	a := newTestAssembler(nil, nil)
	res, err := a.AssembleSource("test.gvasm", src, nil)
	if err != nil {
		t.Fatalf("assembly failed:\n%v", err)
	}
	return res.Sections[0]
}

func assembleErr(t *testing.T, src string) *parser.ErrorList {
	t.Helper()
	a := newTestAssembler(nil, nil)
	_, err := a.AssembleSource("test.gvasm", src, nil)
	if err == nil {
		t.Fatalf("expected assembly to fail")
	}
	return a.Errors()
}

func expectBytes(t *testing.T, src string, want []byte) {
	t.Helper()
	got := assemble(t, src)
	if !bytes.Equal(got, want) {
		t.Errorf("source:\n%s\nexpected % X\ngot      % X", src, want, got)
	}
}

func TestData_Bytes(t *testing.T) {
	expectBytes(t, ".u8 0, 1, 2, 3", []byte{0x00, 0x01, 0x02, 0x03})
	expectBytes(t, ".u16 0x1234", []byte{0x34, 0x12})
	expectBytes(t, ".u32 0x08000004", []byte{0x04, 0x00, 0x00, 0x08})
	expectBytes(t, ".b16 0x1234", []byte{0x12, 0x34})
	expectBytes(t, ".b32 0x12345678", []byte{0x12, 0x34, 0x56, 0x78})
	expectBytes(t, ".i8 -1", []byte{0xFF})
	expectBytes(t, `.u8 "AB"`, []byte{0x41, 0x42})
	expectBytes(t, ".u8fill 3, 7", []byte{7, 7, 7})
	expectBytes(t, ".u16fill 2", []byte{0, 0, 0, 0})
}

func TestData_Align(t *testing.T) {
	expectBytes(t, ".u8 7\n.align 4", []byte{0x07, 0x00, 0x00, 0x00})
	expectBytes(t, ".u8 1\n.align 4, 0xFF\n.u8 2", []byte{0x01, 0xFF, 0xFF, 0xFF, 0x02})
}

func TestData_AlignmentError(t *testing.T) {
	errs := assembleErr(t, ".u8 1\n.u16 2")
	if errs.Errors[0].Kind != parser.ErrorAlignment {
		t.Errorf("expected an alignment error, got %v", errs.Errors[0])
	}
}

func TestARM_MovImmediate(t *testing.T) {
	expectBytes(t, ".arm\nmov r0, #0x04000000", []byte{0x01, 0x03, 0xA0, 0xE3})
}

func TestARM_LoadConstConverted(t *testing.T) {
	// 8-bit-rotated values collapse to mov, no pool needed
	expectBytes(t, ".arm\nldr r2, =0x03000000", []byte{0x03, 0x24, 0xA0, 0xE3})
}

func TestARM_LoadConstPool(t *testing.T) {
	expectBytes(t, ".arm\nldr r2, =0x12345678\n.pool",
		[]byte{0x04, 0x20, 0x1F, 0xE5, 0x78, 0x56, 0x34, 0x12})
}

func TestThumb_LoadConstPool(t *testing.T) {
	expectBytes(t, ".thumb\nldr r4, =0x12345678\n.pool",
		[]byte{0x01, 0x4C, 0x00, 0x00, 0x78, 0x56, 0x34, 0x12})
}

func TestPool_RoundTrip(t *testing.T) {
	// ldr rN, =K for encodable K assembles identically to mov rN, #K
	viaLdr := assemble(t, ".arm\nldr r0, =0x1200")
	viaMov := assemble(t, ".arm\nmov r0, #0x1200")
	if !bytes.Equal(viaLdr, viaMov) {
		t.Errorf("ldr= and mov disagree: % X vs % X", viaLdr, viaMov)
	}
}

func TestARM_ConditionSuffixEquivalence(t *testing.T) {
	sources := []struct{ suffix, dotted string }{
		{"moveq r0, #1", "mov.eq r0, #1"},
		{"addne r1, r2, #4", "add.ne r1, r2, #4"},
		{"bls 0x08000000", "b.ls 0x08000000"},
		{"ldrcc r0, [r1]", "ldr.cc r0, [r1]"},
	}
	for _, tt := range sources {
		a := assemble(t, ".arm\n"+tt.suffix)
		b := assemble(t, ".arm\n"+tt.dotted)
		if !bytes.Equal(a, b) {
			t.Errorf("%q and %q produce different bytes: % X vs % X", tt.suffix, tt.dotted, a, b)
		}
	}
}

func TestARM_Branches(t *testing.T) {
	expectBytes(t, ".arm\nmain: b main", []byte{0xFE, 0xFF, 0xFF, 0xEA})
	// forward branch resolves through a fixup
	expectBytes(t, ".arm\nb done\nnop\ndone:",
		[]byte{0x00, 0x00, 0x00, 0xEA, 0x00, 0x00, 0xA0, 0xE1})
}

func TestARM_Instructions(t *testing.T) {
	tests := []struct {
		src  string
		want []byte
	}{
		{"add r1, r2, r3", []byte{0x03, 0x10, 0x82, 0xE0}},
		{"mov r0, r1, lsl #2", []byte{0x01, 0x01, 0xA0, 0xE1}},
		{"cmp r0, #5", []byte{0x05, 0x00, 0x50, 0xE3}},
		{"ldr r0, [r1]", []byte{0x00, 0x00, 0x91, 0xE5}},
		{"ldr r0, [r1, #4]", []byte{0x04, 0x00, 0x91, 0xE5}},
		{"ldr r0, [r1, -r2]", []byte{0x02, 0x00, 0x11, 0xE7}},
		{"str r0, [r1], #4", []byte{0x04, 0x00, 0x81, 0xE4}},
		{"ldrh r0, [r1, #2]", []byte{0xB2, 0x00, 0xD1, 0xE1}},
		{"push {r4, lr}", []byte{0x10, 0x40, 0x2D, 0xE9}},
		{"pop {r4, pc}", []byte{0x10, 0x80, 0xBD, 0xE8}},
		{"ldmia r0!, {r1-r3}", []byte{0x0E, 0x00, 0xB0, 0xE8}},
		{"mul r0, r1, r2", []byte{0x91, 0x02, 0x00, 0xE0}},
		{"mla r0, r1, r2, r3", []byte{0x91, 0x32, 0x20, 0xE0}},
		{"bx lr", []byte{0x1E, 0xFF, 0x2F, 0xE1}},
		{"swi 0x50000", []byte{0x00, 0x00, 0x05, 0xEF}},
		{"nop", []byte{0x00, 0x00, 0xA0, 0xE1}},
		{"mvn r0, #0", []byte{0x00, 0x00, 0xE0, 0xE3}},
		{"swp r0, r1, [r2]", []byte{0x91, 0x00, 0x02, 0xE1}},
		{"mrs r0, cpsr", []byte{0x00, 0x00, 0x0F, 0xE1}},
		{"msr cpsr, r0", []byte{0x00, 0xF0, 0x29, 0xE1}},
	}
	for _, tt := range tests {
		expectBytes(t, ".arm\n"+tt.src, tt.want)
	}
}

func TestThumb_Instructions(t *testing.T) {
	tests := []struct {
		src  string
		want []byte
	}{
		{"mov r0, #5", []byte{0x05, 0x20}},
		{"add r0, r1, r2", []byte{0x88, 0x18}},
		{"add r0, r1, #3", []byte{0xC8, 0x1C}},
		{"sub r0, #1", []byte{0x01, 0x38}},
		{"lsl r0, r1, #4", []byte{0x08, 0x01}},
		{"cmp r0, #0", []byte{0x00, 0x28}},
		{"and r0, r1", []byte{0x08, 0x40}},
		{"mul r2, r3", []byte{0x5A, 0x43}},
		{"bx lr", []byte{0x70, 0x47}},
		{"ldr r0, [r1, #4]", []byte{0x48, 0x68}},
		{"str r0, [r1, r2]", []byte{0x88, 0x50}},
		{"ldrsh r0, [r1, r2]", []byte{0x88, 0x5E}},
		{"push {r4, lr}", []byte{0x10, 0xB5}},
		{"pop {r4, pc}", []byte{0x10, 0xBD}},
		{"add sp, #8", []byte{0x02, 0xB0}},
		{"sub sp, #8", []byte{0x82, 0xB0}},
		{"swi 5", []byte{0x05, 0xDF}},
		{"nop", []byte{0xC0, 0x46}},
		{"mov r8, r0", []byte{0x80, 0x46}},
		{"ldmia r0!, {r1, r2}", []byte{0x06, 0xC8}},
	}
	for _, tt := range tests {
		expectBytes(t, ".thumb\n"+tt.src, tt.want)
	}
}

func TestThumb_Branch(t *testing.T) {
	expectBytes(t, ".thumb\nmain: b main", []byte{0xFE, 0xE7})
	expectBytes(t, ".thumb\nmain: bne main", []byte{0xFE, 0xD1})
	// bl forward, resolved through a fixup
	got := assemble(t, ".thumb\nbl target\nnop\ntarget:")
	want := []byte{0x00, 0xF0, 0x01, 0xF8, 0xC0, 0x46}
	if !bytes.Equal(got, want) {
		t.Errorf("bl: expected % X, got % X", want, got)
	}
}

func TestStruct_Layout(t *testing.T) {
	src := `.struct S
.i16 a[5]
.align 4
.i32 b
.end
.u8 S.b._bytes`
	expectBytes(t, src, []byte{0x04})

	src2 := `.struct S
.i16 a[5]
.align 4
.i32 b
.end
.u8 S.a._length, S.a._bytes, S._bytes - 12`
	expectBytes(t, src2, []byte{5, 10, 4})
}

func TestStruct_AbsoluteAddresses(t *testing.T) {
	src := `.struct Regs = 0x04000000
.u16 dispcnt
.u16 dispstat
.end
.u32 Regs.dispstat`
	expectBytes(t, src, []byte{0x02, 0x00, 0x00, 0x04})
}

func TestStruct_MisalignedMember(t *testing.T) {
	errs := assembleErr(t, ".struct S\n.i8 a\n.i16 b\n.end")
	if len(errs.Errors) == 0 || !strings.Contains(errs.Errors[0].Message, "aligned") {
		t.Errorf("expected a misalignment error, got %v", errs.Errors)
	}
}

func TestStruct_ReservedName(t *testing.T) {
	errs := assembleErr(t, ".struct S\n.i8 _hidden\n.end\n.u8 1")
	if len(errs.Errors) == 0 || !strings.Contains(errs.Errors[0].Message, "reserved") {
		t.Errorf("expected a reserved-name error, got %v", errs.Errors)
	}
}

func TestStruct_TypedAccess(t *testing.T) {
	src := `.struct Pos = 0
.i16 x
.i16 y
.end
.arm
ldrx r0, [r1, #Pos.y]`
	expectBytes(t, src, []byte{0xF2, 0x00, 0xD1, 0xE1})
}

func TestThumb_SignedTypedImmediateFails(t *testing.T) {
	src := `.struct S = 0
.i8 val
.end
.thumb
ldrx r0, [r1] (S.val)`
	errs := assembleErr(t, src)
	found := false
	for _, e := range errs.Errors {
		if strings.Contains(e.Message, "Cannot convert to signed load with immediate") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the signed-load error, got %v", errs.Errors)
	}
}

func TestHeader(t *testing.T) {
	src := `.i32 0
.logo
.title "TEST"
.u8fill 17
.crc`
	got := assemble(t, src)
	if len(got) != 0xBE {
		t.Fatalf("expected 0xBE header bytes, got %d", len(got))
	}
	if !bytes.Equal(got[4:4+156], NintendoLogo()) {
		t.Error("logo bytes are wrong")
	}
	if string(got[0xA0:0xA4]) != "TEST" {
		t.Errorf("title bytes wrong: % X", got[0xA0:0xAC])
	}
	if got[0xBD] != 0xA7 {
		t.Errorf("expected checksum 0xA7, got %#x", got[0xBD])
	}
	// the complement must match the boot ROM's formula
	want, ok := HeaderComplement(got)
	if !ok || got[0xBD] != want {
		t.Errorf("checksum does not satisfy the header formula")
	}
}

func TestTitle_Overflow(t *testing.T) {
	errs := assembleErr(t, `.title "THIRTEEN CHAR"`)
	if errs.Errors[0].Kind != parser.ErrorTitleOverflow {
		t.Errorf("expected a title overflow error, got %v", errs.Errors[0])
	}
}

func TestConditional_Assembly(t *testing.T) {
	expectBytes(t, ".if 1\n.u8 1\n.else\n.u8 2\n.endif", []byte{1})
	expectBytes(t, ".if 0\n.u8 1\n.elseif 1\n.u8 2\n.else\n.u8 3\n.endif", []byte{2})
	expectBytes(t, ".if 0\n.u8 1\n.elseif 0\n.u8 2\n.else\n.u8 3\n.endif", []byte{3})
	// nesting in a skipped branch
	expectBytes(t, ".if 0\n.if 1\n.u8 1\n.endif\n.else\n.u8 9\n.endif", []byte{9})
}

func TestConditional_SkippedLineLabels(t *testing.T) {
	// a skipped line-label exists but has no address; not referencing it is fine
	expectBytes(t, ".if 0\n@L1: .u8 1\n.endif\n.u8 2", []byte{2})

	// referencing one fails at end of pass
	errs := assembleErr(t, ".if 0\n@L1: .u8 1\n.endif\n.u32 @L1")
	if len(errs.Errors) == 0 {
		t.Error("expected an unknown-symbol error")
	}
}

func TestDef_Constants(t *testing.T) {
	expectBytes(t, ".def FOO = 5\n.u8 FOO", []byte{5})
	expectBytes(t, ".def twice(x) = x * 2\n.def FOO = 5\n.u8 twice(FOO)", []byte{10})
	// constants may reference labels defined later
	expectBytes(t, ".def HERE = mark + 1\n.u32 HERE\nmark:",
		[]byte{0x05, 0x00, 0x00, 0x08})
}

func TestDef_DuplicateFails(t *testing.T) {
	errs := assembleErr(t, ".def A = 1\n.def A = 2\n.u8 A")
	if errs.Errors[0].Kind != parser.ErrorDuplicateSymbol {
		t.Errorf("expected duplicate symbol error, got %v", errs.Errors[0])
	}
}

func TestScopes_BeginEnd(t *testing.T) {
	src := `.begin ns
.def V = 7
.end
.u8 ns.V`
	expectBytes(t, src, []byte{7})

	// inner scopes see outer names; inner names vanish at .end
	errs := assembleErr(t, ".begin\n.def V = 1\n.end\n.u8 V")
	if len(errs.Errors) == 0 {
		t.Error("expected inner constant to be invisible after .end")
	}
}

func TestScopes_DeferredReferencesSurviveBlockExit(t *testing.T) {
	// a forward branch inside .begin resolves even though the fixup is
	// applied after the scope closed
	src := `.arm
.begin
b fwd
fwd:
.end`
	expectBytes(t, src, []byte{0xFF, 0xFF, 0xFF, 0xEA})

	src2 := `.arm
.begin
ldr r0, =fwd
fwd:
.end
.pool`
	expectBytes(t, src2, []byte{0x04, 0x00, 0x1F, 0xE5, 0x04, 0x00, 0x00, 0x08})
}

func TestLabels_ForwardData(t *testing.T) {
	expectBytes(t, ".i32 later\nlater:", []byte{0x04, 0x00, 0x00, 0x08})
}

func TestLabels_Duplicate(t *testing.T) {
	errs := assembleErr(t, "x:\nx:\n.u8 1")
	if errs.Errors[0].Kind != parser.ErrorDuplicateSymbol {
		t.Errorf("expected duplicate symbol error, got %v", errs.Errors[0])
	}
}

func TestBase_Directive(t *testing.T) {
	expectBytes(t, ".base 0x02000000\nstart:\n.i32 start", []byte{0x00, 0x00, 0x00, 0x02})

	errs := assembleErr(t, ".u8 1\n.base 0x02000000\n.u8 2")
	if len(errs.Errors) == 0 || !strings.Contains(errs.Errors[0].Message, ".base") {
		t.Errorf("expected .base placement error, got %v", errs.Errors)
	}
}

func TestRegs_Rebinding(t *testing.T) {
	expectBytes(t, ".regs a-c, x\n.arm\nmov a, x", []byte{0x03, 0x00, 0xA0, 0xE1})

	// listing mode goes through say
	var lines []string
	a := newTestAssembler(nil, func(s string) { lines = append(lines, s) })
	if _, err := a.AssembleSource("t.gvasm", ".regs\n.u8 1", nil); err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "sp=r13") {
		t.Errorf("expected an alias listing, got %v", lines)
	}

	errs := assembleErr(t, ".regs a0-a12, b\n.u8 1")
	if len(errs.Errors) == 0 {
		t.Error("expected an error rebinding reserved indices")
	}
}

func TestRegs_Scoped(t *testing.T) {
	src := `.begin
.regs a-c, x
.arm
mov a, x
.end
.arm
mov r0, r3`
	got := assemble(t, src)
	if !bytes.Equal(got[:4], got[4:]) {
		t.Errorf("scoped alias should encode the same bytes: % X", got)
	}
}

func TestInclude_And_Embed(t *testing.T) {
	files := map[string][]byte{
		"lib.gvasm": []byte(".u8 9"),
		"data.bin":  {1, 2, 3},
	}
	a := newTestAssembler(files, nil)
	res, err := a.AssembleSource("test.gvasm", ".include \"lib.gvasm\"\n.embed \"data.bin\"", nil)
	if err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if !bytes.Equal(res.Sections[0], []byte{9, 1, 2, 3}) {
		t.Errorf("expected 09 01 02 03, got % X", res.Sections[0])
	}
}

func TestImport_Namespace(t *testing.T) {
	files := map[string][]byte{
		"defs.gvasm": []byte(".def WIDTH = 240"),
	}
	a := newTestAssembler(files, nil)
	res, err := a.AssembleSource("test.gvasm", ".import \"defs.gvasm\" gfx\n.u16 gfx.WIDTH", nil)
	if err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if !bytes.Equal(res.Sections[0], []byte{240, 0}) {
		t.Errorf("expected F0 00, got % X", res.Sections[0])
	}
}

func TestInclude_Missing(t *testing.T) {
	errs := assembleErr(t, ".include \"nope.gvasm\"")
	if errs.Errors[0].Kind != parser.ErrorInclude {
		t.Errorf("expected include error, got %v", errs.Errors[0])
	}
}

func TestPrintf(t *testing.T) {
	var lines []string
	a := newTestAssembler(nil, func(s string) { lines = append(lines, s) })
	src := `.printf "x=%d hex=%x", 42, 255
.u8 1`
	if _, err := a.AssembleSource("t.gvasm", src, nil); err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if len(lines) != 1 || lines[0] != "x=42 hex=ff" {
		t.Errorf("unexpected printf output: %v", lines)
	}
}

func TestPrintf_MismatchWarns(t *testing.T) {
	a := newTestAssembler(nil, nil)
	if _, err := a.AssembleSource("t.gvasm", ".printf \"%d %d\", 1\n.u8 1", nil); err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if len(a.Errors().Warnings) == 0 {
		t.Error("expected a printf warning")
	}
}

func TestErrorDirective(t *testing.T) {
	errs := assembleErr(t, `.error "boom"`)
	if errs.Errors[0].Kind != parser.ErrorScript || errs.Errors[0].Message != "boom" {
		t.Errorf("expected boom, got %v", errs.Errors[0])
	}
}

func TestDefines_Predefined(t *testing.T) {
	a := newTestAssembler(nil, nil)
	res, err := a.AssembleSource("t.gvasm", ".u8 DEBUG", []Define{{Key: "DEBUG", Value: "3"}})
	if err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if !bytes.Equal(res.Sections[0], []byte{3}) {
		t.Errorf("expected 03, got % X", res.Sections[0])
	}
}

func TestDeterminism(t *testing.T) {
	src := `.arm
main:
ldr r0, =0x12345678
ldr r1, =table
b main
.pool
table:
.u32 1, 2, 3`
	first := assemble(t, src)
	second := assemble(t, src)
	if !bytes.Equal(first, second) {
		t.Error("two runs produced different bytes")
	}
}

func TestScript_PutLoop(t *testing.T) {
	src := `.script
for var i: range 5
  put '.i8 0, 1, 2, 3'
end
.end`
	want := bytes.Repeat([]byte{0, 1, 2, 3}, 5)
	expectBytes(t, src, want)
}

func TestScript_DirectBytes(t *testing.T) {
	src := `.script
i8 1, 2
i16 0x1234
.end`
	expectBytes(t, src, []byte{1, 2, 0x34, 0x12})
}

func TestScript_ExportLookup(t *testing.T) {
	src := `.script
export five = 5
.end
.u8 five`
	expectBytes(t, src, []byte{5})
}

func TestScript_NamespaceExport(t *testing.T) {
	src := `.script gfx
export width = 240
.end
.u16 gfx.width`
	expectBytes(t, src, []byte{240, 0})
}

func TestScript_ExportedListFlattens(t *testing.T) {
	src := `.script
export pal = {1, 2, 3}
.end
.u8 pal`
	expectBytes(t, src, []byte{1, 2, 3})
}

func TestScript_LookupRoundTrip(t *testing.T) {
	// a value exported by one script and looked up by another compares equal
	src := `.script
export data = {1, 'two', {3, 4}}
.end
.script
var got = lookup('data')
if got == {1, 'two', {3, 4}}
  put '.u8 1'
else
  put '.u8 0'
end
.end`
	expectBytes(t, src, []byte{1})
}

func TestScript_ErrorIsFatal(t *testing.T) {
	errs := assembleErr(t, ".script\nerror 'nope'\n.end")
	if errs.Errors[0].Kind != parser.ErrorScript {
		t.Errorf("expected a script error, got %v", errs.Errors[0])
	}
}

func TestScript_SayOutput(t *testing.T) {
	var lines []string
	a := newTestAssembler(nil, func(s string) { lines = append(lines, s) })
	if _, err := a.AssembleSource("t.gvasm", ".script\nsay 'hello', 42\n.end\n.u8 1", nil); err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if len(lines) != 1 || lines[0] != "hello 42" {
		t.Errorf("unexpected say output: %v", lines)
	}
}

func TestResult_Metadata(t *testing.T) {
	a := newTestAssembler(nil, nil)
	res, err := a.AssembleSource("t.gvasm", ".thumb\nnop", nil)
	if err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if res.ARM {
		t.Error("expected thumb entry mode")
	}
	if res.Base != DefaultBase {
		t.Errorf("expected default base, got %#x", res.Base)
	}
	if len(res.Debug) == 0 {
		t.Error("expected debug line info")
	}
}

func TestErrors_Format(t *testing.T) {
	errs := assembleErr(t, "\n.u8 novalue")
	msg := errs.Errors[0].Error()
	if !strings.HasPrefix(msg, "test.gvasm:2:") {
		t.Errorf("error should carry file:line:col, got %q", msg)
	}
}
