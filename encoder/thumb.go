package encoder

import (
	"github.com/lookbusy1344/gba-assembler/parser"
)

var thumbMnemonics = map[string]bool{
	"lsl": true, "lsr": true, "asr": true, "ror": true,
	"add": true, "sub": true, "mov": true, "cmp": true,
	"and": true, "eor": true, "adc": true, "sbc": true,
	"tst": true, "neg": true, "cmn": true, "orr": true,
	"mul": true, "bic": true, "mvn": true,
	"bx": true,
	"ldr": true, "str": true, "ldrb": true, "strb": true,
	"ldrh": true, "strh": true, "ldrsb": true, "ldrsh": true,
	"ldrx": true, "strx": true,
	"push": true, "pop": true,
	"stmia": true, "ldmia": true, "stm": true, "ldm": true,
	"b": true, "bl": true,
	"swi": true, "svc": true,
	"adr": true, "nop": true,
}

// thumbALUOps are the format 4 register-register operations
var thumbALUOps = map[string]uint32{
	"and": 0, "eor": 1, "lsl": 2, "lsr": 3,
	"asr": 4, "adc": 5, "sbc": 6, "ror": 7,
	"tst": 8, "neg": 9, "cmp": 10, "cmn": 11,
	"orr": 12, "mul": 13, "bic": 14, "mvn": 15,
}

func loReg(op Operand) (uint32, error) {
	if op.Kind != OpReg {
		return 0, encErr(op.Pos, "expected register")
	}
	if op.Reg > 7 {
		return 0, encErr(op.Pos, "register r%d is not usable here in thumb mode", op.Reg)
	}
	return uint32(op.Reg), nil
}

func encodeThumb(sink Sink, m Mnemonic, ops []Operand) error {
	if m.HasCond && m.Base != "b" {
		return encErr(m.Pos, "thumb instructions cannot be conditional")
	}

	switch m.Base {
	case "lsl", "lsr", "asr", "ror":
		return encodeThumbShift(sink, m, ops)
	case "add", "sub":
		return encodeThumbAddSub(sink, m, ops)
	case "mov":
		return encodeThumbMov(sink, m, ops)
	case "cmp":
		return encodeThumbCmp(sink, m, ops)
	case "and", "eor", "adc", "sbc", "tst", "neg", "cmn", "orr", "mul", "bic", "mvn":
		return encodeThumbALU(sink, m, ops)
	case "bx":
		if len(ops) != 1 || ops[0].Kind != OpReg {
			return encErr(m.Pos, "bx requires a register operand")
		}
		return sink.Word16(uint16(0x4700 | uint32(ops[0].Reg)<<3))
	case "ldr", "str", "ldrb", "strb", "ldrh", "strh", "ldrsb", "ldrsh":
		return encodeThumbMem(sink, m, ops, m.Base)
	case "ldrx", "strx":
		return encodeThumbTyped(sink, m, ops)
	case "push", "pop":
		return encodeThumbPushPop(sink, m, ops)
	case "stmia", "ldmia", "stm", "ldm":
		return encodeThumbBlock(sink, m, ops)
	case "b":
		return encodeThumbBranch(sink, m, ops)
	case "bl":
		return encodeThumbBL(sink, m, ops)
	case "swi", "svc":
		if len(ops) != 1 {
			return encErr(m.Pos, "%s requires one operand", m.Base)
		}
		imm, err := commentImm(sink, ops[0])
		if err != nil {
			return err
		}
		if imm > 0xFF {
			return encErr(ops[0].Pos, "swi comment out of range")
		}
		return sink.Word16(uint16(0xDF00 | imm))
	case "adr":
		return encodeThumbAdr(sink, m, ops)
	case "nop":
		// mov r8, r8
		return sink.Word16(0x46C0)
	}
	return encErr(m.Pos, "unknown instruction: %s", m.Base)
}

func encodeThumbShift(sink Sink, m Mnemonic, ops []Operand) error {
	// rd, rm, #imm5 is format 1; rd, rs falls through to the ALU form
	if len(ops) == 3 && ops[2].Kind == OpImm {
		if m.Base == "ror" {
			return encErr(m.Pos, "ror has no immediate form in thumb mode")
		}
		rd, err := loReg(ops[0])
		if err != nil {
			return err
		}
		rm, err := loReg(ops[1])
		if err != nil {
			return err
		}
		imm, err := resolveU32(sink, ops[2].Expr, "shift amount")
		if err != nil {
			return err
		}
		if imm > 31 {
			return encErr(ops[2].Pos, "shift amount %d out of range", imm)
		}
		op := map[string]uint32{"lsl": 0, "lsr": 1, "asr": 2}[m.Base]
		return sink.Word16(uint16(op<<11 | imm<<6 | rm<<3 | rd))
	}
	return encodeThumbALU(sink, m, ops)
}

func encodeThumbAddSub(sink Sink, m Mnemonic, ops []Operand) error {
	isSub := m.Base == "sub"
	opBit := uint32(0)
	if isSub {
		opBit = 1
	}

	// sp adjustment: add sp, #imm / sub sp, #imm
	if len(ops) == 2 && ops[0].Kind == OpReg && ops[0].Reg == 13 && ops[1].Kind == OpImm {
		imm, err := resolveI64(sink, ops[1].Expr, "sp adjustment")
		if err != nil {
			return err
		}
		if isSub {
			imm = -imm
		}
		s := uint32(0)
		if imm < 0 {
			s = 1
			imm = -imm
		}
		if imm%4 != 0 || imm > 508 {
			return encErr(ops[1].Pos, "sp adjustment must be a multiple of 4 up to 508")
		}
		return sink.Word16(uint16(0xB000 | s<<7 | uint32(imm/4)))
	}

	// add rd, pc/sp, #imm (format 12)
	if !isSub && len(ops) == 3 && ops[1].Kind == OpReg && (ops[1].Reg == 15 || ops[1].Reg == 13) {
		rd, err := loReg(ops[0])
		if err != nil {
			return err
		}
		if ops[2].Kind != OpImm {
			return encErr(ops[2].Pos, "expected immediate")
		}
		imm, err := resolveU32(sink, ops[2].Expr, "offset")
		if err != nil {
			return err
		}
		if imm%4 != 0 || imm > 1020 {
			return encErr(ops[2].Pos, "offset must be a multiple of 4 up to 1020")
		}
		sp := uint32(0)
		if ops[1].Reg == 13 {
			sp = 1
		}
		return sink.Word16(uint16(0xA000 | sp<<11 | rd<<8 | imm/4))
	}

	// rd, #imm8 (format 3)
	if len(ops) == 2 && ops[1].Kind == OpImm {
		rd, err := loReg(ops[0])
		if err != nil {
			return err
		}
		imm, err := resolveU32(sink, ops[1].Expr, "immediate")
		if err != nil {
			return err
		}
		if imm > 0xFF {
			return encErr(ops[1].Pos, "immediate %d out of range (max 255)", imm)
		}
		op := uint32(2)
		if isSub {
			op = 3
		}
		return sink.Word16(uint16(0x2000 | op<<11 | rd<<8 | imm))
	}

	// rd, rm — high register add, or three-operand form with rn=rd
	if len(ops) == 2 && ops[1].Kind == OpReg {
		if !isSub && (ops[0].Reg > 7 || ops[1].Reg > 7) {
			if ops[0].Kind != OpReg {
				return encErr(ops[0].Pos, "expected register")
			}
			rd := uint32(ops[0].Reg)
			rm := uint32(ops[1].Reg)
			return sink.Word16(uint16(0x4400 | (rd>>3)<<7 | rm<<3 | (rd & 7)))
		}
		ops = []Operand{ops[0], ops[0], ops[1]}
	}

	// rd, rn, rm / rd, rn, #imm3 (format 2)
	if len(ops) != 3 {
		return encErr(m.Pos, "invalid operands for %s", m.Base)
	}
	rd, err := loReg(ops[0])
	if err != nil {
		return err
	}
	rn, err := loReg(ops[1])
	if err != nil {
		return err
	}
	switch ops[2].Kind {
	case OpReg:
		rm, err := loReg(ops[2])
		if err != nil {
			return err
		}
		return sink.Word16(uint16(0x1800 | opBit<<9 | rm<<6 | rn<<3 | rd))
	case OpImm:
		imm, err := resolveU32(sink, ops[2].Expr, "immediate")
		if err != nil {
			return err
		}
		if imm > 7 {
			return encErr(ops[2].Pos, "immediate %d out of range (max 7)", imm)
		}
		return sink.Word16(uint16(0x1C00 | opBit<<9 | imm<<6 | rn<<3 | rd))
	}
	return encErr(ops[2].Pos, "invalid operand for %s", m.Base)
}

func encodeThumbMov(sink Sink, m Mnemonic, ops []Operand) error {
	if len(ops) != 2 {
		return encErr(m.Pos, "mov requires 2 operands")
	}
	if ops[1].Kind == OpImm {
		rd, err := loReg(ops[0])
		if err != nil {
			return err
		}
		imm, err := resolveU32(sink, ops[1].Expr, "immediate")
		if err != nil {
			return err
		}
		if imm > 0xFF {
			return encErr(ops[1].Pos, "immediate %d out of range (max 255)", imm)
		}
		return sink.Word16(uint16(0x2000 | rd<<8 | imm))
	}
	if ops[0].Kind != OpReg || ops[1].Kind != OpReg {
		return encErr(m.Pos, "invalid operands for mov")
	}
	rd := uint32(ops[0].Reg)
	rm := uint32(ops[1].Reg)
	if rd > 7 || rm > 7 {
		// high register mov (format 5)
		return sink.Word16(uint16(0x4600 | (rd>>3)<<7 | rm<<3 | (rd & 7)))
	}
	// low-to-low: adds rd, rm, #0
	return sink.Word16(uint16(0x1C00 | rm<<3 | rd))
}

func encodeThumbCmp(sink Sink, m Mnemonic, ops []Operand) error {
	if len(ops) != 2 || ops[0].Kind != OpReg {
		return encErr(m.Pos, "cmp requires 2 operands")
	}
	if ops[1].Kind == OpImm {
		rd, err := loReg(ops[0])
		if err != nil {
			return err
		}
		imm, err := resolveU32(sink, ops[1].Expr, "immediate")
		if err != nil {
			return err
		}
		if imm > 0xFF {
			return encErr(ops[1].Pos, "immediate %d out of range (max 255)", imm)
		}
		return sink.Word16(uint16(0x2800 | rd<<8 | imm))
	}
	if ops[1].Kind != OpReg {
		return encErr(ops[1].Pos, "invalid operand for cmp")
	}
	rd := uint32(ops[0].Reg)
	rm := uint32(ops[1].Reg)
	if rd > 7 || rm > 7 {
		return sink.Word16(uint16(0x4500 | (rd>>3)<<7 | rm<<3 | (rd & 7)))
	}
	return encodeThumbALU(sink, m, ops)
}

func encodeThumbALU(sink Sink, m Mnemonic, ops []Operand) error {
	op, ok := thumbALUOps[m.Base]
	if !ok {
		return encErr(m.Pos, "unknown instruction: %s", m.Base)
	}
	if len(ops) != 2 {
		return encErr(m.Pos, "%s requires 2 register operands", m.Base)
	}
	rd, err := loReg(ops[0])
	if err != nil {
		return err
	}
	rm, err := loReg(ops[1])
	if err != nil {
		return err
	}
	return sink.Word16(uint16(0x4000 | op<<6 | rm<<3 | rd))
}

// thumbMemBits describes the encoding family for one mnemonic
type thumbMemBits struct {
	regBase  uint16 // format 7/8 base opcode
	immBase  uint16 // format 9/10 base opcode; 0 when no immediate form exists
	immScale uint32
	immMax   uint32
	signed   bool
}

var thumbMemOps = map[string]thumbMemBits{
	"str":   {regBase: 0x5000, immBase: 0x6000, immScale: 4, immMax: 124},
	"ldr":   {regBase: 0x5800, immBase: 0x6800, immScale: 4, immMax: 124},
	"strb":  {regBase: 0x5400, immBase: 0x7000, immScale: 1, immMax: 31},
	"ldrb":  {regBase: 0x5C00, immBase: 0x7800, immScale: 1, immMax: 31},
	"strh":  {regBase: 0x5200, immBase: 0x8000, immScale: 2, immMax: 62},
	"ldrh":  {regBase: 0x5A00, immBase: 0x8800, immScale: 2, immMax: 62},
	"ldrsb": {regBase: 0x5600, signed: true},
	"ldrsh": {regBase: 0x5E00, signed: true},
}

func encodeThumbMem(sink Sink, m Mnemonic, ops []Operand, base string) error {
	bits := thumbMemOps[base]
	if len(ops) < 2 || ops[0].Kind != OpReg {
		return encErr(m.Pos, "%s requires a destination register", base)
	}

	if ops[1].Kind == OpEq {
		if base != "ldr" {
			return encErr(ops[1].Pos, "=expr is only valid with ldr")
		}
		rd, err := loReg(ops[0])
		if err != nil {
			return err
		}
		sink.Pool().Request(&PoolRequest{
			SiteOffset: sink.Offset(),
			SiteAddr:   sink.Here(),
			Reg:        int(rd),
			Expr:       ops[1].Expr,
			Ctx:        sink.EvalCtx(),
			Pos:        m.Pos,
			Thumb:      true,
		})
		return sink.Word16(uint16(0x4800 | rd<<8))
	}

	rd, err := loReg(ops[0])
	if err != nil {
		return err
	}
	if len(ops) != 2 || ops[1].Kind != OpMem {
		return encErr(m.Pos, "%s requires an address operand", base)
	}
	mem := ops[1].Mem
	if mem.WriteBack || (mem.Closed && len(ops) > 2) {
		return encErr(ops[1].Pos, "thumb loads and stores have no writeback or post-index forms")
	}

	// [pc, #imm] and bare pc-relative loads use format 6
	if mem.Rn == 15 {
		if base != "ldr" {
			return encErr(ops[1].Pos, "only ldr can be pc-relative in thumb mode")
		}
		var imm uint32
		if mem.HasOffset {
			if mem.OffIsReg {
				return encErr(ops[1].Pos, "pc-relative loads take an immediate offset")
			}
			v, err := resolveU32(sink, mem.OffExpr, "offset")
			if err != nil {
				return err
			}
			imm = v
		}
		if imm%4 != 0 || imm > 1020 {
			return encErr(ops[1].Pos, "pc-relative offset must be a multiple of 4 up to 1020")
		}
		return sink.Word16(uint16(0x4800 | rd<<8 | imm/4))
	}

	// [sp, #imm] uses format 11
	if mem.Rn == 13 {
		if base != "ldr" && base != "str" {
			return encErr(ops[1].Pos, "only ldr and str can be sp-relative in thumb mode")
		}
		var imm uint32
		if mem.HasOffset {
			if mem.OffIsReg {
				return encErr(ops[1].Pos, "sp-relative access takes an immediate offset")
			}
			v, err := resolveU32(sink, mem.OffExpr, "offset")
			if err != nil {
				return err
			}
			imm = v
		}
		if imm%4 != 0 || imm > 1020 {
			return encErr(ops[1].Pos, "sp-relative offset must be a multiple of 4 up to 1020")
		}
		l := uint32(0)
		if base == "ldr" {
			l = 1
		}
		return sink.Word16(uint16(0x9000 | l<<11 | rd<<8 | imm/4))
	}

	rn := uint32(mem.Rn)
	if rn > 7 {
		return encErr(ops[1].Pos, "base register r%d is not usable in thumb mode", rn)
	}

	if mem.HasOffset && mem.OffIsReg {
		if mem.Neg || mem.Shift != nil {
			return encErr(ops[1].Pos, "thumb register offsets cannot be negated or shifted")
		}
		ro := uint32(mem.OffReg)
		if ro > 7 {
			return encErr(ops[1].Pos, "offset register r%d is not usable in thumb mode", ro)
		}
		return sink.Word16(uint16(uint32(bits.regBase) | ro<<6 | rn<<3 | rd))
	}

	// immediate (or zero) offset
	if bits.signed {
		return encErr(ops[1].Pos, "Cannot convert to signed load with immediate")
	}
	var imm uint32
	if mem.HasOffset {
		v, err := resolveU32(sink, mem.OffExpr, "offset")
		if err != nil {
			return err
		}
		imm = v
	}
	if imm > bits.immMax || imm%bits.immScale != 0 {
		return encErr(ops[1].Pos, "offset %d invalid for %s (max %d, multiple of %d)",
			imm, base, bits.immMax, bits.immScale)
	}
	return sink.Word16(uint16(uint32(bits.immBase) | (imm/bits.immScale)<<6 | rn<<3 | rd))
}

func encodeThumbTyped(sink Sink, m Mnemonic, ops []Operand) error {
	width, signed, fieldOps, err := typedOperands(sink, m, ops)
	if err != nil {
		return err
	}
	load := m.Base == "ldrx"
	base, err := typedBase(load, width, signed, m.Pos)
	if err != nil {
		return err
	}
	m2 := m
	m2.Base = base
	return encodeThumbMem(sink, m2, fieldOps, base)
}

func encodeThumbPushPop(sink Sink, m Mnemonic, ops []Operand) error {
	if len(ops) != 1 || ops[0].Kind != OpRegList {
		return encErr(m.Pos, "%s requires a register list", m.Base)
	}
	list := uint32(ops[0].RegList)
	r := uint32(0)
	if m.Base == "push" {
		if list&(1<<14) != 0 {
			r = 1
			list &^= 1 << 14
		}
		if list > 0xFF {
			return encErr(ops[0].Pos, "push accepts r0-r7 and lr only")
		}
		return sink.Word16(uint16(0xB400 | r<<8 | list))
	}
	if list&(1<<15) != 0 {
		r = 1
		list &^= 1 << 15
	}
	if list > 0xFF {
		return encErr(ops[0].Pos, "pop accepts r0-r7 and pc only")
	}
	return sink.Word16(uint16(0xBC00 | r<<8 | list))
}

func encodeThumbBlock(sink Sink, m Mnemonic, ops []Operand) error {
	if len(ops) != 2 || ops[0].Kind != OpRegWriteback || ops[1].Kind != OpRegList {
		return encErr(m.Pos, "%s requires rn!, {list}", m.Base)
	}
	rn := uint32(ops[0].Reg)
	if rn > 7 {
		return encErr(ops[0].Pos, "base register r%d is not usable in thumb mode", rn)
	}
	if ops[1].RegList > 0xFF {
		return encErr(ops[1].Pos, "%s accepts r0-r7 only", m.Base)
	}
	l := uint32(0)
	if m.Base == "ldmia" || m.Base == "ldm" {
		l = 1
	}
	return sink.Word16(uint16(0xC000 | l<<11 | rn<<8 | uint32(ops[1].RegList)))
}

func encodeThumbBranch(sink Sink, m Mnemonic, ops []Operand) error {
	if len(ops) != 1 || (ops[0].Kind != OpExpr && ops[0].Kind != OpImm) {
		return encErr(m.Pos, "b requires a target")
	}
	v, err := sink.Eval(ops[0].Expr)
	if err != nil {
		return err
	}

	if m.HasCond {
		if m.Cond == CondAL {
			return encErr(m.Pos, "b.al is not encodable; use b")
		}
		base := uint16(0xD000 | m.Cond<<8)
		if v.Kind != parser.ValNum {
			sink.Defer(Fixup{Kind: FixThumbCondBr8, Offset: sink.Offset(), Expr: ops[0].Expr, Pos: ops[0].Pos})
			return sink.Word16(base)
		}
		off, err := thumbBranchOffset(v.Uint32(), sink.Here(), 8, ops[0].Pos)
		if err != nil {
			return err
		}
		return sink.Word16(base | uint16(off&0xFF))
	}

	if v.Kind != parser.ValNum {
		sink.Defer(Fixup{Kind: FixThumbBr11, Offset: sink.Offset(), Expr: ops[0].Expr, Pos: ops[0].Pos})
		return sink.Word16(0xE000)
	}
	off, err := thumbBranchOffset(v.Uint32(), sink.Here(), 11, ops[0].Pos)
	if err != nil {
		return err
	}
	return sink.Word16(uint16(0xE000 | off&0x7FF))
}

// thumbBranchOffset computes the signed halfword offset from site+4, checked
// against the given field width
func thumbBranchOffset(target, site uint32, bits uint, pos parser.Position) (uint32, error) {
	diff := int64(int32(target)) - int64(int32(site+4))
	if diff%2 != 0 {
		return 0, encErr(pos, "branch target is not halfword aligned")
	}
	half := diff / 2
	limit := int64(1) << (bits - 1)
	if half < -limit || half >= limit {
		return 0, encErr(pos, "branch target out of range")
	}
	return uint32(half) & ((1 << bits) - 1), nil
}

func encodeThumbBL(sink Sink, m Mnemonic, ops []Operand) error {
	if len(ops) != 1 || (ops[0].Kind != OpExpr && ops[0].Kind != OpImm) {
		return encErr(m.Pos, "bl requires a target")
	}
	v, err := sink.Eval(ops[0].Expr)
	if err != nil {
		return err
	}
	if v.Kind != parser.ValNum {
		sink.Defer(Fixup{Kind: FixThumbBL, Offset: sink.Offset(), Expr: ops[0].Expr, Pos: ops[0].Pos})
		if err := sink.Word16(0xF000); err != nil {
			return err
		}
		return sink.Word16(0xF800)
	}
	hi, lo, err := ThumbBLPair(v.Uint32(), sink.Here(), ops[0].Pos)
	if err != nil {
		return err
	}
	if err := sink.Word16(hi); err != nil {
		return err
	}
	return sink.Word16(lo)
}

// ThumbBLPair builds the two bl halfwords for a target from the given site
func ThumbBLPair(target, site uint32, pos parser.Position) (hi, lo uint16, err error) {
	diff := int64(int32(target)) - int64(int32(site+4))
	if diff%2 != 0 {
		return 0, 0, encErr(pos, "bl target is not halfword aligned")
	}
	half := diff / 2
	if half < -(1<<21) || half >= 1<<21 {
		return 0, 0, encErr(pos, "bl target out of range")
	}
	off := uint32(half) & 0x3FFFFF
	return uint16(0xF000 | off>>11), uint16(0xF800 | off&0x7FF), nil
}

func encodeThumbAdr(sink Sink, m Mnemonic, ops []Operand) error {
	if len(ops) != 2 || ops[0].Kind != OpReg || ops[1].Kind != OpExpr {
		return encErr(m.Pos, "adr requires rd, label")
	}
	rd, err := loReg(ops[0])
	if err != nil {
		return err
	}
	v, err := sink.Eval(ops[1].Expr)
	if err != nil {
		return err
	}
	if v.Kind != parser.ValNum {
		sink.Defer(Fixup{Kind: FixThumbAdr, Offset: sink.Offset(), Expr: ops[1].Expr, Pos: ops[1].Pos})
		return sink.Word16(uint16(0xA000 | rd<<8))
	}
	imm, err := thumbAdrOffset(v.Uint32(), sink.Here(), ops[1].Pos)
	if err != nil {
		return err
	}
	return sink.Word16(uint16(0xA000 | rd<<8 | imm))
}

// thumbAdrOffset computes the format 12 word offset from the aligned site
func thumbAdrOffset(target, site uint32, pos parser.Position) (uint32, error) {
	base := site &^ 3
	if target < base {
		return 0, encErr(pos, "adr target is behind the instruction")
	}
	diff := target - base
	if diff%4 != 0 || diff > 1020 {
		return 0, encErr(pos, "adr target out of range (offset %d)", diff)
	}
	return diff / 4, nil
}
