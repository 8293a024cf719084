package encoder

import (
	"strings"

	"github.com/lookbusy1344/gba-assembler/parser"
)

// armDataOps maps data-processing mnemonics to their 4-bit opcodes
var armDataOps = map[string]uint32{
	"and": 0, "eor": 1, "sub": 2, "rsb": 3,
	"add": 4, "adc": 5, "sbc": 6, "rsc": 7,
	"tst": 8, "teq": 9, "cmp": 10, "cmn": 11,
	"orr": 12, "mov": 13, "bic": 14, "mvn": 15,
}

var armMnemonics = map[string]bool{
	"and": true, "eor": true, "sub": true, "rsb": true,
	"add": true, "adc": true, "sbc": true, "rsc": true,
	"tst": true, "teq": true, "cmp": true, "cmn": true,
	"orr": true, "mov": true, "bic": true, "mvn": true,
	"mul": true, "mla": true,
	"umull": true, "umlal": true, "smull": true, "smlal": true,
	"ldr": true, "str": true, "ldrb": true, "strb": true,
	"ldrh": true, "strh": true, "ldrsb": true, "ldrsh": true,
	"ldrx": true, "strx": true,
	"ldm": true, "stm": true,
	"ldmia": true, "ldmib": true, "ldmda": true, "ldmdb": true,
	"stmia": true, "stmib": true, "stmda": true, "stmdb": true,
	"ldmfd": true, "ldmed": true, "ldmfa": true, "ldmea": true,
	"stmfd": true, "stmed": true, "stmfa": true, "stmea": true,
	"push": true, "pop": true,
	"b": true, "bl": true, "bx": true,
	"swi": true, "svc": true,
	"swp": true, "swpb": true,
	"mrs": true, "msr": true,
	"adr": true, "nop": true,
}

func encodeARM(sink Sink, m Mnemonic, ops []Operand) error {
	cond := m.CondBits()

	if _, ok := armDataOps[m.Base]; ok {
		return encodeARMData(sink, m, ops)
	}

	switch m.Base {
	case "mul", "mla", "umull", "umlal", "smull", "smlal":
		return encodeARMMultiply(sink, m, ops)
	case "ldr", "ldrb", "str", "strb":
		return encodeARMMem(sink, m, ops, strings.HasPrefix(m.Base, "ldr"), strings.HasSuffix(m.Base, "b"))
	case "ldrh", "strh", "ldrsb", "ldrsh":
		return encodeARMMemMisc(sink, m, ops, m.Base)
	case "ldrx", "strx":
		return encodeARMTyped(sink, m, ops)
	case "ldm", "stm", "ldmia", "ldmib", "ldmda", "ldmdb",
		"stmia", "stmib", "stmda", "stmdb",
		"ldmfd", "ldmed", "ldmfa", "ldmea",
		"stmfd", "stmed", "stmfa", "stmea":
		return encodeARMBlock(sink, m, ops)
	case "push", "pop":
		return encodeARMPushPop(sink, m, ops)
	case "b", "bl":
		return encodeARMBranch(sink, m, ops)
	case "bx":
		if len(ops) != 1 || ops[0].Kind != OpReg {
			return encErr(m.Pos, "bx requires a register operand")
		}
		return sink.Word32(cond<<28 | 0x012FFF10 | uint32(ops[0].Reg))
	case "swi", "svc":
		if len(ops) != 1 {
			return encErr(m.Pos, "%s requires one operand", m.Base)
		}
		imm, err := commentImm(sink, ops[0])
		if err != nil {
			return err
		}
		if imm > 0xFFFFFF {
			return encErr(ops[0].Pos, "swi comment out of range")
		}
		return sink.Word32(cond<<28 | 0x0F000000 | imm)
	case "swp", "swpb":
		return encodeARMSwap(sink, m, ops)
	case "mrs", "msr":
		return encodeARMPSR(sink, m, ops)
	case "adr":
		return encodeARMAdr(sink, m, ops)
	case "nop":
		// mov r0, r0
		return sink.Word32(cond<<28 | 0x01A00000)
	}
	return encErr(m.Pos, "unknown instruction: %s", m.Base)
}

// commentImm accepts either #imm or a bare expression (swi 0x50000)
func commentImm(sink Sink, op Operand) (uint32, error) {
	if op.Kind != OpImm && op.Kind != OpExpr {
		return 0, encErr(op.Pos, "expected immediate")
	}
	return resolveU32(sink, op.Expr, "immediate")
}

// armOperand2 builds the data-processing operand 2 field starting at ops[i].
// A register may be followed by a shift operand; consumed reports how many
// operands were used.
func armOperand2(sink Sink, ops []Operand, i int) (bits uint32, consumed int, err error) {
	if i >= len(ops) {
		return 0, 0, encErr(parser.Position{}, "missing operand")
	}
	op := ops[i]
	switch op.Kind {
	case OpImm:
		v, err := resolveU32(sink, op.Expr, "immediate")
		if err != nil {
			return 0, 0, err
		}
		enc, ok := RotatedImmediate(v)
		if !ok {
			return 0, 0, encErr(op.Pos, "immediate 0x%X cannot be encoded as a rotated 8-bit value", v)
		}
		return 1<<25 | enc, 1, nil

	case OpReg:
		bits = uint32(op.Reg)
		consumed = 1
		if i+1 < len(ops) && ops[i+1].Kind == OpShift {
			sh := ops[i+1].Shift
			shBits, err := armShiftBits(sink, sh)
			if err != nil {
				return 0, 0, err
			}
			bits |= shBits
			consumed = 2
		}
		return bits, consumed, nil
	}
	return 0, 0, encErr(op.Pos, "invalid operand")
}

func armShiftBits(sink Sink, sh *ShiftSpec) (uint32, error) {
	if sh.ByReg {
		return uint32(sh.Reg)<<8 | 1<<4 | uint32(sh.Type)<<5, nil
	}
	if sh.RRX {
		return uint32(ShiftROR) << 5, nil
	}
	amount, err := resolveU32(sink, sh.Amount, "shift amount")
	if err != nil {
		return 0, err
	}
	if amount == 32 && (sh.Type == ShiftLSR || sh.Type == ShiftASR) {
		amount = 0
	}
	if amount > 31 {
		return 0, encErr(sh.Pos, "shift amount %d out of range", amount)
	}
	return amount<<7 | uint32(sh.Type)<<5, nil
}

func encodeARMData(sink Sink, m Mnemonic, ops []Operand) error {
	cond := m.CondBits()
	opcode := armDataOps[m.Base]
	s := uint32(0)
	if m.SetFlags {
		s = 1
	}

	var rd, rn uint32
	opIdx := 0
	switch m.Base {
	case "mov", "mvn":
		if len(ops) < 2 || ops[0].Kind != OpReg {
			return encErr(m.Pos, "%s requires a destination register", m.Base)
		}
		rd = uint32(ops[0].Reg)
		opIdx = 1
	case "cmp", "cmn", "tst", "teq":
		if len(ops) < 2 || ops[0].Kind != OpReg {
			return encErr(m.Pos, "%s requires a register operand", m.Base)
		}
		rn = uint32(ops[0].Reg)
		s = 1
		opIdx = 1
	default:
		if len(ops) < 3 || ops[0].Kind != OpReg || ops[1].Kind != OpReg {
			return encErr(m.Pos, "%s requires destination and source registers", m.Base)
		}
		rd = uint32(ops[0].Reg)
		rn = uint32(ops[1].Reg)
		opIdx = 2
	}

	op2, consumed, err := armOperand2(sink, ops, opIdx)
	if err != nil {
		return err
	}
	if opIdx+consumed != len(ops) {
		return encErr(m.Pos, "too many operands for %s", m.Base)
	}
	return sink.Word32(cond<<28 | opcode<<21 | s<<20 | rn<<16 | rd<<12 | op2)
}

func encodeARMMultiply(sink Sink, m Mnemonic, ops []Operand) error {
	cond := m.CondBits()
	s := uint32(0)
	if m.SetFlags {
		s = 1
	}
	regs := make([]uint32, 0, 4)
	for _, op := range ops {
		if op.Kind != OpReg {
			return encErr(op.Pos, "%s takes register operands only", m.Base)
		}
		regs = append(regs, uint32(op.Reg))
	}
	switch m.Base {
	case "mul":
		if len(regs) != 3 {
			return encErr(m.Pos, "mul requires 3 registers")
		}
		return sink.Word32(cond<<28 | s<<20 | regs[0]<<16 | regs[2]<<8 | 0x90 | regs[1])
	case "mla":
		if len(regs) != 4 {
			return encErr(m.Pos, "mla requires 4 registers")
		}
		return sink.Word32(cond<<28 | 1<<21 | s<<20 | regs[0]<<16 | regs[3]<<12 | regs[2]<<8 | 0x90 | regs[1])
	}
	// long multiplies: rdlo, rdhi, rm, rs
	if len(regs) != 4 {
		return encErr(m.Pos, "%s requires 4 registers", m.Base)
	}
	var bits uint32 = 1 << 23
	switch m.Base {
	case "umlal":
		bits |= 1 << 21
	case "smull":
		bits |= 1 << 22
	case "smlal":
		bits |= 1<<22 | 1<<21
	}
	return sink.Word32(cond<<28 | bits | s<<20 | regs[1]<<16 | regs[0]<<12 | regs[3]<<8 | 0x90 | regs[2])
}

// armAddr holds the pre/post, writeback, and direction bits shared by the
// word/byte and misc addressing forms
type armAddr struct {
	rn     uint32
	p, u, w uint32
	immVal uint32 // valid when !regOff
	regOff bool
	rm     uint32
	shift  uint32
}

func resolveARMAddr(sink Sink, m Mnemonic, ops []Operand, idx int, maxImm uint32) (*armAddr, error) {
	if idx >= len(ops) || ops[idx].Kind != OpMem {
		return nil, encErr(m.Pos, "%s requires an address operand", m.Base)
	}
	mem := ops[idx].Mem
	a := &armAddr{rn: uint32(mem.Rn), p: 1, u: 1}

	post := false
	var offOp *Operand
	if mem.Closed && idx+1 < len(ops) {
		post = true
		offOp = &ops[idx+1]
	} else if idx+1 < len(ops) && ops[idx+1].Kind != OpField {
		return nil, encErr(ops[idx+1].Pos, "unexpected operand after address")
	}

	if post {
		// post-indexed transfers always write back; W set here would mean a
		// user-mode transfer instead
		a.p = 0
		switch offOp.Kind {
		case OpImm, OpExpr:
			v, err := resolveI64(sink, offOp.Expr, "address offset")
			if err != nil {
				return nil, err
			}
			if v < 0 {
				a.u = 0
				v = -v
			}
			if uint32(v) > maxImm {
				return nil, encErr(offOp.Pos, "offset %d out of range (max %d)", v, maxImm)
			}
			a.immVal = uint32(v)
		case OpReg:
			a.regOff = true
			a.rm = uint32(offOp.Reg)
			if offOp.Neg {
				a.u = 0
			}
		default:
			return nil, encErr(offOp.Pos, "invalid post-index offset")
		}
		return a, nil
	}

	if mem.WriteBack {
		a.w = 1
	}
	if mem.HasOffset {
		if mem.OffIsReg {
			a.regOff = true
			a.rm = uint32(mem.OffReg)
			if mem.Neg {
				a.u = 0
			}
			if mem.Shift != nil {
				sh, err := armShiftBits(sink, mem.Shift)
				if err != nil {
					return nil, err
				}
				if mem.Shift.ByReg {
					return nil, encErr(mem.Shift.Pos, "register-specified shift is not valid in an address")
				}
				a.shift = sh
			}
		} else {
			v, err := resolveI64(sink, mem.OffExpr, "address offset")
			if err != nil {
				return nil, err
			}
			if v < 0 {
				a.u = 0
				v = -v
			}
			if uint32(v) > maxImm {
				return nil, encErr(ops[idx].Pos, "offset %d out of range (max %d)", v, maxImm)
			}
			a.immVal = uint32(v)
		}
	}
	return a, nil
}

func encodeARMMem(sink Sink, m Mnemonic, ops []Operand, load, byteOp bool) error {
	cond := m.CondBits()
	if len(ops) < 2 || ops[0].Kind != OpReg {
		return encErr(m.Pos, "%s requires a destination register", m.Base)
	}
	rd := uint32(ops[0].Reg)

	if ops[1].Kind == OpEq {
		if !load || byteOp {
			return encErr(ops[1].Pos, "=expr is only valid with ldr")
		}
		return armLoadConst(sink, m, rd, ops[1].Expr)
	}

	a, err := resolveARMAddr(sink, m, ops, 1, 0xFFF)
	if err != nil {
		return err
	}
	l := uint32(0)
	if load {
		l = 1
	}
	b := uint32(0)
	if byteOp {
		b = 1
	}
	instr := cond<<28 | 1<<26 | a.p<<24 | a.u<<23 | b<<22 | a.w<<21 | l<<20 |
		a.rn<<16 | rd<<12
	if a.regOff {
		instr |= 1<<25 | a.shift | a.rm
	} else {
		instr |= a.immVal
	}
	return sink.Word32(instr)
}

// miscSH returns the S/H bits and L bit for the halfword and signed forms
func miscSH(base string) (l, s, h uint32, ok bool) {
	switch base {
	case "strh":
		return 0, 0, 1, true
	case "ldrh":
		return 1, 0, 1, true
	case "ldrsb":
		return 1, 1, 0, true
	case "ldrsh":
		return 1, 1, 1, true
	}
	return 0, 0, 0, false
}

func encodeARMMemMisc(sink Sink, m Mnemonic, ops []Operand, base string) error {
	cond := m.CondBits()
	l, sBit, hBit, ok := miscSH(base)
	if !ok {
		return encErr(m.Pos, "unknown instruction: %s", base)
	}
	if len(ops) < 2 || ops[0].Kind != OpReg {
		return encErr(m.Pos, "%s requires a destination register", base)
	}
	rd := uint32(ops[0].Reg)
	a, err := resolveARMAddr(sink, m, ops, 1, 0xFF)
	if err != nil {
		return err
	}
	instr := cond<<28 | a.p<<24 | a.u<<23 | a.w<<21 | l<<20 |
		a.rn<<16 | rd<<12 | 1<<7 | sBit<<6 | hBit<<5 | 1<<4
	if a.regOff {
		if a.shift != 0 {
			return encErr(m.Pos, "%s does not accept a shifted register offset", base)
		}
		instr |= a.rm
	} else {
		instr |= 1<<22 | (a.immVal>>4)<<8 | (a.immVal & 0xF)
	}
	return sink.Word32(instr)
}

// encodeARMTyped handles ldrx/strx: the struct field's width and signedness
// select the real load/store
func encodeARMTyped(sink Sink, m Mnemonic, ops []Operand) error {
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
	switch base {
	case "ldr", "str", "ldrb", "strb":
		return encodeARMMem(sink, m2, fieldOps, load, width == 1)
	default:
		return encodeARMMemMisc(sink, m2, fieldOps, base)
	}
}

// typedBase maps a field's shape to the concrete mnemonic
func typedBase(load bool, width int, signed bool, pos parser.Position) (string, error) {
	if load {
		switch {
		case width == 4:
			return "ldr", nil
		case width == 2 && signed:
			return "ldrsh", nil
		case width == 2:
			return "ldrh", nil
		case width == 1 && signed:
			return "ldrsb", nil
		case width == 1:
			return "ldrb", nil
		}
	} else {
		switch width {
		case 4:
			return "str", nil
		case 2:
			return "strh", nil
		case 1:
			return "strb", nil
		}
	}
	return "", encErr(pos, "typed access has no valid width")
}

// typedOperands extracts the field shape from either a trailing
// (Struct.field) operand or a #Struct.field address offset, and rewrites the
// operand list for the concrete instruction
func typedOperands(sink Sink, m Mnemonic, ops []Operand) (width int, signed bool, out []Operand, err error) {
	if len(ops) >= 2 && ops[len(ops)-1].Kind == OpField {
		field := ops[len(ops)-1].Field
		w, sg, addr, ok := sink.FieldRef(field)
		if !ok {
			return 0, false, nil, encErr(ops[len(ops)-1].Pos, "unknown struct field %q", field)
		}
		out = append([]Operand{}, ops[:len(ops)-1]...)
		// the field's value becomes the immediate offset unless the address
		// already carries one
		if len(out) >= 2 && out[1].Kind == OpMem && !out[1].Mem.HasOffset {
			mem := *out[1].Mem
			mem.Closed = false
			mem.HasOffset = true
			mem.OffExpr = &parser.NumExpr{Position: ops[len(ops)-1].Pos, Val: addr.Num}
			out[1] = Operand{Kind: OpMem, Pos: out[1].Pos, Mem: &mem}
		}
		return w, sg, out, nil
	}
	// #Struct.field immediate offset inside the address operand
	if len(ops) >= 2 && ops[1].Kind == OpMem && ops[1].Mem.HasOffset && !ops[1].Mem.OffIsReg {
		if name, ok := ops[1].Mem.OffExpr.(*parser.NameExpr); ok {
			if w, sg, _, found := sink.FieldRef(name.Name); found {
				return w, sg, ops, nil
			}
		}
	}
	return 0, false, nil, encErr(m.Pos, "%s requires a struct field reference", m.Base)
}

// armLoadConst implements ldr rd, =expr: mov/mvn when the value is an
// encodable immediate, otherwise a PC-relative load from the literal pool
func armLoadConst(sink Sink, m Mnemonic, rd uint32, expr parser.Expr) error {
	cond := m.CondBits()
	v, err := sink.Eval(expr)
	if err != nil {
		return err
	}
	if v.Kind == parser.ValNum {
		val := v.Uint32()
		if enc, ok := RotatedImmediate(val); ok {
			sink.Pool().NoteConverted(sink.Offset(), rd, cond, expr, val)
			return sink.Word32(cond<<28 | 1<<25 | 13<<21 | rd<<12 | enc)
		}
		if enc, ok := RotatedImmediate(^val); ok {
			sink.Pool().NoteConverted(sink.Offset(), rd, cond, expr, val)
			return sink.Word32(cond<<28 | 1<<25 | 15<<21 | rd<<12 | enc)
		}
	}
	sink.Pool().Request(&PoolRequest{
		SiteOffset: sink.Offset(),
		SiteAddr:   sink.Here(),
		Reg:        int(rd),
		Cond:       cond,
		Expr:       expr,
		Ctx:        sink.EvalCtx(),
		Pos:        m.Pos,
	})
	// placeholder: ldr rd, [pc, #-0]; the resolver patches the offset
	return sink.Word32(cond<<28 | 0x051F0000 | rd<<12)
}

func blockModeBits(base string, load bool) (p, u uint32, ok bool) {
	mode := base[3:]
	if load {
		// load aliases: fd=ia, ed=ib, fa=da, ea=db
		switch mode {
		case "fd":
			mode = "ia"
		case "ed":
			mode = "ib"
		case "fa":
			mode = "da"
		case "ea":
			mode = "db"
		}
	} else {
		// store aliases: fd=db, ed=da, fa=ia, ea=ib
		switch mode {
		case "fd":
			mode = "db"
		case "ed":
			mode = "da"
		case "fa":
			mode = "ia"
		case "ea":
			mode = "ib"
		}
	}
	switch mode {
	case "", "ia":
		return 0, 1, true
	case "ib":
		return 1, 1, true
	case "da":
		return 0, 0, true
	case "db":
		return 1, 0, true
	}
	return 0, 0, false
}

func encodeARMBlock(sink Sink, m Mnemonic, ops []Operand) error {
	cond := m.CondBits()
	load := strings.HasPrefix(m.Base, "ldm")
	p, u, ok := blockModeBits(m.Base, load)
	if !ok {
		return encErr(m.Pos, "unknown instruction: %s", m.Base)
	}
	if len(ops) != 2 || ops[1].Kind != OpRegList {
		return encErr(m.Pos, "%s requires a base register and a register list", m.Base)
	}
	var rn uint32
	w := uint32(0)
	switch ops[0].Kind {
	case OpReg:
		rn = uint32(ops[0].Reg)
	case OpRegWriteback:
		rn = uint32(ops[0].Reg)
		w = 1
	default:
		return encErr(ops[0].Pos, "%s requires a base register", m.Base)
	}
	l := uint32(0)
	if load {
		l = 1
	}
	return sink.Word32(cond<<28 | 1<<27 | p<<24 | u<<23 | w<<21 | l<<20 | rn<<16 | uint32(ops[1].RegList))
}

func encodeARMPushPop(sink Sink, m Mnemonic, ops []Operand) error {
	cond := m.CondBits()
	if len(ops) != 1 || ops[0].Kind != OpRegList {
		return encErr(m.Pos, "%s requires a register list", m.Base)
	}
	list := uint32(ops[0].RegList)
	if m.Base == "push" {
		// stmdb sp!, {...}
		return sink.Word32(cond<<28 | 1<<27 | 1<<24 | 1<<21 | 13<<16 | list)
	}
	// ldmia sp!, {...}
	return sink.Word32(cond<<28 | 1<<27 | 1<<23 | 1<<21 | 1<<20 | 13<<16 | list)
}

func encodeARMBranch(sink Sink, m Mnemonic, ops []Operand) error {
	cond := m.CondBits()
	if len(ops) != 1 || (ops[0].Kind != OpExpr && ops[0].Kind != OpImm) {
		return encErr(m.Pos, "%s requires a target", m.Base)
	}
	l := uint32(0)
	if m.Base == "bl" {
		l = 1
	}
	base := cond<<28 | 5<<25 | l<<24

	v, err := sink.Eval(ops[0].Expr)
	if err != nil {
		return err
	}
	if v.Kind != parser.ValNum {
		sink.Defer(Fixup{Kind: FixARMBranch24, Offset: sink.Offset(), Expr: ops[0].Expr, Pos: ops[0].Pos})
		return sink.Word32(base)
	}
	off, err := armBranchOffset(v.Uint32(), sink.Here(), ops[0].Pos)
	if err != nil {
		return err
	}
	return sink.Word32(base | off)
}

// armBranchOffset computes the 24-bit word offset field
func armBranchOffset(target, site uint32, pos parser.Position) (uint32, error) {
	diff := int64(int32(target)) - int64(int32(site+8))
	if diff%4 != 0 {
		return 0, encErr(pos, "branch target is not word aligned")
	}
	words := diff / 4
	if words < -(1<<23) || words >= 1<<23 {
		return 0, encErr(pos, "branch target out of range")
	}
	return uint32(words) & 0xFFFFFF, nil
}

func encodeARMSwap(sink Sink, m Mnemonic, ops []Operand) error {
	cond := m.CondBits()
	if len(ops) != 3 || ops[0].Kind != OpReg || ops[1].Kind != OpReg || ops[2].Kind != OpMem {
		return encErr(m.Pos, "%s requires rd, rm, [rn]", m.Base)
	}
	if !ops[2].Mem.Closed {
		return encErr(ops[2].Pos, "%s address must be a bare [rn]", m.Base)
	}
	b := uint32(0)
	if m.Base == "swpb" {
		b = 1
	}
	return sink.Word32(cond<<28 | 1<<24 | b<<22 |
		uint32(ops[2].Mem.Rn)<<16 | uint32(ops[0].Reg)<<12 | 0x90 | uint32(ops[1].Reg))
}

func encodeARMPSR(sink Sink, m Mnemonic, ops []Operand) error {
	cond := m.CondBits()
	if m.Base == "mrs" {
		if len(ops) != 2 || ops[0].Kind != OpReg || ops[1].Kind != OpExpr {
			return encErr(m.Pos, "mrs requires rd, cpsr|spsr")
		}
		spsr, err := psrBit(ops[1])
		if err != nil {
			return err
		}
		return sink.Word32(cond<<28 | 1<<24 | spsr<<22 | 0xF<<16 | uint32(ops[0].Reg)<<12)
	}
	if len(ops) != 2 || ops[0].Kind != OpExpr {
		return encErr(m.Pos, "msr requires cpsr|spsr, source")
	}
	spsr, err := psrBit(ops[0])
	if err != nil {
		return err
	}
	base := cond<<28 | 1<<24 | spsr<<22 | 1<<21 | 0x9<<16 | 0xF<<12
	switch ops[1].Kind {
	case OpReg:
		return sink.Word32(base | uint32(ops[1].Reg))
	case OpImm:
		v, err := resolveU32(sink, ops[1].Expr, "immediate")
		if err != nil {
			return err
		}
		enc, ok := RotatedImmediate(v)
		if !ok {
			return encErr(ops[1].Pos, "immediate 0x%X cannot be encoded as a rotated 8-bit value", v)
		}
		return sink.Word32(base | 1<<25 | enc)
	}
	return encErr(ops[1].Pos, "invalid msr source")
}

func psrBit(op Operand) (uint32, error) {
	name, ok := op.Expr.(*parser.NameExpr)
	if !ok {
		return 0, encErr(op.Pos, "expected cpsr or spsr")
	}
	switch strings.ToLower(name.Name) {
	case "cpsr":
		return 0, nil
	case "spsr":
		return 1, nil
	}
	return 0, encErr(op.Pos, "expected cpsr or spsr")
}

func encodeARMAdr(sink Sink, m Mnemonic, ops []Operand) error {
	cond := m.CondBits()
	if len(ops) != 2 || ops[0].Kind != OpReg || ops[1].Kind != OpExpr {
		return encErr(m.Pos, "adr requires rd, label")
	}
	rd := uint32(ops[0].Reg)
	v, err := sink.Eval(ops[1].Expr)
	if err != nil {
		return err
	}
	if v.Kind != parser.ValNum {
		sink.Defer(Fixup{Kind: FixARMAdr, Offset: sink.Offset(), Expr: ops[1].Expr, Pos: ops[1].Pos})
		return sink.Word32(cond<<28 | 1<<25 | 4<<21 | 0xF<<16 | rd<<12)
	}
	instr, err := armAdrWord(cond, rd, v.Uint32(), sink.Here(), ops[1].Pos)
	if err != nil {
		return err
	}
	return sink.Word32(instr)
}

// armAdrWord builds add/sub rd, pc, #imm for an adr target
func armAdrWord(cond, rd, target, site uint32, pos parser.Position) (uint32, error) {
	diff := int64(target) - int64(site+8)
	op := uint32(4) // add
	if diff < 0 {
		op = 2 // sub
		diff = -diff
	}
	enc, ok := RotatedImmediate(uint32(diff))
	if !ok {
		return 0, encErr(pos, "adr target out of range (offset %d)", diff)
	}
	return cond<<28 | 1<<25 | op<<21 | 0xF<<16 | rd<<12 | enc, nil
}
