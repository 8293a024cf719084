// Package encoder turns parsed instruction statements into ARM and Thumb
// machine code, and resolves ldr= literal pools.
package encoder

import (
	"fmt"
	"strings"

	"github.com/lookbusy1344/gba-assembler/parser"
)

// Condition codes, in their 4-bit encoding order
const (
	CondEQ uint32 = iota
	CondNE
	CondCS
	CondCC
	CondMI
	CondPL
	CondVS
	CondVC
	CondHI
	CondLS
	CondGE
	CondLT
	CondGT
	CondLE
	CondAL
)

var conditionCodes = map[string]uint32{
	"eq": CondEQ, "ne": CondNE,
	"cs": CondCS, "hs": CondCS,
	"cc": CondCC, "lo": CondCC,
	"mi": CondMI, "pl": CondPL,
	"vs": CondVS, "vc": CondVC,
	"hi": CondHI, "ls": CondLS,
	"ge": CondGE, "lt": CondLT,
	"gt": CondGT, "le": CondLE,
	"al": CondAL,
}

// Buffer is the slice of the section the encoder and pool resolver write to
type Buffer interface {
	Here() uint32
	Len() int
	Align(n uint32, fill byte)
	Emit32(v uint32, bigEndian bool)
	Patch8(off int, v byte)
	Patch16(off int, v uint16)
	Patch32(off int, v uint32)
	Read16(off int) uint16
	Read32(off int) uint32
}

// Sink is what the assembly driver provides to the encoder: emission,
// expression evaluation, register alias resolution, struct field lookup, and
// deferred-rewrite registration.
type Sink interface {
	Here() uint32
	Offset() int
	Word32(v uint32) error
	Word16(v uint16) error
	Eval(e parser.Expr) (parser.Value, error)
	EvalCtx() parser.EvalContext
	RegIndex(name string) (int, bool)
	FieldRef(name string) (width int, signed bool, addr parser.Value, ok bool)
	Defer(f Fixup)
	Pool() *Pool
}

// FixupKind selects how a deferred expression patches its site
type FixupKind int

const (
	FixAbs8         FixupKind = iota
	FixAbs16
	FixAbs32
	FixARMBranch24  // b/bl 24-bit word offset from site+8
	FixARMAdr       // adr rd, label: add/sub rd, pc, #imm
	FixThumbCondBr8 // conditional branch, 8-bit halfword offset from site+4
	FixThumbBr11    // unconditional branch, 11-bit halfword offset
	FixThumbBL      // bl pair, 22-bit halfword offset, patches two halfwords
	FixThumbAdr     // add rd, pc, #imm8*4
)

// Fixup is a deferred rewrite: once every symbol is placed, the expression is
// evaluated in the scope it was written in and the site patched
type Fixup struct {
	Kind      FixupKind
	Offset    int // section offset of the site
	Expr      parser.Expr
	Ctx       parser.EvalContext // scope at the site; filled in by the driver
	Pos       parser.Position
	BigEndian bool // FixAbs* only
}

// EncodingError reports that a statement had no valid encoding
type EncodingError struct {
	Pos     parser.Position
	Message string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

func encErr(pos parser.Position, format string, args ...any) error {
	return &EncodingError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// Mnemonic is an instruction name split into its parts
type Mnemonic struct {
	Base     string
	Cond     uint32
	HasCond  bool
	SetFlags bool
	Pos      parser.Position
}

// SplitMnemonic parses a raw mnemonic, accepting both suffix (moveq, movs)
// and dotted (mov.eq, mov.s) forms. The dotted form wins ambiguities.
func SplitMnemonic(raw string, thumb bool, pos parser.Position) (Mnemonic, bool) {
	m := Mnemonic{Pos: pos}
	lower := strings.ToLower(raw)

	known := armMnemonics
	if thumb {
		known = thumbMnemonics
	}

	if i := strings.IndexByte(lower, '.'); i >= 0 {
		m.Base = lower[:i]
		if !known[m.Base] {
			return m, false
		}
		for _, part := range strings.Split(lower[i+1:], ".") {
			if part == "s" {
				m.SetFlags = true
				continue
			}
			if c, ok := conditionCodes[part]; ok {
				m.Cond, m.HasCond = c, true
				continue
			}
			return m, false
		}
		return m, true
	}

	if known[lower] {
		m.Base = lower
		return m, true
	}

	// suffix forms: base+cond, base+s, base+s+cond
	if len(lower) > 2 {
		if c, ok := conditionCodes[lower[len(lower)-2:]]; ok {
			rest := lower[:len(lower)-2]
			if known[rest] {
				m.Base, m.Cond, m.HasCond = rest, c, true
				return m, true
			}
			if strings.HasSuffix(rest, "s") && known[rest[:len(rest)-1]] {
				m.Base, m.Cond, m.HasCond, m.SetFlags = rest[:len(rest)-1], c, true, true
				return m, true
			}
		}
	}
	if strings.HasSuffix(lower, "s") && known[lower[:len(lower)-1]] {
		m.Base, m.SetFlags = lower[:len(lower)-1], true
		return m, true
	}
	return m, false
}

// CondBits returns the 4-bit condition, defaulting to AL
func (m Mnemonic) CondBits() uint32 {
	if m.HasCond {
		return m.Cond
	}
	return CondAL
}

// RotatedImmediate encodes an 8-bit value rotated right by an even amount,
// the ARM data-processing immediate form. Returns the 12-bit field, using the
// smallest rotation that fits.
func RotatedImmediate(value uint32) (uint32, bool) {
	for rotate := uint32(0); rotate < 32; rotate += 2 {
		imm := (value << rotate) | (value >> ((32 - rotate) % 32))
		if imm <= 0xFF {
			return ((rotate / 2) << 8) | imm, true
		}
	}
	return 0, false
}

// Encode assembles one instruction statement in the given mode
func Encode(sink Sink, thumb bool, raw string, pos parser.Position, operands [][]parser.Token) error {
	m, ok := SplitMnemonic(raw, thumb, pos)
	if !ok {
		return encErr(pos, "unknown instruction: %s", raw)
	}
	ops, err := parseOperands(sink, operands, pos)
	if err != nil {
		return err
	}
	if thumb {
		return encodeThumb(sink, m, ops)
	}
	return encodeARM(sink, m, ops)
}
