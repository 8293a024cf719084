package encoder

import (
	"strings"

	"github.com/lookbusy1344/gba-assembler/parser"
)

// OperandKind classifies a parsed operand
type OperandKind int

const (
	OpReg          OperandKind = iota // r3
	OpRegWriteback                    // r3! (block transfer base)
	OpImm                             // #expr
	OpMem                             // [rn, ...] with optional writeback
	OpRegList                         // {r0, r4-r6, lr}
	OpEq                              // =expr (ldr pseudo)
	OpShift                           // lsl #2, ror r3, rrx
	OpField                           // (Struct.field) typed suffix
	OpExpr                            // bare expression, e.g. a branch target
)

// Shift types in their 2-bit encoding order
const (
	ShiftLSL = iota
	ShiftLSR
	ShiftASR
	ShiftROR
)

// ShiftSpec describes a barrel shifter operand
type ShiftSpec struct {
	Type   int
	RRX    bool
	ByReg  bool
	Reg    int
	Amount parser.Expr
	Pos    parser.Position
}

// MemOperand is an address operand: [rn], [rn, #imm], [rn, ±rm, shift]
type MemOperand struct {
	Rn        int
	Closed    bool // lone [rn] with nothing inside; post-index candidate
	WriteBack bool // trailing !
	HasOffset bool
	OffIsReg  bool
	Neg       bool // explicit minus on a register offset
	OffReg    int
	OffExpr   parser.Expr
	Shift     *ShiftSpec
}

// Operand is one parsed instruction operand
type Operand struct {
	Kind    OperandKind
	Pos     parser.Position
	Reg     int
	Neg     bool // -rN post-index offset
	Expr    parser.Expr
	Mem     *MemOperand
	RegList uint16
	Shift   *ShiftSpec
	Field   string
}

var shiftNames = map[string]int{
	"lsl": ShiftLSL,
	"lsr": ShiftLSR,
	"asr": ShiftASR,
	"ror": ShiftROR,
}

func parseOperands(sink Sink, raw [][]parser.Token, pos parser.Position) ([]Operand, error) {
	ops := make([]Operand, 0, len(raw))
	for _, tokens := range raw {
		op, err := parseOperand(sink, tokens, pos)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func parseOperand(sink Sink, tokens []parser.Token, stmtPos parser.Position) (Operand, error) {
	if len(tokens) == 0 {
		return Operand{}, encErr(stmtPos, "empty operand")
	}
	first := tokens[0]
	pos := first.Pos

	switch first.Type {
	case parser.TokenEqual:
		e, err := parser.ParseExpression(tokens[1:])
		if err != nil {
			return Operand{}, err
		}
		return Operand{Kind: OpEq, Pos: pos, Expr: e}, nil

	case parser.TokenHash:
		e, err := parser.ParseExpression(tokens[1:])
		if err != nil {
			return Operand{}, err
		}
		return Operand{Kind: OpImm, Pos: pos, Expr: e}, nil

	case parser.TokenLBracket:
		return parseMemOperand(sink, tokens, pos)

	case parser.TokenLBrace:
		return parseRegList(sink, tokens, pos)

	case parser.TokenLParen:
		// (Struct.field) typed-access suffix
		if len(tokens) == 3 && tokens[1].Type == parser.TokenIdentifier && tokens[2].Type == parser.TokenRParen {
			if _, _, _, ok := sink.FieldRef(tokens[1].Literal); ok {
				return Operand{Kind: OpField, Pos: pos, Field: tokens[1].Literal}, nil
			}
		}

	case parser.TokenMinus:
		// -rN as a post-index offset operand
		if len(tokens) == 2 && tokens[1].Type == parser.TokenIdentifier {
			if r, ok := sink.RegIndex(tokens[1].Literal); ok {
				return Operand{Kind: OpReg, Pos: pos, Reg: r, Neg: true}, nil
			}
		}

	case parser.TokenIdentifier:
		if len(tokens) == 1 {
			if r, ok := sink.RegIndex(first.Literal); ok {
				return Operand{Kind: OpReg, Pos: pos, Reg: r}, nil
			}
		}
		if len(tokens) == 2 && tokens[1].Type == parser.TokenExclaim {
			if r, ok := sink.RegIndex(first.Literal); ok {
				return Operand{Kind: OpRegWriteback, Pos: pos, Reg: r}, nil
			}
		}
		if _, ok := shiftNames[strings.ToLower(first.Literal)]; ok || strings.ToLower(first.Literal) == "rrx" {
			sh, rest, err := parseShift(sink, tokens)
			if err != nil {
				return Operand{}, err
			}
			if len(rest) == 0 {
				return Operand{Kind: OpShift, Pos: pos, Shift: sh}, nil
			}
		}
	}

	e, err := parser.ParseExpression(tokens)
	if err != nil {
		return Operand{}, err
	}
	return Operand{Kind: OpExpr, Pos: pos, Expr: e}, nil
}

// parseShift parses "lsl #expr", "lsl rN", or "rrx", returning leftover tokens
func parseShift(sink Sink, tokens []parser.Token) (*ShiftSpec, []parser.Token, error) {
	name := strings.ToLower(tokens[0].Literal)
	sh := &ShiftSpec{Pos: tokens[0].Pos}
	if name == "rrx" {
		sh.Type = ShiftROR
		sh.RRX = true
		return sh, tokens[1:], nil
	}
	sh.Type = shiftNames[name]
	rest := tokens[1:]
	if len(rest) == 0 {
		return nil, nil, encErr(tokens[0].Pos, "missing shift amount after %s", name)
	}
	if rest[0].Type == parser.TokenHash {
		p := parser.NewExprParser(rest[1:])
		e, err := p.Parse()
		if err != nil {
			return nil, nil, err
		}
		sh.Amount = e
		return sh, p.Rest(), nil
	}
	if rest[0].Type == parser.TokenIdentifier {
		if r, ok := sink.RegIndex(rest[0].Literal); ok {
			sh.ByReg = true
			sh.Reg = r
			return sh, rest[1:], nil
		}
	}
	return nil, nil, encErr(rest[0].Pos, "invalid shift amount")
}

func parseMemOperand(sink Sink, tokens []parser.Token, pos parser.Position) (Operand, error) {
	mem := &MemOperand{}
	i := 1
	next := func() parser.Token {
		if i < len(tokens) {
			return tokens[i]
		}
		return parser.Token{Type: parser.TokenEOF, Pos: pos}
	}

	tok := next()
	if tok.Type != parser.TokenIdentifier {
		return Operand{}, encErr(pos, "expected base register in address operand")
	}
	rn, ok := sink.RegIndex(tok.Literal)
	if !ok {
		return Operand{}, encErr(tok.Pos, "invalid base register %q", tok.Literal)
	}
	mem.Rn = rn
	i++

	if next().Type == parser.TokenComma {
		i++
		neg := false
		switch next().Type {
		case parser.TokenMinus:
			neg = true
			i++
		case parser.TokenPlus:
			i++
		}
		tok = next()
		if tok.Type == parser.TokenHash {
			i++
			// immediate offset up to the closing bracket
			depth := 0
			start := i
			for i < len(tokens) {
				t := tokens[i]
				if t.Type == parser.TokenLBracket || t.Type == parser.TokenLParen {
					depth++
				}
				if t.Type == parser.TokenRParen {
					depth--
				}
				if t.Type == parser.TokenRBracket {
					if depth == 0 {
						break
					}
					depth--
				}
				i++
			}
			e, err := parser.ParseExpression(tokens[start:i])
			if err != nil {
				return Operand{}, err
			}
			if neg {
				e = &parser.UnaryExpr{Position: e.Pos(), Op: parser.TokenMinus, X: e}
			}
			mem.HasOffset = true
			mem.OffExpr = e
		} else if tok.Type == parser.TokenIdentifier {
			r, ok := sink.RegIndex(tok.Literal)
			if !ok {
				return Operand{}, encErr(tok.Pos, "invalid offset register %q", tok.Literal)
			}
			mem.HasOffset = true
			mem.OffIsReg = true
			mem.OffReg = r
			mem.Neg = neg
			i++
			if next().Type == parser.TokenComma {
				i++
				sh, rest, err := parseShift(sink, tokens[i:])
				if err != nil {
					return Operand{}, err
				}
				mem.Shift = sh
				i = len(tokens) - len(rest)
			}
		} else {
			return Operand{}, encErr(tok.Pos, "invalid address offset")
		}
	} else {
		mem.Closed = true
	}

	if next().Type != parser.TokenRBracket {
		return Operand{}, encErr(next().Pos, "expected ']' in address operand")
	}
	i++
	if next().Type == parser.TokenExclaim {
		mem.WriteBack = true
		mem.Closed = false
		i++
	}
	if i != len(tokens) {
		return Operand{}, encErr(next().Pos, "unexpected tokens after address operand")
	}
	return Operand{Kind: OpMem, Pos: pos, Mem: mem}, nil
}

func parseRegList(sink Sink, tokens []parser.Token, pos parser.Position) (Operand, error) {
	var list uint16
	i := 1
	for i < len(tokens) {
		tok := tokens[i]
		if tok.Type == parser.TokenRBrace {
			i++
			break
		}
		if tok.Type == parser.TokenComma {
			i++
			continue
		}
		if tok.Type != parser.TokenIdentifier {
			return Operand{}, encErr(tok.Pos, "expected register in register list")
		}
		lo, ok := sink.RegIndex(tok.Literal)
		if !ok {
			return Operand{}, encErr(tok.Pos, "invalid register %q in register list", tok.Literal)
		}
		hi := lo
		if i+2 < len(tokens) && tokens[i+1].Type == parser.TokenMinus && tokens[i+2].Type == parser.TokenIdentifier {
			h, ok := sink.RegIndex(tokens[i+2].Literal)
			if !ok {
				return Operand{}, encErr(tokens[i+2].Pos, "invalid register %q in register list", tokens[i+2].Literal)
			}
			hi = h
			i += 2
		}
		if hi < lo {
			return Operand{}, encErr(tok.Pos, "descending register range in register list")
		}
		for r := lo; r <= hi; r++ {
			list |= 1 << uint(r)
		}
		i++
	}
	if i != len(tokens) {
		return Operand{}, encErr(tokens[i].Pos, "unexpected tokens after register list")
	}
	if list == 0 {
		return Operand{}, encErr(pos, "empty register list")
	}
	return Operand{Kind: OpRegList, Pos: pos, RegList: list}, nil
}

// resolveU32 evaluates an expression and requires a concrete number now.
// Deferred and unresolved values are not acceptable in this position.
func resolveU32(sink Sink, e parser.Expr, what string) (uint32, error) {
	v, err := sink.Eval(e)
	if err != nil {
		return 0, err
	}
	switch v.Kind {
	case parser.ValNum:
		return v.Uint32(), nil
	case parser.ValStr:
		return 0, encErr(e.Pos(), "%s must be a number, got a string", what)
	default:
		return 0, encErr(e.Pos(), "%s is not resolvable at this point", what)
	}
}

// resolveI64 evaluates an expression to a signed integer
func resolveI64(sink Sink, e parser.Expr, what string) (int64, error) {
	v, err := sink.Eval(e)
	if err != nil {
		return 0, err
	}
	if v.Kind != parser.ValNum {
		return 0, encErr(e.Pos(), "%s is not resolvable at this point", what)
	}
	return v.Int64(), nil
}
