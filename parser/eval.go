package parser

import (
	"math"
	"strconv"
)

// ValueKind tags the result of evaluating an expression
type ValueKind int

const (
	// ValNum is a concrete number
	ValNum ValueKind = iota
	// ValStr is a byte string
	ValStr
	// ValList is a sequence of values (script exports); data directives
	// flatten lists
	ValList
	// ValDeferred is the closed linear form K0 + K1*base, usable before the
	// section base address is fixed
	ValDeferred
	// ValUnresolved means a referenced symbol has no value yet
	ValUnresolved
)

// Value is the result of evaluating an expression
type Value struct {
	Kind    ValueKind
	Num     float64
	IsInt   bool    // the value came from integer-typed operands
	Str     []byte  // ValStr payload
	List    []Value // ValList payload
	K0, K1  float64
	Missing string // ValUnresolved: name of the first unknown symbol
}

// ListValue builds a list value
func ListValue(items []Value) Value {
	return Value{Kind: ValList, List: items}
}

// NumValue builds a concrete integer-typed number
func NumValue(v float64) Value {
	return Value{Kind: ValNum, Num: v, IsInt: v == math.Trunc(v) && !math.IsInf(v, 0)}
}

// FloatValue builds a concrete float-typed number
func FloatValue(v float64) Value {
	return Value{Kind: ValNum, Num: v}
}

// StrValue builds a string value
func StrValue(b []byte) Value {
	return Value{Kind: ValStr, Str: b}
}

// DeferredValue builds the linear form k0 + k1*base
func DeferredValue(k0, k1 float64) Value {
	return Value{Kind: ValDeferred, K0: k0, K1: k1}
}

// UnresolvedValue marks a missing symbol
func UnresolvedValue(name string) Value {
	return Value{Kind: ValUnresolved, Missing: name}
}

// Uint32 truncates a numeric value to 32 bits
func (v Value) Uint32() uint32 {
	return toUint32(v.Num)
}

// Int64 truncates a numeric value toward zero
func (v Value) Int64() int64 {
	if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
		return 0
	}
	return int64(math.Trunc(v.Num))
}

// Truthy reports the boolean interpretation: nonzero numbers and nonempty
// strings are true
func (v Value) Truthy() bool {
	if v.Kind == ValStr {
		return len(v.Str) > 0
	}
	return v.Num != 0 && !math.IsNaN(v.Num)
}

func toUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	t := math.Trunc(f)
	// reduce into 32-bit range, preserving two's complement wrap
	m := math.Mod(t, 4294967296)
	if m < 0 {
		m += 4294967296
	}
	return uint32(m)
}

func toInt32(f float64) int32 {
	return int32(toUint32(f))
}

// EvalContext supplies symbol values to expression evaluation. The assembler
// scope implements it.
type EvalContext interface {
	// LookupValue resolves a (possibly dotted) name to a value. ok=false
	// means the name is not declared at all.
	LookupValue(name string) (Value, bool)
	// CallValue invokes a parameterized constant
	CallValue(name string, args []Value, pos Position) (Value, error)
	// BaseValue returns the section base address, and whether it is fixed yet
	BaseValue() (uint32, bool)
}

// Evaluate computes the value of an expression. Unknown symbols yield
// ValUnresolved rather than an error: whether that is fatal depends on where
// the expression is used.
func Evaluate(e Expr, ctx EvalContext) (Value, error) {
	switch v := e.(type) {
	case *NumExpr:
		if v.IsFloat {
			return FloatValue(v.Val), nil
		}
		return NumValue(v.Val), nil

	case *StrExpr:
		return StrValue(v.Val), nil

	case *NameExpr:
		if v.Name == "_base" {
			if base, ok := ctx.BaseValue(); ok {
				return NumValue(float64(base)), nil
			}
			return DeferredValue(0, 1), nil
		}
		if val, ok := ctx.LookupValue(v.Name); ok {
			return val, nil
		}
		return UnresolvedValue(v.Name), nil

	case *CallExpr:
		args := make([]Value, len(v.Args))
		for i, a := range v.Args {
			av, err := Evaluate(a, ctx)
			if err != nil {
				return Value{}, err
			}
			if av.Kind == ValUnresolved {
				return av, nil
			}
			args[i] = av
		}
		return ctx.CallValue(v.Name, args, v.Position)

	case *UnaryExpr:
		return evalUnary(v, ctx)

	case *BinaryExpr:
		return evalBinary(v, ctx)

	case *CondExpr:
		cond, err := Evaluate(v.Cond, ctx)
		if err != nil {
			return Value{}, err
		}
		if cond.Kind == ValUnresolved || cond.Kind == ValDeferred {
			return degrade(cond), nil
		}
		if cond.Truthy() {
			return Evaluate(v.Then, ctx)
		}
		return Evaluate(v.Else, ctx)

	case *ConcatExpr:
		var out []byte
		for _, part := range v.Parts {
			pv, err := Evaluate(part, ctx)
			if err != nil {
				return Value{}, err
			}
			switch pv.Kind {
			case ValStr:
				out = append(out, pv.Str...)
			case ValNum:
				out = append(out, []byte(FormatNum(pv.Num))...)
			default:
				return degrade(pv), nil
			}
		}
		return StrValue(out), nil

	default:
		return Value{}, Errorf(e.Pos(), ErrorSyntax, "cannot evaluate expression")
	}
}

// degrade converts a deferred value to unresolved for contexts that cannot
// keep a linear form alive
func degrade(v Value) Value {
	if v.Kind == ValDeferred {
		return UnresolvedValue("_base")
	}
	return v
}

func evalUnary(e *UnaryExpr, ctx EvalContext) (Value, error) {
	x, err := Evaluate(e.X, ctx)
	if err != nil {
		return Value{}, err
	}
	if x.Kind == ValUnresolved {
		return x, nil
	}
	if x.Kind == ValDeferred {
		switch e.Op {
		case TokenPlus:
			return x, nil
		case TokenMinus:
			return DeferredValue(-x.K0, -x.K1), nil
		}
		return degrade(x), nil
	}
	if x.Kind == ValStr {
		return Value{}, Errorf(e.Position, ErrorSyntax, "cannot apply %s to a string", tokenNames[e.Op])
	}
	switch e.Op {
	case TokenPlus:
		return x, nil
	case TokenMinus:
		return Value{Kind: ValNum, Num: -x.Num, IsInt: x.IsInt}, nil
	case TokenExclaim:
		if x.Truthy() {
			return NumValue(0), nil
		}
		return NumValue(1), nil
	case TokenTilde:
		return NumValue(float64(^toInt32(x.Num))), nil
	}
	return Value{}, Errorf(e.Position, ErrorSyntax, "unknown unary operator")
}

func evalBinary(e *BinaryExpr, ctx EvalContext) (Value, error) {
	x, err := Evaluate(e.X, ctx)
	if err != nil {
		return Value{}, err
	}
	if x.Kind == ValUnresolved {
		return x, nil
	}

	// short-circuit forms evaluate the right side lazily
	if e.Op == TokenAndAnd || e.Op == TokenOrOr {
		if x.Kind == ValDeferred {
			return degrade(x), nil
		}
		if e.Op == TokenAndAnd && !x.Truthy() {
			return NumValue(0), nil
		}
		if e.Op == TokenOrOr && x.Truthy() {
			return NumValue(1), nil
		}
		y, err := Evaluate(e.Y, ctx)
		if err != nil {
			return Value{}, err
		}
		if y.Kind == ValUnresolved || y.Kind == ValDeferred {
			return degrade(y), nil
		}
		if y.Truthy() {
			return NumValue(1), nil
		}
		return NumValue(0), nil
	}

	y, err := Evaluate(e.Y, ctx)
	if err != nil {
		return Value{}, err
	}
	if y.Kind == ValUnresolved {
		return y, nil
	}

	// string operands: only equality comparisons and concatenating + apply
	if x.Kind == ValStr || y.Kind == ValStr {
		return evalStringBinary(e, x, y)
	}

	if x.Kind == ValDeferred || y.Kind == ValDeferred {
		return evalDeferredBinary(e.Op, x, y), nil
	}

	return evalNumBinary(e.Op, x, y), nil
}

func evalStringBinary(e *BinaryExpr, x, y Value) (Value, error) {
	switch e.Op {
	case TokenPlus:
		if x.Kind == ValStr && y.Kind == ValStr {
			out := make([]byte, 0, len(x.Str)+len(y.Str))
			out = append(out, x.Str...)
			out = append(out, y.Str...)
			return StrValue(out), nil
		}
	case TokenEqualEqual:
		return boolValue(x.Kind == ValStr && y.Kind == ValStr && string(x.Str) == string(y.Str)), nil
	case TokenNotEqual:
		return boolValue(!(x.Kind == ValStr && y.Kind == ValStr && string(x.Str) == string(y.Str))), nil
	}
	return Value{}, Errorf(e.Position, ErrorSyntax, "invalid operands for %s", tokenNames[e.Op])
}

// evalDeferredBinary keeps the linear form alive through +, -, and scaling
// by a constant; anything else loses the closed form
func evalDeferredBinary(op TokenType, x, y Value) Value {
	lin := func(v Value) (k0, k1 float64) {
		if v.Kind == ValDeferred {
			return v.K0, v.K1
		}
		return v.Num, 0
	}
	xk0, xk1 := lin(x)
	yk0, yk1 := lin(y)
	switch op {
	case TokenPlus:
		return foldDeferred(xk0+yk0, xk1+yk1)
	case TokenMinus:
		return foldDeferred(xk0-yk0, xk1-yk1)
	case TokenStar:
		if xk1 == 0 {
			return foldDeferred(xk0*yk0, xk0*yk1)
		}
		if yk1 == 0 {
			return foldDeferred(xk0*yk0, xk1*yk0)
		}
	}
	return UnresolvedValue("_base")
}

func foldDeferred(k0, k1 float64) Value {
	if k1 == 0 {
		return NumValue(k0)
	}
	return DeferredValue(k0, k1)
}

func boolValue(b bool) Value {
	if b {
		return NumValue(1)
	}
	return NumValue(0)
}

func evalNumBinary(op TokenType, x, y Value) Value {
	a, b := x.Num, y.Num
	bothInt := x.IsInt && y.IsInt
	switch op {
	case TokenPlus:
		return Value{Kind: ValNum, Num: a + b, IsInt: bothInt}
	case TokenMinus:
		return Value{Kind: ValNum, Num: a - b, IsInt: bothInt}
	case TokenStar:
		return Value{Kind: ValNum, Num: a * b, IsInt: bothInt}
	case TokenSlash:
		if bothInt {
			if b == 0 {
				return FloatValue(math.NaN())
			}
			return NumValue(math.Trunc(a / b))
		}
		return FloatValue(a / b)
	case TokenPercent:
		if bothInt {
			if b == 0 {
				return FloatValue(math.NaN())
			}
			return NumValue(math.Trunc(math.Mod(a, b)))
		}
		return FloatValue(math.Mod(a, b))
	case TokenLShift:
		return NumValue(float64(toInt32(a) << (toUint32(b) & 31)))
	case TokenRShift:
		return NumValue(float64(toInt32(a) >> (toUint32(b) & 31)))
	case TokenRShiftU:
		return NumValue(float64(toUint32(a) >> (toUint32(b) & 31)))
	case TokenAmpersand:
		return NumValue(float64(toInt32(a) & toInt32(b)))
	case TokenPipe:
		return NumValue(float64(toInt32(a) | toInt32(b)))
	case TokenCaret:
		return NumValue(float64(toInt32(a) ^ toInt32(b)))
	case TokenEqualEqual:
		return boolValue(a == b)
	case TokenNotEqual:
		return boolValue(a != b)
	case TokenLess:
		return boolValue(a < b)
	case TokenLessEqual:
		return boolValue(a <= b)
	case TokenGreater:
		return boolValue(a > b)
	case TokenGreaterEqual:
		return boolValue(a >= b)
	}
	return FloatValue(math.NaN())
}

// FormatNum renders a number the way diagnostics and interpolation show it:
// integers without a decimal point
func FormatNum(f float64) string {
	if math.IsNaN(f) {
		return "nan"
	}
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
