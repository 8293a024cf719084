package parser

import (
	"math"
	"testing"
)

// mapCtx is a simple EvalContext over fixed values
type mapCtx struct {
	vals map[string]Value
	base uint32
	ok   bool
}

func (m *mapCtx) LookupValue(name string) (Value, bool) {
	v, ok := m.vals[name]
	return v, ok
}

func (m *mapCtx) CallValue(name string, args []Value, pos Position) (Value, error) {
	if name == "double" && len(args) == 1 {
		return NumValue(args[0].Num * 2), nil
	}
	return UnresolvedValue(name), nil
}

func (m *mapCtx) BaseValue() (uint32, bool) {
	return m.base, m.ok
}

func evalSource(t *testing.T, src string, ctx EvalContext) Value {
	t.Helper()
	lex := NewLexer(src, "expr.gvasm")
	tokens := lex.TokenizeAll()
	if lex.Errors().HasErrors() {
		t.Fatalf("lex %q: %v", src, lex.Errors())
	}
	tokens = tokens[:len(tokens)-1] // drop EOF
	e, err := ParseExpression(tokens)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	v, err := Evaluate(e, ctx)
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return v
}

func TestEvaluate_Arithmetic(t *testing.T) {
	ctx := &mapCtx{vals: map[string]Value{}, base: 0x08000000, ok: true}
	tests := []struct {
		src  string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"7 / 2", 3},       // integer operands truncate toward zero
		{"-7 / 2", -3},     // toward zero, not floor
		{"7 % 3", 1},
		{"-7 % 3", -1},
		{"7.0 / 2", 3.5},
		{"1 << 4", 16},
		{"-8 >> 1", -4},            // arithmetic shift
		{"-8 >>> 28", 0xF},         // logical shift on 32 bits
		{"0xF0 & 0x3C", 0x30},
		{"0xF0 | 0x0F", 0xFF},
		{"0xFF ^ 0x0F", 0xF0},
		{"~0", -1},
		{"!0", 1},
		{"!5", 0},
		{"1 < 2", 1},
		{"2 <= 1", 0},
		{"3 == 3", 1},
		{"3 != 3", 0},
		{"1 && 2", 1},
		{"0 || 0", 0},
		{"1 ? 10 : 20", 10},
		{"0 ? 10 : 20", 20},
		{"-2 + +3", 1},
	}
	for _, tt := range tests {
		v := evalSource(t, tt.src, ctx)
		if v.Kind != ValNum || v.Num != tt.want {
			t.Errorf("%q: expected %v, got kind=%v num=%v", tt.src, tt.want, v.Kind, v.Num)
		}
	}
}

func TestEvaluate_NaN(t *testing.T) {
	ctx := &mapCtx{base: 0x08000000, ok: true}
	v := evalSource(t, "1.5 < (0.0 / 0.0)", ctx)
	if v.Num != 0 {
		t.Errorf("comparison with NaN should be 0, got %v", v.Num)
	}
	v = evalSource(t, "1.0 + 0.0/0.0", ctx)
	if !math.IsNaN(v.Num) {
		t.Errorf("NaN should propagate through arithmetic")
	}
}

func TestEvaluate_Symbols(t *testing.T) {
	ctx := &mapCtx{
		vals: map[string]Value{
			"ten":  NumValue(10),
			"name": StrValue([]byte("gba")),
		},
		base: 0x08000000, ok: true,
	}
	if v := evalSource(t, "ten * 2 + 1", ctx); v.Num != 21 {
		t.Errorf("expected 21, got %v", v.Num)
	}
	if v := evalSource(t, "double(ten)", ctx); v.Num != 20 {
		t.Errorf("expected 20, got %v", v.Num)
	}
	if v := evalSource(t, `name == "gba"`, ctx); v.Num != 1 {
		t.Errorf("string equality failed")
	}
	v := evalSource(t, "missing + 1", ctx)
	if v.Kind != ValUnresolved {
		t.Errorf("expected unresolved, got kind=%v", v.Kind)
	}
}

func TestEvaluate_Base(t *testing.T) {
	known := &mapCtx{base: 0x08000000, ok: true}
	if v := evalSource(t, "_base + 4", known); v.Kind != ValNum || v.Num != 0x08000004 {
		t.Errorf("expected 0x08000004, got kind=%v num=%x", v.Kind, uint32(v.Num))
	}

	pending := &mapCtx{ok: false}
	v := evalSource(t, "_base * 2 + 8", pending)
	if v.Kind != ValDeferred || v.K0 != 8 || v.K1 != 2 {
		t.Errorf("expected deferred 8 + 2*base, got kind=%v k0=%v k1=%v", v.Kind, v.K0, v.K1)
	}
	// non-linear use degrades to unresolved
	v = evalSource(t, "_base * _base", pending)
	if v.Kind != ValUnresolved {
		t.Errorf("expected unresolved for non-linear base use, got kind=%v", v.Kind)
	}
}

func TestEvaluate_ShortCircuit(t *testing.T) {
	// the untaken side of && and ?: may reference unknown names
	ctx := &mapCtx{base: 0x08000000, ok: true}
	if v := evalSource(t, "0 && missing", ctx); v.Kind != ValNum || v.Num != 0 {
		t.Errorf("&& should short-circuit, got kind=%v", v.Kind)
	}
	if v := evalSource(t, "1 ? 5 : missing", ctx); v.Kind != ValNum || v.Num != 5 {
		t.Errorf("?: should be lazy, got kind=%v", v.Kind)
	}
}

func TestParse_Errors(t *testing.T) {
	bad := []string{"1 +", "(1", "1 ? 2", "* 3"}
	for _, src := range bad {
		lex := NewLexer(src, "expr.gvasm")
		tokens := lex.TokenizeAll()
		tokens = tokens[:len(tokens)-1]
		if _, err := ParseExpression(tokens); err == nil {
			t.Errorf("%q: expected a parse error", src)
		}
	}
}

func TestValue_Uint32(t *testing.T) {
	tests := []struct {
		in   float64
		want uint32
	}{
		{0, 0},
		{255, 255},
		{-1, 0xFFFFFFFF},
		{4294967296, 0},
		{-2147483648, 0x80000000},
		{3.9, 3},
	}
	for _, tt := range tests {
		if got := NumValue(tt.in).Uint32(); got != tt.want {
			t.Errorf("Uint32(%v): expected %#x, got %#x", tt.in, tt.want, got)
		}
	}
}
