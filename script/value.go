// Package script implements the embedded scripting language used inside
// .script blocks: a lexer, a single-pass compiler to bytecode, and a
// stack-based VM with dynamically typed values.
package script

import (
	"math"
	"strconv"
	"strings"
)

// Kind tags a script value
type Kind int

const (
	KindNil Kind = iota
	KindNum
	KindStr
	KindList
	KindFunc
)

// List is a mutable, possibly cyclic sequence. Lists are shared by
// reference; cycles are detected with visited sets during serialization and
// comparison.
type List struct {
	Items []Value
}

// Value is a dynamically typed script value
type Value struct {
	Kind Kind
	Num  float64
	Str  []byte
	List *List
	Fn   *Closure
	Nat  NativeFunc
}

// NativeFunc is a host- or library-provided operation
type NativeFunc func(vm *VM, args []Value) (Value, error)

// Nil is the nil value
func Nil() Value { return Value{} }

// Num builds a number
func Num(f float64) Value { return Value{Kind: KindNum, Num: f} }

// Str builds a byte string
func Str(b []byte) Value { return Value{Kind: KindStr, Str: b} }

// StrOf builds a byte string from a Go string
func StrOf(s string) Value { return Value{Kind: KindStr, Str: []byte(s)} }

// NewList builds a list value
func NewList(items ...Value) Value {
	return Value{Kind: KindList, List: &List{Items: items}}
}

// Native wraps a native function as a value
func Native(fn NativeFunc) Value { return Value{Kind: KindFunc, Nat: fn} }

// Truthy: nil, 0, and the empty string are false
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNil:
		return false
	case KindNum:
		return v.Num != 0
	case KindStr:
		return len(v.Str) > 0
	}
	return true
}

// IsNil reports whether the value is nil
func (v Value) IsNil() bool { return v.Kind == KindNil }

// TypeName names the value's type for diagnostics
func (v Value) TypeName() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindNum:
		return "number"
	case KindStr:
		return "string"
	case KindList:
		return "list"
	default:
		return "function"
	}
}

// ToText renders a value for say/put/concatenation
func (v Value) ToText() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindNum:
		return FormatNum(v.Num)
	case KindStr:
		return string(v.Str)
	case KindList:
		var sb strings.Builder
		writeListText(&sb, v.List, map[*List]bool{})
		return sb.String()
	default:
		return "function"
	}
}

func writeListText(sb *strings.Builder, l *List, seen map[*List]bool) {
	if seen[l] {
		sb.WriteString("{circular}")
		return
	}
	seen[l] = true
	defer delete(seen, l)
	sb.WriteByte('{')
	for i, item := range l.Items {
		if i > 0 {
			sb.WriteString(", ")
		}
		if item.Kind == KindList {
			writeListText(sb, item.List, seen)
		} else {
			sb.WriteString(item.ToText())
		}
	}
	sb.WriteByte('}')
}

// FormatNum renders a number: integers without a decimal point
func FormatNum(f float64) string {
	if f > -1e15 && f < 1e15 && f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Equal compares structurally; cyclic lists compare with a visited pair set
func Equal(a, b Value) bool {
	return equalRec(a, b, map[[2]*List]bool{})
}

func equalRec(a, b Value, seen map[[2]*List]bool) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindNum:
		return a.Num == b.Num
	case KindStr:
		return string(a.Str) == string(b.Str)
	case KindList:
		if a.List == b.List {
			return true
		}
		key := [2]*List{a.List, b.List}
		if seen[key] {
			return true
		}
		seen[key] = true
		if len(a.List.Items) != len(b.List.Items) {
			return false
		}
		for i := range a.List.Items {
			if !equalRec(a.List.Items[i], b.List.Items[i], seen) {
				return false
			}
		}
		return true
	default:
		return a.Fn == b.Fn
	}
}
