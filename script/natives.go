package script

import (
	"fmt"
	"math"
	"strings"
)

// builtins wires the native operation table for one VM
func builtins(vm *VM) map[string]Value {
	g := map[string]Value{}
	reg := func(name string, fn NativeFunc) {
		g[name] = Native(fn)
	}

	// host-bound operations
	reg("put", func(vm *VM, args []Value) (Value, error) {
		vm.host.Put(joinText(args))
		return Nil(), nil
	})
	reg("say", func(vm *VM, args []Value) (Value, error) {
		vm.host.Say(joinText(args))
		return Nil(), nil
	})
	reg("printf", func(vm *VM, args []Value) (Value, error) {
		if len(args) == 0 || args[0].Kind != KindStr {
			return Nil(), fmt.Errorf("printf requires a format string")
		}
		vm.host.Say(formatPrintf(string(args[0].Str), args[1:]))
		return Nil(), nil
	})
	reg("error", func(vm *VM, args []Value) (Value, error) {
		return Nil(), fmt.Errorf("%s", joinText(args))
	})
	reg("lookup", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind != KindStr {
			return Nil(), fmt.Errorf("lookup requires a name string")
		}
		v, ok := vm.host.Lookup(string(args[0].Str))
		if !ok {
			return Nil(), nil
		}
		return v, nil
	})
	reg("embed", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind != KindStr {
			return Nil(), fmt.Errorf("embed requires a path string")
		}
		b, err := vm.host.ReadBinary(string(args[0].Str))
		if err != nil {
			return Nil(), err
		}
		return Str(b), nil
	})

	for _, spec := range []struct {
		name  string
		width int
		be    bool
	}{
		{"i8", 1, false}, {"i16", 2, false}, {"i32", 4, false},
		{"b8", 1, true}, {"b16", 2, true}, {"b32", 4, true},
	} {
		spec := spec
		reg(spec.name, func(vm *VM, args []Value) (Value, error) {
			vals, err := flattenNums(args)
			if err != nil {
				return Nil(), err
			}
			return Nil(), vm.host.EmitInts(spec.width, spec.be, vals)
		})
		reg(spec.name+"fill", func(vm *VM, args []Value) (Value, error) {
			if len(args) < 1 || len(args) > 2 || args[0].Kind != KindNum {
				return Nil(), fmt.Errorf("%sfill requires a count and an optional value", spec.name)
			}
			val := 0.0
			if len(args) == 2 {
				if args[1].Kind != KindNum {
					return Nil(), fmt.Errorf("fill value must be a number")
				}
				val = args[1].Num
			}
			return Nil(), vm.host.EmitFill(spec.width, spec.be, int(args[0].Num), val)
		})
	}

	// sequences and lists
	reg("range", func(vm *VM, args []Value) (Value, error) {
		start, stop, step := 0.0, 0.0, 1.0
		switch len(args) {
		case 1:
			stop = args[0].Num
		case 2:
			start, stop = args[0].Num, args[1].Num
		case 3:
			start, stop, step = args[0].Num, args[1].Num, args[2].Num
		default:
			return Nil(), fmt.Errorf("range requires 1 to 3 numbers")
		}
		if step == 0 {
			return Nil(), fmt.Errorf("range step cannot be zero")
		}
		var items []Value
		if step > 0 {
			for v := start; v < stop; v += step {
				items = append(items, Num(v))
			}
		} else {
			for v := start; v > stop; v += step {
				items = append(items, Num(v))
			}
		}
		return NewList(items...), nil
	})
	reg("size", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil(), fmt.Errorf("size requires one argument")
		}
		switch args[0].Kind {
		case KindList:
			return Num(float64(len(args[0].List.Items))), nil
		case KindStr:
			return Num(float64(len(args[0].Str))), nil
		}
		return Nil(), nil
	})
	reg("list.new", func(vm *VM, args []Value) (Value, error) {
		if len(args) < 1 || args[0].Kind != KindNum {
			return Nil(), fmt.Errorf("list.new requires a size")
		}
		fill := Nil()
		if len(args) > 1 {
			fill = args[1]
		}
		items := make([]Value, int(args[0].Num))
		for i := range items {
			items[i] = fill
		}
		return NewList(items...), nil
	})
	reg("list.push", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 2 || args[0].Kind != KindList {
			return Nil(), fmt.Errorf("list.push requires a list and a value")
		}
		args[0].List.Items = append(args[0].List.Items, args[1])
		return args[0], nil
	})
	reg("list.pop", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind != KindList {
			return Nil(), fmt.Errorf("list.pop requires a list")
		}
		items := args[0].List.Items
		if len(items) == 0 {
			return Nil(), nil
		}
		v := items[len(items)-1]
		args[0].List.Items = items[:len(items)-1]
		return v, nil
	})

	reg("str.slice", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 3 || args[0].Kind != KindStr ||
			args[1].Kind != KindNum || args[2].Kind != KindNum {
			return Nil(), fmt.Errorf("str.slice requires a string, start, and length")
		}
		s := args[0].Str
		start, n := int(args[1].Num), int(args[2].Num)
		if start < 0 || n < 0 || start+n > len(s) {
			return Nil(), fmt.Errorf("str.slice out of range")
		}
		return Str(append([]byte(nil), s[start:start+n]...)), nil
	})

	// numeric library
	num1 := func(name string, fn func(float64) float64) {
		reg(name, func(vm *VM, args []Value) (Value, error) {
			if len(args) != 1 || args[0].Kind != KindNum {
				return Nil(), fmt.Errorf("%s requires a number", name)
			}
			return Num(fn(args[0].Num)), nil
		})
	}
	num1("num.floor", math.Floor)
	num1("num.ceil", math.Ceil)
	num1("num.abs", math.Abs)
	num1("num.sqrt", math.Sqrt)
	// half-to-even, so repeated builds agree on exact half-integers
	num1("num.round", math.RoundToEven)
	reg("num.min", func(vm *VM, args []Value) (Value, error) {
		return numFold(args, math.Min)
	})
	reg("num.max", func(vm *VM, args []Value) (Value, error) {
		return numFold(args, math.Max)
	})
	reg("num.isint", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind != KindNum {
			return Nil(), fmt.Errorf("num.isint requires a number")
		}
		return boolNum(args[0].Num == math.Trunc(args[0].Num)), nil
	})

	int2 := func(name string, fn func(int32, int32) int32) {
		reg(name, func(vm *VM, args []Value) (Value, error) {
			if len(args) != 2 || args[0].Kind != KindNum || args[1].Kind != KindNum {
				return Nil(), fmt.Errorf("%s requires two numbers", name)
			}
			return Num(float64(fn(toI32(args[0].Num), toI32(args[1].Num)))), nil
		})
	}
	int2("int.and", func(a, b int32) int32 { return a & b })
	int2("int.or", func(a, b int32) int32 { return a | b })
	int2("int.xor", func(a, b int32) int32 { return a ^ b })
	int2("int.shl", func(a, b int32) int32 { return a << (uint32(b) & 31) })
	int2("int.sar", func(a, b int32) int32 { return a >> (uint32(b) & 31) })
	int2("int.shr", func(a, b int32) int32 { return int32(uint32(a) >> (uint32(b) & 31)) })
	reg("int.not", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind != KindNum {
			return Nil(), fmt.Errorf("int.not requires a number")
		}
		return Num(float64(^toI32(args[0].Num))), nil
	})

	registerStructOps(reg)
	registerJSONOps(reg)
	registerPickleOps(reg)
	registerMediaOps(reg)

	return g
}

func toI32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	t := math.Trunc(f)
	m := math.Mod(t, 4294967296)
	if m < 0 {
		m += 4294967296
	}
	return int32(uint32(m))
}

func joinText(args []Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.ToText()
	}
	return strings.Join(parts, " ")
}

func numFold(args []Value, fn func(a, b float64) float64) (Value, error) {
	if len(args) == 0 {
		return Nil(), fmt.Errorf("requires at least one number")
	}
	acc := math.NaN()
	first := true
	for _, a := range args {
		if a.Kind != KindNum {
			return Nil(), fmt.Errorf("requires numbers")
		}
		if first {
			acc = a.Num
			first = false
		} else {
			acc = fn(acc, a.Num)
		}
	}
	return Num(acc), nil
}

// flattenNums flattens lists of numbers for i8/i16/... emission
func flattenNums(args []Value) ([]float64, error) {
	var out []float64
	var walk func(v Value) error
	walk = func(v Value) error {
		switch v.Kind {
		case KindNum:
			out = append(out, v.Num)
		case KindList:
			for _, item := range v.List.Items {
				if err := walk(item); err != nil {
					return err
				}
			}
		case KindStr:
			for _, b := range v.Str {
				out = append(out, float64(b))
			}
		default:
			return fmt.Errorf("cannot emit a %s", v.TypeName())
		}
		return nil
	}
	for _, a := range args {
		if err := walk(a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// formatPrintf renders the script printf verbs %d %x %X %b %o %f %s %%
func formatPrintf(format string, args []Value) string {
	var sb strings.Builder
	argi := 0
	next := func() Value {
		if argi >= len(args) {
			return Nil()
		}
		v := args[argi]
		argi++
		return v
	}
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' || i+1 >= len(format) {
			sb.WriteByte(ch)
			continue
		}
		i++
		switch verb := format[i]; verb {
		case '%':
			sb.WriteByte('%')
		case 'd':
			sb.WriteString(fmt.Sprintf("%d", int64(next().Num)))
		case 'x':
			sb.WriteString(fmt.Sprintf("%x", uint32(toI32(next().Num))))
		case 'X':
			sb.WriteString(fmt.Sprintf("%X", uint32(toI32(next().Num))))
		case 'b':
			sb.WriteString(fmt.Sprintf("%b", uint32(toI32(next().Num))))
		case 'o':
			sb.WriteString(fmt.Sprintf("%o", uint32(toI32(next().Num))))
		case 'f':
			sb.WriteString(fmt.Sprintf("%v", next().Num))
		case 's':
			sb.WriteString(next().ToText())
		default:
			sb.WriteByte('%')
			sb.WriteByte(verb)
		}
	}
	return sb.String()
}
