package script

import (
	"errors"
	"math"

	"github.com/lookbusy1344/gba-assembler/parser"
)

// Host supplies the script's side effects: splicing assembly, emitting
// bytes, the export/lookup bridge, output, and file reads.
type Host interface {
	Put(text string)
	EmitInts(width int, bigEndian bool, vals []float64) error
	EmitFill(width int, bigEndian bool, count int, val float64) error
	Export(name string, v Value, pos parser.Position) error
	Lookup(name string) (Value, bool)
	Say(s string)
	ReadBinary(path string) ([]byte, error)
}

// errExit stops the VM without an error (the exit statement)
var errExit = errors.New("script exit")

// frame is one activation record: a slot per local plus the lexical parent
type frame struct {
	slots  []Value
	parent *frame
}

// VM executes compiled script bytecode
type VM struct {
	host    Host
	ns      string // .script block namespace, applied to exports
	globals map[string]Value
	depth   int
}

// NewVM builds a VM bound to a host. ns, when non-empty, prefixes exported
// names.
func NewVM(host Host, ns string) *VM {
	vm := &VM{host: host, ns: ns}
	vm.globals = builtins(vm)
	return vm
}

// Run executes a compiled script to completion
func (vm *VM) Run(proto *Proto) error {
	_, err := vm.call(&Closure{proto: proto}, nil)
	if errors.Is(err, errExit) {
		return nil
	}
	return err
}

// Run compiles and executes a script block
func Run(source string, origin parser.Position, ns string, host Host) error {
	proto, err := Compile(source, origin)
	if err != nil {
		return err
	}
	return NewVM(host, ns).Run(proto)
}

const maxCallDepth = 200

func (vm *VM) call(cl *Closure, args []Value) (Value, error) {
	if vm.depth >= maxCallDepth {
		return Nil(), parser.NewError(parser.Position{}, parser.ErrorScript, "call stack overflow")
	}
	vm.depth++
	defer func() { vm.depth-- }()

	proto := cl.proto
	f := &frame{slots: make([]Value, proto.numSlots), parent: cl.parent}
	for i := 0; i < proto.numParams; i++ {
		if i < len(args) {
			f.slots[i] = args[i]
		}
	}

	stack := make([]Value, 0, 16)
	push := func(v Value) { stack = append(stack, v) }
	pop := func() Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	errAt := func(pos parser.Position, format string, a ...any) error {
		return parser.Errorf(pos, parser.ErrorScript, format, a...)
	}

	pc := 0
	for pc < len(proto.code) {
		in := proto.code[pc]
		pc++
		switch in.op {
		case opNil:
			push(Nil())
		case opConst:
			push(proto.consts[in.a])
		case opPop:
			pop()

		case opLoad:
			fr := f
			for d := 0; d < in.a; d++ {
				fr = fr.parent
			}
			push(fr.slots[in.b])
		case opStore:
			fr := f
			for d := 0; d < in.a; d++ {
				fr = fr.parent
			}
			fr.slots[in.b] = pop()

		case opGlobal:
			name := string(proto.consts[in.a].Str)
			v, ok := vm.globals[name]
			if !ok {
				return Nil(), errAt(in.pos, "unknown name %q", name)
			}
			push(v)

		case opNewList:
			items := make([]Value, in.a)
			for i := in.a - 1; i >= 0; i-- {
				items[i] = pop()
			}
			push(NewList(items...))

		case opIndex:
			idx := pop()
			base := pop()
			v, err := indexValue(base, idx, in.pos)
			if err != nil {
				return Nil(), err
			}
			push(v)

		case opSetIndex:
			val := pop()
			idx := pop()
			base := pop()
			if base.Kind != KindList || idx.Kind != KindNum {
				return Nil(), errAt(in.pos, "cannot assign into a %s", base.TypeName())
			}
			i := int(idx.Num)
			if i < 0 || i >= len(base.List.Items) {
				return Nil(), errAt(in.pos, "list index %d out of range", i)
			}
			base.List.Items[i] = val

		case opLen:
			v := pop()
			switch v.Kind {
			case KindList:
				push(Num(float64(len(v.List.Items))))
			case KindStr:
				push(Num(float64(len(v.Str))))
			default:
				return Nil(), errAt(in.pos, "%s has no length", v.TypeName())
			}

		case opAdd, opSub, opMul, opDiv, opMod, opPow:
			b := pop()
			a := pop()
			if a.Kind != KindNum || b.Kind != KindNum {
				return Nil(), errAt(in.pos, "arithmetic on %s and %s", a.TypeName(), b.TypeName())
			}
			push(Num(arith(in.op, a.Num, b.Num)))

		case opCat:
			b := pop()
			a := pop()
			push(StrOf(a.ToText() + b.ToText()))

		case opNeg:
			v := pop()
			if v.Kind != KindNum {
				return Nil(), errAt(in.pos, "cannot negate a %s", v.TypeName())
			}
			push(Num(-v.Num))
		case opNot:
			v := pop()
			if v.Truthy() {
				push(Num(0))
			} else {
				push(Num(1))
			}

		case opEq:
			b := pop()
			a := pop()
			push(boolNum(Equal(a, b)))
		case opNe:
			b := pop()
			a := pop()
			push(boolNum(!Equal(a, b)))
		case opLt, opLe, opGt, opGe:
			b := pop()
			a := pop()
			r, err := compare(in.op, a, b, in.pos)
			if err != nil {
				return Nil(), err
			}
			push(r)

		case opJump:
			pc = in.a
		case opJumpFalse:
			if !pop().Truthy() {
				pc = in.a
			}
		case opAndJump:
			if !stack[len(stack)-1].Truthy() {
				pc = in.a
			} else {
				pop()
			}
		case opOrJump:
			if stack[len(stack)-1].Truthy() {
				pc = in.a
			} else {
				pop()
			}

		case opCall:
			args := make([]Value, in.a)
			for i := in.a - 1; i >= 0; i-- {
				args[i] = pop()
			}
			fn := pop()
			switch {
			case fn.Kind == KindFunc && fn.Nat != nil:
				r, err := fn.Nat(vm, args)
				if err != nil {
					return Nil(), wrapAt(err, in.pos)
				}
				push(r)
			case fn.Kind == KindFunc && fn.Fn != nil:
				r, err := vm.call(fn.Fn, args)
				if err != nil {
					return Nil(), err
				}
				push(r)
			default:
				return Nil(), errAt(in.pos, "cannot call a %s", fn.TypeName())
			}

		case opReturn:
			return pop(), nil

		case opMakeFunc:
			push(Value{Kind: KindFunc, Fn: &Closure{proto: proto.protos[in.a], parent: f}})

		case opExport:
			v := pop()
			name := string(proto.consts[in.a].Str)
			if vm.ns != "" {
				name = vm.ns + "." + name
			}
			if err := vm.host.Export(name, v, in.pos); err != nil {
				return Nil(), wrapAt(err, in.pos)
			}

		case opExit:
			return Nil(), errExit
		}
	}
	return Nil(), nil
}

func wrapAt(err error, pos parser.Position) error {
	var pe *parser.Error
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, errExit) {
		return err
	}
	return parser.Errorf(pos, parser.ErrorScript, "%s", err)
}

func boolNum(b bool) Value {
	if b {
		return Num(1)
	}
	return Num(0)
}

func arith(op Op, a, b float64) float64 {
	switch op {
	case opAdd:
		return a + b
	case opSub:
		return a - b
	case opMul:
		return a * b
	case opDiv:
		return a / b
	case opMod:
		return math.Mod(a, b)
	case opPow:
		return math.Pow(a, b)
	}
	return math.NaN()
}

func compare(op Op, a, b Value, pos parser.Position) (Value, error) {
	var lt, eq bool
	switch {
	case a.Kind == KindNum && b.Kind == KindNum:
		lt, eq = a.Num < b.Num, a.Num == b.Num
	case a.Kind == KindStr && b.Kind == KindStr:
		as, bs := string(a.Str), string(b.Str)
		lt, eq = as < bs, as == bs
	default:
		return Nil(), parser.Errorf(pos, parser.ErrorScript,
			"cannot compare %s and %s", a.TypeName(), b.TypeName())
	}
	switch op {
	case opLt:
		return boolNum(lt), nil
	case opLe:
		return boolNum(lt || eq), nil
	case opGt:
		return boolNum(!lt && !eq), nil
	default:
		return boolNum(!lt), nil
	}
}

func indexValue(base, idx Value, pos parser.Position) (Value, error) {
	if idx.Kind != KindNum {
		return Nil(), parser.Errorf(pos, parser.ErrorScript, "index must be a number")
	}
	i := int(idx.Num)
	switch base.Kind {
	case KindList:
		if i < 0 || i >= len(base.List.Items) {
			return Nil(), parser.Errorf(pos, parser.ErrorScript, "list index %d out of range", i)
		}
		return base.List.Items[i], nil
	case KindStr:
		if i < 0 || i >= len(base.Str) {
			return Nil(), parser.Errorf(pos, parser.ErrorScript, "string index %d out of range", i)
		}
		return Num(float64(base.Str[i])), nil
	}
	return Nil(), parser.Errorf(pos, parser.ErrorScript, "cannot index a %s", base.TypeName())
}
