package script

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// Binary pickle tags. Lists carry a registry index so references (0xF9) can
// reconstruct shared structure and cycles.
const (
	pickleStr  = 0xF6
	pickleNum  = 0xF7
	pickleList = 0xF8
	pickleRef  = 0xF9
	pickleNil  = 0xFA
)

func registerPickleOps(reg func(string, NativeFunc)) {
	reg("pickle.json", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil(), fmt.Errorf("pickle.json requires a value")
		}
		tree, err := toJSONTree(args[0], map[*List]bool{})
		if err != nil {
			return Nil(), err
		}
		b, err := json.Marshal(tree)
		if err != nil {
			return Nil(), err
		}
		return Str(b), nil
	})

	reg("pickle.bin", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil(), fmt.Errorf("pickle.bin requires a value")
		}
		var out []byte
		seen := map[*List]int{}
		out = pickleEncode(out, args[0], seen)
		return Str(out), nil
	})

	reg("pickle.val", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind != KindStr {
			return Nil(), fmt.Errorf("pickle.val requires a string")
		}
		v, ok := pickleDecodeAny(args[0].Str)
		if !ok {
			return Nil(), fmt.Errorf("pickle.val: not a valid pickle")
		}
		return v, nil
	})

	reg("pickle.valid", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind != KindStr {
			return boolNum(false), nil
		}
		_, ok := pickleDecodeAny(args[0].Str)
		return boolNum(ok), nil
	})

	reg("pickle.copy", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil(), fmt.Errorf("pickle.copy requires a value")
		}
		return deepCopy(args[0], map[*List]*List{}), nil
	})

	reg("pickle.circular", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil(), fmt.Errorf("pickle.circular requires a value")
		}
		return boolNum(hasCycle(args[0], map[*List]bool{})), nil
	})

	reg("pickle.sibling", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil(), fmt.Errorf("pickle.sibling requires a value")
		}
		// shared (non-circular) duplicate references
		counts := map[*List]int{}
		countRefs(args[0], counts, map[*List]bool{})
		for _, n := range counts {
			if n > 1 {
				return boolNum(true), nil
			}
		}
		return boolNum(false), nil
	})
}

func toJSONTree(v Value, onPath map[*List]bool) (any, error) {
	switch v.Kind {
	case KindNil:
		return nil, nil
	case KindNum:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return nil, fmt.Errorf("pickle.json: %v is not JSON-representable", v.Num)
		}
		return v.Num, nil
	case KindStr:
		return string(v.Str), nil
	case KindList:
		if onPath[v.List] {
			return nil, fmt.Errorf("pickle.json: value is circular")
		}
		onPath[v.List] = true
		defer delete(onPath, v.List)
		out := make([]any, len(v.List.Items))
		for i, item := range v.List.Items {
			t, err := toJSONTree(item, onPath)
			if err != nil {
				return nil, err
			}
			out[i] = t
		}
		return out, nil
	}
	return nil, fmt.Errorf("pickle.json: a %s is not JSON-representable", v.TypeName())
}

func pickleEncode(out []byte, v Value, seen map[*List]int) []byte {
	switch v.Kind {
	case KindNil:
		return append(out, pickleNil)
	case KindNum:
		out = append(out, pickleNum)
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.Num))
		return append(out, buf[:]...)
	case KindStr:
		out = append(out, pickleStr)
		out = appendU32(out, uint32(len(v.Str)))
		return append(out, v.Str...)
	case KindList:
		if idx, ok := seen[v.List]; ok {
			out = append(out, pickleRef)
			return appendU32(out, uint32(idx))
		}
		seen[v.List] = len(seen)
		out = append(out, pickleList)
		out = appendU32(out, uint32(len(v.List.Items)))
		for _, item := range v.List.Items {
			out = pickleEncode(out, item, seen)
		}
		return out
	}
	return append(out, pickleNil)
}

func appendU32(out []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(out, buf[:]...)
}

// pickleDecodeAny accepts either the binary pickle format or JSON text
func pickleDecodeAny(data []byte) (Value, bool) {
	if len(data) > 0 && data[0] >= pickleStr && data[0] <= pickleNil {
		var lists []*List
		v, rest, ok := pickleDecode(data, &lists)
		if !ok || len(rest) != 0 {
			return Nil(), false
		}
		return v, true
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return Nil(), false
	}
	v, ok := fromJSONTree(tree)
	return v, ok
}

func pickleDecode(data []byte, lists *[]*List) (Value, []byte, bool) {
	if len(data) == 0 {
		return Nil(), nil, false
	}
	tag := data[0]
	data = data[1:]
	switch tag {
	case pickleNil:
		return Nil(), data, true
	case pickleNum:
		if len(data) < 8 {
			return Nil(), nil, false
		}
		bits := binary.LittleEndian.Uint64(data[:8])
		return Num(math.Float64frombits(bits)), data[8:], true
	case pickleStr:
		if len(data) < 4 {
			return Nil(), nil, false
		}
		n := int(binary.LittleEndian.Uint32(data[:4]))
		data = data[4:]
		if len(data) < n {
			return Nil(), nil, false
		}
		return Str(append([]byte(nil), data[:n]...)), data[n:], true
	case pickleList:
		if len(data) < 4 {
			return Nil(), nil, false
		}
		n := int(binary.LittleEndian.Uint32(data[:4]))
		data = data[4:]
		l := &List{}
		*lists = append(*lists, l)
		for i := 0; i < n; i++ {
			var item Value
			var ok bool
			item, data, ok = pickleDecode(data, lists)
			if !ok {
				return Nil(), nil, false
			}
			l.Items = append(l.Items, item)
		}
		return Value{Kind: KindList, List: l}, data, true
	case pickleRef:
		if len(data) < 4 {
			return Nil(), nil, false
		}
		idx := int(binary.LittleEndian.Uint32(data[:4]))
		data = data[4:]
		if idx < 0 || idx >= len(*lists) {
			return Nil(), nil, false
		}
		return Value{Kind: KindList, List: (*lists)[idx]}, data, true
	}
	return Nil(), nil, false
}

func fromJSONTree(tree any) (Value, bool) {
	switch t := tree.(type) {
	case nil:
		return Nil(), true
	case bool:
		return boolNum(t), true
	case float64:
		return Num(t), true
	case string:
		return StrOf(t), true
	case []any:
		items := make([]Value, len(t))
		for i, c := range t {
			v, ok := fromJSONTree(c)
			if !ok {
				return Nil(), false
			}
			items[i] = v
		}
		return NewList(items...), true
	}
	// objects have no script representation
	return Nil(), false
}

func deepCopy(v Value, seen map[*List]*List) Value {
	if v.Kind != KindList {
		return v
	}
	if dup, ok := seen[v.List]; ok {
		return Value{Kind: KindList, List: dup}
	}
	dup := &List{Items: make([]Value, len(v.List.Items))}
	seen[v.List] = dup
	for i, item := range v.List.Items {
		dup.Items[i] = deepCopy(item, seen)
	}
	return Value{Kind: KindList, List: dup}
}

func hasCycle(v Value, onPath map[*List]bool) bool {
	if v.Kind != KindList {
		return false
	}
	if onPath[v.List] {
		return true
	}
	onPath[v.List] = true
	defer delete(onPath, v.List)
	for _, item := range v.List.Items {
		if hasCycle(item, onPath) {
			return true
		}
	}
	return false
}

func countRefs(v Value, counts map[*List]int, onPath map[*List]bool) {
	if v.Kind != KindList {
		return
	}
	counts[v.List]++
	if onPath[v.List] || counts[v.List] > 1 {
		return
	}
	onPath[v.List] = true
	defer delete(onPath, v.List)
	for _, item := range v.List.Items {
		countRefs(item, counts, onPath)
	}
}
