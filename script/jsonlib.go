package script

import (
	"encoding/json"
	"fmt"
)

// JSON trees are represented as tagged lists so scripts can navigate them
// with json.get without a map type:
//
//	{'null'}  {'boolean', b}  {'number', n}  {'string', s}
//	{'array', {node, ...}}  {'object', {{key, node}, ...}}
func jsonNode(v any) Value {
	switch t := v.(type) {
	case nil:
		return NewList(StrOf("null"))
	case bool:
		return NewList(StrOf("boolean"), boolNum(t))
	case float64:
		return NewList(StrOf("number"), Num(t))
	case string:
		return NewList(StrOf("string"), StrOf(t))
	case []any:
		items := make([]Value, len(t))
		for i, c := range t {
			items[i] = jsonNode(c)
		}
		return NewList(StrOf("array"), NewList(items...))
	case map[string]any:
		// object keys sorted by the decoder's map order would be unstable;
		// re-decode keeps insertion order out of reach, so sort for
		// determinism
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sortStrings(keys)
		pairs := make([]Value, 0, len(t))
		for _, k := range keys {
			pairs = append(pairs, NewList(StrOf(k), jsonNode(t[k])))
		}
		return NewList(StrOf("object"), NewList(pairs...))
	}
	return NewList(StrOf("null"))
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func nodeTag(v Value) (string, Value, bool) {
	if v.Kind != KindList || len(v.List.Items) == 0 || v.List.Items[0].Kind != KindStr {
		return "", Nil(), false
	}
	payload := Nil()
	if len(v.List.Items) > 1 {
		payload = v.List.Items[1]
	}
	return string(v.List.Items[0].Str), payload, true
}

func registerJSONOps(reg func(string, NativeFunc)) {
	reg("json.load", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind != KindStr {
			return Nil(), fmt.Errorf("json.load requires a string")
		}
		var tree any
		if err := json.Unmarshal(args[0].Str, &tree); err != nil {
			return Nil(), fmt.Errorf("invalid JSON: %s", err)
		}
		return jsonNode(tree), nil
	})

	reg("json.type", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil(), fmt.Errorf("json.type requires a node")
		}
		tag, _, ok := nodeTag(args[0])
		if !ok {
			return Nil(), nil
		}
		return StrOf(tag), nil
	})

	accessor := func(name, wantTag string) {
		reg(name, func(vm *VM, args []Value) (Value, error) {
			if len(args) != 1 {
				return Nil(), fmt.Errorf("%s requires a node", name)
			}
			tag, payload, ok := nodeTag(args[0])
			if !ok || tag != wantTag {
				return Nil(), nil
			}
			return payload, nil
		})
	}
	accessor("json.boolean", "boolean")
	accessor("json.number", "number")
	accessor("json.string", "string")
	accessor("json.array", "array")
	accessor("json.object", "object")

	reg("json.size", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil(), fmt.Errorf("json.size requires a node")
		}
		tag, payload, ok := nodeTag(args[0])
		if !ok || (tag != "array" && tag != "object") || payload.Kind != KindList {
			return Nil(), nil
		}
		return Num(float64(len(payload.List.Items))), nil
	})

	reg("json.get", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 2 {
			return Nil(), fmt.Errorf("json.get requires a node and a key")
		}
		tag, payload, ok := nodeTag(args[0])
		if !ok || payload.Kind != KindList {
			return Nil(), nil
		}
		switch tag {
		case "array":
			if args[1].Kind != KindNum {
				return Nil(), nil
			}
			i := int(args[1].Num)
			if i < 0 || i >= len(payload.List.Items) {
				return Nil(), nil
			}
			return payload.List.Items[i], nil
		case "object":
			if args[1].Kind != KindStr {
				return Nil(), nil
			}
			key := string(args[1].Str)
			for _, pair := range payload.List.Items {
				if pair.Kind == KindList && len(pair.List.Items) == 2 &&
					pair.List.Items[0].Kind == KindStr &&
					string(pair.List.Items[0].Str) == key {
					return pair.List.Items[1], nil
				}
			}
		}
		return Nil(), nil
	})
}
