package script

import (
	"encoding/binary"
	"fmt"
	"math"
)

// binFormat is one element of a struct.* format list
type binFormat struct {
	width  int
	signed bool
	be     bool
}

var binFormats = map[string]binFormat{
	"u8":  {width: 1},
	"i8":  {width: 1, signed: true},
	"u16": {width: 2},
	"i16": {width: 2, signed: true},
	"u32": {width: 4},
	"i32": {width: 4, signed: true},
	"b16": {width: 2, be: true},
	"b32": {width: 4, be: true},
}

func parseFormats(v Value) ([]binFormat, error) {
	if v.Kind != KindList {
		return nil, fmt.Errorf("format must be a list of type names")
	}
	out := make([]binFormat, 0, len(v.List.Items))
	for _, item := range v.List.Items {
		if item.Kind != KindStr {
			return nil, fmt.Errorf("format must be a list of type names")
		}
		f, ok := binFormats[string(item.Str)]
		if !ok {
			return nil, fmt.Errorf("unknown format type %q", item.Str)
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("format list is empty")
	}
	return out, nil
}

func registerStructOps(reg func(string, NativeFunc)) {
	// struct.str packs a list of numbers into a byte string, cycling through
	// the format list
	reg("struct.str", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 2 || args[0].Kind != KindList {
			return Nil(), fmt.Errorf("struct.str requires a value list and a format list")
		}
		formats, err := parseFormats(args[1])
		if err != nil {
			return Nil(), err
		}
		var out []byte
		for i, item := range args[0].List.Items {
			if item.Kind != KindNum {
				return Nil(), fmt.Errorf("struct.str values must be numbers")
			}
			f := formats[i%len(formats)]
			out = appendPacked(out, f, item.Num)
		}
		return Str(out), nil
	})

	// struct.list unpacks a byte string into a list of numbers
	reg("struct.list", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 2 || args[0].Kind != KindStr {
			return Nil(), fmt.Errorf("struct.list requires a byte string and a format list")
		}
		formats, err := parseFormats(args[1])
		if err != nil {
			return Nil(), err
		}
		data := args[0].Str
		var items []Value
		pos := 0
		for i := 0; pos < len(data); i++ {
			f := formats[i%len(formats)]
			if pos+f.width > len(data) {
				return Nil(), fmt.Errorf("struct.list: %d trailing bytes do not fit the format", len(data)-pos)
			}
			items = append(items, Num(unpack(data[pos:pos+f.width], f)))
			pos += f.width
		}
		return NewList(items...), nil
	})

	// struct.size is the byte footprint of one pass through the format list
	reg("struct.size", func(vm *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil(), fmt.Errorf("struct.size requires a format list")
		}
		formats, err := parseFormats(args[0])
		if err != nil {
			return Nil(), err
		}
		total := 0
		for _, f := range formats {
			total += f.width
		}
		return Num(float64(total)), nil
	})
}

func appendPacked(out []byte, f binFormat, v float64) []byte {
	u := packTruncate(v)
	switch f.width {
	case 1:
		return append(out, byte(u))
	case 2:
		var buf [2]byte
		if f.be {
			binary.BigEndian.PutUint16(buf[:], uint16(u))
		} else {
			binary.LittleEndian.PutUint16(buf[:], uint16(u))
		}
		return append(out, buf[:]...)
	default:
		var buf [4]byte
		if f.be {
			binary.BigEndian.PutUint32(buf[:], u)
		} else {
			binary.LittleEndian.PutUint32(buf[:], u)
		}
		return append(out, buf[:]...)
	}
}

func unpack(b []byte, f binFormat) float64 {
	var u uint32
	switch f.width {
	case 1:
		u = uint32(b[0])
	case 2:
		if f.be {
			u = uint32(binary.BigEndian.Uint16(b))
		} else {
			u = uint32(binary.LittleEndian.Uint16(b))
		}
	default:
		if f.be {
			u = binary.BigEndian.Uint32(b)
		} else {
			u = binary.LittleEndian.Uint32(b)
		}
	}
	if f.signed {
		switch f.width {
		case 1:
			return float64(int8(u))
		case 2:
			return float64(int16(u))
		default:
			return float64(int32(u))
		}
	}
	return float64(u)
}

func packTruncate(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	t := math.Trunc(f)
	m := math.Mod(t, 4294967296)
	if m < 0 {
		m += 4294967296
	}
	return uint32(m)
}
