package asm

import (
	"fmt"
	"strings"

	"github.com/lookbusy1344/gba-assembler/parser"
)

// StructField is one member of a struct layout
type StructField struct {
	Name    string
	Offset  uint32 // relative to the struct start
	Width   int    // 1, 2, 4 for primitives; 0 for nested structs
	Signed  bool
	Count   int // array element count; 1 for scalars
	IsArray bool
	Sub     *StructType // nested struct member
	Size    uint32      // total byte footprint
	Pos     parser.Position
}

// StructType is a declared record layout. Member names evaluate to absolute
// addresses: base + relative offset.
type StructType struct {
	Name   string
	Base   parser.Value // evaluated base expression; NumValue(0) if omitted
	Fields []*StructField
	byName map[string]*StructField
	Size   uint32
}

// NewStructType creates an empty struct layout
func NewStructType(name string, base parser.Value) *StructType {
	return &StructType{
		Name:   name,
		Base:   base,
		byName: make(map[string]*StructField),
	}
}

// Field returns a member by name
func (st *StructType) Field(name string) (*StructField, bool) {
	f, ok := st.byName[name]
	return f, ok
}

// alignBias returns the absolute-address component of the base, when known,
// so natural alignment is checked against the real address
func (st *StructType) alignBias() uint32 {
	if st.Base.Kind == parser.ValNum {
		return st.Base.Uint32()
	}
	return 0
}

// Align advances the layout offset to a multiple of n
func (st *StructType) Align(n uint32) {
	if n <= 1 {
		return
	}
	abs := st.alignBias() + st.Size
	for abs%n != 0 {
		abs++
		st.Size++
	}
}

// AddPrimitive appends a primitive (optionally array) member
func (st *StructType) AddPrimitive(name string, width int, signed bool, count int, isArray bool, pos parser.Position) error {
	if err := st.checkName(name, pos); err != nil {
		return err
	}
	abs := st.alignBias() + st.Size
	if abs%uint32(width) != 0 {
		return fmt.Errorf("member %q at offset %d is not aligned to %d bytes (use .align)", name, st.Size, width)
	}
	if count < 0 {
		return fmt.Errorf("member %q has negative array length", name)
	}
	f := &StructField{
		Name:    name,
		Offset:  st.Size,
		Width:   width,
		Signed:  signed,
		Count:   count,
		IsArray: isArray,
		Size:    uint32(width * count),
		Pos:     pos,
	}
	st.Fields = append(st.Fields, f)
	st.byName[name] = f
	st.Size += f.Size
	return nil
}

// AddStruct appends a nested struct member
func (st *StructType) AddStruct(name string, sub *StructType, pos parser.Position) error {
	if err := st.checkName(name, pos); err != nil {
		return err
	}
	f := &StructField{
		Name:   name,
		Offset: st.Size,
		Count:  1,
		Sub:    sub,
		Size:   sub.Size,
		Pos:    pos,
	}
	st.Fields = append(st.Fields, f)
	st.byName[name] = f
	st.Size += f.Size
	return nil
}

func (st *StructType) checkName(name string, pos parser.Position) error {
	if strings.HasPrefix(name, "_") {
		return fmt.Errorf("struct member %q: names starting with '_' are reserved", name)
	}
	if _, ok := st.byName[name]; ok {
		return fmt.Errorf("duplicate struct member %q", name)
	}
	return nil
}

// addOffset shifts a base value by a byte offset, keeping linear forms alive
func addOffset(base parser.Value, off uint32) parser.Value {
	switch base.Kind {
	case parser.ValNum:
		return parser.NumValue(base.Num + float64(off))
	case parser.ValDeferred:
		return parser.DeferredValue(base.K0+float64(off), base.K1)
	default:
		return base
	}
}

// memberValue resolves a dotted path below a struct type to a value:
// addresses for members, counts for _length, footprints for _bytes
func (st *StructType) memberValue(segs []string) (parser.Value, bool) {
	cur := st
	var field *StructField
	off := uint32(0)
	for i, seg := range segs {
		last := i == len(segs)-1
		switch seg {
		case "_bytes":
			if !last {
				return parser.Value{}, false
			}
			if field != nil {
				return parser.NumValue(float64(field.Size)), true
			}
			return parser.NumValue(float64(cur.Size)), true
		case "_length":
			if !last {
				return parser.Value{}, false
			}
			if field != nil && field.IsArray {
				return parser.NumValue(float64(field.Count)), true
			}
			if field == nil || field.Sub != nil {
				target := cur
				if field != nil {
					target = field.Sub
				}
				return parser.NumValue(float64(len(target.Fields))), true
			}
			return parser.Value{}, false
		}
		if cur == nil {
			return parser.Value{}, false
		}
		f, ok := cur.byName[seg]
		if !ok {
			return parser.Value{}, false
		}
		off += f.Offset
		field = f
		cur = f.Sub
	}
	if field == nil {
		return addOffset(st.Base, 0), true
	}
	return addOffset(st.Base, off), true
}

// memberField resolves a dotted path to a primitive member, for typed loads
// and stores
func (st *StructType) memberField(segs []string) (*StructField, parser.Value, bool) {
	cur := st
	var field *StructField
	off := uint32(0)
	for _, seg := range segs {
		if cur == nil {
			return nil, parser.Value{}, false
		}
		f, ok := cur.byName[seg]
		if !ok {
			return nil, parser.Value{}, false
		}
		off += f.Offset
		field = f
		cur = f.Sub
	}
	if field == nil || field.Width == 0 {
		return nil, parser.Value{}, false
	}
	return field, addOffset(st.Base, off), true
}

// structValue resolves dotted struct references during expression evaluation
func (s *Scope) structValue(name string) (parser.Value, bool) {
	st, segs, ok := s.findStruct(name)
	if !ok {
		return parser.Value{}, false
	}
	return st.memberValue(segs)
}

// FieldRef resolves a dotted name to a primitive struct member, returning
// its width, signedness, and absolute address value
func (s *Scope) FieldRef(name string) (width int, signed bool, addr parser.Value, ok bool) {
	st, segs, found := s.findStruct(name)
	if !found || len(segs) == 0 {
		return 0, false, parser.Value{}, false
	}
	f, v, ok := st.memberField(segs)
	if !ok {
		return 0, false, parser.Value{}, false
	}
	return f.Width, f.Signed, v, true
}

// findStruct locates the struct type named by the leading segments of a
// dotted path and returns the remaining segments
func (s *Scope) findStruct(name string) (*StructType, []string, bool) {
	segs := strings.Split(name, ".")
	for sc := s; sc != nil; sc = sc.parent {
		e, ok := sc.lookupShallow(segs[0])
		if !ok {
			continue
		}
		i := 1
		for e.Kind == EntryNamespace && i < len(segs) {
			next, ok := e.NS.lookupShallow(segs[i])
			if !ok {
				return nil, nil, false
			}
			e = next
			i++
		}
		if e.Kind != EntryStruct {
			return nil, nil, false
		}
		return e.Struct, segs[i:], true
	}
	return nil, nil, false
}
