package asm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lookbusy1344/gba-assembler/parser"
	"github.com/samber/lo"
)

// EntryKind represents the kind of a symbol table entry
type EntryKind int

const (
	EntryLabel EntryKind = iota
	EntryConst
	EntryStruct
	EntryNamespace
	EntryReserved
)

var entryKindNames = map[EntryKind]string{
	EntryLabel:     "label",
	EntryConst:     "constant",
	EntryStruct:    "struct",
	EntryNamespace: "namespace",
	EntryReserved:  "reserved name",
}

func (k EntryKind) String() string { return entryKindNames[k] }

// Entry is a symbol table entry
type Entry struct {
	Kind EntryKind
	Pos  parser.Position

	// EntryLabel
	Placed    bool
	Offset    uint32 // section offset; address = base + offset
	NoAddress bool   // line-label scanned inside a skipped .if branch

	// EntryConst: either a cached value or an expression closed over Closure
	Expr       parser.Expr
	Params     []string
	Closure    *Scope
	Val        parser.Value
	HasVal     bool
	evaluating bool

	// EntryStruct
	Struct *StructType

	// EntryNamespace
	NS *Scope
}

// Scope is one level of the lexical symbol table. Lookup walks parents and
// any scopes pulled in with `using`.
type Scope struct {
	parent *Scope
	names  map[string]*Entry
	using  []*Scope
	regs   []string // alias names for r0..r11; nil inherits the parent's
	sec    *Section
}

// canonical register names for indices 12..15, never rebindable
var highRegNames = [4]string{"ip", "sp", "lr", "pc"}

// NewRootScope creates the top-level scope for a section
func NewRootScope(sec *Section) *Scope {
	regs := make([]string, 12)
	for i := range regs {
		regs[i] = fmt.Sprintf("r%d", i)
	}
	return &Scope{
		names: make(map[string]*Entry),
		regs:  regs,
		sec:   sec,
	}
}

// Child pushes a nested scope
func (s *Scope) Child() *Scope {
	return &Scope{
		parent: s,
		names:  make(map[string]*Entry),
		sec:    s.sec,
	}
}

// Parent returns the enclosing scope
func (s *Scope) Parent() *Scope { return s.parent }

// Use pulls another scope's members into name lookup
func (s *Scope) Use(ns *Scope) {
	s.using = append(s.using, ns)
}

func isReservedName(name string) bool {
	if name == "_base" {
		return true
	}
	return strings.HasPrefix(name, "_")
}

// Declare binds a name in this scope. Conflicting redeclaration is an error.
func (s *Scope) Declare(name string, e *Entry) error {
	if strings.Contains(name, ".") {
		return fmt.Errorf("cannot declare dotted name %q", name)
	}
	if isReservedName(name) && e.Kind != EntryLabel {
		return fmt.Errorf("cannot declare reserved name %q", name)
	}
	if prev, ok := s.names[name]; ok {
		if prev.Kind == EntryLabel && e.Kind == EntryLabel && !prev.Placed && e.Placed {
			// forward declaration being satisfied
			*prev = *e
			return nil
		}
		return fmt.Errorf("%q already declared as %s at %s", name, prev.Kind, prev.Pos)
	}
	s.names[name] = e
	return nil
}

// DeclareLabel declares a forward label with no address yet
func (s *Scope) DeclareLabel(name string, pos parser.Position) error {
	return s.Declare(name, &Entry{Kind: EntryLabel, Pos: pos})
}

// PlaceLabel binds a label to the current section offset
func (s *Scope) PlaceLabel(name string, pos parser.Position) error {
	if prev, ok := s.names[name]; ok && prev.Kind == EntryLabel && !prev.Placed && !prev.NoAddress {
		prev.Placed = true
		prev.Offset = uint32(s.sec.Len())
		prev.Pos = pos
		return nil
	}
	return s.Declare(name, &Entry{
		Kind:   EntryLabel,
		Pos:    pos,
		Placed: true,
		Offset: uint32(s.sec.Len()),
	})
}

// lookupShallow finds an entry in this scope or its using-imports, without
// walking parents
func (s *Scope) lookupShallow(name string) (*Entry, bool) {
	if e, ok := s.names[name]; ok {
		return e, true
	}
	for _, ns := range s.using {
		if e, ok := ns.names[name]; ok {
			return e, true
		}
	}
	return nil, false
}

// LookupEntry resolves a possibly-dotted name, walking parent scopes for the
// first segment and descending namespaces for the rest
func (s *Scope) LookupEntry(name string) (*Entry, bool) {
	segs := strings.Split(name, ".")
	for sc := s; sc != nil; sc = sc.parent {
		if e, ok := sc.lookupShallow(segs[0]); ok {
			return descend(e, segs[1:])
		}
	}
	return nil, false
}

func descend(e *Entry, segs []string) (*Entry, bool) {
	for _, seg := range segs {
		switch e.Kind {
		case EntryNamespace:
			next, ok := e.NS.lookupShallow(seg)
			if !ok {
				return nil, false
			}
			e = next
		default:
			return nil, false
		}
	}
	return e, true
}

// ---- parser.EvalContext implementation ----

// BaseValue returns the section base address
func (s *Scope) BaseValue() (uint32, bool) {
	return s.sec.Base(), true
}

// LookupValue resolves a name to a value for expression evaluation
func (s *Scope) LookupValue(name string) (parser.Value, bool) {
	// struct member paths are handled before generic entry lookup so that
	// `S.field`, `S._bytes` and friends resolve through the layout engine
	if v, ok := s.structValue(name); ok {
		return v, true
	}
	e, ok := s.LookupEntry(name)
	if !ok {
		return parser.Value{}, false
	}
	return s.entryValue(e), true
}

func (s *Scope) entryValue(e *Entry) parser.Value {
	switch e.Kind {
	case EntryLabel:
		if !e.Placed || e.NoAddress {
			return parser.UnresolvedValue(labelName(e))
		}
		base, _ := s.BaseValue()
		return parser.NumValue(float64(base + e.Offset))
	case EntryConst:
		if e.HasVal {
			return e.Val
		}
		if len(e.Params) > 0 {
			// a parameterized constant has no value of its own
			return parser.UnresolvedValue(labelName(e))
		}
		if e.evaluating {
			return parser.UnresolvedValue(labelName(e))
		}
		e.evaluating = true
		defer func() { e.evaluating = false }()
		v, err := parser.Evaluate(e.Expr, e.Closure)
		if err != nil {
			return parser.UnresolvedValue(labelName(e))
		}
		return v
	default:
		return parser.UnresolvedValue(labelName(e))
	}
}

func labelName(e *Entry) string {
	// position makes the diagnostic locate the definition
	return fmt.Sprintf("symbol declared at %s", e.Pos)
}

// CallValue invokes a parameterized constant
func (s *Scope) CallValue(name string, args []parser.Value, pos parser.Position) (parser.Value, error) {
	e, ok := s.LookupEntry(name)
	if !ok {
		return parser.UnresolvedValue(name), nil
	}
	if e.Kind != EntryConst || len(e.Params) == 0 {
		return parser.Value{}, parser.Errorf(pos, parser.ErrorSyntax, "%q is not a parameterized constant", name)
	}
	if len(args) != len(e.Params) {
		return parser.Value{}, parser.Errorf(pos, parser.ErrorSyntax,
			"%q expects %d arguments, got %d", name, len(e.Params), len(args))
	}
	frame := e.Closure.Child()
	for i, p := range e.Params {
		frame.names[p] = &Entry{Kind: EntryConst, Pos: pos, Val: args[i], HasVal: true}
	}
	return parser.Evaluate(e.Expr, frame)
}

// ---- register aliases ----

// RegisterIndex resolves a register name to its index 0..15
func (s *Scope) RegisterIndex(name string) (int, bool) {
	lower := strings.ToLower(name)
	for i, hi := range highRegNames {
		if lower == hi {
			return 12 + i, true
		}
	}
	if len(lower) >= 2 && lower[0] == 'r' {
		n := 0
		numeric := true
		for _, ch := range lower[1:] {
			if ch < '0' || ch > '9' {
				numeric = false
				break
			}
			n = n*10 + int(ch-'0')
		}
		if numeric && n <= 15 {
			return n, true
		}
	}
	for i, alias := range s.regAliases() {
		if alias == name {
			return i, true
		}
	}
	return 0, false
}

func (s *Scope) regAliases() []string {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.regs != nil {
			return sc.regs
		}
	}
	return nil
}

// BindRegisters installs a new alias list for indices 0..len(names)-1 in this
// scope. Indices 12..15 are reserved.
func (s *Scope) BindRegisters(names []string) error {
	if len(names) > 12 {
		return fmt.Errorf("cannot rebind register %d: indices 12-15 are reserved", len(names)-1)
	}
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			return fmt.Errorf("duplicate register name %q", n)
		}
		seen[n] = true
	}
	regs := make([]string, 12)
	copy(regs, s.regAliases())
	copy(regs, names)
	s.regs = regs
	return nil
}

// RegisterListing formats the current aliases for the .regs listing
func (s *Scope) RegisterListing() string {
	aliases := s.regAliases()
	parts := lo.Map(aliases, func(name string, i int) string {
		return fmt.Sprintf("%s=r%d", name, i)
	})
	for i, hi := range highRegNames {
		parts = append(parts, fmt.Sprintf("%s=r%d", hi, 12+i))
	}
	return strings.Join(parts, " ")
}

// SortedNames lists the names declared directly in this scope, for listings
func (s *Scope) SortedNames() []string {
	names := lo.Keys(s.names)
	sort.Strings(names)
	return names
}

// UnplacedLabels returns declared labels that never received an address.
// Line-labels scanned in skipped branches are intentionally address-less and
// are not reported here; referencing one fails at end of pass instead.
func (s *Scope) UnplacedLabels() []*Entry {
	var out []*Entry
	for _, e := range s.names {
		if e.Kind == EntryLabel && !e.Placed && !e.NoAddress {
			out = append(out, e)
		}
	}
	return out
}
