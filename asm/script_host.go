package asm

import (
	"fmt"
	"math"
	"strings"

	"github.com/lookbusy1344/gba-assembler/parser"
	"github.com/lookbusy1344/gba-assembler/script"
)

// scriptDirective runs a .script [namespace] ... .end block. The block's raw
// text is compiled and executed; put text and emitted bytes are applied at
// the block's position, in the order the script produced them.
func (fc *fileCtx) scriptDirective(args []parser.Token, pos parser.Position) {
	a := fc.a

	ns := ""
	if len(args) == 1 && args[0].Type == parser.TokenIdentifier {
		ns = args[0].Literal
	} else if len(args) > 0 {
		a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, ".script takes an optional namespace name"))
		fc.skipToEnd()
		return
	}

	endLine := -1
	for {
		line := fc.stream.nextLine()
		if line == nil {
			a.errs.AddError(parser.Errorf(parser.Position{Filename: fc.path},
				parser.ErrorSyntax, "missing .end for .script"))
			return
		}
		if line[0].Type == parser.TokenKeyword && line[0].Literal == ".end" {
			endLine = line[0].Pos.Line
			break
		}
	}

	bodyStart := pos.Line + 1
	var text string
	if bodyStart <= endLine-1 && bodyStart-1 < len(fc.lines) {
		stop := endLine - 1
		if stop > len(fc.lines) {
			stop = len(fc.lines)
		}
		text = strings.Join(fc.lines[bodyStart-1:stop], "\n")
	}

	exportScope := a.scope
	if ns != "" {
		if e, ok := a.scope.LookupEntry(ns); ok && e.Kind == EntryNamespace {
			exportScope = e.NS
		} else {
			child := a.scope.Child()
			a.allScopes = append(a.allScopes, child)
			if err := a.scope.Declare(ns, &Entry{Kind: EntryNamespace, Pos: pos, NS: child}); err != nil {
				a.errs.AddError(parser.Errorf(pos, parser.ErrorDuplicateSymbol, "%s", err))
				return
			}
			exportScope = child
		}
	}

	host := &scriptHost{fc: fc, pos: pos, exports: exportScope}
	origin := parser.Position{Filename: fc.path, Line: bodyStart, Column: 1}
	if err := script.Run(text, origin, "", host); err != nil {
		a.addErr(err)
		return
	}
	host.flush()
}

// scriptItem preserves the order of put text and direct byte emissions
type scriptItem struct {
	text   string
	isText bool
	width  int
	be     bool
	vals   []float64
}

// scriptHost implements script.Host against the assembler
type scriptHost struct {
	fc      *fileCtx
	pos     parser.Position
	exports *Scope
	items   []scriptItem
	puts    int
}

func (h *scriptHost) Put(text string) {
	h.items = append(h.items, scriptItem{text: text, isText: true})
	h.puts++
}

func (h *scriptHost) EmitInts(width int, bigEndian bool, vals []float64) error {
	h.items = append(h.items, scriptItem{width: width, be: bigEndian, vals: vals})
	return nil
}

func (h *scriptHost) EmitFill(width int, bigEndian bool, count int, val float64) error {
	if count < 0 {
		return fmt.Errorf("fill count cannot be negative")
	}
	vals := make([]float64, count)
	for i := range vals {
		vals[i] = val
	}
	h.items = append(h.items, scriptItem{width: width, be: bigEndian, vals: vals})
	return nil
}

func (h *scriptHost) Export(name string, v script.Value, pos parser.Position) error {
	val, err := fromScriptValue(v)
	if err != nil {
		return err
	}
	entry := &Entry{Kind: EntryConst, Pos: pos, Val: val, HasVal: true}
	if err := h.exports.Declare(name, entry); err != nil {
		return err
	}
	return nil
}

func (h *scriptHost) Lookup(name string) (script.Value, bool) {
	v, ok := h.fc.a.scope.LookupValue(name)
	if !ok {
		return script.Nil(), false
	}
	sv, ok := toScriptValue(v)
	return sv, ok
}

func (h *scriptHost) Say(s string) {
	h.fc.a.say(s)
}

func (h *scriptHost) ReadBinary(path string) ([]byte, error) {
	return h.fc.a.fs.ReadBinary(ResolvePath(h.fc.path, path))
}

// flush applies the script's output at the block position, preserving order
func (h *scriptHost) flush() {
	a := h.fc.a
	putIdx := 0
	for _, item := range h.items {
		if item.isText {
			putIdx++
			name := fmt.Sprintf("%s:%d(put %d)", h.pos.Filename, h.pos.Line, putIdx)
			a.processSource(name, item.text, h.fc.scope)
			continue
		}
		for _, f := range item.vals {
			if !a.sec.Aligned(uint32(item.width)) {
				a.errs.AddError(parser.Errorf(h.pos, parser.ErrorAlignment,
					"%d-byte value at unaligned address 0x%08X", item.width, a.sec.Here()))
				return
			}
			u := parser.NumValue(f).Uint32()
			switch item.width {
			case 1:
				a.sec.Emit(byte(u))
			case 2:
				a.sec.Emit16(uint16(u), item.be)
			case 4:
				a.sec.Emit32(u, item.be)
			}
		}
	}
}

// fromScriptValue converts a script value for the assembly constant table.
// Cyclic lists cannot cross the bridge.
func fromScriptValue(v script.Value) (parser.Value, error) {
	return fromScriptValueRec(v, map[*script.List]bool{})
}

func fromScriptValueRec(v script.Value, onPath map[*script.List]bool) (parser.Value, error) {
	switch v.Kind {
	case script.KindNil:
		return parser.NumValue(0), nil
	case script.KindNum:
		if v.Num == math.Trunc(v.Num) {
			return parser.NumValue(v.Num), nil
		}
		return parser.FloatValue(v.Num), nil
	case script.KindStr:
		return parser.StrValue(append([]byte(nil), v.Str...)), nil
	case script.KindList:
		if onPath[v.List] {
			return parser.Value{}, fmt.Errorf("cannot export a circular list")
		}
		onPath[v.List] = true
		defer delete(onPath, v.List)
		items := make([]parser.Value, len(v.List.Items))
		for i, item := range v.List.Items {
			pv, err := fromScriptValueRec(item, onPath)
			if err != nil {
				return parser.Value{}, err
			}
			items[i] = pv
		}
		return parser.ListValue(items), nil
	}
	return parser.Value{}, fmt.Errorf("cannot export a %s", v.TypeName())
}

// toScriptValue converts an assembly value for script lookup
func toScriptValue(v parser.Value) (script.Value, bool) {
	switch v.Kind {
	case parser.ValNum:
		return script.Num(v.Num), true
	case parser.ValStr:
		return script.Str(append([]byte(nil), v.Str...)), true
	case parser.ValList:
		items := make([]script.Value, len(v.List))
		for i, item := range v.List {
			sv, ok := toScriptValue(item)
			if !ok {
				return script.Nil(), false
			}
			items[i] = sv
		}
		return script.NewList(items...), true
	}
	return script.Nil(), false
}
