package asm

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/lookbusy1344/gba-assembler/parser"
)

// dataSpec describes a data directive's element width, signedness, and byte order
type dataSpec struct {
	width  int
	signed bool
	be     bool
}

var dataSpecs = map[string]dataSpec{
	".u8":  {width: 1},
	".i8":  {width: 1, signed: true},
	".u16": {width: 2},
	".i16": {width: 2, signed: true},
	".u32": {width: 4},
	".i32": {width: 4, signed: true},
	".b8":  {width: 1, be: true},
	".b16": {width: 2, be: true},
	".b32": {width: 4, be: true},
}

func (fc *fileCtx) directive(line []parser.Token) {
	a := fc.a
	name := line[0].Literal
	pos := line[0].Pos
	args := line[1:]

	if spec, ok := dataSpecs[name]; ok {
		fc.emitData(spec, args, pos)
		return
	}
	if strings.HasSuffix(name, "fill") {
		if spec, ok := dataSpecs[strings.TrimSuffix(name, "fill")]; ok {
			fc.emitFill(spec, args, pos)
			return
		}
	}

	switch name {
	case ".base":
		v, err := fc.evalArg(args, pos)
		if err != nil {
			a.addErr(err)
			return
		}
		if v.Kind != parser.ValNum {
			a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, ".base requires a numeric value"))
			return
		}
		if !a.sec.SetBase(v.Uint32()) {
			a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax,
				".base must appear before any bytes are emitted"))
		}

	case ".arm":
		a.setMode(ModeARM)
	case ".thumb":
		a.setMode(ModeThumb)

	case ".align":
		fc.alignDirective(args, pos)

	case ".title":
		fc.titleDirective(args, pos)

	case ".logo":
		a.sec.Emit(NintendoLogo()...)

	case ".crc":
		b, ok := HeaderComplement(a.sec.Bytes())
		if !ok || a.sec.Len() != 0xBD {
			a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax,
				".crc must be emitted at header offset 0xBD"))
			return
		}
		a.sec.Emit(b)

	case ".def":
		fc.defDirective(args, pos)

	case ".if":
		fc.handleIf(args, pos)
	case ".elseif", ".else", ".endif":
		a.errs.AddError(parser.Errorf(pos, parser.ErrorSyntax, "%s without matching .if", name))

	case ".struct":
		fc.structDirective(args, pos)

	case ".begin":
		fc.beginDirective(args, pos)

	case ".end":
		a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, ".end without matching block"))

	case ".regs":
		fc.regsDirective(args, pos)

	case ".include":
		fc.includeDirective(args, pos)
	case ".import":
		fc.importDirective(args, pos)
	case ".embed":
		fc.embedDirective(args, pos)

	case ".script":
		fc.scriptDirective(args, pos)

	case ".pool":
		a.armPool.Flush(a.sec, a.errs, false)
		a.thumbPool.Flush(a.sec, a.errs, false)

	case ".printf":
		fc.printfDirective(args, pos)

	case ".error":
		v, err := fc.evalArg(args, pos)
		if err != nil {
			a.addErr(err)
			return
		}
		msg := string(v.Str)
		if v.Kind != parser.ValStr {
			msg = parser.FormatNum(v.Num)
		}
		a.errs.AddError(parser.NewError(pos, parser.ErrorScript, msg))

	case ".declare":
		for _, group := range splitOperands(args) {
			if len(group) != 1 || group[0].Type != parser.TokenIdentifier {
				a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, ".declare expects names"))
				return
			}
			if err := a.scope.DeclareLabel(group[0].Literal, group[0].Pos); err != nil {
				a.errs.AddError(parser.Errorf(group[0].Pos, parser.ErrorDuplicateSymbol, "%s", err))
			}
		}

	case ".using":
		if len(args) != 1 || args[0].Type != parser.TokenIdentifier {
			a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, ".using expects a namespace name"))
			return
		}
		e, ok := a.scope.LookupEntry(args[0].Literal)
		if !ok || e.Kind != EntryNamespace {
			a.errs.AddError(parser.Errorf(args[0].Pos, parser.ErrorUnknownSymbol,
				"unknown namespace %q", args[0].Literal))
			return
		}
		a.scope.Use(e.NS)

	default:
		a.errs.AddError(parser.Errorf(pos, parser.ErrorSyntax, "unknown directive %s", name))
	}
}

func (a *Assembler) setMode(m Mode) {
	a.mode = m
	if !a.modeSeen {
		a.modeSeen = true
		a.entryARM = m == ModeARM
	}
}

// evalArg parses and evaluates a single expression argument
func (fc *fileCtx) evalArg(tokens []parser.Token, pos parser.Position) (parser.Value, error) {
	if len(tokens) == 0 {
		return parser.Value{}, parser.NewError(pos, parser.ErrorSyntax, "missing argument")
	}
	e, err := parser.ParseExpression(tokens)
	if err != nil {
		return parser.Value{}, err
	}
	return fc.a.Eval(e)
}

// mustNum evaluates an argument that has to resolve to a number immediately
func (fc *fileCtx) mustNum(tokens []parser.Token, pos parser.Position, what string) (float64, bool) {
	v, err := fc.evalArg(tokens, pos)
	if err != nil {
		fc.a.addErr(err)
		return 0, false
	}
	if v.Kind != parser.ValNum {
		fc.a.errs.AddError(parser.Errorf(pos, parser.ErrorSyntax, "%s must be a number", what))
		return 0, false
	}
	return v.Num, true
}

// ---- data emission ----

func (fc *fileCtx) emitData(spec dataSpec, args []parser.Token, pos parser.Position) {
	a := fc.a
	groups := splitOperands(args)
	if len(groups) == 0 {
		a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, "missing data values"))
		return
	}
	a.debug = append(a.debug, DebugLine{Pos: pos, Addr: a.sec.Here()})
	for _, group := range groups {
		e, err := parser.ParseExpression(group)
		if err != nil {
			a.addErr(err)
			continue
		}
		v, err := a.Eval(e)
		if err != nil {
			a.addErr(err)
			continue
		}
		fc.emitValue(v, e, spec, e.Pos())
	}
}

func (fc *fileCtx) emitValue(v parser.Value, e parser.Expr, spec dataSpec, pos parser.Position) {
	a := fc.a
	switch v.Kind {
	case parser.ValList:
		for _, item := range v.List {
			// list items are concrete; no per-item expression to defer
			fc.emitValue(item, nil, spec, pos)
		}
	case parser.ValStr:
		if spec.width == 1 {
			if !fc.checkAlign(1, pos) {
				return
			}
			a.sec.Emit(v.Str...)
			return
		}
		for _, b := range v.Str {
			fc.emitValue(parser.NumValue(float64(b)), nil, spec, pos)
		}
	case parser.ValNum:
		if !fc.checkAlign(spec.width, pos) {
			return
		}
		fc.emitWord(v.Uint32(), spec)
	case parser.ValDeferred, parser.ValUnresolved:
		if e == nil {
			a.errs.AddError(parser.NewError(pos, parser.ErrorUnknownSymbol,
				"list element never resolved"))
			return
		}
		if !fc.checkAlign(spec.width, pos) {
			return
		}
		kind := map[int]int{1: 0, 2: 1, 4: 2}[spec.width]
		a.Defer(deferredAbs(kind, a.sec.Len(), e, pos, spec.be))
		fc.emitWord(0, spec)
	}
}

func (fc *fileCtx) emitWord(val uint32, spec dataSpec) {
	switch spec.width {
	case 1:
		fc.a.sec.Emit(byte(val))
	case 2:
		fc.a.sec.Emit16(uint16(val), spec.be)
	case 4:
		fc.a.sec.Emit32(val, spec.be)
	}
}

func (fc *fileCtx) checkAlign(width int, pos parser.Position) bool {
	if fc.a.sec.Aligned(uint32(width)) {
		return true
	}
	fc.a.errs.AddError(parser.Errorf(pos, parser.ErrorAlignment,
		"%d-byte value at unaligned address 0x%08X", width, fc.a.sec.Here()))
	return false
}

func (fc *fileCtx) emitFill(spec dataSpec, args []parser.Token, pos parser.Position) {
	a := fc.a
	groups := splitOperands(args)
	if len(groups) < 1 || len(groups) > 2 {
		a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, "fill expects a count and an optional value"))
		return
	}
	count, ok := fc.mustNum(groups[0], pos, "fill count")
	if !ok {
		return
	}
	if count < 0 {
		a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, "fill count cannot be negative"))
		return
	}
	val := uint32(0)
	if len(groups) == 2 {
		f, ok := fc.mustNum(groups[1], pos, "fill value")
		if !ok {
			return
		}
		val = parser.NumValue(f).Uint32()
	}
	if !fc.checkAlign(spec.width, pos) {
		return
	}
	a.debug = append(a.debug, DebugLine{Pos: pos, Addr: a.sec.Here()})
	for i := 0; i < int(count); i++ {
		fc.emitWord(val, spec)
	}
}

func (fc *fileCtx) alignDirective(args []parser.Token, pos parser.Position) {
	groups := splitOperands(args)
	if len(groups) < 1 || len(groups) > 2 {
		fc.a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, ".align expects a boundary and an optional fill"))
		return
	}
	n, ok := fc.mustNum(groups[0], pos, "alignment")
	if !ok {
		return
	}
	if n < 1 {
		fc.a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, "alignment must be positive"))
		return
	}
	fill := byte(0)
	if len(groups) == 2 {
		f, ok := fc.mustNum(groups[1], pos, "fill value")
		if !ok {
			return
		}
		fill = byte(parser.NumValue(f).Uint32())
	}
	fc.a.sec.Align(uint32(n), fill)
}

func (fc *fileCtx) titleDirective(args []parser.Token, pos parser.Position) {
	v, err := fc.evalArg(args, pos)
	if err != nil {
		fc.a.addErr(err)
		return
	}
	if v.Kind != parser.ValStr {
		fc.a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, ".title requires a string"))
		return
	}
	out, ok := TitleBytes(v.Str)
	if !ok {
		fc.a.errs.AddError(parser.Errorf(pos, parser.ErrorTitleOverflow,
			"title %q is longer than 12 bytes", v.Str))
		return
	}
	fc.a.sec.Emit(out...)
}

// ---- .def ----

func (fc *fileCtx) defDirective(args []parser.Token, pos parser.Position) {
	a := fc.a
	if len(args) < 3 || args[0].Type != parser.TokenIdentifier {
		a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, ".def expects name = expression"))
		return
	}
	name := args[0].Literal
	rest := args[1:]

	var params []string
	if rest[0].Type == parser.TokenLParen {
		i := 1
		for i < len(rest) && rest[i].Type != parser.TokenRParen {
			if rest[i].Type == parser.TokenIdentifier {
				params = append(params, rest[i].Literal)
			} else if rest[i].Type != parser.TokenComma {
				a.errs.AddError(parser.NewError(rest[i].Pos, parser.ErrorSyntax, "invalid parameter list"))
				return
			}
			i++
		}
		if i >= len(rest) {
			a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, "missing ')' in .def"))
			return
		}
		rest = rest[i+1:]
	}

	if len(rest) < 2 || rest[0].Type != parser.TokenEqual {
		a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, ".def expects name = expression"))
		return
	}
	e, err := parser.ParseExpression(rest[1:])
	if err != nil {
		a.addErr(err)
		return
	}
	entry := &Entry{
		Kind:    EntryConst,
		Pos:     pos,
		Expr:    e,
		Params:  params,
		Closure: a.scope,
	}
	if err := a.scope.Declare(name, entry); err != nil {
		a.errs.AddError(parser.Errorf(pos, parser.ErrorDuplicateSymbol, "%s", err))
	}
}

// ---- .if ----

func (fc *fileCtx) handleIf(condTokens []parser.Token, pos parser.Position) {
	taken := false
	cond := fc.ifCondition(condTokens, pos)
	active := cond
	if active {
		taken = true
	}
	for {
		stop, stopArgs := fc.runBranch(active)
		switch stop {
		case ".elseif":
			cond := false
			if !taken {
				cond = fc.ifCondition(stopArgs, pos)
			}
			active = !taken && cond
			if active {
				taken = true
			}
		case ".else":
			active = !taken
			if active {
				taken = true
			}
		case ".endif", "":
			return
		}
	}
}

func (fc *fileCtx) ifCondition(tokens []parser.Token, pos parser.Position) bool {
	v, err := fc.evalArg(tokens, pos)
	if err != nil {
		fc.a.addErr(err)
		return false
	}
	if v.Kind == parser.ValUnresolved || v.Kind == parser.ValDeferred {
		fc.a.errs.AddError(parser.NewError(pos, parser.ErrorUnknownSymbol,
			".if condition is not resolvable at this point"))
		return false
	}
	return v.Truthy()
}

// runBranch processes (or skips) statements until the next branch keyword of
// the current .if. Returns the keyword and its argument tokens.
func (fc *fileCtx) runBranch(active bool) (string, []parser.Token) {
	depth := 0
	for {
		line := fc.stream.nextLine()
		if line == nil {
			fc.a.errs.AddError(parser.Errorf(parser.Position{Filename: fc.path},
				parser.ErrorSyntax, "missing .endif"))
			return "", nil
		}
		first := line[0]
		if first.Type == parser.TokenKeyword {
			switch first.Literal {
			case ".elseif", ".else", ".endif":
				if depth == 0 {
					return first.Literal, line[1:]
				}
				if first.Literal == ".endif" {
					depth--
				}
				continue
			case ".if":
				if active {
					fc.handleIf(line[1:], first.Pos)
					continue
				}
				depth++
				continue
			}
		}
		if active {
			fc.statement(line)
			continue
		}
		// skipped branches still allocate @name: line-labels, address-less
		fc.scanSkippedLabels(line)
	}
}

// scanSkippedLabels declares the line-labels of a skipped statement so user
// numbering survives conditional assembly
func (fc *fileCtx) scanSkippedLabels(line []parser.Token) {
	for _, tok := range line {
		if tok.Type != parser.TokenLabel || !tok.AtLabel {
			break
		}
		if _, exists := fc.a.scope.LookupEntry(tok.Literal); exists {
			continue
		}
		_ = fc.a.scope.Declare(tok.Literal, &Entry{
			Kind:      EntryLabel,
			Pos:       tok.Pos,
			NoAddress: true,
		})
	}
}

// ---- .begin / namespaces ----

func (fc *fileCtx) beginDirective(args []parser.Token, pos parser.Position) {
	a := fc.a
	var nsName string
	if len(args) == 1 && args[0].Type == parser.TokenIdentifier {
		nsName = args[0].Literal
	} else if len(args) > 0 {
		a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, ".begin takes an optional name"))
		return
	}
	child := a.scope.Child()
	a.allScopes = append(a.allScopes, child)
	if nsName != "" {
		if err := a.scope.Declare(nsName, &Entry{Kind: EntryNamespace, Pos: pos, NS: child}); err != nil {
			a.errs.AddError(parser.Errorf(pos, parser.ErrorDuplicateSymbol, "%s", err))
		}
	}
	prevScope, prevFC := a.scope, fc.scope
	a.scope, fc.scope = child, child
	fc.run(".end")
	a.scope, fc.scope = prevScope, prevFC
}

// ---- .struct ----

func (fc *fileCtx) structDirective(args []parser.Token, pos parser.Position) {
	a := fc.a
	if len(args) < 1 || args[0].Type != parser.TokenIdentifier {
		a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, ".struct expects a name"))
		fc.skipToEnd()
		return
	}
	name := args[0].Literal
	base := parser.NumValue(0)
	if len(args) > 1 {
		if args[1].Type != parser.TokenEqual {
			a.errs.AddError(parser.NewError(args[1].Pos, parser.ErrorSyntax, "expected '=' after struct name"))
			fc.skipToEnd()
			return
		}
		v, err := fc.evalArg(args[2:], pos)
		if err != nil {
			a.addErr(err)
			fc.skipToEnd()
			return
		}
		base = v
	}
	st := NewStructType(name, base)
	fc.structBlock(st)
	if err := a.scope.Declare(name, &Entry{Kind: EntryStruct, Pos: pos, Struct: st}); err != nil {
		a.errs.AddError(parser.Errorf(pos, parser.ErrorDuplicateSymbol, "%s", err))
	}
	glog.V(1).Infof("struct %s: %d members, %d bytes", name, len(st.Fields), st.Size)
}

func (fc *fileCtx) skipToEnd() {
	depth := 0
	for {
		line := fc.stream.nextLine()
		if line == nil {
			return
		}
		if line[0].Type != parser.TokenKeyword {
			continue
		}
		switch line[0].Literal {
		case ".struct", ".begin", ".script":
			depth++
		case ".end":
			if depth == 0 {
				return
			}
			depth--
		}
	}
}

var structMemberSpecs = map[string]dataSpec{
	".u8":  {width: 1},
	".i8":  {width: 1, signed: true},
	".u16": {width: 2},
	".i16": {width: 2, signed: true},
	".u32": {width: 4},
	".i32": {width: 4, signed: true},
}

func (fc *fileCtx) structBlock(st *StructType) {
	a := fc.a
	for {
		line := fc.stream.nextLine()
		if line == nil {
			a.errs.AddError(parser.Errorf(parser.Position{Filename: fc.path},
				parser.ErrorSyntax, "missing .end for .struct %s", st.Name))
			return
		}
		if line[0].Type != parser.TokenKeyword {
			a.errs.AddError(parser.NewError(line[0].Pos, parser.ErrorSyntax,
				"only member declarations may appear inside .struct"))
			continue
		}
		name := line[0].Literal
		switch {
		case name == ".end":
			return

		case name == ".align":
			groups := splitOperands(line[1:])
			if len(groups) != 1 {
				a.errs.AddError(parser.NewError(line[0].Pos, parser.ErrorSyntax, ".align in a struct takes a boundary"))
				continue
			}
			if n, ok := fc.mustNum(groups[0], line[0].Pos, "alignment"); ok && n >= 1 {
				st.Align(uint32(n))
			}

		case name == ".struct":
			if len(line) != 2 || line[1].Type != parser.TokenIdentifier {
				a.errs.AddError(parser.NewError(line[0].Pos, parser.ErrorSyntax, "nested .struct expects a name"))
				fc.skipToEnd()
				continue
			}
			sub := NewStructType(line[1].Literal, parser.NumValue(0))
			fc.structBlock(sub)
			if err := st.AddStruct(line[1].Literal, sub, line[1].Pos); err != nil {
				a.errs.AddError(parser.Errorf(line[1].Pos, parser.ErrorSyntax, "%s", err))
			}

		case name == ".if":
			fc.structIf(st, line[1:], line[0].Pos)

		default:
			spec, ok := structMemberSpecs[name]
			if !ok {
				a.errs.AddError(parser.Errorf(line[0].Pos, parser.ErrorSyntax,
					"%s is not valid inside .struct", name))
				continue
			}
			fc.structMembers(st, spec, line[1:], line[0].Pos)
		}
	}
}

// structMembers parses ".i16 a, b[5], c" member groups
func (fc *fileCtx) structMembers(st *StructType, spec dataSpec, args []parser.Token, pos parser.Position) {
	a := fc.a
	for _, group := range splitOperands(args) {
		if len(group) == 0 || group[0].Type != parser.TokenIdentifier {
			a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, "expected member name"))
			continue
		}
		memberName := group[0].Literal
		count := 1
		isArray := false
		if len(group) > 1 {
			if len(group) < 3 || group[1].Type != parser.TokenLBracket || group[len(group)-1].Type != parser.TokenRBracket {
				a.errs.AddError(parser.NewError(group[1].Pos, parser.ErrorSyntax, "invalid member declaration"))
				continue
			}
			n, ok := fc.mustNum(group[2:len(group)-1], group[1].Pos, "array length")
			if !ok {
				continue
			}
			count = int(n)
			isArray = true
		}
		if err := st.AddPrimitive(memberName, spec.width, spec.signed, count, isArray, group[0].Pos); err != nil {
			a.errs.AddError(parser.Errorf(group[0].Pos, parser.ErrorSyntax, "%s", err))
		}
	}
}

// structIf handles conditional members: only the taken branch contributes
func (fc *fileCtx) structIf(st *StructType, condTokens []parser.Token, pos parser.Position) {
	taken := false
	active := fc.ifCondition(condTokens, pos)
	if active {
		taken = true
	}
	depth := 0
	for {
		line := fc.stream.nextLine()
		if line == nil {
			fc.a.errs.AddError(parser.Errorf(parser.Position{Filename: fc.path},
				parser.ErrorSyntax, "missing .endif"))
			return
		}
		if line[0].Type == parser.TokenKeyword {
			switch line[0].Literal {
			case ".endif":
				if depth == 0 {
					return
				}
				depth--
				continue
			case ".elseif":
				if depth == 0 {
					cond := false
					if !taken {
						cond = fc.ifCondition(line[1:], line[0].Pos)
					}
					active = !taken && cond
					if active {
						taken = true
					}
					continue
				}
				continue
			case ".else":
				if depth == 0 {
					active = !taken
					if active {
						taken = true
					}
					continue
				}
				continue
			case ".if":
				if active {
					fc.structIf(st, line[1:], line[0].Pos)
					continue
				}
				depth++
				continue
			case ".end":
				fc.a.errs.AddError(parser.NewError(line[0].Pos, parser.ErrorSyntax,
					".end inside unterminated .if"))
				return
			}
		}
		if !active {
			continue
		}
		if line[0].Type != parser.TokenKeyword {
			fc.a.errs.AddError(parser.NewError(line[0].Pos, parser.ErrorSyntax,
				"only member declarations may appear inside .struct"))
			continue
		}
		if line[0].Literal == ".align" {
			groups := splitOperands(line[1:])
			if len(groups) == 1 {
				if n, ok := fc.mustNum(groups[0], line[0].Pos, "alignment"); ok && n >= 1 {
					st.Align(uint32(n))
				}
			}
			continue
		}
		if spec, ok := structMemberSpecs[line[0].Literal]; ok {
			fc.structMembers(st, spec, line[1:], line[0].Pos)
			continue
		}
		fc.a.errs.AddError(parser.Errorf(line[0].Pos, parser.ErrorSyntax,
			"%s is not valid inside .struct", line[0].Literal))
	}
}

// ---- .regs ----

func (fc *fileCtx) regsDirective(args []parser.Token, pos parser.Position) {
	a := fc.a
	if len(args) == 0 {
		a.say(a.scope.RegisterListing())
		return
	}
	var names []string
	for _, group := range splitOperands(args) {
		switch {
		case len(group) == 1 && group[0].Type == parser.TokenIdentifier:
			names = append(names, group[0].Literal)
		case len(group) == 3 && group[0].Type == parser.TokenIdentifier &&
			group[1].Type == parser.TokenMinus && group[2].Type == parser.TokenIdentifier:
			expanded, err := expandRegRange(group[0].Literal, group[2].Literal)
			if err != nil {
				a.errs.AddError(parser.Errorf(group[0].Pos, parser.ErrorSyntax, "%s", err))
				return
			}
			names = append(names, expanded...)
		default:
			a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, "invalid .regs argument"))
			return
		}
	}
	if err := a.scope.BindRegisters(names); err != nil {
		a.errs.AddError(parser.Errorf(pos, parser.ErrorSyntax, "%s", err))
	}
}

// expandRegRange expands "t0-t3" (or descending "t3-t0") into the named run.
// Single-letter ranges like "a-c" walk the alphabet instead.
func expandRegRange(from, to string) ([]string, error) {
	if len(from) == 1 && len(to) == 1 {
		f, s := from[0], to[0]
		var names []string
		if f <= s {
			for ch := f; ch <= s; ch++ {
				names = append(names, string(ch))
			}
		} else {
			for ch := f; ch >= s; ch-- {
				names = append(names, string(ch))
			}
		}
		return names, nil
	}
	fp, fn, ok1 := splitNameNum(from)
	tp, tn, ok2 := splitNameNum(to)
	if !ok1 || !ok2 || fp != tp {
		return nil, fmt.Errorf("invalid register range %s-%s", from, to)
	}
	var names []string
	if fn <= tn {
		for i := fn; i <= tn; i++ {
			names = append(names, fmt.Sprintf("%s%d", fp, i))
		}
	} else {
		for i := fn; i >= tn; i-- {
			names = append(names, fmt.Sprintf("%s%d", fp, i))
		}
	}
	return names, nil
}

func splitNameNum(s string) (prefix string, n int, ok bool) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) || i == 0 {
		return "", 0, false
	}
	n = 0
	for _, ch := range s[i:] {
		n = n*10 + int(ch-'0')
	}
	return s[:i], n, true
}

// ---- file directives ----

func (fc *fileCtx) pathArg(args []parser.Token, pos parser.Position) (string, bool) {
	if len(args) < 1 || args[0].Type != parser.TokenString {
		fc.a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, "expected a file path string"))
		return "", false
	}
	return ResolvePath(fc.path, string(args[0].Str)), true
}

func (fc *fileCtx) includeDirective(args []parser.Token, pos parser.Position) {
	path, ok := fc.pathArg(args, pos)
	if !ok || len(args) != 1 {
		return
	}
	child := fc.a.scope.Child()
	fc.a.allScopes = append(fc.a.allScopes, child)
	if err := fc.a.processInclude(path, child, pos); err != nil {
		fc.a.addErr(err)
	}
}

func (fc *fileCtx) importDirective(args []parser.Token, pos parser.Position) {
	a := fc.a
	if len(args) != 2 || args[1].Type != parser.TokenIdentifier {
		a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, `.import expects "path" name`))
		return
	}
	path, ok := fc.pathArg(args[:1], pos)
	if !ok {
		return
	}
	ns := a.scope.Child()
	a.allScopes = append(a.allScopes, ns)
	if err := a.scope.Declare(args[1].Literal, &Entry{Kind: EntryNamespace, Pos: pos, NS: ns}); err != nil {
		a.errs.AddError(parser.Errorf(pos, parser.ErrorDuplicateSymbol, "%s", err))
		return
	}
	if err := a.processInclude(path, ns, pos); err != nil {
		a.addErr(err)
	}
}

func (fc *fileCtx) embedDirective(args []parser.Token, pos parser.Position) {
	path, ok := fc.pathArg(args, pos)
	if !ok || len(args) != 1 {
		return
	}
	b, err := fc.a.fs.ReadBinary(path)
	if err != nil {
		fc.a.errs.AddError(parser.Errorf(pos, parser.ErrorInclude, "cannot read file: %s", path))
		return
	}
	fc.a.debug = append(fc.a.debug, DebugLine{Pos: pos, Addr: fc.a.sec.Here()})
	fc.a.sec.Emit(b...)
}

// ---- .printf ----

func (fc *fileCtx) printfDirective(args []parser.Token, pos parser.Position) {
	a := fc.a
	groups := splitOperands(args)
	if len(groups) == 0 {
		a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, ".printf expects a format string"))
		return
	}
	fv, err := fc.evalArg(groups[0], pos)
	if err != nil {
		a.addErr(err)
		return
	}
	if fv.Kind != parser.ValStr {
		a.errs.AddError(parser.NewError(pos, parser.ErrorSyntax, ".printf format must be a string"))
		return
	}
	values := make([]parser.Value, 0, len(groups)-1)
	for _, g := range groups[1:] {
		v, err := fc.evalArg(g, pos)
		if err != nil {
			a.addErr(err)
			return
		}
		values = append(values, v)
	}
	out, warn := FormatPrintf(string(fv.Str), values)
	if warn != "" {
		a.errs.AddWarning(&parser.Warning{Pos: pos, Message: warn})
	}
	a.say(out)
}

// FormatPrintf renders a .printf format with %d %x %X %b %o %f %s verbs.
// A mismatch between verbs and arguments is reported as a warning string.
func FormatPrintf(format string, args []parser.Value) (string, string) {
	var sb strings.Builder
	argi := 0
	warn := ""
	next := func() (parser.Value, bool) {
		if argi >= len(args) {
			return parser.Value{}, false
		}
		v := args[argi]
		argi++
		return v, true
	}
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' || i+1 >= len(format) {
			sb.WriteByte(ch)
			continue
		}
		i++
		verb := format[i]
		if verb == '%' {
			sb.WriteByte('%')
			continue
		}
		v, ok := next()
		if !ok {
			warn = "not enough arguments for format"
			sb.WriteByte('%')
			sb.WriteByte(verb)
			continue
		}
		switch verb {
		case 'd':
			sb.WriteString(fmt.Sprintf("%d", v.Int64()))
		case 'x':
			sb.WriteString(fmt.Sprintf("%x", v.Uint32()))
		case 'X':
			sb.WriteString(fmt.Sprintf("%X", v.Uint32()))
		case 'b':
			sb.WriteString(fmt.Sprintf("%b", v.Uint32()))
		case 'o':
			sb.WriteString(fmt.Sprintf("%o", v.Uint32()))
		case 'f':
			sb.WriteString(fmt.Sprintf("%v", v.Num))
		case 's':
			if v.Kind == parser.ValStr {
				sb.Write(v.Str)
			} else {
				sb.WriteString(parser.FormatNum(v.Num))
			}
		default:
			warn = fmt.Sprintf("unknown format verb %%%c", verb)
		}
	}
	if argi < len(args) && warn == "" {
		warn = "too many arguments for format"
	}
	return sb.String(), warn
}
