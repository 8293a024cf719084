package asm

import (
	"strings"

	"github.com/golang/glog"
	"github.com/lookbusy1344/gba-assembler/encoder"
	"github.com/lookbusy1344/gba-assembler/parser"
)

// Mode is the current instruction encoding mode
type Mode int

const (
	ModeNone Mode = iota
	ModeARM
	ModeThumb
)

// Define is a predefined constant supplied by the host before assembly
type Define struct {
	Key   string
	Value string
}

// DebugLine maps a source statement to the address it emitted at
type DebugLine struct {
	Pos  parser.Position
	Addr uint32
}

// Result is a successful assembly
type Result struct {
	Sections [][]byte
	Base     uint32
	ARM      bool
	Debug    []DebugLine
}

// Assembler owns one assembly run. It is restartable: no state survives
// between runs except the filesystem callback held by the caller.
type Assembler struct {
	fs  FileSystem
	say SayFunc

	errs      *parser.ErrorList
	sec       *Section
	root      *Scope
	scope     *Scope
	allScopes []*Scope
	mode      Mode
	modeSeen  bool
	entryARM  bool
	armPool   *encoder.Pool
	thumbPool *encoder.Pool
	fixups    []encoder.Fixup
	debug     []DebugLine
	including []string // include cycle detection
	curPos    parser.Position
}

// New creates an assembler over the given filesystem and output callbacks
func New(fs FileSystem, say SayFunc) *Assembler {
	if say == nil {
		say = func(string) {}
	}
	sec := NewSection()
	a := &Assembler{
		fs:        fs,
		say:       say,
		errs:      &parser.ErrorList{},
		sec:       sec,
		armPool:   encoder.NewPool(false),
		thumbPool: encoder.NewPool(true),
		entryARM:  true,
	}
	a.root = NewRootScope(sec)
	a.scope = a.root
	a.allScopes = append(a.allScopes, a.root)
	return a
}

// Errors exposes accumulated errors and warnings
func (a *Assembler) Errors() *parser.ErrorList { return a.errs }

// Assemble runs the whole pipeline on the root source file
func (a *Assembler) Assemble(rootPath string, defines []Define) (*Result, error) {
	a.applyDefines(defines)

	if err := a.processInclude(rootPath, a.root, parser.Position{Filename: rootPath, Line: 1, Column: 1}); err != nil {
		a.addErr(err)
	}

	a.finish()

	if a.errs.HasErrors() {
		return nil, a.errs
	}
	return &Result{
		Sections: [][]byte{a.sec.Bytes()},
		Base:     a.sec.Base(),
		ARM:      a.entryARM,
		Debug:    a.debug,
	}, nil
}

// AssembleSource is the test entry point: assemble source text directly
func (a *Assembler) AssembleSource(filename, source string, defines []Define) (*Result, error) {
	a.applyDefines(defines)
	a.processSource(filename, source, a.root)
	a.finish()
	if a.errs.HasErrors() {
		return nil, a.errs
	}
	return &Result{
		Sections: [][]byte{a.sec.Bytes()},
		Base:     a.sec.Base(),
		ARM:      a.entryARM,
		Debug:    a.debug,
	}, nil
}

func (a *Assembler) applyDefines(defines []Define) {
	for _, d := range defines {
		pos := parser.Position{Filename: "<define>", Line: 1, Column: 1}
		lex := parser.NewLexer(d.Value, "<define>")
		tokens := lex.TokenizeAll()
		if lex.Errors().HasErrors() {
			a.errs.AddError(parser.Errorf(pos, parser.ErrorLex, "invalid value for define %q", d.Key))
			continue
		}
		// strip trailing EOF/newlines
		var clean []parser.Token
		for _, t := range tokens {
			if t.Type == parser.TokenEOF || t.Type == parser.TokenNewline {
				continue
			}
			clean = append(clean, t)
		}
		e, err := parser.ParseExpression(clean)
		if err != nil {
			a.errs.AddError(parser.Errorf(pos, parser.ErrorSyntax, "invalid value for define %q", d.Key))
			continue
		}
		v, err := parser.Evaluate(e, a.root)
		if err != nil || v.Kind == parser.ValUnresolved {
			a.errs.AddError(parser.Errorf(pos, parser.ErrorSyntax, "define %q does not evaluate to a value", d.Key))
			continue
		}
		if err := a.root.Declare(d.Key, &Entry{Kind: EntryConst, Pos: pos, Val: v, HasVal: true}); err != nil {
			a.errs.AddError(parser.Errorf(pos, parser.ErrorDuplicateSymbol, "%s", err))
		}
	}
}

// finish flushes pools, applies fixups, and checks for unplaced labels
func (a *Assembler) finish() {
	a.armPool.Flush(a.sec, a.errs, true)
	a.thumbPool.Flush(a.sec, a.errs, true)

	for _, f := range a.fixups {
		v, err := parser.Evaluate(f.Expr, f.Ctx)
		if err != nil {
			a.addErr(err)
			continue
		}
		if err := encoder.ApplyFixup(a.sec, f, a.sec.Base()+uint32(f.Offset), v); err != nil {
			a.addErr(err)
		}
	}

	for _, sc := range a.allScopes {
		for _, e := range sc.UnplacedLabels() {
			a.errs.AddError(parser.NewError(e.Pos, parser.ErrorUnknownSymbol,
				"label declared but never defined"))
		}
	}
}

// ---- file processing ----

func (a *Assembler) processInclude(path string, scope *Scope, pos parser.Position) error {
	for _, p := range a.including {
		if p == path {
			return parser.Errorf(pos, parser.ErrorInclude, "circular include of %s", path)
		}
	}
	if a.fs.Type(path) != FSFile {
		return parser.Errorf(pos, parser.ErrorInclude, "cannot find file: %s", path)
	}
	src, err := a.fs.ReadText(path)
	if err != nil {
		return parser.Errorf(pos, parser.ErrorInclude, "cannot read file: %s", path)
	}
	a.including = append(a.including, path)
	defer func() { a.including = a.including[:len(a.including)-1] }()
	a.processSource(path, src, scope)
	return nil
}

// processSource lexes and assembles one source text in the given scope
func (a *Assembler) processSource(filename, source string, scope *Scope) {
	lex := parser.NewLexer(source, filename)
	tokens := lex.TokenizeAll()
	for _, e := range lex.Errors().Errors {
		a.errs.AddError(e)
	}
	for _, w := range lex.Errors().Warnings {
		a.errs.AddWarning(w)
	}
	fc := &fileCtx{
		a:      a,
		path:   filename,
		lines:  strings.Split(source, "\n"),
		stream: &tokenStream{tokens: tokens},
		scope:  scope,
	}
	prev := a.scope
	a.scope = scope
	fc.run("")
	a.scope = prev
}

// tokenStream hands out one statement at a time
type tokenStream struct {
	tokens []parser.Token
	pos    int
}

// nextLine returns the tokens of the next statement, without its terminating
// newline. nil means end of input. Empty statements are skipped.
func (ts *tokenStream) nextLine() []parser.Token {
	for ts.pos < len(ts.tokens) {
		t := ts.tokens[ts.pos]
		if t.Type == parser.TokenEOF {
			return nil
		}
		if t.Type == parser.TokenNewline {
			ts.pos++
			continue
		}
		start := ts.pos
		for ts.pos < len(ts.tokens) {
			tt := ts.tokens[ts.pos]
			if tt.Type == parser.TokenNewline || tt.Type == parser.TokenEOF {
				break
			}
			ts.pos++
		}
		line := ts.tokens[start:ts.pos]
		if ts.pos < len(ts.tokens) && ts.tokens[ts.pos].Type == parser.TokenNewline {
			ts.pos++
		}
		return line
	}
	return nil
}

// fileCtx is the per-file assembly state: statement stream, raw lines for
// script extraction, and the scope the file's names live in
type fileCtx struct {
	a      *Assembler
	path   string
	lines  []string
	stream *tokenStream
	scope  *Scope
}

// run processes statements until EOF or, when stop is non-empty, until a
// statement starting with that keyword is consumed. Returns true when the
// stop keyword was found.
func (fc *fileCtx) run(stop string) bool {
	for {
		line := fc.stream.nextLine()
		if line == nil {
			if stop != "" {
				fc.a.errs.AddError(parser.Errorf(
					parser.Position{Filename: fc.path},
					parser.ErrorSyntax, "missing %s", stop))
			}
			return false
		}
		if stop != "" && line[0].Type == parser.TokenKeyword && line[0].Literal == stop {
			if len(line) > 1 {
				fc.a.errs.AddError(parser.Errorf(line[1].Pos, parser.ErrorSyntax,
					"unexpected tokens after %s", stop))
			}
			return true
		}
		fc.statement(line)
	}
}

// statement assembles one statement: leading labels, then a directive or an
// instruction
func (fc *fileCtx) statement(line []parser.Token) {
	a := fc.a

	// leading label definitions
	for len(line) > 0 {
		if line[0].Type == parser.TokenLabel {
			fc.placeLabel(line[0])
			line = line[1:]
			continue
		}
		if len(line) >= 2 && line[0].Type == parser.TokenIdentifier && line[1].Type == parser.TokenColon {
			fc.placeLabel(line[0])
			line = line[2:]
			continue
		}
		break
	}
	if len(line) == 0 {
		return
	}

	switch line[0].Type {
	case parser.TokenKeyword:
		fc.directive(line)
	case parser.TokenIdentifier:
		fc.instruction(line)
	default:
		a.errs.AddError(parser.Errorf(line[0].Pos, parser.ErrorSyntax,
			"unexpected token %q at start of statement", line[0].Literal))
	}
}

func (fc *fileCtx) placeLabel(tok parser.Token) {
	name := tok.Literal
	if err := fc.a.scope.PlaceLabel(name, tok.Pos); err != nil {
		fc.a.errs.AddError(parser.Errorf(tok.Pos, parser.ErrorDuplicateSymbol, "%s", err))
		return
	}
	glog.V(2).Infof("label %s at 0x%08X", name, fc.a.sec.Here())
}

// instruction encodes one ARM or Thumb statement
func (fc *fileCtx) instruction(line []parser.Token) {
	a := fc.a
	if a.mode == ModeNone {
		a.errs.AddError(parser.NewError(line[0].Pos, parser.ErrorSyntax,
			"instruction before .arm or .thumb"))
		return
	}
	mnemonic := line[0].Literal
	operands := splitOperands(line[1:])
	a.curPos = line[0].Pos
	a.debug = append(a.debug, DebugLine{Pos: line[0].Pos, Addr: a.sec.Here()})
	glog.V(2).Infof("encode %s at 0x%08X", mnemonic, a.sec.Here())
	err := encoder.Encode(a, a.mode == ModeThumb, mnemonic, line[0].Pos, operands)
	if err != nil {
		a.addErr(err)
	}
}

// splitOperands splits statement tokens into operands at top-level commas
func splitOperands(tokens []parser.Token) [][]parser.Token {
	var out [][]parser.Token
	depth := 0
	start := 0
	for i, t := range tokens {
		switch t.Type {
		case parser.TokenLBracket, parser.TokenLBrace, parser.TokenLParen:
			depth++
		case parser.TokenRBracket, parser.TokenRBrace, parser.TokenRParen:
			depth--
		case parser.TokenComma:
			if depth == 0 {
				out = append(out, tokens[start:i])
				start = i + 1
			}
		}
	}
	if start < len(tokens) {
		out = append(out, tokens[start:])
	} else if len(tokens) > 0 && start == len(tokens) {
		out = append(out, nil)
	}
	return out
}

func (a *Assembler) addErr(err error) {
	switch e := err.(type) {
	case *parser.Error:
		a.errs.AddError(e)
	case *encoder.EncodingError:
		a.errs.AddError(parser.NewError(e.Pos, parser.ErrorEncoding, e.Message))
	default:
		a.errs.AddError(parser.NewError(parser.Position{}, parser.ErrorSyntax, err.Error()))
	}
}

// ---- encoder.Sink implementation ----

// Here returns the absolute address of the next emitted byte
func (a *Assembler) Here() uint32 { return a.sec.Here() }

// Offset returns the section offset of the next emitted byte
func (a *Assembler) Offset() int { return a.sec.Len() }

// Word32 emits an ARM instruction word, enforcing 4-byte alignment
func (a *Assembler) Word32(v uint32) error {
	if !a.sec.Aligned(4) {
		return parser.Errorf(a.curPos, parser.ErrorAlignment,
			"instruction at unaligned address 0x%08X", a.sec.Here())
	}
	a.sec.Emit32(v, false)
	return nil
}

// Word16 emits a Thumb instruction halfword, enforcing 2-byte alignment
func (a *Assembler) Word16(v uint16) error {
	if !a.sec.Aligned(2) {
		return parser.Errorf(a.curPos, parser.ErrorAlignment,
			"instruction at unaligned address 0x%08X", a.sec.Here())
	}
	a.sec.Emit16(v, false)
	return nil
}

// Eval evaluates an expression in the current scope
func (a *Assembler) Eval(e parser.Expr) (parser.Value, error) {
	return parser.Evaluate(e, a.scope)
}

// RegIndex resolves a register name through the current alias bindings
func (a *Assembler) RegIndex(name string) (int, bool) {
	return a.scope.RegisterIndex(name)
}

// FieldRef resolves a struct field for typed loads and stores
func (a *Assembler) FieldRef(name string) (int, bool, parser.Value, bool) {
	return a.scope.FieldRef(name)
}

// EvalCtx returns the current scope for deferred evaluation
func (a *Assembler) EvalCtx() parser.EvalContext {
	return a.scope
}

// Defer registers a rewrite applied once all symbols are placed. The current
// scope is captured so the expression still resolves after the enclosing
// block closes.
func (a *Assembler) Defer(f encoder.Fixup) {
	if f.Ctx == nil {
		f.Ctx = a.scope
	}
	a.fixups = append(a.fixups, f)
}

// Pool returns the pool queue for the current mode
func (a *Assembler) Pool() *encoder.Pool {
	if a.mode == ModeThumb {
		return a.thumbPool
	}
	return a.armPool
}

// deferredAbs builds a data fixup of the given element width index (0=byte,
// 1=halfword, 2=word)
func deferredAbs(kindIdx int, off int, e parser.Expr, pos parser.Position, be bool) encoder.Fixup {
	kinds := [...]encoder.FixupKind{encoder.FixAbs8, encoder.FixAbs16, encoder.FixAbs32}
	return encoder.Fixup{Kind: kinds[kindIdx], Offset: off, Expr: e, Pos: pos, BigEndian: be}
}
