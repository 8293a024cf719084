package script

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lookbusy1344/gba-assembler/parser"
)

// testHost records everything a script does to its host
type testHost struct {
	puts    []string
	says    []string
	exports map[string]Value
	data    []byte
	files   map[string][]byte
}

func (h *testHost) Put(text string) { h.puts = append(h.puts, text) }

func (h *testHost) EmitInts(width int, bigEndian bool, vals []float64) error {
	for _, v := range vals {
		u := packTruncate(v)
		for i := 0; i < width; i++ {
			shift := uint(i * 8)
			if bigEndian {
				shift = uint((width - 1 - i) * 8)
			}
			h.data = append(h.data, byte(u>>shift))
		}
	}
	return nil
}

func (h *testHost) EmitFill(width int, bigEndian bool, count int, val float64) error {
	vals := make([]float64, count)
	for i := range vals {
		vals[i] = val
	}
	return h.EmitInts(width, bigEndian, vals)
}

func (h *testHost) Export(name string, v Value, pos parser.Position) error {
	if h.exports == nil {
		h.exports = map[string]Value{}
	}
	if _, dup := h.exports[name]; dup {
		return fmt.Errorf("duplicate export %q", name)
	}
	h.exports[name] = v
	return nil
}

func (h *testHost) Lookup(name string) (Value, bool) {
	v, ok := h.exports[name]
	return v, ok
}

func (h *testHost) Say(s string) { h.says = append(h.says, s) }

func (h *testHost) ReadBinary(path string) ([]byte, error) {
	b, ok := h.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return b, nil
}

func run(t *testing.T, src string) *testHost {
	t.Helper()
	host := &testHost{}
	origin := parser.Position{Filename: "test.gvasm", Line: 2, Column: 1}
	err := Run(src, origin, "", host)
	require.NoError(t, err)
	return host
}

func runErr(t *testing.T, src string) error {
	t.Helper()
	host := &testHost{}
	origin := parser.Position{Filename: "test.gvasm", Line: 2, Column: 1}
	err := Run(src, origin, "", host)
	require.Error(t, err)
	return err
}

func TestScript_SayArithmetic(t *testing.T) {
	h := run(t, "say 1 + 2 * 3")
	require.Equal(t, []string{"7"}, h.says)
}

func TestScript_VarsAndInterpolation(t *testing.T) {
	h := run(t, "var x = 4\nsay \"v=${x + 1}\"")
	require.Equal(t, []string{"v=5"}, h.says)
}

func TestScript_StringOps(t *testing.T) {
	h := run(t, "var s = 'ab' ~ 'cd'\nsay s, size(s), s[1]")
	require.Equal(t, []string{"abcd 4 98"}, h.says)
}

func TestScript_IfElse(t *testing.T) {
	src := `var x = 2
if x == 1
  say 'one'
elseif x == 2
  say 'two'
else
  say 'many'
end`
	h := run(t, src)
	require.Equal(t, []string{"two"}, h.says)
}

func TestScript_ForRange(t *testing.T) {
	h := run(t, "for var v, i: range 3\n  say \"${i}:${v * 10}\"\nend")
	require.Equal(t, []string{"0:0", "1:10", "2:20"}, h.says)
}

func TestScript_DoWhile(t *testing.T) {
	src := `var i = 0
do
  i = i + 1
while i < 3
end
say i`
	h := run(t, src)
	require.Equal(t, []string{"3"}, h.says)
}

func TestScript_BreakContinue(t *testing.T) {
	src := `var total = 0
for var v: range 10
  if v == 2
    continue
  end
  if v == 5
    break
  end
  total = total + v
end
say total`
	h := run(t, src)
	// 0 + 1 + 3 + 4
	require.Equal(t, []string{"8"}, h.says)
}

func TestScript_InfiniteForWithBreak(t *testing.T) {
	src := `var n = 0
for
  n = n + 1
  if n >= 4
    break
  end
end
say n`
	h := run(t, src)
	require.Equal(t, []string{"4"}, h.says)
}

func TestScript_Goto(t *testing.T) {
	src := `var i = 0
top:
i = i + 1
if i < 3
  goto top
end
say i`
	h := run(t, src)
	require.Equal(t, []string{"3"}, h.says)
}

func TestScript_Functions(t *testing.T) {
	src := `def add(a, b)
  return a + b
end
say add(2, 3)`
	h := run(t, src)
	require.Equal(t, []string{"5"}, h.says)
}

func TestScript_FirstClassFunctions(t *testing.T) {
	src := `def double(x) return x * 2 end
var f = double
say f(21)`
	h := run(t, src)
	require.Equal(t, []string{"42"}, h.says)
}

func TestScript_Recursion(t *testing.T) {
	src := `def fact(n)
  if n <= 1
    return 1
  end
  return n * fact(n - 1)
end
say fact(6)`
	h := run(t, src)
	require.Equal(t, []string{"720"}, h.says)
}

func TestScript_ClosuresCaptureByReference(t *testing.T) {
	src := `var n = 0
def inc
  n = n + 1
end
inc()
inc()
say n`
	h := run(t, src)
	require.Equal(t, []string{"2"}, h.says)
}

func TestScript_Namespaces(t *testing.T) {
	src := `namespace gfx
  var width = 240
  def area(h) return width * h end
end
say gfx.width, gfx.area(2)`
	h := run(t, src)
	require.Equal(t, []string{"240 480"}, h.says)
}

func TestScript_Using(t *testing.T) {
	src := `namespace gfx
  var width = 240
end
using gfx
say width`
	h := run(t, src)
	require.Equal(t, []string{"240"}, h.says)
}

func TestScript_Exit(t *testing.T) {
	h := run(t, "say 'before'\nexit\nsay 'after'")
	require.Equal(t, []string{"before"}, h.says)
}

func TestScript_ErrorAborts(t *testing.T) {
	err := runErr(t, "error 'went wrong'")
	require.Contains(t, err.Error(), "went wrong")
}

func TestScript_PutAndEmitOrder(t *testing.T) {
	h := run(t, "put '.u8 1'\ni8 2\nput '.u8 3'")
	require.Equal(t, []string{".u8 1", ".u8 3"}, h.puts)
	require.Equal(t, []byte{2}, h.data)
}

func TestScript_EmitWidths(t *testing.T) {
	h := run(t, "i16 0x1234\nb16 0x1234\ni32 1\ni8fill 2, 9")
	require.Equal(t, []byte{0x34, 0x12, 0x12, 0x34, 1, 0, 0, 0, 9, 9}, h.data)
}

func TestScript_Lists(t *testing.T) {
	src := `var l = {1, 2}
list.push l, 3
l[0] = 10
say l[0], l[2], size(l)
say list.pop(l)
say size(l)`
	h := run(t, src)
	require.Equal(t, []string{"10 3 3", "3", "2"}, h.says)
}

func TestScript_ExportAndLookup(t *testing.T) {
	h := run(t, "export five = 5\nexport name = 'gba'")
	require.True(t, Equal(h.exports["five"], Num(5)))
	require.True(t, Equal(h.exports["name"], StrOf("gba")))

	// a second script sees the first one's exports through lookup
	host := &testHost{exports: h.exports}
	err := Run("say lookup('five')", parser.Position{Filename: "t", Line: 1}, "", host)
	require.NoError(t, err)
	require.Equal(t, []string{"5"}, host.says)
}

func TestScript_StructuralEquality(t *testing.T) {
	src := `var a = {1, 'two', {3, 4}}
var b = {1, 'two', {3, 4}}
say a == b, a != b`
	h := run(t, src)
	require.Equal(t, []string{"1 0"}, h.says)
}

func TestScript_NumLibrary(t *testing.T) {
	// num.round is half-to-even
	h := run(t, "say num.round(2.5), num.round(3.5), num.round(-2.5)\nsay num.floor(1.9), num.ceil(1.1), num.abs(-4)")
	require.Equal(t, []string{"2 4 -2", "1 2 4"}, h.says)
}

func TestScript_IntLibrary(t *testing.T) {
	h := run(t, "say int.and(0xF0, 0x3C), int.or(1, 2), int.shl(1, 4), int.shr(-8, 28), int.not(0)")
	require.Equal(t, []string{"48 3 16 15 -1"}, h.says)
}

func TestScript_StructPack(t *testing.T) {
	src := `var fmt = {'u8', 'u16'}
say struct.size(fmt)
var b = struct.str({1, 0x1234}, fmt)
say size(b)
var back = struct.list(b, fmt)
say back[0], back[1]`
	h := run(t, src)
	require.Equal(t, []string{"3", "3", "1 4660"}, h.says)
}

func TestScript_JSON(t *testing.T) {
	src := `var doc = json.load('{"a": [1, 2], "b": "x"}')
say json.type(doc)
var arr = json.get(doc, 'a')
say json.type(arr), json.size(arr)
say json.number(json.get(arr, 1))
say json.string(json.get(doc, 'b'))`
	h := run(t, src)
	require.Equal(t, []string{"object", "array 2", "2", "x"}, h.says)
}

func TestScript_PickleRoundTrip(t *testing.T) {
	src := `var l = {1, 'two', {3}}
var b = pickle.bin(l)
var l2 = pickle.val(b)
say l == l2, pickle.valid(b), pickle.valid('garbage{')`
	h := run(t, src)
	require.Equal(t, []string{"1 1 0"}, h.says)
}

func TestScript_PickleCycles(t *testing.T) {
	src := `var l = {1, 2}
list.push l, l
say pickle.circular(l)
var b = pickle.bin(l)
var l2 = pickle.val(b)
say pickle.circular(l2), l2[0]`
	h := run(t, src)
	require.Equal(t, []string{"1", "1 1"}, h.says)
}

func TestScript_PickleJSONRejectsCycles(t *testing.T) {
	err := runErr(t, "var l = {1}\nlist.push l, l\nsay pickle.json(l)")
	require.Contains(t, err.Error(), "circular")
}

func TestScript_PickleCopyAndSibling(t *testing.T) {
	src := `var inner = {1}
var l = {inner, inner}
say pickle.sibling(l), pickle.circular(l)
var c = pickle.copy(l)
c[0][0] = 9
say l[0][0], c[0][0], c[1][0]`
	h := run(t, src)
	// the copy preserves sharing: c[0] and c[1] are the same list
	require.Equal(t, []string{"1 0", "1 9 9"}, h.says)
}

func TestScript_PickleJSONText(t *testing.T) {
	h := run(t, "say pickle.json({1, 'x', nil})")
	require.Equal(t, []string{`[1,"x",null]`}, h.says)
}

func TestScript_Embed(t *testing.T) {
	host := &testHost{files: map[string][]byte{"data.bin": {1, 2, 3}}}
	err := Run("var b = embed('data.bin')\nsay size(b)", parser.Position{Filename: "t", Line: 1}, "", host)
	require.NoError(t, err)
	require.Equal(t, []string{"3"}, host.says)
}

func TestScript_ErrorPosition(t *testing.T) {
	// origin line 2: an error on the script's third line lands on file line 4
	err := runErr(t, "var x = 1\nsay x\nerror 'bad'")
	var pe *parser.Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, 4, pe.Pos.Line)
	require.Equal(t, parser.ErrorScript, pe.Kind)
}

func TestScript_UnknownNameFails(t *testing.T) {
	err := runErr(t, "say frobnicate(1)")
	require.Contains(t, err.Error(), "unknown name")
}

func TestScript_Printf(t *testing.T) {
	h := run(t, "printf '%d-%x', 10, 255")
	require.Equal(t, []string{"10-ff"}, h.says)
}

func TestScript_CompileErrors(t *testing.T) {
	bad := []string{
		"if 1\nsay 1",        // missing end
		"break",              // outside loop
		"goto nowhere",       // unknown label
		"end",                // stray end
		"var 1 = 2",          // bad name
	}
	for _, src := range bad {
		host := &testHost{}
		err := Run(src, parser.Position{Filename: "t", Line: 1}, "", host)
		if err == nil {
			t.Errorf("%q: expected a compile error", strings.Split(src, "\n")[0])
		}
	}
}
