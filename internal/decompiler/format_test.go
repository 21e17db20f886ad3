package decompiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func render(n Node) string {
	return n.format(&formatter{indent: DefaultIndent}, 0)
}

func binop(l Node, op string, r Node) *call {
	return &call{Recv: l, Name: op, Args: []Node{r}}
}

func id(name string) *ident { return &ident{Name: name} }

func TestFormat_Precedence(t *testing.T) {
	a, b, c := id("a"), id("b"), id("c")
	tests := []struct {
		name string
		node Node
		want string
	}{
		{"tighter right operand", binop(a, "+", binop(b, "*", c)), "a + b * c"},
		{"looser left operand", binop(binop(a, "+", b), "*", c), "(a + b) * c"},
		{"left associative", binop(binop(a, "-", b), "-", c), "a - b - c"},
		{"right operand of same priority", binop(a, "-", binop(b, "-", c)), "a - (b - c)"},
		{"power is right associative", binop(a, "**", binop(b, "**", c)), "a ** b ** c"},
		{"power left operand", binop(binop(a, "**", b), "**", c), "(a ** b) ** c"},
		{"negative literal base", binop(&lit{Text: "-2"}, "**", a), "(-2) ** a"},
		{"unary on call", &call{Recv: binop(a, "==", b), Name: "!"}, "!(a == b)"},
		{"method on operator result", &call{Recv: binop(a, "+", b), Name: "to_s"}, "(a + b).to_s"},
		{"index set", &call{Recv: a, Name: "[]=", Args: []Node{&lit{Text: "0"}, b}}, "a[0] = b"},
		{"setter", &call{Recv: a, Name: "size=", Args: []Node{b}}, "a.size = b"},
		{"index read", &call{Recv: a, Name: "[]", Args: []Node{&sym{Name: "k"}}}, "a[:k]"},
		{"block argument", &call{Name: "map", BlockArg: &sym{Name: "to_s"}}, "map(&:to_s)"},
		{"range operands", &rangeLit{Lo: binop(a, "+", b), Hi: c}, "a + b..c"},
		{"splat argument", &call{Name: "f", Args: []Node{&splat{Value: a}}}, "f(*a)"},
		{"scoped constant", &scoped{Scope: id("A"), Name: "B"}, "A::B"},
		{"bare return", &jump{Keyword: "return", Value: newNil()}, "return"},
		{"break with value", &jump{Keyword: "break", Value: a}, "break a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(tt.node))
		})
	}
}

func TestFormat_ArrayWrap(t *testing.T) {
	short := &array{Elems: []Node{&lit{Text: "1"}, &lit{Text: "2"}}}
	assert.Equal(t, "[1, 2]", render(short))

	var long []Node
	for i := 0; i < 8; i++ {
		long = append(long, &str{Value: strings.Repeat("x", 10)})
	}
	got := render(&array{Elems: long})
	lines := strings.Split(got, "\n")
	assert.Equal(t, "[", lines[0])
	assert.Equal(t, `  "xxxxxxxxxx",`, lines[1])
	assert.Equal(t, `  "xxxxxxxxxx"`, lines[8])
	assert.Equal(t, "]", lines[9])
}

func TestFormat_Lambdas(t *testing.T) {
	body := []Node{binop(id("x"), "*", &lit{Text: "2"})}
	params := []param{{Name: "x"}}

	assert.Equal(t, "->(x) { x * 2 }", render(&lambda{Params: params, Body: body, Flags: lambdaStrict}))
	assert.Equal(t, "proc { |x| x * 2 }", render(&lambda{Params: params, Body: body, Flags: lambdaCapture}))
	assert.Equal(t, "-> {}", render(&lambda{Flags: lambdaStrict}))

	c := &call{Recv: id("list"), Name: "each", Block: &lambda{Params: params}}
	assert.Equal(t, "list.each { |x| }", render(c))

	long := &lambda{Params: params, Body: []Node{
		&call{Name: "puts", Args: []Node{id("x")}},
		&call{Name: "puts", Args: []Node{id("x")}},
	}}
	c = &call{Recv: id("list"), Name: "each", Block: long}
	assert.Equal(t, "list.each do |x|\n  puts(x)\n  puts(x)\nend", render(c))
}

func TestFormat_Params(t *testing.T) {
	params := []param{
		{Name: "a"},
		{Name: "b", Kind: paramOpt, Default: &lit{Text: "1.0"}},
		{Name: "rest", Kind: paramRest},
		{Name: "c", Kind: paramPost},
		{Name: "k", Kind: paramKey},
		{Name: "opts", Kind: paramKDict},
		{Name: "blk", Kind: paramBlock},
	}
	def := &methodDef{Name: "m", Params: params}
	assert.Equal(t, "def m(a, b = 1.0, *rest, c, k:, **opts, &blk)\nend", render(def))
}

func TestEscapeString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{`a"b`, `a\"b`},
		{`back\slash`, `back\\slash`},
		{"tab\tnl\n", `tab\tnl\n`},
		{"#{x} #$y #@z #", `\#{x} \#$y \#@z #`},
		{"\x1b[0m", `\e[0m`},
		{"\x00\x7f", `\x00\x7F`},
		{"\xff", `\xFF`},
		{"héllo", "héllo"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeString(tt.in), "input %q", tt.in)
	}
}

func TestSymbolLiteral(t *testing.T) {
	tests := map[string]string{
		"puts":   ":puts",
		"empty?": ":empty?",
		"name=":  ":name=",
		"@iv":    ":@iv",
		"$g":     ":$g",
		"+":      ":+",
		"[]=":    ":[]=",
		"-@":     ":-@",
		"a b":    `:"a b"`,
		"":       `:""`,
	}
	for in, want := range tests {
		assert.Equal(t, want, symbolLiteral(in), "symbol %q", in)
	}
}

func TestFloatLiteral(t *testing.T) {
	tests := map[string]string{
		"1":       "1.0",
		"2.5":     "2.5",
		"-0":      "-0.0",
		"1e+100":  "1.0e+100",
		"1.5e-07": "1.5e-07",
		"inf":     "Float::INFINITY",
		"-inf":    "-Float::INFINITY",
		"nan":     "Float::NAN",
		"junk":    "junk",
	}
	for in, want := range tests {
		assert.Equal(t, want, floatLiteral(in), "float %q", in)
	}
}
