package rbsig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/mrbdec/internal/model"
)

const methodsRB = `def printHello
  puts "Hello"
  # OP_ENTER:  req: 0 opt: 0 rest: 0 post: 0 key: 0 kdict: 0 block: 0
end

def notA(a)
  # OP_ENTER:  req: 1 opt: 0 rest: 0 post: 0 key: 0 kdict: 0 block: 0
  !a
end

def aPlusB(a, b)
  # OP_ENTER:  req: 2 opt: 0 rest: 0 post: 0 key: 0 kdict: 0 block: 0
  res = a + b
  return res
end

def aPlusBPlusC(a, b, c)
  # OP_ENTER:  req: 3 opt: 0 rest: 0 post: 0 key: 0 kdict: 0 block: 0
  res = a + b + c
  return res
end

def aMultB(a, b = 1.0, c = 2.0)
  # OP_ENTER:  req: 1 opt: 1 rest: 0 post: 0 key: 0 kdict: 0 block: 0
  return 1
  res = a * b
  return res
end

def printAll(prefix, *args)
  # OP_ENTER:  req: 1 opt: 0 rest: 1 post: 0 key: 0 kdict: 0 block: 0
  args.each do |arg|
    # OP_ENTER:  req: 1 opt: 0 rest: 0 post: 0 key: 0 kdict: 0 block: 0
    puts "#{prefix} #{arg}"
  end
end

def methodWithBlockParam(a, b, &block)
  # OP_ENTER:  req: 2 opt: 0 rest: 0 post: 0 key: 0 kdict: 0 block: 1
  block.call(a, b)
end
`

const classesRB = `module MyMod
    module NestedMod
        class Class1
        end
    end
end

class Class2
    def printHello
        puts "Hello"
    end
end

class Class3 < Class2
    def test
        x = 1
        y = 2
        puts (x + y)
    end
end

class Class4
    @@y = 2

    def initialize
        @x = 1
    end
    def test
        puts (@x + @@y)
    end
end

class Class5
    def self.single
    end
end

test = Class5.new
def test.single2
end
class << test
    def single3
    end
end
`

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser()
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestParse_MethodsFixture(t *testing.T) {
	p := newTestParser(t)
	f, err := p.Parse("methods.rb", []byte(methodsRB))
	require.NoError(t, err)
	assert.Empty(t, f.SyntaxErrors)

	tests := []struct {
		name  string
		kind  model.MethodKind
		line  int
		arity model.Arity
	}{
		{"printHello", model.KindInstance, 1, model.Arity{}},
		{"notA", model.KindInstance, 6, model.Arity{Req: 1}},
		{"aPlusB", model.KindInstance, 11, model.Arity{Req: 2}},
		{"aPlusBPlusC", model.KindInstance, 17, model.Arity{Req: 3}},
		{"aMultB", model.KindInstance, 23, model.Arity{Req: 1, Opt: 2}},
		{"printAll", model.KindInstance, 30, model.Arity{Req: 1, Rest: 1}},
		{"args.each block", model.KindBlock, 32, model.Arity{Req: 1}},
		{"methodWithBlockParam", model.KindInstance, 38, model.Arity{Req: 2, Block: 1}},
	}
	require.Len(t, f.Signatures, len(tests))
	for i, tt := range tests {
		sig := f.Signatures[i]
		assert.Equal(t, tt.name, sig.Name)
		assert.Equal(t, tt.kind, sig.Kind, tt.name)
		assert.Equal(t, tt.line, sig.Line, tt.name)
		assert.Equal(t, tt.arity, sig.Arity, tt.name)
		require.NotNil(t, sig.Annotation, tt.name)
	}

	printAll := f.Signatures[5]
	assert.Equal(t, []Param{{Name: "prefix", Kind: ParamReq}, {Name: "args", Kind: ParamRest}}, printAll.Params)
	assert.Equal(t, 31, printAll.AnnotationLine)
	assert.Equal(t, 33, f.Signatures[6].AnnotationLine)
}

func TestCheck_MethodsFixture(t *testing.T) {
	p := newTestParser(t)
	f, err := p.Parse("methods.rb", []byte(methodsRB))
	require.NoError(t, err)

	findings := Check([]*File{f})
	require.Len(t, findings, 8)

	for _, fd := range findings {
		assert.Equal(t, "methods.rb", fd.Path)
		if fd.Signature.Name == "aMultB" {
			assert.Equal(t, StatusMismatch, fd.Status)
			assert.Equal(t, []string{"opt"}, fd.Diff)
			continue
		}
		assert.Equal(t, StatusOK, fd.Status, fd.Signature.Name)
		assert.Empty(t, fd.Diff)
	}

	counts := Tally(findings)
	assert.Equal(t, Counts{OK: 7, Mismatch: 1}, counts)
	assert.True(t, counts.Failed())
}

func TestParse_ClassesFixture(t *testing.T) {
	p := newTestParser(t)
	f, err := p.Parse("classes.rb", []byte(classesRB))
	require.NoError(t, err)

	var got []string
	kinds := map[string]model.MethodKind{}
	for _, sig := range f.Signatures {
		got = append(got, sig.QualifiedName())
		kinds[sig.QualifiedName()] = sig.Kind
		assert.Nil(t, sig.Annotation)
	}
	assert.Equal(t, []string{
		"Class2#printHello",
		"Class3#test",
		"Class4#initialize",
		"Class4#test",
		"Class5.single",
		"test.single2",
		"single3",
	}, got)
	assert.Equal(t, model.KindSingleton, kinds["Class5.single"])
	assert.Equal(t, model.KindSingleton, kinds["test.single2"])
	assert.Equal(t, model.KindSingleton, kinds["single3"])

	counts := Tally(Check([]*File{f}))
	assert.Equal(t, Counts{Unannotated: 7}, counts)
	assert.False(t, counts.Failed())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want model.Arity
	}{
		{
			name: "every kind",
			src:  "def m(a, b = 1, *c, d, e:, f: 2, **g, &h); end",
			want: model.Arity{Req: 1, Opt: 1, Rest: 1, Post: 1, Key: 2, KDict: 1, Block: 1},
		},
		{
			name: "required after optional is post",
			src:  "def m(a, b = 1, c); end",
			want: model.Arity{Req: 1, Opt: 1, Post: 1},
		},
		{
			name: "anonymous splats",
			src:  "def m(*, **); end",
			want: model.Arity{Rest: 1, KDict: 1},
		},
		{
			name: "argument forwarding",
			src:  "def m(...); end",
			want: model.Arity{Rest: 1, KDict: 1, Block: 1},
		},
		{
			name: "destructuring and block locals",
			src:  "foo { |a, (b, c); d| }",
			want: model.Arity{Req: 2},
		},
		{
			name: "block trailing comma",
			src:  "foo { |x, | }",
			want: model.Arity{Req: 1, Rest: 1},
		},
		{
			name: "block trailing comma before locals",
			src:  "foo { |x, y, ; z| }",
			want: model.Arity{Req: 2, Rest: 1},
		},
		{
			name: "stabby lambda",
			src:  "->(x, y = 1) { x }",
			want: model.Arity{Req: 1, Opt: 1},
		},
		{
			name: "bare lambda parameter",
			src:  "->x { x }",
			want: model.Arity{Req: 1},
		},
		{
			name: "no parameters",
			src:  "def m; end",
			want: model.Arity{},
		},
	}

	p := newTestParser(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := p.Parse("t.rb", []byte(tt.src))
			require.NoError(t, err)
			require.Len(t, f.Signatures, 1)
			assert.Equal(t, tt.want, f.Signatures[0].Arity)
		})
	}
}

func TestParse_AnnotationScoping(t *testing.T) {
	src := `def outer(list)
  list.map { |x|
    # OP_ENTER:  req: 1 opt: 0 rest: 0 post: 0 key: 0 kdict: 0 block: 0
    x * 2
  }
end

square = ->(n) do
  # OP_ENTER:  req: 1 opt: 0 rest: 0 post: 0 key: 0 kdict: 0 block: 0
  n * n
end

def broken(a)
  # OP_ENTER:  req: 1
end
`
	p := newTestParser(t)
	f, err := p.Parse("scoping.rb", []byte(src))
	require.NoError(t, err)
	require.Len(t, f.Signatures, 4)

	assert.Equal(t, "outer", f.Signatures[0].Name)
	assert.Nil(t, f.Signatures[0].Annotation)

	assert.Equal(t, "list.map block", f.Signatures[1].Name)
	assert.NotNil(t, f.Signatures[1].Annotation)

	assert.Equal(t, model.KindLambda, f.Signatures[2].Kind)
	assert.NotNil(t, f.Signatures[2].Annotation)

	findings := Check([]*File{f})
	assert.Equal(t, StatusUnannotated, findings[0].Status)
	assert.Equal(t, StatusOK, findings[1].Status)
	assert.Equal(t, StatusOK, findings[2].Status)
	assert.Equal(t, StatusMalformed, findings[3].Status)
	assert.Contains(t, findings[3].Signature.AnnotationError, "missing fields")
}

func TestParse_SyntaxErrors(t *testing.T) {
	p := newTestParser(t)
	f, err := p.Parse("bad.rb", []byte("def ok(a)\nend\n)\n"))
	require.NoError(t, err)
	assert.NotEmpty(t, f.SyntaxErrors)
	require.NotEmpty(t, f.Signatures)
	assert.Equal(t, "ok", f.Signatures[0].Name)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "methods.rb")
	require.NoError(t, os.WriteFile(path, []byte(methodsRB), 0o644))

	p := newTestParser(t)
	f, err := p.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, f.Path)
	assert.Len(t, f.Signatures, 8)

	_, err = p.ParseFile(filepath.Join(dir, "missing.rb"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
