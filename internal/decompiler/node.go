package decompiler

import (
	"strconv"
	"strings"

	"github.com/shinji-kodama/mrbdec/internal/model"
)

// Node is one element of the recovered Ruby syntax tree. Nodes are always
// handled by pointer: the reader tracks pending statements by identity.
type Node interface {
	// format renders the node. Multi-line output indents continuation
	// lines relative to depth.
	format(f *formatter, depth int) string

	// priority is the operator priority of the node's outermost
	// construct, or -1 for atoms that never need parentheses.
	priority() int
}

type atom struct{}

func (atom) priority() int { return -1 }

// lit is a literal written verbatim: nil, true, false, self or a number.
type lit struct {
	Text string
}

func (n *lit) format(*formatter, int) string { return n.Text }

func (n *lit) priority() int {
	if strings.HasPrefix(n.Text, "-") {
		return priorityOf("-@")
	}
	return -1
}

func newNil() *lit  { return &lit{Text: "nil"} }
func newSelf() *lit { return &lit{Text: "self"} }

func isNil(n Node) bool {
	l, ok := n.(*lit)
	return ok && l.Text == "nil"
}

func isSelf(n Node) bool {
	l, ok := n.(*lit)
	return ok && l.Text == "self"
}

// str is a string literal.
type str struct {
	atom
	Value string
}

func (n *str) format(*formatter, int) string { return quoteString(n.Value) }

// sym is a symbol literal.
type sym struct {
	atom
	Name string
}

func (n *sym) format(*formatter, int) string { return symbolLiteral(n.Name) }

// ident is a variable or constant reference: a local, @ivar, @@cvar,
// $global or Constant.
type ident struct {
	atom
	Name string
}

func (n *ident) format(*formatter, int) string { return n.Name }

// scoped is a constant looked up in another scope: Outer::Name.
type scoped struct {
	atom
	Scope Node
	Name  string
}

func (n *scoped) format(f *formatter, depth int) string {
	return f.receiver(n.Scope, depth) + "::" + n.Name
}

// call is a method call. A nil Recv means the implicit self receiver.
type call struct {
	Recv     Node
	Name     string
	Args     []Node
	Block    *lambda
	BlockArg Node
}

func (n *call) plain() bool {
	return n.Block == nil && n.BlockArg == nil && n.Recv != nil
}

func (n *call) isBinary() bool {
	return n.plain() && len(n.Args) == 1 && binaryOperators[n.Name]
}

func (n *call) isUnary() bool {
	_, ok := unaryOperators[n.Name]
	return n.plain() && len(n.Args) == 0 && ok
}

func (n *call) isSetter() bool {
	if !n.plain() || len(n.Args) != 1 || !strings.HasSuffix(n.Name, "=") {
		return false
	}
	return plainSymbol.MatchString(n.Name) && n.Name[0] != '@' && n.Name[0] != '$'
}

func (n *call) isIndexSet() bool {
	return n.plain() && n.Name == "[]=" && len(n.Args) >= 2
}

func (n *call) priority() int {
	switch {
	case n.isBinary(), n.isUnary():
		return priorityOf(n.Name)
	case n.isSetter(), n.isIndexSet():
		return priorityOf("=")
	default:
		return -1
	}
}

func (n *call) format(f *formatter, depth int) string {
	switch {
	case n.isBinary():
		p := priorityOf(n.Name)
		rightAssoc := n.Name == "**"
		return f.operand(n.Recv, p, depth, rightAssoc) + " " + n.Name + " " +
			f.operand(n.Args[0], p, depth, !rightAssoc)
	case n.isUnary():
		return unaryOperators[n.Name] + f.operand(n.Recv, priorityOf(n.Name), depth, false)
	case n.isIndexSet():
		last := len(n.Args) - 1
		return f.receiver(n.Recv, depth) + "[" + strings.Join(f.list(n.Args[:last], depth), ", ") + "] = " +
			n.Args[last].format(f, depth)
	case n.isSetter():
		return f.receiver(n.Recv, depth) + "." + strings.TrimSuffix(n.Name, "=") + " = " +
			n.Args[0].format(f, depth)
	}

	args := f.list(n.Args, depth)
	if n.BlockArg != nil {
		args = append(args, "&"+n.BlockArg.format(f, depth))
	}

	var s string
	if n.Recv != nil && n.Name == "[]" && n.BlockArg == nil {
		s = f.receiver(n.Recv, depth) + "[" + strings.Join(args, ", ") + "]"
	} else {
		if n.Recv != nil {
			s = f.receiver(n.Recv, depth) + "."
		}
		s += n.Name
		if len(args) > 0 {
			s += "(" + strings.Join(args, ", ") + ")"
		}
	}
	if n.Block != nil {
		s += " " + n.Block.blockFormat(f, depth)
	}
	return s
}

// yieldCall is a yield to the method's block.
type yieldCall struct {
	atom
	Args []Node
}

func (n *yieldCall) format(f *formatter, depth int) string {
	if len(n.Args) == 0 {
		return "yield"
	}
	return "yield(" + strings.Join(f.list(n.Args, depth), ", ") + ")"
}

// superCall is a call to the superclass method. Implicit marks the bare
// "super" form that forwards the current arguments.
type superCall struct {
	atom
	Args     []Node
	Implicit bool
	Block    *lambda
}

func (n *superCall) format(f *formatter, depth int) string {
	s := "super"
	if !n.Implicit {
		s += "(" + strings.Join(f.list(n.Args, depth), ", ") + ")"
	}
	if n.Block != nil {
		s += " " + n.Block.blockFormat(f, depth)
	}
	return s
}

// index is an element read with a constant index, produced by OP_AREF.
type index struct {
	atom
	Recv  Node
	Index int
}

func (n *index) format(f *formatter, depth int) string {
	return f.receiver(n.Recv, depth) + "[" + strconv.Itoa(n.Index) + "]"
}

// splat is *value inside an array literal or argument list.
type splat struct {
	atom
	Value Node
}

func (n *splat) format(f *formatter, depth int) string {
	return "*" + f.receiver(n.Value, depth)
}

type array struct {
	atom
	Elems []Node
}

func (n *array) format(f *formatter, depth int) string {
	return f.wrapped("[", "]", f.list(n.Elems, depth+1), depth, false)
}

type hash struct {
	atom
	Keys   []Node
	Values []Node
}

func (n *hash) format(f *formatter, depth int) string {
	items := make([]string, len(n.Keys))
	for i, k := range n.Keys {
		v := n.Values[i].format(f, depth+1)
		if s, ok := k.(*sym); ok && plainSymbol.MatchString(s.Name) && s.Name[0] != '@' && s.Name[0] != '$' {
			items[i] = s.Name + ": " + v
		} else {
			items[i] = k.format(f, depth+1) + " => " + v
		}
	}
	return f.wrapped("{", "}", items, depth, true)
}

type rangeLit struct {
	Lo, Hi    Node
	Exclusive bool
}

func (n *rangeLit) priority() int { return priorityOf("..") }

func (n *rangeLit) format(f *formatter, depth int) string {
	op := ".."
	if n.Exclusive {
		op = "..."
	}
	p := n.priority()
	return f.operand(n.Lo, p, depth, true) + op + f.operand(n.Hi, p, depth, true)
}

// interp is an interpolated string built from an OP_STRCAT chain.
type interp struct {
	atom
	Parts []Node
}

func (n *interp) format(f *formatter, depth int) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, p := range n.Parts {
		if s, ok := p.(*str); ok {
			sb.WriteString(escapeString(s.Value))
			continue
		}
		sb.WriteString("#{")
		sb.WriteString(p.format(f, depth))
		sb.WriteString("}")
	}
	sb.WriteByte('"')
	return sb.String()
}

type assign struct {
	Target Node
	Value  Node
}

func (n *assign) priority() int { return priorityOf("=") }

func (n *assign) format(f *formatter, depth int) string {
	return n.Target.format(f, depth) + " = " + n.Value.format(f, depth)
}

// jump is a return, break or next statement.
type jump struct {
	Keyword string
	Value   Node
}

func (n *jump) priority() int { return priorityOf("=") }

func (n *jump) format(f *formatter, depth int) string {
	if n.Value == nil || isNil(n.Value) {
		return n.Keyword
	}
	return n.Keyword + " " + n.Value.format(f, depth)
}

type comment struct {
	atom
	Text string
}

func (n *comment) format(*formatter, int) string { return "# " + n.Text }

type paramKind int

const (
	paramReq paramKind = iota
	paramOpt
	paramRest
	paramPost
	paramKey
	paramKDict
	paramBlock
)

type param struct {
	Name    string
	Kind    paramKind
	Default Node
}

func (p param) format(f *formatter, depth int) string {
	switch p.Kind {
	case paramOpt:
		return p.Name + " = " + p.Default.format(f, depth)
	case paramRest:
		return "*" + p.Name
	case paramKey:
		if p.Default != nil {
			return p.Name + ": " + p.Default.format(f, depth)
		}
		return p.Name + ":"
	case paramKDict:
		return "**" + p.Name
	case paramBlock:
		return "&" + p.Name
	default:
		return p.Name
	}
}

func formatParams(f *formatter, params []param, depth int) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.format(f, depth)
	}
	return strings.Join(parts, ", ")
}

// withAnnotation prepends the arity annotation when the formatter asks
// for one.
func withAnnotation(f *formatter, arity model.Arity, body []Node) []Node {
	if !f.annotate {
		return body
	}
	return append([]Node{&comment{Text: arity.Annotation()}}, body...)
}

// Lambda flags carried in Cz of OP_LAMBDA.
const (
	lambdaStrict  = 1
	lambdaCapture = 2
)

// lambda is a block or lambda body produced by OP_LAMBDA.
type lambda struct {
	atom
	Params []param
	Body   []Node
	Arity  model.Arity
	Flags  int

	// ForVars is set when the block is the body of a for loop.
	ForVars []string
}

func (n *lambda) isLambda() bool {
	return n.Flags&lambdaStrict != 0
}

// blockFormat renders the node as a block attached to a call.
func (n *lambda) blockFormat(f *formatter, depth int) string {
	body := withAnnotation(f, n.Arity, n.Body)
	params := ""
	if len(n.Params) > 0 {
		params = " |" + formatParams(f, n.Params, depth) + "|"
	}
	if len(body) == 0 {
		return "{" + params + " }"
	}
	if len(body) == 1 {
		line := body[0].format(f, depth+1)
		if !strings.Contains(line, "\n") && len(line) <= maxLineWidth/2 {
			return "{" + params + " " + line + " }"
		}
	}
	return "do" + params + "\n" + f.body(body, depth+1) + f.pad(depth) + "end"
}

func (n *lambda) format(f *formatter, depth int) string {
	if !n.isLambda() {
		return "proc " + n.blockFormat(f, depth)
	}
	body := withAnnotation(f, n.Arity, n.Body)
	head := "->"
	if len(n.Params) > 0 {
		head += "(" + formatParams(f, n.Params, depth) + ")"
	}
	if len(body) == 0 {
		return head + " {}"
	}
	if len(body) == 1 {
		line := body[0].format(f, depth+1)
		if !strings.Contains(line, "\n") && len(line) <= maxLineWidth/2 {
			return head + " { " + line + " }"
		}
	}
	return head + " do\n" + f.body(body, depth+1) + f.pad(depth) + "end"
}

// forLoop is "for vars in iter" recovered from an each call whose block
// has no locals of its own.
type forLoop struct {
	atom
	Vars []string
	Iter Node
	Body []Node
}

func (n *forLoop) format(f *formatter, depth int) string {
	return "for " + strings.Join(n.Vars, ", ") + " in " + n.Iter.format(f, depth) + "\n" +
		f.body(n.Body, depth+1) + f.pad(depth) + "end"
}

type methodDef struct {
	atom
	Recv   Node
	Name   string
	Params []param
	Body   []Node
	Arity  model.Arity
}

func (n *methodDef) format(f *formatter, depth int) string {
	head := "def "
	if n.Recv != nil {
		head += f.receiver(n.Recv, depth) + "."
	}
	head += n.Name
	if len(n.Params) > 0 {
		head += "(" + formatParams(f, n.Params, depth) + ")"
	}
	body := withAnnotation(f, n.Arity, n.Body)
	return head + "\n" + f.body(body, depth+1) + f.pad(depth) + "end"
}

// classRef is the value of OP_CLASS or OP_MODULE: a named class or
// module, optionally nested in Outer.
type classRef struct {
	atom
	Outer  Node
	Root   bool
	Name   string
	Super  Node
	Module bool
}

func (n *classRef) format(f *formatter, depth int) string {
	switch {
	case n.Root:
		return "::" + n.Name
	case n.Outer != nil:
		return f.receiver(n.Outer, depth) + "::" + n.Name
	default:
		return n.Name
	}
}

// singletonRef is the value of OP_SCLASS: the singleton class of Target.
type singletonRef struct {
	atom
	Target Node
}

func (n *singletonRef) format(f *formatter, depth int) string {
	return f.receiver(n.Target, depth) + ".singleton_class"
}

// objectBase is the value of OP_OCLASS, the root namespace.
type objectBase struct {
	atom
	name string
}

func (n *objectBase) format(*formatter, int) string { return n.name }

// mainClass is the target class of the top-level script.
type mainClass struct {
	atom
	name string
}

func (n *mainClass) format(*formatter, int) string { return n.name }

// blockRef is the value of OP_BLKPUSH, the block given to the method.
type blockRef struct {
	atom
	name string
}

func (n *blockRef) format(*formatter, int) string { return n.name }

// argsRef is the value of OP_ARGARY, the arguments of the current method
// as forwarded by a bare super.
type argsRef struct {
	atom
	name string
}

func (n *argsRef) format(*formatter, int) string { return n.name }

type classDef struct {
	atom
	Ref  *classRef
	Body []Node
}

func (n *classDef) format(f *formatter, depth int) string {
	head := "class "
	if n.Ref.Module {
		head = "module "
	}
	head += n.Ref.format(f, depth)
	if !n.Ref.Module && n.Ref.Super != nil {
		head += " < " + n.Ref.Super.format(f, depth)
	}
	return head + "\n" + f.body(n.Body, depth+1) + f.pad(depth) + "end"
}

type sclassDef struct {
	atom
	Target Node
	Body   []Node
}

func (n *sclassDef) format(f *formatter, depth int) string {
	return "class << " + n.Target.format(f, depth) + "\n" + f.body(n.Body, depth+1) + f.pad(depth) + "end"
}
