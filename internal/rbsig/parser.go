package rbsig

import (
	"fmt"
	"os"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	ruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"

	"github.com/shinji-kodama/mrbdec/internal/model"
)

// Parser extracts signatures from Ruby source. It is not safe for
// concurrent use; create one per goroutine.
type Parser struct {
	parser *sitter.Parser
}

// NewParser creates a parser with the Ruby grammar loaded.
func NewParser() (*Parser, error) {
	p := sitter.NewParser()
	if err := p.SetLanguage(sitter.NewLanguage(ruby.Language())); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to load ruby grammar: %w", err)
	}
	return &Parser{parser: p}, nil
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	if p == nil || p.parser == nil {
		return
	}
	p.parser.Close()
	p.parser = nil
}

// ParseFile reads and parses the file at path.
func (p *Parser) ParseFile(path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return p.Parse(path, src)
}

// Parse collects the signatures in src. path is only recorded in the
// result.
func (p *Parser) Parse(path string, src []byte) (*File, error) {
	if p == nil || p.parser == nil {
		return nil, fmt.Errorf("parser is closed")
	}
	tree := p.parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse %s", path)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("failed to parse %s: empty tree", path)
	}

	c := &collector{src: src, file: &File{Path: path, Signatures: []Signature{}}}
	c.walk(root, scope{})
	if root.HasError() {
		c.file.SyntaxErrors = syntaxErrors(root)
	}
	return c.file, nil
}

// scope is the lexical context of a node.
type scope struct {
	owner     []string
	singleton bool
}

func (s scope) nested(name string) scope {
	owner := append(append([]string(nil), s.owner...), name)
	return scope{owner: owner}
}

type collector struct {
	src  []byte
	file *File
}

func (c *collector) text(n *sitter.Node) string {
	return n.Utf8Text(c.src)
}

func (c *collector) walk(n *sitter.Node, sc scope) {
	switch n.Kind() {
	case "class", "module":
		if name := n.ChildByFieldName("name"); name != nil {
			sc = sc.nested(c.text(name))
		}
	case "singleton_class":
		sc.singleton = true
	case "method":
		kind := model.KindInstance
		if sc.singleton {
			kind = model.KindSingleton
		}
		c.add(n, fieldText(n, "name", c.src), kind, sc)
		sc.singleton = false
	case "singleton_method":
		name := fieldText(n, "object", c.src) + "." + fieldText(n, "name", c.src)
		c.add(n, name, model.KindSingleton, sc)
		sc.singleton = false
	case "lambda":
		c.add(n, "->", model.KindLambda, sc)
	case "block", "do_block":
		if !isLambdaBody(n) {
			name, kind := c.blockName(n)
			c.add(n, name, kind, sc)
		}
	}

	for i := uint(0); i < n.NamedChildCount(); i++ {
		if child := n.NamedChild(i); child != nil {
			c.walk(child, sc)
		}
	}
}

func isLambdaBody(n *sitter.Node) bool {
	parent := n.Parent()
	return parent != nil && parent.Kind() == "lambda"
}

// blockName names a block after the call it is attached to. Blocks given
// to a receiverless "lambda" or "proc" call are reported as lambdas.
func (c *collector) blockName(n *sitter.Node) (string, model.MethodKind) {
	call := n.Parent()
	if call == nil || call.Kind() != "call" {
		return "block", model.KindBlock
	}
	method := fieldText(call, "method", c.src)
	recv := call.ChildByFieldName("receiver")
	if recv == nil {
		if method == "lambda" {
			return method, model.KindLambda
		}
		return method + " block", model.KindBlock
	}
	return oneLine(c.text(recv)) + "." + method + " block", model.KindBlock
}

// oneLine shortens multi-line receivers to their first line.
func oneLine(s string) string {
	if first, _, ok := strings.Cut(s, "\n"); ok {
		return strings.TrimSpace(first) + "..."
	}
	return s
}

func (c *collector) add(n *sitter.Node, name string, kind model.MethodKind, sc scope) {
	params, arity := classify(n.ChildByFieldName("parameters"), c.src)
	sig := Signature{
		Name:   name,
		Owner:  strings.Join(sc.owner, "::"),
		Kind:   kind,
		Line:   int(n.StartPosition().Row) + 1,
		Params: params,
		Arity:  arity,
	}
	if params == nil {
		sig.Params = []Param{}
	}

	if comment := c.annotation(n, n); comment != nil {
		sig.AnnotationLine = int(comment.StartPosition().Row) + 1
		a, err := model.ParseAnnotation(c.text(comment))
		if err != nil {
			sig.AnnotationError = err.Error()
		} else {
			sig.Annotation = &a
		}
	}
	c.file.Signatures = append(c.file.Signatures, sig)
}

// annotation returns the first OP_ENTER comment that belongs to owner:
// comments inside nested definitions belong to those instead.
func (c *collector) annotation(owner, n *sitter.Node) *sitter.Node {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		if child.Kind() == "comment" {
			if model.IsAnnotation(c.text(child)) {
				return child
			}
			continue
		}
		if definesScope(child) && !(owner.Kind() == "lambda" && isLambdaBody(child)) {
			continue
		}
		if found := c.annotation(owner, child); found != nil {
			return found
		}
	}
	return nil
}

func definesScope(n *sitter.Node) bool {
	switch n.Kind() {
	case "method", "singleton_method", "lambda", "block", "do_block", "class", "module", "singleton_class":
		return true
	default:
		return false
	}
}

func syntaxErrors(root *sitter.Node) []SyntaxError {
	var out []SyntaxError
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.IsError() || n.IsMissing() {
			pos := n.StartPosition()
			msg := "syntax error"
			if n.IsMissing() {
				msg = fmt.Sprintf("missing %s", n.Kind())
			}
			out = append(out, SyntaxError{Line: int(pos.Row) + 1, Column: int(pos.Column) + 1, Message: msg})
			if n.IsError() {
				return
			}
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			visit(n.Child(i))
		}
	}
	visit(root)
	return out
}
