package decompiler

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxLineWidth is the width past which array and hash literals wrap onto
// one element per line.
const maxLineWidth = 80

// operatorPriority ranks Ruby operators; lower binds tighter. Operands
// of a lower-priority (higher number) operator get parenthesised.
var operatorPriority = map[string]int{
	"!": 0, "~": 0, "+@": 0,
	"**": 1,
	"-@": 2,
	"*": 3, "/": 3, "%": 3,
	"+": 4, "-": 4,
	"<<": 5, ">>": 5,
	"&": 6,
	"|": 7, "^": 7,
	">": 8, ">=": 8, "<": 8, "<=": 8,
	"<=>": 9, "==": 9, "===": 9, "!=": 9, "=~": 9, "!~": 9,
	"&&": 10,
	"||": 11,
	"..": 12, "...": 12,
	"?": 13, ":": 13,
	"=": 15,
}

// binaryOperators are method names rendered infix when called with one
// argument.
var binaryOperators = map[string]bool{
	"*": true, "/": true, "%": true, "+": true, "-": true, "**": true,
	"<<": true, ">>": true, "&": true, "|": true, "^": true,
	">": true, ">=": true, "<": true, "<=": true,
	"<=>": true, "==": true, "===": true, "!=": true, "=~": true, "!~": true,
}

// unaryOperators are method names rendered prefix when called without
// arguments.
var unaryOperators = map[string]string{
	"!": "!", "~": "~", "+@": "+", "-@": "-",
}

func priorityOf(op string) int {
	if p, ok := operatorPriority[op]; ok {
		return p
	}
	return 99
}

// formatter carries the rendering options through the node tree.
type formatter struct {
	indent   string
	annotate bool
}

func (f *formatter) pad(depth int) string {
	return strings.Repeat(f.indent, depth)
}

// body renders statements one per line at depth, each line terminated.
func (f *formatter) body(stmts []Node, depth int) string {
	var sb strings.Builder
	for _, s := range stmts {
		sb.WriteString(f.pad(depth))
		sb.WriteString(s.format(f, depth))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// operand renders n as the operand of an operator with priority prio.
// Operands binding looser are parenthesised; so are operands of equal
// priority on the side where the operator does not associate.
func (f *formatter) operand(n Node, prio int, depth int, tieParens bool) string {
	s := n.format(f, depth)
	p := n.priority()
	if p > prio || (tieParens && p == prio) {
		return "(" + s + ")"
	}
	return s
}

// receiver renders n as the receiver of a method call.
func (f *formatter) receiver(n Node, depth int) string {
	s := n.format(f, depth)
	if n.priority() >= 0 {
		return "(" + s + ")"
	}
	return s
}

func (f *formatter) list(nodes []Node, depth int) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.format(f, depth)
	}
	return out
}

// wrapped joins items inside open/close on one line when they fit and
// none spans lines, and one item per line otherwise.
func (f *formatter) wrapped(open, close string, items []string, depth int, spaced bool) string {
	if len(items) == 0 {
		return open + close
	}
	total := len(open) + len(close)
	multiline := false
	for _, it := range items {
		total += len(it) + 2
		if strings.Contains(it, "\n") {
			multiline = true
		}
	}
	if !multiline && total <= maxLineWidth {
		if spaced {
			return open + " " + strings.Join(items, ", ") + " " + close
		}
		return open + strings.Join(items, ", ") + close
	}
	var sb strings.Builder
	sb.WriteString(open)
	sb.WriteByte('\n')
	for i, it := range items {
		sb.WriteString(f.pad(depth + 1))
		sb.WriteString(it)
		if i < len(items)-1 {
			sb.WriteByte(',')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(f.pad(depth))
	sb.WriteString(close)
	return sb.String()
}

// escapeString escapes s for use inside a double-quoted Ruby string.
func escapeString(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			fmt.Fprintf(&sb, `\x%02X`, s[i])
			i++
			continue
		}
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '#':
			if i+1 < len(s) && (s[i+1] == '{' || s[i+1] == '$' || s[i+1] == '@') {
				sb.WriteString(`\#`)
			} else {
				sb.WriteByte('#')
			}
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case 0x1b:
			sb.WriteString(`\e`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&sb, `\x%02X`, r)
			} else {
				sb.WriteRune(r)
			}
		}
		i += size
	}
	return sb.String()
}

// quoteString renders s as a double-quoted Ruby string literal.
func quoteString(s string) string {
	return `"` + escapeString(s) + `"`
}

var plainSymbol = regexp.MustCompile(`^(?:[$]|@@?)?[A-Za-z_][A-Za-z0-9_]*[?!=]?$`)

// symbolLiteral renders name as a Ruby symbol, quoting it when needed.
func symbolLiteral(name string) string {
	if plainSymbol.MatchString(name) || binaryOperators[name] || name == "[]" || name == "[]=" {
		return ":" + name
	}
	if _, ok := unaryOperators[name]; ok {
		return ":" + name
	}
	return `:"` + escapeString(name) + `"`
}

// floatLiteral normalises the textual float mrbc stores in the pool so
// that it reads back as a Float ("1" becomes "1.0").
func floatLiteral(text string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	switch {
	case err != nil:
		return text
	case math.IsNaN(v):
		return "Float::NAN"
	case math.IsInf(v, 1):
		return "Float::INFINITY"
	case math.IsInf(v, -1):
		return "-Float::INFINITY"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if mant, exp, ok := strings.Cut(s, "e"); ok {
		if !strings.Contains(mant, ".") {
			mant += ".0"
		}
		return mant + "e" + exp
	}
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
