package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// AnnotationTag is the marker that starts an arity annotation comment.
const AnnotationTag = "OP_ENTER:"

// Arity is the argument specification of a method, block or lambda.
//
// The field set mirrors the aspec operand of mruby's OP_ENTER instruction:
//
//	def m(a, b = 1, *c, d, e:, f: 2, **g, &h)
//	    req=1 opt=1 rest=1 post=1 key=2 kdict=1 block=1
type Arity struct {
	// Req counts required positional parameters before any splat.
	Req int `json:"req" yaml:"req"`

	// Opt counts positional parameters with a default value.
	Opt int `json:"opt" yaml:"opt"`

	// Rest is 1 when a splat (*args) parameter is declared.
	Rest int `json:"rest" yaml:"rest"`

	// Post counts required positional parameters declared after the splat.
	Post int `json:"post" yaml:"post"`

	// Key counts keyword parameters, required and optional alike.
	Key int `json:"key" yaml:"key"`

	// KDict is 1 when a keyword splat (**opts) parameter is declared.
	KDict int `json:"kdict" yaml:"kdict"`

	// Block is 1 when an explicit block (&blk) parameter is declared.
	Block int `json:"block" yaml:"block"`
}

// arityFields lists the annotation keys in their canonical order.
var arityFields = []string{"req", "opt", "rest", "post", "key", "kdict", "block"}

// values returns the fields in canonical order.
func (a Arity) values() []int {
	return []int{a.Req, a.Opt, a.Rest, a.Post, a.Key, a.KDict, a.Block}
}

// set assigns the field named by key. It reports false for unknown keys.
func (a *Arity) set(key string, v int) bool {
	switch key {
	case "req":
		a.Req = v
	case "opt":
		a.Opt = v
	case "rest":
		a.Rest = v
	case "post":
		a.Post = v
	case "key":
		a.Key = v
	case "kdict":
		a.KDict = v
	case "block":
		a.Block = v
	default:
		return false
	}
	return true
}

// String returns the compact "req:opt:rest:post:key:kdict:block" form used
// by mruby's own code dumper.
func (a Arity) String() string {
	vals := a.values()
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ":")
}

// Fields renders "req: R opt: O rest: S post: P key: K kdict: D block: B".
func (a Arity) Fields() string {
	vals := a.values()
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%s: %d", arityFields[i], v)
	}
	return strings.Join(parts, " ")
}

// Annotation renders the arity as an annotation comment body, without the
// leading "#". The double space after the tag matches the fixture files.
//
// Example:
//
//	Arity{Req: 1, Rest: 1}.Annotation()
//	→ "OP_ENTER:  req: 1 opt: 0 rest: 1 post: 0 key: 0 kdict: 0 block: 0"
func (a Arity) Annotation() string {
	return AnnotationTag + "  " + a.Fields()
}

// Diff returns the names of the fields whose values differ between a and
// other, in canonical order. An empty result means the arities are equal.
func (a Arity) Diff(other Arity) []string {
	mine, theirs := a.values(), other.values()
	var diff []string
	for i := range mine {
		if mine[i] != theirs[i] {
			diff = append(diff, arityFields[i])
		}
	}
	return diff
}

// Equal reports whether a and other declare the same parameter slots.
func (a Arity) Equal(other Arity) bool {
	return a == other
}

// annotationPair matches one "name: value" pair at the start of what is
// left of an annotation body.
var annotationPair = regexp.MustCompile(`^([a-z]+)\s*:\s*(-?\d+)(?:\s+|$)`)

// fieldMax is the largest value an aspec field can encode: rest, kdict
// and block are single bits, the counts are five bits wide.
func fieldMax(key string) int {
	switch key {
	case "rest", "kdict", "block":
		return 1
	default:
		return 0x1f
	}
}

// IsAnnotation reports whether a comment line carries an arity annotation.
func IsAnnotation(line string) bool {
	return strings.HasPrefix(trimComment(line), AnnotationTag)
}

// trimComment strips blanks and leading "#" characters.
func trimComment(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "#")
	return strings.TrimSpace(s)
}

// ParseAnnotation parses an annotation comment such as
//
//	# OP_ENTER:  req: 1 opt: 0 rest: 0 post: 0 key: 0 kdict: 0 block: 0
//
// The leading "#" and surrounding blanks are optional. Fields may appear in
// any order, but all seven must be present exactly once and nothing else
// may follow the tag.
func ParseAnnotation(line string) (Arity, error) {
	body := trimComment(line)
	if !strings.HasPrefix(body, AnnotationTag) {
		return Arity{}, fmt.Errorf("not an %s annotation: %q", AnnotationTag, line)
	}
	body = strings.TrimPrefix(body, AnnotationTag)

	var arity Arity
	seen := make(map[string]bool, len(arityFields))
	rest := strings.TrimSpace(body)
	for rest != "" {
		m := annotationPair.FindStringSubmatch(rest)
		if m == nil {
			return Arity{}, fmt.Errorf("unexpected text %q in annotation", rest)
		}
		rest = rest[len(m[0]):]

		key := m[1]
		if seen[key] {
			return Arity{}, fmt.Errorf("duplicate field %q in annotation", key)
		}
		v, err := strconv.Atoi(m[2])
		if err != nil {
			return Arity{}, fmt.Errorf("invalid value for %q: %w", key, err)
		}
		if v < 0 {
			return Arity{}, fmt.Errorf("negative value for %q", key)
		}
		if !arity.set(key, v) {
			return Arity{}, fmt.Errorf("unknown field %q in annotation", key)
		}
		if limit := fieldMax(key); v > limit {
			return Arity{}, fmt.Errorf("value %d for %q exceeds %d", v, key, limit)
		}
		seen[key] = true
	}

	var missing []string
	for _, key := range arityFields {
		if !seen[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Arity{}, fmt.Errorf("annotation missing fields: %s", strings.Join(missing, ", "))
	}
	return arity, nil
}

// MethodKind classifies the construct a signature belongs to.
type MethodKind string

const (
	// KindInstance is a plain "def name" method.
	KindInstance MethodKind = "instance"

	// KindSingleton is "def self.name", "def obj.name", or a def nested in
	// a "class << obj" body.
	KindSingleton MethodKind = "singleton"

	// KindBlock is a do...end or {...} block attached to a call.
	KindBlock MethodKind = "block"

	// KindLambda is a stabby lambda (->(x) { }).
	KindLambda MethodKind = "lambda"
)

// String returns the string representation of MethodKind.
func (k MethodKind) String() string {
	return string(k)
}

// IsValid checks whether the MethodKind value is one of the predefined kinds.
func (k MethodKind) IsValid() bool {
	switch k {
	case KindInstance, KindSingleton, KindBlock, KindLambda:
		return true
	default:
		return false
	}
}

// ParseMethodKind converts a string to a MethodKind.
func ParseMethodKind(s string) (MethodKind, error) {
	kind := MethodKind(strings.ToLower(s))
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid method kind: %q (valid: instance, singleton, block, lambda)", s)
	}
	return kind, nil
}
