// Package rbsig collects method, block and lambda signatures from Ruby
// source files and checks them against the "# OP_ENTER:" arity
// annotations written inside their bodies.
//
// Source is parsed with tree-sitter-ruby. Only the shape of definitions
// is inspected; nothing is evaluated.
package rbsig

import (
	"strings"

	"github.com/shinji-kodama/mrbdec/internal/model"
)

// ParamKind is the role a parameter plays in the arity tuple.
type ParamKind string

const (
	ParamReq   ParamKind = "req"
	ParamOpt   ParamKind = "opt"
	ParamRest  ParamKind = "rest"
	ParamPost  ParamKind = "post"
	ParamKey   ParamKind = "key"
	ParamKDict ParamKind = "kdict"
	ParamBlock ParamKind = "block"

	// ParamForward is the "..." parameter, which counts as rest, kdict
	// and block at once.
	ParamForward ParamKind = "forward"
)

// Param is one declared parameter.
type Param struct {
	// Name is the parameter name as written; empty for anonymous splats
	// and block parameters.
	Name string    `json:"name" yaml:"name"`
	Kind ParamKind `json:"kind" yaml:"kind"`
}

// Signature is one method, block or lambda found in a source file.
type Signature struct {
	// Name is "name" for methods, "recv.name" for singleton methods and
	// "recv.call block" for blocks.
	Name string `json:"name" yaml:"name"`

	// Owner is the enclosing class or module path ("A::B"), empty at top
	// level.
	Owner string `json:"owner,omitempty" yaml:"owner,omitempty"`

	Kind   model.MethodKind `json:"kind" yaml:"kind"`
	Line   int              `json:"line" yaml:"line"`
	Params []Param          `json:"params" yaml:"params"`
	Arity  model.Arity      `json:"arity" yaml:"arity"`

	// Annotation is the arity from an "# OP_ENTER:" comment directly in
	// the body, nil when there is none or it failed to parse.
	Annotation *model.Arity `json:"annotation,omitempty" yaml:"annotation,omitempty"`

	// AnnotationLine is the 1-based line of the annotation comment.
	AnnotationLine int `json:"annotationLine,omitempty" yaml:"annotationLine,omitempty"`

	// AnnotationError is set when an annotation comment was found but is
	// malformed.
	AnnotationError string `json:"annotationError,omitempty" yaml:"annotationError,omitempty"`
}

// QualifiedName returns the name prefixed with its owner, using "#" for
// instance methods the way Ruby documentation does.
func (s Signature) QualifiedName() string {
	if s.Owner == "" {
		return s.Name
	}
	switch s.Kind {
	case model.KindInstance:
		return s.Owner + "#" + s.Name
	case model.KindSingleton:
		return s.Owner + "." + strings.TrimPrefix(s.Name, "self.")
	default:
		return s.Owner + " " + s.Name
	}
}

// SyntaxError is a parse error reported by tree-sitter. Collection
// continues past syntax errors.
type SyntaxError struct {
	Line    int    `json:"line" yaml:"line"`
	Column  int    `json:"column" yaml:"column"`
	Message string `json:"message" yaml:"message"`
}

// File holds everything collected from one source file.
type File struct {
	Path         string        `json:"path" yaml:"path"`
	Signatures   []Signature   `json:"signatures" yaml:"signatures"`
	SyntaxErrors []SyntaxError `json:"syntaxErrors,omitempty" yaml:"syntaxErrors,omitempty"`
}

// Status is the outcome of checking one signature.
type Status string

const (
	StatusOK          Status = "ok"
	StatusMismatch    Status = "mismatch"
	StatusUnannotated Status = "unannotated"
	StatusMalformed   Status = "malformed"
)

// Finding is the check result for one signature.
type Finding struct {
	Path      string    `json:"path" yaml:"path"`
	Signature Signature `json:"signature" yaml:"signature"`
	Status    Status    `json:"status" yaml:"status"`

	// Diff lists the arity fields that disagree, for StatusMismatch.
	Diff []string `json:"diff,omitempty" yaml:"diff,omitempty"`
}
