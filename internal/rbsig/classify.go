package rbsig

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/shinji-kodama/mrbdec/internal/model"
)

// classify walks a parameter list node (method_parameters,
// block_parameters or lambda_parameters) and returns the declared
// parameters with the arity they add up to.
//
// Required parameters after an optional or splat parameter are post
// parameters, matching how mrbc fills the OP_ENTER operand.
func classify(params *sitter.Node, src []byte) ([]Param, model.Arity) {
	var (
		out   []Param
		arity model.Arity
		after bool
	)
	if params == nil {
		return out, arity
	}

	// A bare identifier is the "->x { }" lambda form.
	if params.Kind() == "identifier" {
		arity.Req = 1
		return []Param{{Name: params.Utf8Text(src), Kind: ParamReq}}, arity
	}

	// trailing is set while the last token seen is a comma, as in |x, |.
	trailing := false
	for i := uint(0); i < params.ChildCount(); i++ {
		child := params.Child(i)
		if child == nil {
			continue
		}
		if !child.IsNamed() {
			if child.Kind() == "," {
				trailing = true
			}
			continue
		}
		// Block-local variables (|a; b|) are not parameters.
		if params.FieldNameForChild(uint32(i)) == "locals" {
			continue
		}
		trailing = false

		name := fieldText(child, "name", src)
		switch child.Kind() {
		case "identifier", "destructured_parameter":
			name = child.Utf8Text(src)
			if after {
				arity.Post++
				out = append(out, Param{Name: name, Kind: ParamPost})
			} else {
				arity.Req++
				out = append(out, Param{Name: name, Kind: ParamReq})
			}
		case "optional_parameter":
			arity.Opt++
			after = true
			out = append(out, Param{Name: name, Kind: ParamOpt})
		case "splat_parameter":
			arity.Rest = 1
			after = true
			out = append(out, Param{Name: name, Kind: ParamRest})
		case "keyword_parameter":
			arity.Key++
			out = append(out, Param{Name: name, Kind: ParamKey})
		case "hash_splat_parameter":
			arity.KDict = 1
			out = append(out, Param{Name: name, Kind: ParamKDict})
		case "block_parameter":
			arity.Block = 1
			out = append(out, Param{Name: name, Kind: ParamBlock})
		case "forward_parameter":
			arity.Rest, arity.KDict, arity.Block = 1, 1, 1
			after = true
			out = append(out, Param{Name: "...", Kind: ParamForward})
		}
	}
	// mruby parses a block's excess trailing comma as an anonymous rest
	// parameter, so |x, | takes req 1 and the rest flag.
	if trailing && params.Kind() == "block_parameters" {
		arity.Rest = 1
	}
	return out, arity
}

func fieldText(n *sitter.Node, field string, src []byte) string {
	if f := n.ChildByFieldName(field); f != nil {
		return f.Utf8Text(src)
	}
	return ""
}
