package decompiler

import (
	"fmt"

	"github.com/shinji-kodama/mrbdec/internal/disasm"
	"github.com/shinji-kodama/mrbdec/internal/model"
	"github.com/shinji-kodama/mrbdec/internal/opcode"
)

// forLoopAspec is the OP_ENTER operand mrbc emits for the block of a for
// loop: one required parameter holding the iterated value.
const forLoopAspec = 0x40000

// readLambda decompiles child irep idx as a method body, block or lambda.
func (r *reader) readLambda(idx, flags int, kind scopeKind) (*lambda, error) {
	irep, path := r.child(idx)
	c := newReader(r.opts, irep, path, r, kind, r.target)
	lam := &lambda{Flags: flags}

	start := 0
	if len(c.code) > 0 && c.code[0].Op == opcode.OP_ENTER {
		enter := c.code[0]
		lam.Arity = opcode.DecodeAspec(enter.Ax)
		start = 1

		if kind == scopeBlock && enter.Ax == forLoopAspec && irep.NumLocals <= 1 {
			if vars, next := c.forVars(); len(vars) > 0 {
				lam.ForVars = vars
				start = next
			}
		}
		if lam.ForVars == nil {
			params, bodyStart, err := c.params(lam.Arity)
			if err != nil {
				return nil, err
			}
			lam.Params = params
			start = bodyStart
		}
	}

	if err := c.run(start, len(c.code)); err != nil {
		return nil, err
	}
	lam.Body = c.statements()
	return lam, nil
}

// forVars recognizes the loop variable bindings at the head of a for
// loop block: either one OP_SETUPVAR of the block argument, or an
// OP_AREF/OP_SETUPVAR pair per variable when the value is destructured.
// It returns the variable names and the pc of the loop body.
func (r *reader) forVars() ([]string, int) {
	const arg = 1
	pc := 1
	if pc < len(r.code) && r.code[pc].Op == opcode.OP_SETUPVAR && r.code[pc].A == arg {
		return []string{r.upvarName(r.code[pc])}, pc + 1
	}

	var vars []string
	for pc+1 < len(r.code) {
		aref, set := r.code[pc], r.code[pc+1]
		if aref.Op != opcode.OP_AREF || aref.B != arg || set.Op != opcode.OP_SETUPVAR || set.A != aref.A {
			break
		}
		vars = append(vars, r.upvarName(set))
		pc += 2
	}
	return vars, pc
}

func (r *reader) upvarName(in opcode.Instruction) string {
	if l := r.up(in.C).reg(in.B).local; l != nil {
		return l.Name
	}
	return fmt.Sprintf("_upvar%d", in.B)
}

// params rebuilds the parameter list from the arity and the local
// variable table. Parameters occupy registers 1.. in declaration order.
// It returns the pc where the body starts, past the default-value code of
// optional parameters.
func (r *reader) params(a model.Arity) ([]param, int, error) {
	var out []param
	regNo := 1
	add := func(kind paramKind, fallback string) {
		name, ok := r.irep.LocalName(regNo)
		if !ok {
			name = fallback
		}
		out = append(out, param{Name: name, Kind: kind})
		regNo++
	}

	for i := 0; i < a.Req; i++ {
		add(paramReq, fmt.Sprintf("arg%d", len(out)))
	}

	bodyStart := 1
	if a.Opt > 0 {
		targets, err := r.jumpTable(a.Opt)
		if err != nil {
			return nil, 0, err
		}
		for i := 0; i < a.Opt; i++ {
			add(paramOpt, fmt.Sprintf("opt%d", i))
			def, err := r.defaultValue(regNo-1, targets[i], targets[i+1])
			if err != nil {
				return nil, 0, err
			}
			out[len(out)-1].Default = def
		}
		bodyStart = targets[a.Opt]
	}

	if a.Rest > 0 {
		add(paramRest, "rest")
	}
	for i := 0; i < a.Post; i++ {
		add(paramPost, fmt.Sprintf("post%d", i))
	}
	for i := 0; i < a.Key; i++ {
		add(paramKey, fmt.Sprintf("key%d", i))
	}
	if a.KDict > 0 {
		add(paramKDict, "opts")
	}
	if a.Block > 0 {
		add(paramBlock, "blk")
	}
	return out, bodyStart, nil
}

// jumpTable reads the opt+1 OP_JMP instructions that follow OP_ENTER and
// returns their absolute targets. Target i is where the default of
// optional parameter i starts; the last one is the body.
func (r *reader) jumpTable(opt int) ([]int, error) {
	targets := make([]int, opt+1)
	for k := 0; k <= opt; k++ {
		pc := 1 + k
		if pc >= len(r.code) || r.code[pc].Op != opcode.OP_JMP {
			return nil, fmt.Errorf("irep %s: %w: expected OP_JMP at pc %d for optional argument dispatch",
				disasm.PathString(r.path), ErrBadOperand, pc)
		}
		t := r.code[pc].JumpTarget(pc)
		if t < opt+2 || t > len(r.code) || (k > 0 && t < targets[k-1]) {
			return nil, fmt.Errorf("irep %s: %w: optional argument jump at pc %d lands on %d",
				disasm.PathString(r.path), ErrBadOperand, pc, t)
		}
		targets[k] = t
	}
	return targets, nil
}

// defaultValue replays the default-value code [from, to) of an optional
// parameter and returns what it stored into register reg.
func (r *reader) defaultValue(reg, from, to int) (Node, error) {
	d := newReader(r.opts, r.irep, r.path, r.parent, r.kind, r.target)
	if err := d.run(from, to); err != nil {
		return nil, err
	}
	v := d.reg(reg).value
	if v == nil || v == Node(d.reg(reg).local) {
		return newNil(), nil
	}
	return v, nil
}
