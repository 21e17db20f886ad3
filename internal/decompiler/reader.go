package decompiler

import (
	"fmt"
	"strconv"

	"github.com/shinji-kodama/mrbdec/internal/disasm"
	"github.com/shinji-kodama/mrbdec/internal/opcode"
	"github.com/shinji-kodama/mrbdec/internal/rite"
)

// callMaxArgs in operand C of OP_SEND and OP_SUPER means the arguments
// were packed into a single array register.
const callMaxArgs = 127

type scopeKind int

const (
	scopeMain scopeKind = iota
	scopeClass
	scopeMethod
	scopeBlock
)

// reader replays one irep.
type reader struct {
	opts   *Options
	irep   *rite.Irep
	path   []int
	parent *reader
	kind   scopeKind

	// target is what OP_TCLASS loads: the class whose body is being read.
	target Node

	regs []*register
	code []opcode.Instruction

	stmts []Node
	// pending maps statements whose value may still be read by a later
	// instruction to their index in stmts.
	pending map[Node]int
}

func newReader(opts *Options, irep *rite.Irep, path []int, parent *reader, kind scopeKind, target Node) *reader {
	r := &reader{
		opts:    opts,
		irep:    irep,
		path:    path,
		parent:  parent,
		kind:    kind,
		target:  target,
		code:    opcode.DecodeAll(irep.Code),
		pending: map[Node]int{},
	}
	r.regs = make([]*register, irep.NumRegs)
	for i := range r.regs {
		name, _ := irep.LocalName(i)
		r.regs[i] = newRegister(name)
	}
	r.reg(0).load(newSelf())
	return r
}

func (r *reader) fail(format string, args ...any) {
	panic(&decodeError{err: fmt.Errorf("irep %s: %w: %s", disasm.PathString(r.path), ErrBadOperand, fmt.Sprintf(format, args...))})
}

// reg returns register i, growing the file for ireps whose nregs
// understates what the code uses.
func (r *reader) reg(i int) *register {
	if i < 0 {
		r.fail("register %d", i)
	}
	for len(r.regs) <= i {
		r.regs = append(r.regs, newRegister(""))
	}
	return r.regs[i]
}

func (r *reader) sym(i int) string {
	if i < 0 || i >= len(r.irep.Symbols) {
		r.fail("symbol %d of %d", i, len(r.irep.Symbols))
	}
	return r.irep.Symbols[i]
}

func (r *reader) pool(i int) rite.PoolEntry {
	if i < 0 || i >= len(r.irep.Pool) {
		r.fail("pool entry %d of %d", i, len(r.irep.Pool))
	}
	return r.irep.Pool[i]
}

func (r *reader) child(i int) (*rite.Irep, []int) {
	if i < 0 || i >= len(r.irep.Children) {
		r.fail("child irep %d of %d", i, len(r.irep.Children))
	}
	return r.irep.Children[i], append(append([]int(nil), r.path...), i)
}

// up returns the scope level frames above this one; level 0 is the
// immediately enclosing scope.
func (r *reader) up(level int) *reader {
	s := r.parent
	for i := 0; i < level && s != nil; i++ {
		s = s.parent
	}
	if s == nil {
		r.fail("upvar level %d", level)
	}
	return s
}

// use reads register i as an operand. A pending statement read this way
// is folded into the consuming expression.
func (r *reader) use(i int) Node {
	n := r.reg(i).get()
	if idx, ok := r.pending[n]; ok {
		r.stmts[idx] = nil
		delete(r.pending, n)
	}
	return n
}

func (r *reader) uses(from, count int) []Node {
	out := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, r.use(from+i))
	}
	return out
}

func (r *reader) emit(n Node) {
	r.stmts = append(r.stmts, n)
}

// consumable reports whether an unread value of n is worth keeping as a
// statement. Plain loads are dropped when nothing reads them.
func consumable(n Node) bool {
	switch n.(type) {
	case *call, *yieldCall, *superCall, *lambda, *forLoop,
		*array, *hash, *rangeLit, *interp, *index:
		return true
	default:
		return false
	}
}

// set stores n into register a. Stores into a local variable become
// assignments; other computed values stay pending until read.
func (r *reader) set(a int, n Node) {
	reg := r.reg(a)
	reg.load(n)
	if reg.local != nil {
		r.emit(&assign{Target: reg.local, Value: n})
		return
	}
	if consumable(n) {
		r.pending[n] = len(r.stmts)
		r.stmts = append(r.stmts, n)
	}
}

// statements returns the emitted statements that were not folded into
// another expression.
func (r *reader) statements() []Node {
	out := make([]Node, 0, len(r.stmts))
	for _, s := range r.stmts {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (r *reader) lastStatement() Node {
	for i := len(r.stmts) - 1; i >= 0; i-- {
		if r.stmts[i] != nil {
			return r.stmts[i]
		}
	}
	return nil
}

// run replays instructions [start, end).
func (r *reader) run(start, end int) error {
	if end > len(r.code) {
		end = len(r.code)
	}
	for pc := start; pc < end; {
		next, err := r.step(pc, end)
		if err != nil {
			return err
		}
		pc = next
	}
	return nil
}

func (r *reader) unhandled(pc int, in opcode.Instruction) error {
	if r.opts.Strict {
		return fmt.Errorf("%w: %s at irep %s pc %d", ErrUnhandledOpcode, in, disasm.PathString(r.path), pc)
	}
	r.emit(&comment{Text: fmt.Sprintf("%04d %s", pc, in)})
	return nil
}

// step replays the instruction at pc and returns the pc to continue at.
func (r *reader) step(pc, end int) (int, error) {
	in := r.code[pc]

	switch in.Op {
	case opcode.OP_NOP, opcode.OP_ENTER, opcode.OP_DEBUG:
		// OP_ENTER is consumed when parameters are recovered.

	case opcode.OP_MOVE:
		if in.A == in.B {
			break
		}
		dst, src := r.reg(in.A), r.reg(in.B)
		if dst.local == nil {
			dst.moveIn(src)
			break
		}
		v := r.use(in.B)
		dst.moveIn(src)
		r.emit(&assign{Target: dst.local, Value: v})

	case opcode.OP_LOADL:
		p := r.pool(in.Bx)
		switch p.Type {
		case rite.PoolFloat:
			r.set(in.A, &lit{Text: floatLiteral(p.Value)})
		case rite.PoolFixnum:
			r.set(in.A, &lit{Text: p.Value})
		default:
			r.set(in.A, &str{Value: p.Value})
		}
	case opcode.OP_LOADI:
		r.set(in.A, &lit{Text: strconv.Itoa(in.SBx)})
	case opcode.OP_LOADSYM:
		r.set(in.A, &sym{Name: r.sym(in.Bx)})
	case opcode.OP_LOADNIL:
		r.set(in.A, newNil())
	case opcode.OP_LOADSELF:
		r.set(in.A, newSelf())
	case opcode.OP_LOADT:
		r.set(in.A, &lit{Text: "true"})
	case opcode.OP_LOADF:
		r.set(in.A, &lit{Text: "false"})

	case opcode.OP_GETGLOBAL, opcode.OP_GETIV, opcode.OP_GETCV, opcode.OP_GETCONST:
		r.set(in.A, &ident{Name: r.sym(in.Bx)})
	case opcode.OP_SETGLOBAL, opcode.OP_SETIV, opcode.OP_SETCV, opcode.OP_SETCONST:
		r.emit(&assign{Target: &ident{Name: r.sym(in.Bx)}, Value: r.use(in.A)})
	case opcode.OP_GETMCNST:
		r.set(in.A, &scoped{Scope: r.use(in.A), Name: r.sym(in.Bx)})
	case opcode.OP_SETMCNST:
		target := &scoped{Scope: r.use(in.A + 1), Name: r.sym(in.Bx)}
		r.emit(&assign{Target: target, Value: r.use(in.A)})

	case opcode.OP_GETUPVAR:
		src := r.up(in.C).reg(in.B)
		r.set(in.A, src.get())
	case opcode.OP_SETUPVAR:
		dst := r.up(in.C).reg(in.B)
		v := r.use(in.A)
		var target Node = dst.local
		if dst.local == nil {
			target = &ident{Name: fmt.Sprintf("_upvar%d", in.B)}
		}
		dst.load(v)
		r.emit(&assign{Target: target, Value: v})

	case opcode.OP_SEND, opcode.OP_FSEND:
		r.send(in, false)
	case opcode.OP_SENDB:
		r.send(in, true)
	case opcode.OP_SUPER:
		r.super(in)
	case opcode.OP_ARGARY:
		r.set(in.A, &argsRef{name: "*args"})
	case opcode.OP_BLKPUSH:
		r.set(in.A, &blockRef{name: "block"})

	case opcode.OP_RETURN:
		r.ret(pc, end, in)

	case opcode.OP_ADD, opcode.OP_SUB, opcode.OP_MUL, opcode.OP_DIV,
		opcode.OP_EQ, opcode.OP_LT, opcode.OP_LE, opcode.OP_GT, opcode.OP_GE:
		name := r.sym(in.B)
		recv := r.use(in.A)
		r.set(in.A, &call{Recv: recv, Name: name, Args: []Node{r.use(in.A + 1)}})
	case opcode.OP_ADDI, opcode.OP_SUBI:
		name := r.sym(in.B)
		r.set(in.A, &call{Recv: r.use(in.A), Name: name, Args: []Node{&lit{Text: strconv.Itoa(in.C)}}})

	case opcode.OP_ARRAY:
		r.set(in.A, &array{Elems: r.uses(in.B, in.C)})
	case opcode.OP_ARYCAT:
		base, rest := r.use(in.A), r.use(in.B)
		r.set(in.A, appendElem(base, &splat{Value: rest}))
	case opcode.OP_ARYPUSH:
		base, v := r.use(in.A), r.use(in.B)
		r.set(in.A, appendElem(base, v))
	case opcode.OP_AREF:
		r.set(in.A, &index{Recv: r.use(in.B), Index: in.C})
	case opcode.OP_ASET:
		recv := r.use(in.B)
		r.emit(&call{Recv: recv, Name: "[]=", Args: []Node{&lit{Text: strconv.Itoa(in.C)}, r.use(in.A)}})

	case opcode.OP_STRING:
		r.set(in.A, &str{Value: r.pool(in.Bx).Value})
	case opcode.OP_STRCAT:
		left, right := r.use(in.A), r.use(in.B)
		r.set(in.A, concat(left, right))

	case opcode.OP_HASH:
		h := &hash{}
		for i := 0; i < in.C; i++ {
			h.Keys = append(h.Keys, r.use(in.B+2*i))
			h.Values = append(h.Values, r.use(in.B+2*i+1))
		}
		r.set(in.A, h)

	case opcode.OP_LAMBDA:
		return r.lambdaOp(pc, end, in)

	case opcode.OP_RANGE:
		lo, hi := r.use(in.B), r.use(in.B+1)
		r.set(in.A, &rangeLit{Lo: lo, Hi: hi, Exclusive: in.C != 0})

	case opcode.OP_OCLASS:
		r.set(in.A, &objectBase{name: "Object"})
	case opcode.OP_CLASS, opcode.OP_MODULE:
		r.classOp(in)
	case opcode.OP_EXEC:
		return pc + 1, r.exec(pc, in)
	case opcode.OP_METHOD:
		lam, ok := r.reg(in.A + 1).get().(*lambda)
		if !ok {
			return pc + 1, r.unhandled(pc, in)
		}
		r.use(in.A + 1)
		r.defineMethod(in.A, r.sym(in.B), lam)
	case opcode.OP_SCLASS:
		r.set(in.A, &singletonRef{Target: r.use(in.B)})
	case opcode.OP_TCLASS:
		r.set(in.A, r.target)

	case opcode.OP_STOP:
		return end, nil

	default:
		return pc + 1, r.unhandled(pc, in)
	}
	return pc + 1, nil
}

// appendElem extends an array literal, or falls back to an explicit push.
func appendElem(base, elem Node) Node {
	if arr, ok := base.(*array); ok {
		elems := append(append([]Node(nil), arr.Elems...), elem)
		return &array{Elems: elems}
	}
	return &call{Recv: base, Name: "push", Args: []Node{elem}}
}

// concat folds an OP_STRCAT into an interpolated string.
func concat(left, right Node) Node {
	var parts []Node
	for _, n := range []Node{left, right} {
		if in, ok := n.(*interp); ok {
			parts = append(parts, in.Parts...)
		} else {
			parts = append(parts, n)
		}
	}
	kept := parts[:0]
	for _, p := range parts {
		if s, ok := p.(*str); ok && s.Value == "" {
			continue
		}
		kept = append(kept, p)
	}
	return &interp{Parts: kept}
}

func (r *reader) send(in opcode.Instruction, withBlock bool) {
	name := r.sym(in.B)
	recv := r.use(in.A)

	var args []Node
	var blk Node
	if in.C == callMaxArgs {
		packed := r.use(in.A + 1)
		if arr, ok := packed.(*array); ok {
			args = arr.Elems
		} else {
			args = []Node{&splat{Value: packed}}
		}
		if withBlock {
			blk = r.use(in.A + 2)
		}
	} else {
		args = r.uses(in.A+1, in.C)
		if withBlock {
			blk = r.use(in.A + in.C + 1)
		}
	}

	if _, ok := recv.(*blockRef); ok && name == "call" && blk == nil {
		r.set(in.A, &yieldCall{Args: args})
		return
	}

	c := &call{Recv: recv, Name: name, Args: args}
	if in.Op == opcode.OP_FSEND || (isSelf(recv) && c.priority() < 0 && name != "[]") {
		c.Recv = nil
	}

	switch b := blk.(type) {
	case nil:
	case *lambda:
		if b.ForVars != nil && name == "each" && len(args) == 0 {
			r.set(in.A, &forLoop{Vars: b.ForVars, Iter: recv, Body: b.Body})
			return
		}
		c.Block = b
	default:
		if !isNil(b) {
			c.BlockArg = b
		}
	}
	r.set(in.A, c)
}

func (r *reader) super(in opcode.Instruction) {
	s := &superCall{}
	var blk Node
	if in.C == callMaxArgs {
		packed := r.use(in.A + 1)
		switch p := packed.(type) {
		case *argsRef:
			s.Implicit = true
		case *array:
			s.Args = p.Elems
		default:
			s.Args = []Node{&splat{Value: packed}}
		}
		blk = r.use(in.A + 2)
	} else {
		s.Args = r.uses(in.A+1, in.C)
		blk = r.use(in.A + in.C + 1)
	}
	if lam, ok := blk.(*lambda); ok {
		s.Block = lam
	}
	r.set(in.A, s)
}

// ret handles OP_RETURN. A return in the middle of a body is explicit.
// mrbc folds "return res" into RETURN of the local's own register, so a
// final return of a local is explicit too. A final return of a temporary
// is the implicit body value and is elided when it is nil or repeats the
// last statement.
func (r *reader) ret(pc, end int, in opcode.Instruction) {
	switch in.B {
	case opcode.ReturnBreak:
		r.emit(&jump{Keyword: "break", Value: r.use(in.A)})
		return
	case opcode.ReturnReturn:
		r.emit(&jump{Keyword: "return", Value: r.use(in.A)})
		return
	}

	if pc < end-1 {
		kw := "return"
		if r.kind == scopeBlock {
			kw = "next"
		}
		r.emit(&jump{Keyword: kw, Value: r.use(in.A)})
		return
	}

	if r.kind == scopeMain || r.kind == scopeClass {
		return
	}
	reg := r.reg(in.A)
	if reg.local != nil {
		if r.kind == scopeMethod {
			r.emit(&jump{Keyword: "return", Value: reg.local})
		} else {
			r.emit(reg.local)
		}
		return
	}

	v := reg.get()
	if _, ok := r.pending[v]; ok || isNil(v) {
		return
	}
	// A temporary aliasing the local just assigned is the value of that
	// assignment, as in a trailing "res = a + b".
	if a, ok := r.lastStatement().(*assign); ok && (a.Value == v || a.Target == v) {
		return
	}
	switch v.(type) {
	case *lit, *str, *sym, *ident, *scoped:
		r.emit(v)
	}
}

func (r *reader) classOp(in opcode.Instruction) {
	outer := r.use(in.A)
	ref := &classRef{Name: r.sym(in.B), Module: in.Op == opcode.OP_MODULE}
	if in.Op == opcode.OP_CLASS {
		if super := r.use(in.A + 1); !isNil(super) {
			ref.Super = super
		}
	}
	switch o := outer.(type) {
	case *objectBase:
		ref.Root = true
	default:
		if !isNil(o) {
			ref.Outer = o
		}
	}
	r.set(in.A, ref)
}

// exec decompiles the body of a class, module or singleton class.
func (r *reader) exec(pc int, in opcode.Instruction) error {
	target := r.use(in.A)
	irep, path := r.child(in.Bx)

	switch t := target.(type) {
	case *classRef:
		body := newReader(r.opts, irep, path, r, scopeClass, t)
		if err := body.run(0, len(body.code)); err != nil {
			return err
		}
		r.emit(&classDef{Ref: t, Body: body.statements()})
	case *singletonRef:
		body := newReader(r.opts, irep, path, r, scopeClass, t)
		if err := body.run(0, len(body.code)); err != nil {
			return err
		}
		r.emit(&sclassDef{Target: t.Target, Body: body.statements()})
	default:
		return r.unhandled(pc, in)
	}
	r.reg(in.A).load(newNil())
	return nil
}

// lambdaOp handles OP_LAMBDA. A lambda immediately stored by OP_METHOD
// becomes a method definition.
func (r *reader) lambdaOp(pc, end int, in opcode.Instruction) (int, error) {
	if pc+1 < end {
		next := r.code[pc+1]
		if next.Op == opcode.OP_METHOD && next.A == in.A-1 {
			lam, err := r.readLambda(in.Bz, in.Cz, scopeMethod)
			if err != nil {
				return 0, err
			}
			r.defineMethod(next.A, r.sym(next.B), lam)
			return pc + 2, nil
		}
	}

	lam, err := r.readLambda(in.Bz, in.Cz, scopeBlock)
	if err != nil {
		return 0, err
	}
	r.set(in.A, lam)
	return pc + 1, nil
}

func (r *reader) defineMethod(a int, name string, lam *lambda) {
	owner := r.use(a)
	def := &methodDef{Name: name, Params: lam.Params, Body: lam.Body, Arity: lam.Arity}
	if s, ok := owner.(*singletonRef); ok && s != r.target {
		def.Recv = s.Target
	} else if owner != r.target {
		def.Recv = owner
	}
	r.emit(def)
}
