package decompiler

// register tracks what a VM register holds while an irep is replayed.
//
// A register bound to a local variable always reads as that variable. A
// temporary that received a copy of a local reads as the local too (its
// alias) until something else is loaded into it, so "tmp = a; a + b"
// renders as "a + b" rather than repeating a's last assigned value.
type register struct {
	// local is the variable bound to the register, nil for temporaries.
	local *ident

	// value is the last expression stored. For locals it keeps the
	// assigned expression, which default-argument recovery reads.
	value Node

	alias *ident
}

func newRegister(name string) *register {
	if name == "" {
		return &register{value: newNil()}
	}
	v := &ident{Name: name}
	return &register{local: v, value: v}
}

// get returns the expression a read of the register stands for.
func (r *register) get() Node {
	if r.local != nil {
		return r.local
	}
	if r.alias != nil {
		return r.alias
	}
	return r.value
}

// load stores a freshly computed expression.
func (r *register) load(v Node) {
	r.value = v
	r.alias = nil
}

// moveIn copies other into r the way OP_MOVE does.
func (r *register) moveIn(other *register) {
	if other.local != nil {
		r.value = other.local
	} else {
		r.value = other.value
	}
	if r.local != nil {
		other.alias = r.local
		return
	}
	r.alias = other.local
	if r.alias == nil {
		r.alias = other.alias
	}
}
