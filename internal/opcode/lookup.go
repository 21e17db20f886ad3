package opcode

import (
	"fmt"
	"strings"

	"github.com/agext/levenshtein"
)

// maxSuggestDistance bounds how far a misspelling may be from a mnemonic
// before Lookup stops offering it as a suggestion.
const maxSuggestDistance = 3

var byName = func() map[string]Op {
	m := make(map[string]Op, Count)
	for _, op := range All() {
		m[op.String()] = op
	}
	return m
}()

// canonicalName upper-cases a mnemonic and adds the OP_ prefix if missing.
func canonicalName(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "OP_") {
		n = "OP_" + n
	}
	return n
}

// Lookup resolves an opcode mnemonic. The match is case-insensitive and the
// "OP_" prefix is optional, so "send", "OP_SEND" and "Send" all resolve to
// OP_SEND. Unknown names produce an error that suggests the closest
// mnemonic when one is near enough.
func Lookup(name string) (Op, error) {
	n := canonicalName(name)
	if op, ok := byName[n]; ok {
		return op, nil
	}

	if suggestion, ok := Suggest(n); ok {
		return 0, fmt.Errorf("unknown opcode %q (did you mean %s?)", name, suggestion)
	}
	return 0, fmt.Errorf("unknown opcode %q", name)
}

// Suggest returns the mnemonic closest to name by edit distance.
func Suggest(name string) (string, bool) {
	n := canonicalName(name)
	best, bestDist := "", maxSuggestDistance+1
	for _, op := range All() {
		d := levenshtein.Distance(n, op.String(), nil)
		if d < bestDist {
			best, bestDist = op.String(), d
		}
	}
	return best, best != ""
}

// ParseList resolves a comma-separated list of mnemonics.
func ParseList(list string) ([]Op, error) {
	var ops []Op
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		op, err := Lookup(part)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}
