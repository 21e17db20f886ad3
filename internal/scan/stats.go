package scan

import (
	"context"
	"path/filepath"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/shinji-kodama/mrbdec/internal/opcode"
	"github.com/shinji-kodama/mrbdec/internal/rite"
)

// maxExamples is how many example files are kept per opcode.
const maxExamples = 5

// OpcodeStat is the usage of one opcode across a directory.
type OpcodeStat struct {
	Op    opcode.Op `json:"-" yaml:"-"`
	Name  string    `json:"name" yaml:"name"`
	Count int       `json:"count" yaml:"count"`

	// Examples names up to five files (base names) using the opcode, in
	// the order they were scanned.
	Examples []string `json:"examples" yaml:"examples"`
}

// Stats is the outcome of OpcodeStats.
type Stats struct {
	Files   int          `json:"files" yaml:"files"`
	Failed  []FileError  `json:"failed" yaml:"failed"`
	Opcodes []OpcodeStat `json:"opcodes" yaml:"opcodes"`
}

// OpcodeStats counts instructions per opcode over every irep of every
// matching file under root. Only opcodes that occur are listed, most
// frequent first.
func OpcodeStats(ctx context.Context, root string, opts Options) (*Stats, error) {
	opts = opts.withDefaults()

	files, err := Find(root, opts.Extensions)
	if err != nil {
		return nil, err
	}

	counts := make([]map[opcode.Op]int, len(files))
	errs := make([]error, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			counts[i], errs[i] = countFile(path, opts.Parse)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge in file order so the example lists are deterministic.
	stats := &Stats{Files: len(files), Failed: []FileError{}}
	byOp := map[opcode.Op]*OpcodeStat{}
	for i, path := range files {
		if errs[i] != nil {
			opts.Logger.Warn("skipping file", "file", path, "error", errs[i])
			stats.Failed = append(stats.Failed, FileError{Path: path, Error: errs[i].Error()})
			continue
		}
		name := filepath.Base(path)
		for op, n := range counts[i] {
			st, ok := byOp[op]
			if !ok {
				st = &OpcodeStat{Op: op, Name: op.String(), Examples: []string{}}
				byOp[op] = st
			}
			st.Count += n
			if len(st.Examples) < maxExamples && !slices.Contains(st.Examples, name) {
				st.Examples = append(st.Examples, name)
			}
		}
	}

	stats.Opcodes = make([]OpcodeStat, 0, len(byOp))
	for _, st := range byOp {
		stats.Opcodes = append(stats.Opcodes, *st)
	}
	sort.Slice(stats.Opcodes, func(i, j int) bool {
		a, b := stats.Opcodes[i], stats.Opcodes[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Op < b.Op
	})
	return stats, nil
}

func countFile(path string, opts rite.Options) (map[opcode.Op]int, error) {
	f, err := rite.ParseFile(path, opts)
	if err != nil {
		return nil, err
	}
	counts := map[opcode.Op]int{}
	f.Root.Walk(func(_ []int, irep *rite.Irep) {
		for _, word := range irep.Code {
			counts[opcode.Decode(word).Op]++
		}
	})
	return counts, nil
}
