package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/mrbdec/internal/disasm"
	"github.com/shinji-kodama/mrbdec/internal/rite"
)

type dumpFlags struct {
	yaml bool
}

// NewDumpCommand creates the "dump" command.
func NewDumpCommand() *cobra.Command {
	flags := &dumpFlags{}

	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Summarize the structure of a RITE binary",
		Long: `Print the header, the section table and one line per irep of a RITE
binary. The checksum is verified and reported but never rejected here.

Examples:
  mrbdec dump script.mrb
  mrbdec dump --yaml script.mrb
  mrbdec dump --json script.mrb`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd.Context(), cmd.OutOrStdout(), flags, args[0])
		},
	}

	cmd.Flags().BoolVar(&flags.yaml, "yaml", false, "Output in YAML format")

	return cmd
}

type dumpSection struct {
	Name   string `json:"name" yaml:"name"`
	Offset int    `json:"offset" yaml:"offset"`
	Size   uint32 `json:"size" yaml:"size"`
}

type dumpIrep struct {
	Path         string   `json:"path" yaml:"path"`
	Locals       int      `json:"locals" yaml:"locals"`
	Registers    int      `json:"registers" yaml:"registers"`
	Instructions int      `json:"instructions" yaml:"instructions"`
	Pool         int      `json:"pool" yaml:"pool"`
	Symbols      int      `json:"symbols" yaml:"symbols"`
	Children     int      `json:"children" yaml:"children"`
	LocalNames   []string `json:"localNames,omitempty" yaml:"localNames,omitempty"`
}

type dumpResult struct {
	Path        string        `json:"path" yaml:"path"`
	Header      rite.Header   `json:"header" yaml:"header"`
	CRCValid    bool          `json:"crcValid" yaml:"crcValid"`
	IrepVersion string        `json:"irepVersion" yaml:"irepVersion"`
	HasLVar     bool          `json:"hasLVar" yaml:"hasLVar"`
	Sections    []dumpSection `json:"sections" yaml:"sections"`
	Ireps       []dumpIrep    `json:"ireps" yaml:"ireps"`
}

func runDump(_ context.Context, w io.Writer, flags *dumpFlags, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return inputError(path, err)
	}
	f, err := rite.ParseBytes(data, rite.Options{})
	if err != nil {
		return inputError(path, err)
	}

	res := buildDump(path, f)
	res.CRCValid = rite.VerifyCRC(data) == nil

	switch {
	case flags.yaml:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("failed to encode YAML output: %w", err)
		}
		return enc.Close()
	case IsJSONOutput():
		return printJSON(w, res)
	default:
		printDumpText(w, res)
		return nil
	}
}

func buildDump(path string, f *rite.File) *dumpResult {
	res := &dumpResult{
		Path:        path,
		Header:      f.Header,
		IrepVersion: f.IrepVersion,
		HasLVar:     f.HasLVar,
		Sections:    make([]dumpSection, 0, len(f.Sections)),
	}
	for _, s := range f.Sections {
		res.Sections = append(res.Sections, dumpSection{Name: s.Name(), Offset: s.Offset, Size: s.Size})
	}
	f.Root.Walk(func(p []int, irep *rite.Irep) {
		entry := dumpIrep{
			Path:         disasm.PathString(p),
			Locals:       irep.NumLocals,
			Registers:    irep.NumRegs,
			Instructions: len(irep.Code),
			Pool:         len(irep.Pool),
			Symbols:      len(irep.Symbols),
			Children:     len(irep.Children),
		}
		for _, l := range irep.Locals {
			entry.LocalNames = append(entry.LocalNames, l.Name)
		}
		res.Ireps = append(res.Ireps, entry)
	})
	return res
}

// printDumpText prints a dump like:
//
//	file:     script.mrb
//	format:   RITE0003 MATZ0000
//	size:     212 bytes, crc 0x5a1c (ok)
//	sections: IREP@0x16+172 LVAR@0xc2+34 END@0xe4+8
//	#0     locals 1  regs 4  code 6  pool 1  syms 2  children 1
//	#0.0   locals 3  regs 6  code 5  pool 0  syms 1  children 0  [a b]
func printDumpText(w io.Writer, res *dumpResult) {
	h := res.Header
	crc := "ok"
	if !res.CRCValid {
		crc = "mismatch"
	}
	fmt.Fprintf(w, "%-10s%s\n", "file:", res.Path)
	fmt.Fprintf(w, "%-10s%s%s %s%s\n", "format:", h.Identifier, h.Version(), h.CompilerName, h.CompilerVersion)
	fmt.Fprintf(w, "%-10s%d bytes, crc %#04x (%s)\n", "size:", h.Size, h.CRC, crc)

	secs := make([]string, 0, len(res.Sections))
	for _, s := range res.Sections {
		secs = append(secs, fmt.Sprintf("%s@%#x+%d", s.Name, s.Offset, s.Size))
	}
	fmt.Fprintf(w, "%-10s%s\n", "sections:", strings.Join(secs, " "))

	for _, ir := range res.Ireps {
		line := fmt.Sprintf("%-6s locals %-2d regs %-2d code %-3d pool %-2d syms %-2d children %d",
			ir.Path, ir.Locals, ir.Registers, ir.Instructions, ir.Pool, ir.Symbols, ir.Children)
		if len(ir.LocalNames) > 0 {
			line += fmt.Sprintf("  [%s]", strings.Join(ir.LocalNames, " "))
		}
		fmt.Fprintln(w, line)
	}
}
