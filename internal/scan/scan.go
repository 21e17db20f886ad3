// Package scan runs the decompiler and the opcode analyzer over whole
// directory trees of compiled mruby files.
package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/shinji-kodama/mrbdec/internal/decompiler"
	"github.com/shinji-kodama/mrbdec/internal/rite"
)

// DefaultExtensions are the file name suffixes of compiled mruby files.
var DefaultExtensions = []string{".mrb", "_scp.bin"}

const (
	// DefaultOutputSuffix is appended to an input path to name its
	// decompiled source.
	DefaultOutputSuffix = ".rb"

	// DefaultCacheSize bounds the memo of decompiled outputs.
	DefaultCacheSize = 256
)

// Options configures a directory scan.
type Options struct {
	Extensions   []string
	OutputSuffix string

	// Workers bounds the number of files processed at once. Zero means
	// one per CPU.
	Workers int

	// CacheSize bounds how many decompiled outputs are kept for inputs
	// that repeat byte for byte.
	CacheSize int

	Parse     rite.Options
	Decompile decompiler.Options
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if len(o.Extensions) == 0 {
		o.Extensions = DefaultExtensions
	}
	if o.OutputSuffix == "" {
		o.OutputSuffix = DefaultOutputSuffix
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// FileError records a file that could not be processed.
type FileError struct {
	Path  string `json:"path" yaml:"path"`
	Error string `json:"error" yaml:"error"`
}

// Summary is the outcome of DecompileAll.
type Summary struct {
	Found      int         `json:"found" yaml:"found"`
	Decompiled int         `json:"decompiled" yaml:"decompiled"`
	Failed     []FileError `json:"failed" yaml:"failed"`
	CacheHits  int         `json:"cacheHits" yaml:"cacheHits"`
}

// Find returns the files under root whose names end with one of exts,
// in lexical order.
func Find(root string, exts []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		for _, ext := range exts {
			if strings.HasSuffix(d.Name(), ext) {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// DecompileAll decompiles every matching file under root, writing each
// result next to its input. A file that fails is recorded in the
// summary and does not stop the others.
func DecompileAll(ctx context.Context, root string, opts Options) (*Summary, error) {
	opts = opts.withDefaults()

	files, err := Find(root, opts.Extensions)
	if err != nil {
		return nil, err
	}

	memo, err := lru.New[string, string](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	summary := &Summary{Found: len(files), Failed: []FileError{}}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			hit, err := decompileOne(path, memo, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				opts.Logger.Warn("decompile failed", "file", path, "error", err)
				summary.Failed = append(summary.Failed, FileError{Path: path, Error: err.Error()})
				return nil
			}
			opts.Logger.Debug("decompiled", "file", path, "cached", hit)
			summary.Decompiled++
			if hit {
				summary.CacheHits++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(summary.Failed, func(i, j int) bool {
		return summary.Failed[i].Path < summary.Failed[j].Path
	})
	return summary, nil
}

func decompileOne(path string, memo *lru.Cache[string, string], opts Options) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])

	src, hit := memo.Get(key)
	if !hit {
		f, err := rite.ParseBytes(data, opts.Parse)
		if err != nil {
			return false, err
		}
		src, err = decompiler.Decompile(f, opts.Decompile)
		if err != nil {
			return false, err
		}
		memo.Add(key, src)
	}

	if err := os.WriteFile(path+opts.OutputSuffix, []byte(src), 0o644); err != nil {
		return false, fmt.Errorf("failed to write output: %w", err)
	}
	return hit, nil
}
