// Package compiler turns Ruby source into RITE binaries by running mrbc,
// either from the host PATH or inside a Docker container.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/shinji-kodama/mrbdec/internal/model"
)

// Compiler compiles one Ruby source file to a RITE binary at out.
type Compiler interface {
	Compile(ctx context.Context, src, out string) error
}

// OutputPath is the default binary path for src: the source path with
// ".mrb" appended.
func OutputPath(src string) string {
	return src + ".mrb"
}

// Local runs an mrbc executable found on the host.
type Local struct {
	// Path is the mrbc executable, looked up in PATH when it has no
	// separator. Empty means "mrbc".
	Path string

	// Timeout bounds a single compile; zero means no limit.
	Timeout time.Duration
}

// Compile runs `mrbc -o out src`.
func (l *Local) Compile(ctx context.Context, src, out string) error {
	bin := l.Path
	if bin == "" {
		bin = "mrbc"
	}
	ctx, cancel := withTimeout(ctx, l.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, "-o", out, src)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return model.WrapCLIError(
				model.ExitCompileFailed,
				fmt.Sprintf("mrbc executable %q not found", bin),
				err,
			)
		}
		return compileError(src, string(output), err)
	}
	return nil
}

func compileError(src, output string, err error) error {
	msg := fmt.Sprintf("mrbc failed for %s", src)
	if s := strings.TrimSpace(output); s != "" {
		msg += ": " + s
	}
	return model.WrapCLIError(model.ExitCompileFailed, msg, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
