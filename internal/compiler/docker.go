package compiler

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/shinji-kodama/mrbdec/internal/docker"
	"github.com/shinji-kodama/mrbdec/internal/model"
)

// Mount points inside the compile container.
const (
	workDir = "/work"
	outDir  = "/out"
)

// Engine is the part of the Docker client the Docker compiler needs.
// *docker.Client implements it.
type Engine interface {
	Run(ctx context.Context, spec docker.RunSpec) (*docker.RunResult, error)
	ListManaged(ctx context.Context) ([]docker.Container, error)
	Remove(ctx context.Context, id string) error
}

// Docker runs mrbc inside a container built from Image. The directory of
// the source file is bind mounted at /work; the output directory is
// mounted at /out when it differs.
type Docker struct {
	Engine Engine
	Image  string

	// Command is the mrbc executable inside the image. Empty means "mrbc".
	Command string

	Timeout time.Duration

	// now is replaced in tests.
	now func() time.Time
}

// Compile runs one labelled container for src and removes it afterwards.
func (d *Docker) Compile(ctx context.Context, src, out string) error {
	spec, err := d.spec(src, out)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, d.Timeout)
	defer cancel()

	res, err := d.Engine.Run(ctx, spec)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return compileError(src, res.Stderr+res.Stdout, fmt.Errorf("exit status %d", res.ExitCode))
	}
	return nil
}

func (d *Docker) spec(src, out string) (docker.RunSpec, error) {
	if d.Image == "" {
		return docker.RunSpec{}, model.NewCLIError(model.ExitCompileFailed, "no compiler image configured")
	}
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return docker.RunSpec{}, fmt.Errorf("failed to resolve %s: %w", src, err)
	}
	absOut, err := filepath.Abs(out)
	if err != nil {
		return docker.RunSpec{}, fmt.Errorf("failed to resolve %s: %w", out, err)
	}

	srcDir, outParent := filepath.Dir(absSrc), filepath.Dir(absOut)
	binds := []docker.Bind{{Source: srcDir, Target: workDir}}
	target := path.Join(workDir, filepath.Base(absOut))
	if outParent != srcDir {
		binds[0].ReadOnly = true
		binds = append(binds, docker.Bind{Source: outParent, Target: outDir})
		target = path.Join(outDir, filepath.Base(absOut))
	}

	cmd := d.Command
	if cmd == "" {
		cmd = "mrbc"
	}
	now := time.Now
	if d.now != nil {
		now = d.now
	}
	return docker.RunSpec{
		Name:    docker.ContainerName(),
		Image:   d.Image,
		Cmd:     []string{cmd, "-o", target, filepath.Base(absSrc)},
		WorkDir: workDir,
		Binds:   binds,
		Labels:  docker.BuildLabels(absSrc, now()),
	}, nil
}

// Leftover describes a compile container removed by Cleanup. Source and
// CreatedAt come from its labels; LabelError is set instead when the
// labels could not be read.
type Leftover struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LabelError string    `json:"labelError,omitempty"`
}

// Cleanup removes every managed container still present, typically left
// by a run that was killed, and reports what it removed.
func Cleanup(ctx context.Context, engine Engine) ([]Leftover, error) {
	list, err := engine.ListManaged(ctx)
	if err != nil {
		return nil, err
	}
	removed := make([]Leftover, 0, len(list))
	for _, c := range list {
		if err := engine.Remove(ctx, c.ID); err != nil {
			return removed, err
		}
		l := Leftover{ID: c.ID, Name: c.Name}
		if job, err := docker.ParseLabels(c.Labels); err != nil {
			l.LabelError = err.Error()
		} else {
			l.Source = job.Source
			l.CreatedAt = job.CreatedAt
		}
		removed = append(removed, l)
	}
	return removed, nil
}
