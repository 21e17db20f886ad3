// container.go runs one-shot compile containers and finds the ones left
// behind by interrupted runs. Managed containers are identified by the
// "mrbdec.managed-by" label.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/shinji-kodama/mrbdec/internal/model"
)

// Bind is a host directory mounted into the container.
type Bind struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec describes a one-shot container.
type RunSpec struct {
	Name    string
	Image   string
	Cmd     []string
	WorkDir string
	Binds   []Bind
	Labels  map[string]string
}

// RunResult is what a finished container left behind.
type RunResult struct {
	ExitCode int64
	Stdout   string
	Stderr   string
}

// Container is a managed container as reported by the daemon.
type Container struct {
	ID     string
	Name   string
	State  string
	Labels map[string]string
}

// Run creates the container, pulling the image first if the daemon does
// not have it, then starts it, waits for it to exit, collects its output
// and removes it. The container is removed even when ctx is cancelled.
func (c *Client) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	id, err := c.create(ctx, spec)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = c.Remove(context.WithoutCancel(ctx), id)
	}()

	if err := c.inner.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to start container %q", spec.Name),
			err,
		)
	}

	statusCh, errCh := c.inner.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		return nil, fmt.Errorf("failed waiting for container %q: %w", spec.Name, err)
	case st := <-statusCh:
		if st.Error != nil {
			return nil, fmt.Errorf("container %q: %s", spec.Name, st.Error.Message)
		}
		exitCode = st.StatusCode
	}

	logs, err := c.inner.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read logs of container %q: %w", spec.Name, err)
	}
	defer logs.Close()

	stdout, stderr, err := demuxLogs(logs)
	if err != nil {
		return nil, fmt.Errorf("failed to read logs of container %q: %w", spec.Name, err)
	}
	return &RunResult{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}, nil
}

func (c *Client) create(ctx context.Context, spec RunSpec) (string, error) {
	cfg := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Cmd,
		WorkingDir: spec.WorkDir,
		Labels:     spec.Labels,
	}
	host := &container.HostConfig{Mounts: buildMounts(spec.Binds)}

	resp, err := c.inner.ContainerCreate(ctx, cfg, host, nil, nil, spec.Name)
	if client.IsErrNotFound(err) {
		if err := c.pull(ctx, spec.Image); err != nil {
			return "", err
		}
		resp, err = c.inner.ContainerCreate(ctx, cfg, host, nil, nil, spec.Name)
	}
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create container %q from image %q", spec.Name, spec.Image),
			err,
		)
	}
	return resp.ID, nil
}

func (c *Client) pull(ctx context.Context, ref string) error {
	rc, err := c.inner.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to pull image %q", ref),
			err,
		)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %q: %w", ref, err)
	}
	return nil
}

func buildMounts(binds []Bind) []mount.Mount {
	mounts := make([]mount.Mount, 0, len(binds))
	for _, b := range binds {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   b.Source,
			Target:   b.Target,
			ReadOnly: b.ReadOnly,
		})
	}
	return mounts
}

// demuxLogs splits a multiplexed log stream (non-TTY containers) into
// stdout and stderr.
func demuxLogs(r io.Reader) (string, string, error) {
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, r); err != nil {
		return "", "", err
	}
	return stdout.String(), stderr.String(), nil
}

// ListManaged returns every container labelled as managed by mrbdec,
// including stopped ones.
func (c *Client) ListManaged(ctx context.Context) ([]Container, error) {
	list, err := c.inner.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: ManagedFilter(),
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]Container, 0, len(list))
	for _, s := range list {
		result = append(result, containerFromSummary(s))
	}
	return result, nil
}

// containerFromSummary strips the leading "/" the API puts on names.
func containerFromSummary(s container.Summary) Container {
	name := ""
	if len(s.Names) > 0 {
		name = strings.TrimPrefix(s.Names[0], "/")
	}
	return Container{
		ID:     s.ID,
		Name:   name,
		State:  s.State,
		Labels: s.Labels,
	}
}

// Remove force-removes a container and its anonymous volumes.
func (c *Client) Remove(ctx context.Context, id string) error {
	rmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := c.inner.ContainerRemove(rmCtx, id, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove container %q", id),
			err,
		)
	}
	return nil
}
