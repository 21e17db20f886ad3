package docker

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/docker/docker/client"

	"github.com/shinji-kodama/mrbdec/internal/model"
)

// dockerPipe is the named pipe Docker Desktop serves on Windows.
const dockerPipe = `\\.\pipe\docker_engine`

// pipeDialTimeout bounds the dial that checks dockerPipe exists.
const pipeDialTimeout = time.Second

// defaultPingTimeout bounds how long Ping waits for the daemon. Docker
// Desktop on macOS can take a few seconds to answer.
const defaultPingTimeout = 5 * time.Second

// Client wraps the Docker Engine SDK client. It detects the Docker socket
// for the current platform and exposes only the operations mrbdec needs.
//
// Usage:
//
//	c, err := docker.NewClient()
//	if err != nil { /* handle */ }
//	defer c.Close()
//	if err := c.Ping(ctx); err != nil { /* Docker not running */ }
type Client struct {
	// inner is held rather than embedded so callers only see the calls
	// below, not the whole SDK surface.
	inner *client.Client
}

// NewClient creates a Docker client. DOCKER_HOST wins when set; otherwise
// the platform's default socket locations are checked:
//   - Linux: /var/run/docker.sock
//   - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//   - Windows: npipe:////./pipe/docker_engine
//
// Returns a model.CLIError with ExitDockerNotRunning if no socket is found
// or the client cannot be created.
func NewClient() (*Client, error) {
	// An explicit DOCKER_HOST is passed through untouched: it may name a
	// remote daemon (tcp://, ssh://) that no local lookup could find, and
	// the SDK parses every scheme it supports.
	if host := os.Getenv("DOCKER_HOST"); host != "" {
		return newClientWithHost(host)
	}

	// Otherwise fall back to the socket Docker installs by default on
	// this platform. Only its presence is checked here.
	host, err := detectDockerHost()
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"Docker socket not found",
			err,
		)
	}
	return newClientWithHost(host)
}

// newClientWithHost connects to host, a Docker connection string such as
// "unix:///var/run/docker.sock" or "npipe:////./pipe/docker_engine".
//
// API version negotiation lets one binary talk to older and newer
// daemons: the SDK downgrades to the daemon's version on the first call
// instead of failing with "client version is too new".
func newClientWithHost(host string) (*Client, error) {
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create Docker client for host %q", host),
			err,
		)
	}
	return &Client{inner: c}, nil
}

// detectDockerHost returns the Docker host URI for the current platform.
//
// Unix sockets are checked for existence only. A stat is instant and works
// when the daemon is stopped, which lets the caller tell "Docker is not
// installed" apart from "Docker is not running"; Ping does the latter.
func detectDockerHost() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return detectUnixSocket([]string{"/var/run/docker.sock"})

	case "darwin":
		// Docker Desktop links /var/run/docker.sock to its own socket only
		// when it was granted admin rights at install; otherwise the socket
		// lives under the user's home directory.
		paths := []string{"/var/run/docker.sock"}
		if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths, home+"/.docker/run/docker.sock")
		}
		return detectUnixSocket(paths)

	case "windows":
		// Named pipes are not files: os.Stat on \\.\pipe\ paths fails
		// even when the pipe is being served, and the net package has no
		// pipe network. A short go-winio dial is the only reliable
		// existence check; it fails fast when Docker Desktop is not
		// running, so the timeout is rarely reached.
		if err := checkPipe(dockerPipe, pipeDialTimeout); err != nil {
			return "", fmt.Errorf("Docker named pipe not found at %s: %w", dockerPipe, err)
		}
		return "npipe:////./pipe/docker_engine", nil

	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// detectUnixSocket returns the host URI of the first existing socket in
// paths, which are listed most preferred first.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("Docker socket not found at any of: %v (is Docker running?)", paths)
}

// Ping verifies that the Docker daemon answers within defaultPingTimeout.
//
// A socket can exist while the daemon behind it is stopped (Docker Desktop
// leaves it in place on quit), so every command that needs Docker calls
// Ping before its first real request to fail with ExitDockerNotRunning
// rather than a raw connection error halfway through.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(pingCtx); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			"Docker daemon is not responding (is Docker running?)",
			err,
		)
	}
	return nil
}

// Close releases the client's resources, chiefly its idle HTTP
// connections. It is safe to call more than once.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}
