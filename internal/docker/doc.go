// Package docker wraps the Docker Engine SDK client for running mrbc in
// short-lived containers.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Labels that mark compile containers as owned by mrbdec, so leftovers
//     from interrupted runs can be found and removed
//   - One-shot container runs: create, start, wait, collect logs, remove
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
