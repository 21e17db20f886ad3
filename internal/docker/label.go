package docker

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/filters"
	"github.com/google/uuid"
)

// Label keys stored on every compile container. They are the only record
// of which containers mrbdec started; there is no state file.
const (
	// LabelPrefix namespaces mrbdec labels away from Compose and other tools.
	LabelPrefix = "mrbdec."

	// LabelManagedBy marks containers created by mrbdec. Its value is
	// always ManagedByValue.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelSource is the absolute host path of the Ruby file being compiled.
	LabelSource = LabelPrefix + "source"

	// LabelCreatedAt is the RFC 3339 UTC time the container was created.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the value of LabelManagedBy.
const ManagedByValue = "mrbdec"

// containerNamePrefix starts every compile container name.
const containerNamePrefix = "mrbdec-compile-"

// ContainerName returns a fresh, unique compile container name.
func ContainerName() string {
	return containerNamePrefix + uuid.NewString()
}

// BuildLabels returns the labels for a container compiling source.
func BuildLabels(source string, createdAt time.Time) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelSource:    source,
		LabelCreatedAt: createdAt.UTC().Format(time.RFC3339),
	}
}

// Job is the compile job recorded in a container's labels.
type Job struct {
	Source    string
	CreatedAt time.Time
}

// ParseLabels reads a Job back from container labels. All missing keys are
// reported together.
func ParseLabels(labels map[string]string) (*Job, error) {
	var missing []string
	for _, key := range []string{LabelManagedBy, LabelSource, LabelCreatedAt} {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return &Job{Source: labels[LabelSource], CreatedAt: createdAt}, nil
}

// ManagedFilter selects containers carrying LabelManagedBy=ManagedByValue.
// The daemon applies it server side.
func ManagedFilter() filters.Args {
	return filters.NewArgs(filters.Arg("label", LabelManagedBy+"="+ManagedByValue))
}
