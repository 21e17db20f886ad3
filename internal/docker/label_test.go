package docker

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuildLabels verifies the label map written on compile containers.
func TestBuildLabels(t *testing.T) {
	createdAt := time.Date(2026, 2, 28, 19, 0, 0, 0, time.FixedZone("JST", 9*60*60))

	labels := BuildLabels("/src/methods.rb", createdAt)

	assert.Equal(t, ManagedByValue, labels[LabelManagedBy],
		"managed-by label should always be set to the constant value")
	assert.Equal(t, "/src/methods.rb", labels[LabelSource])
	assert.Equal(t, "2026-02-28T10:00:00Z", labels[LabelCreatedAt],
		"created-at should be normalized to UTC")
	assert.Len(t, labels, 3)
}

// TestParseLabels verifies that ParseLabels is the inverse of BuildLabels.
func TestParseLabels(t *testing.T) {
	createdAt := time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC)

	job, err := ParseLabels(BuildLabels("/src/classes.rb", createdAt))

	require.NoError(t, err)
	assert.Equal(t, "/src/classes.rb", job.Source)
	assert.Equal(t, createdAt, job.CreatedAt)
}

// TestParseLabels_Invalid verifies each way a label map can be rejected.
func TestParseLabels_Invalid(t *testing.T) {
	valid := func() map[string]string {
		return map[string]string{
			LabelManagedBy: ManagedByValue,
			LabelSource:    "/src/a.rb",
			LabelCreatedAt: "2026-01-01T00:00:00Z",
		}
	}

	testCases := []struct {
		name    string
		mutate  func(map[string]string)
		wantErr string
	}{
		{
			name:    "missing source",
			mutate:  func(l map[string]string) { delete(l, LabelSource) },
			wantErr: LabelSource,
		},
		{
			name: "missing everything",
			mutate: func(l map[string]string) {
				for k := range l {
					delete(l, k)
				}
			},
			wantErr: LabelManagedBy + ", " + LabelSource + ", " + LabelCreatedAt,
		},
		{
			name:    "foreign owner",
			mutate:  func(l map[string]string) { l[LabelManagedBy] = "other-tool" },
			wantErr: "unexpected value",
		},
		{
			name:    "bad timestamp",
			mutate:  func(l map[string]string) { l[LabelCreatedAt] = "yesterday" },
			wantErr: "invalid label " + LabelCreatedAt,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			labels := valid()
			tc.mutate(labels)

			_, err := ParseLabels(labels)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

// TestContainerName verifies names are prefixed and unique.
func TestContainerName(t *testing.T) {
	a, b := ContainerName(), ContainerName()

	require.True(t, strings.HasPrefix(a, "mrbdec-compile-"), a)
	_, err := uuid.Parse(strings.TrimPrefix(a, "mrbdec-compile-"))
	assert.NoError(t, err, "suffix should be a UUID")
	assert.NotEqual(t, a, b)
}

// TestManagedFilter verifies the daemon-side label filter.
func TestManagedFilter(t *testing.T) {
	f := ManagedFilter()

	assert.Equal(t, []string{"mrbdec.managed-by=mrbdec"}, f.Get("label"))
}
