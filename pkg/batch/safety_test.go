package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtstructgen/pkg/fault"
)

func TestCheckOutputSafety(t *testing.T) {
	base := t.TempDir()
	slices := filepath.Join(base, "data", "ct")
	require.NoError(t, os.MkdirAll(slices, 0o755))
	link := filepath.Join(base, "link")
	require.NoError(t, os.Symlink(slices, link))

	tests := []struct {
		name   string
		output string
		unsafe bool
	}{
		{"sibling", filepath.Join(base, "data", "rtstruct"), false},
		{"unrelated new dir", filepath.Join(base, "out", "run1"), false},
		{"prefix sharing name", slices + "_out", false},
		{"same", slices, true},
		{"same with trailing parts", filepath.Join(slices, "..", "ct"), true},
		{"ancestor", filepath.Join(base, "data"), true},
		{"nested", filepath.Join(slices, "out"), true},
		{"nested missing", filepath.Join(slices, "a", "b"), true},
		{"symlink to slice root", link, true},
		{"nested through symlink", filepath.Join(link, "out"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckOutputSafety(slices, tt.output)
			if !tt.unsafe {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, fault.UnsafeOutputPath, fault.KindOf(err))
		})
	}
}

func TestCheckOutputSafetyRelative(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	err = CheckOutputSafety(".", wd)
	assert.True(t, fault.Is(err, fault.UnsafeOutputPath))
}
