package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtstructgen/internal/testsupport"
	"rtstructgen/pkg/fault"
)

func TestDiscover(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPhases("PRE", "POST"))
	for _, name := range []string{"002", "001", "abc", "12a", "010"} {
		require.NoError(t, os.MkdirAll(filepath.Join(cfg.Paths.SliceRoot, name), 0o755))
	}
	testsupport.WriteJunk(t, cfg.Paths.SliceRoot, "003")

	cases, err := Discover(RootsFromConfig(cfg), LayoutFromConfig(cfg))
	require.NoError(t, err)
	require.Len(t, cases, 6)

	var labels []string
	for _, c := range cases {
		labels = append(labels, c.Label())
	}
	assert.Equal(t, []string{"001/PRE", "001/POST", "002/PRE", "002/POST", "010/PRE", "010/POST"}, labels)

	c := cases[0]
	assert.Equal(t, filepath.Join(cfg.Paths.SliceRoot, "001", "PRE"), c.SliceDir)
	assert.Equal(t, filepath.Join(cfg.Paths.MaskRoot, "001", "PRE", "pancreas.nii.gz"), c.MaskPath)
	assert.Equal(t, filepath.Join(cfg.Paths.OutputRoot, "001_PRE_rtstruct.dcm"), c.OutputPath)
}

func TestDiscoverMissingRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := Discover(RootsFromConfig(cfg), LayoutFromConfig(cfg))
	assert.Equal(t, fault.PathNotFound, fault.KindOf(err))
}

func TestLayoutOutputName(t *testing.T) {
	l := Layout{Suffix: "liver", Extension: ".dcm"}
	assert.Equal(t, "123_ART_liver.dcm", l.OutputName("123", "ART"))
}
