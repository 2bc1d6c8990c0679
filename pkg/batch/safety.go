package batch

import (
	"os"
	"path/filepath"
	"strings"

	"rtstructgen/pkg/fault"
)

// CheckOutputSafety refuses an output root that equals the slice root, contains
// it, or lies inside it. Paths are compared after resolving symlinks of the
// parts that exist.
func CheckOutputSafety(sliceRoot, outputRoot string) error {
	src, err := resolve(sliceRoot)
	if err != nil {
		return fault.Wrap(fault.UnsafeOutputPath, err, "(slice root %s)", sliceRoot)
	}
	out, err := resolve(outputRoot)
	if err != nil {
		return fault.Wrap(fault.UnsafeOutputPath, err, "(output root %s)", outputRoot)
	}

	switch {
	case src == out:
		return fault.New(fault.UnsafeOutputPath, "(output root %s is the slice root)", outputRoot)
	case within(out, src):
		return fault.New(fault.UnsafeOutputPath, "(output root %s contains slice root %s)", outputRoot, sliceRoot)
	case within(src, out):
		return fault.New(fault.UnsafeOutputPath, "(output root %s is inside slice root %s)", outputRoot, sliceRoot)
	}
	return nil
}

// within reports whether path lies strictly below root.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolve returns an absolute, cleaned path with symlinks evaluated on its
// longest existing prefix.
func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	existing, rest := abs, ""
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
	real, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	return filepath.Join(real, rest), nil
}
