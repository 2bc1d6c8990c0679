// Package series turns a directory of DICOM files into one ordered, validated
// imaging series.
package series

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/duke-git/lancet/v2/slice"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"rtstructgen/internal/models"
	"rtstructgen/pkg/config"
	"rtstructgen/pkg/dicommeta"
	"rtstructgen/pkg/fault"
	"rtstructgen/pkg/logging"
)

const orientationTolerance = 1e-4

// Options control which files are accepted as series members.
type Options struct {
	Modality              string
	SOPClassUID           string
	Extensions            []string
	AllowExtensionless    bool
	RequireUniformSpacing bool
	SpacingTolerance      float64
}

// DefaultOptions accepts CT Image Storage slices with a .dcm extension.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

// OptionsFromConfig reads the series section of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Modality:              cfg.Series.Modality,
		SOPClassUID:           cfg.Series.SOPClassUID,
		Extensions:            cfg.Series.Extensions,
		AllowExtensionless:    cfg.Series.AllowExtensionless,
		RequireUniformSpacing: cfg.Series.RequireUniformSpacing,
		SpacingTolerance:      cfg.Series.SpacingTolerance,
	}
}

// Validator selects and orders the slices of one directory.
type Validator struct {
	opts   Options
	logger *zap.Logger
}

// NewValidator creates a Validator. A nil logger disables logging.
func NewValidator(opts Options, logger *zap.Logger) *Validator {
	return &Validator{opts: opts, logger: logging.OrNop(logger)}
}

// Validate reads every candidate file in dir and returns the accepted series
// in ascending through-plane order. Files that cannot be parsed or do not match
// the expected modality and SOP class are skipped and logged at debug level.
func (v *Validator) Validate(dir string) (*models.Series, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fault.New(fault.PathNotFound, "(%s)", dir)
		}
		return nil, fault.Wrap(fault.PathNotFound, err, "(%s)", dir)
	}

	// os.ReadDir sorts by name, which is the on-disk order
	candidates := slice.Filter(entries, func(_ int, e fs.DirEntry) bool {
		return e.Type().IsRegular() && v.isCandidate(e.Name())
	})

	var accepted []models.SliceRecord
	for _, e := range candidates {
		path := filepath.Join(dir, e.Name())
		rec, reason := v.readSlice(path)
		if reason != "" {
			v.logger.Debug("skipping file", zap.String("path", path), zap.String("reason", reason))
			continue
		}
		accepted = append(accepted, rec)
	}
	if len(accepted) == 0 {
		return nil, fault.New(fault.NoValidSlices, "(%s)", dir)
	}

	members, uid := v.selectSeries(accepted)

	first := members[0].Orientation
	for _, rec := range members[1:] {
		if !rec.Orientation.Equal(first, orientationTolerance) {
			return nil, fault.New(fault.InconsistentSeries,
				"(orientation of %s differs from %s)", filepath.Base(rec.Path), filepath.Base(members[0].Path))
		}
	}

	ordered, descending := Order(members)
	if v.opts.RequireUniformSpacing {
		if err := checkSpacing(ordered, v.opts.SpacingTolerance); err != nil {
			return nil, err
		}
	}

	v.logger.Debug("series validated",
		zap.String("dir", dir),
		zap.String("series", uid),
		zap.Int("slices", len(ordered)),
		zap.Bool("descending", descending))

	return &models.Series{Slices: ordered, Descending: descending, SeriesInstanceUID: uid}, nil
}

func (v *Validator) isCandidate(name string) bool {
	ext := filepath.Ext(name)
	if ext == "" {
		return v.opts.AllowExtensionless
	}
	for _, want := range v.opts.Extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// readSlice returns the record of path or a non-empty reason it was rejected.
func (v *Validator) readSlice(path string) (models.SliceRecord, string) {
	h, err := dicommeta.ReadHeader(path)
	if err != nil {
		return models.SliceRecord{}, "unreadable: " + err.Error()
	}
	rec, ok := h.SliceRecord()
	if !ok {
		return models.SliceRecord{}, "missing ImagePositionPatient"
	}
	if rec.Modality != v.opts.Modality {
		return models.SliceRecord{}, "modality " + quoteOrEmpty(rec.Modality)
	}
	if rec.SOPClassUID != v.opts.SOPClassUID {
		return models.SliceRecord{}, "SOP class " + quoteOrEmpty(rec.SOPClassUID)
	}
	return rec, ""
}

func quoteOrEmpty(s string) string {
	if s == "" {
		return "missing"
	}
	return `"` + s + `"`
}

// selectSeries keeps the SeriesInstanceUID with the most slices, breaking ties
// on the smallest UID. Members keep their on-disk order.
func (v *Validator) selectSeries(recs []models.SliceRecord) ([]models.SliceRecord, string) {
	groups := make(map[string][]models.SliceRecord)
	var uids []string
	for _, rec := range recs {
		if _, seen := groups[rec.SeriesInstanceUID]; !seen {
			uids = append(uids, rec.SeriesInstanceUID)
		}
		groups[rec.SeriesInstanceUID] = append(groups[rec.SeriesInstanceUID], rec)
	}
	if len(uids) == 1 {
		return recs, uids[0]
	}

	sort.Strings(uids)
	best := uids[0]
	for _, uid := range uids[1:] {
		if len(groups[uid]) > len(groups[best]) {
			best = uid
		}
	}
	for _, uid := range uids {
		if uid != best {
			v.logger.Debug("ignoring additional series",
				zap.String("series", uid),
				zap.Int("slices", len(groups[uid])),
				zap.String("kept", best))
		}
	}
	return groups[best], best
}

// Order sorts records ascending along their through-plane axis and reports
// whether the input (on-disk) order was descending. The input slice is not
// modified.
func Order(recs []models.SliceRecord) ([]models.SliceRecord, bool) {
	out := make([]models.SliceRecord, len(recs))
	copy(out, recs)
	if len(out) == 0 {
		return out, false
	}
	axis := models.ThroughPlaneAxis(out[0].Orientation)
	descending := inputDescending(out, axis)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Projection(axis) < out[j].Projection(axis)
	})
	return out, descending
}

// inputDescending judges the direction of recs as given. A monotonic run
// decides on its own. Otherwise InstanceNumber order decides when every
// record carries one, and the first and last records decide when not.
func inputDescending(recs []models.SliceRecord, axis r3.Vec) bool {
	if len(recs) < 2 {
		return false
	}
	up, down := 0, 0
	for i := 1; i < len(recs); i++ {
		switch d := recs[i].Projection(axis) - recs[i-1].Projection(axis); {
		case d > 0:
			up++
		case d < 0:
			down++
		}
	}
	if up == 0 || down == 0 {
		return down > 0
	}

	byInstance := recs
	if slice.Every(recs, func(_ int, r models.SliceRecord) bool { return r.InstanceNumber > 0 }) {
		byInstance = make([]models.SliceRecord, len(recs))
		copy(byInstance, recs)
		sort.SliceStable(byInstance, func(i, j int) bool {
			return byInstance[i].InstanceNumber < byInstance[j].InstanceNumber
		})
	}
	return byInstance[len(byInstance)-1].Projection(axis) < byInstance[0].Projection(axis)
}

func checkSpacing(ordered []models.SliceRecord, tol float64) error {
	if len(ordered) < 3 {
		return nil
	}
	axis := models.ThroughPlaneAxis(ordered[0].Orientation)
	first := ordered[1].Projection(axis) - ordered[0].Projection(axis)
	for i := 2; i < len(ordered); i++ {
		step := ordered[i].Projection(axis) - ordered[i-1].Projection(axis)
		if math.Abs(step-first) > tol {
			return fault.New(fault.InconsistentSeries,
				"(slice increment %.3f mm at %s, expected %.3f mm)", step, filepath.Base(ordered[i].Path), first)
		}
	}
	return nil
}
