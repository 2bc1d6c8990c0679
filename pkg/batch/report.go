package batch

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/dustin/go-humanize"
	"github.com/google/renameio/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"rtstructgen/internal/models"
)

// ReportFileName is written into the output root after each run.
const ReportFileName = "rtstruct_report.yaml"

// Report is the outcome of a batch run.
type Report struct {
	StartedAt time.Time                 `yaml:"startedAt"`
	Duration  time.Duration             `yaml:"duration"`
	Structure string                    `yaml:"structure"`
	Roots     ReportRoots               `yaml:"roots"`
	Succeeded int                       `yaml:"succeeded"`
	Failed    int                       `yaml:"failed"`
	Results   []models.ProcessingResult `yaml:"results"`
}

// ReportRoots mirrors Roots with YAML names.
type ReportRoots struct {
	Slices string `yaml:"slices"`
	Masks  string `yaml:"masks"`
	Output string `yaml:"output"`
}

// NewReport tallies results into a report for a run that began at started.
func NewReport(structure string, roots Roots, started time.Time, results []models.ProcessingResult) *Report {
	ok := slice.CountBy(results, func(_ int, r models.ProcessingResult) bool { return r.Success })
	return &Report{
		StartedAt: started,
		Duration:  time.Since(started),
		Structure: structure,
		Roots:     ReportRoots{Slices: roots.SliceRoot, Masks: roots.MaskRoot, Output: roots.OutputRoot},
		Succeeded: ok,
		Failed:    len(results) - ok,
		Results:   results,
	}
}

// Save writes the report as YAML.
func (r *Report) Save(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// LoadReport reads a report written by Save.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}

// Summary renders one table row per result followed by the totals line.
func (r *Report) Summary() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Patient", "Phase", "Status", "Contours", "Size", "Time"})
	for _, res := range r.Results {
		size := "-"
		if res.Success {
			if fi, err := os.Stat(res.OutputPath); err == nil {
				size = humanize.Bytes(uint64(fi.Size()))
			}
		}
		tw.AppendRow(table.Row{
			res.PatientID,
			res.Phase,
			res.Status(),
			res.Contours,
			size,
			res.Duration.Round(time.Millisecond),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	var sb strings.Builder
	sb.WriteString(tw.Render())
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Success: %d/%d, Failure: %d\n", r.Succeeded, len(r.Results), r.Failed)
	return sb.String()
}
