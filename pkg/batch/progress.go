package batch

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"rtstructgen/internal/models"
	"rtstructgen/pkg/logging"
)

// Progress receives every finished result of a run.
type Progress interface {
	Advance(res models.ProcessingResult)
	Finish()
}

// NewProgress returns a progress bar when w is a terminal and a log-line
// reporter otherwise.
func NewProgress(w io.Writer, total int, description string, logger *zap.Logger) Progress {
	if isTerminal(w) {
		bar := progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
		return &barProgress{bar: bar}
	}
	return &logProgress{total: total, logger: logging.OrNop(logger)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type barProgress struct {
	bar *progressbar.ProgressBar
}

func (p *barProgress) Advance(models.ProcessingResult) { _ = p.bar.Add(1) }
func (p *barProgress) Finish()                         { _ = p.bar.Finish() }

type logProgress struct {
	total  int
	done   int
	logger *zap.Logger
}

func (p *logProgress) Advance(res models.ProcessingResult) {
	p.done++
	p.logger.Info("progress",
		zap.Int("done", p.done),
		zap.Int("total", p.total),
		zap.String("case", res.PatientID+"/"+res.Phase),
		zap.String("status", res.Status()))
}

func (p *logProgress) Finish() {}
