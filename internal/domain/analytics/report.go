package analytics

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ehr/medrecord/internal/platform/metrics"
	"github.com/ehr/medrecord/internal/platform/outfile"
)

// SummaryReport runs every analysis for the window concurrently and writes
// them, in a fixed order, to a markdown report under the report directory.
// It returns the report path. If any analysis fails no report is written.
func (e *Engine) SummaryReport(ctx context.Context, w Window) (path string, err error) {
	defer metrics.Observe("analytics_engine", "summary_report", time.Now(), &err)

	if err = w.Validate(); err != nil {
		e.logger.Warn().Err(err).Str("op", "summary_report").Str("window", w.String()).Msg("analysis rejected")
		return "", err
	}

	analyses := []func(context.Context, Window) (*Result, error){
		e.VisitTrend,
		e.DiagnosisDistribution,
		e.ExaminationStatistics,
		e.PrescriptionPatterns,
		e.OperationStatistics,
	}
	results := make([]*Result, len(analyses))

	g, gctx := errgroup.WithContext(ctx)
	for i, fn := range analyses {
		g.Go(func() error {
			res, err := fn(gctx, w)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return "", fmt.Errorf("summary report: %w", err)
	}

	generated := e.now()
	if err = os.MkdirAll(e.reportDir, 0o755); err != nil {
		e.logger.Error().Err(err).Str("op", "summary_report").Msg("report directory unavailable")
		return "", fmt.Errorf("summary report: %w", err)
	}
	base := filepath.Join(e.reportDir, "summary_report_"+generated.Format("20060102_150405"))
	path, err = outfile.Write(base, ".md", 0o644, func(out io.Writer) error {
		_, err := io.WriteString(out, renderReport(generated, w, results))
		return err
	})
	if err != nil {
		e.logger.Error().Err(err).Str("op", "summary_report").Str("base", base).Msg("write report failed")
		return "", fmt.Errorf("summary report: %w", err)
	}

	e.logger.Info().Str("path", path).Str("window", w.String()).Msg("summary report written")
	return path, nil
}

func renderReport(generated time.Time, w Window, results []*Result) string {
	var b strings.Builder
	b.WriteString("# 医疗记录分析报告\n\n")
	fmt.Fprintf(&b, "报告生成时间: %s\n", generated.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "分析周期: %s\n\n", w)
	for _, r := range results {
		fmt.Fprintf(&b, "## %s\n\n", r.Title)
		b.WriteString(r.Description)
		b.WriteString("\n")
		if r.ChartPath != "" {
			fmt.Fprintf(&b, "![%s](%s)\n\n", r.Title, r.ChartPath)
		}
	}
	return b.String()
}
