package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/medrecord/internal/platform/metrics"
)

// Engine runs the analyses over a Source and hands charts to a renderer.
type Engine struct {
	src       Source
	charts    ChartRenderer
	reportDir string
	now       func() time.Time
	logger    zerolog.Logger
}

func NewEngine(src Source, charts ChartRenderer, reportDir string, logger zerolog.Logger) *Engine {
	if charts == nil {
		charts = NopRenderer{}
	}
	return &Engine{
		src:       src,
		charts:    charts,
		reportDir: reportDir,
		now:       time.Now,
		logger:    logger.With().Str("component", "analytics_engine").Logger(),
	}
}

// analysis describes one analysis from rows to a titled result.
type analysis[R, D any] struct {
	op       string
	title    string
	fetch    func(context.Context, Window) ([]R, error)
	classify func([]R) D
	chart    func(D) Chart
	describe func(Window, D) string
}

func run[R, D any](ctx context.Context, e *Engine, w Window, a analysis[R, D]) (res *Result, err error) {
	defer metrics.Observe("analytics_engine", a.op, time.Now(), &err)

	if err = w.Validate(); err != nil {
		e.logger.Warn().Err(err).Str("op", a.op).Str("window", w.String()).Msg("analysis rejected")
		return nil, err
	}
	rows, err := a.fetch(ctx, w)
	if err != nil {
		e.logger.Error().Err(err).Str("op", a.op).Str("window", w.String()).Msg("analysis query failed")
		return nil, fmt.Errorf("%s: %w", a.op, err)
	}
	data := a.classify(rows)

	path, err := e.charts.Render(ctx, a.op, a.chart(data))
	if err != nil {
		e.logger.Error().Err(err).Str("op", a.op).Msg("chart rendering failed")
		return nil, fmt.Errorf("%s: %w", a.op, err)
	}
	return &Result{
		Title:       a.title,
		Description: a.describe(w, data),
		Data:        data,
		ChartPath:   path,
	}, nil
}

// VisitTrend counts visits per day, department and record type.
func (e *Engine) VisitTrend(ctx context.Context, w Window) (*Result, error) {
	return run(ctx, e, w, analysis[VisitRow, VisitTrend]{
		op:       "visit_trends",
		title:    "就诊趋势分析",
		fetch:    e.src.Visits,
		classify: func(rows []VisitRow) VisitTrend { return aggregateVisits(w, rows) },
		chart: func(d VisitTrend) Chart {
			c := Chart{Kind: ChartLine, Title: "每日就诊人数趋势", XLabel: "日期", YLabel: "就诊人数"}
			for _, v := range d.Daily {
				c.Labels = append(c.Labels, v.Date)
				c.Values = append(c.Values, float64(v.Visits))
			}
			return c
		},
		describe: describeVisits,
	})
}

// DiagnosisDistribution ranks diagnoses globally and per department.
func (e *Engine) DiagnosisDistribution(ctx context.Context, w Window) (*Result, error) {
	return run(ctx, e, w, analysis[DiagnosisRow, DiagnosisDistribution]{
		op:       "diagnosis_distribution",
		title:    "诊断分布分析",
		fetch:    e.src.Diagnoses,
		classify: aggregateDiagnoses,
		chart: func(d DiagnosisDistribution) Chart {
			return barChart("前10位常见诊断", "诊断", "频次", d.Diagnoses)
		},
		describe: describeDiagnoses,
	})
}

// ExaminationStatistics counts exam types globally and per department.
func (e *Engine) ExaminationStatistics(ctx context.Context, w Window) (*Result, error) {
	return run(ctx, e, w, analysis[ExamRow, ExaminationStats]{
		op:       "examination_stats",
		title:    "检查统计分析",
		fetch:    e.src.Examinations,
		classify: aggregateExaminations,
		chart: func(d ExaminationStats) Chart {
			return barChart("检查类型分布", "检查类型", "次数", d.ExamTypes)
		},
		describe: describeExaminations,
	})
}

// PrescriptionPatterns ranks medications and relates them to departments
// and diagnoses.
func (e *Engine) PrescriptionPatterns(ctx context.Context, w Window) (*Result, error) {
	return run(ctx, e, w, analysis[PrescriptionRow, PrescriptionPatterns]{
		op:       "prescription_patterns",
		title:    "处方模式分析",
		fetch:    e.src.Prescriptions,
		classify: aggregatePrescriptions,
		chart: func(d PrescriptionPatterns) Chart {
			return barChart("前10位常用药品", "药品名称", "使用频次", d.Medications)
		},
		describe: describePrescriptions,
	})
}

// OperationStatistics counts operations by name, level and department and
// summarizes blood loss.
func (e *Engine) OperationStatistics(ctx context.Context, w Window) (*Result, error) {
	return run(ctx, e, w, analysis[OperationRow, OperationStats]{
		op:       "operation_stats",
		title:    "手术统计分析",
		fetch:    e.src.Operations,
		classify: aggregateOperations,
		chart: func(d OperationStats) Chart {
			return barChart("手术等级分布", "手术等级", "次数", d.Levels)
		},
		describe: describeOperations,
	})
}

// =========== Descriptions ===========

// topShown bounds the rankings listed in descriptions.
const topShown = 5

func head(counts []Count, n int) []Count {
	if len(counts) > n {
		return counts[:n]
	}
	return counts
}

func writeCounts(b *strings.Builder, counts []Count) {
	for _, c := range counts {
		fmt.Fprintf(b, "- %s: %d\n", c.Key, c.Count)
	}
}

func inline(counts []Count) string {
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%s %d", c.Key, c.Count)
	}
	return strings.Join(parts, ", ")
}

func writeCrosstab(b *strings.Builder, ct Crosstab) {
	for _, row := range sortedKeys(ct) {
		cols := ct[row]
		counts := make([]Count, 0, len(cols))
		for _, k := range sortedKeys(cols) {
			counts = append(counts, Count{Key: k, Count: cols[k]})
		}
		fmt.Fprintf(b, "- %s: %s\n", row, inline(counts))
	}
}

func writeGroupTop(b *strings.Builder, m map[string][]Count, limit int) {
	keys := sortedKeys(m)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %s\n", k, inline(m[k]))
	}
}

func describeVisits(w Window, d VisitTrend) string {
	var b strings.Builder
	fmt.Fprintf(&b, "分析周期: %s\n", w)
	fmt.Fprintf(&b, "总就诊人数: %d\n", d.Total)
	fmt.Fprintf(&b, "日均就诊人数: %.1f\n", d.DailyAverage)
	if d.Peak != nil {
		fmt.Fprintf(&b, "最高日就诊量: %d (%s)\n", d.Peak.Visits, d.Peak.Date)
	}
	fmt.Fprintf(&b, "就诊类型分布: %s\n", inline(d.RecordTypes))
	fmt.Fprintf(&b, "就诊量前三科室: %s\n", inline(head(d.Departments, topN)))
	return b.String()
}

func describeDiagnoses(_ Window, d DiagnosisDistribution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "总诊断数: %d\n", d.Total)
	fmt.Fprintf(&b, "不同诊断数: %d\n", len(d.Diagnoses))
	b.WriteString("最常见诊断:\n")
	writeCounts(&b, head(d.Diagnoses, topShown))
	b.WriteString("\n各科室常见诊断:\n")
	writeGroupTop(&b, d.DepartmentTop, 0)
	return b.String()
}

func describeExaminations(_ Window, d ExaminationStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "总检查数: %d\n", d.Total)
	fmt.Fprintf(&b, "检查类型数: %d\n", len(d.ExamTypes))
	b.WriteString("检查类型分布:\n")
	writeCounts(&b, d.ExamTypes)
	b.WriteString("\n各科室检查情况:\n")
	writeCrosstab(&b, d.DepartmentExamTypes)
	return b.String()
}

func describePrescriptions(_ Window, d PrescriptionPatterns) string {
	var b strings.Builder
	fmt.Fprintf(&b, "总处方数: %d\n", d.Total)
	fmt.Fprintf(&b, "不同药品数: %d\n", len(d.Medications))
	b.WriteString("最常用药品:\n")
	writeCounts(&b, head(d.Medications, topShown))
	b.WriteString("\n各科室用药特点:\n")
	writeCrosstab(&b, d.DepartmentMedications)
	b.WriteString("\n典型诊断用药模式:\n")
	writeGroupTop(&b, d.DiagnosisTopMedications, topShown)
	return b.String()
}

func describeOperations(_ Window, d OperationStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "总手术数: %d\n", d.Total)
	fmt.Fprintf(&b, "不同手术类型数: %d\n", len(d.Operations))
	b.WriteString("最常见手术:\n")
	writeCounts(&b, head(d.Operations, topShown))
	b.WriteString("\n手术等级分布:\n")
	levels := append([]Count(nil), d.Levels...)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Key < levels[j].Key })
	writeCounts(&b, levels)
	b.WriteString("\n手术统计:\n")
	if bl := d.BloodLoss; bl != nil {
		fmt.Fprintf(&b, "- 平均出血量: %.1fml\n", bl.Mean)
		fmt.Fprintf(&b, "- 最大出血量: %dml\n", bl.Max)
		fmt.Fprintf(&b, "- 最小出血量: %dml\n", bl.Min)
	} else {
		b.WriteString("- 无出血量记录\n")
	}
	b.WriteString("\n各科室手术情况:\n")
	writeCrosstab(&b, d.DepartmentOperations)
	return b.String()
}
