// Package analytics aggregates the record population into reports. Every
// operation is read-only.
package analytics

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the layout of visit dates and window bounds.
const DateLayout = "2006-01-02"

var ErrInvalidWindow = errors.New("invalid reporting window")

// Window bounds the visit dates considered, inclusive on both ends. An empty
// bound is open.
type Window struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

func (w Window) Validate() error {
	for _, d := range []string{w.Start, w.End} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, d); err != nil {
			return fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidWindow, d)
		}
	}
	if w.Start != "" && w.End != "" && w.Start > w.End {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidWindow, w.Start, w.End)
	}
	return nil
}

// Contains reports whether the visit date falls inside the window.
func (w Window) Contains(date string) bool {
	return (w.Start == "" || date >= w.Start) && (w.End == "" || date <= w.End)
}

func (w Window) String() string {
	start, end := w.Start, w.End
	if start == "" {
		start = "最早"
	}
	if end == "" {
		end = "至今"
	}
	return start + " 至 " + end
}

// Result is the outcome of one analysis.
type Result struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Data        any    `json:"data"`
	ChartPath   string `json:"chart_path,omitempty"`
}

// Count is one entry of a frequency ranking.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Crosstab counts pairs: row key to column key to count.
type Crosstab map[string]map[string]int

type DailyCount struct {
	Date   string `json:"date"`
	Visits int    `json:"visits"`
}

type VisitTrend struct {
	Window       Window       `json:"window"`
	Daily        []DailyCount `json:"daily_visits"`
	Departments  []Count      `json:"department_visits"`
	RecordTypes  []Count      `json:"type_visits"`
	Total        int          `json:"total"`
	DailyAverage float64      `json:"daily_average"`
	Peak         *DailyCount  `json:"peak,omitempty"`
}

type DiagnosisDistribution struct {
	Diagnoses     []Count            `json:"diagnosis_counts"`
	DepartmentTop map[string][]Count `json:"department_diagnosis"`
	Total         int                `json:"total"`
}

type ExaminationStats struct {
	ExamTypes           []Count  `json:"exam_type_counts"`
	DepartmentExamTypes Crosstab `json:"department_exam_counts"`
	Total               int      `json:"total"`
}

type PrescriptionPatterns struct {
	Medications             []Count            `json:"medication_counts"`
	DepartmentMedications   Crosstab           `json:"department_medication_counts"`
	DiagnosisTopMedications map[string][]Count `json:"diagnosis_medication_patterns"`
	Total                   int                `json:"total"`
}

type BloodLoss struct {
	Mean    float64 `json:"avg_blood_loss"`
	Min     int     `json:"min_blood_loss"`
	Max     int     `json:"max_blood_loss"`
	Samples int     `json:"samples"`
}

type OperationStats struct {
	Operations           []Count    `json:"operation_counts"`
	Levels               []Count    `json:"level_counts"`
	DepartmentOperations Crosstab   `json:"department_operation_counts"`
	BloodLoss            *BloodLoss `json:"average_stats,omitempty"`
	Total                int        `json:"total"`
}
